package streams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fanzlive/backend/internal/live"
	"github.com/fanzlive/backend/internal/middleware"
	"github.com/fanzlive/backend/internal/models"
)

type fakeCreator struct {
	lastHost       uuid.UUID
	lastVisibility models.StreamVisibility
	err            error
}

func (f *fakeCreator) CreateStream(_ context.Context, hostID uuid.UUID, title, description string, visibility models.StreamVisibility, priceCents int) (*models.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastHost = hostID
	f.lastVisibility = visibility
	return &models.Stream{
		ID:         uuid.New(),
		HostID:     hostID,
		Title:      title,
		Visibility: visibility,
		PriceCents: priceCents,
		Status:     models.StreamScheduled,
	}, nil
}

func createRouter(creator *fakeCreator, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, creator, zap.NewNop())
	r := gin.New()
	r.POST("/streams", func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(middleware.ContextUserID, userID)
		}
		h.Create(c)
	})
	return r
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateStream(t *testing.T) {
	creator := &fakeCreator{}
	userID := uuid.New()
	r := createRouter(creator, userID)

	w := postJSON(r, "/streams", map[string]interface{}{
		"title":       "first stream",
		"visibility":  "subscriber",
		"price_cents": 499,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if creator.lastHost != userID {
		t.Fatalf("host id = %s, want %s (from auth context, not body)", creator.lastHost, userID)
	}
	if creator.lastVisibility != models.VisibilitySubscriber {
		t.Fatalf("visibility = %s", creator.lastVisibility)
	}

	var envelope struct {
		Success bool          `json:"success"`
		Data    models.Stream `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Success {
		t.Fatalf("success = false")
	}
	if envelope.Data.Title != "first stream" {
		t.Fatalf("title = %s", envelope.Data.Title)
	}
}

func TestCreateStreamValidation(t *testing.T) {
	r := createRouter(&fakeCreator{}, uuid.New())

	w := postJSON(r, "/streams", map[string]interface{}{"visibility": "public"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing title: status = %d", w.Code)
	}

	w = postJSON(r, "/streams", map[string]interface{}{"title": "x", "visibility": "friends-only"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad visibility: status = %d", w.Code)
	}
}

func TestCreateStreamUnverified(t *testing.T) {
	creator := &fakeCreator{err: fmt.Errorf("host: %w", live.ErrVerificationRequired)}
	r := createRouter(creator, uuid.New())

	w := postJSON(r, "/streams", map[string]interface{}{"title": "nope"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestCreateStreamUnauthenticated(t *testing.T) {
	r := createRouter(&fakeCreator{}, uuid.Nil)

	w := postJSON(r, "/streams", map[string]interface{}{"title": "x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
