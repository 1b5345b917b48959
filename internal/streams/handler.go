package streams

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fanzlive/backend/internal/live"
	"github.com/fanzlive/backend/internal/middleware"
	"github.com/fanzlive/backend/internal/models"
	"github.com/fanzlive/backend/pkg/response"
)

// SessionCreator is the slice of the stream orchestrator the REST layer uses.
// Creating through the orchestrator keeps the in-memory session and the
// durable row in step.
type SessionCreator interface {
	CreateStream(ctx context.Context, hostID uuid.UUID, title, description string, visibility models.StreamVisibility, priceCents int) (*models.Stream, error)
}

// CreateRequest is the body for POST /streams.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	PriceCents  int    `json:"price_cents"`
}

// Handler serves the stream REST endpoints.
type Handler struct {
	repo    *Repository
	creator SessionCreator
	logger  *zap.Logger
}

// NewHandler creates a streams handler.
func NewHandler(repo *Repository, creator SessionCreator, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, creator: creator, logger: logger}
}

// Create handles POST /streams.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	visibility := models.VisibilityPublic
	switch req.Visibility {
	case "", "public":
	case "subscriber":
		visibility = models.VisibilitySubscriber
	case "private":
		visibility = models.VisibilityPrivate
	default:
		response.BadRequest(c, "invalid visibility")
		return
	}
	s, err := h.creator.CreateStream(c.Request.Context(), userID, req.Title, req.Description, visibility, req.PriceCents)
	if err != nil {
		if errors.Is(err, live.ErrVerificationRequired) {
			response.Forbidden(c, "identity verification required to broadcast")
			return
		}
		h.logger.Error("create stream", zap.Error(err))
		response.Internal(c, "failed to create stream")
		return
	}
	response.Created(c, s)
}

// List handles GET /streams (currently live streams).
func (h *Handler) List(c *gin.Context) {
	items, err := h.repo.ListLive(c.Request.Context(), 100)
	if err != nil {
		h.logger.Error("list live streams", zap.Error(err))
		response.Internal(c, "failed to list streams")
		return
	}
	if items == nil {
		items = []models.Stream{}
	}
	response.OK(c, items)
}

// Get handles GET /streams/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load stream")
		return
	}
	if s == nil {
		response.NotFound(c, "stream not found")
		return
	}
	response.OK(c, s)
}

// ListMine handles GET /streams/mine for the authenticated host.
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	items, err := h.repo.ListByHost(c.Request.Context(), userID, 100)
	if err != nil {
		response.Internal(c, "failed to list streams")
		return
	}
	if items == nil {
		items = []models.Stream{}
	}
	response.OK(c, items)
}
