package analytics

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fanzlive/backend/internal/middleware"
	"github.com/fanzlive/backend/internal/models"
	"github.com/fanzlive/backend/pkg/response"
)

// StreamSource resolves stream ownership for the host-only check.
type StreamSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error)
}

// LiveSource serves analytics for streams that are still live. It returns
// (nil, false) when no in-memory session exists for the stream.
type LiveSource interface {
	LiveAnalytics(streamID uuid.UUID) (*models.StreamAnalytics, bool)
}

// Handler serves GET /streams/:id/analytics. Live streams answer from the
// in-memory session; ended streams answer from the durable snapshot.
type Handler struct {
	repo    *Repository
	streams StreamSource
	live    LiveSource
	logger  *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(repo *Repository, streams StreamSource, live LiveSource, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, streams: streams, live: live, logger: logger}
}

// Get handles GET /streams/:id/analytics. Only the stream's host (or an
// admin) may read analytics.
func (h *Handler) Get(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	stream, err := h.streams.GetByID(c.Request.Context(), streamID)
	if err != nil {
		h.logger.Error("load stream for analytics", zap.Error(err))
		response.Internal(c, "failed to load stream")
		return
	}
	if stream == nil {
		response.NotFound(c, "stream not found")
		return
	}
	role, _ := c.Get(middleware.ContextUserRole)
	if stream.HostID != userID && role != string(models.RoleAdmin) {
		response.Forbidden(c, "analytics are visible to the host only")
		return
	}

	if a, ok := h.live.LiveAnalytics(streamID); ok {
		response.OK(c, a)
		return
	}

	snap, err := h.repo.GetByStream(c.Request.Context(), streamID)
	if err != nil {
		h.logger.Error("load analytics snapshot", zap.Error(err))
		response.Internal(c, "failed to load analytics")
		return
	}
	if snap == nil {
		response.NotFound(c, "no analytics for this stream")
		return
	}
	response.OK(c, snap.Analytics)
}
