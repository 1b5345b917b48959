package recordings

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fanzlive/backend/internal/models"
	"github.com/fanzlive/backend/pkg/response"
	"github.com/fanzlive/backend/pkg/storage"
)

// Handler serves recording endpoints.
type Handler struct {
	repo   *Repository
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(repo *Repository, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, s3: s3, logger: logger}
}

// ListByStream handles GET /streams/:id/recordings.
func (h *Handler) ListByStream(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	items, err := h.repo.ListByStream(c.Request.Context(), streamID)
	if err != nil {
		h.logger.Error("list recordings", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	if items == nil {
		items = []models.Recording{}
	}
	response.OK(c, items)
}

// DownloadURL handles GET /recordings/:id/download-url. Only completed
// recordings have an object to presign.
func (h *Handler) DownloadURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("load recording", zap.Error(err))
		response.Internal(c, "failed to load recording")
		return
	}
	if rec == nil {
		response.NotFound(c, "recording not found")
		return
	}
	if rec.Status != models.RecordingStatusCompleted || rec.S3Key == "" {
		response.Conflict(c, "recording is not ready for download")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.RecordingsBucket(), rec.S3Key, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign recording", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in_seconds": int(h.s3.PresignExpire().Seconds())})
}
