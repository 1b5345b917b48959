// Package store adapts the feature repositories to the interfaces the live
// orchestrator consumes.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fanzlive/backend/internal/analytics"
	"github.com/fanzlive/backend/internal/auth"
	"github.com/fanzlive/backend/internal/chat"
	"github.com/fanzlive/backend/internal/gifts"
	"github.com/fanzlive/backend/internal/highlights"
	"github.com/fanzlive/backend/internal/models"
	"github.com/fanzlive/backend/internal/participants"
	"github.com/fanzlive/backend/internal/reactions"
	"github.com/fanzlive/backend/internal/recordings"
	"github.com/fanzlive/backend/internal/streams"
	"github.com/fanzlive/backend/internal/viewers"
	"github.com/fanzlive/backend/pkg/queue"
)

// Store composes the feature repositories into the orchestrator's persistence
// surface.
type Store struct {
	Streams      *streams.Repository
	Participants *participants.Repository
	Chat         *chat.Repository
	Gifts        *gifts.Repository
	Reactions    *reactions.Repository
	Highlights   *highlights.Repository
	Viewers      *viewers.Repository
	Analytics    *analytics.Repository
	Recordings   *recordings.Repository
}

func (s *Store) CreateStream(ctx context.Context, hostID uuid.UUID, title, description string, visibility models.StreamVisibility, priceCents int, streamKey string) (*models.Stream, error) {
	return s.Streams.Create(ctx, hostID, title, description, visibility, priceCents, streamKey)
}

func (s *Store) UpdateStreamSettings(ctx context.Context, streamID uuid.UUID, title, description *string, visibility *models.StreamVisibility, priceCents *int) error {
	return s.Streams.UpdateSettings(ctx, streamID, title, description, visibility, priceCents)
}

func (s *Store) MarkStreamLive(ctx context.Context, streamID uuid.UUID, startedAt time.Time) error {
	return s.Streams.MarkLive(ctx, streamID, startedAt)
}

func (s *Store) MarkStreamEnded(ctx context.Context, streamID uuid.UUID, endedAt time.Time) error {
	return s.Streams.MarkEnded(ctx, streamID, endedAt)
}

func (s *Store) AddParticipant(ctx context.Context, streamID, userID uuid.UUID, role models.ParticipantRole, verified bool) error {
	_, err := s.Participants.Add(ctx, streamID, userID, role, verified)
	return err
}

func (s *Store) RemoveParticipant(ctx context.Context, streamID, userID uuid.UUID) error {
	return s.Participants.Remove(ctx, streamID, userID)
}

func (s *Store) SaveChatMessage(ctx context.Context, m *models.ChatMessage) error {
	return s.Chat.Save(ctx, m)
}

func (s *Store) SetMessagePinned(ctx context.Context, messageID uuid.UUID, pinned bool) error {
	return s.Chat.SetPinned(ctx, messageID, pinned)
}

func (s *Store) SaveGift(ctx context.Context, g *models.Gift, t *models.Transaction) error {
	return s.Gifts.SaveWithTransaction(ctx, g, t)
}

func (s *Store) SaveReaction(ctx context.Context, re *models.Reaction) error {
	return s.Reactions.Save(ctx, re)
}

func (s *Store) SaveHighlight(ctx context.Context, h *models.Highlight) error {
	return s.Highlights.Save(ctx, h)
}

func (s *Store) SaveWatchTime(ctx context.Context, w *models.WatchTimeRecord) error {
	return s.Viewers.SaveWatchTime(ctx, w)
}

func (s *Store) SaveAnalyticsSnapshot(ctx context.Context, streamID uuid.UUID, a models.StreamAnalytics) error {
	return s.Analytics.SaveSnapshot(ctx, streamID, a)
}

func (s *Store) CreateRecording(ctx context.Context, streamID uuid.UUID, ingestURL string) (*models.Recording, error) {
	return s.Recordings.Create(ctx, streamID, ingestURL)
}

func (s *Store) SetRecordingStatus(ctx context.Context, recordingID uuid.UUID, status string) error {
	return s.Recordings.SetStatus(ctx, recordingID, status)
}

// Users adapts the auth repository to the orchestrator's Directory.
type Users struct {
	Repo *auth.Repository
}

func (u *Users) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return u.Repo.GetByID(ctx, id)
}

// Jobs adapts the Redis queue to the orchestrator's PostProcessor.
type Jobs struct {
	Queue *queue.Queue
}

func (j *Jobs) EnqueuePostProcess(ctx context.Context, recordingID, streamID uuid.UUID, ingestURL string) error {
	return j.Queue.EnqueuePostProcess(ctx, queue.PostProcessPayload{
		RecordingID: recordingID,
		StreamID:    streamID,
		IngestURL:   ingestURL,
	})
}
