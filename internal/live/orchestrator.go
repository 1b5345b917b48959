package live

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/fanzlive/backend/config"
	"github.com/fanzlive/backend/internal/models"
	"github.com/fanzlive/backend/pkg/utils"
)

// Store is the durable persistence consumed by the orchestrator. Implemented
// by the repository adapter; faked in tests.
type Store interface {
	CreateStream(ctx context.Context, hostID uuid.UUID, title, description string, visibility models.StreamVisibility, priceCents int, streamKey string) (*models.Stream, error)
	UpdateStreamSettings(ctx context.Context, streamID uuid.UUID, title, description *string, visibility *models.StreamVisibility, priceCents *int) error
	MarkStreamLive(ctx context.Context, streamID uuid.UUID, startedAt time.Time) error
	MarkStreamEnded(ctx context.Context, streamID uuid.UUID, endedAt time.Time) error
	AddParticipant(ctx context.Context, streamID, userID uuid.UUID, role models.ParticipantRole, verified bool) error
	RemoveParticipant(ctx context.Context, streamID, userID uuid.UUID) error
	SaveChatMessage(ctx context.Context, m *models.ChatMessage) error
	SetMessagePinned(ctx context.Context, messageID uuid.UUID, pinned bool) error
	SaveGift(ctx context.Context, g *models.Gift, t *models.Transaction) error
	SaveReaction(ctx context.Context, re *models.Reaction) error
	SaveHighlight(ctx context.Context, h *models.Highlight) error
	SaveWatchTime(ctx context.Context, w *models.WatchTimeRecord) error
	SaveAnalyticsSnapshot(ctx context.Context, streamID uuid.UUID, a models.StreamAnalytics) error
	CreateRecording(ctx context.Context, streamID uuid.UUID, ingestURL string) (*models.Recording, error)
	SetRecordingStatus(ctx context.Context, recordingID uuid.UUID, status string) error
}

// Directory resolves users. Returns (nil, nil) for unknown users.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Verifier is the identity-verification gate for going on camera.
type Verifier interface {
	CanBroadcast(ctx context.Context, userID uuid.UUID) (bool, error)
}

// PostProcessor queues the recording post-processing job fired at stream end.
type PostProcessor interface {
	EnqueuePostProcess(ctx context.Context, recordingID, streamID uuid.UUID, ingestURL string) error
}

// Broadcaster fans events out to a session's connections. Sends are
// best-effort per connection; a dead socket never blocks the others.
// CloseUser tears down every connection a user holds in the session, so a
// removed participant stops receiving events and signaling immediately.
type Broadcaster interface {
	Broadcast(sessionID uuid.UUID, event string, payload interface{})
	SendToUser(sessionID, userID uuid.UUID, event string, payload interface{})
	CloseUser(sessionID, userID uuid.UUID)
}

// CreateConfig is the stream-creation request.
type CreateConfig struct {
	Title               string
	Description         string
	Visibility          models.StreamVisibility
	PriceCents          int
	CoStarIDs           []uuid.UUID
	RequireVerification bool
}

// ModerationAction is a moderate_user action.
type ModerationAction string

const (
	ModerationMute   ModerationAction = "mute"
	ModerationUnmute ModerationAction = "unmute"
	ModerationRemove ModerationAction = "remove"
)

// Orchestrator is the live-stream core: it creates sessions, enforces the
// verification gate, drives the scheduled→live→ended lifecycle, mutates
// session state for chat/gift/reaction/participant/viewer events, broadcasts
// the resulting events and runs the periodic highlight and sweep passes.
type Orchestrator struct {
	cfg         config.StreamConfig
	registry    *Registry
	store       Store
	users       Directory
	verifier    Verifier
	jobs        PostProcessor
	broadcaster Broadcaster
	relay       *Relay
	iceServers  []webrtc.ICEServer
	ingestBase  string
	logger      *zap.Logger
}

// NewOrchestrator wires the orchestrator. iceURLs are advertised to joining
// participants for their peer connections.
func NewOrchestrator(cfg config.StreamConfig, registry *Registry, store Store, users Directory, verifier Verifier, jobs PostProcessor, broadcaster Broadcaster, iceURLs []string, logger *zap.Logger) *Orchestrator {
	var ice []webrtc.ICEServer
	if len(iceURLs) > 0 {
		ice = []webrtc.ICEServer{{URLs: iceURLs}}
	}
	return &Orchestrator{
		cfg:         cfg,
		registry:    registry,
		store:       store,
		users:       users,
		verifier:    verifier,
		jobs:        jobs,
		broadcaster: broadcaster,
		relay:       NewRelay(broadcaster),
		iceServers:  ice,
		ingestBase:  "rtmp://ingest.fanz.live/live",
		logger:      logger,
	}
}

// Registry returns the session registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// ICEServers returns the ICE configuration advertised to participants.
func (o *Orchestrator) ICEServers() []webrtc.ICEServer { return o.iceServers }

// CreateStream is the REST-facing creation path (no co-stars, verification
// required).
func (o *Orchestrator) CreateStream(ctx context.Context, hostID uuid.UUID, title, description string, visibility models.StreamVisibility, priceCents int) (*models.Stream, error) {
	_, stream, err := o.CreateStreamSession(ctx, hostID, CreateConfig{
		Title:               title,
		Description:         description,
		Visibility:          visibility,
		PriceCents:          priceCents,
		RequireVerification: true,
	})
	return stream, err
}

// CreateStreamSession creates the durable stream row and registers the
// runtime session in scheduled state. The verification gate runs before any
// durable write, so a rejected host leaves no row behind.
func (o *Orchestrator) CreateStreamSession(ctx context.Context, hostID uuid.UUID, cfg CreateConfig) (*Session, *models.Stream, error) {
	host, err := o.users.GetUser(ctx, hostID)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup host: %w", err)
	}
	if host == nil {
		return nil, nil, fmt.Errorf("host %s: %w", hostID, ErrNotFound)
	}
	if cfg.RequireVerification {
		ok, err := o.verifier.CanBroadcast(ctx, hostID)
		if err != nil {
			return nil, nil, fmt.Errorf("verify host: %w", err)
		}
		if !ok {
			return nil, nil, fmt.Errorf("host %s: %w", hostID, ErrVerificationRequired)
		}
	}

	// Validate every co-star before creating anything durable.
	coStars := make([]*models.User, 0, len(cfg.CoStarIDs))
	for _, id := range cfg.CoStarIDs {
		u, err := o.users.GetUser(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("lookup co-star: %w", err)
		}
		if u == nil {
			return nil, nil, fmt.Errorf("co-star %s: %w", id, ErrNotFound)
		}
		if cfg.RequireVerification {
			ok, err := o.verifier.CanBroadcast(ctx, id)
			if err != nil {
				return nil, nil, fmt.Errorf("verify co-star: %w", err)
			}
			if !ok {
				return nil, nil, fmt.Errorf("co-star %s: %w", id, ErrVerificationRequired)
			}
		}
	}

	if cfg.Visibility == "" {
		cfg.Visibility = models.VisibilityPublic
	}
	streamKey := utils.GenerateStreamKey(hostID.String())
	stream, err := o.store.CreateStream(ctx, hostID, cfg.Title, cfg.Description, cfg.Visibility, cfg.PriceCents, streamKey)
	if err != nil {
		return nil, nil, fmt.Errorf("create stream: %w", err)
	}
	if err := o.store.AddParticipant(ctx, stream.ID, hostID, models.ParticipantHost, host.IsVerified); err != nil {
		return nil, nil, fmt.Errorf("add host participant: %w", err)
	}

	sess := newSession(stream.ID, hostID, streamKey, cfg.Title, o.cfg.ChatBufferSize)
	now := time.Now()
	sess.mu.Lock()
	sess.participants[hostID] = &Participant{
		UserID:       hostID,
		DisplayName:  host.DisplayName,
		Role:         models.ParticipantHost,
		Verified:     host.IsVerified,
		AudioEnabled: true,
		VideoEnabled: true,
		JoinedAt:     now,
	}
	sess.mu.Unlock()

	for _, u := range coStars {
		if err := o.store.AddParticipant(ctx, stream.ID, u.ID, models.ParticipantCoStar, u.IsVerified); err != nil {
			return nil, nil, fmt.Errorf("add co-star participant: %w", err)
		}
		sess.mu.Lock()
		sess.participants[u.ID] = &Participant{
			UserID:       u.ID,
			DisplayName:  u.DisplayName,
			Role:         models.ParticipantCoStar,
			Verified:     u.IsVerified,
			AudioEnabled: true,
			VideoEnabled: true,
			JoinedAt:     now,
		}
		sess.mu.Unlock()
	}

	o.registry.Put(sess)
	o.logger.Info("stream session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("stream_id", stream.ID.String()),
		zap.String("host_id", hostID.String()))
	return sess, stream, nil
}

// StreamSettings carries the mutable stream fields for an update; nil fields
// are left as they are.
type StreamSettings struct {
	Title       *string
	Description *string
	Visibility  *models.StreamVisibility
	PriceCents  *int
}

// UpdateStreamSettings changes a stream's presentation settings. Host only;
// the audience is told so player UIs can refresh.
func (o *Orchestrator) UpdateStreamSettings(ctx context.Context, sessionID, callerID uuid.UUID, settings StreamSettings) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if sess.HostID != callerID {
		return fmt.Errorf("update settings: %w", ErrUnauthorized)
	}
	if settings.Visibility != nil {
		switch *settings.Visibility {
		case models.VisibilityPublic, models.VisibilitySubscriber, models.VisibilityPrivate:
		default:
			return fmt.Errorf("visibility %q: %w", *settings.Visibility, ErrInvalidOperation)
		}
	}
	if settings.PriceCents != nil && *settings.PriceCents < 0 {
		return fmt.Errorf("negative price: %w", ErrInvalidOperation)
	}

	if err := o.store.UpdateStreamSettings(ctx, sess.StreamID, settings.Title, settings.Description, settings.Visibility, settings.PriceCents); err != nil {
		return fmt.Errorf("update stream settings: %w", err)
	}
	if settings.Title != nil {
		sess.mu.Lock()
		sess.Title = *settings.Title
		sess.mu.Unlock()
	}

	payload := map[string]interface{}{"stream_id": sess.StreamID}
	if settings.Title != nil {
		payload["title"] = *settings.Title
	}
	if settings.Visibility != nil {
		payload["visibility"] = *settings.Visibility
	}
	if settings.PriceCents != nil {
		payload["price_cents"] = *settings.PriceCents
	}
	o.broadcaster.Broadcast(sessionID, EventStreamSettingsUpdated, payload)
	return nil
}

// StartStream transitions scheduled→live, starts the recording and begins
// analytics sampling. Only the host may start; a second start is rejected.
func (o *Orchestrator) StartStream(ctx context.Context, sessionID, callerID uuid.UUID) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if sess.HostID != callerID {
		return fmt.Errorf("start stream: %w", ErrUnauthorized)
	}

	now := time.Now()
	sess.mu.Lock()
	if sess.status != models.StreamScheduled {
		st := sess.status
		sess.mu.Unlock()
		return fmt.Errorf("start from %s: %w", st, ErrInvalidState)
	}
	sess.status = models.StreamLive
	sess.startedAt = now
	sess.sampleRetentionLocked()
	sess.mu.Unlock()

	if err := o.store.MarkStreamLive(ctx, sess.StreamID, now); err != nil {
		return fmt.Errorf("mark live: %w", err)
	}

	ingestURL := fmt.Sprintf("%s/%s", o.ingestBase, sess.StreamKey)
	rec, err := o.store.CreateRecording(ctx, sess.StreamID, ingestURL)
	if err != nil {
		// The broadcast still goes out; recording is recoverable, the
		// lifecycle transition is not.
		o.logger.Error("start recording", zap.Error(err), zap.String("stream_id", sess.StreamID.String()))
	} else {
		sess.mu.Lock()
		sess.recordingID = rec.ID
		sess.ingestURL = ingestURL
		sess.mu.Unlock()
	}

	o.broadcaster.Broadcast(sessionID, EventStreamStarted, map[string]interface{}{
		"stream_id":  sess.StreamID,
		"started_at": now,
	})
	o.logger.Info("stream started", zap.String("stream_id", sess.StreamID.String()))
	return nil
}

// EndStream transitions live→ended, stops the recording, persists the
// analytics snapshot and queues post-processing. The session stays in the
// registry until the retention sweep.
func (o *Orchestrator) EndStream(ctx context.Context, sessionID, callerID uuid.UUID) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if sess.HostID != callerID {
		return fmt.Errorf("end stream: %w", ErrUnauthorized)
	}

	now := time.Now()
	sess.mu.Lock()
	if sess.status != models.StreamLive {
		st := sess.status
		sess.mu.Unlock()
		return fmt.Errorf("end from %s: %w", st, ErrInvalidState)
	}
	sess.status = models.StreamEnded
	sess.endedAt = now
	analytics := sess.snapshotLocked()
	recordingID := sess.recordingID
	ingestURL := sess.ingestURL
	sess.mu.Unlock()

	if err := o.store.MarkStreamEnded(ctx, sess.StreamID, now); err != nil {
		return fmt.Errorf("mark ended: %w", err)
	}
	if err := o.store.SaveAnalyticsSnapshot(ctx, sess.StreamID, analytics); err != nil {
		o.logger.Error("persist analytics snapshot", zap.Error(err), zap.String("stream_id", sess.StreamID.String()))
	}

	if recordingID != uuid.Nil {
		if err := o.store.SetRecordingStatus(ctx, recordingID, models.RecordingStatusProcessing); err != nil {
			o.logger.Error("mark recording processing", zap.Error(err))
		}
		if o.jobs != nil {
			if err := o.jobs.EnqueuePostProcess(ctx, recordingID, sess.StreamID, ingestURL); err != nil {
				o.logger.Error("enqueue post-processing", zap.Error(err), zap.String("recording_id", recordingID.String()))
			}
		}
	}

	o.broadcaster.Broadcast(sessionID, EventStreamEnded, map[string]interface{}{
		"stream_id": sess.StreamID,
		"ended_at":  now,
		"analytics": analytics,
	})
	o.logger.Info("stream ended",
		zap.String("stream_id", sess.StreamID.String()),
		zap.Int("peak_viewers", analytics.PeakViewers),
		zap.Int("gift_value_cents", analytics.GiftValueCents))
	return nil
}

// AddCoStar invites a user on camera. Host only; the verification gate runs
// before the durable row is written.
func (o *Orchestrator) AddCoStar(ctx context.Context, sessionID, callerID, userID uuid.UUID, requireVerification bool) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if sess.HostID != callerID {
		return fmt.Errorf("invite co-star: %w", ErrUnauthorized)
	}
	user, err := o.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup co-star: %w", err)
	}
	if user == nil {
		return fmt.Errorf("co-star %s: %w", userID, ErrNotFound)
	}
	if requireVerification {
		ok, err := o.verifier.CanBroadcast(ctx, userID)
		if err != nil {
			return fmt.Errorf("verify co-star: %w", err)
		}
		if !ok {
			return fmt.Errorf("co-star %s: %w", userID, ErrVerificationRequired)
		}
	}

	if err := o.store.AddParticipant(ctx, sess.StreamID, userID, models.ParticipantCoStar, user.IsVerified); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}

	now := time.Now()
	sess.mu.Lock()
	// A viewer promoted to co-star leaves the viewer set first.
	sess.removeViewerInternalLocked(userID)
	sess.participants[userID] = &Participant{
		UserID:       userID,
		DisplayName:  user.DisplayName,
		Role:         models.ParticipantCoStar,
		Verified:     user.IsVerified,
		AudioEnabled: true,
		VideoEnabled: true,
		JoinedAt:     now,
	}
	sess.mu.Unlock()

	o.broadcaster.SendToUser(sessionID, userID, EventCoStarInvitation, map[string]interface{}{
		"stream_id": sess.StreamID,
		"host_id":   sess.HostID,
	})
	o.broadcaster.Broadcast(sessionID, EventCoStarJoined, map[string]interface{}{
		"user_id":      userID,
		"display_name": user.DisplayName,
	})
	return nil
}

// RemoveCoStar removes a co-star. The host can never be removed.
func (o *Orchestrator) RemoveCoStar(ctx context.Context, sessionID, callerID, userID uuid.UUID) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if sess.HostID != callerID {
		return fmt.Errorf("remove co-star: %w", ErrUnauthorized)
	}
	if userID == sess.HostID {
		return fmt.Errorf("cannot remove the host: %w", ErrInvalidOperation)
	}

	sess.mu.Lock()
	if _, ok := sess.participants[userID]; !ok {
		sess.mu.Unlock()
		return fmt.Errorf("participant %s: %w", userID, ErrNotFound)
	}
	delete(sess.participants, userID)
	sess.mu.Unlock()

	if err := o.store.RemoveParticipant(ctx, sess.StreamID, userID); err != nil {
		o.logger.Error("remove participant row", zap.Error(err), zap.String("user_id", userID.String()))
	}

	o.broadcaster.SendToUser(sessionID, userID, EventRemovedFromStream, map[string]interface{}{
		"stream_id": sess.StreamID,
	})
	// Removal revokes the user's signaling access; their connections close
	// so they stop receiving session events.
	o.broadcaster.CloseUser(sessionID, userID)
	o.broadcaster.Broadcast(sessionID, EventCoStarLeft, map[string]interface{}{
		"user_id": userID,
	})
	return nil
}

// AddViewer registers an audience member on a live stream and updates the
// viewer counters. Participants are never tracked as viewers.
func (o *Orchestrator) AddViewer(ctx context.Context, sessionID, userID uuid.UUID) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	now := time.Now()
	sess.mu.Lock()
	if sess.status != models.StreamLive {
		st := sess.status
		sess.mu.Unlock()
		return fmt.Errorf("join %s stream: %w", st, ErrInvalidState)
	}
	if _, ok := sess.participants[userID]; ok {
		sess.mu.Unlock()
		return nil
	}
	sess.addViewerLocked(userID, now)
	count := sess.analytics.CurrentViewers
	sess.mu.Unlock()

	o.broadcaster.Broadcast(sessionID, EventViewerCountUpdated, map[string]int{"count": count})
	return nil
}

// RemoveViewer drops an audience member, folds their watch time into the
// running average and persists the watch-time record.
func (o *Orchestrator) RemoveViewer(ctx context.Context, sessionID, userID uuid.UUID) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	now := time.Now()
	sess.mu.Lock()
	v, seconds := sess.removeViewerLocked(userID, now)
	count := sess.analytics.CurrentViewers
	sess.mu.Unlock()
	if v == nil {
		return fmt.Errorf("viewer %s: %w", userID, ErrNotFound)
	}

	if err := o.store.SaveWatchTime(ctx, &models.WatchTimeRecord{
		StreamID:     sess.StreamID,
		UserID:       userID,
		JoinedAt:     v.JoinedAt,
		LeftAt:       now,
		WatchSeconds: seconds,
	}); err != nil {
		o.logger.Error("persist watch time", zap.Error(err), zap.String("user_id", userID.String()))
	}

	o.broadcaster.Broadcast(sessionID, EventViewerCountUpdated, map[string]int{"count": count})
	return nil
}

// SendChatMessage appends a chat message after moderation checks and fans it
// out. Blocked text never reaches the buffer or the audience.
func (o *Orchestrator) SendChatMessage(ctx context.Context, sessionID, userID uuid.UUID, text string, msgType models.ChatMessageType) (*models.ChatMessage, error) {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if msgType == "" {
		msgType = models.ChatText
	}

	lower := strings.ToLower(text)
	for _, w := range o.cfg.BlockedWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return nil, fmt.Errorf("blocked term: %w", ErrContentModerated)
		}
	}

	displayName := ""
	if u, err := o.users.GetUser(ctx, userID); err == nil && u != nil {
		displayName = u.DisplayName
	}

	now := time.Now()
	msg := models.ChatMessage{
		ID:          uuid.New(),
		StreamID:    sess.StreamID,
		UserID:      userID,
		DisplayName: displayName,
		Text:        text,
		Type:        msgType,
		CreatedAt:   now,
	}

	sess.mu.Lock()
	if until, mutedUser := sess.muted[userID]; mutedUser {
		if until.IsZero() || now.Before(until) {
			sess.mu.Unlock()
			return nil, fmt.Errorf("user is muted: %w", ErrUnauthorized)
		}
		// timed mute has lapsed
		delete(sess.muted, userID)
	}
	if p, ok := sess.participants[userID]; ok && msg.DisplayName == "" {
		msg.DisplayName = p.DisplayName
	}
	sess.appendChatLocked(msg, o.cfg.ChatBurstWindow)
	sess.mu.Unlock()

	// Chat is ephemeral state; persistence is best-effort and does not gate
	// the broadcast.
	if err := o.store.SaveChatMessage(ctx, &msg); err != nil {
		o.logger.Warn("persist chat message", zap.Error(err))
	}
	o.broadcaster.Broadcast(sessionID, EventChatMessage, msg)
	return &msg, nil
}

// SendGift records a gift and its platform transaction, then broadcasts it.
// The transaction must be durable before anyone sees the gift, so a credit is
// never announced that was not recorded. Large gifts auto-create a highlight.
func (o *Orchestrator) SendGift(ctx context.Context, sessionID, senderID, receiverID uuid.UUID, giftType string, unitValue, quantity int, message string) (*models.Gift, error) {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if unitValue <= 0 || quantity <= 0 {
		return nil, fmt.Errorf("gift value must be positive: %w", ErrInvalidOperation)
	}
	if sess.Participant(receiverID) == nil {
		return nil, fmt.Errorf("receiver %s is not on this stream: %w", receiverID, ErrNotFound)
	}

	senderName := ""
	if u, err := o.users.GetUser(ctx, senderID); err == nil && u != nil {
		senderName = u.DisplayName
	}

	now := time.Now()
	totalValue := unitValue * quantity
	gift := models.Gift{
		ID:         uuid.New(),
		StreamID:   sess.StreamID,
		SenderID:   senderID,
		SenderName: senderName,
		ReceiverID: receiverID,
		GiftType:   giftType,
		UnitValue:  unitValue,
		Quantity:   quantity,
		TotalValue: totalValue,
		Message:    message,
		CreatedAt:  now,
	}
	txn := models.Transaction{
		GiftID:      gift.ID,
		PayerID:     senderID,
		PayeeID:     receiverID,
		GrossCents:  totalValue,
		AmountCents: int(float64(totalValue) * o.cfg.GiftCreatorShare),
	}

	if err := o.store.SaveGift(ctx, &gift, &txn); err != nil {
		return nil, fmt.Errorf("persist gift: %w", err)
	}

	sess.mu.Lock()
	sess.gifts = append(sess.gifts, gift)
	sess.analytics.TotalGifts++
	sess.analytics.GiftValueCents += totalValue
	offset := sess.offsetSecondsLocked(now)
	sess.mu.Unlock()

	o.broadcaster.Broadcast(sessionID, EventGiftReceived, map[string]interface{}{
		"gift":      gift,
		"animation": GiftAnimation(giftType),
	})

	if totalValue >= o.cfg.GiftHighlightThresholdCents {
		score := totalValue / 100
		if score > 100 {
			score = 100
		}
		start := offset - 10
		if start < 0 {
			start = 0
		}
		o.createHighlight(ctx, sess, models.Highlight{
			Title:        fmt.Sprintf("Big gift from %s", senderName),
			StartSeconds: start,
			EndSeconds:   offset + 10,
			Type:         models.HighlightPeakGifts,
			Score:        score,
		})
	}
	return &gift, nil
}

// SendReaction bumps the reaction tally and persists an event stamped
// relative to stream start.
func (o *Orchestrator) SendReaction(ctx context.Context, sessionID, userID uuid.UUID, reactionType string, intensity int) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if intensity <= 0 {
		intensity = 1
	}

	now := time.Now()
	sess.mu.Lock()
	sess.reactions[reactionType] += intensity
	sess.analytics.TotalReactions++
	offset := sess.offsetSecondsLocked(now)
	sess.mu.Unlock()

	if err := o.store.SaveReaction(ctx, &models.Reaction{
		StreamID:      sess.StreamID,
		UserID:        userID,
		Type:          reactionType,
		Intensity:     intensity,
		OffsetSeconds: offset,
		CreatedAt:     now,
	}); err != nil {
		o.logger.Warn("persist reaction", zap.Error(err))
	}

	o.broadcaster.Broadcast(sessionID, EventReaction, map[string]interface{}{
		"user_id":   userID,
		"type":      reactionType,
		"intensity": intensity,
	})
	return nil
}

// HandleSignaling relays a WebRTC payload from one participant to all others.
// The payload is never inspected.
func (o *Orchestrator) HandleSignaling(sessionID, fromUserID uuid.UUID, signal []byte) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if sess.Participant(fromUserID) == nil {
		return fmt.Errorf("signaling from non-participant: %w", ErrUnauthorized)
	}
	o.relay.Forward(sess, fromUserID, signal)
	return nil
}

// ToggleAudio flips a participant's audio flag and announces it.
func (o *Orchestrator) ToggleAudio(sessionID, userID uuid.UUID, enabled bool) error {
	return o.toggleMedia(sessionID, userID, enabled, true)
}

// ToggleVideo flips a participant's video flag and announces it.
func (o *Orchestrator) ToggleVideo(sessionID, userID uuid.UUID, enabled bool) error {
	return o.toggleMedia(sessionID, userID, enabled, false)
}

func (o *Orchestrator) toggleMedia(sessionID, userID uuid.UUID, enabled, audio bool) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	sess.mu.Lock()
	p, ok := sess.participants[userID]
	if !ok {
		sess.mu.Unlock()
		return fmt.Errorf("participant %s: %w", userID, ErrNotFound)
	}
	event := EventVideoToggled
	if audio {
		p.AudioEnabled = enabled
		event = EventAudioToggled
	} else {
		p.VideoEnabled = enabled
	}
	sess.mu.Unlock()

	o.broadcaster.Broadcast(sessionID, event, map[string]interface{}{
		"user_id": userID,
		"enabled": enabled,
	})
	return nil
}

// manualHighlightScore is the fixed score for host-requested highlights.
const manualHighlightScore = 50

// RequestHighlight creates a manual highlight ending now. Host or moderator
// only; the stream must be live.
func (o *Orchestrator) RequestHighlight(ctx context.Context, sessionID, callerID uuid.UUID, title string, durationSeconds int) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if !o.canModerate(sess, callerID) {
		return fmt.Errorf("request highlight: %w", ErrUnauthorized)
	}
	if durationSeconds <= 0 {
		durationSeconds = 30
	}

	now := time.Now()
	sess.mu.Lock()
	if sess.status != models.StreamLive {
		st := sess.status
		sess.mu.Unlock()
		return fmt.Errorf("highlight on %s stream: %w", st, ErrInvalidState)
	}
	end := sess.offsetSecondsLocked(now)
	sess.mu.Unlock()

	start := end - durationSeconds
	if start < 0 {
		start = 0
	}
	if end <= start {
		end = start + 1
	}
	if title == "" {
		title = "Highlight"
	}
	o.createHighlight(ctx, sess, models.Highlight{
		Title:        title,
		StartSeconds: start,
		EndSeconds:   end,
		Type:         models.HighlightManual,
		Score:        manualHighlightScore,
	})
	return nil
}

// PinMessage pins a buffered chat message, unpinning any previous one.
func (o *Orchestrator) PinMessage(ctx context.Context, sessionID, callerID, messageID uuid.UUID) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if !o.canModerate(sess, callerID) {
		return fmt.Errorf("pin message: %w", ErrUnauthorized)
	}

	sess.mu.Lock()
	var target *models.ChatMessage
	for i := range sess.chat {
		if sess.chat[i].ID == messageID {
			target = &sess.chat[i]
			break
		}
	}
	if target == nil {
		sess.mu.Unlock()
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	previous := sess.pinnedMsgID
	if previous != uuid.Nil && previous != messageID {
		for i := range sess.chat {
			if sess.chat[i].ID == previous {
				sess.chat[i].Pinned = false
				break
			}
		}
	}
	target.Pinned = true
	sess.pinnedMsgID = messageID
	pinned := *target
	sess.mu.Unlock()

	if previous != uuid.Nil && previous != messageID {
		if err := o.store.SetMessagePinned(ctx, previous, false); err != nil {
			o.logger.Warn("unpin previous message", zap.Error(err))
		}
	}
	if err := o.store.SetMessagePinned(ctx, messageID, true); err != nil {
		o.logger.Warn("persist pinned flag", zap.Error(err))
	}

	o.broadcaster.Broadcast(sessionID, EventMessagePinned, pinned)
	return nil
}

// ModerateUser applies mute/unmute/remove to a target. Host or moderator
// only; the host can never be moderated. A positive duration makes a mute
// expire on its own; zero mutes until an explicit unmute.
func (o *Orchestrator) ModerateUser(ctx context.Context, sessionID, callerID, targetID uuid.UUID, action ModerationAction, duration time.Duration) error {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if !o.canModerate(sess, callerID) {
		return fmt.Errorf("moderate user: %w", ErrUnauthorized)
	}
	if targetID == sess.HostID {
		return fmt.Errorf("cannot moderate the host: %w", ErrInvalidOperation)
	}

	switch action {
	case ModerationMute:
		var until time.Time
		if duration > 0 {
			until = time.Now().Add(duration)
		}
		sess.mu.Lock()
		sess.muted[targetID] = until
		sess.mu.Unlock()
	case ModerationUnmute:
		sess.mu.Lock()
		delete(sess.muted, targetID)
		sess.mu.Unlock()
	case ModerationRemove:
		// The target hears about the removal before their connections close.
		o.broadcaster.SendToUser(sessionID, targetID, EventModerated, map[string]interface{}{
			"action": action,
		})
		sess.mu.Lock()
		_, isParticipant := sess.participants[targetID]
		sess.mu.Unlock()
		if isParticipant {
			// RemoveCoStar closes the target's connections itself.
			if err := o.RemoveCoStar(ctx, sessionID, sess.HostID, targetID); err != nil {
				return err
			}
		} else {
			if err := o.RemoveViewer(ctx, sessionID, targetID); err != nil {
				return err
			}
			o.broadcaster.CloseUser(sessionID, targetID)
		}
		o.broadcaster.Broadcast(sessionID, EventUserModerated, map[string]interface{}{
			"user_id": targetID,
			"action":  action,
		})
		return nil
	default:
		return fmt.Errorf("unknown moderation action %q: %w", action, ErrInvalidOperation)
	}

	o.broadcaster.SendToUser(sessionID, targetID, EventModerated, map[string]interface{}{
		"action": action,
	})
	o.broadcaster.Broadcast(sessionID, EventUserModerated, map[string]interface{}{
		"user_id": targetID,
		"action":  action,
	})
	return nil
}

// SessionAnalytics returns the live accumulator for the host.
func (o *Orchestrator) SessionAnalytics(sessionID, callerID uuid.UUID) (models.StreamAnalytics, error) {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return models.StreamAnalytics{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if sess.HostID != callerID {
		return models.StreamAnalytics{}, fmt.Errorf("analytics are host-only: %w", ErrUnauthorized)
	}
	return sess.Analytics(), nil
}

// LiveAnalytics serves the REST analytics path for streams that still have a
// runtime session.
func (o *Orchestrator) LiveAnalytics(streamID uuid.UUID) (*models.StreamAnalytics, bool) {
	sess := o.registry.GetByStreamID(streamID)
	if sess == nil {
		return nil, false
	}
	a := sess.Analytics()
	return &a, true
}

// MarkParticipantConnected flips the live-connection flag on a participant,
// used by the gateway on join and disconnect.
func (o *Orchestrator) MarkParticipantConnected(sessionID, userID uuid.UUID, connected bool) {
	sess := o.registry.Get(sessionID)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	if p, ok := sess.participants[userID]; ok {
		p.Connected = connected
	}
	sess.mu.Unlock()
}

func (o *Orchestrator) canModerate(sess *Session, userID uuid.UUID) bool {
	if userID == sess.HostID {
		return true
	}
	p := sess.Participant(userID)
	return p != nil && p.Role == models.ParticipantModerator
}

// createHighlight persists and announces a highlight. Persistence failures
// are logged, not fatal; a lost highlight never blocks the stream.
func (o *Orchestrator) createHighlight(ctx context.Context, sess *Session, h models.Highlight) {
	h.ID = uuid.New()
	h.StreamID = sess.StreamID
	h.CreatedAt = time.Now()

	sess.mu.Lock()
	sess.highlights = append(sess.highlights, h)
	sess.mu.Unlock()

	if err := o.store.SaveHighlight(ctx, &h); err != nil {
		o.logger.Warn("persist highlight", zap.Error(err), zap.String("stream_id", sess.StreamID.String()))
	}
	o.broadcaster.Broadcast(sess.ID, EventHighlightCreated, h)
}

// RunHighlightLoop runs the periodic highlight detection over live sessions
// until ctx is canceled. Each session is handled independently; a panic in
// one pass never aborts the loop.
func (o *Orchestrator) RunHighlightLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.HighlightInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.detectHighlights(ctx)
		}
	}
}

func (o *Orchestrator) detectHighlights(ctx context.Context) {
	now := time.Now()
	for _, sess := range o.registry.List() {
		func(sess *Session) {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("highlight pass panic", zap.Any("panic", r), zap.String("session_id", sess.ID.String()))
				}
			}()

			sess.mu.Lock()
			if sess.status != models.StreamLive {
				sess.mu.Unlock()
				return
			}
			offset := sess.offsetSecondsLocked(now)
			cur := sess.analytics.CurrentViewers
			peak := sess.analytics.PeakViewers

			var flagged []models.Highlight
			if cur == peak && peak > o.cfg.PeakViewerHighlightMin && peak > sess.lastPeakHighlighted {
				sess.lastPeakHighlighted = peak
				start := offset - int(o.cfg.HighlightInterval.Seconds())
				if start < 0 {
					start = 0
				}
				flagged = append(flagged, models.Highlight{
					Title:        fmt.Sprintf("Peak audience of %d", peak),
					StartSeconds: start,
					EndSeconds:   offset + 1,
					Type:         models.HighlightPeakViewers,
					Score:        80,
				})
			}

			sess.trimChatTimesLocked(now, o.cfg.ChatBurstWindow)
			if len(sess.chatTimes) > o.cfg.ChatBurstThreshold && now.Sub(sess.lastBurstHighlight) >= o.cfg.ChatBurstWindow {
				sess.lastBurstHighlight = now
				start := offset - int(o.cfg.ChatBurstWindow.Seconds())
				if start < 0 {
					start = 0
				}
				flagged = append(flagged, models.Highlight{
					Title:        "Chat is going wild",
					StartSeconds: start,
					EndSeconds:   offset + 1,
					Type:         models.HighlightAIDetected,
					Score:        70,
				})
			}
			sess.mu.Unlock()

			for _, h := range flagged {
				o.createHighlight(ctx, sess, h)
			}
		}(sess)
	}
}

// RunSweepLoop purges ended sessions past the retention window until ctx is
// canceled. Only the in-memory entry is removed.
func (o *Orchestrator) RunSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.SweepEndedSessions(time.Now())
		}
	}
}

// SweepEndedSessions removes ended sessions whose end time is older than the
// retention window.
func (o *Orchestrator) SweepEndedSessions(now time.Time) {
	for _, sess := range o.registry.List() {
		sess.mu.Lock()
		expired := sess.status == models.StreamEnded && !sess.endedAt.IsZero() && now.Sub(sess.endedAt) > o.cfg.SessionRetention
		sess.mu.Unlock()
		if expired {
			o.registry.Delete(sess.ID)
			o.logger.Info("session purged", zap.String("session_id", sess.ID.String()), zap.String("stream_id", sess.StreamID.String()))
		}
	}
}

// RunRetentionLoop samples each live session's audience once per minute for
// the retention curve, until ctx is canceled.
func (o *Orchestrator) RunRetentionLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sess := range o.registry.List() {
				sess.mu.Lock()
				if sess.status == models.StreamLive {
					sess.sampleRetentionLocked()
				}
				sess.mu.Unlock()
			}
		}
	}
}
