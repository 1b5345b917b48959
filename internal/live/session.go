package live

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fanzlive/backend/internal/models"
)

// Participant is a runtime host or co-star with capture controls.
type Participant struct {
	UserID       uuid.UUID              `json:"user_id"`
	DisplayName  string                 `json:"display_name"`
	Role         models.ParticipantRole `json:"role"`
	Verified     bool                   `json:"verified"`
	AudioEnabled bool                   `json:"audio_enabled"`
	VideoEnabled bool                   `json:"video_enabled"`
	Connected    bool                   `json:"connected"`
	JoinedAt     time.Time              `json:"joined_at"`
}

// Viewer is a runtime audience member.
type Viewer struct {
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Session is the runtime state of one broadcast. It is owned by the Registry;
// all mutation happens through the Orchestrator under mu. The durable stream
// row shares StreamID.
type Session struct {
	ID        uuid.UUID
	StreamID  uuid.UUID
	HostID    uuid.UUID
	StreamKey string
	Title     string

	mu        sync.Mutex
	status    models.StreamStatus
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time

	participants map[uuid.UUID]*Participant
	viewers      map[uuid.UUID]*Viewer
	chat         []models.ChatMessage
	chatTimes    []time.Time
	gifts        []models.Gift
	reactions    map[string]int
	highlights   []models.Highlight
	analytics    models.StreamAnalytics
	// muted maps a muted user to the mute's expiry; the zero time means
	// muted until an explicit unmute.
	muted       map[uuid.UUID]time.Time
	pinnedMsgID uuid.UUID

	recordingID  uuid.UUID
	recordingURL string
	ingestURL    string

	// completedWatches counts viewer sessions folded into AvgWatchSeconds.
	completedWatches int
	// lastPeakHighlighted is the peak value already flagged, so a new
	// peak_viewers highlight needs the peak to rise again.
	lastPeakHighlighted int
	// lastBurstHighlight is when the last chat-burst highlight fired.
	lastBurstHighlight time.Time

	chatLimit int
}

func newSession(streamID, hostID uuid.UUID, streamKey, title string, chatLimit int) *Session {
	return &Session{
		ID:           uuid.New(),
		StreamID:     streamID,
		HostID:       hostID,
		StreamKey:    streamKey,
		Title:        title,
		status:       models.StreamScheduled,
		createdAt:    time.Now(),
		participants: make(map[uuid.UUID]*Participant),
		viewers:      make(map[uuid.UUID]*Viewer),
		reactions:    make(map[string]int),
		muted:        make(map[uuid.UUID]time.Time),
		chatLimit:    chatLimit,
	}
}

// Status returns the lifecycle state.
func (s *Session) Status() models.StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StartedAt returns the live-transition time (zero until live).
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// EndedAt returns the end time (zero until ended).
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Analytics returns a copy of the live accumulator.
func (s *Session) Analytics() models.StreamAnalytics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() models.StreamAnalytics {
	a := s.analytics
	a.RetentionCurve = append([]int(nil), s.analytics.RetentionCurve...)
	return a
}

// Participant returns the runtime participant for a user, or nil.
func (s *Session) Participant(userID uuid.UUID) *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[userID]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// ParticipantIDs returns the user ids of all current participants.
func (s *Session) ParticipantIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.participants))
	for id := range s.participants {
		out = append(out, id)
	}
	return out
}

// ViewerCount returns the current audience size.
func (s *Session) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// RecentChat returns up to limit of the newest buffered messages, oldest first.
func (s *Session) RecentChat(limit int) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.chat)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]models.ChatMessage, n)
	copy(out, s.chat[len(s.chat)-n:])
	return out
}

// Highlights returns a copy of the highlight list.
func (s *Session) Highlights() []models.Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Highlight(nil), s.highlights...)
}

// appendChatLocked appends a message, keeping the buffer bounded and the
// burst-detection window trimmed. Caller holds mu.
func (s *Session) appendChatLocked(m models.ChatMessage, window time.Duration) {
	s.chat = append(s.chat, m)
	if s.chatLimit > 0 && len(s.chat) > s.chatLimit {
		// drop the oldest; copy keeps the backing array from growing forever
		over := len(s.chat) - s.chatLimit
		s.chat = append(s.chat[:0:0], s.chat[over:]...)
	}
	s.chatTimes = append(s.chatTimes, m.CreatedAt)
	s.trimChatTimesLocked(m.CreatedAt, window)
	s.analytics.ChatMessages++
}

func (s *Session) trimChatTimesLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(s.chatTimes) && s.chatTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		s.chatTimes = append(s.chatTimes[:0:0], s.chatTimes[i:]...)
	}
}

// addViewerLocked registers a viewer and updates the audience counters.
// Caller holds mu.
func (s *Session) addViewerLocked(userID uuid.UUID, now time.Time) {
	if _, ok := s.viewers[userID]; ok {
		return
	}
	s.viewers[userID] = &Viewer{UserID: userID, JoinedAt: now}
	s.analytics.CurrentViewers = len(s.viewers)
	s.analytics.TotalViewers++
	if s.analytics.CurrentViewers > s.analytics.PeakViewers {
		s.analytics.PeakViewers = s.analytics.CurrentViewers
	}
}

// removeViewerLocked drops a viewer and folds the completed watch time into
// the running mean. Returns the viewer and watch seconds, or nil if the user
// was not a viewer. Caller holds mu.
func (s *Session) removeViewerLocked(userID uuid.UUID, now time.Time) (*Viewer, int64) {
	v, ok := s.viewers[userID]
	if !ok {
		return nil, 0
	}
	delete(s.viewers, userID)
	s.analytics.CurrentViewers = len(s.viewers)
	watched := now.Sub(v.JoinedAt)
	if watched < 0 {
		watched = 0
	}
	seconds := int64(watched.Seconds())
	s.analytics.AvgWatchSeconds = (s.analytics.AvgWatchSeconds*float64(s.completedWatches) + float64(seconds)) / float64(s.completedWatches+1)
	s.completedWatches++
	return v, seconds
}

// removeViewerInternalLocked drops a viewer without folding watch time, used
// when promoting a viewer to participant. Caller holds mu.
func (s *Session) removeViewerInternalLocked(userID uuid.UUID) {
	if _, ok := s.viewers[userID]; ok {
		delete(s.viewers, userID)
		s.analytics.CurrentViewers = len(s.viewers)
	}
}

// sampleRetentionLocked appends the current audience size to the retention
// curve. Caller holds mu.
func (s *Session) sampleRetentionLocked() {
	s.analytics.RetentionCurve = append(s.analytics.RetentionCurve, len(s.viewers))
}

// offsetSecondsLocked returns seconds since the stream went live, clamped at
// zero. Caller holds mu.
func (s *Session) offsetSecondsLocked(now time.Time) int {
	if s.startedAt.IsZero() {
		return 0
	}
	off := int(now.Sub(s.startedAt).Seconds())
	if off < 0 {
		off = 0
	}
	return off
}
