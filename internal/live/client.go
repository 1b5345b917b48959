package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fanzlive/backend/internal/models"
)

const (
	// PingInterval / PongWait drive the heartbeat: a connection that missed
	// the previous ping is torn down by the read deadline.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxMsgSize   = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the HTTP layer
	},
}

// WSMessage is the WebSocket message envelope, inbound and outbound.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AuthFunc validates the JWT carried by the authenticate message and returns
// the claims-backed identity. The client-supplied payload is never trusted.
type AuthFunc func(token string) (userID uuid.UUID, role string, err error)

// Client is one WebSocket connection. It starts unauthenticated and outside
// any session; authenticate and join_stream/create_stream move it through
// those states.
type Client struct {
	ID        string
	UserID    uuid.UUID
	SessionID uuid.UUID
	// participant reports whether this connection joined on camera (host or
	// co-star) rather than as a viewer.
	participant bool

	hub      *Hub
	orch     *Orchestrator
	authFn   AuthFunc
	userRole string
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// ServeWs upgrades the connection and runs the client loops.
func ServeWs(hub *Hub, orch *Orchestrator, authFn AuthFunc, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			ID:     uuid.New().String(),
			hub:    hub,
			orch:   orch,
			authFn: authFn,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			logger: logger,
		}
		go client.writePump()
		client.reply(EventConnectionEstablished, map[string]string{"connection_id": client.ID})
		client.readPump()
	}
}

// reply queues a message for this connection only.
func (c *Client) reply(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

func (c *Client) replyError(err error) {
	c.reply(EventError, map[string]string{"error": err.Error()})
}

func (c *Client) readPump() {
	defer func() {
		c.leaveSession(context.Background())
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		c.dispatch(context.Background(), msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, msg WSMessage) {
	if msg.Event == "authenticate" {
		c.handleAuthenticate(msg.Data)
		return
	}
	if c.UserID == uuid.Nil {
		c.replyError(errors.New("authentication required"))
		return
	}

	var err error
	switch msg.Event {
	case "create_stream":
		err = c.handleCreateStream(ctx, msg.Data)
	case "join_stream":
		err = c.handleJoinStream(ctx, msg.Data)
	case "leave_stream":
		c.leaveSession(ctx)
	case "start_stream":
		err = c.requireSession(func(sid uuid.UUID) error {
			return c.orch.StartStream(ctx, sid, c.UserID)
		})
	case "end_stream":
		err = c.requireSession(func(sid uuid.UUID) error {
			return c.orch.EndStream(ctx, sid, c.UserID)
		})
	case "invite_costar":
		err = c.handleInviteCoStar(ctx, msg.Data)
	case "remove_costar":
		err = c.handleRemoveCoStar(ctx, msg.Data)
	case "send_chat":
		err = c.handleSendChat(ctx, msg.Data)
	case "send_gift":
		err = c.handleSendGift(ctx, msg.Data)
	case "send_reaction":
		err = c.handleSendReaction(ctx, msg.Data)
	case "webrtc_offer", "webrtc_answer", "webrtc_ice_candidate":
		err = c.requireSession(func(sid uuid.UUID) error {
			return c.orch.HandleSignaling(sid, c.UserID, msg.Data)
		})
	case "toggle_audio":
		err = c.handleToggle(msg.Data, true)
	case "toggle_video":
		err = c.handleToggle(msg.Data, false)
	case "update_stream_settings":
		err = c.handleUpdateSettings(ctx, msg.Data)
	case "request_highlight":
		err = c.handleRequestHighlight(ctx, msg.Data)
	case "get_stream_analytics":
		err = c.handleAnalytics()
	case "pin_message":
		err = c.handlePinMessage(ctx, msg.Data)
	case "moderate_user":
		err = c.handleModerateUser(ctx, msg.Data)
	default:
		// unknown events are ignored, matching forward compatibility with
		// newer clients
	}
	if err != nil {
		c.replyError(err)
	}
}

func (c *Client) requireSession(fn func(sessionID uuid.UUID) error) error {
	if c.SessionID == uuid.Nil {
		return errors.New("join a stream first")
	}
	return fn(c.SessionID)
}

func (c *Client) handleAuthenticate(data json.RawMessage) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" {
		c.replyError(errors.New("token required"))
		return
	}
	userID, role, err := c.authFn(payload.Token)
	if err != nil {
		c.replyError(errors.New("invalid token"))
		return
	}
	c.UserID = userID
	c.userRole = role
	c.reply(EventAuthenticated, map[string]interface{}{
		"user_id": userID,
		"role":    role,
	})
}

func (c *Client) handleCreateStream(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		Title        string      `json:"title"`
		Description  string      `json:"description"`
		Visibility   string      `json:"visibility"`
		PriceInCents int         `json:"price_in_cents"`
		CoStarIDs    []uuid.UUID `json:"co_star_ids"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid create_stream payload")
	}
	if c.SessionID != uuid.Nil {
		return errors.New("already in a stream")
	}
	sess, stream, err := c.orch.CreateStreamSession(ctx, c.UserID, CreateConfig{
		Title:               payload.Title,
		Description:         payload.Description,
		Visibility:          models.StreamVisibility(payload.Visibility),
		PriceCents:          payload.PriceInCents,
		CoStarIDs:           payload.CoStarIDs,
		RequireVerification: true,
	})
	if err != nil {
		return err
	}

	c.SessionID = sess.ID
	c.participant = true
	c.hub.Register(c)
	c.orch.MarkParticipantConnected(sess.ID, c.UserID, true)

	// The stream key is an ingest capability; only the host ever sees it.
	c.reply(EventStreamCreated, map[string]interface{}{
		"session_id": sess.ID,
		"stream_id":  stream.ID,
		"stream_key": sess.StreamKey,
		"ice_servers": c.orch.ICEServers(),
	})
	return nil
}

func (c *Client) handleJoinStream(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		SessionID uuid.UUID `json:"session_id"`
		StreamID  uuid.UUID `json:"stream_id"`
		Role      string    `json:"role"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid join_stream payload")
	}
	if c.SessionID != uuid.Nil {
		return errors.New("already in a stream")
	}

	sess := c.orch.Registry().Get(payload.SessionID)
	if sess == nil && payload.StreamID != uuid.Nil {
		sess = c.orch.Registry().GetByStreamID(payload.StreamID)
	}
	if sess == nil {
		return ErrNotFound
	}

	if p := sess.Participant(c.UserID); p != nil {
		c.SessionID = sess.ID
		c.participant = true
		c.hub.Register(c)
		c.orch.MarkParticipantConnected(sess.ID, c.UserID, true)
		c.reply(EventJoinedAsParticipant, map[string]interface{}{
			"session_id":  sess.ID,
			"stream_id":   sess.StreamID,
			"role":        p.Role,
			"ice_servers": c.orch.ICEServers(),
		})
		return nil
	}

	if err := c.orch.AddViewer(ctx, sess.ID, c.UserID); err != nil {
		return err
	}
	c.SessionID = sess.ID
	c.participant = false
	c.hub.Register(c)
	c.reply(EventJoinedAsViewer, map[string]interface{}{
		"session_id":   sess.ID,
		"stream_id":    sess.StreamID,
		"viewer_count": sess.ViewerCount(),
		"recent_chat":  sess.RecentChat(50),
	})
	return nil
}

// leaveSession detaches the connection from its session: viewers are fully
// removed (their watch time is recorded), participants only lose the live
// connection and stay on the roster for reconnect.
func (c *Client) leaveSession(ctx context.Context) {
	if c.SessionID == uuid.Nil {
		return
	}
	if c.participant {
		c.orch.MarkParticipantConnected(c.SessionID, c.UserID, false)
	} else if err := c.orch.RemoveViewer(ctx, c.SessionID, c.UserID); err != nil && !errors.Is(err, ErrNotFound) {
		c.logger.Warn("remove viewer on leave", zap.Error(err))
	}
	c.hub.Unregister(c)
	c.SessionID = uuid.Nil
	c.participant = false
}

func (c *Client) handleInviteCoStar(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		UserID              uuid.UUID `json:"user_id"`
		RequireVerification *bool     `json:"require_verification"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid invite_costar payload")
	}
	require := true
	if payload.RequireVerification != nil {
		require = *payload.RequireVerification
	}
	return c.requireSession(func(sid uuid.UUID) error {
		if err := c.orch.AddCoStar(ctx, sid, c.UserID, payload.UserID, require); err != nil {
			return err
		}
		c.reply(EventCoStarInvited, map[string]interface{}{"user_id": payload.UserID})
		return nil
	})
}

func (c *Client) handleRemoveCoStar(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid remove_costar payload")
	}
	return c.requireSession(func(sid uuid.UUID) error {
		if err := c.orch.RemoveCoStar(ctx, sid, c.UserID, payload.UserID); err != nil {
			return err
		}
		c.reply(EventCoStarRemoved, map[string]interface{}{"user_id": payload.UserID})
		return nil
	})
}

func (c *Client) handleSendChat(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		Message     string `json:"message"`
		MessageType string `json:"message_type"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Message == "" {
		return errors.New("invalid send_chat payload")
	}
	return c.requireSession(func(sid uuid.UUID) error {
		_, err := c.orch.SendChatMessage(ctx, sid, c.UserID, payload.Message, models.ChatMessageType(payload.MessageType))
		return err
	})
}

func (c *Client) handleSendGift(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		ReceiverID uuid.UUID `json:"receiver_id"`
		GiftType   string    `json:"gift_type"`
		GiftValue  int       `json:"gift_value"`
		Quantity   int       `json:"quantity"`
		Message    string    `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid send_gift payload")
	}
	if payload.Quantity == 0 {
		payload.Quantity = 1
	}
	return c.requireSession(func(sid uuid.UUID) error {
		_, err := c.orch.SendGift(ctx, sid, c.UserID, payload.ReceiverID, payload.GiftType, payload.GiftValue, payload.Quantity, payload.Message)
		return err
	})
}

func (c *Client) handleSendReaction(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		ReactionType string `json:"reaction_type"`
		Intensity    int    `json:"intensity"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ReactionType == "" {
		return errors.New("invalid send_reaction payload")
	}
	return c.requireSession(func(sid uuid.UUID) error {
		return c.orch.SendReaction(ctx, sid, c.UserID, payload.ReactionType, payload.Intensity)
	})
}

func (c *Client) handleToggle(data json.RawMessage, audio bool) error {
	var payload struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid toggle payload")
	}
	return c.requireSession(func(sid uuid.UUID) error {
		if audio {
			return c.orch.ToggleAudio(sid, c.UserID, payload.Enabled)
		}
		return c.orch.ToggleVideo(sid, c.UserID, payload.Enabled)
	})
}

func (c *Client) handleUpdateSettings(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Visibility  *string `json:"visibility"`
		PriceCents  *int    `json:"price_cents"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid update_stream_settings payload")
	}
	settings := StreamSettings{
		Title:       payload.Title,
		Description: payload.Description,
		PriceCents:  payload.PriceCents,
	}
	if payload.Visibility != nil {
		v := models.StreamVisibility(*payload.Visibility)
		settings.Visibility = &v
	}
	return c.requireSession(func(sid uuid.UUID) error {
		return c.orch.UpdateStreamSettings(ctx, sid, c.UserID, settings)
	})
}

func (c *Client) handleRequestHighlight(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		Title    string `json:"title"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid request_highlight payload")
	}
	return c.requireSession(func(sid uuid.UUID) error {
		return c.orch.RequestHighlight(ctx, sid, c.UserID, payload.Title, payload.Duration)
	})
}

func (c *Client) handleAnalytics() error {
	return c.requireSession(func(sid uuid.UUID) error {
		a, err := c.orch.SessionAnalytics(sid, c.UserID)
		if err != nil {
			return err
		}
		c.reply(EventAnalytics, a)
		return nil
	})
}

func (c *Client) handlePinMessage(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		MessageID uuid.UUID `json:"message_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid pin_message payload")
	}
	return c.requireSession(func(sid uuid.UUID) error {
		return c.orch.PinMessage(ctx, sid, c.UserID, payload.MessageID)
	})
}

func (c *Client) handleModerateUser(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		UserID uuid.UUID `json:"user_id"`
		Action string    `json:"action"`
		// Duration (seconds) makes a mute temporary; 0 mutes until unmute.
		Duration int `json:"duration"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("invalid moderate_user payload")
	}
	return c.requireSession(func(sid uuid.UUID) error {
		return c.orch.ModerateUser(ctx, sid, c.UserID, payload.UserID, ModerationAction(payload.Action), time.Duration(payload.Duration)*time.Second)
	})
}
