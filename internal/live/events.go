package live

// Outbound event names sent over the gateway.
const (
	EventConnectionEstablished = "connection_established"
	EventAuthenticated         = "authenticated"
	EventStreamCreated         = "stream_created"
	EventJoinedAsParticipant   = "joined_as_participant"
	EventJoinedAsViewer        = "joined_as_viewer"
	EventStreamStarted         = "stream_started"
	EventStreamEnded           = "stream_ended"
	EventStreamSettingsUpdated = "stream_settings_updated"
	EventCoStarJoined          = "costar_joined"
	EventCoStarLeft            = "costar_left"
	EventCoStarInvited         = "costar_invited"
	EventCoStarInvitation      = "costar_invitation"
	EventCoStarRemoved         = "costar_removed"
	EventRemovedFromStream     = "removed_from_stream"
	EventChatMessage           = "chat_message"
	EventGiftReceived          = "gift_received"
	EventReaction              = "reaction"
	EventViewerCountUpdated    = "viewer_count_updated"
	EventWebRTCSignal          = "webrtc_signal"
	EventAudioToggled          = "audio_toggled"
	EventVideoToggled          = "video_toggled"
	EventHighlightCreated      = "highlight_created"
	EventAnalytics             = "analytics"
	EventMessagePinned         = "message_pinned"
	EventUserModerated         = "user_moderated"
	EventModerated             = "moderated"
	EventError                 = "error"
)

// giftAnimations maps gift types to the client-side animation hint sent with
// gift_received.
var giftAnimations = map[string]string{
	"heart":     "hearts_float",
	"rose":      "rose_petals",
	"diamond":   "diamond_sparkle",
	"rocket":    "rocket_launch",
	"fireworks": "fireworks_burst",
}

// GiftAnimation returns the animation hint for a gift type.
func GiftAnimation(giftType string) string {
	if a, ok := giftAnimations[giftType]; ok {
		return a
	}
	return "gift_pop"
}
