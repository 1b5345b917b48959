package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessageType distinguishes chat message kinds.
type ChatMessageType string

const (
	ChatText         ChatMessageType = "text"
	ChatEmote        ChatMessageType = "emote"
	ChatAnnouncement ChatMessageType = "announcement"
	ChatSystem       ChatMessageType = "system"
)

// ChatMessage is one message in a stream's chat. Immutable except for Pinned.
type ChatMessage struct {
	ID          uuid.UUID       `json:"id"`
	StreamID    uuid.UUID       `json:"stream_id"`
	UserID      uuid.UUID       `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Text        string          `json:"text"`
	Type        ChatMessageType `json:"type"`
	Pinned      bool            `json:"pinned"`
	CreatedAt   time.Time       `json:"created_at"`
}
