package models

import (
	"time"

	"github.com/google/uuid"
)

// Gift is a virtual gift sent during a stream. Values are platform minor units.
type Gift struct {
	ID         uuid.UUID `json:"id"`
	StreamID   uuid.UUID `json:"stream_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	GiftType   string    `json:"gift_type"`
	UnitValue  int       `json:"unit_value"`
	Quantity   int       `json:"quantity"`
	TotalValue int       `json:"total_value"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Transaction is the platform ledger entry created for a gift.
// AmountCents is the creator's share after the platform cut.
type Transaction struct {
	ID          uuid.UUID `json:"id"`
	GiftID      uuid.UUID `json:"gift_id"`
	PayerID     uuid.UUID `json:"payer_id"`
	PayeeID     uuid.UUID `json:"payee_id"`
	GrossCents  int       `json:"gross_cents"`
	AmountCents int       `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}
