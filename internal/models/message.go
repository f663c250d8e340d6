package models

import "time"

// InboundMessage is one customer message as handed over by a messaging transport.
type InboundMessage struct {
	Text       string    `json:"text" validate:"required"`
	UserID     string    `json:"userId" validate:"required,max=128"`
	Platform   string    `json:"platform,omitempty" validate:"omitempty,max=32"`
	FormatHint string    `json:"formatHint,omitempty" validate:"omitempty,oneof=plain markdown rich"`
	ReceivedAt time.Time `json:"receivedAt"`
}
