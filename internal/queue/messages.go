package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// TypeRenew asks the worker to run a renewal pass.
const TypeRenew = "renewal.run"

// RenewRequest is the body of a TypeRenew message.
type RenewRequest struct {
	Cadence     string    `json:"cadence"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewMessage wraps body as a message of type typ.
func NewMessage(typ string, body any) (Message, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	return Message{Type: typ, Body: raw}, nil
}

// Decode unmarshals msg's body into v after checking its type.
func (m Message) Decode(typ string, v any) error {
	if m.Type != typ {
		return fmt.Errorf("message type %q, want %q", m.Type, typ)
	}
	return json.Unmarshal(m.Body, v)
}
