package message

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// TypePrivate is the only inbound type with special handling.
const TypePrivate = "private"

// Inbound is a message received from a client.
type Inbound struct {
	Type    string `json:"type,omitempty"`
	To      string `json:"to,omitempty"`
	Message string `json:"message"`
}

// PrivateRequest is a structurally complete direct message.
type PrivateRequest struct {
	To      string `validate:"required"`
	Message string `validate:"required"`
}

var validate = validator.New()

// UnmarshalJSON accepts any JSON value for type and to. Only the string
// "private" selects direct delivery; a non-string to leaves the recipient empty.
func (in *Inbound) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    json.RawMessage `json:"type"`
		To      json.RawMessage `json:"to"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	typ, ok := rawString(raw.Type)
	if !ok && len(raw.Type) > 0 && string(raw.Type) != "null" {
		typ = string(raw.Type)
	}
	to, _ := rawString(raw.To)

	*in = Inbound{Type: typ, To: to, Message: raw.Message}
	return nil
}

func rawString(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

// DecodeInbound parses a client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return in, nil
}

// IsPrivate reports whether the message asks for direct delivery.
func (in Inbound) IsPrivate() bool {
	return in.Type == TypePrivate
}

// PrivateRequest returns the direct message if both recipient and body are present.
func (in Inbound) PrivateRequest() (PrivateRequest, bool) {
	req := PrivateRequest{To: in.To, Message: in.Message}
	if err := validate.Struct(req); err != nil {
		return PrivateRequest{}, false
	}
	return req, true
}
