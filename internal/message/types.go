package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind discriminates outbound messages.
type Kind string

const (
	KindPublic      Kind = "public"
	KindPrivate     Kind = "private"
	KindPrivateSent Kind = "private_sent"
	KindSystem      Kind = "system"
	KindUserList    Kind = "user_list"
	KindError       Kind = "error"
)

// TimeLayout is the wire timestamp format (second precision).
const TimeLayout = "15:04:05"

// Errors
var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrMalformed   = errors.New("malformed message")
)

// Message is a single outbound message. Only the fields relevant to Kind are encoded.
type Message struct {
	Kind      Kind
	Text      string   // "message" on the wire
	Users     []string // user_list only
	Sender    string   // private only
	Recipient string   // private_sent only
	Username  string   // public only
	Time      string   // HH:MM:SS
}

// Per-kind wire shapes.
type (
	systemWire struct {
		Type    Kind   `json:"type"`
		Message string `json:"message"`
		Time    string `json:"time"`
	}
	userListWire struct {
		Type  Kind     `json:"type"`
		Users []string `json:"users"`
		Time  string   `json:"time"`
	}
	privateWire struct {
		Type    Kind   `json:"type"`
		Sender  string `json:"sender"`
		Message string `json:"message"`
		Time    string `json:"time"`
	}
	privateSentWire struct {
		Type      Kind   `json:"type"`
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
		Time      string `json:"time"`
	}
	publicWire struct {
		Type     Kind   `json:"type"`
		Username string `json:"username"`
		Message  string `json:"message"`
		Time     string `json:"time"`
	}
)

// anyWire accepts every outbound field; used when decoding on the client side.
type anyWire struct {
	Type      Kind     `json:"type"`
	Message   string   `json:"message"`
	Users     []string `json:"users"`
	Sender    string   `json:"sender"`
	Recipient string   `json:"recipient"`
	Username  string   `json:"username"`
	Time      string   `json:"time"`
}

// MarshalJSON encodes the field set defined for m.Kind.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindSystem, KindError:
		return json.Marshal(systemWire{Type: m.Kind, Message: m.Text, Time: m.Time})
	case KindUserList:
		users := m.Users
		if users == nil {
			users = []string{}
		}
		return json.Marshal(userListWire{Type: m.Kind, Users: users, Time: m.Time})
	case KindPrivate:
		return json.Marshal(privateWire{Type: m.Kind, Sender: m.Sender, Message: m.Text, Time: m.Time})
	case KindPrivateSent:
		return json.Marshal(privateSentWire{Type: m.Kind, Recipient: m.Recipient, Message: m.Text, Time: m.Time})
	case KindPublic:
		return json.Marshal(publicWire{Type: m.Kind, Username: m.Username, Message: m.Text, Time: m.Time})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
}

// UnmarshalJSON decodes any outbound kind.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w anyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		Kind:      w.Type,
		Text:      w.Message,
		Users:     w.Users,
		Sender:    w.Sender,
		Recipient: w.Recipient,
		Username:  w.Username,
		Time:      w.Time,
	}
	return nil
}

// Clock supplies the dispatch time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// Stamp formats the clock's current time for the wire.
func Stamp(c Clock) string {
	return c.Now().Format(TimeLayout)
}

// System builds a system notice.
func System(text string, c Clock) Message {
	return Message{Kind: KindSystem, Text: text, Time: Stamp(c)}
}

// UserList builds a roster message. users is copied.
func UserList(users []string, c Clock) Message {
	cp := make([]string, len(users))
	copy(cp, users)
	return Message{Kind: KindUserList, Users: cp, Time: Stamp(c)}
}

// Private builds the message delivered to a direct-message recipient.
func Private(sender, text string, c Clock) Message {
	return Message{Kind: KindPrivate, Sender: sender, Text: text, Time: Stamp(c)}
}

// PrivateSent builds the acknowledgement echoed to a direct-message sender.
func PrivateSent(recipient, text string, c Clock) Message {
	return Message{Kind: KindPrivateSent, Recipient: recipient, Text: text, Time: Stamp(c)}
}

// Public builds a broadcast chat line.
func Public(username, text string, c Clock) Message {
	return Message{Kind: KindPublic, Username: username, Text: text, Time: Stamp(c)}
}

// Error builds an error notice for a single connection.
func Error(text string, c Clock) Message {
	return Message{Kind: KindError, Text: text, Time: Stamp(c)}
}

// Notice texts.
func JoinedText(identity string) string  { return identity + " joined the chat" }
func LeftText(identity string) string    { return identity + " left the chat" }
func OfflineText(identity string) string { return "user " + identity + " is offline" }

// ReplacedText is sent to a connection displaced by a same-name re-registration.
const ReplacedText = "your session was replaced by a new connection"
