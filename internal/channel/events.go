package channel

import (
	"encoding/json"
	"fmt"

	"linkup-client/internal/domain"
)

// Socket event names, matching the backend contract.
const (
	// Outbound
	EventJoinRoom      = "joinRoom"
	EventSendMessage   = "sendMessage"
	EventDeleteMessage = "deleteMessage"
	EventEnterChat     = "enterChat"

	// Inbound
	EventReceiveMessage  = "receiveMessage"
	EventMessageDeleted  = "messageDeleted"
	EventPendingMessages = "pendingMessages"
)

// Envelope is the wire frame for every socket event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound payloads.

type JoinRoomPayload struct {
	SenderID   int `json:"senderId"`
	ReceiverID int `json:"receiverId"`
}

type SendMessagePayload struct {
	SenderID   int      `json:"senderId"`
	ReceiverID int      `json:"receiverId"`
	Content    string   `json:"content"`
	Files      []string `json:"files"`
	CreatedAt  string   `json:"createdAt"`
}

type DeleteMessagePayload struct {
	MessageID  int `json:"messageId"`
	SenderID   int `json:"senderId"`
	ReceiverID int `json:"receiverId"`
}

type EnterChatPayload struct {
	UserID     int `json:"userId"`
	ReceiverID int `json:"receiverId"`
}

// Event is the closed set of inbound events, decoded and validated at the
// channel boundary before anything downstream sees them.
type Event interface {
	isEvent()
}

type ReceiveMessage struct {
	Message domain.Message
}

type MessageDeleted struct {
	MessageID int
}

type PendingCount struct {
	Count int
}

func (ReceiveMessage) isEvent() {}
func (MessageDeleted) isEvent() {}
func (PendingCount) isEvent()   {}

// DecodeEvent parses one inbound frame into its typed variant. Unknown
// event names and malformed payloads are errors; the caller decides whether
// to log and drop.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case EventReceiveMessage:
		var msg domain.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return ReceiveMessage{Message: msg}, nil

	case EventMessageDeleted:
		var payload struct {
			MessageID int `json:"messageId"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			// The backend also emits the bare id.
			var id int
			if err2 := json.Unmarshal(env.Data, &id); err2 != nil {
				return nil, fmt.Errorf("decode %s: %w", env.Event, err)
			}
			payload.MessageID = id
		}
		return MessageDeleted{MessageID: payload.MessageID}, nil

	case EventPendingMessages:
		var payload struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return PendingCount{Count: payload.Count}, nil

	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}
