package session

import (
	"context"

	"linkup-client/internal/api"
	"linkup-client/internal/channel"
	"linkup-client/internal/domain"
)

// History fetches the message snapshot for a conversation.
type History interface {
	GetMessages(ctx context.Context, senderID, receiverID int) ([]domain.Message, error)
}

// PendingDirectory answers the pending-relationship query the gate is
// built on.
type PendingDirectory interface {
	GetUsersWithPendingMessages(ctx context.Context, userID int) (api.PendingResult, error)
}

// Conversations covers the per-user thread purge.
type Conversations interface {
	DeleteConversationForUser(ctx context.Context, userID, receiverID int) error
}

// ReadReceipts acknowledges a peer's pending messages once the user accepts
// the connection.
type ReadReceipts interface {
	MarkPendingMessagesRead(ctx context.Context, userID, senderID int) error
}

// Channel is the live event connection a session attaches to. One physical
// connection serves every session; Subscribe returns the detach function.
type Channel interface {
	JoinRoom(senderID, receiverID int) error
	SendMessage(p channel.SendMessagePayload) error
	DeleteMessage(messageID, senderID, receiverID int) error
	EnterChat(userID, receiverID int) error
	Subscribe(fn func(channel.Event)) func()
}

// Uploader deletes attachments the user discards before sending. Upload
// itself happens outside the session (the picker hands the session a URL).
type Uploader interface {
	Delete(ctx context.Context, fileURL string) error
	DeleteAll(ctx context.Context, fileURLs []string) error
}
