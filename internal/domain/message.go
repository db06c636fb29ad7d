package domain

import (
	"fmt"
	"strings"
	"time"
)

// Message represents one chat message as it travels over the wire. A message
// created locally and not yet confirmed by the backend carries no ID; the
// identity rule below falls back to content+timestamp+sender for those.
type Message struct {
	ID                int      `json:"id,omitempty"`
	SenderID          int      `json:"senderId"`
	ReceiverID        int      `json:"receiverId"`
	Content           string   `json:"content,omitempty"`
	FileURLs          []string `json:"fileUrls,omitempty"`
	CreatedAt         string   `json:"createdAt"`
	DeletedForUserIDs []int    `json:"deletedForUserIds,omitempty"`
}

// Key returns the identity of the message used for deduplication. Two
// representations with the same key refer to the same logical message.
func (m Message) Key() string {
	if m.ID != 0 {
		return fmt.Sprintf("id:%d", m.ID)
	}
	return fmt.Sprintf("%s|%s|%d", m.Content, m.CreatedAt, m.SenderID)
}

// CreatedTime parses the message timestamp. The second return is false when
// the timestamp is missing or unparseable.
func (m Message) CreatedTime() (time.Time, bool) {
	if m.CreatedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, m.CreatedAt)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, m.CreatedAt)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

// HiddenFor reports whether the message was soft-deleted for the given user.
func (m Message) HiddenFor(userID int) bool {
	for _, id := range m.DeletedForUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Empty reports whether the message carries neither text nor attachments.
// Such a message must never be sent.
func (m Message) Empty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.FileURLs) == 0
}
