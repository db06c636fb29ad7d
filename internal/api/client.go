package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"linkup-client/internal/auth"
	"linkup-client/internal/domain"
	linkup_errors "linkup-client/pkg/errors"
)

// Client talks to the backend REST collaborator: history fetch, the
// pending-relationship query and per-user conversation deletes. Everything
// about message ordering and storage is the backend's business; this client
// only moves snapshots.
type Client struct {
	baseURL string
	session *auth.Session
	http    *http.Client
}

func NewClient(baseURL string, session *auth.Session) *Client {
	return &Client{
		baseURL: baseURL,
		session: session,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// PendingUser is one peer whose first contact has not been reciprocated.
type PendingUser struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profilePicture"`
}

// PendingResult is the response of the pending-relationship query.
type PendingResult struct {
	Users                 []PendingUser `json:"users"`
	FirstPendingMessageID *int          `json:"firstPendingMessageId"`
}

// GetMessages fetches the full message history between two users.
func (c *Client) GetMessages(ctx context.Context, senderID, receiverID int) ([]domain.Message, error) {
	endpoint := fmt.Sprintf("%s/messages/%d/%d", c.baseURL, senderID, receiverID)
	var messages []domain.Message
	if err := c.getJSON(ctx, endpoint, &messages); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return messages, nil
}

// GetUsersWithPendingMessages returns the peers waiting on a first-contact
// confirmation from the local user.
func (c *Client) GetUsersWithPendingMessages(ctx context.Context, userID int) (PendingResult, error) {
	endpoint := fmt.Sprintf("%s/user/pending-messages?%s", c.baseURL,
		url.Values{"userId": {strconv.Itoa(userID)}}.Encode())
	var result PendingResult
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return PendingResult{}, fmt.Errorf("get pending messages: %w", err)
	}
	return result, nil
}

// MarkPendingMessagesRead acknowledges the pending messages from a sender.
func (c *Client) MarkPendingMessagesRead(ctx context.Context, userID, senderID int) error {
	body := map[string]int{"userId": userID, "senderId": senderID}
	if err := c.postJSON(ctx, c.baseURL+"/messages/markAsRead", body); err != nil {
		return fmt.Errorf("mark pending read: %w", err)
	}
	return nil
}

// DeleteConversationForUser hides the whole thread with receiverID for the
// local user (soft per-user delete on the backend).
func (c *Client) DeleteConversationForUser(ctx context.Context, userID, receiverID int) error {
	body := map[string]int{"userId": userID, "receiverId": receiverID}
	if err := c.postJSON(ctx, c.baseURL+"/messages/delete-message-for-user", body); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.session != nil {
		req.Header.Set("Authorization", "Bearer "+c.session.Token())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return linkup_errors.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return linkup_errors.ErrNotFound
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
