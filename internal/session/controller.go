package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"linkup-client/internal/auth"
	"linkup-client/internal/channel"
	"linkup-client/internal/chat"
	"linkup-client/internal/domain"
	"linkup-client/internal/store"
	linkup_errors "linkup-client/pkg/errors"
	"linkup-client/pkg/logger"
)

// State is the lifecycle phase of a conversation session.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Deps are the collaborators a Controller is built from. Session and
// Uploader are optional; everything else is required.
type Deps struct {
	History       History
	Directory     PendingDirectory
	Conversations Conversations
	Receipts      ReadReceipts
	Channel       Channel
	Uploader      Uploader
	Session       *auth.Session
	Drafts        *store.Drafts
	PendingFiles  *store.PendingFiles
	Logger        *logger.Logger
}

// Controller orchestrates one open conversation: joining the room, loading
// history, feeding live events into the merger, sending and deleting
// messages, and tearing everything down when the user navigates away.
//
// All mutation funnels through one mutex, so the merger only ever sees a
// serialized stream of seed/ingest/remove calls no matter which goroutine
// (reader pump, history fetch, UI) produced them.
type Controller struct {
	localID int
	deps    Deps
	log     *logger.Logger

	mu           sync.Mutex
	state        State
	peerID       int
	epoch        int
	merger       *chat.Merger
	gate         *Gate
	pendingCount int
	lastErr      error
	unsubscribe  func()
	cancel       context.CancelFunc
	ready        chan struct{}
}

func NewController(localUserID int, deps Deps) *Controller {
	log := deps.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Controller{localID: localUserID, deps: deps, log: log}
}

// Open starts a session with a peer. The room join, the history fetch and
// the gate evaluation are all issued concurrently: live events arriving
// before the snapshot resolves land in the merger first, and Seed unions
// with them instead of replacing. History failure is recorded and exposed
// but leaves the session live-only rather than blocked.
func (c *Controller) Open(ctx context.Context, peerID int) error {
	if peerID <= 0 || peerID == c.localID {
		return fmt.Errorf("open peer %d: %w", peerID, linkup_errors.ErrInvalidInput)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("open peer %d: session is %s: %w", peerID, c.state, linkup_errors.ErrInvalidInput)
	}
	c.state = StateJoining
	c.peerID = peerID
	c.epoch++
	epoch := c.epoch
	c.merger = chat.NewMerger(c.localID, c.log)
	c.gate = NewGate(c.deps.Directory, c.deps.Channel, c.localID)
	gate := c.gate
	c.pendingCount = 0
	c.lastErr = nil
	c.ready = make(chan struct{})
	ready := c.ready

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.unsubscribe = c.deps.Channel.Subscribe(func(ev channel.Event) {
		c.handleEvent(epoch, ev)
	})
	c.mu.Unlock()

	if err := c.deps.Channel.JoinRoom(c.localID, peerID); err != nil {
		c.log.Warnf("session: join room for peer %d: %v", peerID, err)
	}

	go func() {
		defer close(ready)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			history, err := c.deps.History.GetMessages(bg, c.localID, peerID)
			c.applyHistory(epoch, history, err)
		}()
		go func() {
			defer wg.Done()
			if err := gate.Evaluate(bg, peerID); err != nil {
				// Treated as not pending; the backend enforces anyway.
				c.log.Errorf("session: %v", err)
			}
		}()
		wg.Wait()

		c.mu.Lock()
		if c.epoch == epoch && c.state == StateJoining {
			c.state = StateActive
		}
		c.mu.Unlock()
	}()
	return nil
}

// Ready returns a channel closed once the joining work of the most recent
// Open has finished.
func (c *Controller) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Controller) applyHistory(epoch int, history []domain.Message, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		// The screen moved on while the fetch was in flight.
		return
	}
	if err != nil {
		c.lastErr = err
		c.log.Errorf("session: history for peer %d: %v", c.peerID, err)
		return
	}
	c.merger.Seed(history)
}

func (c *Controller) handleEvent(epoch int, ev channel.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.state == StateIdle || c.state == StateClosing {
		return
	}

	switch e := ev.(type) {
	case channel.ReceiveMessage:
		msg := e.Message
		if c.belongsHere(msg) {
			c.merger.Ingest(msg)
		}
	case channel.MessageDeleted:
		c.merger.Remove(e.MessageID)
	case channel.PendingCount:
		c.pendingCount = e.Count
	}
}

func (c *Controller) belongsHere(msg domain.Message) bool {
	return (msg.SenderID == c.peerID && msg.ReceiverID == c.localID) ||
		(msg.SenderID == c.localID && msg.ReceiverID == c.peerID)
}

// Send dispatches a message optimistically over the channel. There is no
// local echo: the authoritative copy comes back on the live path and the
// merger deduplicates it. A send issued while the session is still joining
// waits for the gate evaluation to resolve first, so nothing slips past a
// peer the directory would have reported pending. On successful dispatch
// the peer's draft and pending-attachment records are cleared, durably,
// before Send returns.
func (c *Controller) Send(ctx context.Context, text string, files []string) error {
	c.mu.Lock()
	if c.state != StateJoining && c.state != StateActive {
		c.mu.Unlock()
		return linkup_errors.ErrSessionClosed
	}
	epoch := c.epoch
	ready := c.ready
	c.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return fmt.Errorf("send: %w", ctx.Err())
	}

	c.mu.Lock()
	if c.epoch != epoch || (c.state != StateJoining && c.state != StateActive) {
		c.mu.Unlock()
		return linkup_errors.ErrSessionClosed
	}
	peer := c.peerID
	gate := c.gate
	c.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return nil
	}
	if !gate.Open() {
		return linkup_errors.ErrGateClosed
	}

	err := c.deps.Channel.SendMessage(channel.SendMessagePayload{
		SenderID:   c.localID,
		ReceiverID: peer,
		Content:    text,
		Files:      files,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("send to peer %d: %w", peer, err)
	}

	if err := c.deps.Drafts.Clear(ctx, peer); err != nil {
		return fmt.Errorf("send: clear draft: %w", err)
	}
	if err := c.deps.PendingFiles.Clear(ctx, peer); err != nil {
		return fmt.Errorf("send: clear pending files: %w", err)
	}
	return nil
}

// Delete removes a message everywhere. Only messages the local user sent
// may be deleted; the check happens before anything hits the network.
func (c *Controller) Delete(ctx context.Context, messageID int) error {
	c.mu.Lock()
	if c.state != StateJoining && c.state != StateActive {
		c.mu.Unlock()
		return linkup_errors.ErrSessionClosed
	}
	peer := c.peerID

	var found *domain.Message
	for _, msg := range c.merger.Messages() {
		if msg.ID == messageID {
			m := msg
			found = &m
			break
		}
	}
	if found == nil {
		c.mu.Unlock()
		return fmt.Errorf("delete message %d: %w", messageID, linkup_errors.ErrNotFound)
	}
	if found.SenderID != c.localID {
		c.mu.Unlock()
		return fmt.Errorf("delete message %d: %w", messageID, linkup_errors.ErrForbidden)
	}
	c.merger.Remove(messageID)
	c.mu.Unlock()

	if err := c.deps.Channel.DeleteMessage(messageID, c.localID, peer); err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}
	return nil
}

// Confirm satisfies the pending-connection gate for this session and
// acknowledges the peer's pending messages as read.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateClosing {
		c.mu.Unlock()
		return linkup_errors.ErrSessionClosed
	}
	gate := c.gate
	peer := c.peerID
	c.mu.Unlock()

	accepting := gate.IsGated() && !gate.Open()
	if err := gate.Confirm(peer); err != nil {
		return err
	}
	if accepting && c.deps.Receipts != nil {
		if err := c.deps.Receipts.MarkPendingMessagesRead(ctx, c.localID, peer); err != nil {
			// The confirmation already went out; the badge catches up on
			// the next pending push.
			c.log.Warnf("session: mark pending read for peer %d: %v", peer, err)
		}
	}
	return nil
}

// ClearHistory purges the whole thread for the local user and empties the
// resident set.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateJoining && c.state != StateActive {
		c.mu.Unlock()
		return linkup_errors.ErrSessionClosed
	}
	peer := c.peerID
	c.mu.Unlock()

	if err := c.deps.Conversations.DeleteConversationForUser(ctx, c.localID, peer); err != nil {
		return fmt.Errorf("clear history with peer %d: %w", peer, err)
	}

	c.mu.Lock()
	if c.peerID == peer && c.merger != nil {
		c.merger.Clear()
	}
	c.mu.Unlock()
	return nil
}

// Close tears the session down: detach from the channel synchronously, drop
// the resident set, cancel in-flight work. Draft and pending-attachment
// durable records deliberately survive.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	c.epoch++
	unsub := c.unsubscribe
	cancel := c.cancel
	c.unsubscribe = nil
	c.cancel = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}

	c.mu.Lock()
	c.merger = nil
	c.gate = nil
	c.peerID = 0
	c.pendingCount = 0
	c.state = StateIdle
	c.mu.Unlock()
}

// --- drafts and pending attachments ---

// Draft returns the unsent text for the open peer.
func (c *Controller) Draft(ctx context.Context) string {
	peer, ok := c.openPeer()
	if !ok {
		return ""
	}
	return c.deps.Drafts.Get(ctx, peer)
}

// SetDraft mirrors the in-progress text into durable storage.
func (c *Controller) SetDraft(ctx context.Context, text string) error {
	peer, ok := c.openPeer()
	if !ok {
		return linkup_errors.ErrSessionClosed
	}
	return c.deps.Drafts.Set(ctx, peer, text)
}

// PendingFiles returns the uploaded-but-unsent attachment URLs.
func (c *Controller) PendingFiles(ctx context.Context) []string {
	peer, ok := c.openPeer()
	if !ok {
		return nil
	}
	return c.deps.PendingFiles.Get(ctx, peer)
}

// AttachFile records one freshly uploaded attachment as pending.
func (c *Controller) AttachFile(ctx context.Context, fileURL string) error {
	peer, ok := c.openPeer()
	if !ok {
		return linkup_errors.ErrSessionClosed
	}
	return c.deps.PendingFiles.Append(ctx, peer, fileURL)
}

// DiscardFile deletes one pending attachment from object storage and from
// the durable record. Requires a live auth session.
func (c *Controller) DiscardFile(ctx context.Context, index int) error {
	peer, ok := c.openPeer()
	if !ok {
		return linkup_errors.ErrSessionClosed
	}
	if c.deps.Session != nil && !c.deps.Session.Valid() {
		return fmt.Errorf("discard file: %w", linkup_errors.ErrUnauthorized)
	}

	files := c.deps.PendingFiles.Get(ctx, peer)
	if index < 0 || index >= len(files) {
		return linkup_errors.ErrInvalidInput
	}
	if c.deps.Uploader != nil {
		if err := c.deps.Uploader.Delete(ctx, files[index]); err != nil {
			return fmt.Errorf("discard file: %w", err)
		}
	}
	return c.deps.PendingFiles.Remove(ctx, peer, index)
}

// DiscardAllFiles cancels every pending attachment for the open peer.
func (c *Controller) DiscardAllFiles(ctx context.Context) error {
	peer, ok := c.openPeer()
	if !ok {
		return linkup_errors.ErrSessionClosed
	}
	if c.deps.Session != nil && !c.deps.Session.Valid() {
		return fmt.Errorf("discard files: %w", linkup_errors.ErrUnauthorized)
	}

	files := c.deps.PendingFiles.Get(ctx, peer)
	if len(files) == 0 {
		return nil
	}
	if c.deps.Uploader != nil {
		if err := c.deps.Uploader.DeleteAll(ctx, files); err != nil {
			return fmt.Errorf("discard files: %w", err)
		}
	}
	return c.deps.PendingFiles.Clear(ctx, peer)
}

// --- views ---

// Messages returns the ordered, deduplicated resident set.
func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.merger == nil {
		return nil
	}
	return c.merger.Messages()
}

// Grouped returns the resident set bucketed by day for display.
func (c *Controller) Grouped() []chat.DayGroup {
	return chat.GroupByDay(c.Messages())
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) PeerID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// Gated reports whether the open peer is awaiting a first-contact
// confirmation.
func (c *Controller) Gated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate != nil && c.gate.IsGated()
}

// GateOpen reports whether sends may proceed.
func (c *Controller) GateOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate != nil && c.gate.Open()
}

// PendingCount is the badge count pushed by the backend.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingCount
}

// LastError exposes the most recent history failure, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) openPeer() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || c.state == StateClosing {
		return 0, false
	}
	return c.peerID, true
}
