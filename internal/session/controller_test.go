package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkup-client/internal/api"
	"linkup-client/internal/channel"
	"linkup-client/internal/domain"
	"linkup-client/internal/store"
	linkup_errors "linkup-client/pkg/errors"
	"linkup-client/pkg/logger"
)

const (
	localUser = 5
	peerUser  = 3
)

type fakeChannel struct {
	mu      sync.Mutex
	joins   [][2]int
	sent    []channel.SendMessagePayload
	deleted [][3]int
	entered [][2]int
	subs    map[int]func(channel.Event)
	nextSub int
	sendErr error
}

func (f *fakeChannel) JoinRoom(senderID, receiverID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, [2]int{senderID, receiverID})
	return nil
}

func (f *fakeChannel) SendMessage(p channel.SendMessagePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeChannel) DeleteMessage(messageID, senderID, receiverID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, [3]int{messageID, senderID, receiverID})
	return nil
}

func (f *fakeChannel) EnterChat(userID, receiverID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = append(f.entered, [2]int{userID, receiverID})
	return nil
}

func (f *fakeChannel) Subscribe(fn func(channel.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]func(channel.Event))
	}
	f.nextSub++
	id := f.nextSub
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeChannel) push(ev channel.Event) {
	f.mu.Lock()
	fns := make([]func(channel.Event), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeChannel) sentPayloads() []channel.SendMessagePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]channel.SendMessagePayload, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeHistory struct {
	messages []domain.Message
	err      error
	release  chan struct{}
}

func (f *fakeHistory) GetMessages(_ context.Context, _, _ int) ([]domain.Message, error) {
	if f.release != nil {
		<-f.release
	}
	return f.messages, f.err
}

type fakeDirectory struct {
	result api.PendingResult
	err    error
}

func (f *fakeDirectory) GetUsersWithPendingMessages(_ context.Context, _ int) (api.PendingResult, error) {
	return f.result, f.err
}

type fakeConversations struct {
	mu      sync.Mutex
	deletes [][2]int
	err     error
}

func (f *fakeConversations) DeleteConversationForUser(_ context.Context, userID, receiverID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, [2]int{userID, receiverID})
	return nil
}

type fakeReceipts struct {
	mu     sync.Mutex
	marked [][2]int
}

func (f *fakeReceipts) MarkPendingMessagesRead(_ context.Context, userID, senderID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, [2]int{userID, senderID})
	return nil
}

type fakeUploader struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeUploader) Delete(_ context.Context, fileURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, fileURL)
	return nil
}

func (f *fakeUploader) DeleteAll(_ context.Context, fileURLs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, fileURLs...)
	return nil
}

type harness struct {
	ctrl          *Controller
	ch            *fakeChannel
	history       *fakeHistory
	directory     *fakeDirectory
	conversations *fakeConversations
	receipts      *fakeReceipts
	uploader      *fakeUploader
	drafts        *store.Drafts
	files         *store.PendingFiles
	kv            *store.MemoryKV
}

func newHarness(history *fakeHistory, directory *fakeDirectory) *harness {
	h := &harness{
		ch:            &fakeChannel{},
		history:       history,
		directory:     directory,
		conversations: &fakeConversations{},
		receipts:      &fakeReceipts{},
		uploader:      &fakeUploader{},
		kv:            store.NewMemoryKV(),
	}
	if h.history == nil {
		h.history = &fakeHistory{}
	}
	if h.directory == nil {
		h.directory = &fakeDirectory{}
	}
	log := logger.NewNop()
	h.drafts = store.NewDrafts(h.kv, log)
	h.files = store.NewPendingFiles(h.kv, log)
	h.ctrl = NewController(localUser, Deps{
		History:       h.history,
		Directory:     h.directory,
		Conversations: h.conversations,
		Receipts:      h.receipts,
		Channel:       h.ch,
		Uploader:      h.uploader,
		Drafts:        h.drafts,
		PendingFiles:  h.files,
		Logger:        log,
	})
	return h
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Open(context.Background(), peerUser))
	select {
	case <-h.ctrl.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready")
	}
}

func historyMsg(id int, sender, receiver int, content, createdAt string) domain.Message {
	return domain.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		CreatedAt:  createdAt,
	}
}

func intPtr(v int) *int { return &v }

func gatedDirectory() *fakeDirectory {
	return &fakeDirectory{result: api.PendingResult{
		Users:                 []api.PendingUser{{ID: peerUser, Name: "Ana"}},
		FirstPendingMessageID: intPtr(17),
	}}
}

func TestOpenLoadsHistoryAndJoinsRoom(t *testing.T) {
	h := newHarness(&fakeHistory{messages: []domain.Message{
		historyMsg(1, peerUser, localUser, "hi", "2025-03-10T12:00:00Z"),
		historyMsg(2, localUser, peerUser, "hello", "2025-03-10T12:01:00Z"),
	}}, nil)
	h.open(t)

	assert.Equal(t, StateActive, h.ctrl.State())
	assert.Equal(t, peerUser, h.ctrl.PeerID())
	assert.Equal(t, [][2]int{{localUser, peerUser}}, h.ch.joins)

	messages := h.ctrl.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].Content)
}

func TestOpenRejectsInvalidPeer(t *testing.T) {
	h := newHarness(nil, nil)
	assert.ErrorIs(t, h.ctrl.Open(context.Background(), 0), linkup_errors.ErrInvalidInput)
	assert.ErrorIs(t, h.ctrl.Open(context.Background(), localUser), linkup_errors.ErrInvalidInput)
}

func TestOpenRejectsSecondSession(t *testing.T) {
	h := newHarness(nil, nil)
	h.open(t)
	assert.ErrorIs(t, h.ctrl.Open(context.Background(), 8), linkup_errors.ErrInvalidInput)
}

func TestLiveEventBeforeSnapshotSurvivesSeed(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(&fakeHistory{
		messages: []domain.Message{historyMsg(1, peerUser, localUser, "old", "2025-03-10T11:00:00Z")},
		release:  release,
	}, nil)
	require.NoError(t, h.ctrl.Open(context.Background(), peerUser))

	// The live path races the snapshot and wins.
	h.ch.push(channel.ReceiveMessage{Message: historyMsg(9, peerUser, localUser, "fresh", "2025-03-10T12:00:00Z")})
	close(release)
	<-h.ctrl.Ready()

	messages := h.ctrl.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "old", messages[0].Content)
	assert.Equal(t, "fresh", messages[1].Content)
}

func TestHistoryFailureLeavesSessionLiveOnly(t *testing.T) {
	h := newHarness(&fakeHistory{err: errors.New("backend down")}, nil)
	h.open(t)

	assert.Equal(t, StateActive, h.ctrl.State())
	assert.Error(t, h.ctrl.LastError())

	h.ch.push(channel.ReceiveMessage{Message: historyMsg(9, peerUser, localUser, "still works", "2025-03-10T12:00:00Z")})
	require.Len(t, h.ctrl.Messages(), 1)
}

func TestDuplicateEchoCollapses(t *testing.T) {
	h := newHarness(nil, nil)
	h.open(t)

	echo := historyMsg(9, localUser, peerUser, "sent once", "2025-03-10T12:00:00Z")
	h.ch.push(channel.ReceiveMessage{Message: echo})
	h.ch.push(channel.ReceiveMessage{Message: echo})

	assert.Len(t, h.ctrl.Messages(), 1)
}

func TestEventForOtherConversationIgnored(t *testing.T) {
	h := newHarness(nil, nil)
	h.open(t)

	h.ch.push(channel.ReceiveMessage{Message: historyMsg(9, 77, 88, "wrong room", "2025-03-10T12:00:00Z")})
	assert.Empty(t, h.ctrl.Messages())
}

func TestMessageDeletedEvent(t *testing.T) {
	h := newHarness(&fakeHistory{messages: []domain.Message{
		historyMsg(1, peerUser, localUser, "going away", "2025-03-10T12:00:00Z"),
	}}, nil)
	h.open(t)
	require.Len(t, h.ctrl.Messages(), 1)

	h.ch.push(channel.MessageDeleted{MessageID: 1})
	assert.Empty(t, h.ctrl.Messages())
}

func TestPendingCountEvent(t *testing.T) {
	h := newHarness(nil, nil)
	h.open(t)

	h.ch.push(channel.PendingCount{Count: 4})
	assert.Equal(t, 4, h.ctrl.PendingCount())
}

func TestSendClearsDraftAndPendingFiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, nil)
	h.open(t)

	require.NoError(t, h.ctrl.SetDraft(ctx, "almost done"))
	require.NoError(t, h.ctrl.AttachFile(ctx, "https://cdn/a.png"))

	require.NoError(t, h.ctrl.Send(ctx, "almost done", []string{"https://cdn/a.png"}))

	sent := h.ch.sentPayloads()
	require.Len(t, sent, 1)
	assert.Equal(t, localUser, sent[0].SenderID)
	assert.Equal(t, peerUser, sent[0].ReceiverID)
	assert.Equal(t, "almost done", sent[0].Content)
	assert.Equal(t, []string{"https://cdn/a.png"}, sent[0].Files)
	assert.NotEmpty(t, sent[0].CreatedAt)

	assert.Equal(t, "", h.ctrl.Draft(ctx))
	assert.Empty(t, h.ctrl.PendingFiles(ctx))
	_, err := h.kv.Get(ctx, "draft-3")
	assert.ErrorIs(t, err, linkup_errors.ErrNotFound)
	_, err = h.kv.Get(ctx, "chat-files-3")
	assert.ErrorIs(t, err, linkup_errors.ErrNotFound)
}

func TestSendEmptyIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, nil)
	h.open(t)

	require.NoError(t, h.ctrl.SetDraft(ctx, "keep me"))
	require.NoError(t, h.ctrl.Send(ctx, "   ", nil))

	assert.Empty(t, h.ch.sentPayloads())
	assert.Equal(t, "keep me", h.ctrl.Draft(ctx), "a no-op send must not clear the draft")
}

func TestSendHasNoLocalEcho(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, nil)
	h.open(t)

	require.NoError(t, h.ctrl.Send(ctx, "hello", nil))
	assert.Empty(t, h.ctrl.Messages(), "the resident copy only arrives via the live path")

	h.ch.push(channel.ReceiveMessage{Message: historyMsg(9, localUser, peerUser, "hello", "2025-03-10T12:00:00Z")})
	assert.Len(t, h.ctrl.Messages(), 1)
}

func TestGateBlocksSendUntilConfirmed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, gatedDirectory())
	h.open(t)

	assert.True(t, h.ctrl.Gated())
	assert.False(t, h.ctrl.GateOpen())
	assert.ErrorIs(t, h.ctrl.Send(ctx, "too soon", nil), linkup_errors.ErrGateClosed)
	assert.Empty(t, h.ch.sentPayloads())

	require.NoError(t, h.ctrl.Confirm(ctx))
	assert.Equal(t, [][2]int{{localUser, peerUser}}, h.ch.entered)
	assert.True(t, h.ctrl.GateOpen())

	require.NoError(t, h.ctrl.Send(ctx, "now we talk", nil))
	assert.Len(t, h.ch.sentPayloads(), 1)
}

func TestConfirmMarksPendingMessagesRead(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, gatedDirectory())
	h.open(t)

	require.NoError(t, h.ctrl.Confirm(ctx))
	assert.Equal(t, [][2]int{{localUser, peerUser}}, h.receipts.marked)

	// Confirming again does not re-acknowledge.
	require.NoError(t, h.ctrl.Confirm(ctx))
	assert.Len(t, h.receipts.marked, 1)
}

func TestConfirmWithoutPendingPeerSkipsReadReceipt(t *testing.T) {
	h := newHarness(nil, nil)
	h.open(t)

	require.NoError(t, h.ctrl.Confirm(context.Background()))
	assert.Empty(t, h.receipts.marked)
	assert.Empty(t, h.ch.entered)
}

func TestSendWaitsForGateEvaluation(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	h := newHarness(&fakeHistory{release: release}, gatedDirectory())
	require.NoError(t, h.ctrl.Open(ctx, peerUser))

	// Issued while the session is still joining; the directory has not
	// answered yet.
	errCh := make(chan error, 1)
	go func() { errCh <- h.ctrl.Send(ctx, "too eager", nil) }()

	close(release)
	assert.ErrorIs(t, <-errCh, linkup_errors.ErrGateClosed)
	assert.Empty(t, h.ch.sentPayloads())
}

func TestGateOpenForKnownPeer(t *testing.T) {
	h := newHarness(nil, &fakeDirectory{result: api.PendingResult{
		Users:                 []api.PendingUser{{ID: 99}},
		FirstPendingMessageID: intPtr(17),
	}})
	h.open(t)

	assert.False(t, h.ctrl.Gated())
	assert.True(t, h.ctrl.GateOpen())
}

func TestDeleteOwnMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&fakeHistory{messages: []domain.Message{
		historyMsg(1, localUser, peerUser, "mine", "2025-03-10T12:00:00Z"),
	}}, nil)
	h.open(t)

	require.NoError(t, h.ctrl.Delete(ctx, 1))
	assert.Empty(t, h.ctrl.Messages())
	assert.Equal(t, [][3]int{{1, localUser, peerUser}}, h.ch.deleted)
}

func TestDeleteRejectsForeignMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&fakeHistory{messages: []domain.Message{
		historyMsg(1, peerUser, localUser, "theirs", "2025-03-10T12:00:00Z"),
	}}, nil)
	h.open(t)

	assert.ErrorIs(t, h.ctrl.Delete(ctx, 1), linkup_errors.ErrForbidden)
	assert.Len(t, h.ctrl.Messages(), 1)
	assert.Empty(t, h.ch.deleted)
}

func TestDeleteUnknownMessage(t *testing.T) {
	h := newHarness(nil, nil)
	h.open(t)
	assert.ErrorIs(t, h.ctrl.Delete(context.Background(), 42), linkup_errors.ErrNotFound)
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&fakeHistory{messages: []domain.Message{
		historyMsg(1, peerUser, localUser, "old news", "2025-03-10T12:00:00Z"),
	}}, nil)
	h.open(t)

	require.NoError(t, h.ctrl.ClearHistory(ctx))
	assert.Equal(t, [][2]int{{localUser, peerUser}}, h.conversations.deletes)
	assert.Empty(t, h.ctrl.Messages())
}

func TestCloseDiscardsSessionButKeepsDurableDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, nil)
	h.open(t)
	require.NoError(t, h.ctrl.SetDraft(ctx, "unfinished"))

	h.ctrl.Close()

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Empty(t, h.ctrl.Messages())
	assert.ErrorIs(t, h.ctrl.Send(ctx, "too late", nil), linkup_errors.ErrSessionClosed)

	// Re-entering the conversation picks the draft back up.
	h.open(t)
	assert.Equal(t, "unfinished", h.ctrl.Draft(ctx))
}

func TestStaleHistoryAfterCloseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(&fakeHistory{
		messages: []domain.Message{historyMsg(1, peerUser, localUser, "stale", "2025-03-10T12:00:00Z")},
		release:  release,
	}, nil)
	require.NoError(t, h.ctrl.Open(context.Background(), peerUser))
	ready := h.ctrl.Ready()

	h.ctrl.Close()
	close(release)
	<-ready

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Empty(t, h.ctrl.Messages())
}

func TestEventsAfterCloseIgnored(t *testing.T) {
	h := newHarness(nil, nil)
	h.open(t)
	h.ctrl.Close()

	h.ch.push(channel.ReceiveMessage{Message: historyMsg(9, peerUser, localUser, "ghost", "2025-03-10T12:00:00Z")})
	assert.Empty(t, h.ctrl.Messages())
}

func TestDiscardFileDeletesUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, nil)
	h.open(t)

	require.NoError(t, h.ctrl.AttachFile(ctx, "https://cdn/a.png"))
	require.NoError(t, h.ctrl.AttachFile(ctx, "https://cdn/b.png"))

	require.NoError(t, h.ctrl.DiscardFile(ctx, 0))
	assert.Equal(t, []string{"https://cdn/a.png"}, h.uploader.deleted)
	assert.Equal(t, []string{"https://cdn/b.png"}, h.ctrl.PendingFiles(ctx))

	assert.ErrorIs(t, h.ctrl.DiscardFile(ctx, 7), linkup_errors.ErrInvalidInput)
}

func TestDiscardAllFiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, nil)
	h.open(t)

	require.NoError(t, h.ctrl.AttachFile(ctx, "https://cdn/a.png"))
	require.NoError(t, h.ctrl.AttachFile(ctx, "https://cdn/b.png"))

	require.NoError(t, h.ctrl.DiscardAllFiles(ctx))
	assert.ElementsMatch(t, []string{"https://cdn/a.png", "https://cdn/b.png"}, h.uploader.deleted)
	assert.Empty(t, h.ctrl.PendingFiles(ctx))
}
