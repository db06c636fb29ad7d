package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	linkup_errors "linkup-client/pkg/errors"
	"linkup-client/pkg/logger"
)

// PendingFiles tracks attachments that are already uploaded to object
// storage but not yet attached to a sent message, per peer, mirrored into
// durable storage like Drafts.
type PendingFiles struct {
	mu     sync.Mutex
	kv     KV
	log    *logger.Logger
	files  map[int][]string
	seeded map[int]bool
}

func NewPendingFiles(kv KV, log *logger.Logger) *PendingFiles {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &PendingFiles{
		kv:     kv,
		log:    log,
		files:  make(map[int][]string),
		seeded: make(map[int]bool),
	}
}

func filesKey(peerID int) string {
	return fmt.Sprintf("chat-files-%d", peerID)
}

// Set replaces the pending attachment list for a peer. An empty list
// deletes the durable record.
func (p *PendingFiles) Set(ctx context.Context, peerID int, files []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeded[peerID] = true

	if len(files) == 0 {
		delete(p.files, peerID)
		return p.kv.Delete(ctx, filesKey(peerID))
	}
	stored := make([]string, len(files))
	copy(stored, files)
	p.files[peerID] = stored

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return p.kv.Set(ctx, filesKey(peerID), data)
}

// Get returns the pending attachment URLs for a peer in upload order.
func (p *PendingFiles) Get(ctx context.Context, peerID int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seed(ctx, peerID)
	files := p.files[peerID]
	out := make([]string, len(files))
	copy(out, files)
	return out
}

// Append adds one uploaded file to the end of the peer's pending list.
func (p *PendingFiles) Append(ctx context.Context, peerID int, fileURL string) error {
	p.mu.Lock()
	p.seed(ctx, peerID)
	files := append(p.files[peerID], fileURL)
	p.mu.Unlock()
	return p.Set(ctx, peerID, files)
}

// Remove drops the pending file at the given index.
func (p *PendingFiles) Remove(ctx context.Context, peerID int, index int) error {
	p.mu.Lock()
	p.seed(ctx, peerID)
	files := p.files[peerID]
	if index < 0 || index >= len(files) {
		p.mu.Unlock()
		return linkup_errors.ErrInvalidInput
	}
	remaining := make([]string, 0, len(files)-1)
	remaining = append(remaining, files[:index]...)
	remaining = append(remaining, files[index+1:]...)
	p.mu.Unlock()
	return p.Set(ctx, peerID, remaining)
}

// Clear removes the pending list. Called exactly once on a successful send,
// or when the user cancels all attachments.
func (p *PendingFiles) Clear(ctx context.Context, peerID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeded[peerID] = true
	delete(p.files, peerID)
	return p.kv.Delete(ctx, filesKey(peerID))
}

func (p *PendingFiles) seed(ctx context.Context, peerID int) {
	if p.seeded[peerID] {
		return
	}
	p.seeded[peerID] = true
	data, err := p.kv.Get(ctx, filesKey(peerID))
	if err != nil {
		if !errors.Is(err, linkup_errors.ErrNotFound) {
			p.log.Errorf("pending files: load for peer %d: %v", peerID, err)
		}
		return
	}
	var files []string
	if err := json.Unmarshal(data, &files); err != nil {
		p.log.Errorf("pending files: corrupt record for peer %d: %v", peerID, err)
		return
	}
	p.files[peerID] = files
}
