package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	linkup_errors "linkup-client/pkg/errors"
	"linkup-client/pkg/logger"
)

// Drafts holds the unsent text per peer, mirrored into durable storage so
// navigating away or restarting the app does not lose in-progress work.
// Reads prefer memory and seed from storage on first access per peer; the
// UI guarantees a single writer per peer (the one focused screen).
type Drafts struct {
	mu     sync.Mutex
	kv     KV
	log    *logger.Logger
	drafts map[int]string
	seeded map[int]bool
}

func NewDrafts(kv KV, log *logger.Logger) *Drafts {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Drafts{
		kv:     kv,
		log:    log,
		drafts: make(map[int]string),
		seeded: make(map[int]bool),
	}
}

func draftKey(peerID int) string {
	return fmt.Sprintf("draft-%d", peerID)
}

// Set upserts the draft for a peer. A trimmed-empty draft deletes the
// durable record instead of storing an empty string, so an abandoned draft
// cannot resurrect as "".
func (d *Drafts) Set(ctx context.Context, peerID int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeded[peerID] = true

	if strings.TrimSpace(text) == "" {
		delete(d.drafts, peerID)
		return d.kv.Delete(ctx, draftKey(peerID))
	}
	d.drafts[peerID] = text
	return d.kv.Set(ctx, draftKey(peerID), []byte(text))
}

// Get returns the draft for a peer, or "" when none exists.
func (d *Drafts) Get(ctx context.Context, peerID int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seed(ctx, peerID)
	return d.drafts[peerID]
}

// Clear removes the draft. Called exactly once on a successful send.
func (d *Drafts) Clear(ctx context.Context, peerID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeded[peerID] = true
	delete(d.drafts, peerID)
	return d.kv.Delete(ctx, draftKey(peerID))
}

func (d *Drafts) seed(ctx context.Context, peerID int) {
	if d.seeded[peerID] {
		return
	}
	d.seeded[peerID] = true
	value, err := d.kv.Get(ctx, draftKey(peerID))
	if err != nil {
		if !errors.Is(err, linkup_errors.ErrNotFound) {
			d.log.Errorf("drafts: load for peer %d: %v", peerID, err)
		}
		return
	}
	d.drafts[peerID] = string(value)
}
