package session

import (
	"context"
	"fmt"
	"sync"
)

// Gate is the pending-connection checkpoint: before the first message
// crosses to a peer who has not reciprocated contact, the user must confirm
// explicitly. Confirmation lives only for the session; re-entering the
// conversation re-evaluates the pending status from scratch.
type Gate struct {
	directory PendingDirectory
	channel   Channel
	localID   int

	mu        sync.Mutex
	gated     bool
	confirmed bool
}

func NewGate(directory PendingDirectory, ch Channel, localUserID int) *Gate {
	return &Gate{directory: directory, channel: ch, localID: localUserID}
}

// Evaluate refreshes the pending status for a peer. The peer is gated when
// it appears in the caller's pending-inbound set and a first pending
// message actually exists.
func (g *Gate) Evaluate(ctx context.Context, peerID int) error {
	result, err := g.directory.GetUsersWithPendingMessages(ctx, g.localID)
	if err != nil {
		return fmt.Errorf("gate: evaluate peer %d: %w", peerID, err)
	}

	gated := false
	if result.FirstPendingMessageID != nil {
		for _, u := range result.Users {
			if u.ID == peerID {
				gated = true
				break
			}
		}
	}

	g.mu.Lock()
	g.gated = gated
	g.confirmed = false
	g.mu.Unlock()
	return nil
}

// Confirm opens the gate for the rest of the session and announces the
// acceptance to the peer's room.
func (g *Gate) Confirm(peerID int) error {
	g.mu.Lock()
	if !g.gated || g.confirmed {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	if err := g.channel.EnterChat(g.localID, peerID); err != nil {
		return fmt.Errorf("gate: confirm peer %d: %w", peerID, err)
	}

	g.mu.Lock()
	g.confirmed = true
	g.mu.Unlock()
	return nil
}

// IsGated reports whether the peer was pending at the last Evaluate.
func (g *Gate) IsGated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gated
}

// Open reports whether sends may proceed.
func (g *Gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.gated || g.confirmed
}

// Reset closes the gate state entirely; the next Evaluate decides again.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.gated = false
	g.confirmed = false
	g.mu.Unlock()
}
