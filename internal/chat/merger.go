package chat

import (
	"sort"
	"sync"
	"time"

	"linkup-client/internal/domain"
	"linkup-client/pkg/logger"
)

type resident struct {
	msg  domain.Message
	seq  int
	live bool // arrived over the channel, not via a history fetch
	eff  time.Time
}

// Merger materializes each logical message at most once. It merges a bulk
// history snapshot with a live append stream, keyed by the message identity
// rule, and keeps the resident set ordered by timestamp with arrival order
// breaking ties.
//
// History and the live stream race freely: the channel listener is attached
// before the history fetch resolves, so live messages can land first and a
// later Seed must not erase them. Seed therefore unions with live residents
// instead of blindly replacing.
type Merger struct {
	mu      sync.Mutex
	localID int
	log     *logger.Logger
	byKey   map[string]struct{}
	order   []resident
	nextSeq int
}

// NewMerger creates a merger for the given local user. Messages soft-deleted
// for that user are filtered out on entry.
func NewMerger(localUserID int, log *logger.Logger) *Merger {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Merger{
		localID: localUserID,
		log:     log,
		byKey:   make(map[string]struct{}),
	}
}

// Seed replaces previously seeded history with a fresh snapshot. Messages
// that already arrived live are kept; history entries colliding with them by
// identity are dropped, so seed and ingest commute with respect to final
// membership.
func (m *Merger) Seed(history []domain.Message) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	m.byKey = make(map[string]struct{})
	for _, r := range m.order {
		if r.live {
			kept = append(kept, r)
			m.byKey[r.msg.Key()] = struct{}{}
		}
	}
	m.order = kept

	for _, msg := range history {
		if msg.HiddenFor(m.localID) {
			continue
		}
		m.add(msg, false)
	}
	m.resort()
	return m.snapshot()
}

// Ingest appends one live message unless a resident message matches by
// identity. On a match the incoming copy is dropped; first seen wins.
func (m *Merger) Ingest(msg domain.Message) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !msg.HiddenFor(m.localID) {
		if m.add(msg, true) {
			m.resort()
		}
	}
	return m.snapshot()
}

// Remove drops the message with the given id from the resident set.
func (m *Merger) Remove(messageID int) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.order {
		if r.msg.ID == messageID {
			delete(m.byKey, r.msg.Key())
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return m.snapshot()
}

// Clear empties the resident set. Used when the whole conversation history
// is purged.
func (m *Merger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey = make(map[string]struct{})
	m.order = nil
}

// Messages returns the current ordered resident set.
func (m *Merger) Messages() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// Len returns the resident count.
func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

func (m *Merger) add(msg domain.Message, live bool) bool {
	key := msg.Key()
	if _, exists := m.byKey[key]; exists {
		return false
	}
	if _, ok := msg.CreatedTime(); !ok {
		// Kept resident but invisible to date-bucketed views.
		m.log.Warnf("message %q has unparseable createdAt %q", key, msg.CreatedAt)
	}
	m.byKey[key] = struct{}{}
	m.order = append(m.order, resident{msg: msg, seq: m.nextSeq, live: live})
	m.nextSeq++
	return true
}

// resort orders residents by timestamp with arrival order breaking ties.
// A resident with an unparseable createdAt inherits the timestamp of the
// last parseable message that arrived before it, so it stays pinned next
// to its neighbors instead of poisoning comparisons around it.
func (m *Merger) resort() {
	sort.SliceStable(m.order, func(i, j int) bool {
		return m.order[i].seq < m.order[j].seq
	})
	var last time.Time
	for i := range m.order {
		if t, ok := m.order[i].msg.CreatedTime(); ok {
			last = t
		}
		m.order[i].eff = last
	}
	sort.SliceStable(m.order, func(i, j int) bool {
		if !m.order[i].eff.Equal(m.order[j].eff) {
			return m.order[i].eff.Before(m.order[j].eff)
		}
		return m.order[i].seq < m.order[j].seq
	})
}

func (m *Merger) snapshot() []domain.Message {
	out := make([]domain.Message, len(m.order))
	for i, r := range m.order {
		out[i] = r.msg
	}
	return out
}
