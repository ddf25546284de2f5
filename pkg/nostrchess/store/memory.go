package store

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nbd-wtf/go-nostr"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
)

// table is an insertion-ordered set of rows keyed by id. Each table
// serializes its own writes.
type table[T any] struct {
	mu   sync.RWMutex
	rows []T
	byID map[string]int
}

func newTable[T any]() *table[T] {
	return &table[T]{byID: make(map[string]int)}
}

func (t *table[T]) put(id string, row T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[id]; ok {
		return false
	}
	t.byID[id] = len(t.rows)
	t.rows = append(t.rows, row)
	return true
}

func (t *table[T]) get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return t.rows[i], true
}

func (t *table[T]) filter(keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []T
	for _, row := range t.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

func (t *table[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// MemoryBackend keeps everything in process memory. Data is lost when the
// process exits.
type MemoryBackend struct {
	closed atomic.Bool

	events *table[codec.Event]
	starts *table[GameStart]
	moves  *table[GameMove]
	chats  *table[GameChat]
}

// Compile-time interface check.
var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		events: newTable[codec.Event](),
		starts: newTable[GameStart](),
		moves:  newTable[GameMove](),
		chats:  newTable[GameChat](),
	}
}

// PutEvent implements Backend.
func (m *MemoryBackend) PutEvent(ev codec.Event) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	return m.events.put(ev.ID, cloneEvent(ev)), nil
}

// GetEvent implements Backend.
func (m *MemoryBackend) GetEvent(id string) (codec.Event, error) {
	if m.closed.Load() {
		return codec.Event{}, ErrClosed
	}
	ev, ok := m.events.get(id)
	if !ok {
		return codec.Event{}, ErrNotFound
	}
	return cloneEvent(ev), nil
}

// EventsByKind implements Backend.
func (m *MemoryBackend) EventsByKind(kinds ...int) ([]codec.Event, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	rows := m.events.filter(func(ev codec.Event) bool {
		return len(kinds) == 0 || slices.Contains(kinds, ev.Kind)
	})
	for i := range rows {
		rows[i] = cloneEvent(rows[i])
	}
	return rows, nil
}

// PutGameStart implements Backend.
func (m *MemoryBackend) PutGameStart(p GameStart) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	p.Event = cloneEvent(p.Event)
	p.EventTags = slices.Clone(p.EventTags)
	return m.starts.put(p.ID(), p), nil
}

// GetGameStart implements Backend.
func (m *MemoryBackend) GetGameStart(id string) (GameStart, error) {
	if m.closed.Load() {
		return GameStart{}, ErrClosed
	}
	p, ok := m.starts.get(id)
	if !ok {
		return GameStart{}, ErrNotFound
	}
	return p, nil
}

// GameStartsByTag implements Backend.
func (m *MemoryBackend) GameStartsByTag(ref string) ([]GameStart, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.starts.filter(func(p GameStart) bool {
		return slices.Contains(p.EventTags, ref)
	}), nil
}

// PutGameMove implements Backend.
func (m *MemoryBackend) PutGameMove(p GameMove) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	p.Event = cloneEvent(p.Event)
	return m.moves.put(p.ID(), p), nil
}

// GetGameMove implements Backend.
func (m *MemoryBackend) GetGameMove(id string) (GameMove, error) {
	if m.closed.Load() {
		return GameMove{}, ErrClosed
	}
	p, ok := m.moves.get(id)
	if !ok {
		return GameMove{}, ErrNotFound
	}
	return p, nil
}

// GameMoves implements Backend.
func (m *MemoryBackend) GameMoves(gameID string) ([]GameMove, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.moves.filter(func(p GameMove) bool {
		return p.GameID == gameID
	}), nil
}

// GameMovesAt implements Backend.
func (m *MemoryBackend) GameMovesAt(gameID string, counter int) ([]GameMove, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.moves.filter(func(p GameMove) bool {
		return p.GameID == gameID && p.MoveCounter == counter
	}), nil
}

// PutGameChat implements Backend.
func (m *MemoryBackend) PutGameChat(p GameChat) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	p.Event = cloneEvent(p.Event)
	return m.chats.put(p.ID(), p), nil
}

// GameChats implements Backend.
func (m *MemoryBackend) GameChats(gameID string, since, until nostr.Timestamp) ([]GameChat, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.chats.filter(func(p GameChat) bool {
		at := p.Event.CreatedAt
		return p.GameID == gameID && at >= since && (until == 0 || at <= until)
	}), nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.closed.Store(true)
	return nil
}

// Len returns the number of stored events.
// Useful for testing.
func (m *MemoryBackend) Len() int {
	return m.events.len()
}

// cloneEvent copies the tag slices so callers cannot alias stored rows.
func cloneEvent(ev codec.Event) codec.Event {
	if ev.Tags != nil {
		tags := make(nostr.Tags, len(ev.Tags))
		for i, tag := range ev.Tags {
			tags[i] = slices.Clone(tag)
		}
		ev.Tags = tags
	}
	return ev
}
