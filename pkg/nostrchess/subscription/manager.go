package subscription

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/relay"
)

// ErrInvalidFilter indicates a filter that cannot be sent to a relay.
var ErrInvalidFilter = errors.New("invalid filter")

// ErrEmptyID indicates Update was called without a subscription id.
var ErrEmptyID = errors.New("subscription id required")

// OpKind distinguishes the two wire operations.
type OpKind int

const (
	// OpClose closes a subscription on the relay.
	OpClose OpKind = iota
	// OpReq opens or replaces a subscription on the relay.
	OpReq
)

// String returns the frame name.
func (k OpKind) String() string {
	if k == OpClose {
		return string(relay.FrameClose)
	}
	return string(relay.FrameReq)
}

// Op is one frame to send.
type Op struct {
	Kind    OpKind
	ID      string
	Filters []nostr.Filter
}

// Frame encodes the op for the wire.
func (o Op) Frame() ([]byte, error) {
	if o.Kind == OpClose {
		return relay.EncodeClose(o.ID)
	}
	return relay.EncodeReq(o.ID, o.Filters)
}

// Manager holds desired and applied subscription state. It is safe for
// concurrent use.
type Manager struct {
	mu      sync.Mutex
	desired map[string][]nostr.Filter
	current map[string][]nostr.Filter
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		desired: make(map[string][]nostr.Filter),
		current: make(map[string][]nostr.Filter),
	}
}

// Update sets the desired filters for id. No filters removes id.
func (m *Manager) Update(id string, filters ...nostr.Filter) error {
	if id == "" {
		return ErrEmptyID
	}
	for i := range filters {
		if err := Validate(filters[i]); err != nil {
			return fmt.Errorf("subscription %s filter %d: %w", id, i, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(filters) == 0 {
		delete(m.desired, id)
		return nil
	}
	m.desired[id] = cloneFilters(filters)
	return nil
}

// Reconcile returns the ops that bring the relay from the applied state to
// the desired one and records desired as applied. CLOSE ops come first, then
// REQ ops, each ordered by id. A second call without an intervening Update
// returns nothing.
func (m *Manager) Reconcile() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closes, reqs []Op
	for id := range m.current {
		if _, ok := m.desired[id]; !ok {
			closes = append(closes, Op{Kind: OpClose, ID: id})
		}
	}
	for id, filters := range m.desired {
		if applied, ok := m.current[id]; ok && filtersEqual(applied, filters) {
			continue
		}
		reqs = append(reqs, Op{Kind: OpReq, ID: id, Filters: cloneFilters(filters)})
	}

	sort.Slice(closes, func(i, j int) bool { return closes[i].ID < closes[j].ID })
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })

	m.current = make(map[string][]nostr.Filter, len(m.desired))
	for id, filters := range m.desired {
		m.current[id] = filters
	}
	return append(closes, reqs...)
}

// Reset forgets the applied state. Call it when the transport is replaced.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = make(map[string][]nostr.Filter)
}

// Desired returns a snapshot of the requested subscriptions.
func (m *Manager) Desired() map[string][]nostr.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot(m.desired)
}

// Current returns a snapshot of the applied subscriptions.
func (m *Manager) Current() map[string][]nostr.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot(m.current)
}

// Validate rejects filters a relay cannot interpret.
func Validate(f nostr.Filter) error {
	if f.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidFilter, f.Limit)
	}
	for key := range f.Tags {
		if len(key) != 1 || !isLetter(key[0]) {
			return fmt.Errorf("%w: tag key %q must be a single letter", ErrInvalidFilter, key)
		}
	}
	if f.Since != nil && f.Until != nil && *f.Since > *f.Until {
		return fmt.Errorf("%w: since after until", ErrInvalidFilter)
	}
	return nil
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// filtersEqual compares filter lists position by position. FilterEqual
// ignores Limit, so it is compared here.
func filtersEqual(a, b []nostr.Filter) bool {
	return slices.EqualFunc(a, b, func(x, y nostr.Filter) bool {
		return x.Limit == y.Limit && nostr.FilterEqual(x, y)
	})
}

func cloneFilters(filters []nostr.Filter) []nostr.Filter {
	out := make([]nostr.Filter, len(filters))
	for i, f := range filters {
		out[i] = f.Clone()
	}
	return out
}

func snapshot(src map[string][]nostr.Filter) map[string][]nostr.Filter {
	out := make(map[string][]nostr.Filter, len(src))
	for id, filters := range src {
		out[id] = cloneFilters(filters)
	}
	return out
}
