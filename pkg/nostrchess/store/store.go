package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/chess"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
	chesserrors "github.com/randalmurphal/nostrchess/pkg/nostrchess/errors"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/observability"
)

// Default event kinds.
const (
	DefaultGameKind = 30
	DefaultChatKind = 1
)

// Outcome is the disposition of an ingested event.
type Outcome int

// Ingest outcomes.
const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeRejected
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return observability.OutcomeAccepted
	case OutcomeDuplicate:
		return observability.OutcomeDuplicate
	default:
		return observability.OutcomeRejected
	}
}

// ProjectionKind names a projection table.
type ProjectionKind string

// Projection tables.
const (
	ProjectionGameStart ProjectionKind = "game_start"
	ProjectionGameMove  ProjectionKind = "game_move"
	ProjectionGameChat  ProjectionKind = "game_chat"
)

// Result describes what Ingest did with an event.
type Result struct {
	Outcome Outcome

	// Projections lists the tables the event was projected into. For a
	// duplicate it lists only projections this delivery filled in.
	Projections []ProjectionKind

	// Reason is set when the event was rejected. It is never returned as an
	// error because untrusted input failing validation is expected.
	Reason error
}

// Projected reports whether the event landed in projection kind.
func (r Result) Projected(kind ProjectionKind) bool {
	for _, k := range r.Projections {
		if k == kind {
			return true
		}
	}
	return false
}

// Change is a single projection write.
type Change struct {
	Projection ProjectionKind
	EventID    string
	GameID     string
}

// Option configures a Store.
type Option func(*Store)

// WithKinds overrides the game and chat event kinds.
func WithKinds(gameKind, chatKind int) Option {
	return func(s *Store) {
		s.gameKind = gameKind
		s.chatKind = chatKind
	}
}

// WithRules sets the chess rules used to count plies.
func WithRules(r chess.Rules) Option {
	return func(s *Store) { s.rules = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Store) { s.metrics = m }
}

// WithSpanManager sets the span manager.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *Store) { s.spans = sm }
}

// Store runs the ingest pipeline over a Backend: verify, append, classify,
// project, notify. It is safe for concurrent use.
type Store struct {
	backend  Backend
	gameKind int
	chatKind int
	rules    chess.Rules
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager

	hooksMu sync.RWMutex
	hooks   []func(Change)
}

// New creates a store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		gameKind: DefaultGameKind,
		chatKind: DefaultChatKind,
		rules:    chess.Standard{},
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GameKind returns the event kind of starts and moves.
func (s *Store) GameKind() int { return s.gameKind }

// ChatKind returns the event kind of chat messages.
func (s *Store) ChatKind() int { return s.chatKind }

// OnChange registers a hook called synchronously after every projection
// write, on the ingesting goroutine.
func (s *Store) OnChange(fn func(Change)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Ingest verifies ev and, if it is new, stores and projects it.
// Invalid events are rejected without an error; only backend failures are
// returned.
func (s *Store) Ingest(ctx context.Context, ev codec.Event) (result Result, err error) {
	ctx, span := s.spans.StartIngestSpan(ctx, ev.ID, ev.Kind)
	defer func() { s.spans.EndSpanWithError(span, err) }()

	if cerr := codec.Check(ev); cerr != nil {
		observability.LogEventRejected(s.logger, ev.ID, cerr)
		s.metrics.RecordIngest(ctx, ev.Kind, observability.OutcomeRejected)
		return Result{Outcome: OutcomeRejected, Reason: cerr}, nil
	}

	inserted, err := s.backend.PutEvent(ev)
	if err != nil {
		observability.LogStoreError(s.logger, "put_event", ev.ID, err)
		if errors.Is(err, ErrClosed) {
			err = chesserrors.Permanent(err, "put event")
		}
		return Result{}, fmt.Errorf("store event: %w", err)
	}
	if !inserted {
		return s.reproject(ctx, ev)
	}

	projections, changes, err := s.project(ev)
	// Changes already written are announced even if a later rule failed.
	s.notify(changes)
	if err != nil {
		observability.LogStoreError(s.logger, "project", ev.ID, err)
		return Result{Outcome: OutcomeAccepted, Projections: projections}, fmt.Errorf("project event: %w", err)
	}

	names := make([]string, len(projections))
	for i, p := range projections {
		names[i] = string(p)
	}
	observability.LogEventStored(s.logger, ev.ID, ev.Kind, names)
	s.metrics.RecordIngest(ctx, ev.Kind, observability.OutcomeAccepted)
	s.spans.AddSpanEvent(ctx, "projected")

	return Result{Outcome: OutcomeAccepted, Projections: projections}, nil
}

// reproject handles a redelivered event. Projection writes are idempotent,
// so running them again fills in any a failed earlier ingest left out.
func (s *Store) reproject(ctx context.Context, ev codec.Event) (Result, error) {
	s.metrics.RecordIngest(ctx, ev.Kind, observability.OutcomeDuplicate)

	projections, changes, err := s.project(ev)
	s.notify(changes)
	if err != nil {
		observability.LogStoreError(s.logger, "project", ev.ID, err)
		return Result{Outcome: OutcomeDuplicate, Projections: projections}, fmt.Errorf("project event: %w", err)
	}
	if len(projections) > 0 && s.logger != nil {
		s.logger.Info("repaired projections",
			slog.String("event_id", ev.ID),
			slog.Int("count", len(projections)),
		)
	}
	return Result{Outcome: OutcomeDuplicate, Projections: projections}, nil
}

// project runs each classification rule against ev. The rules are
// independent; each writes only its own table.
func (s *Store) project(ev codec.Event) ([]ProjectionKind, []Change, error) {
	var (
		kinds   []ProjectionKind
		changes []Change
		errs    []error
	)

	if p, ok := s.classifyStart(ev); ok {
		inserted, err := s.backend.PutGameStart(p)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("game start: %w", err))
		case inserted:
			kinds = append(kinds, ProjectionGameStart)
			changes = append(changes, Change{Projection: ProjectionGameStart, EventID: ev.ID, GameID: ev.ID})
			late, err := s.reclassifyChats(ev.ID)
			changes = append(changes, late...)
			if err != nil {
				errs = append(errs, fmt.Errorf("reclassify chat: %w", err))
			}
		}
	}

	if p, ok := s.classifyMove(ev); ok {
		inserted, err := s.backend.PutGameMove(p)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("game move: %w", err))
		case inserted:
			kinds = append(kinds, ProjectionGameMove)
			changes = append(changes, Change{Projection: ProjectionGameMove, EventID: ev.ID, GameID: p.GameID})
		}
	}

	p, ok, err := s.classifyChat(ev)
	if err != nil {
		errs = append(errs, fmt.Errorf("classify chat: %w", err))
	} else if ok {
		inserted, err := s.backend.PutGameChat(p)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("game chat: %w", err))
		case inserted:
			kinds = append(kinds, ProjectionGameChat)
			changes = append(changes, Change{Projection: ProjectionGameChat, EventID: ev.ID, GameID: p.GameID})
		}
	}

	return kinds, changes, errors.Join(errs...)
}

// reclassifyChats projects chat messages that arrived before their game.
func (s *Store) reclassifyChats(gameID string) ([]Change, error) {
	events, err := s.QueryEvents(nostr.Filter{
		Kinds: []int{s.chatKind},
		Tags:  nostr.TagMap{"e": {gameID}},
	})
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, ev := range events {
		p, ok, err := s.classifyChat(ev)
		if err != nil {
			return changes, err
		}
		if !ok {
			continue
		}
		inserted, err := s.backend.PutGameChat(p)
		if err != nil {
			return changes, err
		}
		if inserted {
			changes = append(changes, Change{Projection: ProjectionGameChat, EventID: ev.ID, GameID: p.GameID})
		}
	}
	return changes, nil
}

func (s *Store) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.hooksMu.RLock()
	hooks := make([]func(Change), len(s.hooks))
	copy(hooks, s.hooks)
	s.hooksMu.RUnlock()

	for _, c := range changes {
		for _, fn := range hooks {
			fn(c)
		}
	}
}

// QueryEvents returns stored events matching filter in insertion order.
// A positive Limit keeps the first Limit matches.
func (s *Store) QueryEvents(filter nostr.Filter) ([]codec.Event, error) {
	events, err := s.backend.EventsByKind(filter.Kinds...)
	if err != nil {
		return nil, err
	}
	var out []codec.Event
	for _, ev := range events {
		if !filter.Matches(ev.Nostr()) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Event returns a stored event by id.
func (s *Store) Event(id string) (codec.Event, error) {
	return s.backend.GetEvent(id)
}

// GameStart returns the start projection for a game id.
func (s *Store) GameStart(id string) (GameStart, error) {
	return s.backend.GetGameStart(id)
}

// GameStartsByTag returns starts indexed under ref, such as challenges to a player.
func (s *Store) GameStartsByTag(ref string) ([]GameStart, error) {
	return s.backend.GameStartsByTag(ref)
}

// GameMove returns a move projection by id.
func (s *Store) GameMove(id string) (GameMove, error) {
	return s.backend.GetGameMove(id)
}

// GameMoves returns every move of a game in insertion order.
func (s *Store) GameMoves(gameID string) ([]GameMove, error) {
	return s.backend.GameMoves(gameID)
}

// GameMovesAt returns the moves of a game at a ply count.
func (s *Store) GameMovesAt(gameID string, counter int) ([]GameMove, error) {
	return s.backend.GameMovesAt(gameID, counter)
}

// GameChats returns a game's chat within a created_at range. A zero until
// means no upper bound.
func (s *Store) GameChats(gameID string, since, until nostr.Timestamp) ([]GameChat, error) {
	return s.backend.GameChats(gameID, since, until)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
