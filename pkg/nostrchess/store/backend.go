package store

import (
	"errors"

	"github.com/nbd-wtf/go-nostr"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
)

// Backend persists events and projections.
// Implementations must be safe for concurrent use. Every Put is idempotent
// by event id: a second insert of the same id reports inserted=false and
// no error.
type Backend interface {
	// PutEvent appends a verified event.
	PutEvent(ev codec.Event) (inserted bool, err error)

	// GetEvent returns ErrNotFound if the id is unknown.
	GetEvent(id string) (codec.Event, error)

	// EventsByKind returns events of the given kinds in insertion order.
	// No kinds means every event.
	EventsByKind(kinds ...int) ([]codec.Event, error)

	PutGameStart(p GameStart) (inserted bool, err error)

	// GetGameStart returns ErrNotFound if no start was projected for id.
	GetGameStart(id string) (GameStart, error)

	// GameStartsByTag returns starts whose EventTags contain ref, in insertion order.
	GameStartsByTag(ref string) ([]GameStart, error)

	PutGameMove(p GameMove) (inserted bool, err error)

	// GetGameMove returns ErrNotFound if no move was projected for id.
	GetGameMove(id string) (GameMove, error)

	// GameMoves returns every move of a game in insertion order.
	GameMoves(gameID string) ([]GameMove, error)

	// GameMovesAt returns the moves of a game with the given counter, in
	// insertion order. Forks make more than one possible.
	GameMovesAt(gameID string, counter int) ([]GameMove, error)

	PutGameChat(p GameChat) (inserted bool, err error)

	// GameChats returns the chat of a game with since <= created_at <= until,
	// in insertion order. A zero until means no upper bound.
	GameChats(gameID string, since, until nostr.Timestamp) ([]GameChat, error)

	// Close releases resources. Further calls return ErrClosed.
	Close() error
}

// GameStart is the projection of a game-opening event.
type GameStart struct {
	Event codec.Event

	// EventTags are the non-root "e" references, used to index challenges.
	EventTags []string
}

// ID returns the event id, which is also the game id.
func (p GameStart) ID() string { return p.Event.ID }

// GameMove is the projection of a move event.
type GameMove struct {
	Event  codec.Event
	GameID string

	// ParentMoveID is empty for the first move of a game.
	ParentMoveID string

	// MoveCounter is the ply count of the move's PGN.
	MoveCounter int
}

// ID returns the event id.
func (p GameMove) ID() string { return p.Event.ID }

// GameChat is the projection of a chat message attached to a game.
type GameChat struct {
	Event          codec.Event
	GameID         string
	PreviousChatID string
}

// ID returns the event id.
func (p GameChat) ID() string { return p.Event.ID }

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed indicates the backend or store has been closed.
	ErrClosed = errors.New("store closed")
)
