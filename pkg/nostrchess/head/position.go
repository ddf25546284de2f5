package head

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/store"
)

// Kind distinguishes the two position variants.
type Kind int

// Position kinds.
const (
	KindStart Kind = iota
	KindMove
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindStart {
		return "start"
	}
	return "move"
}

// Position is either a game start or a move. The zero value is an empty
// start position with no id.
type Position struct {
	kind  Kind
	start store.GameStart
	move  store.GameMove
}

// StartPosition wraps a game start.
func StartPosition(p store.GameStart) Position {
	return Position{kind: KindStart, start: p}
}

// MovePosition wraps a move.
func MovePosition(p store.GameMove) Position {
	return Position{kind: KindMove, move: p}
}

// Kind returns the variant.
func (p Position) Kind() Kind { return p.kind }

// Start returns the game start if p is one.
func (p Position) Start() (store.GameStart, bool) {
	return p.start, p.kind == KindStart
}

// Move returns the move if p is one.
func (p Position) Move() (store.GameMove, bool) {
	return p.move, p.kind == KindMove
}

// ID returns the event id.
func (p Position) ID() string {
	switch p.kind {
	case KindMove:
		return p.move.ID()
	default:
		return p.start.ID()
	}
}

// GameID returns the id of the game the position belongs to.
func (p Position) GameID() string {
	switch p.kind {
	case KindMove:
		return p.move.GameID
	default:
		return p.start.ID()
	}
}

// ParentID returns the previous move id. It is empty for a start and for
// the first move of a game.
func (p Position) ParentID() string {
	switch p.kind {
	case KindMove:
		return p.move.ParentMoveID
	default:
		return ""
	}
}

// Counter returns the ply count. A start is ply zero.
func (p Position) Counter() int {
	switch p.kind {
	case KindMove:
		return p.move.MoveCounter
	default:
		return 0
	}
}

// CreatedAt returns the event timestamp.
func (p Position) CreatedAt() nostr.Timestamp {
	switch p.kind {
	case KindMove:
		return p.move.Event.CreatedAt
	default:
		return p.start.Event.CreatedAt
	}
}

// PGN returns the pgn carried by the event, or "" if it has none.
func (p Position) PGN() string {
	content := p.start.Event.Content
	if p.kind == KindMove {
		content = p.move.Event.Content
	}
	pgn, _ := store.ContentPGN(content)
	return pgn
}
