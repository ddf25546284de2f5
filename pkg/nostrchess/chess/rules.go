package chess

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// Sentinel errors for rules checks.
var (
	// ErrIllegalMove indicates a SAN token that is not legal in its position.
	ErrIllegalMove = errors.New("illegal move")

	// ErrNotSuccessor indicates the child does not extend the parent by exactly one move.
	ErrNotSuccessor = errors.New("not a one-move continuation")
)

// Rules is the chess capability consumed by the store and head resolver.
type Rules interface {
	// Plies counts the half-moves in the PGN movetext without checking legality.
	Plies(pgn string) int

	// Successor returns nil when child extends parent by exactly one legal move.
	Successor(parentPGN, childPGN string) error

	// FEN returns the position reached after replaying the PGN.
	FEN(pgn string) (string, error)
}

// Standard implements Rules for orthodox chess.
type Standard struct{}

// Compile-time interface check.
var _ Rules = Standard{}

// Plies implements Rules.
func (Standard) Plies(pgn string) int {
	return len(sanTokens(pgn))
}

// FEN implements Rules.
func (Standard) FEN(pgn string) (string, error) {
	g, err := replay(pgn)
	if err != nil {
		return "", err
	}
	return g.Position().String(), nil
}

// Successor implements Rules.
func (Standard) Successor(parentPGN, childPGN string) error {
	parent, err := replay(parentPGN)
	if err != nil {
		return fmt.Errorf("parent: %w", err)
	}
	child, err := replay(childPGN)
	if err != nil {
		return err
	}

	pm, cm := parent.Moves(), child.Moves()
	if len(cm) != len(pm)+1 {
		return fmt.Errorf("%w: parent has %d plies, child has %d", ErrNotSuccessor, len(pm), len(cm))
	}
	if parent.Positions()[0].String() != child.Positions()[0].String() {
		return fmt.Errorf("%w: different starting positions", ErrNotSuccessor)
	}
	for i := range pm {
		if pm[i].String() != cm[i].String() {
			return fmt.Errorf("%w: diverges at ply %d", ErrNotSuccessor, i+1)
		}
	}
	return nil
}

// replay decodes the PGN into a game. A FEN tag sets the starting position.
func replay(pgn string) (*chess.Game, error) {
	opt, err := chess.PGN(strings.NewReader(normalizeCastling(pgn)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return chess.NewGame(opt), nil
}
