package nostrchess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nbd-wtf/go-nostr"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/head"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/observability"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/store"
)

// GameState is the resolved view of one game.
type GameState struct {
	GameID string

	// Head is the canonical latest position; the start if no move is accepted.
	Head head.Position

	// Children are the moves proposed on top of Head, earliest first.
	Children []head.Position

	IsSearchingHead bool

	// Depth is the number of accepted moves.
	Depth int

	// FEN is the board after Head. It is empty if the position cannot be
	// replayed.
	FEN string
}

// GameState resolves the current state of a stored game.
func (c *Client) GameState(ctx context.Context, gameID string) (GameState, error) {
	if c.closed.Load() {
		return GameState{}, ErrClientClosed
	}

	start, err := c.store.GameStart(gameID)
	if errors.Is(err, store.ErrNotFound) {
		return GameState{}, fmt.Errorf("%w: %s", ErrUnknownGame, gameID)
	}
	if err != nil {
		return GameState{}, fmt.Errorf("load game start: %w", err)
	}
	moves, err := c.store.GameMoves(gameID)
	if err != nil {
		return GameState{}, fmt.Errorf("load game moves: %w", err)
	}

	res := c.resolver.Resolve(ctx, start, moves)
	state := GameState{
		GameID:          gameID,
		Head:            res.Head,
		Children:        res.Children,
		IsSearchingHead: res.IsSearchingHead,
		Depth:           res.Depth,
	}
	if fen, err := c.rules.FEN(res.Head.PGN()); err == nil {
		state.FEN = fen
	}
	return state, nil
}

// Chat returns a game's chat with since <= created_at <= until. A zero
// until means no upper bound.
func (c *Client) Chat(gameID string, since, until nostr.Timestamp) ([]store.GameChat, error) {
	return c.store.GameChats(gameID, since, until)
}

// Challenges returns game starts that reference ref.
func (c *Client) Challenges(ref string) ([]store.GameStart, error) {
	return c.store.GameStartsByTag(ref)
}

// onChange re-resolves a game after its start or a move was projected and
// publishes the state when the head moved.
func (c *Client) onChange(ch store.Change) {
	if ch.Projection == store.ProjectionGameChat || c.closed.Load() {
		return
	}

	// Serializing here keeps published heads in resolution order.
	c.headsMu.Lock()
	defer c.headsMu.Unlock()

	state, err := c.GameState(context.Background(), ch.GameID)
	if errors.Is(err, ErrUnknownGame) {
		// A move for a game whose start has not arrived yet.
		return
	}
	if err != nil {
		if logger := observability.EnrichLogger(c.logger, c.link.Status().URL, ch.GameID); logger != nil {
			logger.Warn("resolve game", slog.String("error", err.Error()))
		}
		return
	}

	if prev, ok := c.heads[ch.GameID]; ok && prev == state.Head.ID() {
		return
	}
	c.heads[ch.GameID] = state.Head.ID()
	_ = c.feeds.Games.Publish(context.Background(), ch.GameID, state)
}
