package nostrchess

import (
	"context"
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/relay"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/store"
)

// PublishResult reports what happened to a published event.
type PublishResult struct {
	Event  codec.Event
	Ingest store.Result

	// Sent is false when the link was disconnected and the frame was dropped.
	// The event is still stored locally.
	Sent bool
}

// Publish signs u with the client's key and publishes it.
func (c *Client) Publish(ctx context.Context, u codec.UnsignedEvent) (PublishResult, error) {
	if c.closed.Load() {
		return PublishResult{}, ErrClientClosed
	}
	if c.signer == nil {
		return PublishResult{}, ErrNoSigner
	}
	ev, err := c.signer.SignEvent(u)
	if err != nil {
		return PublishResult{}, &PublishError{Op: "sign", Err: err}
	}
	return c.PublishEvent(ctx, ev)
}

// PublishEvent publishes an already signed event. It is verified first; an
// event that fails verification is never stored or sent.
func (c *Client) PublishEvent(ctx context.Context, ev codec.Event) (PublishResult, error) {
	if c.closed.Load() {
		return PublishResult{}, ErrClientClosed
	}
	if err := codec.Check(ev); err != nil {
		return PublishResult{}, &PublishError{EventID: ev.ID, Op: "verify", Err: err}
	}

	res, err := c.store.Ingest(ctx, ev)
	if err != nil {
		return PublishResult{}, &PublishError{EventID: ev.ID, Op: "ingest", Err: err}
	}

	frame, err := relay.EncodeEvent(ev)
	if err != nil {
		return PublishResult{}, &PublishError{EventID: ev.ID, Op: "encode", Err: err}
	}
	return PublishResult{Event: ev, Ingest: res, Sent: c.link.Send(frame)}, nil
}

// gameContent is the JSON content of game-kind events.
type gameContent struct {
	PGN string `json:"pgn"`
}

func encodeContent(pgn string) string {
	data, _ := json.Marshal(gameContent{PGN: pgn})
	return string(data)
}

// NewGameStart builds a game start. pgn should contain no moves; it may carry
// tag pairs such as a FEN setup. refs are indexed for challenge lookups.
func (c *Client) NewGameStart(pgn string, refs ...string) codec.UnsignedEvent {
	tags := make(nostr.Tags, 0, len(refs))
	for _, ref := range refs {
		tags = append(tags, nostr.Tag{"e", ref})
	}
	return codec.UnsignedEvent{
		Kind:    c.cfg.GameKind,
		Tags:    tags,
		Content: encodeContent(pgn),
	}
}

// NewGameMove builds a move whose pgn is the full game so far. An empty
// parentID makes it the first move of the game.
func (c *Client) NewGameMove(gameID, parentID, pgn string) codec.UnsignedEvent {
	if parentID == "" {
		parentID = gameID
	}
	return codec.UnsignedEvent{
		Kind:    c.cfg.GameKind,
		Tags:    nostr.Tags{codec.RootTag(gameID), codec.ReplyTag(parentID)},
		Content: encodeContent(pgn),
	}
}

// NewGameChat builds a chat message for a game, optionally threaded after
// a previous message.
func (c *Client) NewGameChat(gameID, previousChatID, text string) codec.UnsignedEvent {
	tags := nostr.Tags{{"e", gameID}}
	if previousChatID != "" && previousChatID != gameID {
		tags = append(tags, nostr.Tag{"e", previousChatID})
	}
	return codec.UnsignedEvent{
		Kind:    c.cfg.ChatKind,
		Tags:    tags,
		Content: text,
	}
}
