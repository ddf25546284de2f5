package nostrchess

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/relay"
)

// Subscribe sets the filters of subscription id and sends the difference to
// the relay. Calling it again with identical filters sends nothing.
func (c *Client) Subscribe(id string, filters ...nostr.Filter) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.subs.Update(id, filters...); err != nil {
		return err
	}
	c.flush()
	return nil
}

// Unsubscribe closes subscription id.
func (c *Client) Unsubscribe(id string) error {
	return c.Subscribe(id)
}

// WatchGame subscribes to a game's start, moves and chat, returning the
// subscription id. Watching the same game twice reuses the subscription.
func (c *Client) WatchGame(gameID string) (string, error) {
	if gameID == "" {
		return "", fmt.Errorf("%w: empty game id", ErrUnknownGame)
	}

	c.watchMu.Lock()
	id, ok := c.watches[gameID]
	if !ok {
		id = uuid.NewString()
		c.watches[gameID] = id
	}
	c.watchMu.Unlock()

	err := c.Subscribe(id,
		nostr.Filter{IDs: []string{gameID}, Kinds: []int{c.cfg.GameKind}},
		nostr.Filter{Kinds: []int{c.cfg.GameKind, c.cfg.ChatKind}, Tags: nostr.TagMap{"e": {gameID}}},
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// UnwatchGame drops the subscription created by WatchGame.
func (c *Client) UnwatchGame(gameID string) error {
	c.watchMu.Lock()
	id, ok := c.watches[gameID]
	delete(c.watches, gameID)
	c.watchMu.Unlock()

	if !ok {
		return nil
	}
	return c.Unsubscribe(id)
}

// resubscribe runs on every new connection. The relay has forgotten all
// subscriptions, so the applied state starts from empty.
func (c *Client) resubscribe() {
	c.subs.Reset()
	c.flush()
}

// flush reconciles subscriptions onto an open connection. While the link is
// not open nothing is reconciled; the next open resubmits everything.
func (c *Client) flush() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	if c.link.Status().State != relay.StateOpen {
		return
	}
	for _, op := range c.subs.Reconcile() {
		frame, err := op.Frame()
		if err != nil {
			if c.logger != nil {
				c.logger.Error("encode subscription frame",
					slog.String("subscription", op.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		c.link.Send(frame)
	}
}
