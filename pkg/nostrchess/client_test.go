package nostrchess_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/config"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/head"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/relay"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/store"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func testConfig(t *testing.T, relayURL string) config.Client {
	t.Helper()
	key, err := codec.GeneratePrivateKey()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.RelayURL = relayURL
	cfg.PrivateKey = key
	cfg.BackoffStep = 20 * time.Millisecond
	cfg.BackoffMax = 50 * time.Millisecond
	cfg.HealthyDwell = 50 * time.Millisecond
	cfg.ConnectTimeout = time.Second
	return cfg
}

func newClient(t *testing.T, relayURL string, opts ...nostrchess.Option) *nostrchess.Client {
	t.Helper()
	c, err := nostrchess.New(testConfig(t, relayURL), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// peerKey signs events as a second player.
type peerKey string

func newPeer(t *testing.T) peerKey {
	t.Helper()
	key, err := codec.GeneratePrivateKey()
	require.NoError(t, err)
	return peerKey(key)
}

func (k peerKey) sign(t *testing.T, u codec.UnsignedEvent, createdAt int64) codec.Event {
	t.Helper()
	u.CreatedAt = nostr.Timestamp(createdAt)
	ev, err := codec.Sign(u, string(k))
	require.NoError(t, err)
	return ev
}

func TestClient_EndToEndResolution(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:1")
	p := newPeer(t)
	ctx := context.Background()

	start := p.sign(t, c.NewGameStart(""), 100)
	later := p.sign(t, c.NewGameMove(start.ID, "", "1. e4"), 200)
	earlier := p.sign(t, c.NewGameMove(start.ID, "", "1. d4"), 150)

	for _, ev := range []codec.Event{start, later, earlier} {
		res, err := c.Ingest(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, store.OutcomeAccepted, res.Outcome)
	}

	state, err := c.GameState(ctx, start.ID)
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, state.Head.ID())
	assert.Equal(t, head.KindMove, state.Head.Kind())
	assert.False(t, state.IsSearchingHead)
	assert.Equal(t, 1, state.Depth)
	assert.Contains(t, state.FEN, "3P4")
}

func TestClient_FeedPublishesHeadChanges(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:1")
	p := newPeer(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		heads []string
	)
	_, err := c.Feed().Games.Subscribe(func(_ context.Context, gameID string, s nostrchess.GameState) {
		mu.Lock()
		defer mu.Unlock()
		heads = append(heads, s.Head.ID())
	})
	require.NoError(t, err)

	start := p.sign(t, c.NewGameStart(""), 100)
	m1 := p.sign(t, c.NewGameMove(start.ID, "", "1. e4"), 110)
	m2 := p.sign(t, c.NewGameMove(start.ID, m1.ID, "1. e4 e5"), 120)
	// A late sibling that loses the fork does not move the head.
	loser := p.sign(t, c.NewGameMove(start.ID, m1.ID, "1. e4 c5"), 130)

	// The move arrives before its game; nothing is published until the start.
	for _, ev := range []codec.Event{m1, start, m2, loser} {
		_, err := c.Ingest(ctx, ev)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(heads) == 2
	}, waitFor, tick)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{m1.ID, m2.ID}, heads)
}

func TestClient_UnknownGame(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:1")
	_, err := c.GameState(context.Background(), "missing")
	assert.ErrorIs(t, err, nostrchess.ErrUnknownGame)

	_, err = c.WatchGame("")
	assert.ErrorIs(t, err, nostrchess.ErrUnknownGame)
}

func TestClient_PublishOffline(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:1")
	ctx := context.Background()

	res, err := c.Publish(ctx, c.NewGameStart("", "challenged-ref"))
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, c.PublicKey(), res.Event.PubKey)
	assert.True(t, res.Ingest.Projected(store.ProjectionGameStart))

	challenges, err := c.Challenges("challenged-ref")
	require.NoError(t, err)
	require.Len(t, challenges, 1)
	assert.Equal(t, res.Event.ID, challenges[0].ID())

	chat, err := c.Publish(ctx, c.NewGameChat(res.Event.ID, "", "good luck"))
	require.NoError(t, err)
	assert.True(t, chat.Ingest.Projected(store.ProjectionGameChat))

	msgs, err := c.Chat(res.Event.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "good luck", msgs[0].Event.Content)
}

func TestClient_PublishRequiresSigner(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:1")
	cfg.PrivateKey = ""
	c, err := nostrchess.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Empty(t, c.PublicKey())
	_, err = c.Publish(context.Background(), c.NewGameStart(""))
	assert.ErrorIs(t, err, nostrchess.ErrNoSigner)
}

func TestClient_PublishEventVerifiesFirst(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:1")
	p := newPeer(t)

	ev := p.sign(t, c.NewGameStart(""), 100)
	ev.Content = `{"pgn":"1. e4"}`

	_, err := c.PublishEvent(context.Background(), ev)
	var perr *nostrchess.PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "verify", perr.Op)

	_, err = c.Store().Event(ev.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClient_Builders(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:1")

	start := c.NewGameStart("[FEN \"8/8/8/8/8/8/8/K6k w - - 0 1\"]", "a", "b")
	assert.Equal(t, 30, start.Kind)
	assert.Equal(t, nostr.Tags{{"e", "a"}, {"e", "b"}}, start.Tags)
	pgn, ok := store.ContentPGN(start.Content)
	require.True(t, ok)
	assert.Contains(t, pgn, "FEN")

	first := c.NewGameMove("g", "", "1. e4")
	assert.Equal(t, nostr.Tags{codec.RootTag("g"), codec.ReplyTag("g")}, first.Tags)

	next := c.NewGameMove("g", "m1", "1. e4 e5")
	assert.Equal(t, nostr.Tags{codec.RootTag("g"), codec.ReplyTag("m1")}, next.Tags)

	chat := c.NewGameChat("g", "c1", "hi")
	assert.Equal(t, 1, chat.Kind)
	assert.Equal(t, nostr.Tags{{"e", "g"}, {"e", "c1"}}, chat.Tags)
	assert.Equal(t, "hi", chat.Content)

	assert.Len(t, c.NewGameChat("g", "", "hi").Tags, 1)
}

func TestClient_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := nostrchess.New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestClient_Closed(t *testing.T) {
	c, err := nostrchess.New(testConfig(t, "ws://127.0.0.1:1"))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	ctx := context.Background()
	assert.ErrorIs(t, c.Start(ctx), nostrchess.ErrClientClosed)
	assert.ErrorIs(t, c.Subscribe("x", nostr.Filter{}), nostrchess.ErrClientClosed)
	_, err = c.Publish(ctx, c.NewGameStart(""))
	assert.ErrorIs(t, err, nostrchess.ErrClientClosed)
	_, err = c.GameState(ctx, "g")
	assert.ErrorIs(t, err, nostrchess.ErrClientClosed)
	_, err = c.Ingest(ctx, codec.Event{})
	assert.ErrorIs(t, err, nostrchess.ErrClientClosed)
}

func TestClient_SQLiteBackend(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:1")
	cfg.DatabasePath = filepath.Join(t.TempDir(), "games.db")
	p := newPeer(t)
	ctx := context.Background()

	c, err := nostrchess.New(cfg)
	require.NoError(t, err)
	start := p.sign(t, c.NewGameStart(""), 100)
	move := p.sign(t, c.NewGameMove(start.ID, "", "1. Nf3"), 110)
	for _, ev := range []codec.Event{start, move} {
		_, err := c.Ingest(ctx, ev)
		require.NoError(t, err)
	}
	require.NoError(t, c.Close())

	// State survives a restart.
	reopened, err := nostrchess.New(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	state, err := reopened.GameState(ctx, start.ID)
	require.NoError(t, err)
	assert.Equal(t, move.ID, state.Head.ID())
}

func TestClient_WatchGameOverRelay(t *testing.T) {
	p := newPeer(t)
	scratch := newClient(t, "ws://127.0.0.1:1")
	start := p.sign(t, scratch.NewGameStart(""), 100)
	m1 := p.sign(t, scratch.NewGameMove(start.ID, "", "1. e4"), 110)
	m2 := p.sign(t, scratch.NewGameMove(start.ID, m1.ID, "1. e4 e5"), 120)

	bad := p.sign(t, scratch.NewGameMove(start.ID, m2.ID, "1. e4 e5 2. Nf3"), 130)
	bad.Sig = m2.Sig

	fr := newFakeRelay(t, m2, bad, m1, start)
	c := newClient(t, fr.url())

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return c.Status().State == relay.StateOpen }, waitFor, tick)
	subID, err := c.WatchGame(start.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, err := c.GameState(ctx, start.ID)
		return err == nil && state.Head.ID() == m2.ID
	}, waitFor, tick)

	_, err = c.Store().Event(bad.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	reqs := fr.received("REQ")
	require.NotEmpty(t, reqs)
	assert.Equal(t, subID, reqs[len(reqs)-1].subID)

	// Watching again with the same filters sends nothing new.
	before := len(fr.received("REQ"))
	again, err := c.WatchGame(start.ID)
	require.NoError(t, err)
	assert.Equal(t, subID, again)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, fr.received("REQ"), before)

	require.NoError(t, c.UnwatchGame(start.ID))
	require.Eventually(t, func() bool {
		closes := fr.received("CLOSE")
		return len(closes) == 1 && closes[0].subID == subID
	}, waitFor, tick)
}

func TestClient_ResubscribesAfterReconnect(t *testing.T) {
	fr := newFakeRelay(t)
	c := newClient(t, fr.url())

	require.NoError(t, c.Subscribe("lobby", nostr.Filter{Kinds: []int{30}}))
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		reqs := fr.received("REQ")
		return len(reqs) >= 1 && reqs[0].conn == 1 && reqs[0].subID == "lobby"
	}, waitFor, tick)

	fr.dropAll()

	require.Eventually(t, func() bool {
		for _, f := range fr.received("REQ") {
			if f.conn == 2 && f.subID == "lobby" {
				return true
			}
		}
		return false
	}, waitFor, tick)
	assert.Equal(t, 2, fr.connections())
}

func TestClient_SwitchRelay(t *testing.T) {
	first := newFakeRelay(t)
	second := newFakeRelay(t)
	c := newClient(t, first.url())

	var (
		mu       sync.Mutex
		statuses []relay.Status
	)
	_, err := c.Feed().Status.Subscribe(func(_ context.Context, _ string, st relay.Status) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, st)
	}, nostrchess.StatusTopic)
	require.NoError(t, err)

	require.NoError(t, c.Subscribe("lobby", nostr.Filter{Kinds: []int{30}}))
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(first.received("REQ")) == 1 }, waitFor, tick)

	require.NoError(t, c.SwitchRelay(context.Background(), second.url()))
	require.Eventually(t, func() bool { return len(second.received("REQ")) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return c.Status().Healthy }, waitFor, tick)
	assert.Equal(t, second.url(), c.Status().URL)
	assert.Equal(t, 1, first.connections())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) > 0 && statuses[len(statuses)-1].Healthy
	}, waitFor, tick)
}

func TestClient_PublishOverRelay(t *testing.T) {
	fr := newFakeRelay(t)
	c := newClient(t, fr.url())

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.Status().State == relay.StateOpen }, waitFor, tick)

	res, err := c.Publish(context.Background(), c.NewGameStart(""))
	require.NoError(t, err)
	assert.True(t, res.Sent)

	require.Eventually(t, func() bool {
		events := fr.received("EVENT")
		return len(events) == 1 && strings.Contains(events[0].raw, res.Event.ID)
	}, waitFor, tick)
}

func TestClient_IgnoresGarbageFrames(t *testing.T) {
	fr := newFakeRelay(t)
	c := newClient(t, fr.url())

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.Status().State == relay.StateOpen }, waitFor, tick)

	p := newPeer(t)
	good := p.sign(t, c.NewGameStart(""), 100)

	fr.broadcast(`not json`)
	fr.broadcast(`["AUTH","challenge"]`)
	fr.broadcast(`["EVENT","s",{"id":5}]`)
	fr.broadcast(`["NOTICE","rate limited"]`)
	fr.broadcast(`["EVENT","s",` + mustJSON(t, good) + `]`)

	require.Eventually(t, func() bool {
		_, err := c.Store().Event(good.ID)
		return err == nil
	}, waitFor, tick)
}
