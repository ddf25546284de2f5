package nostrchess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/chess"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/config"
	chesserrors "github.com/randalmurphal/nostrchess/pkg/nostrchess/errors"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/feed"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/head"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/observability"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/relay"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/store"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/subscription"
)

// StatusTopic is the feed topic carrying connectivity updates.
const StatusTopic = "status"

// Feeds are the observer channels of a client. Games is keyed by game id.
type Feeds struct {
	Games  *feed.Bus[GameState]
	Status *feed.Bus[relay.Status]
}

// Client ties a relay link, subscriptions, the event store and head
// resolution together. It is safe for concurrent use.
type Client struct {
	cfg     config.Client
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	rules   chess.Rules
	signer  codec.Signer

	store    *store.Store
	resolver *head.Resolver
	subs     *subscription.Manager
	link     *relay.Link
	feeds    Feeds

	// flushMu orders reconcile output on the wire.
	flushMu sync.Mutex

	headsMu sync.Mutex
	heads   map[string]string // game id -> last published head id

	watchMu sync.Mutex
	watches map[string]string // game id -> subscription id

	closed atomic.Bool
}

// New builds a client from validated settings. It does not connect; call
// Start.
func New(cfg config.Client, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	signer := o.signer
	if signer == nil && cfg.PrivateKey != "" {
		ks, err := codec.NewKeySigner(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("signer: %w", err)
		}
		signer = ks
	}

	backend := o.backend
	if backend == nil {
		if cfg.InMemory() {
			backend = store.NewMemoryBackend()
		} else {
			b, err := store.NewSQLiteBackend(cfg.DatabasePath)
			if err != nil {
				return nil, fmt.Errorf("open backend: %w", err)
			}
			backend = b
		}
	}

	c := &Client{
		cfg:     cfg,
		logger:  o.logger,
		metrics: o.metrics,
		rules:   o.rules,
		signer:  signer,
		subs:    subscription.NewManager(),
		heads:   make(map[string]string),
		watches: make(map[string]string),
		feeds: Feeds{
			Games:  feed.NewBus[GameState](feed.Config{NonBlocking: true, OnDrop: o.onDrop}),
			Status: feed.NewBus[relay.Status](feed.Config{NonBlocking: true, OnDrop: o.onDrop}),
		},
	}

	c.store = store.New(backend,
		store.WithKinds(cfg.GameKind, cfg.ChatKind),
		store.WithRules(o.rules),
		store.WithLogger(o.logger),
		store.WithMetrics(o.metrics),
		store.WithSpanManager(o.spans),
	)
	c.store.OnChange(c.onChange)

	c.resolver = head.NewResolver(o.rules,
		head.WithLogger(o.logger),
		head.WithMetrics(o.metrics),
		head.WithSpanManager(o.spans),
	)

	linkOpts := []relay.Option{
		relay.WithLogger(o.logger),
		relay.WithMetrics(o.metrics),
		relay.OnMessage(c.handleFrame),
		relay.OnOpen(c.resubscribe),
		relay.OnStatus(c.publishStatus),
	}
	if o.dialer != nil {
		linkOpts = append(linkOpts, relay.WithDialer(o.dialer))
	}
	c.link = relay.NewLink(cfg.Relay(), linkOpts...)

	return c, nil
}

func (o clientOptions) onDrop(topic, subscriberID string) {
	if o.logger != nil {
		o.logger.Warn("feed message dropped",
			slog.String("topic", topic),
			slog.String("subscriber", subscriberID),
		)
	}
}

// Start connects to the configured relay.
func (c *Client) Start(ctx context.Context) error {
	return c.SwitchRelay(ctx, c.cfg.RelayURL)
}

// SwitchRelay closes the current connection, if any, and connects to url.
// Subscriptions are resubmitted once the new connection opens.
func (c *Client) SwitchRelay(ctx context.Context, url string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.link.Connect(url)
}

// Status returns the connectivity snapshot.
func (c *Client) Status() relay.Status {
	return c.link.Status()
}

// Feed returns the observer channels.
func (c *Client) Feed() Feeds {
	return c.feeds
}

// Store exposes the event store for queries.
func (c *Client) Store() *store.Store {
	return c.store
}

// PublicKey returns the signer's public key, or "" for a read-only client.
func (c *Client) PublicKey() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.PublicKey()
}

// Close disconnects and releases the store. It is safe to call more than once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if err := c.link.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close link: %w", err))
	}
	c.feeds.Games.Close()
	c.feeds.Status.Close()
	if err := c.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Ingest runs an event through the store pipeline as if a relay had sent it.
func (c *Client) Ingest(ctx context.Context, ev codec.Event) (store.Result, error) {
	if c.closed.Load() {
		return store.Result{}, ErrClientClosed
	}
	return c.store.Ingest(ctx, ev)
}

// handleFrame processes one inbound relay frame.
func (c *Client) handleFrame(raw []byte) {
	in, ok := relay.DecodeInbound(raw)
	if !ok {
		if c.logger != nil {
			c.logger.Debug("ignoring unrecognized frame", slog.Int("bytes", len(raw)))
		}
		return
	}
	ctx := context.Background()
	c.metrics.RecordFrame(ctx, observability.DirectionIn, string(in.Type))

	switch in.Type {
	case relay.FrameEvent:
		ev, err := codec.DecodeEvent(in.Event)
		if err != nil {
			observability.LogEventRejected(c.logger, "", err)
			c.metrics.RecordIngest(ctx, 0, observability.OutcomeRejected)
			return
		}
		if _, err := c.store.Ingest(ctx, ev); err != nil && c.logger != nil {
			c.logger.Error("ingest failed",
				slog.String("event_id", ev.ID),
				slog.String("subscription", in.SubscriptionID),
				slog.String("category", chesserrors.Categorize(err).String()),
				slog.String("error", err.Error()),
			)
		}
	case relay.FrameNotice:
		observability.LogRelayNotice(c.logger, c.link.Status().URL, in.Message)
	case relay.FrameOK:
		if c.logger != nil && !in.Accepted {
			c.logger.Info("relay refused event",
				slog.String("event_id", in.EventID),
				slog.String("message", in.Message),
			)
		}
	case relay.FrameClosed:
		if c.logger != nil {
			c.logger.Info("relay closed subscription",
				slog.String("subscription", in.SubscriptionID),
				slog.String("message", in.Message),
			)
		}
	case relay.FrameEOSE:
		if c.logger != nil {
			c.logger.Debug("end of stored events", slog.String("subscription", in.SubscriptionID))
		}
	}
}

func (c *Client) publishStatus(st relay.Status) {
	if c.closed.Load() {
		return
	}
	_ = c.feeds.Status.Publish(context.Background(), StatusTopic, st)
}
