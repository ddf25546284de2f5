package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	chesserrors "github.com/randalmurphal/nostrchess/pkg/nostrchess/errors"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/observability"
)

// ErrNoURL indicates Connect was called without a relay URL.
var ErrNoURL = errors.New("relay url required")

// State is the transport state of a Link.
type State int

// Link states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Status is the user-visible connectivity signal.
type Status struct {
	URL      string
	State    State
	Healthy  bool
	Failures int
}

// Config tunes link timing.
type Config struct {
	// Backoff is the reconnect delay ramp.
	Backoff chesserrors.BackoffConfig

	// ConnectTimeout force-closes a connection still CONNECTING.
	ConnectTimeout time.Duration

	// HealthyDwell is how long OPEN must persist before the link is healthy.
	HealthyDwell time.Duration

	// Keepalive is the ping interval while OPEN.
	Keepalive time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	Backoff:        chesserrors.DefaultBackoff,
	ConnectTimeout: 10 * time.Second,
	HealthyDwell:   3 * time.Second,
	Keepalive:      30 * time.Second,
	WriteTimeout:   10 * time.Second,
}

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (*websocket.Conn, *http.Response, error)
}

// Option configures a Link.
type Option func(*Link)

// WithDialer overrides the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(l *Link) { l.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(l *Link) { l.metrics = m }
}

// OnMessage registers the handler for inbound text frames.
func OnMessage(fn func(raw []byte)) Option {
	return func(l *Link) { l.onMessage = fn }
}

// OnOpen registers a hook run each time a connection opens, after queued
// frames are flushed.
func OnOpen(fn func()) Option {
	return func(l *Link) { l.onOpen = fn }
}

// OnStatus registers an observer for connectivity changes. Calls are
// serialized and never report a stale state; fn must not call back into
// the Link.
func OnStatus(fn func(Status)) Option {
	return func(l *Link) { l.onStatus = fn }
}

// Link is a single relay connection with reconnect, health tracking and
// keepalive. At most one socket is active at a time.
type Link struct {
	cfg     Config
	dialer  Dialer
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	onMessage func([]byte)
	onOpen    func()
	onStatus  func(Status)

	mu       sync.Mutex
	session  *session
	conn     *connection
	url      string
	state    State
	healthy  bool
	failures int
	seq      uint64 // status transitions

	emitMu  sync.Mutex
	emitted uint64 // last reported transition
}

// session spans all connection attempts to one URL.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
}

// connection is one socket attempt. Its context scopes every timer it starts.
type connection struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by Link.mu
	ws    *websocket.Conn
	queue [][]byte

	writeMu sync.Mutex
}

// NewLink creates a disconnected link.
func NewLink(cfg Config, opts ...Option) *Link {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig.ConnectTimeout
	}
	if cfg.HealthyDwell <= 0 {
		cfg.HealthyDwell = DefaultConfig.HealthyDwell
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = DefaultConfig.Keepalive
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig.WriteTimeout
	}
	if cfg.Backoff.Step <= 0 {
		cfg.Backoff = DefaultConfig.Backoff
	}

	l := &Link{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connect targets url. Any existing connection is fully closed before the
// new one is dialed. Connect returns once dialing has started.
func (l *Link) Connect(url string) error {
	if url == "" {
		return ErrNoURL
	}
	l.teardown()

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{ctx: ctx, cancel: cancel, url: url}

	l.mu.Lock()
	l.session = sess
	l.url = url
	l.failures = 0
	l.healthy = false
	l.mu.Unlock()

	l.dial(sess)
	return nil
}

// Close closes the current connection and stops reconnecting.
func (l *Link) Close() error {
	l.teardown()
	return nil
}

// Status returns the current connectivity snapshot.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked()
}

// Send queues msg while CONNECTING, writes it while OPEN, and drops it while
// DISCONNECTED. It reports whether the frame was written or queued.
func (l *Link) Send(msg []byte) bool {
	l.mu.Lock()
	c := l.conn
	state := l.state
	url := l.url
	if c == nil || state == StateDisconnected || state == StateClosing {
		l.mu.Unlock()
		observability.LogFrameDropped(l.logger, url, "disconnected")
		l.metrics.RecordFrame(context.Background(), observability.DirectionDropped, frameLabel(msg))
		return false
	}
	if state == StateConnecting {
		c.queue = append(c.queue, msg)
		l.mu.Unlock()
		return true
	}
	ws := c.ws
	l.mu.Unlock()

	return l.write(c, ws, msg)
}

func (l *Link) statusLocked() Status {
	return Status{URL: l.url, State: l.state, Healthy: l.healthy, Failures: l.failures}
}

// transitionLocked snapshots the status after a change and numbers it.
func (l *Link) transitionLocked() (Status, uint64) {
	l.seq++
	return l.statusLocked(), l.seq
}

// emit reports a status snapshot unless a later one was already reported.
// Snapshots are taken under mu but emitted after it is released, so two
// transitions can race here.
func (l *Link) emit(st Status, seq uint64) {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	if seq <= l.emitted {
		return
	}
	l.emitted = seq

	observability.LogRelayState(l.logger, st.URL, st.State.String(), st.Healthy, st.Failures)
	if l.onStatus != nil {
		l.onStatus(st)
	}
}

// teardown cancels the session and waits for the active connection to exit.
func (l *Link) teardown() {
	l.mu.Lock()
	sess, c := l.session, l.conn
	l.session, l.conn = nil, nil
	var ws *websocket.Conn
	if c != nil {
		ws = c.ws
		if l.state == StateOpen {
			l.state = StateClosing
		}
	}
	l.mu.Unlock()

	if sess != nil {
		sess.cancel()
	}
	if c != nil {
		c.cancel()
		if ws != nil {
			deadline := time.Now().Add(l.cfg.WriteTimeout)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			ws.Close()
		}
		<-c.done
	}

	l.mu.Lock()
	changed := l.state != StateDisconnected || l.healthy
	l.state = StateDisconnected
	l.healthy = false
	st, seq := l.transitionLocked()
	l.mu.Unlock()

	if changed {
		l.emit(st, seq)
	}
}

// dial starts a connection attempt if sess is still the active session.
func (l *Link) dial(sess *session) {
	l.mu.Lock()
	if l.session != sess {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(sess.ctx)
	c := &connection{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	l.conn = c
	l.state = StateConnecting
	l.healthy = false
	st, seq := l.transitionLocked()
	l.mu.Unlock()

	l.emit(st, seq)
	go l.run(sess, c)
}

func (l *Link) run(sess *session, c *connection) {
	defer close(c.done)

	dctx, dcancel := context.WithTimeout(c.ctx, l.cfg.ConnectTimeout)
	ws, resp, err := l.dialer.DialContext(dctx, sess.url, nil)
	dcancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		l.closed(sess, c, &chesserrors.ConnectionError{URL: sess.url, Op: "dial", Err: err})
		return
	}

	// Hold the write lock across the transition so frames sent right after
	// OPEN cannot overtake the queued ones.
	c.writeMu.Lock()
	l.mu.Lock()
	if l.conn != c {
		l.mu.Unlock()
		c.writeMu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	l.state = StateOpen
	queue := c.queue
	c.queue = nil
	st, seq := l.transitionLocked()
	l.mu.Unlock()

	var flushErr error
	for _, msg := range queue {
		if flushErr = l.writeLocked(ws, msg); flushErr != nil {
			break
		}
	}
	c.writeMu.Unlock()

	l.emit(st, seq)
	if flushErr != nil {
		ws.Close()
	} else if l.onOpen != nil {
		l.onOpen()
	}

	go l.dwell(c)
	go l.keepalive(c, ws)

	err = l.readLoop(ws)
	l.closed(sess, c, &chesserrors.ConnectionError{URL: sess.url, Op: "read", Err: err})
}

func (l *Link) readLoop(ws *websocket.Conn) error {
	for {
		typ, payload, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}
		if l.onMessage != nil {
			l.onMessage(payload)
		}
	}
}

// closed records the end of connection c and schedules a reconnect. It is a
// no-op when c was already superseded.
func (l *Link) closed(sess *session, c *connection, cause error) {
	l.mu.Lock()
	if l.conn != c {
		l.mu.Unlock()
		return
	}
	c.cancel()
	ws := c.ws
	l.conn = nil
	l.state = StateDisconnected
	l.healthy = false
	l.failures++
	failures := l.failures
	delay := l.cfg.Backoff.Delay(failures)
	st, seq := l.transitionLocked()
	l.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	l.emit(st, seq)
	if cause != nil && !chesserrors.IsRetryable(cause) {
		// Every connection failure is retried, whatever ended it.
		cause = chesserrors.Transient(cause, "connection")
	}
	observability.LogRelayReconnect(l.logger, sess.url, failures, delay, cause)
	l.metrics.RecordReconnect(context.Background(), failures, delay)

	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-sess.ctx.Done():
			return
		case <-t.C:
		}
		l.dial(sess)
	}()
}

// dwell marks the link healthy once c has stayed open for HealthyDwell.
func (l *Link) dwell(c *connection) {
	t := time.NewTimer(l.cfg.HealthyDwell)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return
	case <-t.C:
	}

	l.mu.Lock()
	if l.conn != c || l.state != StateOpen {
		l.mu.Unlock()
		return
	}
	l.healthy = true
	l.failures = 0
	st, seq := l.transitionLocked()
	l.mu.Unlock()

	l.emit(st, seq)
}

// keepalive pings while c is open so idle proxies keep the socket.
func (l *Link) keepalive(c *connection, ws *websocket.Conn) {
	ticker := time.NewTicker(l.cfg.Keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(l.cfg.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// The read loop observes the failure and reconnects.
				ws.Close()
				return
			}
		}
	}
}

func (l *Link) write(c *connection, ws *websocket.Conn, msg []byte) bool {
	c.writeMu.Lock()
	err := l.writeLocked(ws, msg)
	c.writeMu.Unlock()
	if err != nil {
		observability.LogFrameDropped(l.logger, l.Status().URL, fmt.Sprintf("write: %v", err))
		ws.Close()
		return false
	}
	return true
}

func (l *Link) writeLocked(ws *websocket.Conn, msg []byte) error {
	ws.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		l.metrics.RecordFrame(context.Background(), observability.DirectionDropped, frameLabel(msg))
		return err
	}
	l.metrics.RecordFrame(context.Background(), observability.DirectionOut, frameLabel(msg))
	return nil
}

// frameLabel extracts the frame type for metrics without a full decode.
func frameLabel(msg []byte) string {
	for _, t := range []FrameType{FrameEvent, FrameReq, FrameClose} {
		prefix := `["` + string(t) + `"`
		if len(msg) >= len(prefix) && string(msg[:len(prefix)]) == prefix {
			return string(t)
		}
	}
	return "other"
}
