package head

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/chess"
	chesserrors "github.com/randalmurphal/nostrchess/pkg/nostrchess/errors"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/observability"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/store"
)

// DefaultMaxDepth bounds a single resolution. It is far beyond any real game.
const DefaultMaxDepth = 2048

// maxCachedChecks bounds the successor cache before it is reset.
const maxCachedChecks = 8192

// Result is the outcome of one resolution.
type Result struct {
	// Head is the resolved position; the root if no move was accepted.
	Head Position

	// Children are the direct children of Head, earliest first.
	Children []Position

	// IsSearchingHead is true only when resolution stopped at the depth
	// bound with children still left to examine.
	IsSearchingHead bool

	// Depth is the number of moves between the root and Head.
	Depth int

	// Rejected is set when the walk stopped on an illegal earliest child.
	Rejected *chesserrors.IllegalSuccessorError

	// Tree is the move tree the result was computed from.
	Tree *Tree
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithSpanManager sets the span manager.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(r *Resolver) { r.spans = sm }
}

// Resolver computes heads. Successor checks are cached by event id pair,
// which is sound because events are immutable. It is safe for concurrent use.
type Resolver struct {
	rules    chess.Rules
	maxDepth int
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager

	mu    sync.Mutex
	cache map[[2]string]error
}

// NewResolver creates a resolver using rules for legality.
func NewResolver(rules chess.Rules, opts ...Option) *Resolver {
	r := &Resolver{
		rules:    rules,
		maxDepth: DefaultMaxDepth,
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		cache:    make(map[[2]string]error),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is a convenience for a one-off resolution with default options.
func Resolve(root store.GameStart, moves []store.GameMove, rules chess.Rules) Result {
	return NewResolver(rules).Resolve(context.Background(), root, moves)
}

// Resolve walks from root to the current head. The result depends only on
// the set of moves, not on their order.
func (r *Resolver) Resolve(ctx context.Context, root store.GameStart, moves []store.GameMove) Result {
	ctx, span := r.spans.StartResolveSpan(ctx, root.ID())
	defer r.spans.EndSpanWithError(span, nil)
	elapsed := observability.TimedOperation()

	tree := BuildTree(root, moves)
	res := r.walk(tree)
	if res.Rejected != nil {
		// The resolve itself succeeded; the refused move is an event on it.
		r.spans.AddSpanEvent(ctx, "illegal_successor",
			attribute.String("move.id", res.Rejected.MoveID),
			attribute.String("parent.id", res.Rejected.ParentID),
			attribute.String("error", res.Rejected.Error()),
		)
	}

	r.metrics.RecordResolve(ctx, elapsed(), res.Depth)
	observability.LogHeadResolved(r.logger, root.ID(), res.Head.ID(), res.Depth, res.IsSearchingHead)
	return res
}

func (r *Resolver) walk(tree *Tree) Result {
	node := tree.Root
	depth := 0
	res := Result{Tree: tree}

	for len(node.Children) > 0 {
		if depth >= r.maxDepth {
			res.IsSearchingHead = true
			break
		}

		candidate := node.Children[0]
		if err := r.successor(node.Position, candidate.Position); err != nil {
			res.Rejected = &chesserrors.IllegalSuccessorError{
				MoveID:   candidate.Position.ID(),
				ParentID: node.Position.ID(),
				Err:      err,
			}
			observability.LogIllegalSuccessor(r.logger, tree.Root.Position.ID(),
				candidate.Position.ID(), node.Position.ID(), err)
			break
		}
		node = candidate
		depth++
	}

	res.Head = node.Position
	res.Depth = depth
	res.Children = make([]Position, len(node.Children))
	for i, c := range node.Children {
		res.Children[i] = c.Position
	}
	return res
}

func (r *Resolver) successor(parent, child Position) error {
	key := [2]string{parent.ID(), child.ID()}

	r.mu.Lock()
	err, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return err
	}

	err = r.rules.Successor(parent.PGN(), child.PGN())

	r.mu.Lock()
	if len(r.cache) >= maxCachedChecks {
		r.cache = make(map[[2]string]error)
	}
	r.cache[key] = err
	r.mu.Unlock()
	return err
}
