package feed_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/feed"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func TestBus_TopicDelivery(t *testing.T) {
	bus := feed.NewBus[string](feed.Config{BufferSize: 10})
	defer bus.Close()

	var (
		mu  sync.Mutex
		got []string
	)
	sub, err := bus.Subscribe(func(_ context.Context, topic, msg string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, topic+"="+msg)
	}, "game-1")
	require.NoError(t, err)
	defer sub.Unsubscribe()
	assert.NotEmpty(t, sub.ID())

	require.NoError(t, bus.Publish(context.Background(), "game-1", "a"))
	require.NoError(t, bus.Publish(context.Background(), "game-2", "x"))
	require.NoError(t, bus.Publish(context.Background(), "game-1", "b"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"game-1=a", "game-1=b"}, got)
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := feed.NewBus[int](feed.DefaultConfig)
	defer bus.Close()

	var total atomic.Int32
	_, err := bus.Subscribe(func(_ context.Context, _ string, n int) {
		total.Add(int32(n))
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "a", 1))
	require.NoError(t, bus.Publish(context.Background(), "b", 2))
	require.NoError(t, bus.Publish(context.Background(), "c", 3))

	require.Eventually(t, func() bool { return total.Load() == 6 }, waitFor, tick)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := feed.NewBus[int](feed.DefaultConfig)
	defer bus.Close()

	var calls atomic.Int32
	sub, err := bus.Subscribe(func(context.Context, string, int) { calls.Add(1) }, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Zero(t, bus.Len())

	require.NoError(t, bus.Publish(context.Background(), "t", 1))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestBus_NonBlockingDrops(t *testing.T) {
	var drops atomic.Int32
	bus := feed.NewBus[int](feed.Config{
		BufferSize:  1,
		NonBlocking: true,
		OnDrop:      func(string, string) { drops.Add(1) },
	})
	defer bus.Close()

	release := make(chan struct{})
	_, err := bus.Subscribe(func(context.Context, string, int) { <-release }, "t")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), "t", i))
	}
	close(release)

	// At most one in the handler and one buffered.
	assert.GreaterOrEqual(t, drops.Load(), int32(8))
}

func TestBus_BlockingRespectsContext(t *testing.T) {
	bus := feed.NewBus[int](feed.Config{BufferSize: 1})
	defer bus.Close()

	release := make(chan struct{})
	defer close(release)
	_, err := bus.Subscribe(func(context.Context, string, int) { <-release }, "t")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var publishErr error
	for i := 0; i < 5 && publishErr == nil; i++ {
		publishErr = bus.Publish(ctx, "t", i)
	}
	assert.ErrorIs(t, publishErr, context.DeadlineExceeded)
}

func TestBus_Closed(t *testing.T) {
	bus := feed.NewBus[int](feed.DefaultConfig)
	_, err := bus.Subscribe(func(context.Context, string, int) {}, "t")
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.Zero(t, bus.Len())

	assert.ErrorIs(t, bus.Publish(context.Background(), "t", 1), feed.ErrClosed)
	_, err = bus.Subscribe(func(context.Context, string, int) {})
	assert.ErrorIs(t, err, feed.ErrClosed)
}
