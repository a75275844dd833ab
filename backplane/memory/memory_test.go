package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/dcerrors"
)

func TestPublishThenGetLastValue(t *testing.T) {
	b := New(zap.NewNop().Sugar())
	ctx := context.Background()

	_, found, err := b.GetLastValue(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Publish(ctx, backplane.NewValue(1, "p1", int64(42))))

	v, found, err := b.GetLastValue(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(42), v.Int64)
}

func TestPublishLastWriterWins(t *testing.T) {
	b := New(zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, backplane.NewValue(1, "p1", "first")))
	require.NoError(t, b.Publish(ctx, backplane.NewValue(1, "p1", "second")))

	v, _, _ := b.GetLastValue(ctx, 1)
	assert.Equal(t, "second", v.String)
}

func TestSubscribeReceivesPublishes(t *testing.T) {
	b := New(zap.NewNop().Sugar())
	ctx := context.Background()

	var received []int64
	var mu sync.Mutex
	sub, err := b.Subscribe(ctx, 1, func(v backplane.TagValue) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, v.Int64)
	})
	require.NoError(t, err)
	defer sub.Dispose()

	require.NoError(t, b.Publish(ctx, backplane.NewValue(1, "p1", int64(1))))
	require.NoError(t, b.Publish(ctx, backplane.NewValue(1, "p1", int64(2))))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2}, received)
}

func TestSubscribeDisposeStopsDelivery(t *testing.T) {
	b := New(zap.NewNop().Sugar())
	ctx := context.Background()

	count := 0
	sub, err := b.Subscribe(ctx, 1, func(v backplane.TagValue) { count++ })
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, backplane.NewValue(1, "p1", int64(1))))
	sub.Dispose()
	require.NoError(t, b.Publish(ctx, backplane.NewValue(1, "p1", int64(2))))

	assert.Equal(t, 1, count)
}

func TestSubscribeDisposeIsIdempotent(t *testing.T) {
	b := New(zap.NewNop().Sugar())
	sub, err := b.Subscribe(context.Background(), 1, func(backplane.TagValue) {})
	require.NoError(t, err)

	sub.Dispose()
	assert.NotPanics(t, func() { sub.Dispose() })
}

// TestPanickingSubscriberDoesNotAbortPublish covers the invariant that one
// misbehaving callback cannot break fan-out to the rest.
func TestPanickingSubscriberDoesNotAbortPublish(t *testing.T) {
	b := New(zap.NewNop().Sugar())
	ctx := context.Background()

	otherCalled := false
	_, err := b.Subscribe(ctx, 1, func(backplane.TagValue) { panic("boom") })
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, 1, func(backplane.TagValue) { otherCalled = true })
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		require.NoError(t, b.Publish(ctx, backplane.NewValue(1, "p1", int64(1))))
	})
	assert.True(t, otherCalled)
}

func TestDistinctHandlesDoNotBlockEachOther(t *testing.T) {
	b := New(zap.NewNop().Sugar())
	ctx := context.Background()

	var wg sync.WaitGroup
	for h := uint32(1); h <= 50; h++ {
		wg.Add(1)
		go func(h uint32) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = b.Publish(ctx, backplane.NewValue(h, "p1", int64(i)))
			}
		}(h)
	}
	wg.Wait()

	for h := uint32(1); h <= 50; h++ {
		v, found, _ := b.GetLastValue(ctx, h)
		require.True(t, found)
		assert.Equal(t, int64(19), v.Int64)
	}
}

func TestClosedBackplaneReturnsDisposed(t *testing.T) {
	b := New(zap.NewNop().Sugar())
	require.NoError(t, b.Close())

	ctx := context.Background()
	err := b.Publish(ctx, backplane.NewValue(1, "p1", int64(1)))
	assert.True(t, dcerrors.Is(err, dcerrors.ErrDisposed))

	_, _, err = b.GetLastValue(ctx, 1)
	assert.True(t, dcerrors.Is(err, dcerrors.ErrDisposed))

	_, err = b.Subscribe(ctx, 1, func(backplane.TagValue) {})
	assert.True(t, dcerrors.Is(err, dcerrors.ErrDisposed))
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New(zap.NewNop().Sugar())
	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}
