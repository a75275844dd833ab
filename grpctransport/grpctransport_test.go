package grpctransport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/grpctransport/wire"
	"github.com/dataconnect-io/dataconnect/registry"
)

func startTestServer(t *testing.T, authToken string) (*Server, func()) {
	t.Helper()
	srv := NewServer(zap.NewNop().Sugar(), nil, nil, authToken)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, "127.0.0.1:0")
	}()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, time.Millisecond)

	return srv, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
}

func dialTestClient(t *testing.T, srv *Server, authToken string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), srv.Addr(), authToken, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientRegisterTagsRoundTrip(t *testing.T) {
	srv, stop := startTestServer(t, "")
	defer stop()
	c := dialTestClient(t, srv, "")

	assigned, err := c.RegisterTags(context.Background(), "p1", []registry.RegisterItem{{Path: "A/B", Role: registry.RoleProducer}})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.NotZero(t, assigned[0].Handle)
}

func TestClientPublishAndGetLastValue(t *testing.T) {
	srv, stop := startTestServer(t, "")
	defer stop()
	c := dialTestClient(t, srv, "")

	assigned, err := c.RegisterTags(context.Background(), "p1", []registry.RegisterItem{{Path: "A/B", Role: registry.RoleProducer}})
	require.NoError(t, err)
	handle := assigned[0].Handle

	require.NoError(t, c.Publish(context.Background(), backplane.NewValue(handle, "p1", int64(7))))

	v, found, err := c.GetLastValue(context.Background(), handle)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), v.Int64)
}

func TestClientSubscribeReceivesInitialAndFollowingUpdates(t *testing.T) {
	srv, stop := startTestServer(t, "")
	defer stop()
	c := dialTestClient(t, srv, "")

	assigned, err := c.RegisterTags(context.Background(), "p1", []registry.RegisterItem{{Path: "A/B", Role: registry.RoleProducer}})
	require.NoError(t, err)
	handle := assigned[0].Handle

	require.NoError(t, c.Publish(context.Background(), backplane.NewValue(handle, "p1", int64(1))))

	received := make(chan int64, 4)
	sub, err := c.Subscribe(context.Background(), handle, func(v backplane.TagValue) { received <- v.Int64 })
	require.NoError(t, err)
	defer sub.Dispose()

	select {
	case v := <-received:
		assert.Equal(t, int64(1), v, "expected initial ACK carrying the existing mirror value")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial subscribe update")
	}

	require.NoError(t, c.Publish(context.Background(), backplane.NewValue(handle, "p1", int64(2))))
	select {
	case v := <-received:
		assert.Equal(t, int64(2), v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for follow-up publish")
	}
}

func TestClientSubscribeSharesOneGroupAcrossLocalCallbacks(t *testing.T) {
	srv, stop := startTestServer(t, "")
	defer stop()
	c := dialTestClient(t, srv, "")

	assigned, err := c.RegisterTags(context.Background(), "p1", []registry.RegisterItem{{Path: "A/B", Role: registry.RoleProducer}})
	require.NoError(t, err)
	handle := assigned[0].Handle

	gotA := make(chan int64, 2)
	gotB := make(chan int64, 2)
	subA, err := c.Subscribe(context.Background(), handle, func(v backplane.TagValue) { gotA <- v.Int64 })
	require.NoError(t, err)
	subB, err := c.Subscribe(context.Background(), handle, func(v backplane.TagValue) { gotB <- v.Int64 })
	require.NoError(t, err)
	defer subA.Dispose()
	defer subB.Dispose()

	c.mu.Lock()
	groupCount := len(c.groups)
	c.mu.Unlock()
	assert.Equal(t, 1, groupCount, "two local subscriptions on the same handle must share one group")

	require.NoError(t, c.Publish(context.Background(), backplane.NewValue(handle, "p1", int64(5))))

	for _, ch := range []chan int64{gotA, gotB} {
		select {
		case v := <-ch:
			assert.Equal(t, int64(5), v)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for fan-out to a local subscriber")
		}
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	srv, stop := startTestServer(t, "secret-token")
	defer stop()
	c := dialTestClient(t, srv, "")

	_, err := c.RegisterTags(context.Background(), "p1", []registry.RegisterItem{{Path: "A/B", Role: registry.RoleProducer}})
	assert.Error(t, err)
}

func TestAuthAcceptsMatchingToken(t *testing.T) {
	srv, stop := startTestServer(t, "secret-token")
	defer stop()
	c := dialTestClient(t, srv, "secret-token")

	_, err := c.RegisterTags(context.Background(), "p1", []registry.RegisterItem{{Path: "A/B", Role: registry.RoleProducer}})
	assert.NoError(t, err)
}

func TestRetryPolicyGivesUpAfterMaxAttempts(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Millisecond, Factor: 1, MaxAttempts: 3}
	attempts := 0
	boom := errors.New("boom")
	err := p.Do(context.Background(), func() error {
		attempts++
		return boom
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestNewSubscriptionGroupAssignsStableUniqueSubscriberID(t *testing.T) {
	g1 := newSubscriptionGroup(&Client{}, 1)
	g2 := newSubscriptionGroup(&Client{}, 1)

	require.NotEmpty(t, g1.subscriberID)
	_, err := uuid.Parse(g1.subscriberID)
	require.NoError(t, err, "subscriberID must be a valid uuid")

	assert.NotEqual(t, g1.subscriberID, g2.subscriberID, "each group gets its own subscriber id")
	assert.Equal(t, g1.subscriberID, g1.subscriberID, "id is stable across reads")
}

// fakeSubscribeClient implements wire.TagBus_SubscribeClient by replaying a
// fixed slice of updates, then blocking until the context is cancelled.
type fakeSubscribeClient struct {
	grpc.ClientStream
	ctx     context.Context
	mu      sync.Mutex
	updates []*wire.Update
}

func (f *fakeSubscribeClient) Recv() (*wire.Update, error) {
	f.mu.Lock()
	if len(f.updates) > 0 {
		u := f.updates[0]
		f.updates = f.updates[1:]
		f.mu.Unlock()
		return u, nil
	}
	f.mu.Unlock()

	<-f.ctx.Done()
	return nil, io.EOF
}

func TestReadLoopDeliversEveryBatchElement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batch := &wire.Update{Batch: &wire.TagBatch{Values: []wire.TagValue{
		{Handle: 1, Kind: wire.KindInt64, Int64Val: 10},
		{Handle: 1, Kind: wire.KindInt64, Int64Val: 20},
		{Handle: 1, Kind: wire.KindInt64, Int64Val: 30},
	}}}
	stream := &fakeSubscribeClient{ctx: ctx, updates: []*wire.Update{batch}}

	g := newSubscriptionGroup(&Client{}, 1)
	var mu sync.Mutex
	var got []int64
	id, _ := g.addLocal(func(v backplane.TagValue) {
		mu.Lock()
		got = append(got, v.Int64)
		mu.Unlock()
	})
	defer g.removeLocal(id)

	done := make(chan struct{})
	go func() {
		g.readLoop(ctx, stream)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond, "expected every batch element to be delivered")

	mu.Lock()
	assert.Equal(t, []int64{10, 20, 30}, got)
	mu.Unlock()

	cancel()
	<-done
}
