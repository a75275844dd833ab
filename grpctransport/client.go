package grpctransport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/dcerrors"
	"github.com/dataconnect-io/dataconnect/grpctransport/wire"
	"github.com/dataconnect-io/dataconnect/registry"
)

// Client is a backplane.Capability backed by a remote grpctransport.Server.
// Subscribe groups every local callback for a handle behind one server
// stream, so N plugins subscribing to the same handle on the same process
// open exactly one network connection's worth of traffic for it.
type Client struct {
	log       *zap.SugaredLogger
	conn      *grpc.ClientConn
	stub      wire.TagBusClient
	authToken string
	retry     RetryPolicy

	mu     sync.Mutex
	groups map[uint32]*subscriptionGroup
	closed bool
}

// Dial connects to a remote backplane at addr ("host:port"). The
// connection is plaintext; this spec's remote backplane is intended for a
// trusted control network with the bearer token as its only access control,
// consistent with auth.go's documented scope.
func Dial(ctx context.Context, addr string, authToken string, log *zap.SugaredLogger) (*Client, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	conn, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, dcerrors.Wrapf(err, "dial %s", addr)
	}
	return &Client{
		log:       log.Named("grpctransport.client"),
		conn:      conn,
		stub:      wire.NewTagBusClient(conn),
		authToken: authToken,
		retry:     DefaultRetryPolicy(),
		groups:    make(map[uint32]*subscriptionGroup),
	}, nil
}

// RegisterTags proxies a registration batch to the remote registry. Safe
// to retry: RegisterTags is idempotent per SPEC_FULL.md §4.1.
func (c *Client) RegisterTags(ctx context.Context, referenceOwner string, items []registry.RegisterItem) ([]registry.AssignedTag, error) {
	wireItems := make([]wire.RegisterTagsItem, 0, len(items))
	for _, item := range items {
		wireItems = append(wireItems, wire.RegisterTagsItem{
			Path:                   item.Path,
			Role:                   wireRoleFromDomain(item.Role),
			SourcePluginInstanceID: item.SourceOverride,
		})
	}

	var resp *wire.RegisterTagsResponse
	err := c.retry.Do(ctx, func() error {
		r, err := c.stub.RegisterTags(withBearerToken(ctx, c.authToken), &wire.RegisterTagsRequest{
			PluginInstanceID: referenceOwner,
			Items:            wireItems,
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, dcerrors.Wrapf(dcerrors.ErrTransport, "RegisterTags: %v", err)
	}

	out := make([]registry.AssignedTag, 0, len(resp.Assigned))
	for _, a := range resp.Assigned {
		out = append(out, registry.AssignedTag{
			Identity: registry.Identity{
				Handle:      a.Handle,
				Path:        a.Path,
				DisplayPath: a.Path,
				Role:        domainRoleFromWire(a.Role),
				Owner:       a.SourcePluginInstanceID,
			},
			ReferenceOwner: a.ReferencePluginInstance,
		})
	}
	return out, nil
}

// Publish implements backplane.Capability. Not retried: Publish is not
// idempotent per SPEC_FULL.md §7.
func (c *Client) Publish(ctx context.Context, value backplane.TagValue) error {
	_, err := c.stub.Publish(withBearerToken(ctx, c.authToken), &wire.PublishRequest{Tag: wireValueFromDomain(value)})
	if err != nil {
		return dcerrors.Wrapf(dcerrors.ErrTransport, "Publish: %v", err)
	}
	return nil
}

// GetLastValue implements backplane.Capability. Retried: a pure read.
func (c *Client) GetLastValue(ctx context.Context, handle uint32) (backplane.TagValue, bool, error) {
	var resp *wire.GetResponse
	err := c.retry.Do(ctx, func() error {
		r, err := c.stub.GetLastValue(withBearerToken(ctx, c.authToken), &wire.GetRequest{Handle: handle})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return backplane.TagValue{}, false, dcerrors.Wrapf(dcerrors.ErrTransport, "GetLastValue: %v", err)
	}
	if !resp.Found {
		return backplane.TagValue{}, false, nil
	}
	return domainValueFromWire(resp.Value), true, nil
}

// Subscribe implements backplane.Capability by joining (or creating) the
// SubscriptionGroup for handle.
func (c *Client) Subscribe(ctx context.Context, handle uint32, cb backplane.Callback) (backplane.Disposable, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, dcerrors.ErrDisposed
	}
	g, ok := c.groups[handle]
	if !ok {
		g = newSubscriptionGroup(c, handle)
		c.groups[handle] = g
	}
	c.mu.Unlock()

	id, start := g.addLocal(cb)
	if start {
		go g.run()
	}

	return disposerFunc(func() {
		c.leaveGroup(handle, g, id)
	}), nil
}

func (c *Client) leaveGroup(handle uint32, g *subscriptionGroup, id uint64) {
	if !g.removeLocal(id) {
		return
	}
	g.stop()
	c.mu.Lock()
	if c.groups[handle] == g {
		delete(c.groups, handle)
	}
	c.mu.Unlock()
}

// Close tears down every subscription group and the underlying connection.
// After Close, Subscribe returns dcerrors.ErrDisposed; RegisterTags, Publish
// and GetLastValue are not checked against the closed flag and fail with
// dcerrors.ErrTransport from the closed connection instead.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	groups := make([]*subscriptionGroup, 0, len(c.groups))
	for _, g := range c.groups {
		groups = append(groups, g)
	}
	c.groups = nil
	c.mu.Unlock()

	for _, g := range groups {
		g.stop()
	}
	return c.conn.Close()
}

type disposerFunc func()

func (f disposerFunc) Dispose() { f() }

// subscriptionGroup fans one server stream out to every local callback
// registered for a handle.
type subscriptionGroup struct {
	client       *Client
	handle       uint32
	subscriberID string

	mu      sync.Mutex
	subs    map[uint64]backplane.Callback
	nextID  uint64
	cancel  context.CancelFunc
	stopped chan struct{}
}

// newSubscriptionGroup assigns the group a stable subscriber id, sent on
// every (re)established Subscribe stream so server-side logging can
// correlate drops/reconnects for the same logical subscriber across
// retries, per wire.SubscribeRequest.SubscriberID.
func newSubscriptionGroup(c *Client, handle uint32) *subscriptionGroup {
	return &subscriptionGroup{
		client:       c,
		handle:       handle,
		subscriberID: uuid.NewString(),
		subs:         make(map[uint64]backplane.Callback),
	}
}

// addLocal registers cb and reports whether this was the first subscriber
// (the caller must then start run()).
func (g *subscriptionGroup) addLocal(cb backplane.Callback) (id uint64, start bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id = g.nextID
	g.subs[id] = cb
	start = len(g.subs) == 1
	return id, start
}

// removeLocal unregisters id and reports whether the group is now empty.
func (g *subscriptionGroup) removeLocal(id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.subs, id)
	return len(g.subs) == 0
}

func (g *subscriptionGroup) snapshot() []backplane.Callback {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]backplane.Callback, 0, len(g.subs))
	for _, cb := range g.subs {
		out = append(out, cb)
	}
	return out
}

func (g *subscriptionGroup) run() {
	ctx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	g.cancel = cancel
	g.stopped = make(chan struct{})
	g.mu.Unlock()
	defer close(g.stopped)

	limiter := newReconnectLimiter()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		var stream wire.TagBus_SubscribeClient
		err := g.client.retry.Do(ctx, func() error {
			s, err := g.client.stub.Subscribe(withBearerToken(ctx, g.client.authToken), &wire.SubscribeRequest{Handle: g.handle, SubscriberID: g.subscriberID})
			if err != nil {
				return err
			}
			stream = s
			return nil
		})
		if err != nil {
			g.client.log.Warnw("subscribe stream failed, will retry", "handle", g.handle, "error", err)
			continue
		}
		g.readLoop(ctx, stream)
	}
}

func (g *subscriptionGroup) readLoop(ctx context.Context, stream wire.TagBus_SubscribeClient) {
	for {
		update, err := stream.Recv()
		if err != nil {
			return
		}

		var values []backplane.TagValue
		switch {
		case update.Tag != nil:
			values = append(values, domainValueFromWire(update.Tag))
		case update.Batch != nil:
			for i := range update.Batch.Values {
				values = append(values, domainValueFromWire(&update.Batch.Values[i]))
			}
		default:
			continue
		}

		subs := g.snapshot()
		for _, v := range values {
			for _, cb := range subs {
				cb(v)
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// stop cancels the group's stream and waits (briefly) for readLoop to
// exit, matching the "teardown within one second" contract.
func (g *subscriptionGroup) stop() {
	g.mu.Lock()
	cancel := g.cancel
	stopped := g.stopped
	g.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if stopped != nil {
		select {
		case <-stopped:
		case <-time.After(time.Second):
		}
	}
}

var _ backplane.Capability = (*Client)(nil)
