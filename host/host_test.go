package host

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataconnect-io/dataconnect/backplane/memory"
	"github.com/dataconnect-io/dataconnect/registry"
)

// mockPlugin is a minimal Plugin with struct-tag bindings for auto-wire
// coverage, in the style of the teacher's mockPlugin in
// plugin/registry_test.go.
type mockPlugin struct {
	meta PluginMetadata

	Reading  int64  `dctag:"path=Plant/Reading,role=consumer"`
	Setpoint int64  `dctag:"path=Plant/Setpoint,role=producer,interval=10"`

	mu             sync.Mutex
	initCalled     bool
	shutdownCalled bool
	pluggedCalled  bool
	unpluggedCalled int32
	execCount      atomic.Int64
}

func newMockPlugin(name string) *mockPlugin {
	return &mockPlugin{meta: PluginMetadata{Name: name, Version: "1.0.0"}}
}

func (m *mockPlugin) Metadata() PluginMetadata { return m.meta }

func (m *mockPlugin) Initialize(ctx context.Context, hc *Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCalled = true
	return nil
}

func (m *mockPlugin) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownCalled = true
	return nil
}

func (m *mockPlugin) Health(ctx context.Context) HealthStatus {
	return HealthStatus{Healthy: true}
}

func (m *mockPlugin) RunIntervalMs() int { return 10 }

func (m *mockPlugin) Execute(ctx context.Context) error {
	m.execCount.Add(1)
	return nil
}

func (m *mockPlugin) OnPlugged(slot *Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pluggedCalled = true
	return nil
}

func (m *mockPlugin) OnUnplugged() error {
	atomic.AddInt32(&m.unpluggedCalled, 1)
	return nil
}

var _ Plugin = (*mockPlugin)(nil)
var _ ExecutablePlugin = (*mockPlugin)(nil)
var _ Pluggable = (*mockPlugin)(nil)

func newTestHost() (*Host, *registry.Registry) {
	reg := registry.New()
	bp := memory.New(zap.NewNop().Sugar())
	return New(zap.NewNop().Sugar(), "1.0.0", reg, bp), reg
}

func TestRegisterPluginRejectsDuplicateInstance(t *testing.T) {
	h, _ := newTestHost()
	require.NoError(t, h.RegisterPlugin("p1", newMockPlugin("demo")))
	assert.Error(t, h.RegisterPlugin("p1", newMockPlugin("demo")))
}

func TestRegisterPluginRejectsIncompatibleVersion(t *testing.T) {
	h, _ := newTestHost()
	p := newMockPlugin("demo")
	p.meta.HostVersion = ">=2.0.0"
	assert.Error(t, h.RegisterPlugin("p1", p))
}

func TestStartAllInitializesAndRunsExecute(t *testing.T) {
	h, _ := newTestHost()
	p := newMockPlugin("demo")
	require.NoError(t, h.RegisterPlugin("p1", p))

	h.StartAll(context.Background())
	defer h.ShutdownAll(context.Background())

	p.mu.Lock()
	assert.True(t, p.initCalled)
	p.mu.Unlock()

	assert.Eventually(t, func() bool { return p.execCount.Load() > 0 }, time.Second, time.Millisecond)
}

func TestAutoWireConsumerReceivesWrites(t *testing.T) {
	h, reg := newTestHost()
	p := newMockPlugin("demo")
	require.NoError(t, h.RegisterPlugin("p1", p))
	h.StartAll(context.Background())
	defer h.ShutdownAll(context.Background())

	identity, ok := reg.GetByPath("Plant/Reading")
	require.True(t, ok)

	require.NoError(t, h.TagService().SetTag("Plant/Reading", int64(99)))
	_ = identity

	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.Reading == 99
	}, time.Second, time.Millisecond)
}

func TestAutoWireProducerPublishesPeriodically(t *testing.T) {
	h, reg := newTestHost()
	p := newMockPlugin("demo")
	p.Setpoint = 7
	require.NoError(t, h.RegisterPlugin("p1", p))
	h.StartAll(context.Background())
	defer h.ShutdownAll(context.Background())

	identity, ok := reg.GetByPath("Plant/Setpoint")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		v, found := registryPeek(h, identity.Handle)
		return found && v == 7
	}, time.Second, 5*time.Millisecond)
}

// registryPeek reads the mirror directly through the host's backplane to
// avoid depending on tagservice's generic accessor inside this test file.
func registryPeek(h *Host, handle uint32) (int64, bool) {
	v, found, err := h.bp.GetLastValue(context.Background(), handle)
	if err != nil || !found {
		return 0, false
	}
	return v.Int64, true
}

func TestPlugAndUnplug(t *testing.T) {
	h, _ := newTestHost()
	p := newMockPlugin("demo")
	require.NoError(t, h.RegisterPlugin("p1", p))
	h.StartAll(context.Background())
	defer h.ShutdownAll(context.Background())

	rack := NewRack("mixing", []*Slot{{ID: 1, Name: "left"}})
	h.AddRack(rack)

	require.NoError(t, h.Plug("p1", "mixing", 1))
	p.mu.Lock()
	assert.True(t, p.pluggedCalled)
	p.mu.Unlock()

	svc, ok := h.Services().Lookup("mixing", 1, "demo")
	require.True(t, ok)
	assert.Same(t, p, svc)

	require.NoError(t, h.Unplug("p1"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.unpluggedCalled))
}

func TestPlugOccupiedSlotFails(t *testing.T) {
	h, _ := newTestHost()
	p1 := newMockPlugin("demo1")
	p2 := newMockPlugin("demo2")
	require.NoError(t, h.RegisterPlugin("p1", p1))
	require.NoError(t, h.RegisterPlugin("p2", p2))
	h.StartAll(context.Background())
	defer h.ShutdownAll(context.Background())

	rack := NewRack("mixing", []*Slot{{ID: 1}})
	h.AddRack(rack)

	require.NoError(t, h.Plug("p1", "mixing", 1))
	assert.Error(t, h.Plug("p2", "mixing", 1))
}

func TestPlugMissingRackOrSlotFails(t *testing.T) {
	h, _ := newTestHost()
	p := newMockPlugin("demo")
	require.NoError(t, h.RegisterPlugin("p1", p))
	h.StartAll(context.Background())
	defer h.ShutdownAll(context.Background())

	assert.Error(t, h.Plug("p1", "nosuchrack", 1))

	rack := NewRack("mixing", []*Slot{{ID: 1}})
	h.AddRack(rack)
	assert.Error(t, h.Plug("p1", "mixing", 99))
}

func TestShutdownAllStopsAndDisposes(t *testing.T) {
	h, _ := newTestHost()
	p := newMockPlugin("demo")
	require.NoError(t, h.RegisterPlugin("p1", p))
	h.StartAll(context.Background())

	h.ShutdownAll(context.Background())

	p.mu.Lock()
	assert.True(t, p.shutdownCalled)
	p.mu.Unlock()

	countBefore := p.execCount.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, countBefore, p.execCount.Load(), "run loop must not still be ticking after shutdown")
}

func TestHealthSnapshot(t *testing.T) {
	h, _ := newTestHost()
	p := newMockPlugin("demo")
	require.NoError(t, h.RegisterPlugin("p1", p))
	h.StartAll(context.Background())
	defer h.ShutdownAll(context.Background())

	snapshot := h.Health(context.Background())
	require.Contains(t, snapshot, "p1")
	assert.True(t, snapshot["p1"].Healthy)
}
