package host

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/dcerrors"
	"github.com/dataconnect-io/dataconnect/registry"
	"github.com/dataconnect-io/dataconnect/tagservice"
)

// stopJoinDeadline bounds how long ShutdownAll waits for a plugin's run
// loop to exit before giving up and moving on, per SPEC_FULL.md §4.5 step 7
// ("waits up to 5 s before returning").
const stopJoinDeadline = 5 * time.Second

type instance struct {
	id   string
	meta PluginMetadata
	p    Plugin
	ctx  *Context
	state State

	mu          sync.Mutex
	disposables []backplane.Disposable
	rack        *Rack
	slot        *Slot

	cancelRun context.CancelFunc
	runDone   chan struct{}
}

// Host orchestrates plugin lifecycle, tag auto-wire, rack/slot placement
// and the service registry, over a shared registry.Registry and
// backplane.Capability.
type Host struct {
	log     *zap.SugaredLogger
	version string

	reg      *registry.Registry
	bp       backplane.Capability
	tags     *tagservice.Service
	services *serviceRegistry

	mu        sync.RWMutex
	instances map[string]*instance
	order     []string
	racks     map[string]*Rack
}

// New builds a Host. version is the running host's own semver, checked
// against each plugin's declared HostVersion constraint at registration.
func New(log *zap.SugaredLogger, version string, reg *registry.Registry, bp backplane.Capability) *Host {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	tags := tagservice.New(log, reg, bp)
	services := newServiceRegistry()

	h := &Host{
		log:       log.Named("host"),
		version:   version,
		reg:       reg,
		bp:        bp,
		tags:      tags,
		services:  services,
		instances: make(map[string]*instance),
		racks:     make(map[string]*Rack),
	}

	services.Register("", 0, "tagservice", tags)
	services.Register("", 0, "registry", reg)
	services.Register("", 0, "backplane", bp)
	return h
}

// AddRack registers a rack so plugins can later be plugged into its slots.
func (h *Host) AddRack(r *Rack) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.racks[r.Name] = r
}

// Rack returns a previously added rack by name.
func (h *Host) Rack(name string) (*Rack, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.racks[name]
	return r, ok
}

// RegisterPlugin instantiates tracking state for p under instanceID,
// checking version compatibility. It does not call Initialize; that
// happens in StartAll so the full batch can be brought up
// deterministically.
func (h *Host) RegisterPlugin(instanceID string, p Plugin) error {
	meta := p.Metadata()
	if err := validateVersion(h.version, meta.HostVersion); err != nil {
		return dcerrors.Wrapf(err, "plugin %s", meta.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.instances[instanceID]; exists {
		return dcerrors.Wrapf(dcerrors.ErrConflict, "instance %q already registered", instanceID)
	}
	h.instances[instanceID] = &instance{id: instanceID, meta: meta, p: p, state: StateLoaded}
	h.order = append(h.order, instanceID)
	return nil
}

func (h *Host) sortedIDs() []string {
	h.mu.RLock()
	ids := make([]string, len(h.order))
	copy(ids, h.order)
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// StartAll runs the lifecycle contract (Initialize, auto-wire, Start) for
// every registered plugin in deterministic (sorted instance id) order. A
// plugin that fails Initialize is marked StateFailed and skipped; it does
// not abort the rest of the batch.
func (h *Host) StartAll(ctx context.Context) {
	for _, id := range h.sortedIDs() {
		h.startOne(ctx, id)
	}
}

func (h *Host) startOne(ctx context.Context, id string) {
	h.mu.RLock()
	inst := h.instances[id]
	h.mu.RUnlock()
	if inst == nil {
		return
	}

	hc := &Context{InstanceID: id, TagService: h.tags, ServiceLookup: h.services}
	inst.ctx = hc

	if err := inst.p.Initialize(ctx, hc); err != nil {
		h.log.Errorw("plugin initialize failed", "instance", id, "error", err)
		inst.state = StateFailed
		return
	}
	inst.state = StateInitialized

	inst.mu.Lock()
	inst.disposables = autoWire(ctx, h.log, id, inst.p, h.reg, h.tags)
	inst.mu.Unlock()

	h.startRunLoop(ctx, inst)
	inst.state = StateStarted
}

func (h *Host) startRunLoop(ctx context.Context, inst *instance) {
	switch p := inst.p.(type) {
	case Runnable:
		if err := p.Start(ctx); err != nil {
			h.log.Errorw("plugin Start failed", "instance", inst.id, "error", err)
		}
	case ExecutablePlugin:
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		inst.cancelRun = cancel
		inst.runDone = done

		interval := time.Duration(p.RunIntervalMs()) * time.Millisecond
		if interval <= 0 {
			interval = time.Second
		}

		go func() {
			defer close(done)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					h.execSafely(runCtx, inst.id, p)
				}
			}
		}()
	}
}

func (h *Host) execSafely(ctx context.Context, id string, p ExecutablePlugin) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorw("plugin Execute panicked", "instance", id, "panic", r)
		}
	}()
	if err := p.Execute(ctx); err != nil {
		h.log.Warnw("plugin Execute returned error", "instance", id, "error", err)
	}
}

// Plug places the plugin registered under instanceID into rack/slotID.
// Exclusive: fails with dcerrors.ErrSlotOccupied if the slot already holds
// a plugin, leaving state untouched.
func (h *Host) Plug(instanceID, rackName string, slotID int) error {
	h.mu.RLock()
	inst := h.instances[instanceID]
	rack, rackOK := h.racks[rackName]
	h.mu.RUnlock()

	if inst == nil {
		return dcerrors.Wrapf(dcerrors.ErrNotRegistered, "instance %q", instanceID)
	}
	if !rackOK {
		return dcerrors.Wrapf(dcerrors.ErrRackNotFound, "rack %q", rackName)
	}
	slot, slotOK := rack.Slot(slotID)
	if !slotOK {
		return dcerrors.Wrapf(dcerrors.ErrSlotNotFound, "rack %q slot %d", rackName, slotID)
	}

	if err := slot.tryOccupy(inst); err != nil {
		return err
	}

	inst.mu.Lock()
	inst.rack = rack
	inst.slot = slot
	if inst.ctx != nil {
		inst.ctx.CurrentSlot = slot
	}
	inst.mu.Unlock()

	h.services.Register(rackName, slotID, inst.meta.Name, inst.p)

	if p, ok := inst.p.(Pluggable); ok {
		if err := p.OnPlugged(slot); err != nil {
			h.log.Warnw("OnPlugged returned error", "instance", instanceID, "error", err)
		}
	}
	return nil
}

// Unplug removes the plugin registered under instanceID from its slot, if
// any. Unplugging does not imply Stop; Stop happens only at ShutdownAll.
func (h *Host) Unplug(instanceID string) error {
	h.mu.RLock()
	inst := h.instances[instanceID]
	h.mu.RUnlock()
	if inst == nil {
		return dcerrors.Wrapf(dcerrors.ErrNotRegistered, "instance %q", instanceID)
	}

	inst.mu.Lock()
	slot := inst.slot
	inst.slot = nil
	inst.rack = nil
	if inst.ctx != nil {
		inst.ctx.CurrentSlot = nil
	}
	inst.mu.Unlock()

	if slot == nil {
		return nil
	}

	if p, ok := inst.p.(Pluggable); ok {
		if err := p.OnUnplugged(); err != nil {
			h.log.Warnw("OnUnplugged returned error", "instance", instanceID, "error", err)
		}
	}
	slot.vacate()
	return nil
}

// ShutdownAll unplugs, disposes auto-wire bindings, stops the run loop and
// shuts down every plugin, in reverse sorted instance id order (the reverse
// of StartAll). Best-effort:
// one plugin's failure does not prevent the rest from being attempted.
func (h *Host) ShutdownAll(ctx context.Context) {
	ids := h.sortedIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		h.stopOne(ctx, ids[i])
	}
}

func (h *Host) stopOne(ctx context.Context, id string) {
	h.mu.RLock()
	inst := h.instances[id]
	h.mu.RUnlock()
	if inst == nil {
		return
	}

	if inst.slot != nil {
		if err := h.Unplug(id); err != nil {
			h.log.Warnw("unplug during shutdown failed", "instance", id, "error", err)
		}
	}

	inst.mu.Lock()
	disposables := inst.disposables
	inst.disposables = nil
	inst.mu.Unlock()
	for _, d := range disposables {
		d.Dispose()
	}

	h.joinRunLoop(id, inst)

	if r, ok := inst.p.(Runnable); ok {
		if err := r.Stop(ctx); err != nil {
			h.log.Warnw("plugin Stop failed", "instance", id, "error", err)
		}
	}

	if err := inst.p.Shutdown(ctx); err != nil {
		h.log.Errorw("plugin shutdown failed", "instance", id, "error", err)
	}
	inst.state = StateStopped
}

func (h *Host) joinRunLoop(id string, inst *instance) {
	if inst.cancelRun == nil {
		return
	}
	inst.cancelRun()
	select {
	case <-inst.runDone:
	case <-time.After(stopJoinDeadline):
		h.log.Warnw("plugin run loop did not stop within deadline", "instance", id, "deadline", stopJoinDeadline)
	}
}

// Health returns a snapshot of every plugin's health, keyed by instance id.
func (h *Host) Health(ctx context.Context) map[string]HealthStatus {
	h.mu.RLock()
	ids := make([]string, 0, len(h.instances))
	instances := make(map[string]*instance, len(h.instances))
	for id, inst := range h.instances {
		ids = append(ids, id)
		instances[id] = inst
	}
	h.mu.RUnlock()

	out := make(map[string]HealthStatus, len(ids))
	for _, id := range ids {
		out[id] = instances[id].p.Health(ctx)
	}
	return out
}

// Services exposes the host's service registry for direct lookups.
func (h *Host) Services() ServiceLookup {
	return h.services
}

// TagService exposes the host-level tag service façade.
func (h *Host) TagService() *tagservice.Service {
	return h.tags
}
