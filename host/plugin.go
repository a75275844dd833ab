// Package host implements the plugin lifecycle and rack/slot placement
// model described in SPEC_FULL.md §4.5: instantiate, initialize, auto-wire
// tag bindings, start a run loop, optionally plug into a slot, and tear
// down in the reverse order on shutdown.
package host

import (
	"context"

	"github.com/dataconnect-io/dataconnect/tagservice"
)

// PluginMetadata describes a plugin, mirroring the teacher's Metadata
// struct with QNTXVersion renamed to HostVersion.
type PluginMetadata struct {
	Name        string
	Version     string
	HostVersion string // semver constraint against the running host version
	Description string
	Author      string
	License     string
}

// Context is handed to a plugin at Initialize and kept for the plugin's
// lifetime. CurrentSlot is nil until the plugin is plugged into a rack.
type Context struct {
	InstanceID     string
	TagService     *tagservice.Service
	ServiceLookup  ServiceLookup
	CurrentSlot    *Slot
}

// ServiceLookup resolves a named service registered at (rack, slotID) or
// at host level ("", 0).
type ServiceLookup interface {
	Lookup(rack string, slotID int, name string) (interface{}, bool)
}

// Plugin is the interface every managed plugin implements. Construction is
// parameterless; the host supplies everything else through Context.
type Plugin interface {
	Metadata() PluginMetadata

	// Initialize is called once, before auto-wire and before Start. Plugins
	// must not assume tag handles are allocated yet.
	Initialize(ctx context.Context, hc *Context) error

	// Shutdown is called once during host or plugin teardown, after Stop.
	Shutdown(ctx context.Context) error

	// Health reports the plugin's current health for diagnostics.
	Health(ctx context.Context) HealthStatus
}

// Runnable is an optional interface for plugins with custom run-loop
// behavior. A plugin that does not implement it gets the default
// interval-driven Execute loop via ExecutablePlugin.
type Runnable interface {
	Plugin
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ExecutablePlugin is an optional interface for plugins that want the
// host's default run loop: Execute is invoked every RunIntervalMs while
// the plugin is started.
type ExecutablePlugin interface {
	Plugin
	RunIntervalMs() int
	Execute(ctx context.Context) error
}

// Pluggable is an optional interface for plugins that react to being
// placed into or removed from a rack slot.
type Pluggable interface {
	Plugin
	OnPlugged(slot *Slot) error
	OnUnplugged() error
}

// HealthStatus mirrors the teacher's HealthStatus, renamed for this
// domain.
type HealthStatus struct {
	Healthy bool
	Message string
	Details map[string]interface{}
}

// State is the plugin lifecycle state machine from SPEC_FULL.md §4.5:
// Loaded -> Initialized -> Started -> (Plugged <-> Unplugged)* -> Stopped.
type State string

const (
	StateLoaded      State = "loaded"
	StateInitialized State = "initialized"
	StateStarted     State = "started"
	StateStopped     State = "stopped"
	StateFailed      State = "failed"
)
