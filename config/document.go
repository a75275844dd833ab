// Package config loads and hot-reloads the DataConnect configuration
// document (container / plugins / racks / tags / messaging), the way
// am.Load/am/load.go does for the teacher's core config, but thinner:
// one config file plus environment variables, no system/user/project
// merge chain (full config-file discovery is an external collaborator).
package config

// Document is the root configuration document.
type Document struct {
	Container ContainerConfig `mapstructure:"container"`
	Plugins   []PluginConfig  `mapstructure:"plugins"`
	Racks     []RackConfig    `mapstructure:"racks"`
	Tags      TagsConfig      `mapstructure:"tags"`
	Messaging MessagingConfig `mapstructure:"messaging"`
}

// ContainerConfig describes the running host process itself.
type ContainerConfig struct {
	Name                string `mapstructure:"name"`
	Version             string `mapstructure:"version"`
	ScanIntervalMs       int    `mapstructure:"scanIntervalMs"`
	MaxConcurrentCycles int    `mapstructure:"maxConcurrentCycles"`
	LogLevel            string `mapstructure:"logLevel"`
}

// PluginConfig describes one plugin entry to load.
type PluginConfig struct {
	Name          string                 `mapstructure:"name"`
	Path          string                 `mapstructure:"path"`
	Enabled       bool                   `mapstructure:"enabled"`
	Priority      int                    `mapstructure:"priority"`
	Configuration map[string]interface{} `mapstructure:"configuration"`
}

// Rack returns the rack name the plugin should plug into, per its
// configuration.rack entry, or "" if unset.
func (p PluginConfig) Rack() string {
	return stringField(p.Configuration, "rack")
}

// SlotID returns the plugin's configured slot id, if any.
func (p PluginConfig) SlotID() (int, bool) {
	return intField(p.Configuration, "slotId")
}

// SlotName returns the plugin's configured slot name, if any.
func (p PluginConfig) SlotName() string {
	return stringField(p.Configuration, "slotName")
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intField(m map[string]interface{}, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// RackConfig describes one rack and, optionally, its slots. If Slots is
// empty and SlotCount is positive, the rack gets SlotCount unnamed slots
// numbered 1..SlotCount.
type RackConfig struct {
	Name      string       `mapstructure:"name"`
	SlotCount int          `mapstructure:"slotCount"`
	Slots     []SlotConfig `mapstructure:"slots"`
}

// SlotConfig describes one rack slot.
type SlotConfig struct {
	ID         int                    `mapstructure:"id"`
	Name       string                 `mapstructure:"name"`
	Parameters map[string]interface{} `mapstructure:"parameters"`
}

// TagsConfig governs the tag registry/backplane's own behavior.
type TagsConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	PersistToFile   bool              `mapstructure:"persistToFile"`
	PersistencePath string            `mapstructure:"persistencePath"`
	DefaultTags     map[string]string `mapstructure:"defaultTags"`
}

// MessagingConfig selects and configures the backplane transport.
type MessagingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Transport string `mapstructure:"transport"` // "inmemory" | "grpc"
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
}
