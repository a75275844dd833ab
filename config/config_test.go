package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "dataconnect.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "dataconnect", doc.Container.Name)
	assert.Equal(t, "inmemory", doc.Messaging.Transport)
	assert.Equal(t, 50051, doc.Messaging.Port)
}

func TestLoadParsesFullDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[container]
name = "line1"
version = "1.2.3"
scanIntervalMs = 250

[[plugins]]
name = "mixer"
path = "./plugins/mixer"
enabled = true
priority = 10
[plugins.configuration]
rack = "mixing"
slotId = 1

[[racks]]
name = "mixing"
slotCount = 4

[tags]
enabled = true
persistToFile = true
persistencePath = "tags.toml"

[messaging]
enabled = true
transport = "grpc"
host = "0.0.0.0"
port = 9090
`)

	doc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "line1", doc.Container.Name)
	assert.Equal(t, 250, doc.Container.ScanIntervalMs)
	require.Len(t, doc.Plugins, 1)
	assert.Equal(t, "mixer", doc.Plugins[0].Name)
	assert.Equal(t, "mixing", doc.Plugins[0].Rack())
	slotID, ok := doc.Plugins[0].SlotID()
	assert.True(t, ok)
	assert.Equal(t, 1, slotID)

	require.Len(t, doc.Racks, 1)
	assert.Equal(t, 4, doc.Racks[0].SlotCount)

	assert.True(t, doc.Tags.PersistToFile)
	assert.Equal(t, "grpc", doc.Messaging.Transport)
	assert.Equal(t, 9090, doc.Messaging.Port)
}

func TestLoadEnvOverridesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[messaging]
transport = "inmemory"
port = 1111
`)

	t.Setenv("DATACONNECT_MESSAGING_TRANSPORT", "grpc")
	t.Setenv("DATACONNECT_PORT", "7000")

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "grpc", doc.Messaging.Transport)
	assert.Equal(t, 7000, doc.Messaging.Port)
}

func TestPluginConfigurationAccessorsMissingKeys(t *testing.T) {
	p := PluginConfig{}
	assert.Equal(t, "", p.Rack())
	assert.Equal(t, "", p.SlotName())
	_, ok := p.SlotID()
	assert.False(t, ok)
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[container]
name = "before"
`)

	w, err := NewWatcher(zap.NewNop().Sugar(), path)
	require.NoError(t, err)
	defer w.Stop()

	reloaded := make(chan *Document, 1)
	w.OnReload(func(doc *Document) error {
		reloaded <- doc
		return nil
	})
	require.NoError(t, w.Start())

	time.Sleep(50 * time.Millisecond)
	writeConfig(t, dir, `
[container]
name = "after"
`)

	select {
	case doc := <-reloaded:
		assert.Equal(t, "after", doc.Container.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload callback to fire")
	}
}

func TestWatcherSkipsOwnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[container]
name = "before"
`)

	w, err := NewWatcher(zap.NewNop().Sugar(), path)
	require.NoError(t, err)
	defer w.Stop()

	reloaded := make(chan *Document, 1)
	w.OnReload(func(doc *Document) error {
		reloaded <- doc
		return nil
	})
	require.NoError(t, w.Start())

	time.Sleep(50 * time.Millisecond)
	w.MarkOwnWrite()
	writeConfig(t, dir, `
[container]
name = "self-written"
`)

	select {
	case <-reloaded:
		t.Fatal("own write should not have triggered a reload")
	case <-time.After(1200 * time.Millisecond):
	}
}

func TestIsBackupFileFilters(t *testing.T) {
	assert.True(t, isBackupFile("dataconnect.toml~"))
	assert.True(t, isBackupFile(".dataconnect.toml.swp"))
	assert.False(t, isBackupFile("dataconnect.toml"))
}

func TestPersistDefaultTagsRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.toml")
	tags := map[string]string{"Plant/Reading": "0", "Plant/Setpoint": "42"}

	require.NoError(t, PersistDefaultTags(path, tags))

	loaded, err := LoadPersistedTags(path)
	require.NoError(t, err)
	assert.Equal(t, tags, loaded)
}

func TestLoadPersistedTagsMissingFileReturnsNil(t *testing.T) {
	loaded, err := LoadPersistedTags(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestWatcherPersistDefaultTagsMarksOwnWriteForWatchedPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[container]
name = "before"
`)

	w, err := NewWatcher(zap.NewNop().Sugar(), path)
	require.NoError(t, err)
	defer w.Stop()

	reloaded := make(chan *Document, 1)
	w.OnReload(func(doc *Document) error {
		reloaded <- doc
		return nil
	})
	require.NoError(t, w.Start())
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, w.PersistDefaultTags(path, map[string]string{"a": "1"}))

	select {
	case <-reloaded:
		t.Fatal("persisting to the watched path should have been suppressed as our own write")
	case <-time.After(1200 * time.Millisecond):
	}
}

func TestWatcherPersistDefaultTagsDifferentPathDoesNotMarkOwnWrite(t *testing.T) {
	dir := t.TempDir()
	configFilePath := writeConfig(t, dir, `
[container]
name = "before"
`)
	tagsPath := filepath.Join(dir, "tags.toml")

	w, err := NewWatcher(zap.NewNop().Sugar(), configFilePath)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.PersistDefaultTags(tagsPath, map[string]string{"a": "1"}))

	assert.False(t, w.checkOwnWrite())
}
