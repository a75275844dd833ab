// dataconnect-host boots the tag registry, backplane and plugin host from
// a configuration document and blocks until shutdown is requested.
//
// Usage:
//
//	dataconnect-host --config ./dataconnect.toml
//	dataconnect-host --config ./dataconnect.toml --log-level debug
//
// Plugin assembly discovery and dynamic loading are external
// collaborators (out of scope here); this entry point wires the bus and
// host, registers the configured racks, and waits for SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/backplane/memory"
	"github.com/dataconnect-io/dataconnect/config"
	"github.com/dataconnect-io/dataconnect/grpctransport"
	"github.com/dataconnect-io/dataconnect/host"
	"github.com/dataconnect-io/dataconnect/registry"
)

var (
	configPath = flag.String("config", "dataconnect.toml", "path to the configuration document")
	logLevel   = flag.String("log-level", "", "overrides container.logLevel from the config file")
	version    = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	doc, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := doc.Container.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := setupLogger(level)
	defer logger.Sync()

	if *version {
		fmt.Printf("%s %s\n", doc.Container.Name, doc.Container.Version)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Infow("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := registry.New()
	bp := memory.New(logger)
	grpcServer := buildRemoteServer(logger, doc, reg, bp)

	h := host.New(logger, doc.Container.Version, reg, bp)
	for _, rackCfg := range doc.Racks {
		h.AddRack(rackFromConfig(rackCfg))
	}

	h.StartAll(ctx)
	defer h.ShutdownAll(context.Background())

	if grpcServer != nil {
		addr := fmt.Sprintf("%s:%d", doc.Messaging.Host, doc.Messaging.Port)
		logger.Infow("starting remote backplane", "address", addr)
		go func() {
			if err := grpcServer.Serve(ctx, addr); err != nil {
				logger.Errorw("remote backplane server error", "error", err)
			}
		}()
	}

	watcher, err := config.NewWatcher(logger, *configPath)
	if err != nil {
		logger.Warnw("config hot-reload disabled", "error", err)
	} else {
		watcher.OnReload(func(doc *config.Document) error {
			logger.Infow("configuration reloaded", "version", doc.Container.Version)
			return nil
		})
		if err := watcher.Start(); err != nil {
			logger.Warnw("config hot-reload disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if doc.Tags.PersistToFile && doc.Tags.PersistencePath != "" {
		persistFn := config.PersistDefaultTags
		if watcher != nil {
			persistFn = watcher.PersistDefaultTags
		}
		if err := persistFn(doc.Tags.PersistencePath, doc.Tags.DefaultTags); err != nil {
			logger.Warnw("failed to persist default tags", "path", doc.Tags.PersistencePath, "error", err)
		}
	}

	logger.Infow("dataconnect host started",
		"name", doc.Container.Name,
		"version", doc.Container.Version,
		"transport", doc.Messaging.Transport,
	)

	<-ctx.Done()
	logger.Info("shutdown complete")
}

// buildRemoteServer returns a *grpctransport.Server wrapping reg/bp when
// messaging.transport is "grpc", so remote plugin processes can reach the
// same registry and backplane this host's local plugins are wired to.
// For "inmemory" it returns nil: no remote surface is started.
func buildRemoteServer(logger *zap.SugaredLogger, doc *config.Document, reg *registry.Registry, bp backplane.Capability) *grpctransport.Server {
	if doc.Messaging.Transport != "grpc" {
		return nil
	}
	return grpctransport.NewServer(logger, reg, bp, os.Getenv("DATACONNECT_AUTH_TOKEN"))
}

func rackFromConfig(cfg config.RackConfig) *host.Rack {
	var slots []*host.Slot
	if len(cfg.Slots) > 0 {
		for _, s := range cfg.Slots {
			slots = append(slots, &host.Slot{ID: s.ID, Name: s.Name, Parameters: stringifyParameters(s.Parameters)})
		}
	} else {
		for i := 1; i <= cfg.SlotCount; i++ {
			slots = append(slots, &host.Slot{ID: i})
		}
	}
	return host.NewRack(cfg.Name, slots)
}

// stringifyParameters adapts a config document's loosely-typed slot
// parameters into the plain string map host.Slot carries at runtime.
func stringifyParameters(m map[string]interface{}) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

func setupLogger(level string) *zap.SugaredLogger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger.Sugar()
}
