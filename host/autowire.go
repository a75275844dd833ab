package host

import (
	"context"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/registry"
	"github.com/dataconnect-io/dataconnect/tagservice"
)

// tagBindingTag is the struct tag the auto-wire scanner looks for, the
// nearest Go equivalent to attribute-based tag wiring in the source
// platform: `dctag:"path=Plant/Temperature,role=producer,interval=1000"`.
const tagBindingTag = "dctag"

type binding struct {
	fieldIndex int
	path       string
	role       registry.Role
	intervalMs int
}

func parseBindings(v reflect.Value) []binding {
	t := v.Type()
	var out []binding
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		raw, ok := field.Tag.Lookup(tagBindingTag)
		if !ok || raw == "" {
			continue
		}
		b := binding{fieldIndex: i}
		for _, part := range strings.Split(raw, ",") {
			kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
			if len(kv) != 2 {
				continue
			}
			key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
			switch key {
			case "path":
				b.path = val
			case "role":
				if strings.EqualFold(val, "consumer") {
					b.role = registry.RoleConsumer
				} else {
					b.role = registry.RoleProducer
				}
			case "interval":
				if n, err := strconv.Atoi(val); err == nil {
					b.intervalMs = n
				}
			}
		}
		if b.path != "" {
			out = append(out, b)
		}
	}
	return out
}

// autoWire scans plugin for dctag-annotated fields, registers them in one
// batch, notifies the tag service, subscribes consumer fields, and starts
// a periodic publisher for every producer field with a positive interval.
// It returns one Disposable per subscription and per periodic task, per
// SPEC_FULL.md §4.5.
func autoWire(ctx context.Context, log *zap.SugaredLogger, instanceID string, plugin Plugin, reg *registry.Registry, tags *tagservice.Service) []backplane.Disposable {
	ptr := reflect.ValueOf(plugin)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Struct {
		return nil
	}
	v := ptr.Elem()

	bindings := parseBindings(v)
	if len(bindings) == 0 {
		return nil
	}

	items := make([]registry.RegisterItem, 0, len(bindings))
	for _, b := range bindings {
		items = append(items, registry.RegisterItem{Path: b.path, Role: b.role})
		if b.role == registry.RoleConsumer {
			tags.DeclareConsumer(b.path)
		} else {
			tags.DeclareProducer(b.path)
		}
	}
	assigned := reg.RegisterTags(instanceID, items)

	identities := make([]registry.Identity, 0, len(assigned))
	for _, a := range assigned {
		identities = append(identities, a.Identity)
	}
	tags.OnTagsRegistered(identities)

	var disposables []backplane.Disposable
	for i, b := range bindings {
		field := v.Field(b.fieldIndex)

		switch b.role {
		case registry.RoleConsumer:
			if !field.CanSet() {
				log.Warnw("auto-wire: consumer field not settable, skipping", "instance", instanceID, "path", b.path)
				continue
			}
			sub, err := tags.SubscribeTag(b.path, writebackCallback(field))
			if err != nil {
				log.Errorw("auto-wire: subscribe failed", "instance", instanceID, "path", b.path, "error", err)
				continue
			}
			disposables = append(disposables, sub)

		case registry.RoleProducer:
			if b.intervalMs <= 0 {
				continue
			}
			stop := startPeriodicPublish(ctx, log, tags, assigned[i].Path, field, time.Duration(b.intervalMs)*time.Millisecond)
			disposables = append(disposables, stop)
		}
	}
	return disposables
}

// writebackCallback returns a tagservice callback that writes a coerced
// value back into field, tolerating type mismatches by skipping the write.
func writebackCallback(field reflect.Value) func(interface{}) {
	return func(raw interface{}) {
		rv := reflect.ValueOf(raw)
		if !rv.IsValid() {
			return
		}
		if rv.Type().AssignableTo(field.Type()) {
			field.Set(rv)
			return
		}
		if rv.Type().ConvertibleTo(field.Type()) {
			field.Set(rv.Convert(field.Type()))
		}
	}
}

type stopFunc func()

func (f stopFunc) Dispose() { f() }

// startPeriodicPublish starts a ticker that reads field and calls
// tags.SetTag(path, ...) every interval, until the returned Disposable is
// invoked or ctx is cancelled.
func startPeriodicPublish(ctx context.Context, log *zap.SugaredLogger, tags *tagservice.Service, path string, field reflect.Value, interval time.Duration) backplane.Disposable {
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-taskCtx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Errorw("auto-wire periodic publish panicked", "path", path, "panic", r)
						}
					}()
					if err := tags.SetTag(path, field.Interface()); err != nil {
						log.Warnw("auto-wire periodic publish failed", "path", path, "error", err)
					}
				}()
			}
		}
	}()

	return stopFunc(func() {
		cancel()
		<-done
	})
}
