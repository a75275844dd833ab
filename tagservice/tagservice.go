// Package tagservice is the plugin-facing façade over a registry.Registry
// and a backplane.Capability. Plugins talk to a Service; they never touch
// the registry or backplane directly.
package tagservice

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/dcerrors"
	"github.com/dataconnect-io/dataconnect/registry"
)

type localSub struct {
	id uint64
	cb func(interface{})
}

// pathBinding tracks the local subscribers for one path plus the single
// backend subscription (if any) those subscribers share.
type pathBinding struct {
	mu         sync.Mutex
	subs       []localSub
	backendSub backplane.Disposable
	handle     uint32
	hasHandle  bool
	activating bool // true while a goroutine is opening the backend subscription
}

// Service is the tag-service façade described in SPEC_FULL.md §4.4.
type Service struct {
	log *zap.SugaredLogger
	reg *registry.Registry
	bp  backplane.Capability

	nextSub atomic.Uint64

	mu       sync.Mutex
	declared map[string]registry.Role
	bindings map[string]*pathBinding
}

// New builds a Service over the given registry and backplane.
func New(log *zap.SugaredLogger, reg *registry.Registry, bp backplane.Capability) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		log:      log.Named("tagservice"),
		reg:      reg,
		bp:       bp,
		declared: make(map[string]registry.Role),
		bindings: make(map[string]*pathBinding),
	}
}

// DeclareProducer records that path is produced by the calling plugin.
// Idempotent; the host calls it for each producer binding during auto-wire
// registration.
func (s *Service) DeclareProducer(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declared[path] = registry.RoleProducer
}

// DeclareConsumer records that path is consumed by the calling plugin.
// Idempotent; the host calls it for each consumer binding during auto-wire
// registration.
func (s *Service) DeclareConsumer(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declared[path] = registry.RoleConsumer
}

// SetTag resolves path to a handle and publishes value through the
// backplane. Non-blocking: it does not await the backend's ack and logs
// (rather than returns) any publish failure, matching the hot-path
// fire-and-forget contract in SPEC_FULL.md §4.4. Returns
// dcerrors.ErrNotRegistered synchronously, since a missing handle means
// there is nothing to publish to.
func (s *Service) SetTag(path string, value interface{}) error {
	identity, ok := s.reg.GetByPath(path)
	if !ok {
		return dcerrors.Wrapf(dcerrors.ErrNotRegistered, "SetTag %q", path)
	}

	tv := backplane.NewValue(identity.Handle, identity.Owner, value)
	go func() {
		if err := s.bp.Publish(context.Background(), tv); err != nil {
			s.log.Errorw("publish failed", "path", path, "handle", identity.Handle, "error", err)
		}
	}()
	return nil
}

// SetTags publishes a batch of (path, value) pairs by calling SetTag once
// per item; it does not build a TagBatch. With per-handle-only atomicity
// (DESIGN.md open question (b)), a failure on one item does not prevent the
// rest from being attempted; callers get the first NotRegistered error (if
// any) but every resolvable item is still published.
func (s *Service) SetTags(items map[string]interface{}) error {
	var first error
	for path, value := range items {
		if err := s.SetTag(path, value); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// GetTag reads the last published value for path, coerced to T. On any
// failure (unregistered path, no mirror entry, incompatible type) it
// returns the zero value of T, matching the "never throw on the hot path"
// contract; use TryGetTag to distinguish "absent" from "zero".
func GetTag[T any](ctx context.Context, s *Service, path string) T {
	var zero T
	v, ok := TryGetTag[T](ctx, s, path)
	if !ok {
		return zero
	}
	return v
}

// TryGetTag reads the last published value for path, coerced to T, and
// reports whether a value was available and coercible.
func TryGetTag[T any](ctx context.Context, s *Service, path string) (T, bool) {
	var zero T

	identity, ok := s.reg.GetByPath(path)
	if !ok {
		return zero, false
	}
	tv, found, err := s.bp.GetLastValue(ctx, identity.Handle)
	if err != nil || !found {
		return zero, false
	}
	return coerce[T](tv)
}

// SubscribeTag registers cb to be invoked (with the unwrapped scalar/bytes/
// string value) on every future publish to path. Multiple local callbacks
// for the same path share one backend subscription. If path is not yet
// registered, the subscription is accepted and activates once
// OnTagsRegistered reveals the handle.
//
// The decision to activate (open the single shared backend subscription)
// is made and claimed under binding.mu via the activating flag, so two
// concurrent first-subscribers for the same path can't both see
// backendSub == nil and each open a backend subscription.
func (s *Service) SubscribeTag(path string, cb func(interface{})) (backplane.Disposable, error) {
	binding := s.bindingFor(path)
	id := s.nextSub.Add(1)

	binding.mu.Lock()
	binding.subs = append(binding.subs, localSub{id: id, cb: cb})
	shouldActivate := binding.backendSub == nil && !binding.activating
	var handle uint32
	hasHandle := binding.hasHandle
	if hasHandle {
		handle = binding.handle
	}
	if shouldActivate {
		binding.activating = true
	}
	binding.mu.Unlock()

	if shouldActivate {
		if !hasHandle {
			if identity, ok := s.reg.GetByPath(path); ok {
				hasHandle = true
				handle = identity.Handle
			}
		}
		if hasHandle {
			s.activate(binding, handle)
		} else {
			binding.mu.Lock()
			binding.activating = false
			binding.mu.Unlock()
		}
	}

	return disposerFunc(func() {
		s.removeSub(path, binding, id)
	}), nil
}

// OnTagsRegistered is invoked by the host after registry allocation so
// subscriptions declared before a path's handle existed can be activated.
func (s *Service) OnTagsRegistered(identities []registry.Identity) {
	for _, identity := range identities {
		s.mu.Lock()
		binding, ok := s.bindings[identity.Path]
		s.mu.Unlock()
		if !ok {
			continue
		}

		binding.mu.Lock()
		already := binding.hasHandle
		hasSubs := len(binding.subs) > 0
		shouldActivate := !already && hasSubs && binding.backendSub == nil && !binding.activating
		if shouldActivate {
			binding.activating = true
		}
		binding.mu.Unlock()

		if shouldActivate {
			s.activate(binding, identity.Handle)
		}
	}
}

// bindingFor keys bindings by the registry's normalized (trimmed,
// lower-cased) path, so OnTagsRegistered can find them by Identity.Path.
func (s *Service) bindingFor(path string) *pathBinding {
	key := strings.ToLower(strings.TrimSpace(path))
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bindings[key]; ok {
		return b
	}
	b := &pathBinding{}
	s.bindings[key] = b
	return b
}

func (s *Service) activate(binding *pathBinding, handle uint32) {
	cb := func(tv backplane.TagValue) {
		raw := tv.Raw()
		binding.mu.Lock()
		subs := make([]localSub, len(binding.subs))
		copy(subs, binding.subs)
		binding.mu.Unlock()
		for _, sub := range subs {
			sub.cb(raw)
		}
	}

	disposable, err := s.bp.Subscribe(context.Background(), handle, cb)

	binding.mu.Lock()
	defer binding.mu.Unlock()
	binding.activating = false
	if err != nil {
		s.log.Errorw("backend subscribe failed", "handle", handle, "error", err)
		return
	}
	binding.backendSub = disposable
	binding.handle = handle
	binding.hasHandle = true
}

func (s *Service) removeSub(path string, binding *pathBinding, id uint64) {
	binding.mu.Lock()
	for i, sub := range binding.subs {
		if sub.id == id {
			binding.subs = append(binding.subs[:i], binding.subs[i+1:]...)
			break
		}
	}
	empty := len(binding.subs) == 0
	var toDispose backplane.Disposable
	if empty && binding.backendSub != nil {
		toDispose = binding.backendSub
		binding.backendSub = nil
		binding.hasHandle = false
	}
	binding.mu.Unlock()

	if toDispose != nil {
		toDispose.Dispose()
	}
}

type disposerFunc func()

func (f disposerFunc) Dispose() { f() }

// coerce applies the widening/narrowing/parse rules from SPEC_FULL.md §4.4.
func coerce[T any](tv backplane.TagValue) (T, bool) {
	var zero T
	target := any(zero)

	switch target.(type) {
	case bool:
		if tv.Kind == backplane.KindBool {
			return any(tv.Bool).(T), true
		}
	case int64:
		switch tv.Kind {
		case backplane.KindInt64:
			return any(tv.Int64).(T), true
		case backplane.KindDouble:
			return any(int64(tv.Double)).(T), true
		case backplane.KindString:
			if n, err := strconv.ParseInt(tv.String, 10, 64); err == nil {
				return any(n).(T), true
			}
		}
	case float64:
		switch tv.Kind {
		case backplane.KindDouble:
			return any(tv.Double).(T), true
		case backplane.KindInt64:
			return any(float64(tv.Int64)).(T), true
		case backplane.KindString:
			if f, err := strconv.ParseFloat(tv.String, 64); err == nil {
				return any(f).(T), true
			}
		}
	case string:
		switch tv.Kind {
		case backplane.KindString:
			return any(tv.String).(T), true
		case backplane.KindInt64:
			return any(strconv.FormatInt(tv.Int64, 10)).(T), true
		case backplane.KindDouble:
			return any(strconv.FormatFloat(tv.Double, 'g', -1, 64)).(T), true
		case backplane.KindBool:
			return any(strconv.FormatBool(tv.Bool)).(T), true
		}
	case []byte:
		if tv.Kind == backplane.KindBytes {
			return any(tv.Bytes).(T), true
		}
	}
	return zero, false
}
