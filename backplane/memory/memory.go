// Package memory implements the in-memory backplane.Capability: the
// authoritative local store and fan-out channel for a single process.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/dcerrors"
)

type subscriberEntry struct {
	id uint64
	cb backplane.Callback
}

// handleState holds the mirror entry and subscriber list for one handle.
// Its own mutex serializes publishes within the handle without blocking
// publishes on other handles, matching the "no ordering across handles"
// guarantee.
type handleState struct {
	mu          sync.Mutex
	value       backplane.TagValue
	hasValue    bool
	subscribers []subscriberEntry
}

// Backplane is the in-memory implementation of backplane.Capability.
type Backplane struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	handles map[uint32]*handleState
	closed  atomic.Bool
	nextSub atomic.Uint64
}

// New creates an empty in-memory Backplane.
func New(log *zap.SugaredLogger) *Backplane {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Backplane{
		log:     log.Named("backplane.memory"),
		handles: make(map[uint32]*handleState),
	}
}

func (b *Backplane) stateFor(handle uint32, create bool) *handleState {
	b.mu.RLock()
	st, ok := b.handles[handle]
	b.mu.RUnlock()
	if ok || !create {
		return st
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.handles[handle]; ok {
		return st
	}
	st = &handleState{}
	b.handles[handle] = st
	return st
}

// Publish overwrites the mirror entry for value.Handle (last-writer-wins)
// then synchronously fans out to a snapshot of subscribers. A panicking
// callback is recovered and logged; it does not abort the publish or
// affect other subscribers.
func (b *Backplane) Publish(ctx context.Context, value backplane.TagValue) error {
	if b.closed.Load() {
		return dcerrors.ErrDisposed
	}

	st := b.stateFor(value.Handle, true)
	st.mu.Lock()
	st.value = value
	st.hasValue = true
	snapshot := make([]subscriberEntry, len(st.subscribers))
	copy(snapshot, st.subscribers)
	st.mu.Unlock()

	for _, sub := range snapshot {
		b.invokeSafely(value, sub)
	}
	return nil
}

func (b *Backplane) invokeSafely(value backplane.TagValue, sub subscriberEntry) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("subscriber callback panicked", "handle", value.Handle, "subscriber", sub.id, "panic", r)
		}
	}()
	sub.cb(value)
}

// GetLastValue reads the mirror entry for handle, if any.
func (b *Backplane) GetLastValue(ctx context.Context, handle uint32) (backplane.TagValue, bool, error) {
	if b.closed.Load() {
		return backplane.TagValue{}, false, dcerrors.ErrDisposed
	}

	st := b.stateFor(handle, false)
	if st == nil {
		return backplane.TagValue{}, false, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.value, st.hasValue, nil
}

// Subscribe registers cb for future publishes on handle. No initial
// snapshot is delivered here; the tag service layer mediates that.
func (b *Backplane) Subscribe(ctx context.Context, handle uint32, cb backplane.Callback) (backplane.Disposable, error) {
	if b.closed.Load() {
		return nil, dcerrors.ErrDisposed
	}

	st := b.stateFor(handle, true)
	id := b.nextSub.Add(1)

	st.mu.Lock()
	st.subscribers = append(st.subscribers, subscriberEntry{id: id, cb: cb})
	st.mu.Unlock()

	disposed := atomic.Bool{}
	return disposerFunc(func() {
		if !disposed.CompareAndSwap(false, true) {
			return
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		for i, sub := range st.subscribers {
			if sub.id == id {
				st.subscribers = append(st.subscribers[:i], st.subscribers[i+1:]...)
				break
			}
		}
	}), nil
}

type disposerFunc func()

func (f disposerFunc) Dispose() { f() }

// Close clears the mirror and subscriber map. Subsequent operations fail
// with dcerrors.ErrDisposed.
func (b *Backplane) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.mu.Lock()
	b.handles = make(map[uint32]*handleState)
	b.mu.Unlock()
	return nil
}

var _ backplane.Capability = (*Backplane)(nil)
