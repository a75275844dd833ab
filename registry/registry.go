// Package registry implements the tag registry: allocation and recall of
// tag identities keyed by path, handle, role and owning plugin instance.
package registry

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dataconnect-io/dataconnect/dcerrors"
)

// Role distinguishes whether a binding produces or consumes a tag's value.
type Role int

const (
	// RoleUnspecified is the zero value; never assigned to a live Identity.
	RoleUnspecified Role = iota
	RoleProducer
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "Producer"
	case RoleConsumer:
		return "Consumer"
	default:
		return "Unspecified"
	}
}

// UnassignedHandle is the reserved handle value meaning "no identity".
const UnassignedHandle uint32 = 0

// Identity is the immutable-by-convention record describing one live tag.
// Handle and Path never change after allocation; Role and Owner may be
// updated in place by re-registration (see RegisterTags).
type Identity struct {
	Handle      uint32
	Path        string // normalized (lower-cased) lookup key
	DisplayPath string // original casing as first registered
	Role        Role
	Owner       string // effective owning plugin instance id
}

// RegisterItem is one entry of a RegisterTags request.
type RegisterItem struct {
	Path           string
	Role           Role
	SourceOverride string // optional; effective owner if non-empty
}

// AssignedTag is one entry of a RegisterTags response: the resulting
// Identity plus the instance id that made the request (which may differ
// from the effective owner when SourceOverride was used).
type AssignedTag struct {
	Identity
	ReferenceOwner string
}

// Registry allocates and recalls tag identities. Handle allocation uses an
// atomic counter so it never contends with path lookups; the two indexes
// (by path, by handle) share a single RWMutex. A pair of independent
// sync.Map-style structures was considered, but a single lock keeps the
// path->handle->identity invariant atomic across both indexes without a
// two-phase commit between them — the index is small and held only for the
// duration of a map write, so contention in practice is negligible.
type Registry struct {
	counter atomic.Uint32

	mu       sync.RWMutex
	byPath   map[string]*Identity
	byHandle map[uint32]*Identity
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byPath:   make(map[string]*Identity),
		byHandle: make(map[uint32]*Identity),
	}
}

func normalizePath(path string) string {
	return strings.ToLower(strings.TrimSpace(path))
}

// RegisterTags registers or recalls identities for each item. Empty or
// whitespace-only paths are skipped (not an error). The effective owner of
// an item is item.SourceOverride if non-empty, else referenceOwner.
func (r *Registry) RegisterTags(referenceOwner string, items []RegisterItem) []AssignedTag {
	if len(items) == 0 {
		return nil
	}

	out := make([]AssignedTag, 0, len(items))

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range items {
		key := normalizePath(item.Path)
		if key == "" {
			continue
		}

		owner := item.SourceOverride
		if owner == "" {
			owner = referenceOwner
		}

		if existing, ok := r.byPath[key]; ok {
			if existing.Role != item.Role || existing.Owner != owner {
				// Path is stable; role/owner churn updates in place but the
				// handle is preserved so subscribers never need to re-resolve.
				existing.Role = item.Role
				existing.Owner = owner
			}
			out = append(out, AssignedTag{Identity: *existing, ReferenceOwner: referenceOwner})
			continue
		}

		handle := r.counter.Add(1)
		identity := &Identity{
			Handle:      handle,
			Path:        key,
			DisplayPath: item.Path,
			Role:        item.Role,
			Owner:       owner,
		}
		r.byPath[key] = identity
		r.byHandle[handle] = identity
		out = append(out, AssignedTag{Identity: *identity, ReferenceOwner: referenceOwner})
	}

	return out
}

// GetByHandle looks up an Identity by its handle.
func (r *Registry) GetByHandle(handle uint32) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byHandle[handle]
	if !ok {
		return Identity{}, false
	}
	return *identity, true
}

// GetByPath looks up an Identity by its path (case-insensitive).
func (r *Registry) GetByPath(path string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byPath[normalizePath(path)]
	if !ok {
		return Identity{}, false
	}
	return *identity, true
}

// MustGetByHandle is a convenience for call sites that have already
// validated the handle exists and want dcerrors.ErrNotRegistered otherwise.
func (r *Registry) MustGetByHandle(handle uint32) (Identity, error) {
	identity, ok := r.GetByHandle(handle)
	if !ok {
		return Identity{}, dcerrors.Wrapf(dcerrors.ErrNotRegistered, "handle %d", handle)
	}
	return identity, nil
}

// Count returns the number of live identities. Used by health snapshots.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPath)
}
