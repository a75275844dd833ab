package host

import "sync"

type serviceKey struct {
	rack   string
	slotID int
	name   string
}

// serviceRegistry implements ServiceLookup plus registration, keyed by
// (rack, slot_id, service_name) per SPEC_FULL.md §4.5. Host-level services
// (tag service, backplane, registry) live at ("", 0, name).
type serviceRegistry struct {
	mu      sync.RWMutex
	entries map[serviceKey]interface{}
}

func newServiceRegistry() *serviceRegistry {
	return &serviceRegistry{entries: make(map[serviceKey]interface{})}
}

// Register adds or overwrites the service at (rack, slotID, name).
func (s *serviceRegistry) Register(rack string, slotID int, name string, svc interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[serviceKey{rack, slotID, name}] = svc
}

// Lookup implements host.ServiceLookup.
func (s *serviceRegistry) Lookup(rack string, slotID int, name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[serviceKey{rack, slotID, name}]
	return v, ok
}

// LookupBySlotName resolves slotName to an id via r before looking up,
// the convenience overload SPEC_FULL.md §4.5 calls for.
func (s *serviceRegistry) LookupBySlotName(r *Rack, rackName, slotName, serviceName string) (interface{}, bool) {
	slot, ok := r.SlotByName(slotName)
	if !ok {
		return nil, false
	}
	return s.Lookup(rackName, slot.ID, serviceName)
}
