package host

import (
	"sync"

	"github.com/dataconnect-io/dataconnect/dcerrors"
)

// Slot is one exclusive placement point within a Rack. At most one plugin
// instance may occupy a slot at a time.
type Slot struct {
	ID         int
	Name       string
	Parameters map[string]string

	mu       sync.Mutex
	instance *instance
}

func (s *Slot) occupant() *instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instance
}

func (s *Slot) tryOccupy(inst *instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instance != nil {
		return dcerrors.Wrapf(dcerrors.ErrSlotOccupied, "slot %d (%s)", s.ID, s.Name)
	}
	s.instance = inst
	return nil
}

func (s *Slot) vacate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instance = nil
}

// Rack groups a set of named, numbered slots. Racks are built from
// config.Document and added to a Host with Host.AddRack.
type Rack struct {
	Name string

	mu    sync.RWMutex
	slots map[int]*Slot
	byName map[string]int
}

// NewRack creates a Rack with the given slots pre-populated.
func NewRack(name string, slots []*Slot) *Rack {
	r := &Rack{Name: name, slots: make(map[int]*Slot), byName: make(map[string]int)}
	for _, s := range slots {
		r.slots[s.ID] = s
		if s.Name != "" {
			r.byName[s.Name] = s.ID
		}
	}
	return r
}

// Slot returns the slot with the given id.
func (r *Rack) Slot(id int) (*Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	return s, ok
}

// SlotByName resolves a slot name to its id, then returns the slot — the
// convenience overload SPEC_FULL.md §4.5's service registry lookup relies
// on.
func (r *Rack) SlotByName(name string) (*Slot, bool) {
	r.mu.RLock()
	id, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.Slot(id)
}

// Slots returns every slot in the rack, in id order is not guaranteed.
func (r *Rack) Slots() []*Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Slot, 0, len(r.slots))
	for _, s := range r.slots {
		out = append(out, s)
	}
	return out
}
