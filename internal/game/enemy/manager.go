package enemy

import (
	"fmt"
	"sort"
	"sync"
)

// Manager tracks live enemy instances by ID and by area.
// All methods are safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	areaOf    map[string]string
	areaSets  map[string]map[string]bool
	order     map[string]uint64
	seq       uint64
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		instances: make(map[string]*Instance),
		areaOf:    make(map[string]string),
		areaSets:  make(map[string]map[string]bool),
		order:     make(map[string]uint64),
	}
}

// Spawn creates a new Instance from tmpl in areaID.
//
// Precondition: tmpl must be non-nil; areaID must be non-empty.
// Postcondition: Returns a new Instance with a unique ID registered in areaID.
func (m *Manager) Spawn(tmpl *Template, areaID string) (*Instance, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("enemy.Manager.Spawn: tmpl must not be nil")
	}
	if areaID == "" {
		return nil, fmt.Errorf("enemy.Manager.Spawn: areaID must not be empty")
	}
	inst := NewInstance(tmpl)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(inst, areaID)
	return inst, nil
}

// SpawnN spawns n instances of tmpl in areaID.
//
// Postcondition: Returns n instances in spawn order, or an error and no instances.
func (m *Manager) SpawnN(tmpl *Template, areaID string, n int) ([]*Instance, error) {
	out := make([]*Instance, 0, max(0, n))
	for i := 0; i < n; i++ {
		inst, err := m.Spawn(tmpl, areaID)
		if err != nil {
			for _, spawned := range out {
				_ = m.Remove(spawned.ID())
			}
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// Remove deletes an instance by ID.
//
// Postcondition: Returns an error if the instance is not found.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[id]; !ok {
		return fmt.Errorf("enemy instance %q not found", id)
	}
	areaID := m.areaOf[id]
	if set, ok := m.areaSets[areaID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.areaSets, areaID)
		}
	}
	delete(m.instances, id)
	delete(m.areaOf, id)
	delete(m.order, id)
	return nil
}

// Get returns the instance with the given ID.
//
// Postcondition: Returns (inst, true) if found, or (nil, false) otherwise.
func (m *Manager) Get(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	return inst, ok
}

// InArea returns the instances in areaID in spawn order.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (m *Manager) InArea(areaID string) []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.areaSets[areaID]
	out := make([]*Instance, 0, len(ids))
	for id := range ids {
		out = append(out, m.instances[id])
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID()] < m.order[out[j].ID()] })
	return out
}

// LivingInArea returns the instances in areaID that are not dead, in spawn order.
func (m *Manager) LivingInArea(areaID string) []*Instance {
	all := m.InArea(areaID)
	living := all[:0]
	for _, inst := range all {
		if !inst.IsDead() {
			living = append(living, inst)
		}
	}
	return living
}

// ClearArea removes every instance in areaID.
//
// Postcondition: InArea(areaID) is empty.
func (m *Manager) ClearArea(areaID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.areaSets[areaID] {
		delete(m.instances, id)
		delete(m.areaOf, id)
		delete(m.order, id)
	}
	delete(m.areaSets, areaID)
}

// Count returns the number of live instances across all areas.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}

func (m *Manager) add(inst *Instance, areaID string) {
	m.seq++
	m.instances[inst.ID()] = inst
	m.areaOf[inst.ID()] = areaID
	m.order[inst.ID()] = m.seq
	if m.areaSets[areaID] == nil {
		m.areaSets[areaID] = make(map[string]bool)
	}
	m.areaSets[areaID][inst.ID()] = true
}
