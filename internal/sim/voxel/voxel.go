package voxel

import "sync"

// State is the payload owned by one voxel.
type State struct {
	Data     string `json:"data"`
	Revision uint64 `json:"revision"`
}

// Voxel owns its state and its directed neighbor list. Each voxel has its own
// lock; applying an event to one voxel never contends with another.
type Voxel struct {
	id ID

	mu        sync.RWMutex
	neighbors []ID
	state     State
}

func New(id ID) *Voxel {
	return &Voxel{id: id}
}

func NewWithState(id ID, s State) *Voxel {
	return &Voxel{id: id, state: s}
}

func (v *Voxel) ID() ID { return v.id }

// AddNeighbor appends a directed edge. Duplicates are kept and each one
// produces its own delivery per tick.
func (v *Voxel) AddNeighbor(id ID) {
	v.mu.Lock()
	v.neighbors = append(v.neighbors, id)
	v.mu.Unlock()
}

// Neighbors returns a copy of the neighbor list in insertion order.
func (v *Voxel) Neighbors() []ID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]ID, len(v.neighbors))
	copy(out, v.neighbors)
	return out
}

// Apply transitions the state. Concurrent calls on the same voxel are
// serialized and readers never see a half-applied event.
func (v *Voxel) Apply(ev Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := v.state
	switch e := ev.(type) {
	case UpdateData:
		next.Data = e.Data
	case ClearData:
		next.Data = ""
	default:
		return
	}
	next.Revision++
	v.state = next
}

// State returns a consistent copy of the current state.
func (v *Voxel) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}
