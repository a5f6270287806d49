package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"voxelgrid.ai/internal/sim/voxel"
)

// Edge is one directed neighbor relation captured at tick start.
type Edge struct {
	From voxel.ID
	To   voxel.ID
}

// Registry owns every voxel, indexed by id. The map is guarded by a
// reader-writer lock; voxel state is guarded by each voxel's own lock, so the
// registry lock is never held while an event is applied.
type Registry struct {
	mu     sync.RWMutex
	voxels map[voxel.ID]*voxel.Voxel
}

func NewRegistry() *Registry {
	return &Registry{voxels: make(map[voxel.ID]*voxel.Voxel, 256)}
}

// Insert stores v under its id, replacing any previous voxel (last write wins).
func (r *Registry) Insert(v *voxel.Voxel) {
	if v == nil {
		return
	}
	r.mu.Lock()
	r.voxels[v.ID()] = v
	r.mu.Unlock()
}

// insertNew stores v only if the id is free.
func (r *Registry) insertNew(v *voxel.Voxel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.voxels[v.ID()]; ok {
		return false
	}
	r.voxels[v.ID()] = v
	return true
}

func (r *Registry) Lookup(id voxel.ID) (*voxel.Voxel, bool) {
	r.mu.RLock()
	v, ok := r.voxels[id]
	r.mu.RUnlock()
	return v, ok
}

// Deliver applies ev to the voxel with the given id. A missing voxel is a
// silent no-op; the return value reports whether the event was applied.
func (r *Registry) Deliver(id voxel.ID, ev voxel.Event) bool {
	v, ok := r.Lookup(id)
	if !ok {
		return false
	}
	v.Apply(ev)
	return true
}

func (r *Registry) Remove(id voxel.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.voxels[id]; !ok {
		return false
	}
	delete(r.voxels, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.voxels)
}

// IDs returns all registered ids in x,y,z order.
func (r *Registry) IDs() []voxel.ID {
	r.mu.RLock()
	ids := make([]voxel.ID, 0, len(r.voxels))
	for id := range r.voxels {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sortIDs(ids)
	return ids
}

// Edges snapshots every (voxel, neighbor) pair. Sources are visited in id
// order and each source's neighbors in insertion order.
func (r *Registry) Edges() []Edge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]voxel.ID, 0, len(r.voxels))
	for id := range r.voxels {
		ids = append(ids, id)
	}
	sortIDs(ids)

	var edges []Edge
	for _, id := range ids {
		for _, n := range r.voxels[id].Neighbors() {
			edges = append(edges, Edge{From: id, To: n})
		}
	}
	return edges
}

// Digest hashes every (id, state) pair in id order.
func (r *Registry) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	for _, id := range r.IDs() {
		v, ok := r.Lookup(id)
		if !ok {
			continue
		}
		s := v.State()
		for _, c := range [3]int32{id.X, id.Y, id.Z} {
			binary.LittleEndian.PutUint64(tmp[:], uint64(int64(c)))
			h.Write(tmp[:])
		}
		binary.LittleEndian.PutUint64(tmp[:], uint64(len(s.Data)))
		h.Write(tmp[:])
		h.Write([]byte(s.Data))
		binary.LittleEndian.PutUint64(tmp[:], s.Revision)
		h.Write(tmp[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
