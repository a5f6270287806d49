package world

import (
	"errors"
	"fmt"

	"voxelgrid.ai/internal/sim/voxel"
)

// VoxelView is a read-only listing row.
type VoxelView struct {
	ID        voxel.ID    `json:"id"`
	State     voxel.State `json:"state"`
	Neighbors []voxel.ID  `json:"neighbors"`
}

// RegisterVoxel creates and inserts a voxel. Unlike Registry.Insert it rejects
// an id that is already taken, so registering never silently drops state.
func (w *World) RegisterVoxel(id voxel.ID, initial *voxel.State) error {
	return w.As("").RegisterVoxel(id, initial)
}

// LinkNeighbors adds the directed edge from -> to. The target does not have to
// exist yet; ticks skip it until it does.
func (w *World) LinkNeighbors(from, to voxel.ID) error {
	return w.As("").LinkNeighbors(from, to)
}

// SendEvent applies ev to the voxel id immediately.
func (w *World) SendEvent(id voxel.ID, ev voxel.Event) error {
	return w.As("").SendEvent(id, ev)
}

func (w *World) RemoveVoxel(id voxel.ID) error {
	return w.As("").RemoveVoxel(id)
}

// ReadVoxel returns a snapshot of the voxel's state.
func (w *World) ReadVoxel(id voxel.ID) (voxel.State, bool) {
	v, ok := w.reg.Lookup(id)
	if !ok {
		return voxel.State{}, false
	}
	return v.State(), true
}

func (w *World) Neighbors(id voxel.ID) ([]voxel.ID, bool) {
	v, ok := w.reg.Lookup(id)
	if !ok {
		return nil, false
	}
	return v.Neighbors(), true
}

// Voxels lists every voxel in id order.
func (w *World) Voxels() []VoxelView {
	ids := w.reg.IDs()
	out := make([]VoxelView, 0, len(ids))
	for _, id := range ids {
		v, ok := w.reg.Lookup(id)
		if !ok {
			continue
		}
		out = append(out, VoxelView{ID: id, State: v.State(), Neighbors: v.Neighbors()})
	}
	return out
}

// Caller performs mutations on behalf of a named actor; the actor is recorded
// in the audit log.
type Caller struct {
	w     *World
	actor string
}

func (w *World) As(actor string) Caller {
	if actor == "" {
		actor = "api"
	}
	return Caller{w: w, actor: actor}
}

// commit enters the mutation side of the tick gate and the stripe for id.
func (w *World) commit(id voxel.ID) (release func()) {
	w.gate.RLock()
	m := &w.stripes[stripeOf(id)]
	m.Lock()
	return func() {
		m.Unlock()
		w.gate.RUnlock()
	}
}

func stripeOf(id voxel.ID) uint32 {
	h := uint32(id.X)*73856093 ^ uint32(id.Y)*19349663 ^ uint32(id.Z)*83492791
	return h % mutationStripes
}

func (c Caller) RegisterVoxel(id voxel.ID, initial *voxel.State) error {
	defer c.w.commit(id)()
	v := voxel.New(id)
	if initial != nil {
		v = voxel.NewWithState(id, *initial)
	}
	entry := AuditEntry{
		Tick:   c.w.CurrentTick(),
		Actor:  c.actor,
		Action: ActionRegister,
		Voxel:  id.Array(),
	}
	if initial != nil {
		entry.Data = initial.Data
	}
	if !c.w.reg.insertNew(v) {
		entry.Reason = reasonFor(ErrDuplicateVoxel)
		c.w.writeAudit(entry)
		return fmt.Errorf("register %s: %w", id, ErrDuplicateVoxel)
	}
	c.w.writeAudit(entry)
	return nil
}

func (c Caller) LinkNeighbors(from, to voxel.ID) error {
	defer c.w.commit(from)()
	target := to.Array()
	entry := AuditEntry{
		Tick:   c.w.CurrentTick(),
		Actor:  c.actor,
		Action: ActionLink,
		Voxel:  from.Array(),
		Target: &target,
	}
	v, ok := c.w.reg.Lookup(from)
	if !ok {
		entry.Reason = reasonFor(ErrUnknownSource)
		c.w.writeAudit(entry)
		return fmt.Errorf("link %s -> %s: %w", from, to, ErrUnknownSource)
	}
	v.AddNeighbor(to)
	c.w.writeAudit(entry)
	return nil
}

func (c Caller) SendEvent(id voxel.ID, ev voxel.Event) error {
	if ev == nil {
		return fmt.Errorf("send %s: nil event", id)
	}
	defer c.w.commit(id)()
	entry := AuditEntry{
		Tick:   c.w.CurrentTick(),
		Actor:  c.actor,
		Action: ActionSend,
		Voxel:  id.Array(),
		Kind:   ev.Kind(),
		Data:   voxel.Payload(ev),
	}
	if !c.w.reg.Deliver(id, ev) {
		entry.Reason = reasonFor(ErrUnknownTarget)
		c.w.writeAudit(entry)
		return fmt.Errorf("send %s: %w", id, ErrUnknownTarget)
	}
	c.w.eventsTotal.Add(1)
	c.w.writeAudit(entry)
	return nil
}

func (c Caller) RemoveVoxel(id voxel.ID) error {
	defer c.w.commit(id)()
	entry := AuditEntry{
		Tick:   c.w.CurrentTick(),
		Actor:  c.actor,
		Action: ActionRemove,
		Voxel:  id.Array(),
	}
	if !c.w.reg.Remove(id) {
		entry.Reason = reasonFor(ErrUnknownTarget)
		c.w.writeAudit(entry)
		return fmt.Errorf("remove %s: %w", id, ErrUnknownTarget)
	}
	c.w.writeAudit(entry)
	return nil
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrUnknownTarget):
		return "UNKNOWN_TARGET"
	case errors.Is(err, ErrUnknownSource):
		return "UNKNOWN_SOURCE"
	case errors.Is(err, ErrDuplicateVoxel):
		return "DUPLICATE"
	case errors.Is(err, ErrCorruptedState):
		return "CORRUPTED_STATE"
	default:
		return "ERROR"
	}
}
