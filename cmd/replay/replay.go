package main

import (
	"fmt"
	"io"
	"sort"

	"voxelgrid.ai/internal/sim/voxel"
	"voxelgrid.ai/internal/sim/world"
)

type result struct {
	FirstTick uint64
	LastTick  uint64
	Ticks     int
	Delivered int
	Skipped   int

	// Gaps lists breaks in tick continuity as "a->b".
	Gaps []string

	// Digest checks only run when the journal starts at tick 0, because the
	// grid is rebuilt from the audit trail alone.
	Checked   int
	Divergent int
	FirstBad  uint64

	Applied  map[string]int
	Rejected int
	Voxels   int
}

// replay rebuilds the grid from successful audit entries and steps it once per
// journaled tick, comparing the resulting digest with the recorded one.
func replay(cfg world.WorldConfig, ticks []world.TickLogEntry, audits []world.AuditEntry, strict bool) (result, error) {
	res := result{Applied: map[string]int{}}
	if len(ticks) == 0 {
		return res, fmt.Errorf("no ticks")
	}
	w, err := world.New(cfg)
	if err != nil {
		return res, err
	}

	sorted := append([]world.AuditEntry(nil), audits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })

	res.FirstTick = ticks[0].Tick
	verify := res.FirstTick == 0
	c := w.As("replay")
	next := 0
	applyUpTo := func(tick uint64, all bool) {
		for ; next < len(sorted); next++ {
			a := sorted[next]
			if !all && a.Tick > tick {
				return
			}
			if a.Reason != "" {
				res.Rejected++
				continue
			}
			if err := applyAudit(c, a); err == nil {
				res.Applied[a.Action]++
			} else {
				res.Rejected++
			}
		}
	}

	for i, e := range ticks {
		if i > 0 && e.Tick != ticks[i-1].Tick+1 {
			res.Gaps = append(res.Gaps, fmt.Sprintf("%d->%d", ticks[i-1].Tick, e.Tick))
			verify = false
		}
		res.Ticks++
		res.LastTick = e.Tick
		res.Delivered += e.Delivered
		res.Skipped += e.Skipped
		if !verify {
			continue
		}

		applyUpTo(e.Tick, false)
		tick, digest, err := w.StepOnce()
		if err != nil {
			return res, err
		}
		if tick != e.Tick {
			return res, fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, e.Tick)
		}
		res.Checked++
		if digest != e.Digest {
			if res.Divergent == 0 {
				res.FirstBad = tick
			}
			res.Divergent++
			if strict {
				return res, fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, e.Digest)
			}
		}
	}
	if verify {
		applyUpTo(0, true)
		res.Voxels = w.Registry().Len()
	}
	return res, nil
}

func applyAudit(c world.Caller, a world.AuditEntry) error {
	id, err := voxel.FromArray(a.Voxel)
	if err != nil {
		return err
	}
	switch a.Action {
	case world.ActionRegister:
		var initial *voxel.State
		if a.Data != "" {
			initial = &voxel.State{Data: a.Data}
		}
		return c.RegisterVoxel(id, initial)
	case world.ActionLink:
		if a.Target == nil {
			return fmt.Errorf("link without target at tick %d", a.Tick)
		}
		to, err := voxel.FromArray(*a.Target)
		if err != nil {
			return err
		}
		return c.LinkNeighbors(id, to)
	case world.ActionSend:
		var ev voxel.Event
		switch a.Kind {
		case voxel.KindUpdateData:
			ev = voxel.UpdateData{Data: a.Data}
		case voxel.KindClearData:
			ev = voxel.ClearData{}
		default:
			return fmt.Errorf("unknown event kind %q", a.Kind)
		}
		return c.SendEvent(id, ev)
	case world.ActionRemove:
		return c.RemoveVoxel(id)
	default:
		return fmt.Errorf("unknown audit action %q", a.Action)
	}
}

func (r result) print(out io.Writer) {
	fmt.Fprintf(out, "ticks=%d range=%d..%d delivered=%d skipped=%d\n", r.Ticks, r.FirstTick, r.LastTick, r.Delivered, r.Skipped)
	if len(r.Gaps) > 0 {
		fmt.Fprintf(out, "gaps=%d %v\n", len(r.Gaps), r.Gaps)
	}
	actions := make([]string, 0, len(r.Applied))
	for a := range r.Applied {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(out, "audit %s=%d\n", a, r.Applied[a])
	}
	if r.Rejected > 0 {
		fmt.Fprintf(out, "audit rejected=%d\n", r.Rejected)
	}
	if r.Checked == 0 {
		fmt.Fprintln(out, "digests not verified (journal does not start at tick 0 or has gaps)")
		return
	}
	if r.Divergent > 0 {
		fmt.Fprintf(out, "replay diverged: %d/%d ticks (first at tick %d)\n", r.Divergent, r.Checked, r.FirstBad)
		return
	}
	fmt.Fprintf(out, "replay ok: checked=%d ticks voxels=%d\n", r.Checked, r.Voxels)
}
