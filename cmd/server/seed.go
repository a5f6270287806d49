package main

import (
	"fmt"

	"voxelgrid.ai/internal/sim/tuning"
	"voxelgrid.ai/internal/sim/voxel"
	"voxelgrid.ai/internal/sim/world"
)

func worldConfigFromTuning(id string, tune tuning.Tuning) world.WorldConfig {
	cfg := world.WorldConfig{
		ID:           id,
		TickInterval: tune.TickInterval(),
		TickPayload:  tune.TickPayload,
	}
	if tune.TickMode == tuning.TickModeMirror {
		cfg.Payload = world.MirrorPayload
	}
	return cfg
}

// seedWorld registers tuning.seed_voxels and links tuning.seed_links. It
// returns the number of voxels registered.
func seedWorld(w *world.World, tune tuning.Tuning) (int, error) {
	c := w.As("seed")
	n := 0
	for _, sv := range tune.SeedVoxels {
		var initial *voxel.State
		if sv.Data != "" {
			initial = &voxel.State{Data: sv.Data}
		}
		id, err := voxel.FromArray(sv.ID)
		if err != nil {
			return n, fmt.Errorf("seed voxel: %w", err)
		}
		if err := c.RegisterVoxel(id, initial); err != nil {
			return n, fmt.Errorf("seed voxel %v: %w", sv.ID, err)
		}
		n++
	}
	for _, l := range tune.SeedLinks {
		from, err := voxel.FromArray(l.From)
		if err != nil {
			return n, fmt.Errorf("seed link: %w", err)
		}
		to, err := voxel.FromArray(l.To)
		if err != nil {
			return n, fmt.Errorf("seed link: %w", err)
		}
		if err := c.LinkNeighbors(from, to); err != nil {
			return n, fmt.Errorf("seed link %v->%v: %w", l.From, l.To, err)
		}
		if l.Mutual {
			if err := c.LinkNeighbors(to, from); err != nil {
				return n, fmt.Errorf("seed link %v->%v: %w", l.To, l.From, err)
			}
		}
	}
	return n, nil
}
