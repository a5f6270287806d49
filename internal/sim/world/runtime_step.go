package world

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"voxelgrid.ai/internal/sim/voxel"
)

// step runs one tick pass and returns the entry it journaled.
func (w *World) step(ctx context.Context) (entry TickLogEntry, err error) {
	w.gate.Lock()
	defer w.gate.Unlock()

	stepStart := time.Now()
	nowTick := w.tick.Load()

	_, span := w.tracer.Start(ctx, "world.tick")
	defer span.End()

	edges := w.reg.Edges()

	// Source state is read once per source per tick.
	sources := make(map[voxel.ID]voxel.State, len(edges))
	missing := map[voxel.ID]struct{}{}
	delivered, skipped := 0, 0

	entry.Tick = nowTick
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick %d: %w: tick payload panicked: %v", nowTick, ErrCorruptedState, r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "corrupted state")
		}
	}()

	for _, e := range edges {
		st, ok := sources[e.From]
		if !ok {
			if v, found := w.reg.Lookup(e.From); found {
				st = v.State()
			}
			sources[e.From] = st
		}
		ev := w.cfg.Payload(e.From, st)
		if ev == nil {
			continue
		}
		if w.reg.Deliver(e.To, ev) {
			delivered++
		} else {
			skipped++
			missing[e.To] = struct{}{}
		}
	}

	digest := w.reg.Digest()
	w.tick.Add(1)
	w.deliveredTotal.Add(uint64(delivered))
	w.skippedTotal.Add(uint64(skipped))

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0

	span.SetAttributes(
		attribute.Int64("voxelgrid.tick", int64(nowTick)),
		attribute.Int("voxelgrid.edges", len(edges)),
		attribute.Int("voxelgrid.delivered", delivered),
		attribute.Int("voxelgrid.skipped", skipped),
	)

	entry = TickLogEntry{
		Tick:      nowTick,
		Edges:     len(edges),
		Delivered: delivered,
		Skipped:   skipped,
		StepMS:    stepMS,
		Digest:    digest,
	}
	if len(missing) > 0 {
		ids := make([]voxel.ID, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		sortIDs(ids)
		for _, id := range ids {
			entry.Missing = append(entry.Missing, id.String())
		}
	}
	w.writeTick(entry)
	w.publishTickMetrics(nowTick+1, len(edges), delivered, skipped, stepMS)
	return entry, nil
}
