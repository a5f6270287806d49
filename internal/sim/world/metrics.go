package world

import (
	"sort"

	"voxelgrid.ai/internal/sim/voxel"
)

// WorldMetrics is a read-only view of runtime signals, updated by the loop
// goroutine and read from HTTP handlers and tests.
type WorldMetrics struct {
	Tick      uint64 `json:"tick"`
	LoopState string `json:"loop_state"`

	Voxels int `json:"voxels"`
	Edges  int `json:"edges"`

	LastDelivered int     `json:"last_delivered"`
	LastSkipped   int     `json:"last_skipped"`
	StepMS        float64 `json:"step_ms"`

	DeliveredTotal uint64 `json:"delivered_total"`
	SkippedTotal   uint64 `json:"skipped_total"`
	EventsTotal    uint64 `json:"events_total"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	m.Tick = w.tick.Load()
	m.Voxels = w.reg.Len()
	m.DeliveredTotal = w.deliveredTotal.Load()
	m.SkippedTotal = w.skippedTotal.Load()
	m.EventsTotal = w.eventsTotal.Load()
	m.LoopState = w.loopState().String()
	return m
}

func (w *World) publishTickMetrics(tick uint64, edges, delivered, skipped int, stepMS float64) {
	m, _ := w.metrics.Load().(WorldMetrics)
	m.Tick = tick
	m.Edges = edges
	m.LastDelivered = delivered
	m.LastSkipped = skipped
	m.StepMS = stepMS
	w.metrics.Store(m)
}

func (w *World) loopState() LoopState {
	w.loopMu.Lock()
	defer w.loopMu.Unlock()
	if w.loop == nil {
		return LoopIdle
	}
	return w.loop.State()
}

func sortIDs(ids []voxel.ID) {
	sort.Slice(ids, func(i, j int) bool { return voxel.Less(ids[i], ids[j]) })
}
