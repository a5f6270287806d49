package main

import (
	"fmt"
	"io"
	"net/http"

	"voxelgrid.ai/internal/persistence/indexdb"
	"voxelgrid.ai/internal/sim/world"
	"voxelgrid.ai/internal/transport/observer"
	"voxelgrid.ai/internal/transport/ws"
)

func metricsHandler(w *world.World, wsSrv *ws.Server, obsSrv *observer.Server, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, w.ID(), w.Metrics())

		if wsSrv != nil {
			gauge(rw, "voxelgrid_ws_sessions", "Connected client sessions.", w.ID(), float64(wsSrv.Sessions()))
		}
		if obsSrv != nil {
			gauge(rw, "voxelgrid_observer_subscribers", "Attached observers.", w.ID(), float64(obsSrv.Subscribers()))
			counter(rw, "voxelgrid_observer_dropped_total", "Tick messages dropped for slow observers.", w.ID(), obsSrv.Dropped())
		}
		switch x := idx.(type) {
		case *indexdb.SQLiteIndex:
			s := x.Stats()
			gauge(rw, "voxelgrid_index_queue_depth", "Index writer queue depth.", w.ID(), float64(s.QueueDepth))
			gauge(rw, "voxelgrid_index_queue_capacity", "Index writer queue capacity.", w.ID(), float64(s.QueueCapacity))
			counter(rw, "voxelgrid_index_dropped_total", "Index rows dropped because the queue was full.", w.ID(), s.DropTickTotal+s.DropAuditTotal)
		case *indexdb.D1Index:
			counter(rw, "voxelgrid_index_sent_total", "Index events accepted by the ingest endpoint.", w.ID(), x.Sent())
			counter(rw, "voxelgrid_index_dropped_total", "Index rows dropped because the queue was full.", w.ID(), x.Dropped())
		}
	}
}

// Minimal Prometheus exposition format.
func writeWorldMetrics(out io.Writer, worldID string, m world.WorldMetrics) {
	gauge(out, "voxelgrid_world_tick", "Current world tick.", worldID, float64(m.Tick))
	gauge(out, "voxelgrid_world_voxels", "Registered voxels.", worldID, float64(m.Voxels))
	gauge(out, "voxelgrid_world_edges", "Neighbor edges walked by the last tick.", worldID, float64(m.Edges))
	gauge(out, "voxelgrid_world_step_ms", "Last tick step duration in milliseconds.", worldID, m.StepMS)
	gauge(out, "voxelgrid_world_last_delivered", "Events delivered by the last tick.", worldID, float64(m.LastDelivered))
	gauge(out, "voxelgrid_world_last_skipped", "Edges skipped by the last tick.", worldID, float64(m.LastSkipped))
	counter(out, "voxelgrid_world_delivered_total", "Tick events delivered.", worldID, m.DeliveredTotal)
	counter(out, "voxelgrid_world_skipped_total", "Tick edges skipped because the target was missing.", worldID, m.SkippedTotal)
	counter(out, "voxelgrid_world_events_total", "Events sent through SendEvent.", worldID, m.EventsTotal)

	fmt.Fprintf(out, "# HELP voxelgrid_world_loop_state Simulation loop state (1 for the current state).\n")
	fmt.Fprintf(out, "# TYPE voxelgrid_world_loop_state gauge\n")
	for _, st := range []string{"IDLE", "RUNNING", "STOPPED"} {
		v := 0
		if st == m.LoopState {
			v = 1
		}
		fmt.Fprintf(out, "voxelgrid_world_loop_state{world=%q,state=%q} %d\n", worldID, st, v)
	}
}

func gauge(out io.Writer, name, help, worldID string, v float64) {
	fmt.Fprintf(out, "# HELP %s %s\n", name, help)
	fmt.Fprintf(out, "# TYPE %s gauge\n", name)
	fmt.Fprintf(out, "%s{world=%q} %g\n", name, worldID, v)
}

func counter(out io.Writer, name, help, worldID string, v uint64) {
	fmt.Fprintf(out, "# HELP %s %s\n", name, help)
	fmt.Fprintf(out, "# TYPE %s counter\n", name)
	fmt.Fprintf(out, "%s{world=%q} %d\n", name, worldID, v)
}
