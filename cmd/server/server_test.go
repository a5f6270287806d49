package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voxelgrid.ai/internal/sim/tuning"
	"voxelgrid.ai/internal/sim/voxel"
	"voxelgrid.ai/internal/sim/world"
)

func seededWorld(t *testing.T, tune tuning.Tuning) *world.World {
	t.Helper()
	w, err := world.New(worldConfigFromTuning("grid_test", tune))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	if _, err := seedWorld(w, tune); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return w
}

func TestSeedWorld(t *testing.T) {
	tune := tuning.Defaults()
	tune.SeedVoxels = []tuning.SeedVoxel{{ID: [3]int{0, 0, 0}, Data: "Initial"}, {ID: [3]int{1, 0, 0}}}
	tune.SeedLinks = []tuning.SeedLink{{From: [3]int{0, 0, 0}, To: [3]int{1, 0, 0}, Mutual: true}}
	w := seededWorld(t, tune)

	st, ok := w.ReadVoxel(voxel.ID{})
	if !ok || st.Data != "Initial" {
		t.Fatalf("seed data: %+v ok=%v", st, ok)
	}
	ns, _ := w.Neighbors(voxel.ID{X: 1})
	if len(ns) != 1 || ns[0] != (voxel.ID{}) {
		t.Fatalf("mutual link missing: %v", ns)
	}

	if _, err := seedWorld(w, tune); !errors.Is(err, world.ErrDuplicateVoxel) {
		t.Fatalf("reseeding should fail with duplicate, got %v", err)
	}
}

func TestSeedWorld_LinkFromUnknownSource(t *testing.T) {
	tune := tuning.Defaults()
	tune.SeedLinks = []tuning.SeedLink{{From: [3]int{5, 5, 5}, To: [3]int{0, 0, 0}}}
	w, err := world.New(worldConfigFromTuning("grid_test", tune))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	if _, err := seedWorld(w, tune); !errors.Is(err, world.ErrUnknownSource) {
		t.Fatalf("expected unknown source, got %v", err)
	}
}

func TestWorldConfigFromTuning_Mirror(t *testing.T) {
	tune := tuning.Defaults()
	tune.TickMode = tuning.TickModeMirror
	tune.TickIntervalMs = 250
	tune.SeedVoxels = []tuning.SeedVoxel{{ID: [3]int{0, 0, 0}, Data: "src"}, {ID: [3]int{1, 0, 0}}}
	tune.SeedLinks = []tuning.SeedLink{{From: [3]int{0, 0, 0}, To: [3]int{1, 0, 0}}}
	w := seededWorld(t, tune)
	if w.Config().TickInterval != 250*time.Millisecond {
		t.Fatalf("interval: %s", w.Config().TickInterval)
	}
	if _, _, err := w.StepOnce(); err != nil {
		t.Fatalf("step: %v", err)
	}
	st, _ := w.ReadVoxel(voxel.ID{X: 1})
	if st.Data != "src" {
		t.Fatalf("mirror payload not applied: %+v", st)
	}
}

func TestAdminHandlers(t *testing.T) {
	tune := tuning.Defaults()
	tune.SeedVoxels = []tuning.SeedVoxel{{ID: [3]int{0, 0, 0}, Data: "Initial"}}
	w := seededWorld(t, tune)
	mux := http.NewServeMux()
	registerAdminHandlers(mux, w)

	get := func(path, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		return rr
	}

	rr := get("/admin/v1/voxel?id=0,0,0", "127.0.0.1:5000")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var v adminVoxel
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !v.Found || v.Data != "Initial" || v.ID != "0,0,0" {
		t.Fatalf("unexpected voxel: %+v", v)
	}

	if rr := get("/admin/v1/voxel?id=9,9,9", "127.0.0.1:5000"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing voxel status=%d", rr.Code)
	}
	if rr := get("/admin/v1/voxel?id=bad", "127.0.0.1:5000"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d", rr.Code)
	}
	if rr := get("/admin/v1/state", "192.168.1.2:5000"); rr.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rr.Code)
	}

	rr = get("/admin/v1/state", "[::1]:5000")
	var st adminState
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.WorldID != "grid_test" || st.Metrics.Voxels != 1 || st.Metrics.LoopState != "IDLE" {
		t.Fatalf("unexpected state: %+v", st)
	}

	rr = get("/admin/v1/voxels", "127.0.0.1:5000")
	var list []adminVoxel
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("voxels: %v %+v", err, list)
	}
}

func TestWriteWorldMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeWorldMetrics(&buf, "w", world.WorldMetrics{Tick: 7, Voxels: 2, LoopState: "RUNNING", DeliveredTotal: 3})
	out := buf.String()
	for _, want := range []string{
		`voxelgrid_world_tick{world="w"} 7`,
		`voxelgrid_world_voxels{world="w"} 2`,
		`voxelgrid_world_delivered_total{world="w"} 3`,
		`voxelgrid_world_loop_state{world="w",state="RUNNING"} 1`,
		`voxelgrid_world_loop_state{world="w",state="IDLE"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
}

func TestMultiTickLogger_FansOut(t *testing.T) {
	a, b := &countTicks{}, &countTicks{}
	m := multiTickLogger{a, nil, b}
	_ = m.WriteTick(world.TickLogEntry{Tick: 1})
	if a.n != 1 || b.n != 1 {
		t.Fatalf("fan out: a=%d b=%d", a.n, b.n)
	}
}

type countTicks struct{ n int }

func (c *countTicks) WriteTick(world.TickLogEntry) error {
	c.n++
	return nil
}

func TestLoopbackGuard(t *testing.T) {
	h := loopbackGuard(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("loopback POST: got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote POST: got %d", rec.Code)
	}
}

func TestSeedWorld_OutOfRangeID(t *testing.T) {
	w, err := world.New(worldConfigFromTuning("grid_test", tuning.Defaults()))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	tune := tuning.Defaults()
	tune.SeedVoxels = []tuning.SeedVoxel{{ID: [3]int{4294967296, 0, 0}}}
	if _, err := seedWorld(w, tune); !errors.Is(err, voxel.ErrOutOfRange) {
		t.Fatalf("err=%v want ErrOutOfRange", err)
	}
	if w.Registry().Len() != 0 {
		t.Fatalf("voxel registered from out-of-range id")
	}
}
