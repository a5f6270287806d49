package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxelgrid.ai/internal/persistence/indexdb"
	persistlog "voxelgrid.ai/internal/persistence/log"
	"voxelgrid.ai/internal/sim/tuning"
	"voxelgrid.ai/internal/sim/voxel"
	"voxelgrid.ai/internal/sim/world"
)

func TestParseAABB(t *testing.T) {
	min, max, err := parseAABB("5,0,-1:0,2,3")
	if err != nil {
		t.Fatalf("parseAABB: %v", err)
	}
	if min != [3]int{0, 0, -1} || max != [3]int{5, 2, 3} {
		t.Fatalf("min=%v max=%v", min, max)
	}
	if _, _, err := parseAABB("0,0,0"); err == nil {
		t.Fatalf("expected error for missing upper corner")
	}
	if _, _, err := parseAABB("0,0:1,1,1"); err == nil {
		t.Fatalf("expected error for short vector")
	}
}

func journalWorld(t *testing.T, dir string) {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "grid_1", TickInterval: time.Second})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	al := persistlog.NewAuditLogger(dir)
	w.SetAuditLogger(al)
	_ = w.RegisterVoxel(voxel.ID{}, nil)
	_ = w.RegisterVoxel(voxel.ID{X: 10}, nil)
	_ = w.LinkNeighbors(voxel.ID{X: 10}, voxel.ID{X: 1})
	_ = w.SendEvent(voxel.ID{X: 2}, voxel.ClearData{})
	if _, _, err := w.StepOnce(); err != nil {
		t.Fatalf("step: %v", err)
	}
	_ = w.SendEvent(voxel.ID{}, voxel.UpdateData{Data: "hi"})
	if err := al.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestReadAudit_FiltersByAABBAndTick(t *testing.T) {
	dir := t.TempDir()
	journalWorld(t, dir)

	recs, err := readAudit(dir, auditFilter{Max: [3]int{1, 0, 0}})
	if err != nil {
		t.Fatalf("readAudit: %v", err)
	}
	// register 0,0,0; link 10->1 (target inside); send to 0,0,0.
	if len(recs) != 3 {
		t.Fatalf("got %d records: %+v", len(recs), recs)
	}
	if recs[1].Entry.Action != world.ActionLink || recs[2].Entry.Tick != 1 {
		t.Fatalf("unexpected order: %+v", recs)
	}
	if !strings.Contains(formatAudit(recs[1]), "target=1,0,0") {
		t.Fatalf("format: %s", formatAudit(recs[1]))
	}

	recs, err = readAudit(dir, auditFilter{Max: [3]int{2, 0, 0}, Rejected: true, SinceTick: 0, ToTick: 0})
	if err != nil {
		t.Fatalf("readAudit: %v", err)
	}
	if len(recs) != 4 || !strings.Contains(formatAudit(recs[2]), "reason=UNKNOWN_TARGET") {
		t.Fatalf("rejected entries: %+v", recs)
	}

	recs, _ = readAudit(dir, auditFilter{Max: [3]int{1, 0, 0}, SinceTick: 1})
	if len(recs) != 1 || recs[0].Entry.Data != "hi" {
		t.Fatalf("since_tick filter: %+v", recs)
	}
}

func TestRunQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.UpsertTuning("grid_1", tuning.Defaults())
	_ = idx.WriteTick(world.TickLogEntry{Tick: 0, Edges: 2, Delivered: 1, Skipped: 1, Digest: "d0"})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 1, Edges: 2, Delivered: 2, Digest: "d1"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 0, Actor: "api", Action: world.ActionRegister, Voxel: [3]int{1, 2, 3}})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 1, Actor: "api", Action: world.ActionSend, Voxel: [3]int{9, 9, 9}, Kind: voxel.KindClearData, Reason: "UNKNOWN_TARGET"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	_ = idx.Close()

	r, err := indexdb.OpenReader(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	run := func(q, id string) string {
		t.Helper()
		var buf bytes.Buffer
		if err := runQuery(ctx, &buf, r, q, id, 10); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return buf.String()
	}

	if out := run("ticks", ""); strings.Count(out, "\n") != 2 {
		t.Fatalf("ticks: %s", out)
	}
	if out := run("skipped", ""); !strings.Contains(out, `"digest":"d0"`) || strings.Contains(out, `"d1"`) {
		t.Fatalf("skipped: %s", out)
	}
	if out := run("audits", "1,2,3"); !strings.Contains(out, `"voxel":"1,2,3"`) || strings.Contains(out, "9,9,9") {
		t.Fatalf("audits by id: %s", out)
	}
	if out := run("summary", ""); !strings.Contains(out, `"world_id":"grid_1"`) || !strings.Contains(out, `"rejected":1`) {
		t.Fatalf("summary: %s", out)
	}
	if out := run("config", ""); !strings.HasPrefix(out, "tuning digest=") {
		t.Fatalf("config: %s", out)
	}
	var buf bytes.Buffer
	if err := runQuery(ctx, &buf, r, "nope", "", 1); err == nil {
		t.Fatalf("expected unknown query error")
	}
}
