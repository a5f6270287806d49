package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"voxelgrid.ai/internal/sim/tuning"
	"voxelgrid.ai/internal/sim/voxel"
	"voxelgrid.ai/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_IndexesWorldStreams(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	if err := idx.UpsertTuning("W1", tuning.Defaults()); err != nil {
		t.Fatalf("upsert tuning: %v", err)
	}

	w, err := world.New(world.WorldConfig{ID: "W1"})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	w.SetTickLogger(idx)
	w.SetAuditLogger(idx)

	a, b := voxel.ID{}, voxel.ID{X: 1}
	_ = w.RegisterVoxel(a, nil)
	_ = w.RegisterVoxel(b, nil)
	_ = w.LinkNeighbors(a, b)
	_ = w.LinkNeighbors(a, voxel.ID{X: 5})
	_ = w.As("S1").SendEvent(b, voxel.UpdateData{Data: "hello"})
	_ = w.As("S1").SendEvent(voxel.ID{X: 9}, voxel.UpdateData{Data: "nobody"})
	for i := 0; i < 2; i++ {
		if _, _, err := w.StepOnce(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	n, err := idx.TickCount(ctx)
	if err != nil || n != 2 {
		t.Fatalf("tick count=%d err=%v", n, err)
	}
	skipped, err := idx.SkippedTotal(ctx)
	if err != nil || skipped != 2 {
		t.Fatalf("skipped total=%d err=%v", skipped, err)
	}

	rows, err := idx.AuditsFor(ctx, b, 10)
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("audit rows for b=%+v", rows)
	}
	if rows[0].Action != world.ActionSend || rows[0].Actor != "S1" || rows[0].Data != "hello" {
		t.Fatalf("newest audit=%+v", rows[0])
	}
	if rows[1].Action != world.ActionRegister {
		t.Fatalf("oldest audit=%+v", rows[1])
	}

	missing, err := idx.AuditsFor(ctx, voxel.ID{X: 9}, 0)
	if err != nil || len(missing) != 1 || missing[0].Reason != "UNKNOWN_TARGET" {
		t.Fatalf("missing target audits=%+v err=%v", missing, err)
	}
}

func TestSQLiteIndex_ClosedIsNoop(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "w.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.WriteTick(world.TickLogEntry{Tick: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := idx.Sync(context.Background()); err != nil {
		t.Fatalf("sync after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSQLiteIndex_OutOfOrderAuditTicksKeepEveryRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i, tick := range []uint64{5, 5, 6, 5} {
		_ = idx.WriteAudit(world.AuditEntry{Tick: tick, Actor: "api", Action: world.ActionSend, Data: string(rune('a' + i))})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	rows, err := idx.Audits(ctx, 0)
	if err != nil || len(rows) != 4 {
		t.Fatalf("audit rows=%+v err=%v want 4", rows, err)
	}
	_ = idx.Close()

	// A reopened index continues the sequence instead of replacing rows.
	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	_ = idx.WriteAudit(world.AuditEntry{Tick: 5, Actor: "api", Action: world.ActionRemove})
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	s, err := idx.Summary(ctx)
	if err != nil || s.Audits != 5 {
		t.Fatalf("summary=%+v err=%v want 5 audits", s, err)
	}
}
