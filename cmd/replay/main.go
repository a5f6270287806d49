package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "voxelgrid.ai/internal/persistence/log"
	"voxelgrid.ai/internal/sim/tuning"
	"voxelgrid.ai/internal/sim/world"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		worldID    = flag.String("world", "grid_1", "world id")
		tuningPath = flag.String("tuning", "", "tuning.yaml the server ran with (default payload when empty)")
		fromTick   = flag.Uint64("from_tick", 0, "ignore ticks before this one (inclusive)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		strict     = flag.Bool("strict", false, "fail on the first digest mismatch")
	)
	flag.Parse()

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)

	tune := tuning.Defaults()
	if p := strings.TrimSpace(*tuningPath); p != "" {
		t, err := tuning.Load(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = t
	}

	ticks, err := readAllTicks(filepath.Join(worldDir, "events"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	if len(ticks) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", filepath.Join(worldDir, "events"))
		os.Exit(1)
	}
	audits, err := readAllAudits(filepath.Join(worldDir, "audit"))
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}

	ticks = clipTicks(ticks, *fromTick, *toTick)
	cfg := world.WorldConfig{ID: *worldID, TickInterval: tune.TickInterval(), TickPayload: tune.TickPayload}
	if tune.TickMode == tuning.TickModeMirror {
		cfg.Payload = world.MirrorPayload
	}

	res, err := replay(cfg, ticks, audits, *strict)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	res.print(os.Stdout)
	if *strict && (res.Divergent > 0 || len(res.Gaps) > 0) {
		os.Exit(1)
	}
}

func readAllTicks(dir string) ([]world.TickLogEntry, error) {
	files, err := persistlog.ListFiles(dir, "events")
	if err != nil {
		return nil, err
	}
	var out []world.TickLogEntry
	for _, f := range files {
		ts, err := persistlog.ReadTicks(f)
		if err != nil {
			return nil, err
		}
		out = append(out, ts...)
	}
	return out, nil
}

func readAllAudits(dir string) ([]world.AuditEntry, error) {
	files, err := persistlog.ListFiles(dir, "audit")
	if err != nil {
		return nil, err
	}
	var out []world.AuditEntry
	for _, f := range files {
		as, err := persistlog.ReadAudits(f)
		if err != nil {
			return nil, err
		}
		out = append(out, as...)
	}
	return out, nil
}

func clipTicks(ticks []world.TickLogEntry, from, to uint64) []world.TickLogEntry {
	out := ticks[:0:0]
	for _, t := range ticks {
		if t.Tick < from {
			continue
		}
		if to != 0 && t.Tick > to {
			break
		}
		out = append(out, t)
	}
	return out
}
