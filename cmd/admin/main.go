package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "voxelgrid.ai/internal/persistence/log"
	"voxelgrid.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "voxel":
			voxelCmd(os.Args[2:])
			return
		case "voxels":
			voxelsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// auditCmd prints the journaled mutations that touched voxels inside an AABB.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (required)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	rejected := fs.Bool("rejected", false, "include rejected operations")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}
	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	recs, err := readAudit(worldDir, auditFilter{
		SinceTick: *sinceTick,
		ToTick:    *toTick,
		Min:       min,
		Max:       max,
		Rejected:  *rejected,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		fmt.Println(formatAudit(r))
	}
	fmt.Printf("entries=%d\n", len(recs))
}

type auditFilter struct {
	SinceTick uint64
	ToTick    uint64
	Min, Max  [3]int
	Rejected  bool
}

type auditRec struct {
	Seq   uint64
	Entry world.AuditEntry
}

func readAudit(worldDir string, f auditFilter) ([]auditRec, error) {
	files, err := persistlog.ListFiles(filepath.Join(worldDir, "audit"), "audit")
	if err != nil {
		return nil, err
	}

	out := make([]auditRec, 0, 1024)
	var seq uint64
	for _, path := range files {
		entries, err := persistlog.ReadAudits(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			seq++
			if e.Reason != "" && !f.Rejected {
				continue
			}
			if e.Tick < f.SinceTick || (f.ToTick != 0 && e.Tick > f.ToTick) {
				continue
			}
			if !withinAABB(e.Voxel, f.Min, f.Max) && (e.Target == nil || !withinAABB(*e.Target, f.Min, f.Max)) {
				continue
			}
			out = append(out, auditRec{Seq: seq, Entry: e})
		}
	}

	// Chronological: tick, then read order.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Entry.Tick != out[j].Entry.Tick {
			return out[i].Entry.Tick < out[j].Entry.Tick
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func formatAudit(r auditRec) string {
	e := r.Entry
	var b strings.Builder
	fmt.Fprintf(&b, "tick=%d actor=%s action=%s voxel=%s", e.Tick, e.Actor, e.Action, vecString(e.Voxel))
	if e.Target != nil {
		fmt.Fprintf(&b, " target=%s", vecString(*e.Target))
	}
	if e.Kind != "" {
		fmt.Fprintf(&b, " kind=%s", e.Kind)
	}
	if e.Data != "" {
		fmt.Fprintf(&b, " data=%q", e.Data)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", e.Reason)
	}
	return b.String()
}

func vecString(v [3]int) string {
	return fmt.Sprintf("%d,%d,%d", v[0], v[1], v[2])
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
