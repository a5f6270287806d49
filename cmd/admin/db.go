package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"voxelgrid.ai/internal/persistence/indexdb"
	"voxelgrid.ai/internal/sim/voxel"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	id := fs.String("id", "", "voxel id filter x,y,z (audits)")
	_ = fs.Parse(args)

	q := "ticks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	if err := runQuery(context.Background(), os.Stdout, r, q, *id, *limit); err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, out io.Writer, r *indexdb.Reader, q, id string, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	enc := json.NewEncoder(out)

	switch q {
	case "ticks", "skipped":
		rows, err := r.Ticks(ctx, q == "skipped", limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			_ = enc.Encode(row)
		}
		return nil

	case "audits":
		var (
			rows []indexdb.AuditRow
			err  error
		)
		if strings.TrimSpace(id) != "" {
			vid, perr := voxel.ParseID(id)
			if perr != nil {
				return perr
			}
			rows, err = r.AuditsFor(ctx, vid, limit)
		} else {
			rows, err = r.Audits(ctx, limit)
		}
		if err != nil {
			return err
		}
		for _, row := range rows {
			_ = enc.Encode(row)
		}
		return nil

	case "summary":
		s, err := r.Summary(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(s)

	case "config":
		c, err := r.Tuning(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s digest=%s updated_at=%s\n%s\n", c.Name, c.Digest, c.UpdatedAt, c.JSON)
		return nil

	default:
		return fmt.Errorf("unknown query %q (ticks|skipped|audits|summary|config)", q)
	}
}
