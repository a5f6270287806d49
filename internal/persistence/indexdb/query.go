package indexdb

import (
	"context"
	"database/sql"
	"fmt"

	"voxelgrid.ai/internal/sim/voxel"
)

// Reader runs read-model queries. SQLiteIndex embeds one over its own
// connection; tools open one directly with OpenReader.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

type TickRow struct {
	Tick      uint64  `json:"tick"`
	Digest    string  `json:"digest"`
	Edges     int     `json:"edges"`
	Delivered int     `json:"delivered"`
	Skipped   int     `json:"skipped"`
	StepMS    float64 `json:"step_ms"`
}

type AuditRow struct {
	Tick   uint64 `json:"tick"`
	Seq    int64  `json:"seq"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Voxel  string `json:"voxel"`
	Kind   string `json:"kind,omitempty"`
	Data   string `json:"data,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type Summary struct {
	WorldID   string `json:"world_id"`
	Ticks     int    `json:"ticks"`
	LastTick  uint64 `json:"last_tick"`
	Delivered int64  `json:"delivered"`
	Skipped   int64  `json:"skipped"`
	Audits    int64  `json:"audits"`
	Rejected  int64  `json:"rejected"`
}

type ConfigRow struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func (r *Reader) TickCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks`).Scan(&n)
	return n, err
}

// SkippedTotal sums skipped deliveries over every indexed tick.
func (r *Reader) SkippedTotal(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT SUM(skipped) FROM ticks`).Scan(&n)
	return n.Int64, err
}

// Ticks returns the newest tick rows, optionally only those that skipped a
// delivery.
func (r *Reader) Ticks(ctx context.Context, skippedOnly bool, limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT tick,digest,edges,delivered,skipped,step_ms FROM ticks ORDER BY tick DESC LIMIT ?`
	if skippedOnly {
		q = `SELECT tick,digest,edges,delivered,skipped,step_ms FROM ticks WHERE skipped > 0 ORDER BY tick DESC LIMIT ?`
	}
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var t TickRow
		var tick int64
		if err := rows.Scan(&tick, &t.Digest, &t.Edges, &t.Delivered, &t.Skipped, &t.StepMS); err != nil {
			return nil, err
		}
		t.Tick = uint64(tick)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Audits returns the newest audit rows, newest first.
func (r *Reader) Audits(ctx context.Context, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.scanAudits(ctx,
		`SELECT tick,seq,actor,action,x,y,z,COALESCE(kind,''),COALESCE(data,''),COALESCE(reason,'')
		   FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`, limit)
}

// AuditsFor returns the newest audit rows for one voxel, newest first.
func (r *Reader) AuditsFor(ctx context.Context, id voxel.ID, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.scanAudits(ctx,
		`SELECT tick,seq,actor,action,x,y,z,COALESCE(kind,''),COALESCE(data,''),COALESCE(reason,'')
		   FROM audits WHERE x=? AND y=? AND z=?
		  ORDER BY tick DESC, seq DESC LIMIT ?`,
		id.X, id.Y, id.Z, limit)
}

func (r *Reader) scanAudits(ctx context.Context, q string, args ...any) ([]AuditRow, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		var tick int64
		var x, y, z int32
		if err := rows.Scan(&tick, &a.Seq, &a.Actor, &a.Action, &x, &y, &z, &a.Kind, &a.Data, &a.Reason); err != nil {
			return nil, err
		}
		a.Tick = uint64(tick)
		a.Voxel = voxel.ID{X: x, Y: y, Z: z}.String()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Reader) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	_ = r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='world_id'`).Scan(&s.WorldID)

	n, err := r.TickCount(ctx)
	if err != nil {
		return s, err
	}
	s.Ticks = n
	if s.Skipped, err = r.SkippedTotal(ctx); err != nil {
		return s, err
	}
	var last int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(tick),0),COALESCE(SUM(delivered),0) FROM ticks`).
		Scan(&last, &s.Delivered); err != nil {
		return s, err
	}
	s.LastTick = uint64(last)
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*),COALESCE(SUM(CASE WHEN reason<>'' THEN 1 ELSE 0 END),0) FROM audits`).
		Scan(&s.Audits, &s.Rejected); err != nil {
		return s, err
	}
	return s, nil
}

// Tuning returns the tuning recorded by UpsertTuning.
func (r *Reader) Tuning(ctx context.Context) (ConfigRow, error) {
	var c ConfigRow
	err := r.db.QueryRowContext(ctx, `SELECT name,digest,json,updated_at FROM config WHERE name='tuning'`).
		Scan(&c.Name, &c.Digest, &c.JSON, &c.UpdatedAt)
	return c, err
}
