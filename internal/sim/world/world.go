package world

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"voxelgrid.ai/internal/sim/voxel"
)

const mutationStripes = 64

const (
	DefaultTickInterval = time.Second
	DefaultTickPayload  = "New data"
)

// PayloadFunc builds the event a source voxel sends to each of its neighbors
// on a tick. It receives the source's state as read at delivery time. It runs
// inside the tick pass and must not call back into World mutations.
type PayloadFunc func(source voxel.ID, state voxel.State) voxel.Event

type WorldConfig struct {
	ID           string
	TickInterval time.Duration

	// TickPayload is the data carried by the default tick event.
	TickPayload string
	// Payload overrides the default tick event when set.
	Payload PayloadFunc
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick      uint64   `json:"tick"`
	Edges     int      `json:"edges"`
	Delivered int      `json:"delivered"`
	Skipped   int      `json:"skipped"`
	Missing   []string `json:"missing,omitempty"`
	StepMS    float64  `json:"step_ms"`
	Digest    string   `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64  `json:"tick"`
	Actor  string  `json:"actor"`
	Action string  `json:"action"` // e.g. "SEND_EVENT"
	Voxel  [3]int  `json:"voxel"`
	Target *[3]int `json:"target,omitempty"`
	Kind   string  `json:"kind,omitempty"`
	Data   string  `json:"data,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// Audit actions.
const (
	ActionRegister = "REGISTER"
	ActionLink     = "LINK"
	ActionSend     = "SEND_EVENT"
	ActionRemove   = "REMOVE"
)

// World is the external interface to the voxel core. Every method is safe for
// concurrent use; the simulation loop runs on its own goroutine.
type World struct {
	cfg WorldConfig
	reg *Registry

	tick atomic.Uint64

	// A tick pass holds gate exclusively; external mutations share it, so an
	// audit stamped with tick N always lands between pass N-1 and pass N.
	gate sync.RWMutex
	// Mutations keyed on the same voxel stamp, apply and journal under one
	// stripe, keeping audit order equal to apply order.
	stripes [mutationStripes]sync.Mutex

	loopMu sync.Mutex
	loop   *LoopHandle

	loggerMu    sync.RWMutex
	tickLogger  TickLogger
	auditLogger AuditLogger

	deliveredTotal atomic.Uint64
	skippedTotal   atomic.Uint64
	eventsTotal    atomic.Uint64

	metrics atomic.Value // WorldMetrics

	tracer trace.Tracer
}

func New(cfg WorldConfig) (*World, error) {
	cfg.ID = strings.TrimSpace(cfg.ID)
	if cfg.ID == "" {
		return nil, fmt.Errorf("world id is required")
	}
	if cfg.TickInterval < 0 {
		return nil, fmt.Errorf("tick interval must be positive: %s", cfg.TickInterval)
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.TickPayload == "" {
		cfg.TickPayload = DefaultTickPayload
	}
	if cfg.Payload == nil {
		cfg.Payload = ConstantPayload(cfg.TickPayload)
	}
	w := &World{
		cfg:    cfg,
		reg:    NewRegistry(),
		tracer: otel.Tracer("voxelgrid.ai/internal/sim/world"),
	}
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

// ConstantPayload ignores the source and always sends UpdateData{data}.
func ConstantPayload(data string) PayloadFunc {
	return func(voxel.ID, voxel.State) voxel.Event {
		return voxel.UpdateData{Data: data}
	}
}

// MirrorPayload forwards the source voxel's current data.
func MirrorPayload(_ voxel.ID, s voxel.State) voxel.Event {
	return voxel.UpdateData{Data: s.Data}
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig { return w.cfg }

// Registry exposes the underlying registry for embedding code and tests.
func (w *World) Registry() *Registry { return w.reg }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) SetTickLogger(l TickLogger) {
	w.loggerMu.Lock()
	w.tickLogger = l
	w.loggerMu.Unlock()
}

func (w *World) SetAuditLogger(l AuditLogger) {
	w.loggerMu.Lock()
	w.auditLogger = l
	w.loggerMu.Unlock()
}

func (w *World) writeTick(e TickLogEntry) {
	w.loggerMu.RLock()
	l := w.tickLogger
	w.loggerMu.RUnlock()
	if l != nil {
		_ = l.WriteTick(e)
	}
}

func (w *World) writeAudit(e AuditEntry) {
	w.loggerMu.RLock()
	l := w.auditLogger
	w.loggerMu.RUnlock()
	if l != nil {
		_ = l.WriteAudit(e)
	}
}
