package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopRunning
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "IDLE"
	case LoopRunning:
		return "RUNNING"
	case LoopStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("LoopState(%d)", int32(s))
	}
}

// LoopHandle controls one run of the simulation loop.
type LoopHandle struct {
	interval time.Duration

	state atomic.Int32
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	errMu sync.Mutex
	err   error
}

func newLoopHandle(interval time.Duration) *LoopHandle {
	return &LoopHandle{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (h *LoopHandle) State() LoopState { return LoopState(h.state.Load()) }

func (h *LoopHandle) Interval() time.Duration { return h.interval }

// Done is closed once the loop goroutine has exited.
func (h *LoopHandle) Done() <-chan struct{} { return h.done }

// Err reports why the loop stopped on its own. It is nil after a requested
// stop or a context cancellation.
func (h *LoopHandle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

// Stop asks the loop to exit and waits for it. A tick in progress finishes
// its delivery pass first; no delivery happens after Stop returns.
func (h *LoopHandle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	if h.State() == LoopIdle {
		return
	}
	<-h.done
}

func (h *LoopHandle) setErr(err error) {
	h.errMu.Lock()
	h.err = err
	h.errMu.Unlock()
}

// StartSimulation starts ticking every interval (the configured interval when
// zero) on a dedicated goroutine.
func (w *World) StartSimulation(interval time.Duration) (*LoopHandle, error) {
	return w.StartSimulationContext(context.Background(), interval)
}

func (w *World) StartSimulationContext(ctx context.Context, interval time.Duration) (*LoopHandle, error) {
	if interval < 0 {
		return nil, fmt.Errorf("tick interval must be positive: %s", interval)
	}
	if interval == 0 {
		interval = w.cfg.TickInterval
	}

	w.loopMu.Lock()
	defer w.loopMu.Unlock()
	if w.loop != nil && w.loop.State() != LoopStopped {
		return nil, ErrLoopStarted
	}
	h := newLoopHandle(interval)
	h.state.Store(int32(LoopRunning))
	w.loop = h
	go w.runLoop(ctx, h)
	return h, nil
}

// StopSimulation stops h and waits for its goroutine. It returns the loop's
// own failure, if any.
func (w *World) StopSimulation(h *LoopHandle) error {
	if h == nil {
		return nil
	}
	h.Stop()
	return h.Err()
}

// Run ticks until ctx is cancelled or the loop fails.
func (w *World) Run(ctx context.Context) error {
	h, err := w.StartSimulationContext(ctx, 0)
	if err != nil {
		return err
	}
	<-h.Done()
	if err := h.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

func (w *World) runLoop(ctx context.Context, h *LoopHandle) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer func() {
		h.state.Store(int32(LoopStopped))
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-ticker.C:
		}

		// Both channels may be ready together; a stop always wins over a tick.
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		default:
		}

		if _, err := w.step(ctx); err != nil {
			h.setErr(err)
			return
		}
	}
}

// StepOnce runs a single tick synchronously and returns the tick number it
// processed along with the post-tick state digest. It fails with
// ErrLoopStarted while a simulation loop is running.
func (w *World) StepOnce() (tick uint64, digest string, err error) {
	w.loopMu.Lock()
	running := w.loop != nil && w.loop.State() == LoopRunning
	w.loopMu.Unlock()
	if running {
		return w.tick.Load(), "", ErrLoopStarted
	}
	entry, err := w.step(context.Background())
	if err != nil {
		return entry.Tick, "", err
	}
	return entry.Tick, entry.Digest, nil
}

// IsCorrupted reports whether err came from an unrecoverable loop failure.
func IsCorrupted(err error) bool { return errors.Is(err, ErrCorruptedState) }
