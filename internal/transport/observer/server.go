package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelgrid.ai/internal/observerproto"
	"voxelgrid.ai/internal/sim/world"
)

type subscriber struct {
	out           chan []byte
	includeVoxels bool
	maxVoxels     int
}

// Server streams per-tick summaries to loopback observers. It implements
// world.TickLogger so it can be chained next to the journal writers.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	subs    map[string]*subscriber
	dropped atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]*subscriber{},
	}
}

// Subscribers reports the number of attached observers.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped reports tick messages discarded because an observer was too slow.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) WriteTick(e world.TickLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}

	base := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            e.Tick,
		Edges:           e.Edges,
		Delivered:       e.Delivered,
		Skipped:         e.Skipped,
		Missing:         e.Missing,
		Digest:          e.Digest,
	}
	plain, err := json.Marshal(base)
	if err != nil {
		return err
	}

	var all []observerproto.Voxel
	for _, sub := range s.subs {
		b := plain
		if sub.includeVoxels {
			if all == nil {
				all = s.voxels()
			}
			msg := base
			msg.Voxels = all
			if len(all) > sub.maxVoxels {
				msg.Voxels = all[:sub.maxVoxels]
				msg.Truncated = true
			}
			if b, err = json.Marshal(msg); err != nil {
				return err
			}
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

func (s *Server) voxels() []observerproto.Voxel {
	views := s.world.Voxels()
	out := make([]observerproto.Voxel, 0, len(views))
	for _, v := range views {
		out = append(out, toVoxel(v))
	}
	return out
}

func toVoxel(v world.VoxelView) observerproto.Voxel {
	ov := observerproto.Voxel{
		ID:       v.ID.Array(),
		Data:     v.State.Data,
		Revision: v.State.Revision,
	}
	for _, n := range v.Neighbors {
		ov.Neighbors = append(ov.Neighbors, n.Array())
	}
	return ov
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			WorldParams: observerproto.WorldParams{
				TickIntervalMs: cfg.TickInterval.Milliseconds(),
				TickPayload:    cfg.TickPayload,
				LoopState:      s.world.Metrics().LoopState,
			},
			Voxels: s.voxels(),
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out := make(chan []byte, 8)
		s.attach(sid, out, sub)
		defer s.detach(sid)
		if s.log != nil {
			s.log.Printf("observer %s attached from %s", sid, r.RemoteAddr)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				s.attach(sid, out, sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) attach(sid string, out chan []byte, sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sid] = &subscriber{out: out, includeVoxels: sub.IncludeVoxels, maxVoxels: sub.MaxVoxels}
}

func (s *Server) detach(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sid)
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.MaxVoxels <= 0 {
		sub.MaxVoxels = 1024
	}
	if sub.MaxVoxels > 16384 {
		sub.MaxVoxels = 16384
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
