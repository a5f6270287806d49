package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelgrid.ai/internal/protocol"
	"voxelgrid.ai/internal/sim/voxel"
	"voxelgrid.ai/internal/sim/world"
)

const (
	outQueue      = 32
	readDeadline  = 60 * time.Second
	writeDeadline = 5 * time.Second
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions reports the number of connected clients.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		s.logf("session %s connected from %s", sessionID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, outQueue)
		writeErr := make(chan error, 1)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		caller := s.world.As(sessionID)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			resp := s.dispatch(caller, msg)
			if resp == nil {
				continue
			}
			b, err := json.Marshal(resp)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.logf("session %s closed", sessionID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", false
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, "bad HELLO")
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", false
	}

	name := strings.TrimSpace(hello.ClientName)
	if name == "" {
		name = "client"
	}
	sessionID := name + "-" + uuid.NewString()[:8]

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         s.world.ID(),
		TickIntervalMs:  s.world.Config().TickInterval.Milliseconds(),
		Tick:            s.world.CurrentTick(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	return sessionID, true
}

// dispatch handles one inbound message and returns the reply to send, if any.
func (s *Server) dispatch(c world.Caller, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return s.ack("", protocol.ErrProtoBadRequest, "malformed json")
	}
	reqID := peekReqID(msg)
	if !protocol.HasSchema(base.Type) || base.Type == protocol.TypeHello {
		return s.ack(reqID, protocol.ErrProtoBadRequest, "unsupported message type")
	}
	if base.ProtocolVersion != protocol.Version {
		return s.ack(reqID, protocol.ErrProtoBadRequest, "bad protocol_version")
	}
	if err := protocol.Validate(base.Type, msg); err != nil {
		return s.ack(reqID, protocol.ErrProtoBadRequest, err.Error())
	}

	switch base.Type {
	case protocol.TypeRegister:
		var m protocol.RegisterMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.ack(reqID, protocol.ErrProtoBadRequest, err.Error())
		}
		var initial *voxel.State
		if m.Data != nil {
			initial = &voxel.State{Data: *m.Data}
		}
		id, err := voxel.FromArray(m.ID)
		if err != nil {
			return s.result(m.ReqID, err)
		}
		return s.result(m.ReqID, c.RegisterVoxel(id, initial))

	case protocol.TypeLink:
		var m protocol.LinkMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.ack(reqID, protocol.ErrProtoBadRequest, err.Error())
		}
		from, err := voxel.FromArray(m.From)
		if err != nil {
			return s.result(m.ReqID, err)
		}
		to, err := voxel.FromArray(m.To)
		if err != nil {
			return s.result(m.ReqID, err)
		}
		return s.result(m.ReqID, c.LinkNeighbors(from, to))

	case protocol.TypeSend:
		var m protocol.SendMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.ack(reqID, protocol.ErrProtoBadRequest, err.Error())
		}
		ev, err := m.Event.ToEvent()
		if err != nil {
			return s.ack(m.ReqID, protocol.ErrBadRequest, err.Error())
		}
		id, err := voxel.FromArray(m.ID)
		if err != nil {
			return s.result(m.ReqID, err)
		}
		return s.result(m.ReqID, c.SendEvent(id, ev))

	case protocol.TypeRemove:
		var m protocol.RemoveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.ack(reqID, protocol.ErrProtoBadRequest, err.Error())
		}
		id, err := voxel.FromArray(m.ID)
		if err != nil {
			return s.result(m.ReqID, err)
		}
		return s.result(m.ReqID, c.RemoveVoxel(id))

	case protocol.TypeRead:
		var m protocol.ReadMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.ack(reqID, protocol.ErrProtoBadRequest, err.Error())
		}
		id, err := voxel.FromArray(m.ID)
		if err != nil {
			return s.result(m.ReqID, err)
		}
		return s.state(id, m)
	}
	return nil
}

func (s *Server) state(id voxel.ID, m protocol.ReadMsg) protocol.StateMsg {
	out := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		ReqID:           m.ReqID,
		ID:              m.ID,
		Tick:            s.world.CurrentTick(),
	}
	st, ok := s.world.ReadVoxel(id)
	if !ok {
		return out
	}
	out.Found = true
	out.Data = st.Data
	out.Revision = st.Revision
	if ns, ok := s.world.Neighbors(id); ok {
		for _, n := range ns {
			out.Neighbors = append(out.Neighbors, n.Array())
		}
	}
	return out
}

func (s *Server) result(reqID string, err error) protocol.AckMsg {
	if err == nil {
		return s.ack(reqID, "", "")
	}
	return s.ack(reqID, CodeForError(err), err.Error())
}

func (s *Server) ack(reqID, code, message string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		OK:              code == "",
		Code:            code,
		Message:         message,
		Tick:            s.world.CurrentTick(),
	}
}

// CodeForError maps a world error onto its protocol reject code.
func CodeForError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, world.ErrUnknownTarget):
		return protocol.ErrUnknownTarget
	case errors.Is(err, world.ErrUnknownSource):
		return protocol.ErrUnknownSource
	case errors.Is(err, world.ErrDuplicateVoxel):
		return protocol.ErrDuplicate
	case errors.Is(err, world.ErrCorruptedState):
		return protocol.ErrInternal
	default:
		return protocol.ErrBadRequest
	}
}

func peekReqID(msg []byte) string {
	var v struct {
		ReqID any `json:"req_id"`
	}
	if err := json.Unmarshal(msg, &v); err != nil {
		return ""
	}
	if s, ok := v.ReqID.(string); ok {
		return s
	}
	return ""
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, b)
}
