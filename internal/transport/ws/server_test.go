package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelgrid.ai/internal/protocol"
	"voxelgrid.ai/internal/sim/voxel"
	"voxelgrid.ai/internal/sim/world"
)

func newTestServer(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "test", TickInterval: time.Hour})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	t.Cleanup(srv.Close)
	return w, srv
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, protocol.WelcomeMsg) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "t"}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	readJSON(t, conn, &welcome)
	if welcome.Type != protocol.TypeWelcome || welcome.SessionID == "" {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
	return conn, welcome
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
}

func roundTrip(t *testing.T, conn *websocket.Conn, raw string) protocol.AckMsg {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ack protocol.AckMsg
	readJSON(t, conn, &ack)
	return ack
}

func TestServer_HandshakeAndMutations(t *testing.T) {
	w, srv := newTestServer(t)
	conn, welcome := dial(t, srv)
	if welcome.WorldID != "test" || welcome.TickIntervalMs != time.Hour.Milliseconds() {
		t.Fatalf("welcome: %+v", welcome)
	}

	ack := roundTrip(t, conn, `{"type":"REGISTER","protocol_version":"1.0","req_id":"r1","id":[0,0,0],"data":"Initial"}`)
	if !ack.OK || ack.ReqID != "r1" {
		t.Fatalf("register ack: %+v", ack)
	}
	ack = roundTrip(t, conn, `{"type":"REGISTER","protocol_version":"1.0","req_id":"r2","id":[0,0,0]}`)
	if ack.OK || ack.Code != protocol.ErrDuplicate {
		t.Fatalf("duplicate ack: %+v", ack)
	}
	ack = roundTrip(t, conn, `{"type":"LINK","protocol_version":"1.0","req_id":"r3","from":[0,0,0],"to":[1,0,0]}`)
	if !ack.OK {
		t.Fatalf("link ack: %+v", ack)
	}
	ack = roundTrip(t, conn, `{"type":"LINK","protocol_version":"1.0","req_id":"r4","from":[9,9,9],"to":[1,0,0]}`)
	if ack.Code != protocol.ErrUnknownSource {
		t.Fatalf("unknown source ack: %+v", ack)
	}
	ack = roundTrip(t, conn, `{"type":"SEND","protocol_version":"1.0","req_id":"r5","id":[0,0,0],"event":{"kind":"UPDATE_DATA","data":"Hello"}}`)
	if !ack.OK {
		t.Fatalf("send ack: %+v", ack)
	}
	ack = roundTrip(t, conn, `{"type":"SEND","protocol_version":"1.0","req_id":"r6","id":[5,5,5],"event":{"kind":"CLEAR_DATA"}}`)
	if ack.Code != protocol.ErrUnknownTarget {
		t.Fatalf("unknown target ack: %+v", ack)
	}

	st, ok := w.ReadVoxel(voxel.ID{})
	if !ok || st.Data != "Hello" || st.Revision != 1 {
		t.Fatalf("state after send: %+v ok=%v", st, ok)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"READ","protocol_version":"1.0","req_id":"r7","id":[0,0,0]}`)); err != nil {
		t.Fatalf("write read: %v", err)
	}
	var state protocol.StateMsg
	readJSON(t, conn, &state)
	if state.Type != protocol.TypeState || !state.Found || state.Data != "Hello" || state.Revision != 1 {
		t.Fatalf("state: %+v", state)
	}
	if len(state.Neighbors) != 1 || state.Neighbors[0] != [3]int{1, 0, 0} {
		t.Fatalf("neighbors: %+v", state.Neighbors)
	}

	ack = roundTrip(t, conn, `{"type":"REMOVE","protocol_version":"1.0","req_id":"r8","id":[0,0,0]}`)
	if !ack.OK {
		t.Fatalf("remove ack: %+v", ack)
	}
	if _, ok := w.ReadVoxel(voxel.ID{}); ok {
		t.Fatalf("voxel should be gone")
	}
}

func TestServer_RejectsInvalidMessages(t *testing.T) {
	_, srv := newTestServer(t)
	conn, _ := dial(t, srv)

	cases := []string{
		`{"type":"REGISTER","protocol_version":"1.0","req_id":"a","id":[0,0]}`,
		`{"type":"SEND","protocol_version":"1.0","req_id":"b","id":[0,0,0],"event":{"kind":"BOOM"}}`,
		`{"type":"READ","protocol_version":"0.9","req_id":"c","id":[0,0,0]}`,
		`{"type":"TELEPORT","protocol_version":"1.0","req_id":"d"}`,
		`garbage`,
	}
	for i, raw := range cases {
		ack := roundTrip(t, conn, raw)
		if ack.OK || ack.Code != protocol.ErrProtoBadRequest {
			t.Fatalf("case %d: expected proto reject, got %+v", i, ack)
		}
	}
}

func TestServer_RejectsMissingHello(t *testing.T) {
	_, srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"READ","protocol_version":"1.0","req_id":"x","id":[0,0,0]}`))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected close")
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("close code: %d", ce.Code)
	}
}

func TestServer_AuditActorIsSession(t *testing.T) {
	w, srv := newTestServer(t)
	audit := &memAudit{}
	w.SetAuditLogger(audit)
	conn, welcome := dial(t, srv)
	_ = roundTrip(t, conn, `{"type":"REGISTER","protocol_version":"1.0","req_id":"r1","id":[2,2,2]}`)
	if got := audit.actors(); len(got) != 1 || got[0] != welcome.SessionID {
		t.Fatalf("audit actors: %v want %s", got, welcome.SessionID)
	}
}

func TestCodeForError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{world.ErrUnknownTarget, protocol.ErrUnknownTarget},
		{fmt.Errorf("link: %w", world.ErrUnknownSource), protocol.ErrUnknownSource},
		{world.ErrDuplicateVoxel, protocol.ErrDuplicate},
		{world.ErrCorruptedState, protocol.ErrInternal},
		{fmt.Errorf("other"), protocol.ErrBadRequest},
	}
	for _, c := range cases {
		got := CodeForError(c.err)
		if got != c.want {
			t.Fatalf("CodeForError(%v)=%q want %q", c.err, got, c.want)
		}
		if !protocol.IsKnownCode(got) {
			t.Fatalf("code not known: %q", got)
		}
	}
}
