package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voxelgrid.ai/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "client name")
		origin = flag.String("origin", "100,0,0", "x,y,z of the first voxel the bot owns")
		chain  = flag.Int("chain", 3, "voxels to register in a linked chain")
		every  = flag.Duration("every", 2*time.Second, "interval between SEND/READ rounds")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	base, err := parseVec(*origin)
	if err != nil {
		logger.Fatalf("bad -origin: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	// Reader goroutine.
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				os.Exit(0)
			}
			logMessage(logger, msg)
		}
	}()

	b := &bot{conn: conn}
	ids := make([][3]int, 0, *chain)
	for i := 0; i < *chain; i++ {
		id := [3]int{base[0] + i, base[1], base[2]}
		ids = append(ids, id)
		data := fmt.Sprintf("%s-%d", *name, i)
		b.send(protocol.RegisterMsg{Type: protocol.TypeRegister, ID: id, Data: &data})
	}
	for i := 0; i+1 < len(ids); i++ {
		b.send(protocol.LinkMsg{Type: protocol.TypeLink, From: ids[i], To: ids[i+1]})
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-stop:
			for _, id := range ids {
				b.send(protocol.RemoveMsg{Type: protocol.TypeRemove, ID: id})
			}
			time.Sleep(200 * time.Millisecond)
			return
		case <-ticker.C:
			if len(ids) == 0 {
				continue
			}
			id := ids[r.Intn(len(ids))]
			ev := protocol.EventReq{Kind: "UPDATE_DATA", Data: fmt.Sprintf("%s@%d", *name, time.Now().Unix())}
			if r.Intn(5) == 0 {
				ev = protocol.EventReq{Kind: "CLEAR_DATA"}
			}
			b.send(protocol.SendMsg{Type: protocol.TypeSend, ID: id, Event: ev})
			b.send(protocol.ReadMsg{Type: protocol.TypeRead, ID: ids[len(ids)-1]})
		}
	}
}

type bot struct {
	conn *websocket.Conn
	next int
}

// send stamps protocol_version and req_id on msg before writing it.
func (b *bot) send(msg any) {
	b.next++
	reqID := fmt.Sprintf("r%d", b.next)
	switch m := msg.(type) {
	case protocol.RegisterMsg:
		m.ProtocolVersion, m.ReqID = protocol.Version, reqID
		msg = m
	case protocol.LinkMsg:
		m.ProtocolVersion, m.ReqID = protocol.Version, reqID
		msg = m
	case protocol.SendMsg:
		m.ProtocolVersion, m.ReqID = protocol.Version, reqID
		msg = m
	case protocol.ReadMsg:
		m.ProtocolVersion, m.ReqID = protocol.Version, reqID
		msg = m
	case protocol.RemoveMsg:
		m.ProtocolVersion, m.ReqID = protocol.Version, reqID
		msg = m
	}
	_ = b.conn.WriteJSON(msg)
}

func logMessage(logger *log.Logger, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		logger.Printf("WELCOME session=%s world=%s tick=%d interval=%dms", w.SessionID, w.WorldID, w.Tick, w.TickIntervalMs)
	case protocol.TypeAck:
		var a protocol.AckMsg
		if err := json.Unmarshal(msg, &a); err != nil {
			return
		}
		if !a.OK {
			logger.Printf("ACK %s rejected code=%s msg=%s", a.ReqID, a.Code, a.Message)
		}
	case protocol.TypeState:
		var s protocol.StateMsg
		if err := json.Unmarshal(msg, &s); err != nil {
			return
		}
		logger.Printf("STATE %v found=%v data=%q rev=%d tick=%d", s.ID, s.Found, s.Data, s.Revision, s.Tick)
	}
}

func parseVec(s string) ([3]int, error) {
	var v [3]int
	_, err := fmt.Sscanf(s, "%d,%d,%d", &v[0], &v[1], &v[2])
	return v, err
}
