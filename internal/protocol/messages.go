package protocol

import (
	"fmt"

	"voxelgrid.ai/internal/sim/voxel"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	WorldID         string `json:"world_id"`
	TickIntervalMs  int64  `json:"tick_interval_ms"`
	Tick            uint64 `json:"tick"`
}

// REGISTER (client -> server)
type RegisterMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ReqID           string  `json:"req_id"`
	ID              [3]int  `json:"id"`
	Data            *string `json:"data,omitempty"`
}

// LINK (client -> server)
type LinkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	From            [3]int `json:"from"`
	To              [3]int `json:"to"`
}

// SEND (client -> server)
type SendMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	ID              [3]int   `json:"id"`
	Event           EventReq `json:"event"`
}

type EventReq struct {
	Kind string `json:"kind"`
	Data string `json:"data,omitempty"`
}

// READ (client -> server)
type ReadMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	ID              [3]int `json:"id"`
}

// REMOVE (client -> server)
type RemoveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	ID              [3]int `json:"id"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Tick            uint64 `json:"tick"`
}

// STATE (server -> client)
type StateMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	ID              [3]int   `json:"id"`
	Found           bool     `json:"found"`
	Data            string   `json:"data"`
	Revision        uint64   `json:"revision"`
	Neighbors       [][3]int `json:"neighbors,omitempty"`
	Tick            uint64   `json:"tick"`
}

// ToEvent maps a wire event onto the closed voxel event set.
func (e EventReq) ToEvent() (voxel.Event, error) {
	switch e.Kind {
	case voxel.KindUpdateData:
		return voxel.UpdateData{Data: e.Data}, nil
	case voxel.KindClearData:
		return voxel.ClearData{}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

func EventFrom(ev voxel.Event) EventReq {
	return EventReq{Kind: ev.Kind(), Data: voxel.Payload(ev)}
}
