// Package mcpbridge exposes the voxel world as MCP tools so agents can drive
// the grid without speaking the websocket protocol.
package mcpbridge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"voxelgrid.ai/internal/sim/voxel"
	"voxelgrid.ai/internal/sim/world"
)

const (
	serverName    = "voxelgrid"
	serverVersion = "1.0"
)

type VoxelIDInput struct {
	ID [3]int `json:"id" jsonschema:"voxel coordinates [x,y,z]"`
}

type RegisterInput struct {
	ID   [3]int `json:"id" jsonschema:"voxel coordinates [x,y,z]"`
	Data string `json:"data,omitempty" jsonschema:"initial data"`
}

type LinkInput struct {
	From   [3]int `json:"from" jsonschema:"source voxel"`
	To     [3]int `json:"to" jsonschema:"neighbor that receives tick events"`
	Mutual bool   `json:"mutual,omitempty" jsonschema:"also link to -> from"`
}

type SendInput struct {
	ID   [3]int `json:"id" jsonschema:"target voxel"`
	Kind string `json:"kind" jsonschema:"UPDATE_DATA or CLEAR_DATA"`
	Data string `json:"data,omitempty" jsonschema:"payload for UPDATE_DATA"`
}

type StateInput struct{}

type ListInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum voxels to return (default 256)"`
}

type OKResult struct {
	OK   bool   `json:"ok"`
	Tick uint64 `json:"tick"`
}

type VoxelResult struct {
	ID        [3]int   `json:"id"`
	Found     bool     `json:"found"`
	Data      string   `json:"data"`
	Revision  uint64   `json:"revision"`
	Neighbors [][3]int `json:"neighbors"`
}

type ListResult struct {
	Tick      uint64        `json:"tick"`
	Total     int           `json:"total"`
	Voxels    []VoxelResult `json:"voxels"`
	Truncated bool          `json:"truncated,omitempty"`
}

type StateResult struct {
	WorldID string             `json:"world_id"`
	Metrics world.WorldMetrics `json:"metrics"`
}

// NewServer registers the voxel tools against w. Mutations are audited with
// the actor "mcp".
func NewServer(w *world.World) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	t := tools{w: w, c: w.As("mcp")}

	mcp.AddTool(s, &mcp.Tool{Name: "voxel_register", Description: "Register a voxel, optionally with initial data."}, t.register)
	mcp.AddTool(s, &mcp.Tool{Name: "voxel_link", Description: "Add a directed neighbor edge used by simulation ticks."}, t.link)
	mcp.AddTool(s, &mcp.Tool{Name: "voxel_send", Description: "Apply an event to a voxel immediately."}, t.send)
	mcp.AddTool(s, &mcp.Tool{Name: "voxel_read", Description: "Read a voxel's data, revision and neighbors."}, t.read)
	mcp.AddTool(s, &mcp.Tool{Name: "voxel_remove", Description: "Remove a voxel; inbound edges are skipped afterwards."}, t.remove)
	mcp.AddTool(s, &mcp.Tool{Name: "voxel_list", Description: "List voxels in id order."}, t.list)
	mcp.AddTool(s, &mcp.Tool{Name: "world_state", Description: "Current tick, loop state and counters."}, t.state)
	return s
}

// Handler serves the tools over streamable HTTP.
func Handler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)
}

type tools struct {
	w *world.World
	c world.Caller
}

func (t tools) ok(err error) (*mcp.CallToolResult, OKResult, error) {
	if err != nil {
		return nil, OKResult{}, err
	}
	return nil, OKResult{OK: true, Tick: t.w.CurrentTick()}, nil
}

func (t tools) register(_ context.Context, _ *mcp.CallToolRequest, in RegisterInput) (*mcp.CallToolResult, OKResult, error) {
	var initial *voxel.State
	if in.Data != "" {
		initial = &voxel.State{Data: in.Data}
	}
	id, err := voxel.FromArray(in.ID)
	if err != nil {
		return t.ok(err)
	}
	return t.ok(t.c.RegisterVoxel(id, initial))
}

func (t tools) link(_ context.Context, _ *mcp.CallToolRequest, in LinkInput) (*mcp.CallToolResult, OKResult, error) {
	from, err := voxel.FromArray(in.From)
	if err != nil {
		return t.ok(err)
	}
	to, err := voxel.FromArray(in.To)
	if err != nil {
		return t.ok(err)
	}
	err = t.c.LinkNeighbors(from, to)
	if err == nil && in.Mutual {
		err = t.c.LinkNeighbors(to, from)
	}
	return t.ok(err)
}

func (t tools) send(_ context.Context, _ *mcp.CallToolRequest, in SendInput) (*mcp.CallToolResult, OKResult, error) {
	var ev voxel.Event
	switch in.Kind {
	case voxel.KindUpdateData:
		ev = voxel.UpdateData{Data: in.Data}
	case voxel.KindClearData:
		ev = voxel.ClearData{}
	default:
		return t.ok(fmt.Errorf("unknown event kind %q", in.Kind))
	}
	id, err := voxel.FromArray(in.ID)
	if err != nil {
		return t.ok(err)
	}
	return t.ok(t.c.SendEvent(id, ev))
}

func (t tools) remove(_ context.Context, _ *mcp.CallToolRequest, in VoxelIDInput) (*mcp.CallToolResult, OKResult, error) {
	id, err := voxel.FromArray(in.ID)
	if err != nil {
		return t.ok(err)
	}
	return t.ok(t.c.RemoveVoxel(id))
}

func (t tools) read(_ context.Context, _ *mcp.CallToolRequest, in VoxelIDInput) (*mcp.CallToolResult, VoxelResult, error) {
	id, err := voxel.FromArray(in.ID)
	if err != nil {
		return nil, VoxelResult{}, err
	}
	st, ok := t.w.ReadVoxel(id)
	if !ok {
		return nil, VoxelResult{ID: in.ID, Neighbors: [][3]int{}}, nil
	}
	ns, _ := t.w.Neighbors(id)
	return nil, voxelResult(id, st, ns), nil
}

func (t tools) list(_ context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, ListResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 256
	}
	views := t.w.Voxels()
	out := ListResult{Tick: t.w.CurrentTick(), Total: len(views), Voxels: []VoxelResult{}}
	for i, v := range views {
		if i >= limit {
			out.Truncated = true
			break
		}
		out.Voxels = append(out.Voxels, voxelResult(v.ID, v.State, v.Neighbors))
	}
	return nil, out, nil
}

func (t tools) state(context.Context, *mcp.CallToolRequest, StateInput) (*mcp.CallToolResult, StateResult, error) {
	return nil, StateResult{WorldID: t.w.ID(), Metrics: t.w.Metrics()}, nil
}

func voxelResult(id voxel.ID, st voxel.State, ns []voxel.ID) VoxelResult {
	r := VoxelResult{ID: id.Array(), Found: true, Data: st.Data, Revision: st.Revision, Neighbors: make([][3]int, 0, len(ns))}
	for _, n := range ns {
		r.Neighbors = append(r.Neighbors, n.Array())
	}
	return r
}
