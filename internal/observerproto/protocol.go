package observerproto

// Version is the observer protocol version (separate from the client WS protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional: attach full voxel states to every tick.
	IncludeVoxels bool `json:"include_voxels,omitempty"`
	MaxVoxels     int  `json:"max_voxels,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Voxels          []Voxel     `json:"voxels"`
}

type WorldParams struct {
	TickIntervalMs int64  `json:"tick_interval_ms"`
	TickPayload    string `json:"tick_payload,omitempty"`
	LoopState      string `json:"loop_state"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Edges     int      `json:"edges"`
	Delivered int      `json:"delivered"`
	Skipped   int      `json:"skipped"`
	Missing   []string `json:"missing,omitempty"`
	Digest    string   `json:"digest"`

	Voxels    []Voxel `json:"voxels,omitempty"`
	Truncated bool    `json:"truncated,omitempty"`
}

type Voxel struct {
	ID        [3]int   `json:"id"`
	Data      string   `json:"data"`
	Revision  uint64   `json:"revision"`
	Neighbors [][3]int `json:"neighbors,omitempty"`
}
