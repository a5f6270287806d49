package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"voxelgrid.ai/internal/sim/voxel"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickIntervalMs int    `yaml:"tick_interval_ms"`
	TickPayload    string `yaml:"tick_payload"`
	// TickMode selects the tick event: "constant" sends TickPayload,
	// "mirror" forwards the source voxel's data.
	TickMode string `yaml:"tick_mode"`

	SeedVoxels []SeedVoxel `yaml:"seed_voxels"`
	SeedLinks  []SeedLink  `yaml:"seed_links"`
}

type SeedVoxel struct {
	ID   [3]int `yaml:"id"`
	Data string `yaml:"data,omitempty"`
}

type SeedLink struct {
	From [3]int `yaml:"from"`
	To   [3]int `yaml:"to"`
	// Mutual also adds the reverse edge.
	Mutual bool `yaml:"mutual,omitempty"`
}

const (
	TickModeConstant = "constant"
	TickModeMirror   = "mirror"
)

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickIntervalMs:  1000,
		TickPayload:     "New data",
		TickMode:        TickModeConstant,
	}
}

func (t Tuning) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalMs) * time.Millisecond
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickIntervalMs <= 0 {
		return fmt.Errorf("tick_interval_ms must be > 0 (got %d)", t.TickIntervalMs)
	}
	switch t.TickMode {
	case "", TickModeConstant, TickModeMirror:
	default:
		return fmt.Errorf("unknown tick_mode %q", t.TickMode)
	}
	seen := make(map[[3]int]bool, len(t.SeedVoxels))
	for _, v := range t.SeedVoxels {
		if _, err := voxel.FromArray(v.ID); err != nil {
			return fmt.Errorf("seed_voxels: %w", err)
		}
		if seen[v.ID] {
			return fmt.Errorf("duplicate seed voxel %v", v.ID)
		}
		seen[v.ID] = true
	}
	for _, l := range t.SeedLinks {
		if _, err := voxel.FromArray(l.From); err != nil {
			return fmt.Errorf("seed_links from: %w", err)
		}
		if _, err := voxel.FromArray(l.To); err != nil {
			return fmt.Errorf("seed_links to: %w", err)
		}
	}
	return nil
}
