package ws

import (
	"sync"

	"voxelgrid.ai/internal/sim/world"
)

type memAudit struct {
	mu      sync.Mutex
	entries []world.AuditEntry
}

func (m *memAudit) WriteAudit(e world.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) actors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Actor)
	}
	return out
}
