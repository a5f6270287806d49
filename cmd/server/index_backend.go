package main

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"voxelgrid.ai/internal/persistence/indexdb"
	"voxelgrid.ai/internal/platform/config"
	"voxelgrid.ai/internal/sim/tuning"
	"voxelgrid.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	UpsertTuning(worldID string, tune tuning.Tuning) error
}

func openRuntimeIndex(worldDir, worldID string, disableDB bool, env config.ServerEnv, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := env.IndexBackend
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	case "d1":
		if env.D1IngestURL == "" {
			return nil, fmt.Errorf("VG_INDEX_BACKEND=d1 but VG_INDEX_D1_INGEST_URL is empty")
		}
		return indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      env.D1IngestURL,
			Token:         env.D1Token,
			WorldID:       worldID,
			BatchSize:     env.D1BatchSize,
			FlushInterval: time.Duration(env.D1FlushMS) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported VG_INDEX_BACKEND: %s", backend)
	}
}
