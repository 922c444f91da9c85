package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"agirush.ai/internal/persistence/indexdb"
	"agirush.ai/internal/persistence/snapshot"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/game"
	"agirush.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	game.TickLogger
	game.Leaderboard
	Close() error
	UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	TopRuns(ctx context.Context, limit int) ([]game.RunRecord, error)
}

func openRuntimeIndex(dataDir, source string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("AGI_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "agirush.sqlite"))
	case "http":
		endpoint := strings.TrimSpace(os.Getenv("AGI_INDEX_HTTP_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("AGI_INDEX_BACKEND=http but AGI_INDEX_HTTP_URL is empty")
		}
		idx, err := indexdb.OpenHTTP(indexdb.HTTPConfig{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("AGI_INDEX_HTTP_TOKEN")),
			Source:        source,
			BatchSize:     envInt("AGI_INDEX_HTTP_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("AGI_INDEX_HTTP_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported AGI_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a game.TickLogger
	b game.TickLogger
}

func (m multiTickLogger) WriteTick(entry game.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
