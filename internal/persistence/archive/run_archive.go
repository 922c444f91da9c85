package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agirush.ai/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	RunID          string  `json:"run_id"`
	PlayerName     string  `json:"player_name,omitempty"`
	AGITick        uint64  `json:"agi_tick"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Intelligence   float64 `json:"intelligence"`
	PeakMoney      float64 `json:"peak_money"`
	Breakthroughs  int     `json:"breakthroughs_unlocked"`
	TuningDigest   string  `json:"tuning_digest"`
	CatalogDigest  string  `json:"catalog_digest,omitempty"`
	Snapshot       string  `json:"snapshot"`
	CreatedAt      string  `json:"created_at"`
}

// ArchiveRunSnapshot copies the snapshot of a finished run into
// dataDir/archives/run_<run_id>/ next to a meta.json. Snapshots of runs that
// have not reached AGI are ignored (archived=false).
func ArchiveRunSnapshot(dataDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !snap.AGIReached {
		return "", false, nil
	}
	id := sanitizeRunID(snap.Header.RunID)
	if id == "" {
		return "", false, fmt.Errorf("archive: snapshot has no run id")
	}

	archiveDir := filepath.Join(dataDir, "archives", "run_"+id)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := RunArchiveMeta{
		RunID:          snap.Header.RunID,
		PlayerName:     snap.PlayerName,
		AGITick:        snap.AGIReachedTick,
		ElapsedSeconds: snap.ElapsedSeconds,
		Intelligence:   snap.Intelligence,
		PeakMoney:      snap.PeakMoney,
		Breakthroughs:  len(snap.Unlocked),
		TuningDigest:   snap.Tuning.Digest(),
		CatalogDigest:  snap.CatalogDigest,
		Snapshot:       filepath.Base(dst),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return dst, true, err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return dst, true, err
	}
	return dst, true, nil
}

// ReadMeta loads the meta.json of one archived run.
func ReadMeta(archiveDir string) (RunArchiveMeta, error) {
	var m RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(archiveDir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// sanitizeRunID keeps run ids usable as a single path element.
func sanitizeRunID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(id))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
