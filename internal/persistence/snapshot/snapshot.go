package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"agirush.ai/internal/sim/tuning"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is a full session image: everything needed to resume a run plus the
// summary fields the persistence collaborators index.
type SnapshotV1 struct {
	Header Header `json:"header"`

	// Effective tuning, captured so a resumed run keeps its curve.
	Tuning        tuning.Tuning `json:"tuning"`
	PlayerName    string        `json:"player_name,omitempty"`
	CatalogDigest string        `json:"catalog_digest,omitempty"`

	ElapsedSeconds      float64 `json:"elapsed_seconds"`
	Intelligence        float64 `json:"intelligence"`
	PassiveIntelligence float64 `json:"passive_intelligence"`
	TrainingBonus       float64 `json:"training_bonus"`
	Money               float64 `json:"money"`
	PeakMoney           float64 `json:"peak_money"`

	Resources   AmountsV1      `json:"resources"`
	Production  AmountsV1      `json:"production"`
	InvestCosts AmountsV1      `json:"invest_costs"`
	Levels      LevelsV1       `json:"levels"`
	Inputs      map[string]int `json:"inputs"` // "<resource>.<input>" -> sub-level

	Capacity    CapacityV1    `json:"capacity"`
	Training    TrainingV1    `json:"training"`
	Revenue     RevenueV1     `json:"revenue"`
	Multipliers MultipliersV1 `json:"multipliers"`

	Capabilities   []string     `json:"capabilities,omitempty"`
	NarrativeFlags []string     `json:"narrative_flags,omitempty"`
	Unlocked       []UnlockedV1 `json:"unlocked,omitempty"`

	Era                   string `json:"era"`
	AGIReached            bool   `json:"agi_reached"`
	AGIReachedTick        uint64 `json:"agi_reached_tick,omitempty"`
	TrainingRunsCompleted int    `json:"training_runs_completed"`

	// AppliedCommands counts commands applied since the last tick boundary.
	// They are already reflected here and lead the next tick log entry.
	AppliedCommands int `json:"applied_commands,omitempty"`
}

type AmountsV1 struct {
	Compute   float64 `json:"compute"`
	Data      float64 `json:"data"`
	Algorithm float64 `json:"algorithm"`
}

type LevelsV1 struct {
	Compute   int `json:"compute"`
	Data      int `json:"data"`
	Algorithm int `json:"algorithm"`
}

type CapacityV1 struct {
	MaxCapacity    float64 `json:"max_capacity"`
	Used           float64 `json:"used"`
	CustomerUsage  float64 `json:"customer_usage"`
	Reserved       float64 `json:"reserved"`
	FreeCompute    float64 `json:"free_compute"`
	Demand         float64 `json:"demand"`
	ServedFraction float64 `json:"served_fraction"`
}

type TrainingV1 struct {
	Phase           string  `json:"phase"`
	ComputeReserved float64 `json:"compute_reserved"`
	MoneyCost       float64 `json:"money_cost"`
	Duration        float64 `json:"duration"`
	Remaining       float64 `json:"remaining"`
	LastGain        float64 `json:"last_gain,omitempty"`
}

type RevenueV1 struct {
	B2BEnabled         bool    `json:"b2b_enabled"`
	B2CEnabled         bool    `json:"b2c_enabled"`
	B2BUsage           float64 `json:"b2b_usage"`
	B2CSubscribers     float64 `json:"b2c_subscribers"`
	B2BRate            float64 `json:"b2b_rate"`
	B2CRate            float64 `json:"b2c_rate"`
	B2BTotal           float64 `json:"b2b_total"`
	B2CTotal           float64 `json:"b2c_total"`
	InvestorsTotal     float64 `json:"investors_total"`
	PeakB2BUsage       float64 `json:"peak_b2b_usage"`
	PeakB2CSubscribers float64 `json:"peak_b2c_subscribers"`
	Advertising        int     `json:"advertising"`
	ToolImprovements   int     `json:"tool_improvements"`
}

type MultipliersV1 struct {
	Production    AmountsV1 `json:"production"`
	Intelligence  float64   `json:"intelligence"`
	Capacity      float64   `json:"capacity"`
	TrainingSpeed float64   `json:"training_speed"`
}

type UnlockedV1 struct {
	ID   string `json:"id"`
	Tick uint64 `json:"tick"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is for tools that only need run id/tick; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
