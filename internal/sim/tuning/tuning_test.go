package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_RepoConfigMatchesDefaults(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Digest() != Defaults().Digest() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults()")
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("starting_money: 50\nlevel_cost_growth: 2.0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.StartingMoney != 50 || got.LevelCostGrowth != 2.0 {
		t.Fatalf("override not applied: money=%v growth=%v", got.StartingMoney, got.LevelCostGrowth)
	}
	if got.TickRateHz != 10 || len(got.Inputs) != len(Defaults().Inputs) {
		t.Fatalf("defaults lost: tick_rate=%d inputs=%d", got.TickRateHz, len(got.Inputs))
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Tuning)
		want string
	}{
		{"tick rate", func(t *Tuning) { t.TickRateHz = 0 }, "tick_rate_hz"},
		{"max level zero", func(t *Tuning) { t.MaxLevel = 0 }, "max_level"},
		{"max level above cap", func(t *Tuning) { t.MaxLevel = LevelCap + 1 }, "max_level"},
		{"growth", func(t *Tuning) { t.LevelCostGrowth = 1 }, "level_cost_growth"},
		{"exponent", func(t *Tuning) { t.Intelligence.Exponent = 1 }, "exponent"},
		{"era order", func(t *Tuning) { t.Eras[2].Threshold = 100 }, "strictly increasing"},
		{"agi era", func(t *Tuning) { t.AGIThreshold = 2000 }, "AGI"},
		{"curve", func(t *Tuning) { t.Inputs[0].Curve = "cubic" }, "curve"},
		{"dup input", func(t *Tuning) { t.Inputs = append(t.Inputs, t.Inputs[0]) }, "duplicate"},
		{"missing resource", func(t *Tuning) { delete(t.Resources, "data") }, "resources.data"},
		{"preset", func(t *Tuning) { t.Training.Presets[0].ComputeCost = 0 }, "presets"},
	}
	for _, tc := range cases {
		tu := Defaults()
		tc.mut(&tu)
		err := tu.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: got err=%v want substring %q", tc.name, err, tc.want)
		}
	}
}

func TestValidate_MaxLevelBounds(t *testing.T) {
	for lvl := 1; lvl <= LevelCap; lvl++ {
		tu := Defaults()
		tu.MaxLevel = lvl
		if err := tu.Validate(); err != nil {
			t.Fatalf("max_level=%d: %v", lvl, err)
		}
	}
}

func TestLookups(t *testing.T) {
	tu := Defaults()
	if in, ok := tu.Input("compute", "hardware"); !ok || in.BaseCost != 250 {
		t.Fatalf("Input(compute,hardware)=%+v ok=%v", in, ok)
	}
	if _, ok := tu.Input("data", "hardware"); ok {
		t.Fatalf("expected data.hardware missing")
	}
	if p, ok := tu.Preset("medium"); !ok || p.ComputeCost != 40 {
		t.Fatalf("Preset(medium)=%+v ok=%v", p, ok)
	}
}
