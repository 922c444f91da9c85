package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tuning holds the economic balance knobs of a session. Values are captured in
// snapshots so a resumed run keeps the curve it started with.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	StartingMoney float64 `yaml:"starting_money" json:"starting_money"`
	AGIThreshold  float64 `yaml:"agi_threshold" json:"agi_threshold"`

	MaxLevel        int     `yaml:"max_level" json:"max_level"`
	LevelCostGrowth float64 `yaml:"level_cost_growth" json:"level_cost_growth"`
	LevelRateBonus  float64 `yaml:"level_rate_bonus" json:"level_rate_bonus"`

	Resources map[string]ResourceSpec `yaml:"resources" json:"resources"`
	Inputs    []InputSpec             `yaml:"inputs" json:"inputs"`

	Capacity                CapacitySpec `yaml:"capacity" json:"capacity"`
	FreeComputeResearchRate float64      `yaml:"free_compute_research_rate" json:"free_compute_research_rate"`

	Intelligence IntelligenceSpec `yaml:"intelligence" json:"intelligence"`
	Eras         []EraSpec        `yaml:"eras" json:"eras"`

	Revenue  RevenueSpec  `yaml:"revenue" json:"revenue"`
	Training TrainingSpec `yaml:"training" json:"training"`
}

type ResourceSpec struct {
	BaseRate   float64 `yaml:"base_rate" json:"base_rate"`
	InvestCost float64 `yaml:"invest_cost" json:"invest_cost"`
}

// InputSpec describes one money sink that raises a resource's production.
type InputSpec struct {
	Resource   string  `yaml:"resource" json:"resource"`
	Name       string  `yaml:"name" json:"name"`
	BaseCost   float64 `yaml:"base_cost" json:"base_cost"`
	CostGrowth float64 `yaml:"cost_growth" json:"cost_growth"`
	Curve      string  `yaml:"curve" json:"curve"` // "linear" | "log"
	Step       float64 `yaml:"step" json:"step"`
}

type CapacitySpec struct {
	Base            float64 `yaml:"base" json:"base"`
	PerHardware     float64 `yaml:"per_hardware" json:"per_hardware"`
	PerComputeLevel float64 `yaml:"per_compute_level" json:"per_compute_level"`
}

type IntelligenceSpec struct {
	Scale         float64            `yaml:"scale" json:"scale"`
	Exponent      float64            `yaml:"exponent" json:"exponent"`
	ResourceScale float64            `yaml:"resource_scale" json:"resource_scale"`
	BalanceFloor  float64            `yaml:"balance_floor" json:"balance_floor"`
	Weights       map[string]float64 `yaml:"weights" json:"weights"`
}

type EraSpec struct {
	Era           string  `yaml:"era" json:"era"`
	Threshold     float64 `yaml:"threshold" json:"threshold"`
	InvestorGrant float64 `yaml:"investor_grant" json:"investor_grant"`
}

type RevenueSpec struct {
	B2B              StreamSpec    `yaml:"b2b" json:"b2b"`
	B2C              StreamSpec    `yaml:"b2c" json:"b2c"`
	Advertising      MarketingSpec `yaml:"advertising" json:"advertising"`
	ToolImprovements MarketingSpec `yaml:"tool_improvements" json:"tool_improvements"`
}

type StreamSpec struct {
	// Price is money per usage unit (B2B) or per subscriber (B2C) per second.
	Price                 float64 `yaml:"price" json:"price"`
	DemandBase            float64 `yaml:"demand_base" json:"demand_base"`
	DemandPerIntelligence float64 `yaml:"demand_per_intelligence" json:"demand_per_intelligence"`
	ComputePerUnit        float64 `yaml:"compute_per_unit" json:"compute_per_unit"`
	RampPerSecond         float64 `yaml:"ramp_per_second" json:"ramp_per_second"`
}

type MarketingSpec struct {
	BaseCost    float64 `yaml:"base_cost" json:"base_cost"`
	CostGrowth  float64 `yaml:"cost_growth" json:"cost_growth"`
	DemandBonus float64 `yaml:"demand_bonus" json:"demand_bonus"`
}

type TrainingSpec struct {
	GainPerComputeSecond float64        `yaml:"gain_per_compute_second" json:"gain_per_compute_second"`
	AlgorithmLevelBonus  float64        `yaml:"algorithm_level_bonus" json:"algorithm_level_bonus"`
	Presets              []TrainingPlan `yaml:"presets" json:"presets"`
}

type TrainingPlan struct {
	Name            string  `yaml:"name" json:"name"`
	DurationSeconds float64 `yaml:"duration_seconds" json:"duration_seconds"`
	ComputeCost     float64 `yaml:"compute_cost" json:"compute_cost"`
	MoneyCost       float64 `yaml:"money_cost" json:"money_cost"`
}

// Load reads a tuning file on top of Defaults, so a partial file only overrides
// the keys it names.
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

// LevelCap is the highest max_level a tuning may set.
const LevelCap = 5

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.MaxLevel < 1 || t.MaxLevel > LevelCap {
		return fmt.Errorf("max_level must be in [1,%d]", LevelCap)
	}
	if t.LevelCostGrowth <= 1 {
		return fmt.Errorf("level_cost_growth must be > 1")
	}
	if t.AGIThreshold <= 0 {
		return fmt.Errorf("agi_threshold must be > 0")
	}
	for _, r := range []string{"compute", "data", "algorithm"} {
		spec, ok := t.Resources[r]
		if !ok {
			return fmt.Errorf("resources.%s missing", r)
		}
		if spec.BaseRate < 0 || spec.InvestCost <= 0 {
			return fmt.Errorf("resources.%s: base_rate must be >= 0 and invest_cost > 0", r)
		}
	}
	seen := map[string]bool{}
	for _, in := range t.Inputs {
		key := in.Resource + "." + in.Name
		if seen[key] {
			return fmt.Errorf("inputs: duplicate %s", key)
		}
		seen[key] = true
		if _, ok := t.Resources[in.Resource]; !ok {
			return fmt.Errorf("inputs: %s: unknown resource", key)
		}
		if in.BaseCost <= 0 || in.CostGrowth < 1 {
			return fmt.Errorf("inputs: %s: base_cost must be > 0 and cost_growth >= 1", key)
		}
		switch in.Curve {
		case "linear", "log":
		default:
			return fmt.Errorf("inputs: %s: unknown curve %q", key, in.Curve)
		}
		if in.Step < 0 {
			return fmt.Errorf("inputs: %s: step must be >= 0", key)
		}
	}
	if t.Intelligence.Exponent <= 0 || t.Intelligence.Exponent >= 1 {
		return fmt.Errorf("intelligence.exponent must be in (0,1)")
	}
	if t.Intelligence.ResourceScale <= 0 || t.Intelligence.Scale <= 0 {
		return fmt.Errorf("intelligence.scale and resource_scale must be > 0")
	}
	if t.Intelligence.BalanceFloor < 0 || t.Intelligence.BalanceFloor > 1 {
		return fmt.Errorf("intelligence.balance_floor must be in [0,1]")
	}
	if len(t.Eras) == 0 {
		return fmt.Errorf("eras: empty")
	}
	for i, e := range t.Eras {
		if i > 0 && e.Threshold <= t.Eras[i-1].Threshold {
			return fmt.Errorf("eras: thresholds must be strictly increasing (%s)", e.Era)
		}
	}
	if last := t.Eras[len(t.Eras)-1]; last.Era != "AGI" || last.Threshold != t.AGIThreshold {
		return fmt.Errorf("eras: last era must be AGI at agi_threshold")
	}
	names := map[string]bool{}
	for _, p := range t.Training.Presets {
		name := strings.TrimSpace(p.Name)
		if name == "" || names[name] {
			return fmt.Errorf("training.presets: empty or duplicate name %q", p.Name)
		}
		names[name] = true
		if p.DurationSeconds <= 0 || p.ComputeCost <= 0 || p.MoneyCost < 0 {
			return fmt.Errorf("training.presets: %s: invalid parameters", name)
		}
	}
	return nil
}

// Input looks up the InputSpec for resource.name.
func (t Tuning) Input(resource, name string) (InputSpec, bool) {
	for _, in := range t.Inputs {
		if in.Resource == resource && in.Name == name {
			return in, true
		}
	}
	return InputSpec{}, false
}

func (t Tuning) Preset(name string) (TrainingPlan, bool) {
	for _, p := range t.Training.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return TrainingPlan{}, false
}

// Digest is the sha256 of the canonical JSON encoding.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
