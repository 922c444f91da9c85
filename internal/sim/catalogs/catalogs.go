package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Catalogs struct {
	Breakthroughs BreakthroughCatalog
}

// BreakthroughCatalog keeps definitions in file order; that order is the
// evaluation order of the unlock rules.
type BreakthroughCatalog struct {
	Defs   []BreakthroughDef
	Index  map[string]int
	Digest string
}

type BreakthroughDef struct {
	ID                string `yaml:"id" json:"id"`
	Name              string `yaml:"name" json:"name"`
	Description       string `yaml:"description" json:"description"`
	Type              string `yaml:"type" json:"type"` // "compute","data","algorithm","combined"
	RealWorldParallel string `yaml:"real_world_parallel,omitempty" json:"real_world_parallel,omitempty"`

	Condition ConditionDef `yaml:"condition" json:"condition"`
	Effect    EffectDef    `yaml:"effect" json:"effect"`
}

// ConditionDef is a conjunction: every non-zero field must hold.
type ConditionDef struct {
	MinLevels       map[string]int     `yaml:"min_levels,omitempty" json:"min_levels,omitempty"`
	MinResources    map[string]float64 `yaml:"min_resources,omitempty" json:"min_resources,omitempty"`
	MinIntelligence float64            `yaml:"min_intelligence,omitempty" json:"min_intelligence,omitempty"`
	MinTotalLevel   int                `yaml:"min_total_level,omitempty" json:"min_total_level,omitempty"`
	MinTrainingRuns int                `yaml:"min_training_runs,omitempty" json:"min_training_runs,omitempty"`
}

func (c ConditionDef) empty() bool {
	return len(c.MinLevels) == 0 && len(c.MinResources) == 0 &&
		c.MinIntelligence == 0 && c.MinTotalLevel == 0 && c.MinTrainingRuns == 0
}

type EffectDef struct {
	ProductionMult    map[string]float64 `yaml:"production_mult,omitempty" json:"production_mult,omitempty"`
	IntelligenceMult  float64            `yaml:"intelligence_mult,omitempty" json:"intelligence_mult,omitempty"`
	CapacityMult      float64            `yaml:"capacity_mult,omitempty" json:"capacity_mult,omitempty"`
	TrainingSpeedMult float64            `yaml:"training_speed_mult,omitempty" json:"training_speed_mult,omitempty"`
	Capability        string             `yaml:"capability,omitempty" json:"capability,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBreakthroughs(filepath.Join(configDir, "breakthroughs.yaml"), &c.Breakthroughs); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *BreakthroughCatalog) Get(id string) (BreakthroughDef, bool) {
	i, ok := c.Index[id]
	if !ok {
		return BreakthroughDef{}, false
	}
	return c.Defs[i], true
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

var resourceNames = map[string]bool{"compute": true, "data": true, "algorithm": true}

func loadBreakthroughs(path string, out *BreakthroughCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var file struct {
		Breakthroughs []BreakthroughDef `yaml:"breakthroughs"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("breakthroughs.yaml: %w", err)
	}
	return out.set(file.Breakthroughs)
}

// NewBreakthroughCatalog builds a catalog from in-memory definitions (tests, tools).
func NewBreakthroughCatalog(defs []BreakthroughDef) (*BreakthroughCatalog, error) {
	c := &BreakthroughCatalog{Digest: sha256Hex(nil)}
	if err := c.set(defs); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *BreakthroughCatalog) set(defs []BreakthroughDef) error {
	c.Defs = make([]BreakthroughDef, 0, len(defs))
	c.Index = make(map[string]int, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("breakthroughs.yaml: empty id")
		}
		if _, dup := c.Index[d.ID]; dup {
			return fmt.Errorf("breakthroughs.yaml: duplicate id %s", d.ID)
		}
		switch d.Type {
		case "compute", "data", "algorithm", "combined":
		default:
			return fmt.Errorf("breakthroughs.yaml: %s: unknown type %q", d.ID, d.Type)
		}
		if d.Condition.empty() {
			return fmt.Errorf("breakthroughs.yaml: %s: empty condition", d.ID)
		}
		for r := range d.Condition.MinLevels {
			if !resourceNames[r] {
				return fmt.Errorf("breakthroughs.yaml: %s: unknown resource %q", d.ID, r)
			}
		}
		for r := range d.Condition.MinResources {
			if !resourceNames[r] {
				return fmt.Errorf("breakthroughs.yaml: %s: unknown resource %q", d.ID, r)
			}
		}
		for r, m := range d.Effect.ProductionMult {
			if !resourceNames[r] {
				return fmt.Errorf("breakthroughs.yaml: %s: unknown resource %q", d.ID, r)
			}
			if m <= 0 {
				return fmt.Errorf("breakthroughs.yaml: %s: production_mult must be > 0", d.ID)
			}
		}
		if d.Effect.IntelligenceMult < 0 || d.Effect.CapacityMult < 0 || d.Effect.TrainingSpeedMult < 0 {
			return fmt.Errorf("breakthroughs.yaml: %s: negative multiplier", d.ID)
		}
		c.Index[d.ID] = len(c.Defs)
		c.Defs = append(c.Defs, d)
	}
	return nil
}
