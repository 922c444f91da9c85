package game

import (
	"sort"

	"agirush.ai/internal/sim/catalogs"
)

type Resource string

const (
	Compute   Resource = "compute"
	Data      Resource = "data"
	Algorithm Resource = "algorithm"
)

// Resources lists the three resources in evaluation order.
var Resources = []Resource{Compute, Data, Algorithm}

func ParseResource(s string) (Resource, bool) {
	switch Resource(s) {
	case Compute, Data, Algorithm:
		return Resource(s), true
	}
	return "", false
}

type Amounts struct {
	Compute   float64 `json:"compute"`
	Data      float64 `json:"data"`
	Algorithm float64 `json:"algorithm"`
}

func (a Amounts) At(r Resource) float64 {
	switch r {
	case Compute:
		return a.Compute
	case Data:
		return a.Data
	case Algorithm:
		return a.Algorithm
	}
	return 0
}

func (a *Amounts) Ptr(r Resource) *float64 {
	switch r {
	case Compute:
		return &a.Compute
	case Data:
		return &a.Data
	case Algorithm:
		return &a.Algorithm
	}
	return nil
}

type Levels struct {
	Compute   int `json:"compute"`
	Data      int `json:"data"`
	Algorithm int `json:"algorithm"`
}

func (l Levels) At(r Resource) int {
	switch r {
	case Compute:
		return l.Compute
	case Data:
		return l.Data
	case Algorithm:
		return l.Algorithm
	}
	return 0
}

func (l *Levels) Ptr(r Resource) *int {
	switch r {
	case Compute:
		return &l.Compute
	case Data:
		return &l.Data
	case Algorithm:
		return &l.Algorithm
	}
	return nil
}

func (l Levels) Total() int { return l.Compute + l.Data + l.Algorithm }

type Era string

const (
	EraGNT2 Era = "GNT2"
	EraGNT3 Era = "GNT3"
	EraGNT4 Era = "GNT4"
	EraAGI  Era = "AGI"
)

type TrainingPhase string

const (
	TrainingIdle      TrainingPhase = "idle"
	TrainingReserved  TrainingPhase = "reserved"
	TrainingRunning   TrainingPhase = "running"
	TrainingCompleted TrainingPhase = "completed"
)

// Active reports whether the run holds a compute reservation.
func (p TrainingPhase) Active() bool { return p == TrainingReserved || p == TrainingRunning }

type ComputeCapacity struct {
	MaxCapacity    float64 `json:"max_capacity"`
	Used           float64 `json:"used"`
	CustomerUsage  float64 `json:"customer_usage"`
	Reserved       float64 `json:"reserved"`
	FreeCompute    float64 `json:"free_compute"`
	Demand         float64 `json:"demand"`
	ServedFraction float64 `json:"served_fraction"`
}

type TrainingRun struct {
	Phase           TrainingPhase `json:"phase"`
	ComputeReserved float64       `json:"compute_reserved"`
	MoneyCost       float64       `json:"money_cost"`
	Duration        float64       `json:"duration"`
	Remaining       float64       `json:"remaining"`
	LastGain        float64       `json:"last_gain,omitempty"`
}

// Progress is the completed fraction in [0,1].
func (t TrainingRun) Progress() float64 {
	if t.Duration <= 0 {
		return 0
	}
	p := 1 - t.Remaining/t.Duration
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

type Revenue struct {
	B2BEnabled     bool    `json:"b2b_enabled"`
	B2CEnabled     bool    `json:"b2c_enabled"`
	B2BUsage       float64 `json:"b2b_usage"`
	B2CSubscribers float64 `json:"b2c_subscribers"`

	// Money per second earned by each stream on the last tick.
	B2BRate float64 `json:"b2b_rate"`
	B2CRate float64 `json:"b2c_rate"`

	B2BTotal       float64 `json:"b2b_total"`
	B2CTotal       float64 `json:"b2c_total"`
	InvestorsTotal float64 `json:"investors_total"`

	PeakB2BUsage       float64 `json:"peak_b2b_usage"`
	PeakB2CSubscribers float64 `json:"peak_b2c_subscribers"`

	Advertising      int `json:"advertising"`
	ToolImprovements int `json:"tool_improvements"`
}

type Multipliers struct {
	Production    Amounts `json:"production"`
	Intelligence  float64 `json:"intelligence"`
	Capacity      float64 `json:"capacity"`
	TrainingSpeed float64 `json:"training_speed"`
}

func unitMultipliers() Multipliers {
	return Multipliers{
		Production:    Amounts{Compute: 1, Data: 1, Algorithm: 1},
		Intelligence:  1,
		Capacity:      1,
		TrainingSpeed: 1,
	}
}

type Breakthrough struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Type              string    `json:"type"`
	RealWorldParallel string    `json:"real_world_parallel,omitempty"`
	Condition         Condition `json:"-"`
	Effect            Effect    `json:"-"`
	Unlocked          bool      `json:"unlocked"`
	UnlockedTick      uint64    `json:"unlocked_tick,omitempty"`
}

// GameState is the whole session. It is owned by one Engine and must only be
// touched from the goroutine driving that engine.
type GameState struct {
	RunID      string `json:"run_id"`
	PlayerName string `json:"player_name,omitempty"`

	Tick           uint64  `json:"tick"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`

	Intelligence        float64 `json:"intelligence"`
	PassiveIntelligence float64 `json:"passive_intelligence"`
	TrainingBonus       float64 `json:"training_bonus"`

	Money     float64 `json:"money"`
	PeakMoney float64 `json:"peak_money"`

	Resources   Amounts `json:"resources"`
	Production  Amounts `json:"production"`
	InvestCosts Amounts `json:"invest_costs"`
	Levels      Levels  `json:"levels"`

	// Inputs maps "<resource>.<input>" to the number of purchases made.
	Inputs map[string]int `json:"inputs"`

	Capacity    ComputeCapacity `json:"compute_capacity"`
	Training    TrainingRun     `json:"training"`
	Revenue     Revenue         `json:"revenue"`
	Multipliers Multipliers     `json:"multipliers"`

	Breakthroughs  []Breakthrough  `json:"breakthroughs"`
	UnlockedOrder  []string        `json:"unlocked_order,omitempty"`
	CurrentGoal    string          `json:"current_goal,omitempty"`
	Capabilities   map[string]bool `json:"capabilities,omitempty"`
	NarrativeFlags map[string]bool `json:"narrative_flags,omitempty"`

	Era            Era    `json:"era"`
	AGIReached     bool   `json:"agi_reached"`
	AGIReachedTick uint64 `json:"agi_reached_tick,omitempty"`

	TrainingRunsCompleted int `json:"training_runs_completed"`
}

func inputKey(r Resource, name string) string { return string(r) + "." + name }

// InputLevel is how many times resource.name has been bought.
func (s *GameState) InputLevel(r Resource, name string) int { return s.Inputs[inputKey(r, name)] }

func (s *GameState) HasCapability(c string) bool { return s.Capabilities[c] }

func (s *GameState) UnlockedCount() int { return len(s.UnlockedOrder) }

func (s *GameState) breakthrough(id string) *Breakthrough {
	for i := range s.Breakthroughs {
		if s.Breakthroughs[i].ID == id {
			return &s.Breakthroughs[i]
		}
	}
	return nil
}

// Clone returns a deep copy that is safe to hand to other goroutines.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	c := *s
	c.Inputs = copyIntMap(s.Inputs)
	c.Capabilities = copyBoolMap(s.Capabilities)
	c.NarrativeFlags = copyBoolMap(s.NarrativeFlags)
	c.Breakthroughs = append([]Breakthrough(nil), s.Breakthroughs...)
	for i := range c.Breakthroughs {
		c.Breakthroughs[i].Condition = s.Breakthroughs[i].Condition.clone()
		c.Breakthroughs[i].Effect = s.Breakthroughs[i].Effect.clone()
	}
	c.UnlockedOrder = append([]string(nil), s.UnlockedOrder...)
	return &c
}

func copyIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedTrue(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func breakthroughsFromCatalog(cat *catalogs.BreakthroughCatalog) []Breakthrough {
	if cat == nil {
		return nil
	}
	out := make([]Breakthrough, 0, len(cat.Defs))
	for _, d := range cat.Defs {
		out = append(out, Breakthrough{
			ID:                d.ID,
			Name:              d.Name,
			Description:       d.Description,
			Type:              d.Type,
			RealWorldParallel: d.RealWorldParallel,
			Condition:         conditionFromDef(d.Condition),
			Effect:            effectFromDef(d.Effect),
		})
	}
	return out
}
