package game

import "agirush.ai/internal/sim/catalogs"

// Condition is a conjunction; zero-valued fields are ignored.
type Condition struct {
	MinLevels       map[Resource]int
	MinResources    map[Resource]float64
	MinIntelligence float64
	MinTotalLevel   int
	MinTrainingRuns int
}

func (c Condition) Met(s *GameState) bool {
	for r, min := range c.MinLevels {
		if s.Levels.At(r) < min {
			return false
		}
	}
	for r, min := range c.MinResources {
		if s.Resources.At(r) < min {
			return false
		}
	}
	if s.Intelligence < c.MinIntelligence {
		return false
	}
	if s.Levels.Total() < c.MinTotalLevel {
		return false
	}
	return s.TrainingRunsCompleted >= c.MinTrainingRuns
}

func (c Condition) clone() Condition {
	out := c
	if c.MinLevels != nil {
		out.MinLevels = make(map[Resource]int, len(c.MinLevels))
		for k, v := range c.MinLevels {
			out.MinLevels[k] = v
		}
	}
	if c.MinResources != nil {
		out.MinResources = make(map[Resource]float64, len(c.MinResources))
		for k, v := range c.MinResources {
			out.MinResources[k] = v
		}
	}
	return out
}

func conditionFromDef(d catalogs.ConditionDef) Condition {
	c := Condition{
		MinIntelligence: d.MinIntelligence,
		MinTotalLevel:   d.MinTotalLevel,
		MinTrainingRuns: d.MinTrainingRuns,
	}
	if len(d.MinLevels) > 0 {
		c.MinLevels = map[Resource]int{}
		for k, v := range d.MinLevels {
			c.MinLevels[Resource(k)] = v
		}
	}
	if len(d.MinResources) > 0 {
		c.MinResources = map[Resource]float64{}
		for k, v := range d.MinResources {
			c.MinResources[Resource(k)] = v
		}
	}
	return c
}

type Effect struct {
	ProductionMult    map[Resource]float64
	IntelligenceMult  float64
	CapacityMult      float64
	TrainingSpeedMult float64
	Capability        string
}

func (f Effect) clone() Effect {
	out := f
	if f.ProductionMult != nil {
		out.ProductionMult = make(map[Resource]float64, len(f.ProductionMult))
		for k, v := range f.ProductionMult {
			out.ProductionMult[k] = v
		}
	}
	return out
}

func effectFromDef(d catalogs.EffectDef) Effect {
	f := Effect{
		IntelligenceMult:  d.IntelligenceMult,
		CapacityMult:      d.CapacityMult,
		TrainingSpeedMult: d.TrainingSpeedMult,
		Capability:        d.Capability,
	}
	if len(d.ProductionMult) > 0 {
		f.ProductionMult = map[Resource]float64{}
		for k, v := range d.ProductionMult {
			f.ProductionMult[Resource(k)] = v
		}
	}
	return f
}

func (e *Engine) applyEffect(f Effect) {
	s := e.state
	m := &s.Multipliers
	// Iterate in fixed resource order so float products are reproducible.
	for _, r := range Resources {
		if v, ok := f.ProductionMult[r]; ok {
			*m.Production.Ptr(r) *= v
		}
	}
	if f.IntelligenceMult > 0 {
		m.Intelligence *= f.IntelligenceMult
	}
	if f.CapacityMult > 0 {
		m.Capacity *= f.CapacityMult
	}
	if f.TrainingSpeedMult > 0 {
		m.TrainingSpeed *= f.TrainingSpeedMult
	}
	if f.Capability != "" {
		if s.Capabilities == nil {
			s.Capabilities = map[string]bool{}
		}
		s.Capabilities[f.Capability] = true
	}
}

// stepBreakthroughs evaluates locked breakthroughs in catalog order.
func (e *Engine) stepBreakthroughs() {
	s := e.state
	for i := range s.Breakthroughs {
		b := &s.Breakthroughs[i]
		if b.Unlocked || !b.Condition.Met(s) {
			continue
		}
		e.unlock(b.ID)
	}
}

// unlock flips a breakthrough on and applies its effect. Unlocking an already
// unlocked or unknown id reports false and changes nothing.
func (e *Engine) unlock(id string) bool {
	s := e.state
	b := s.breakthrough(id)
	if b == nil || b.Unlocked {
		return false
	}
	b.Unlocked = true
	b.UnlockedTick = s.Tick
	s.UnlockedOrder = append(s.UnlockedOrder, id)
	e.applyEffect(b.Effect)
	e.updateGoal()
	e.emit(Event{Type: EventBreakthroughUnlocked, Breakthrough: id, Message: b.Name})
	return true
}

func (e *Engine) updateGoal() {
	s := e.state
	s.CurrentGoal = ""
	for _, b := range s.Breakthroughs {
		if !b.Unlocked {
			s.CurrentGoal = b.ID
			return
		}
	}
}
