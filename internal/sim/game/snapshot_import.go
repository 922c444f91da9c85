package game

import (
	"fmt"
	"math"

	"agirush.ai/internal/persistence/snapshot"
)

// ImportSnapshot replaces the session with snap. The engine keeps its
// catalog; the tuning captured in the snapshot takes over. The clock is left
// paused.
func (e *Engine) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if err := snap.Tuning.Validate(); err != nil {
		return fmt.Errorf("snapshot tuning: %w", err)
	}
	if err := checkSnapshotInvariants(snap); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if d := e.CatalogDigest(); snap.CatalogDigest != "" && d != "" && snap.CatalogDigest != d {
		e.logger.Printf("snapshot catalog digest %s differs from loaded %s", snap.CatalogDigest, d)
	}

	prevTuning := e.tu
	e.tu = snap.Tuning
	s := e.newState()
	e.tu = prevTuning

	s.RunID = snap.Header.RunID
	s.Tick = snap.Header.Tick
	s.PlayerName = snap.PlayerName
	s.ElapsedSeconds = snap.ElapsedSeconds
	s.Intelligence = snap.Intelligence
	s.PassiveIntelligence = snap.PassiveIntelligence
	s.TrainingBonus = snap.TrainingBonus
	s.Money = snap.Money
	s.PeakMoney = snap.PeakMoney

	s.Resources = amountsFromV1(snap.Resources)
	s.Production = amountsFromV1(snap.Production)
	s.InvestCosts = amountsFromV1(snap.InvestCosts)
	s.Levels = Levels{Compute: snap.Levels.Compute, Data: snap.Levels.Data, Algorithm: snap.Levels.Algorithm}
	s.Inputs = map[string]int{}
	for k, v := range snap.Inputs {
		s.Inputs[k] = v
	}

	c := snap.Capacity
	s.Capacity = ComputeCapacity{
		MaxCapacity:    c.MaxCapacity,
		Used:           c.Used,
		CustomerUsage:  c.CustomerUsage,
		Reserved:       c.Reserved,
		FreeCompute:    c.FreeCompute,
		Demand:         c.Demand,
		ServedFraction: c.ServedFraction,
	}
	t := snap.Training
	switch TrainingPhase(t.Phase) {
	case TrainingIdle, TrainingReserved, TrainingRunning, TrainingCompleted:
	default:
		return fmt.Errorf("snapshot: unknown training phase %q", t.Phase)
	}
	s.Training = TrainingRun{
		Phase:           TrainingPhase(t.Phase),
		ComputeReserved: t.ComputeReserved,
		MoneyCost:       t.MoneyCost,
		Duration:        t.Duration,
		Remaining:       t.Remaining,
		LastGain:        t.LastGain,
	}
	r := snap.Revenue
	s.Revenue = Revenue{
		B2BEnabled:         r.B2BEnabled,
		B2CEnabled:         r.B2CEnabled,
		B2BUsage:           r.B2BUsage,
		B2CSubscribers:     r.B2CSubscribers,
		B2BRate:            r.B2BRate,
		B2CRate:            r.B2CRate,
		B2BTotal:           r.B2BTotal,
		B2CTotal:           r.B2CTotal,
		InvestorsTotal:     r.InvestorsTotal,
		PeakB2BUsage:       r.PeakB2BUsage,
		PeakB2CSubscribers: r.PeakB2CSubscribers,
		Advertising:        r.Advertising,
		ToolImprovements:   r.ToolImprovements,
	}
	m := snap.Multipliers
	s.Multipliers = Multipliers{
		Production:    amountsFromV1(m.Production),
		Intelligence:  m.Intelligence,
		Capacity:      m.Capacity,
		TrainingSpeed: m.TrainingSpeed,
	}

	for _, name := range snap.Capabilities {
		if s.Capabilities == nil {
			s.Capabilities = map[string]bool{}
		}
		s.Capabilities[name] = true
	}
	for _, f := range snap.NarrativeFlags {
		if s.NarrativeFlags == nil {
			s.NarrativeFlags = map[string]bool{}
		}
		s.NarrativeFlags[f] = true
	}
	for _, u := range snap.Unlocked {
		b := s.breakthrough(u.ID)
		if b == nil {
			return fmt.Errorf("snapshot: breakthrough %q not in catalog", u.ID)
		}
		if b.Unlocked {
			return fmt.Errorf("snapshot: breakthrough %q unlocked twice", u.ID)
		}
		b.Unlocked = true
		b.UnlockedTick = u.Tick
		s.UnlockedOrder = append(s.UnlockedOrder, u.ID)
	}

	s.Era = Era(snap.Era)
	s.AGIReached = snap.AGIReached
	s.AGIReachedTick = snap.AGIReachedTick
	s.TrainingRunsCompleted = snap.TrainingRunsCompleted

	e.tu = snap.Tuning
	if e.eraIndex(s.Era) < 0 {
		e.tu = prevTuning
		return fmt.Errorf("snapshot: unknown era %q", snap.Era)
	}
	e.running = false
	e.pending = nil
	e.logCarry = nil
	e.state = s
	e.updateGoal()
	e.tick.Store(s.Tick)
	e.storeMetrics(0)
	return nil
}

// checkSnapshotInvariants rejects images no tick sequence could produce.
func checkSnapshotInvariants(snap snapshot.SnapshotV1) error {
	maxLevel := snap.Tuning.MaxLevel
	levels := map[string]int{"compute": snap.Levels.Compute, "data": snap.Levels.Data, "algorithm": snap.Levels.Algorithm}
	for name, l := range levels {
		if l < 1 || l > maxLevel {
			return fmt.Errorf("level %s=%d outside [1,%d]", name, l, maxLevel)
		}
	}

	type field struct {
		name string
		v    float64
	}
	nonNeg := []field{
		{"elapsed_seconds", snap.ElapsedSeconds},
		{"intelligence", snap.Intelligence},
		{"passive_intelligence", snap.PassiveIntelligence},
		{"training_bonus", snap.TrainingBonus},
		{"money", snap.Money},
		{"peak_money", snap.PeakMoney},
		{"resources.compute", snap.Resources.Compute},
		{"resources.data", snap.Resources.Data},
		{"resources.algorithm", snap.Resources.Algorithm},
		{"production.compute", snap.Production.Compute},
		{"production.data", snap.Production.Data},
		{"production.algorithm", snap.Production.Algorithm},
		{"capacity.max_capacity", snap.Capacity.MaxCapacity},
		{"capacity.used", snap.Capacity.Used},
		{"capacity.customer_usage", snap.Capacity.CustomerUsage},
		{"capacity.reserved", snap.Capacity.Reserved},
		{"capacity.free_compute", snap.Capacity.FreeCompute},
		{"revenue.b2b_usage", snap.Revenue.B2BUsage},
		{"revenue.b2c_subscribers", snap.Revenue.B2CSubscribers},
		{"training.remaining", snap.Training.Remaining},
	}
	for _, f := range nonNeg {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return fmt.Errorf("%s=%v must be a finite value >= 0", f.name, f.v)
		}
	}
	positive := []field{
		{"invest_costs.compute", snap.InvestCosts.Compute},
		{"invest_costs.data", snap.InvestCosts.Data},
		{"invest_costs.algorithm", snap.InvestCosts.Algorithm},
		{"multipliers.production.compute", snap.Multipliers.Production.Compute},
		{"multipliers.production.data", snap.Multipliers.Production.Data},
		{"multipliers.production.algorithm", snap.Multipliers.Production.Algorithm},
		{"multipliers.intelligence", snap.Multipliers.Intelligence},
		{"multipliers.capacity", snap.Multipliers.Capacity},
		{"multipliers.training_speed", snap.Multipliers.TrainingSpeed},
	}
	for _, f := range positive {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
			return fmt.Errorf("%s=%v must be a finite value > 0", f.name, f.v)
		}
	}

	for k, v := range snap.Inputs {
		if v < 0 {
			return fmt.Errorf("input %s level %d < 0", k, v)
		}
	}
	if snap.Revenue.Advertising < 0 || snap.Revenue.ToolImprovements < 0 {
		return fmt.Errorf("negative marketing level")
	}
	if snap.AppliedCommands < 0 {
		return fmt.Errorf("applied_commands=%d < 0", snap.AppliedCommands)
	}
	return nil
}
