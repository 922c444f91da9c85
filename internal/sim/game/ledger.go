package game

// stepProduction accrues one tick of output. Algorithm research also draws on
// the compute left free by the previous allocation.
func (e *Engine) stepProduction(dt float64) {
	s := e.state
	e.recomputeProduction()
	for _, r := range Resources {
		*s.Resources.Ptr(r) += s.Production.At(r) * dt
	}
}

func (e *Engine) recomputeProduction() {
	s := e.state
	for _, r := range Resources {
		rate := e.tu.Resources[string(r)].BaseRate
		for _, in := range e.tu.Inputs {
			if in.Resource != string(r) {
				continue
			}
			rate *= inputMultiplier(in.Curve, in.Step, s.Inputs[inputKey(r, in.Name)])
		}
		rate *= 1 + e.tu.LevelRateBonus*float64(s.Levels.At(r)-1)
		rate *= s.Multipliers.Production.At(r)
		if r == Algorithm {
			rate += s.Capacity.FreeCompute * e.tu.FreeComputeResearchRate
		}
		*s.Production.Ptr(r) = rate
	}
}

// stepLeveling converts stockpiles into levels, at most one level per resource per tick.
func (e *Engine) stepLeveling() {
	s := e.state
	for _, r := range Resources {
		lvl := s.Levels.Ptr(r)
		if *lvl >= e.tu.MaxLevel {
			continue
		}
		cost := s.InvestCosts.At(r)
		res := s.Resources.Ptr(r)
		if *res < cost {
			continue
		}
		*res -= cost
		if *res < 0 {
			*res = 0
		}
		*lvl++
		*s.InvestCosts.Ptr(r) = cost * e.tu.LevelCostGrowth
		e.emit(Event{Type: EventLevelUp, Resource: r, Level: *lvl})
	}
}
