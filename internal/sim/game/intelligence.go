package game

import (
	"math"

	"agirush.ai/internal/sim/tuning"
)

// PassiveIntelligence evaluates the aggregate for a resource mix. For equal
// total spend an even split scores higher than a concentrated one.
func PassiveIntelligence(spec tuning.IntelligenceSpec, levels Levels, res Amounts, mult float64) float64 {
	terms := make([]float64, 0, len(Resources))
	sum := 0.0
	for _, r := range Resources {
		t := spec.Weights[string(r)] * float64(levels.At(r)) * math.Log1p(res.At(r)/spec.ResourceScale)
		if t < 0 {
			t = 0
		}
		terms = append(terms, t)
		sum += t
	}
	if sum <= 0 {
		return 0
	}
	return spec.Scale * math.Pow(sum, spec.Exponent) * (spec.BalanceFloor + (1-spec.BalanceFloor)*balance(terms)) * mult
}

// balance is geometric mean over arithmetic mean: 1 for equal terms, 0 when
// any term is zero.
func balance(terms []float64) float64 {
	if len(terms) == 0 {
		return 0
	}
	logSum, sum := 0.0, 0.0
	for _, t := range terms {
		if t <= 0 {
			return 0
		}
		logSum += math.Log(t)
		sum += t
	}
	n := float64(len(terms))
	return math.Exp(logSum/n) / (sum / n)
}

func (e *Engine) stepIntelligence() {
	s := e.state
	s.PassiveIntelligence = PassiveIntelligence(e.tu.Intelligence, s.Levels, s.Resources, s.Multipliers.Intelligence)
	if v := s.PassiveIntelligence + s.TrainingBonus; v > s.Intelligence {
		s.Intelligence = v
	}
}
