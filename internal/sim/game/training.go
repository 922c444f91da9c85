package game

import (
	"fmt"
	"math"
)

type trainingPlan struct {
	duration    float64
	computeCost float64
	moneyCost   float64
}

func (e *Engine) startTraining(p trainingPlan) error {
	s := e.state
	if p.duration <= 0 || p.computeCost <= 0 || p.moneyCost < 0 ||
		math.IsNaN(p.duration) || math.IsNaN(p.computeCost) || math.IsNaN(p.moneyCost) {
		return fmt.Errorf("%w: training needs duration > 0, compute_cost > 0, money_cost >= 0", ErrBadRequest)
	}
	if s.Training.Phase.Active() {
		return fmt.Errorf("training: %w (%s)", ErrAlreadyRunning, s.Training.Phase)
	}
	if s.Money < p.moneyCost {
		return fmt.Errorf("%w: training costs %.2f, have %.2f", ErrInsufficientFunds, p.moneyCost, s.Money)
	}
	if s.Capacity.CustomerUsage+p.computeCost > s.Capacity.MaxCapacity {
		return fmt.Errorf("%w: need %.2f, %.2f of %.2f in use by customers",
			ErrInsufficientCapacity, p.computeCost, s.Capacity.CustomerUsage, s.Capacity.MaxCapacity)
	}
	s.Money -= p.moneyCost
	s.Training = TrainingRun{
		Phase:           TrainingReserved,
		ComputeReserved: p.computeCost,
		MoneyCost:       p.moneyCost,
		Duration:        p.duration,
		Remaining:       p.duration,
		LastGain:        s.Training.LastGain,
	}
	e.refreshCapacity()
	return nil
}

// TrainingGain is the lump intelligence awarded when a run finishes.
func (e *Engine) TrainingGain(duration, computeCost float64) float64 {
	t := e.tu.Training
	return t.GainPerComputeSecond * computeCost * duration * (1 + t.AlgorithmLevelBonus*float64(e.state.Levels.Algorithm-1))
}

func (e *Engine) stepTraining(dt float64) {
	s := e.state
	tr := &s.Training
	if tr.Phase != TrainingRunning {
		return
	}
	tr.Remaining -= dt * e.trainingAvailability() * s.Multipliers.TrainingSpeed
	if tr.Remaining > 0 {
		return
	}
	gain := e.TrainingGain(tr.Duration, tr.ComputeReserved)
	tr.Remaining = 0
	tr.Phase = TrainingCompleted
	tr.LastGain = gain
	s.TrainingBonus += gain
	s.TrainingRunsCompleted++
	e.refreshCapacity()
	e.emit(Event{Type: EventTrainingCompleted, Amount: gain})
}
