package game

import "math"

func (e *Engine) maxCapacity() float64 {
	s := e.state
	c := e.tu.Capacity
	hw := float64(s.InputLevel(Compute, "hardware"))
	return c.Base * (1 + c.PerHardware*hw) * (1 + c.PerComputeLevel*float64(s.Levels.Compute-1)) * s.Multipliers.Capacity
}

func (e *Engine) customerDemand() float64 {
	rv := e.state.Revenue
	return rv.B2BUsage*e.tu.Revenue.B2B.ComputePerUnit + rv.B2CSubscribers*e.tu.Revenue.B2C.ComputePerUnit
}

// stepAllocation moves the training run through its boundary transitions and
// then splits capacity between customers and the reservation.
func (e *Engine) stepAllocation() {
	tr := &e.state.Training
	switch tr.Phase {
	case TrainingCompleted:
		*tr = TrainingRun{Phase: TrainingIdle, LastGain: tr.LastGain}
	case TrainingReserved:
		tr.Phase = TrainingRunning
		e.emit(Event{Type: EventTrainingStarted, Amount: tr.ComputeReserved})
	}
	e.refreshCapacity()
}

func (e *Engine) refreshCapacity() {
	s := e.state
	c := &s.Capacity
	c.MaxCapacity = e.maxCapacity()
	c.Demand = e.customerDemand()
	c.CustomerUsage = math.Min(c.Demand, c.MaxCapacity)
	c.Reserved = 0
	if s.Training.Phase.Active() {
		c.Reserved = s.Training.ComputeReserved
	}
	c.Used = math.Min(c.MaxCapacity, c.CustomerUsage+c.Reserved)
	c.FreeCompute = c.MaxCapacity - c.Used
	if c.FreeCompute < 0 {
		c.FreeCompute = 0
	}
	c.ServedFraction = 1
	if c.Demand > 0 {
		c.ServedFraction = c.CustomerUsage / c.Demand
	}
}

// trainingAvailability is the fraction of the reservation actually backed by
// capacity once customers are served.
func (e *Engine) trainingAvailability() float64 {
	c := e.state.Capacity
	want := e.state.Training.ComputeReserved
	if want <= 0 {
		return 1
	}
	avail := c.MaxCapacity - c.CustomerUsage
	if avail <= 0 {
		return 0
	}
	return math.Min(1, avail/want)
}
