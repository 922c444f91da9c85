package game

type narrativeRule struct {
	flag    string
	message string
	when    func(e *Engine) bool
}

// Flags are set once and never cleared; presentation layers map them to copy.
var narrativeRules = []narrativeRule{
	{
		flag:    "first_purchase",
		message: "The lab makes its first investment.",
		when: func(e *Engine) bool {
			for _, n := range e.state.Inputs {
				if n > 0 {
					return true
				}
			}
			return false
		},
	},
	{
		flag:    "first_revenue",
		message: "Customers are paying for the model.",
		when: func(e *Engine) bool {
			return e.state.Revenue.B2BTotal+e.state.Revenue.B2CTotal > 0
		},
	},
	{
		flag:    "capacity_strained",
		message: "Demand exceeds compute capacity; some customers are turned away.",
		when:    func(e *Engine) bool { return e.state.Capacity.ServedFraction < 1 },
	},
	{
		flag:    "first_training_run",
		message: "The first training run is complete.",
		when:    func(e *Engine) bool { return e.state.TrainingRunsCompleted > 0 },
	},
	{
		flag:    "all_max_level",
		message: "Every resource is at its maximum level.",
		when: func(e *Engine) bool {
			l := e.state.Levels
			m := e.tu.MaxLevel
			return l.Compute >= m && l.Data >= m && l.Algorithm >= m
		},
	},
	{
		flag:    "halfway_to_agi",
		message: "Halfway to AGI.",
		when:    func(e *Engine) bool { return e.state.Intelligence >= e.tu.AGIThreshold/2 },
	},
}

func (e *Engine) stepNarrative() {
	s := e.state
	for _, r := range narrativeRules {
		if s.NarrativeFlags[r.flag] || !r.when(e) {
			continue
		}
		if s.NarrativeFlags == nil {
			s.NarrativeFlags = map[string]bool{}
		}
		s.NarrativeFlags[r.flag] = true
		e.emit(Event{Type: EventNotice, Flag: r.flag, Message: r.message})
	}
}
