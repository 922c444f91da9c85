package game

func (e *Engine) eraIndex(era Era) int {
	for i, es := range e.tu.Eras {
		if Era(es.Era) == era {
			return i
		}
	}
	return -1
}

// stepEra advances through every threshold crossed this tick, lowest first.
func (e *Engine) stepEra() {
	s := e.state
	for i := e.eraIndex(s.Era) + 1; i < len(e.tu.Eras); i++ {
		next := e.tu.Eras[i]
		if s.Intelligence < next.Threshold {
			return
		}
		from := s.Era
		s.Era = Era(next.Era)
		e.emit(Event{Type: EventEraAdvanced, FromEra: from, Era: s.Era})
		if next.InvestorGrant > 0 {
			s.Money += next.InvestorGrant
			s.Revenue.InvestorsTotal += next.InvestorGrant
		}
		if s.Era == EraAGI && !s.AGIReached {
			s.AGIReached = true
			s.AGIReachedTick = s.Tick
			e.emit(Event{Type: EventAGIReached, Amount: s.Intelligence})
			e.agiThisTick = true
		}
	}
}
