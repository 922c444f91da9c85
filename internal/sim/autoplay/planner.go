// Package autoplay chooses gameplay commands from a state view. It drives the
// headless balance tool, the websocket bot and long-running engine tests.
package autoplay

import (
	"math"

	"agirush.ai/internal/sim/game"
	"agirush.ai/internal/sim/tuning"
)

type Planner struct {
	Tuning tuning.Tuning

	// TrainingPreset is started whenever no run is active; empty disables training.
	TrainingPreset string
	// Reserve is money kept back from input purchases as a multiple of the
	// cheapest input price, so training can still be afforded.
	Reserve float64
}

func New(tu tuning.Tuning) Planner {
	return Planner{Tuning: tu, TrainingPreset: "small", Reserve: 0}
}

// Next returns the single most useful affordable command, or false when the
// planner would rather wait.
func (p Planner) Next(s *game.GameState) (game.Command, bool) {
	if s == nil || s.AGIReached {
		return game.Command{}, false
	}
	if !s.Revenue.B2BEnabled {
		return game.Command{Type: game.CmdSetRevenue, Stream: game.StreamB2B, Enabled: true}, true
	}
	if !s.Revenue.B2CEnabled && s.HasCapability(game.CapabilityConsumerApp) {
		return game.Command{Type: game.CmdSetRevenue, Stream: game.StreamB2C, Enabled: true}, true
	}
	if cmd, ok := p.training(s); ok {
		return cmd, true
	}
	if cmd, ok := p.input(s); ok {
		return cmd, true
	}
	return p.marketing(s)
}

func (p Planner) training(s *game.GameState) (game.Command, bool) {
	if p.TrainingPreset == "" || s.Training.Phase.Active() {
		return game.Command{}, false
	}
	plan, ok := p.Tuning.Preset(p.TrainingPreset)
	if !ok || s.Money < plan.MoneyCost {
		return game.Command{}, false
	}
	if s.Capacity.CustomerUsage+plan.ComputeCost > s.Capacity.MaxCapacity {
		return game.Command{}, false
	}
	return game.Command{Type: game.CmdStartTraining, Preset: plan.Name}, true
}

// input buys for the resource contributing least to intelligence, keeping the
// mix balanced.
func (p Planner) input(s *game.GameState) (game.Command, bool) {
	weakest := game.Resource("")
	weakestScore := math.Inf(1)
	for _, r := range game.Resources {
		score := p.Tuning.Intelligence.Weights[string(r)] * float64(s.Levels.At(r)) * math.Log1p(s.Resources.At(r)/p.Tuning.Intelligence.ResourceScale)
		if score < weakestScore {
			weakest, weakestScore = r, score
		}
	}
	name, price := p.cheapestInput(s, weakest)
	if name == "" {
		return game.Command{}, false
	}
	if s.Money < price*(1+p.Reserve) {
		return game.Command{}, false
	}
	return game.Command{Type: game.CmdAllocate, Resource: weakest, Input: name}, true
}

func (p Planner) cheapestInput(s *game.GameState, r game.Resource) (string, float64) {
	best, bestPrice := "", math.Inf(1)
	for _, in := range p.Tuning.Inputs {
		if in.Resource != string(r) {
			continue
		}
		price := in.BaseCost * math.Pow(in.CostGrowth, float64(s.InputLevel(r, in.Name)))
		if price < bestPrice {
			best, bestPrice = in.Name, price
		}
	}
	return best, bestPrice
}

func (p Planner) marketing(s *game.GameState) (game.Command, bool) {
	type option struct {
		action game.MarketingAction
		spec   tuning.MarketingSpec
		level  int
		stream bool
	}
	opts := []option{
		{game.MarketingImproveTools, p.Tuning.Revenue.ToolImprovements, s.Revenue.ToolImprovements, s.Revenue.B2BEnabled},
		{game.MarketingAdvertise, p.Tuning.Revenue.Advertising, s.Revenue.Advertising, s.Revenue.B2CEnabled},
	}
	for _, o := range opts {
		if !o.stream {
			continue
		}
		price := o.spec.BaseCost * math.Pow(o.spec.CostGrowth, float64(o.level))
		// Marketing only pays off once spare cash piles up.
		if s.Money >= 3*price {
			return game.Command{Type: game.CmdMarketing, Action: o.action}, true
		}
	}
	return game.Command{}, false
}
