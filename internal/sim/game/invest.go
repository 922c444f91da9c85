package game

import (
	"fmt"
	"math"
)

func inputMultiplier(curve string, step float64, level int) float64 {
	if level <= 0 {
		return 1
	}
	if curve == "log" {
		return 1 + step*math.Log1p(float64(level))
	}
	return 1 + step*float64(level)
}

// InputPrice is the cost of the next purchase of resource.input.
func (e *Engine) InputPrice(r Resource, input string) (float64, error) {
	in, ok := e.tu.Input(string(r), input)
	if !ok {
		return 0, fmt.Errorf("%w: unknown input %s.%s", ErrBadRequest, r, input)
	}
	return in.BaseCost * math.Pow(in.CostGrowth, float64(e.state.InputLevel(r, input))), nil
}

// allocateMoney buys one level of a sub-input. amount caps what the player is
// willing to pay; zero means no cap.
func (e *Engine) allocateMoney(r Resource, input string, amount float64) error {
	if _, ok := ParseResource(string(r)); !ok {
		return fmt.Errorf("%w: unknown resource %q", ErrBadRequest, r)
	}
	if amount < 0 || math.IsNaN(amount) {
		return fmt.Errorf("%w: amount must be >= 0", ErrBadRequest)
	}
	price, err := e.InputPrice(r, input)
	if err != nil {
		return err
	}
	s := e.state
	if s.Money < price {
		return fmt.Errorf("%w: %s.%s costs %.2f, have %.2f", ErrInsufficientFunds, r, input, price, s.Money)
	}
	if amount > 0 && amount < price {
		return fmt.Errorf("%w: %s.%s costs %.2f, offered %.2f", ErrInsufficientFunds, r, input, price, amount)
	}
	s.Money -= price
	if s.Inputs == nil {
		s.Inputs = map[string]int{}
	}
	s.Inputs[inputKey(r, input)]++
	e.recomputeProduction()
	e.refreshCapacity()
	return nil
}
