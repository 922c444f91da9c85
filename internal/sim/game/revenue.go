package game

import (
	"fmt"
	"math"

	"agirush.ai/internal/sim/tuning"
)

// CapabilityConsumerApp gates the subscription stream.
const CapabilityConsumerApp = "consumer_app"

func (e *Engine) demandTarget(spec tuning.StreamSpec, marketingLevel int, bonus float64) float64 {
	return spec.DemandBase * (1 + spec.DemandPerIntelligence*e.state.Intelligence) * (1 + bonus*float64(marketingLevel))
}

func (e *Engine) B2BTarget() float64 {
	return e.demandTarget(e.tu.Revenue.B2B, e.state.Revenue.ToolImprovements, e.tu.Revenue.ToolImprovements.DemandBonus)
}

func (e *Engine) B2CTarget() float64 {
	return e.demandTarget(e.tu.Revenue.B2C, e.state.Revenue.Advertising, e.tu.Revenue.Advertising.DemandBonus)
}

// stepRevenue pays for the traffic served this tick and then ramps usage
// toward the current targets.
func (e *Engine) stepRevenue(dt float64) {
	s := e.state
	rv := &s.Revenue
	served := s.Capacity.ServedFraction
	spec := e.tu.Revenue

	rv.B2BRate, rv.B2CRate = 0, 0
	if rv.B2BEnabled {
		rv.B2BRate = spec.B2B.Price * rv.B2BUsage * served
		earned := rv.B2BRate * dt
		s.Money += earned
		rv.B2BTotal += earned
		rv.B2BUsage = ramp(rv.B2BUsage, e.B2BTarget(), spec.B2B.RampPerSecond*dt)
		rv.PeakB2BUsage = math.Max(rv.PeakB2BUsage, rv.B2BUsage)
	}
	if rv.B2CEnabled {
		rv.B2CRate = spec.B2C.Price * rv.B2CSubscribers * served
		earned := rv.B2CRate * dt
		s.Money += earned
		rv.B2CTotal += earned
		rv.B2CSubscribers = ramp(rv.B2CSubscribers, e.B2CTarget(), spec.B2C.RampPerSecond*dt)
		rv.PeakB2CSubscribers = math.Max(rv.PeakB2CSubscribers, rv.B2CSubscribers)
	}
}

func ramp(cur, target, k float64) float64 {
	return cur + (target-cur)*math.Min(1, k)
}

func (e *Engine) setRevenueStream(stream Stream, enabled bool) error {
	rv := &e.state.Revenue
	switch stream {
	case StreamB2B:
		if !enabled {
			rv.B2BUsage, rv.B2BRate = 0, 0
		} else if !rv.B2BEnabled {
			rv.B2BUsage = 0
		}
		rv.B2BEnabled = enabled
	case StreamB2C:
		if enabled && !e.state.HasCapability(CapabilityConsumerApp) {
			return fmt.Errorf("b2c: %w: requires %s", ErrLocked, CapabilityConsumerApp)
		}
		if !enabled {
			rv.B2CSubscribers, rv.B2CRate = 0, 0
		} else if !rv.B2CEnabled {
			rv.B2CSubscribers = 0
		}
		rv.B2CEnabled = enabled
	default:
		return fmt.Errorf("%w: unknown revenue stream %q", ErrBadRequest, stream)
	}
	e.refreshCapacity()
	return nil
}

// MarketingPrice is the cost of the next level of a marketing action.
func (e *Engine) MarketingPrice(a MarketingAction) (float64, error) {
	spec, level, err := e.marketingSpec(a)
	if err != nil {
		return 0, err
	}
	return spec.BaseCost * math.Pow(spec.CostGrowth, float64(*level)), nil
}

func (e *Engine) marketingSpec(a MarketingAction) (tuning.MarketingSpec, *int, error) {
	switch a {
	case MarketingAdvertise:
		return e.tu.Revenue.Advertising, &e.state.Revenue.Advertising, nil
	case MarketingImproveTools:
		return e.tu.Revenue.ToolImprovements, &e.state.Revenue.ToolImprovements, nil
	}
	return tuning.MarketingSpec{}, nil, fmt.Errorf("%w: unknown marketing action %q", ErrBadRequest, a)
}

func (e *Engine) marketing(a MarketingAction) error {
	price, err := e.MarketingPrice(a)
	if err != nil {
		return err
	}
	if e.state.Money < price {
		return fmt.Errorf("%w: %s costs %.2f, have %.2f", ErrInsufficientFunds, a, price, e.state.Money)
	}
	_, level, _ := e.marketingSpec(a)
	e.state.Money -= price
	*level++
	return nil
}
