package game

import (
	"errors"
	"fmt"
)

type CommandType string

const (
	CmdAllocate      CommandType = "ALLOCATE"
	CmdSetRevenue    CommandType = "SET_REVENUE"
	CmdMarketing     CommandType = "MARKETING"
	CmdStartTraining CommandType = "START_TRAINING"
)

type Stream string

const (
	StreamB2B Stream = "b2b"
	StreamB2C Stream = "b2c"
)

type MarketingAction string

const (
	MarketingAdvertise    MarketingAction = "advertise"
	MarketingImproveTools MarketingAction = "improve_tools"
)

// Command is a gameplay request. Only the fields for Type are read.
type Command struct {
	Type CommandType `json:"type"`

	// ALLOCATE
	Resource Resource `json:"resource,omitempty"`
	Input    string   `json:"input,omitempty"`
	Amount   float64  `json:"amount,omitempty"`

	// SET_REVENUE
	Stream  Stream `json:"stream,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`

	// MARKETING
	Action MarketingAction `json:"action,omitempty"`

	// START_TRAINING: a preset name or explicit parameters.
	Preset      string  `json:"preset,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	ComputeCost float64 `json:"compute_cost,omitempty"`
	MoneyCost   float64 `json:"money_cost,omitempty"`
}

func (c Command) String() string {
	switch c.Type {
	case CmdAllocate:
		return fmt.Sprintf("%s %s.%s", c.Type, c.Resource, c.Input)
	case CmdSetRevenue:
		return fmt.Sprintf("%s %s=%v", c.Type, c.Stream, c.Enabled)
	case CmdMarketing:
		return fmt.Sprintf("%s %s", c.Type, c.Action)
	case CmdStartTraining:
		if c.Preset != "" {
			return fmt.Sprintf("%s %s", c.Type, c.Preset)
		}
		return fmt.Sprintf("%s %gs/%g", c.Type, c.Duration, c.ComputeCost)
	}
	return string(c.Type)
}

type Result struct {
	Tick uint64
	Err  error
}

func (r Result) OK() bool { return r.Err == nil }

// Apply executes one command against the current state and dispatches any
// resulting events immediately. The command is recorded with the next tick
// log entry so replays apply it at that boundary.
func (e *Engine) Apply(cmd Command) error {
	err := e.applyCommand(cmd)
	e.logCarry = append(e.logCarry, cmd)
	e.publish()
	return err
}

func (e *Engine) applyCommand(cmd Command) error {
	var err error
	switch cmd.Type {
	case CmdAllocate:
		err = e.allocateMoney(cmd.Resource, cmd.Input, cmd.Amount)
	case CmdSetRevenue:
		err = e.setRevenueStream(cmd.Stream, cmd.Enabled)
	case CmdMarketing:
		err = e.marketing(cmd.Action)
	case CmdStartTraining:
		plan := trainingPlan{duration: cmd.Duration, computeCost: cmd.ComputeCost, moneyCost: cmd.MoneyCost}
		if cmd.Preset != "" {
			p, ok := e.tu.Preset(cmd.Preset)
			if !ok {
				err = fmt.Errorf("%w: unknown training preset %q", ErrBadRequest, cmd.Preset)
				break
			}
			plan = trainingPlan{duration: p.DurationSeconds, computeCost: p.ComputeCost, moneyCost: p.MoneyCost}
		}
		err = e.startTraining(plan)
	default:
		err = fmt.Errorf("%w: unknown command type %q", ErrBadRequest, cmd.Type)
	}
	if err != nil {
		e.rejected(cmd, err)
	}
	return err
}

func (e *Engine) rejected(cmd Command, err error) {
	typ := EventCommandRejected
	if errors.Is(err, ErrInsufficientFunds) {
		typ = EventInsufficientFunds
	}
	e.emit(Event{Type: typ, Command: cmd.String(), Message: err.Error()})
}

func (e *Engine) AllocateMoney(r Resource, input string, amount float64) error {
	return e.Apply(Command{Type: CmdAllocate, Resource: r, Input: input, Amount: amount})
}

func (e *Engine) SetRevenueStream(s Stream, enabled bool) error {
	return e.Apply(Command{Type: CmdSetRevenue, Stream: s, Enabled: enabled})
}

func (e *Engine) Marketing(a MarketingAction) error {
	return e.Apply(Command{Type: CmdMarketing, Action: a})
}

func (e *Engine) StartTraining(duration, computeCost, moneyCost float64) error {
	return e.Apply(Command{Type: CmdStartTraining, Duration: duration, ComputeCost: computeCost, MoneyCost: moneyCost})
}

func (e *Engine) StartTrainingPreset(name string) error {
	return e.Apply(Command{Type: CmdStartTraining, Preset: name})
}
