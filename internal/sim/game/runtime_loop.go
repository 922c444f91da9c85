package game

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ControlAction string

const (
	ControlStart ControlAction = "START"
	ControlPause ControlAction = "PAUSE"
	ControlReset ControlAction = "RESET"
)

type commandReq struct {
	Cmd  Command
	Resp chan Result
}

type controlReq struct {
	Action ControlAction
	Resp   chan Result
}

type stateReq struct {
	Resp chan *GameState
}

type snapshotReq struct {
	Resp chan Result
}

type observeReq struct {
	Buffer int
	Resp   chan *Observer
}

// Update is one fan-out message: the state after a tick and what happened in it.
type Update struct {
	Tick   uint64
	State  *GameState
	Events []Event
}

type observer struct {
	ch chan Update
}

// Observer receives updates on C. A slow reader skips intermediate states
// but still receives every event, folded into a later update.
type Observer struct {
	ID uint64
	C  <-chan Update
}

// Metrics is a read-only view of loop signals, safe to read from any goroutine.
type Metrics struct {
	Tick         uint64  `json:"tick"`
	Running      bool    `json:"running"`
	RunID        string  `json:"run_id"`
	Era          Era     `json:"era"`
	Intelligence float64 `json:"intelligence"`
	Money        float64 `json:"money"`
	Unlocked     int     `json:"breakthroughs_unlocked"`
	Observers    int     `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Commands int `json:"commands"`
	Controls int `json:"controls"`
}

func (e *Engine) Metrics() Metrics {
	if m := e.metrics.Load(); m != nil {
		return *m
	}
	return Metrics{}
}

func (e *Engine) storeMetrics(stepMS float64) {
	s := e.state
	m := &Metrics{
		Tick:         s.Tick,
		Running:      e.running,
		RunID:        s.RunID,
		Era:          s.Era,
		Intelligence: s.Intelligence,
		Money:        s.Money,
		Unlocked:     s.UnlockedCount(),
		Observers:    len(e.observers),
		QueueDepths: QueueDepths{
			Commands: len(e.cmds),
			Controls: len(e.controls),
		},
		StepMS: stepMS,
	}
	e.metrics.Store(m)
}

// Run drives the engine in real time until ctx is done or Stop is called.
// The ticker only exists while the clock is running, so a paused session
// accumulates no backlog.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.tu.TickRateHz)
	var ticker *time.Ticker
	var tickC <-chan time.Time
	syncTicker := func() {
		switch {
		case e.running && ticker == nil:
			ticker = time.NewTicker(interval)
			tickC = ticker.C
		case !e.running && ticker != nil:
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		close(e.done)
	}()
	syncTicker()

	var pending []commandReq
	for {
		select {
		case <-ctx.Done():
			failPending(pending, ctx.Err())
			return ctx.Err()
		case <-e.stop:
			failPending(pending, errors.New("engine stopped"))
			return nil
		case req := <-e.controls:
			pending = e.handleControl(req, pending)
			syncTicker()
		case req := <-e.cmds:
			if e.running {
				pending = append(pending, req)
				continue
			}
			err := e.Apply(req.Cmd)
			reply(req.Resp, Result{Tick: e.state.Tick, Err: err})
		case req := <-e.queries:
			req.Resp <- e.state.Clone()
		case req := <-e.snaps:
			reply(req.Resp, e.handleSnapshotRequest())
		case req := <-e.obsJoin:
			req.Resp <- e.addObserver(req.Buffer)
		case id := <-e.obsLeave:
			if o, ok := e.observers[id]; ok {
				delete(e.observers, id)
				close(o.ch)
			}
		case <-tickC:
			e.stepQueued(pending)
			pending = pending[:0]
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

func (e *Engine) stepQueued(reqs []commandReq) {
	cmds := make([]Command, len(reqs))
	for i, r := range reqs {
		cmds[i] = r.Cmd
	}
	tick := e.state.Tick
	errs, ok := e.step(e.TickDuration(), cmds)
	for i, r := range reqs {
		res := Result{Tick: tick}
		if !ok {
			res.Err = fmt.Errorf("%w: tick skipped", ErrInvalidTransition)
		} else {
			res.Err = errs[i]
		}
		reply(r.Resp, res)
	}
}

func (e *Engine) handleControl(req controlReq, pending []commandReq) []commandReq {
	var err error
	switch req.Action {
	case ControlStart:
		err = e.Start()
	case ControlPause:
		if err = e.Pause(); err == nil {
			// Paused sessions apply commands immediately.
			for _, r := range pending {
				cerr := e.Apply(r.Cmd)
				reply(r.Resp, Result{Tick: e.state.Tick, Err: cerr})
			}
			pending = pending[:0]
		}
	case ControlReset:
		failPending(pending, fmt.Errorf("%w: session reset", ErrInvalidTransition))
		pending = pending[:0]
		e.Reset()
	default:
		err = fmt.Errorf("%w: unknown control %q", ErrBadRequest, req.Action)
	}
	reply(req.Resp, Result{Tick: e.state.Tick, Err: err})
	return pending
}

func (e *Engine) handleSnapshotRequest() Result {
	res := Result{Tick: e.state.Tick}
	if e.snapshotSink == nil {
		res.Err = errors.New("snapshot sink not configured")
	} else if !e.pushSnapshot() {
		res.Err = errors.New("snapshot sink backpressure")
	}
	return res
}

func (e *Engine) addObserver(buffer int) *Observer {
	if buffer <= 0 {
		buffer = 8
	}
	e.nextObserver++
	o := &observer{ch: make(chan Update, buffer)}
	e.observers[e.nextObserver] = o
	// Prime with the current state so a new consumer can render immediately.
	sendLatest(o.ch, Update{Tick: e.state.Tick, State: e.state.Clone()})
	return &Observer{ID: e.nextObserver, C: o.ch}
}

func failPending(reqs []commandReq, err error) {
	for _, r := range reqs {
		reply(r.Resp, Result{Err: err})
	}
}

func reply(ch chan Result, r Result) {
	if ch == nil {
		return
	}
	select {
	case ch <- r:
	default:
		// Caller gave up; never block the loop.
	}
}

// sendLatest never blocks. When ch is full the oldest queued update is
// dropped and its events are carried into u, so only intermediate states are
// lost. The engine loop is the only sender.
func sendLatest(ch chan Update, u Update) {
	for {
		select {
		case ch <- u:
			return
		default:
		}
		select {
		case old := <-ch:
			if len(old.Events) > 0 {
				merged := make([]Event, 0, len(old.Events)+len(u.Events))
				u.Events = append(append(merged, old.Events...), u.Events...)
			}
		default:
		}
	}
}

// Submit queues a gameplay command and waits for its result. While running
// the command is applied at the next tick boundary.
func (e *Engine) Submit(ctx context.Context, cmd Command) (Result, error) {
	resp := make(chan Result, 1)
	select {
	case e.cmds <- commandReq{Cmd: cmd, Resp: resp}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Control applies START, PAUSE or RESET immediately in the loop.
func (e *Engine) Control(ctx context.Context, action ControlAction) (Result, error) {
	resp := make(chan Result, 1)
	select {
	case e.controls <- controlReq{Action: action, Resp: resp}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// RequestState returns a copy of the state as of the last loop iteration.
func (e *Engine) RequestState(ctx context.Context) (*GameState, error) {
	resp := make(chan *GameState, 1)
	select {
	case e.queries <- stateReq{Resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestSnapshot asks the loop to push a snapshot to the sink now.
func (e *Engine) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	resp := make(chan Result, 1)
	select {
	case e.snaps <- snapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.Tick, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *Engine) Observe(ctx context.Context, buffer int) (*Observer, error) {
	resp := make(chan *Observer, 1)
	select {
	case e.obsJoin <- observeReq{Buffer: buffer, Resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case o := <-resp:
		return o, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unobserve detaches an observer and closes its channel.
func (e *Engine) Unobserve(id uint64) {
	select {
	case e.obsLeave <- id:
	case <-e.stop:
	case <-e.done:
	}
}
