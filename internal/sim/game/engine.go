package game

import (
	"fmt"
	"io"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"agirush.ai/internal/persistence/snapshot"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/tuning"
)

type Config struct {
	Tuning     tuning.Tuning
	Catalogs   *catalogs.Catalogs
	PlayerName string

	// Logger may be nil.
	Logger *log.Logger
	// NewRunID defaults to a random UUID.
	NewRunID func() string
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// Leaderboard receives one record per run that reaches AGI.
type Leaderboard interface {
	SubmitRun(rec RunRecord) error
}

type TickLogEntry struct {
	Tick     uint64    `json:"tick"`
	RunID    string    `json:"run_id"`
	Commands []Command `json:"commands,omitempty"`
	Events   []Event   `json:"events,omitempty"`
	Digest   string    `json:"digest,omitempty"`
	// Reset marks the start of a fresh session; replays stop here.
	Reset bool `json:"reset,omitempty"`
}

type RunRecord struct {
	RunID                 string  `json:"run_id"`
	PlayerName            string  `json:"player_name"`
	FinalIntelligence     float64 `json:"final_intelligence"`
	TotalTimeElapsed      float64 `json:"total_time_elapsed"`
	PeakMoney             float64 `json:"peak_money"`
	PeakB2BSubscribers    float64 `json:"peak_b2b_subscribers"`
	PeakB2CSubscribers    float64 `json:"peak_b2c_subscribers"`
	BreakthroughsUnlocked int     `json:"breakthroughs_unlocked"`
	Tick                  uint64  `json:"tick"`
}

// Engine owns one GameState and is the game clock. Its methods are not safe
// for concurrent use; when Run is active, other goroutines go through the
// request methods in runtime_loop.go.
type Engine struct {
	cfg  Config
	tu   tuning.Tuning
	cats *catalogs.Catalogs

	state   *GameState
	running bool
	inStep  bool

	pending     []Event
	logCarry    []Command
	agiThisTick bool

	listeners    []Listener
	observers    map[uint64]*observer
	nextObserver uint64

	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
	leaderboard  Leaderboard
	logger       *log.Logger

	cmds     chan commandReq
	controls chan controlReq
	queries  chan stateReq
	snaps    chan snapshotReq
	obsJoin  chan observeReq
	obsLeave chan uint64
	stop     chan struct{}
	done     chan struct{}

	tick    atomic.Uint64
	metrics atomic.Pointer[Metrics]
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	e := &Engine{
		cfg:       cfg,
		tu:        cfg.Tuning,
		cats:      cfg.Catalogs,
		observers: map[uint64]*observer{},
		logger:    logger,
		cmds:      make(chan commandReq, 256),
		controls:  make(chan controlReq, 16),
		queries:   make(chan stateReq, 16),
		snaps:     make(chan snapshotReq, 16),
		obsJoin:   make(chan observeReq, 16),
		obsLeave:  make(chan uint64, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.state = e.newState()
	e.storeMetrics(0)
	return e, nil
}

func (e *Engine) newState() *GameState {
	tu := e.tu
	s := &GameState{
		RunID:      e.cfg.NewRunID(),
		PlayerName: e.cfg.PlayerName,
		Money:      tu.StartingMoney,
		PeakMoney:  tu.StartingMoney,
		Levels:     Levels{Compute: 1, Data: 1, Algorithm: 1},
		InvestCosts: Amounts{
			Compute:   tu.Resources[string(Compute)].InvestCost,
			Data:      tu.Resources[string(Data)].InvestCost,
			Algorithm: tu.Resources[string(Algorithm)].InvestCost,
		},
		Inputs:      map[string]int{},
		Training:    TrainingRun{Phase: TrainingIdle},
		Multipliers: unitMultipliers(),
		Era:         Era(tu.Eras[0].Era),
	}
	if e.cats != nil {
		s.Breakthroughs = breakthroughsFromCatalog(&e.cats.Breakthroughs)
	}
	prev := e.state
	e.state = s
	e.updateGoal()
	e.refreshCapacity()
	e.recomputeProduction()
	e.state = prev
	return s
}

func (e *Engine) SetTickLogger(l TickLogger)                    { e.tickLogger = l }
func (e *Engine) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { e.snapshotSink = ch }
func (e *Engine) SetLeaderboard(l Leaderboard)                  { e.leaderboard = l }

// Subscribe registers an in-process listener. Call before Run.
func (e *Engine) Subscribe(l Listener) { e.listeners = append(e.listeners, l) }

func (e *Engine) Tuning() tuning.Tuning { return e.tu }
func (e *Engine) IsRunning() bool       { return e.running }

// State returns a copy of the current state.
func (e *Engine) State() *GameState { return e.state.Clone() }

// CurrentTick is safe to call from any goroutine.
func (e *Engine) CurrentTick() uint64 { return e.tick.Load() }

func (e *Engine) TickDuration() float64 { return 1 / float64(e.tu.TickRateHz) }

func (e *Engine) CatalogDigest() string {
	if e.cats == nil {
		return ""
	}
	return e.cats.Breakthroughs.Digest
}

func (e *Engine) Start() error {
	if e.running {
		return fmt.Errorf("%w: already running", ErrInvalidTransition)
	}
	e.running = true
	e.storeMetrics(0)
	return nil
}

func (e *Engine) Pause() error {
	if !e.running {
		return fmt.Errorf("%w: already paused", ErrInvalidTransition)
	}
	e.running = false
	e.storeMetrics(0)
	return nil
}

// Reset discards the session and starts a fresh, paused one.
func (e *Engine) Reset() {
	e.running = false
	e.pending = nil
	e.logCarry = nil
	e.state = e.newState()
	e.tick.Store(0)
	if e.tickLogger != nil {
		if err := e.tickLogger.WriteTick(TickLogEntry{Tick: 0, RunID: e.state.RunID, Reset: true}); err != nil {
			e.logger.Printf("tick log: %v", err)
		}
	}
	e.storeMetrics(0)
	e.publish()
}

// Tick advances one fixed step if the clock is running.
func (e *Engine) Tick() bool {
	if !e.running {
		return false
	}
	_, ok := e.step(e.TickDuration(), nil)
	return ok
}

// Step advances by dt seconds regardless of the run state.
func (e *Engine) Step(dt float64) {
	e.step(dt, nil)
}

// StepOnce applies cmds at the tick boundary and advances one fixed step,
// exactly as the server loop does. It is intended for replays and tests.
func (e *Engine) StepOnce(cmds []Command) (tick uint64, digest string) {
	tick = e.state.Tick
	e.step(e.TickDuration(), cmds)
	return tick, e.Digest()
}

func (e *Engine) step(dt float64, cmds []Command) ([]error, bool) {
	if e.inStep || dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, false
	}
	e.inStep = true
	defer func() { e.inStep = false }()

	start := time.Now()
	s := e.state
	nowTick := s.Tick
	e.agiThisTick = false

	recorded := append(e.logCarry, cmds...)
	e.logCarry = nil
	errs := make([]error, len(cmds))
	for i, c := range cmds {
		errs[i] = e.applyCommand(c)
	}

	e.stepProduction(dt)
	e.stepLeveling()
	e.stepAllocation()
	e.stepRevenue(dt)
	e.stepTraining(dt)
	e.stepIntelligence()
	e.stepBreakthroughs()
	e.stepEra()
	e.refreshCapacity()
	e.stepNarrative()

	s.PeakMoney = math.Max(s.PeakMoney, s.Money)
	s.ElapsedSeconds += dt
	s.Tick = nowTick + 1
	e.tick.Store(s.Tick)

	digest := e.Digest()
	if e.tickLogger != nil {
		entry := TickLogEntry{Tick: nowTick, RunID: s.RunID, Commands: recorded, Events: e.pending, Digest: digest}
		if err := e.tickLogger.WriteTick(entry); err != nil {
			e.logger.Printf("tick log: %v", err)
		}
	}

	pushed := false
	if every := uint64(e.tu.SnapshotEveryTicks); every > 0 && s.Tick%every == 0 {
		pushed = e.pushSnapshot()
	}
	if e.agiThisTick {
		if !pushed {
			e.pushSnapshot()
		}
		e.submitRun()
	}

	e.storeMetrics(float64(time.Since(start).Microseconds()) / 1000.0)
	e.publish()
	return errs, true
}

func (e *Engine) pushSnapshot() bool {
	if e.snapshotSink == nil {
		return false
	}
	select {
	case e.snapshotSink <- e.ExportSnapshot():
		return true
	default:
		e.logger.Printf("snapshot sink backed up; dropping tick %d", e.state.Tick)
		return false
	}
}

func (e *Engine) submitRun() {
	if e.leaderboard == nil {
		return
	}
	rec := e.RunRecord()
	if err := e.leaderboard.SubmitRun(rec); err != nil {
		e.logger.Printf("leaderboard submit %s: %v", rec.RunID, err)
	}
}

func (e *Engine) RunRecord() RunRecord {
	s := e.state
	return RunRecord{
		RunID:                 s.RunID,
		PlayerName:            s.PlayerName,
		FinalIntelligence:     s.Intelligence,
		TotalTimeElapsed:      s.ElapsedSeconds,
		PeakMoney:             s.PeakMoney,
		PeakB2BSubscribers:    s.Revenue.PeakB2BUsage,
		PeakB2CSubscribers:    s.Revenue.PeakB2CSubscribers,
		BreakthroughsUnlocked: s.UnlockedCount(),
		Tick:                  s.AGIReachedTick,
	}
}

// publish hands the events gathered since the last call to listeners and
// observers.
func (e *Engine) publish() {
	events := e.pending
	e.pending = nil
	if len(e.listeners) == 0 && len(e.observers) == 0 {
		return
	}
	snap := e.state.Clone()
	for _, l := range e.listeners {
		l(snap, events)
	}
	if len(e.observers) > 0 {
		u := Update{Tick: snap.Tick, State: snap, Events: events}
		for _, o := range e.observers {
			sendLatest(o.ch, u)
		}
	}
}
