package game

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"agirush.ai/internal/persistence/snapshot"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/tuning"
)

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func newTestEngine(t *testing.T, mut func(*tuning.Tuning)) *Engine {
	t.Helper()
	tu := tuning.Defaults()
	if mut != nil {
		mut(&tu)
	}
	n := 0
	e, err := New(Config{
		Tuning:     tu,
		Catalogs:   testCatalogs(t),
		PlayerName: "tester",
		NewRunID: func() string {
			n++
			return fmt.Sprintf("run-%d", n)
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b)) }

type recorder struct {
	events []Event
}

func (r *recorder) listen(_ *GameState, evs []Event) { r.events = append(r.events, evs...) }

func (r *recorder) count(typ EventType) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestNew_InitialState(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.State()
	if s.Money != 1000 || s.Era != EraGNT2 || s.RunID != "run-1" {
		t.Fatalf("money=%v era=%s run=%s", s.Money, s.Era, s.RunID)
	}
	if s.Levels != (Levels{1, 1, 1}) {
		t.Fatalf("levels=%+v", s.Levels)
	}
	if s.InvestCosts.Compute != 10 {
		t.Fatalf("invest cost=%v", s.InvestCosts.Compute)
	}
	if s.Capacity.MaxCapacity != 100 || s.Capacity.FreeCompute != 100 {
		t.Fatalf("capacity=%+v", s.Capacity)
	}
	if s.CurrentGoal != "backpropagation" {
		t.Fatalf("goal=%q", s.CurrentGoal)
	}
	if e.IsRunning() {
		t.Fatalf("engine should start paused")
	}
}

func TestNew_RejectsInvalidTuning(t *testing.T) {
	tu := tuning.Defaults()
	tu.TickRateHz = 0
	if _, err := New(Config{Tuning: tu}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTick_OnlyWhileRunning(t *testing.T) {
	e := newTestEngine(t, nil)
	if e.Tick() {
		t.Fatalf("paused tick advanced")
	}
	if e.state.Tick != 0 {
		t.Fatalf("tick=%d", e.state.Tick)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double start err=%v", err)
	}
	if !e.Tick() || e.state.Tick != 1 {
		t.Fatalf("running tick did not advance: %d", e.state.Tick)
	}
	if !almostEqual(e.state.ElapsedSeconds, 0.1) {
		t.Fatalf("elapsed=%v", e.state.ElapsedSeconds)
	}
	if err := e.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if e.Tick() {
		t.Fatalf("tick after pause advanced")
	}
}

func TestTick_NotReentrant(t *testing.T) {
	e := newTestEngine(t, nil)
	_ = e.Start()
	var nested []bool
	e.Subscribe(func(*GameState, []Event) { nested = append(nested, e.Tick()) })
	e.Tick()
	if len(nested) != 1 || nested[0] {
		t.Fatalf("nested=%v", nested)
	}
	if e.state.Tick != 1 {
		t.Fatalf("tick=%d", e.state.Tick)
	}
}

func TestReset_FreshPausedSession(t *testing.T) {
	e := newTestEngine(t, nil)
	_ = e.Start()
	_ = e.AllocateMoney(Compute, "money", 0)
	for i := 0; i < 50; i++ {
		e.Tick()
	}
	e.Reset()
	s := e.State()
	if e.IsRunning() || s.Tick != 0 || s.Money != 1000 || s.Intelligence != 0 || s.RunID != "run-2" {
		t.Fatalf("reset state running=%v tick=%d money=%v intel=%v run=%s", e.IsRunning(), s.Tick, s.Money, s.Intelligence, s.RunID)
	}
	if s.InputLevel(Compute, "money") != 0 {
		t.Fatalf("inputs survived reset")
	}
}

func TestClone_IsDeep(t *testing.T) {
	e := newTestEngine(t, nil)
	_ = e.AllocateMoney(Data, "quality", 0)
	c := e.State()
	c.Inputs["data.quality"] = 99
	c.Breakthroughs[0].Unlocked = true
	if e.state.InputLevel(Data, "quality") != 1 || e.state.Breakthroughs[0].Unlocked {
		t.Fatalf("clone shares memory with engine state")
	}
}

func TestStepOnce_Deterministic(t *testing.T) {
	a := newTestEngine(t, nil)
	b := newTestEngine(t, nil)
	script := map[int][]Command{
		0:  {{Type: CmdSetRevenue, Stream: StreamB2B, Enabled: true}},
		3:  {{Type: CmdAllocate, Resource: Compute, Input: "hardware"}},
		10: {{Type: CmdStartTraining, Preset: "small"}, {Type: CmdAllocate, Resource: Data, Input: "quantity"}},
	}
	for i := 0; i < 200; i++ {
		_, da := a.StepOnce(script[i])
		_, db := b.StepOnce(script[i])
		if da != db {
			t.Fatalf("tick %d digest mismatch", i)
		}
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	e := newTestEngine(t, nil)
	_ = e.SetRevenueStream(StreamB2B, true)
	buys := []Command{
		{Type: CmdAllocate, Resource: Compute, Input: "money"},
		{Type: CmdAllocate, Resource: Data, Input: "quantity"},
		{Type: CmdAllocate, Resource: Algorithm, Input: "architectures"},
	}
	for i := 0; i < 400; i++ {
		var cmds []Command
		if i%40 == 0 {
			cmds = append(cmds, buys[(i/40)%len(buys)])
		}
		if i == 100 {
			cmds = append(cmds, Command{Type: CmdStartTraining, Preset: "small"})
		}
		e.StepOnce(cmds)
	}
	e.unlock("consumer_chat")

	path := filepath.Join(t.TempDir(), "snap.zst")
	if err := snapshot.WriteSnapshot(path, e.ExportSnapshot()); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	r := newTestEngine(t, nil)
	if err := r.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	got, want := r.State(), e.State()
	if got.Levels != want.Levels || got.Resources != want.Resources || got.Money != want.Money {
		t.Fatalf("restored levels=%+v res=%+v money=%v; want %+v %+v %v", got.Levels, got.Resources, got.Money, want.Levels, want.Resources, want.Money)
	}
	if fmt.Sprint(got.UnlockedOrder) != fmt.Sprint(want.UnlockedOrder) {
		t.Fatalf("unlocked=%v want %v", got.UnlockedOrder, want.UnlockedOrder)
	}
	if r.Digest() != e.Digest() {
		t.Fatalf("digest mismatch after import")
	}
	for i := 0; i < 100; i++ {
		_, d1 := e.StepOnce(nil)
		_, d2 := r.StepOnce(nil)
		if d1 != d2 {
			t.Fatalf("replay diverged at step %d", i)
		}
	}
}

func TestImportSnapshot_Rejects(t *testing.T) {
	e := newTestEngine(t, nil)
	snap := e.ExportSnapshot()
	snap.Unlocked = []snapshot.UnlockedV1{{ID: "warp_drive"}}
	if err := e.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected unknown breakthrough error")
	}
	snap = e.ExportSnapshot()
	snap.Header.Version = 9
	if err := e.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected version error")
	}

	cases := []struct {
		name string
		mut  func(s *snapshot.SnapshotV1)
	}{
		{"level zero", func(s *snapshot.SnapshotV1) { s.Levels.Compute = 0 }},
		{"level above max", func(s *snapshot.SnapshotV1) { s.Levels.Data = s.Tuning.MaxLevel + 1 }},
		{"negative resource", func(s *snapshot.SnapshotV1) { s.Resources.Data = -50 }},
		{"negative money", func(s *snapshot.SnapshotV1) { s.Money = -1 }},
		{"nan intelligence", func(s *snapshot.SnapshotV1) { s.Intelligence = math.NaN() }},
		{"inf money", func(s *snapshot.SnapshotV1) { s.Money = math.Inf(1) }},
		{"zero multiplier", func(s *snapshot.SnapshotV1) { s.Multipliers.Intelligence = 0 }},
		{"negative production multiplier", func(s *snapshot.SnapshotV1) { s.Multipliers.Production.Compute = -2 }},
		{"negative input level", func(s *snapshot.SnapshotV1) { s.Inputs = map[string]int{"data.quantity": -1} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			before := e.State()
			snap := e.ExportSnapshot()
			tc.mut(&snap)
			if err := e.ImportSnapshot(snap); err == nil {
				t.Fatalf("expected import to fail")
			}
			after := e.State()
			if after.Money != before.Money || after.Levels != before.Levels || after.Tick != before.Tick {
				t.Fatalf("state changed by rejected import: before=%+v after=%+v", before.Levels, after.Levels)
			}
		})
	}
}

type fakeSinks struct {
	runs  []RunRecord
	ticks []TickLogEntry
}

func (f *fakeSinks) SubmitRun(r RunRecord) error    { f.runs = append(f.runs, r); return nil }
func (f *fakeSinks) WriteTick(e TickLogEntry) error { f.ticks = append(f.ticks, e); return nil }

func TestTickLog_RecordsPausedCommandsWithNextTick(t *testing.T) {
	e := newTestEngine(t, nil)
	sinks := &fakeSinks{}
	e.SetTickLogger(sinks)
	_ = e.AllocateMoney(Compute, "money", 0)
	e.StepOnce(nil)
	e.StepOnce(nil)
	if len(sinks.ticks) != 2 {
		t.Fatalf("entries=%d", len(sinks.ticks))
	}
	if len(sinks.ticks[0].Commands) != 1 || sinks.ticks[0].Commands[0].Type != CmdAllocate {
		t.Fatalf("first entry commands=%+v", sinks.ticks[0].Commands)
	}
	if len(sinks.ticks[1].Commands) != 0 || sinks.ticks[1].Digest == "" {
		t.Fatalf("second entry=%+v", sinks.ticks[1])
	}
	e.Reset()
	if last := sinks.ticks[len(sinks.ticks)-1]; !last.Reset || last.RunID != "run-2" {
		t.Fatalf("reset marker=%+v", last)
	}
}

func TestPeriodicSnapshotPush(t *testing.T) {
	e := newTestEngine(t, func(tu *tuning.Tuning) { tu.SnapshotEveryTicks = 5 })
	ch := make(chan snapshot.SnapshotV1, 4)
	e.SetSnapshotSink(ch)
	for i := 0; i < 12; i++ {
		e.StepOnce(nil)
	}
	if len(ch) != 2 {
		t.Fatalf("snapshots=%d want 2", len(ch))
	}
	if s := <-ch; s.Header.Tick != 5 {
		t.Fatalf("first snapshot tick=%d", s.Header.Tick)
	}
}

func TestExportSnapshot_CountsCommandsAppliedSinceTick(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetTickLogger(&fakeSinks{})
	_ = e.AllocateMoney(Compute, "money", 0)
	if got := e.ExportSnapshot().AppliedCommands; got != 1 {
		t.Fatalf("applied before tick=%d want 1", got)
	}
	e.StepOnce(nil)
	if got := e.ExportSnapshot().AppliedCommands; got != 0 {
		t.Fatalf("applied after tick=%d want 0", got)
	}
}

func TestSendLatest_CarriesEventsOfDroppedUpdates(t *testing.T) {
	ch := make(chan Update, 1)
	for tick := uint64(1); tick <= 3; tick++ {
		sendLatest(ch, Update{Tick: tick, Events: []Event{{Tick: tick, Type: EventNotice}}})
	}
	if len(ch) != 1 {
		t.Fatalf("queued=%d want 1", len(ch))
	}
	u := <-ch
	if u.Tick != 3 {
		t.Fatalf("tick=%d want 3", u.Tick)
	}
	if len(u.Events) != 3 {
		t.Fatalf("events=%d want 3", len(u.Events))
	}
	for i, ev := range u.Events {
		if ev.Tick != uint64(i+1) {
			t.Fatalf("event %d tick=%d", i, ev.Tick)
		}
	}
}

func TestSendLatest_DoesNotAliasSharedEvents(t *testing.T) {
	a := make(chan Update, 1)
	b := make(chan Update, 1)
	sendLatest(a, Update{Tick: 1, Events: []Event{{Tick: 1, Type: EventNotice}}})
	shared := Update{Tick: 2, Events: []Event{{Tick: 2, Type: EventLevelUp}}}
	sendLatest(a, shared)
	sendLatest(b, shared)
	if got := (<-b).Events; len(got) != 1 || got[0].Tick != 2 {
		t.Fatalf("second observer events=%+v", got)
	}
	if got := (<-a).Events; len(got) != 2 || got[0].Tick != 1 || got[1].Tick != 2 {
		t.Fatalf("slow observer events=%+v", got)
	}
}
