package game

import (
	"errors"
	"math"
	"testing"

	"agirush.ai/internal/persistence/snapshot"
	"agirush.ai/internal/sim/tuning"
)

func TestAllocateMoney_InsufficientFundsLeavesStateUnchanged(t *testing.T) {
	e := newTestEngine(t, func(tu *tuning.Tuning) { tu.StartingMoney = 50 })
	rec := &recorder{}
	e.Subscribe(rec.listen)
	before := e.State()

	err := e.AllocateMoney(Compute, "hardware", 0)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err=%v want ErrInsufficientFunds", err)
	}
	after := e.State()
	if after.Money != before.Money || after.Levels != before.Levels || after.InvestCosts != before.InvestCosts {
		t.Fatalf("state changed: money %v->%v levels %+v->%+v", before.Money, after.Money, before.Levels, after.Levels)
	}
	if after.InputLevel(Compute, "hardware") != 0 {
		t.Fatalf("input bought without funds")
	}
	if rec.count(EventInsufficientFunds) != 1 {
		t.Fatalf("events=%+v", rec.events)
	}
}

func TestAllocateMoney_FiveSequentialPurchases(t *testing.T) {
	e := newTestEngine(t, nil)
	spent := 0.0
	for i := 0; i < 5; i++ {
		price, err := e.InputPrice(Compute, "money")
		if err != nil {
			t.Fatalf("price: %v", err)
		}
		if want := 100 * math.Pow(1.15, float64(i)); !almostEqual(price, want) {
			t.Fatalf("purchase %d price=%v want %v", i, price, want)
		}
		if err := e.AllocateMoney(Compute, "money", 0); err != nil {
			t.Fatalf("purchase %d: %v", i, err)
		}
		spent += price
	}
	s := e.State()
	if !almostEqual(s.Money, 1000-spent) {
		t.Fatalf("money=%v want %v", s.Money, 1000-spent)
	}
	if s.InputLevel(Compute, "money") != 5 {
		t.Fatalf("input level=%d", s.InputLevel(Compute, "money"))
	}
	// 1 + 0.25*5 on a base rate of 1.
	if !almostEqual(s.Production.Compute, 2.25) {
		t.Fatalf("compute rate=%v", s.Production.Compute)
	}

	// The stockpile then buys levels, each one 1.8x dearer than the last.
	for i := 0; i < 3000 && e.state.Levels.Compute < 3; i++ {
		e.StepOnce(nil)
	}
	s = e.State()
	if s.Levels.Compute < 3 {
		t.Fatalf("compute level=%d", s.Levels.Compute)
	}
	want := 10 * math.Pow(1.8, float64(s.Levels.Compute-1))
	if !almostEqual(s.InvestCosts.Compute, want) {
		t.Fatalf("invest cost=%v want %v", s.InvestCosts.Compute, want)
	}
}

func TestAllocateMoney_SpendCeiling(t *testing.T) {
	e := newTestEngine(t, nil)
	if err := e.AllocateMoney(Compute, "money", 100); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	// Next price is 115.
	if err := e.AllocateMoney(Compute, "money", 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err=%v", err)
	}
	if e.state.Money != 900 {
		t.Fatalf("money=%v", e.state.Money)
	}
}

func TestAllocateMoney_BadRequests(t *testing.T) {
	e := newTestEngine(t, nil)
	cases := []struct {
		r     Resource
		input string
		amt   float64
	}{
		{"energy", "money", 0},
		{Data, "hardware", 0},
		{Compute, "money", -1},
	}
	for _, tc := range cases {
		if err := e.AllocateMoney(tc.r, tc.input, tc.amt); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("%s.%s: err=%v", tc.r, tc.input, err)
		}
	}
}

func TestInputMultiplierCurves(t *testing.T) {
	if got := inputMultiplier("linear", 0.25, 4); got != 2 {
		t.Fatalf("linear=%v", got)
	}
	if got := inputMultiplier("log", 0.5, 0); got != 1 {
		t.Fatalf("log(0)=%v", got)
	}
	// Diminishing returns: each extra purchase adds less than the last.
	prev, prevGain := inputMultiplier("log", 0.5, 1), math.Inf(1)
	for lvl := 2; lvl < 10; lvl++ {
		cur := inputMultiplier("log", 0.5, lvl)
		if gain := cur - prev; gain >= prevGain {
			t.Fatalf("log curve not diminishing at %d", lvl)
		} else {
			prevGain = gain
		}
		prev = cur
	}
}

func TestLeveling_CapsAtMax(t *testing.T) {
	e := newTestEngine(t, nil)
	rec := &recorder{}
	e.Subscribe(rec.listen)
	e.state.Resources = Amounts{Compute: 1e6, Data: 1e6, Algorithm: 1e6}
	for i := 0; i < 10; i++ {
		e.StepOnce(nil)
	}
	s := e.State()
	if s.Levels != (Levels{5, 5, 5}) {
		t.Fatalf("levels=%+v", s.Levels)
	}
	// Four level-ups per resource, one per tick.
	if rec.count(EventLevelUp) != 12 {
		t.Fatalf("level ups=%d", rec.count(EventLevelUp))
	}
}

func TestCapacity_HardwareAndAllocation(t *testing.T) {
	e := newTestEngine(t, nil)
	if err := e.AllocateMoney(Compute, "hardware", 0); err != nil {
		t.Fatalf("hardware: %v", err)
	}
	if !almostEqual(e.state.Capacity.MaxCapacity, 125) {
		t.Fatalf("max=%v", e.state.Capacity.MaxCapacity)
	}
	e.state.Revenue.B2BUsage = 200
	e.refreshCapacity()
	c := e.state.Capacity
	if c.CustomerUsage != c.MaxCapacity || c.FreeCompute != 0 || !almostEqual(c.ServedFraction, 125.0/200) {
		t.Fatalf("capacity=%+v", c)
	}
}

func TestTraining_InsufficientCapacity(t *testing.T) {
	e := newTestEngine(t, nil)
	e.state.Capacity.MaxCapacity = 100
	e.state.Capacity.CustomerUsage = 70
	err := e.StartTraining(60, 40, 0)
	if !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("err=%v", err)
	}
	if e.state.Training.Phase != TrainingIdle || e.state.Money != 1000 {
		t.Fatalf("training=%+v money=%v", e.state.Training, e.state.Money)
	}
}

func TestTraining_Lifecycle(t *testing.T) {
	e := newTestEngine(t, nil)
	rec := &recorder{}
	e.Subscribe(rec.listen)

	if err := e.StartTraining(1, 20, 100); err != nil {
		t.Fatalf("start: %v", err)
	}
	s := e.state
	if s.Training.Phase != TrainingReserved || s.Money != 900 || s.Capacity.Reserved != 20 || s.Capacity.FreeCompute != 80 {
		t.Fatalf("after start training=%+v money=%v capacity=%+v", s.Training, s.Money, s.Capacity)
	}
	err := e.StartTraining(1, 20, 0)
	if !errors.Is(err, ErrAlreadyRunning) || !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second start err=%v", err)
	}

	e.StepOnce(nil)
	if s.Training.Phase != TrainingRunning || rec.count(EventTrainingStarted) != 1 {
		t.Fatalf("phase=%s started=%d", s.Training.Phase, rec.count(EventTrainingStarted))
	}
	for i := 0; i < 20 && s.Training.Phase == TrainingRunning; i++ {
		e.StepOnce(nil)
	}
	if s.Training.Phase != TrainingCompleted {
		t.Fatalf("phase=%s", s.Training.Phase)
	}
	if want := 0.02 * 20 * 1; !almostEqual(s.TrainingBonus, want) {
		t.Fatalf("bonus=%v want %v", s.TrainingBonus, want)
	}
	if s.Capacity.Reserved != 0 || s.TrainingRunsCompleted != 1 || rec.count(EventTrainingCompleted) != 1 {
		t.Fatalf("capacity=%+v runs=%d", s.Capacity, s.TrainingRunsCompleted)
	}
	if s.Intelligence < s.TrainingBonus {
		t.Fatalf("intelligence %v missing training bonus %v", s.Intelligence, s.TrainingBonus)
	}
	e.StepOnce(nil)
	if s.Training.Phase != TrainingIdle {
		t.Fatalf("phase after completion tick=%s", s.Training.Phase)
	}
}

func TestTraining_StartFromCompleted(t *testing.T) {
	e := newTestEngine(t, nil)
	e.state.Training.Phase = TrainingCompleted
	if err := e.StartTrainingPreset("small"); err != nil {
		t.Fatalf("start from completed: %v", err)
	}
	if e.state.Training.ComputeReserved != 20 || e.state.Training.Duration != 30 {
		t.Fatalf("preset not applied: %+v", e.state.Training)
	}
	if err := e.StartTrainingPreset("huge"); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("unknown preset err=%v", err)
	}
}

func TestTraining_ShortfallSlowsProgress(t *testing.T) {
	e := newTestEngine(t, nil)
	if err := e.StartTraining(10, 50, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.StepOnce(nil)
	full := e.state.Training.Remaining
	// Customers now leave only 25 of the 50 reserved units.
	e.state.Revenue.B2BEnabled = true
	e.state.Revenue.B2BUsage = 75
	e.tu.Revenue.B2B.RampPerSecond = 0
	e.StepOnce(nil)
	step := full - e.state.Training.Remaining
	if !almostEqual(step, 0.05) {
		t.Fatalf("progress per tick=%v want 0.05", step)
	}
}

func TestRevenue_B2BRampAndDisable(t *testing.T) {
	e := newTestEngine(t, nil)
	if err := e.SetRevenueStream(StreamB2B, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if e.state.Revenue.B2BUsage != 0 {
		t.Fatalf("usage should start at zero")
	}
	start := e.state.Money
	prev := start
	for i := 0; i < 200; i++ {
		e.StepOnce(nil)
		if e.state.Money < prev {
			t.Fatalf("money decreased at tick %d: %v -> %v", i, prev, e.state.Money)
		}
		prev = e.state.Money
	}
	if e.state.Money <= start || e.state.Revenue.B2BUsage <= 0 {
		t.Fatalf("no revenue: money=%v usage=%v", e.state.Money, e.state.Revenue.B2BUsage)
	}
	if err := e.SetRevenueStream(StreamB2B, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	e.StepOnce(nil)
	if e.state.Revenue.B2BUsage != 0 || e.state.Revenue.B2BRate != 0 {
		t.Fatalf("usage=%v after disable", e.state.Revenue.B2BUsage)
	}
	if e.state.Capacity.CustomerUsage != 0 {
		t.Fatalf("customer usage=%v after disable", e.state.Capacity.CustomerUsage)
	}
}

func TestRevenue_B2CRequiresConsumerApp(t *testing.T) {
	e := newTestEngine(t, nil)
	err := e.SetRevenueStream(StreamB2C, true)
	if !errors.Is(err, ErrLocked) || !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err=%v", err)
	}
	if !e.unlock("consumer_chat") {
		t.Fatalf("unlock failed")
	}
	if err := e.SetRevenueStream(StreamB2C, true); err != nil {
		t.Fatalf("enable b2c: %v", err)
	}
	if err := e.SetRevenueStream("b2g", true); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("unknown stream err=%v", err)
	}
}

func TestMarketing_EscalatesAndRaisesDemand(t *testing.T) {
	e := newTestEngine(t, func(tu *tuning.Tuning) { tu.StartingMoney = 600 })
	base := e.B2BTarget()
	if err := e.Marketing(MarketingImproveTools); err != nil {
		t.Fatalf("tools: %v", err)
	}
	if p, _ := e.MarketingPrice(MarketingImproveTools); !almostEqual(p, 450) {
		t.Fatalf("next price=%v", p)
	}
	if got := e.B2BTarget(); !almostEqual(got, base*1.2) {
		t.Fatalf("target=%v want %v", got, base*1.2)
	}
	if err := e.Marketing(MarketingImproveTools); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err=%v", err)
	}
	if err := e.Marketing("billboards"); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err=%v", err)
	}
}

func TestIntelligence_BalancedBeatsConcentrated(t *testing.T) {
	spec := tuning.Defaults().Intelligence
	lv := Levels{1, 1, 1}
	even := PassiveIntelligence(spec, lv, Amounts{Compute: 30, Data: 30, Algorithm: 30}, 1)
	for _, r := range Resources {
		var conc Amounts
		*conc.Ptr(r) = 90
		if got := PassiveIntelligence(spec, lv, conc, 1); got >= even {
			t.Fatalf("concentrated in %s=%v >= even=%v", r, got, even)
		}
	}
	if PassiveIntelligence(spec, lv, Amounts{}, 1) != 0 {
		t.Fatalf("empty mix should score 0")
	}
}

func TestIntelligence_NeverDecreases(t *testing.T) {
	e := newTestEngine(t, nil)
	e.state.Resources = Amounts{Compute: 50, Data: 50, Algorithm: 50}
	e.StepOnce(nil)
	high := e.state.Intelligence
	if high <= 0 {
		t.Fatalf("intelligence=%v", high)
	}
	e.state.Resources = Amounts{}
	e.StepOnce(nil)
	if e.state.Intelligence < high {
		t.Fatalf("intelligence dropped %v -> %v", high, e.state.Intelligence)
	}
}

func TestEra_AGIExactThreshold(t *testing.T) {
	e := newTestEngine(t, nil)
	sinks := &fakeSinks{}
	e.SetLeaderboard(sinks)
	snaps := make(chan snapshot.SnapshotV1, 4)
	e.SetSnapshotSink(snaps)
	rec := &recorder{}
	e.Subscribe(rec.listen)

	e.state.Intelligence = 1000
	e.StepOnce(nil)
	s := e.state
	if s.Era != EraAGI || !s.AGIReached || s.AGIReachedTick != 0 {
		t.Fatalf("era=%s reached=%v tick=%d", s.Era, s.AGIReached, s.AGIReachedTick)
	}
	var eras []Era
	for _, ev := range rec.events {
		if ev.Type == EventEraAdvanced {
			eras = append(eras, ev.Era)
		}
	}
	if len(eras) != 3 || eras[0] != EraGNT3 || eras[1] != EraGNT4 || eras[2] != EraAGI {
		t.Fatalf("era events=%v", eras)
	}
	if !almostEqual(s.Revenue.InvestorsTotal, 12000) {
		t.Fatalf("investor grants=%v", s.Revenue.InvestorsTotal)
	}

	s.Intelligence = 5000
	for i := 0; i < 20; i++ {
		e.StepOnce(nil)
	}
	if rec.count(EventAGIReached) != 1 || rec.count(EventEraAdvanced) != 3 {
		t.Fatalf("agi=%d eras=%d", rec.count(EventAGIReached), rec.count(EventEraAdvanced))
	}
	if len(sinks.runs) != 1 || sinks.runs[0].FinalIntelligence < 1000 || sinks.runs[0].PlayerName != "tester" {
		t.Fatalf("runs=%+v", sinks.runs)
	}
	if len(snaps) != 1 {
		t.Fatalf("agi snapshots=%d", len(snaps))
	}
}

func TestEra_AdvancesOneStepAtATime(t *testing.T) {
	e := newTestEngine(t, nil)
	e.state.Intelligence = 200
	e.StepOnce(nil)
	if e.state.Era != EraGNT3 {
		t.Fatalf("era=%s", e.state.Era)
	}
	money := e.state.Money
	e.StepOnce(nil)
	if e.state.Era != EraGNT3 || e.state.Money < money {
		t.Fatalf("era=%s", e.state.Era)
	}
}

func TestBreakthrough_UnlockOnce(t *testing.T) {
	e := newTestEngine(t, nil)
	rec := &recorder{}
	e.Subscribe(rec.listen)

	e.state.Levels.Algorithm = 2
	e.StepOnce(nil)
	b := e.state.breakthrough("backpropagation")
	if !b.Unlocked || b.UnlockedTick != 0 {
		t.Fatalf("backpropagation=%+v", b)
	}
	if e.state.CurrentGoal != "gpu_clusters" {
		t.Fatalf("goal=%q", e.state.CurrentGoal)
	}
	if !almostEqual(e.state.Multipliers.Production.Algorithm, 1.25) {
		t.Fatalf("algo mult=%v", e.state.Multipliers.Production.Algorithm)
	}
	if e.unlock("backpropagation") {
		t.Fatalf("re-unlock reported true")
	}
	for i := 0; i < 5; i++ {
		e.StepOnce(nil)
	}
	if rec.count(EventBreakthroughUnlocked) != 1 || len(e.state.UnlockedOrder) != 1 {
		t.Fatalf("unlock events=%d order=%v", rec.count(EventBreakthroughUnlocked), e.state.UnlockedOrder)
	}
	if !almostEqual(e.state.Multipliers.Production.Algorithm, 1.25) {
		t.Fatalf("effect applied twice: %v", e.state.Multipliers.Production.Algorithm)
	}
	if e.unlock("no_such_thing") {
		t.Fatalf("unknown id unlocked")
	}
}

func TestCondition_Met(t *testing.T) {
	s := &GameState{Levels: Levels{3, 2, 1}, Resources: Amounts{Data: 10}, Intelligence: 50, TrainingRunsCompleted: 1}
	cases := []struct {
		c    Condition
		want bool
	}{
		{Condition{MinLevels: map[Resource]int{Compute: 3}}, true},
		{Condition{MinLevels: map[Resource]int{Compute: 3, Data: 3}}, false},
		{Condition{MinResources: map[Resource]float64{Data: 10}}, true},
		{Condition{MinIntelligence: 51}, false},
		{Condition{MinTotalLevel: 6}, true},
		{Condition{MinTotalLevel: 7}, false},
		{Condition{MinTrainingRuns: 2}, false},
	}
	for i, tc := range cases {
		if got := tc.c.Met(s); got != tc.want {
			t.Fatalf("case %d: Met=%v want %v", i, got, tc.want)
		}
	}
}

func TestNarrative_FlagsFireOnce(t *testing.T) {
	e := newTestEngine(t, nil)
	rec := &recorder{}
	e.Subscribe(rec.listen)
	_ = e.AllocateMoney(Data, "quantity", 0)
	for i := 0; i < 5; i++ {
		e.StepOnce(nil)
	}
	n := 0
	for _, ev := range rec.events {
		if ev.Type == EventNotice && ev.Flag == "first_purchase" {
			n++
		}
	}
	if n != 1 || !e.state.NarrativeFlags["first_purchase"] {
		t.Fatalf("first_purchase notices=%d", n)
	}
}

func TestApply_UnknownCommand(t *testing.T) {
	e := newTestEngine(t, nil)
	rec := &recorder{}
	e.Subscribe(rec.listen)
	if err := e.Apply(Command{Type: "TELEPORT"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err=%v", err)
	}
	if rec.count(EventCommandRejected) != 1 {
		t.Fatalf("events=%+v", rec.events)
	}
}
