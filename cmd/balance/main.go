// Command balance plays a headless session with the autoplay planner and
// reports how long each era takes under a tuning file.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"agirush.ai/internal/sim/autoplay"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/game"
	"agirush.ai/internal/sim/tuning"
)

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "tuning yaml (default <configs>/tuning.yaml, falls back to built-in defaults)")
		preset     = flag.String("preset", "small", "training preset the planner keeps running (empty disables training)")
		reserve    = flag.Float64("reserve", 0, "money kept back from input purchases, as a multiple of the price")
		perTick    = flag.Int("per_tick", 3, "max commands the planner may issue per tick")
		maxHours   = flag.Float64("max_hours", 12, "give up after this much simulated time")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tu, err := loadTuning(*configDir, *tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	p := autoplay.New(tu)
	p.TrainingPreset = *preset
	p.Reserve = *reserve

	start := time.Now()
	rep, err := simulate(tu, cats, p, *perTick, *maxHours*3600)
	if err != nil {
		fmt.Fprintln(os.Stderr, "simulate:", err)
		os.Exit(1)
	}

	fmt.Printf("tuning %s, %d Hz, %s ticks simulated in %s\n",
		tu.Digest(), tu.TickRateHz, humanize.Comma(int64(rep.ticks)), time.Since(start).Round(time.Millisecond))
	for _, m := range rep.milestones {
		fmt.Printf("  %-28s t=%8ss  intel=%-12s money=$%s\n", m.label, humanize.CommafWithDigits(m.seconds, 1),
			humanize.Commaf(m.intelligence), humanize.Commaf(m.money))
	}
	fmt.Printf("commands=%s rejected=%s training_runs=%d breakthroughs=%d\n",
		humanize.Comma(int64(rep.commands)), humanize.Comma(int64(rep.rejected)), rep.final.TrainingRunsCompleted, rep.final.UnlockedCount())
	if !rep.final.AGIReached {
		fmt.Printf("AGI not reached within %s simulated hours (intelligence %s of %s)\n",
			humanize.Commaf(*maxHours), humanize.Commaf(rep.final.Intelligence), humanize.Commaf(tu.AGIThreshold))
		os.Exit(1)
	}
}

func loadTuning(configDir, path string) (tuning.Tuning, error) {
	if path != "" {
		return tuning.Load(path)
	}
	def := filepath.Join(configDir, "tuning.yaml")
	if _, err := os.Stat(def); err == nil {
		return tuning.Load(def)
	}
	return tuning.Defaults(), nil
}

type milestone struct {
	label        string
	tick         uint64
	seconds      float64
	intelligence float64
	money        float64
}

type report struct {
	ticks      uint64
	commands   int
	rejected   int
	milestones []milestone
	final      *game.GameState
}

// simulate steps a fresh engine until AGI or maxSeconds of game time, letting
// the planner issue up to perTick commands at every tick boundary.
func simulate(tu tuning.Tuning, cats *catalogs.Catalogs, p autoplay.Planner, perTick int, maxSeconds float64) (report, error) {
	var rep report
	e, err := game.New(game.Config{Tuning: tu, Catalogs: cats, PlayerName: "balance", NewRunID: func() string { return "balance" }})
	if err != nil {
		return rep, err
	}
	if perTick < 1 {
		perTick = 1
	}

	e.Subscribe(func(s *game.GameState, evs []game.Event) {
		for _, ev := range evs {
			var label string
			switch ev.Type {
			case game.EventBreakthroughUnlocked:
				label = "breakthrough " + ev.Breakthrough
			case game.EventEraAdvanced:
				label = "era " + string(ev.Era)
			case game.EventCommandRejected, game.EventInsufficientFunds:
				rep.rejected++
				continue
			default:
				continue
			}
			rep.milestones = append(rep.milestones, milestone{
				label: label, tick: s.Tick, seconds: s.ElapsedSeconds, intelligence: s.Intelligence, money: s.Money,
			})
		}
	})

	maxTicks := uint64(maxSeconds * float64(tu.TickRateHz))
	for rep.ticks < maxTicks {
		s := e.State()
		if s.AGIReached {
			break
		}
		var cmds []game.Command
		for len(cmds) < perTick {
			cmd, ok := p.Next(s)
			if !ok {
				break
			}
			cmds = append(cmds, cmd)
			// Only revenue toggles leave the plan unchanged for the rest of
			// the batch; anything that spends money needs a fresh view.
			if cmd.Type != game.CmdSetRevenue {
				break
			}
			if cmd.Stream == game.StreamB2B {
				s.Revenue.B2BEnabled = true
			} else {
				s.Revenue.B2CEnabled = true
			}
		}
		rep.commands += len(cmds)
		e.StepOnce(cmds)
		rep.ticks++
	}
	rep.final = e.State()
	return rep, nil
}
