package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	persistlog "agirush.ai/internal/persistence/log"
	"agirush.ai/internal/persistence/snapshot"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/game"
)

var errStop = errors.New("stop")

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		dataDir   = flag.String("data", "./data", "runtime data directory (tick log under events/)")
		eventsDir = flag.String("events", "", "tick log dir containing events-*.jsonl.zst (default <data>/events)")
		configDir = flag.String("configs", "./configs", "config directory")
		toTick    = flag.Uint64("to_tick", 0, "stop after this tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d run=%s tick=%d era=%s intelligence=%s money=$%s unlocked=%d agi=%v\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.Tick, snap.Era,
		humanize.Commaf(snap.Intelligence), humanize.Commaf(snap.Money), len(snap.Unlocked), snap.AGIReached)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	e, err := game.New(game.Config{Tuning: snap.Tuning, Catalogs: cats, PlayerName: snap.PlayerName})
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
	if err := e.ImportSnapshot(snap); err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	dir := *eventsDir
	if dir == "" {
		dir = persistlog.TickLogDir(*dataDir)
	}
	files, err := persistlog.TickLogFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list tick log:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick log files found in", dir)
		os.Exit(1)
	}

	res, err := replay(e, files, snap.Header.RunID, snap.AppliedCommands, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	s := e.State()
	fmt.Printf("replay ok: checked=%s ticks (from tick=%d to tick=%d) commands=%s era=%s intelligence=%s agi=%v\n",
		humanize.Comma(int64(res.checked)), snap.Header.Tick, s.Tick, humanize.Comma(int64(res.commands)),
		s.Era, humanize.Commaf(s.Intelligence), s.AGIReached)
	if res.ended {
		fmt.Println("run ended by reset")
	}
}

type replayResult struct {
	checked  uint64
	commands int
	ended    bool
}

// replay steps e through every logged tick of runID from e's current tick on,
// comparing each resulting digest with the recorded one. The first applied
// commands of the first entry are already part of the snapshot and are
// skipped. It stops when the log moves on to another run or after toTick.
func replay(e *game.Engine, files []string, runID string, applied int, toTick uint64) (replayResult, error) {
	var res replayResult
	start := e.CurrentTick()
	for _, path := range files {
		err := persistlog.ReadTickLog(path, func(entry game.TickLogEntry) error {
			if entry.RunID != runID {
				// Another run's entries after ours mean the session was reset.
				if res.checked > 0 {
					res.ended = true
					return errStop
				}
				return nil
			}
			if entry.Reset {
				return nil
			}
			if entry.Tick < start {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errStop
			}
			if want := e.CurrentTick(); entry.Tick != want {
				return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", want, entry.Tick, filepath.Base(path))
			}
			cmds := entry.Commands
			if res.checked == 0 && entry.Tick == start {
				if applied > len(cmds) {
					return fmt.Errorf("tick %d logs %d commands, snapshot already applied %d", entry.Tick, len(cmds), applied)
				}
				cmds = cmds[applied:]
			}
			tick, digest := e.StepOnce(cmds)
			if tick != entry.Tick {
				return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
			}
			if digest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
			}
			res.checked++
			res.commands += len(cmds)
			return nil
		})
		if errors.Is(err, errStop) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
