package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"agirush.ai/internal/persistence/archive"
	"agirush.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "archives":
			archivesCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "leaderboard":
			leaderboardCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "control":
			controlCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type snapFile struct {
	path   string
	header snapshot.Header
	mod    time.Time
}

func listSnapshots(dataDir, runID string) ([]snapFile, error) {
	pattern := filepath.Join(dataDir, "snapshots", "*", "*.snap.zst")
	if runID != "" {
		pattern = filepath.Join(dataDir, "snapshots", runID, "*.snap.zst")
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]snapFile, 0, len(paths))
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", p, err)
			continue
		}
		var mod time.Time
		if fi, err := os.Stat(p); err == nil {
			mod = fi.ModTime()
		}
		out = append(out, snapFile{path: p, header: h, mod: mod})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].mod.Equal(out[j].mod) {
			return out[i].mod.Before(out[j].mod)
		}
		return out[i].header.Tick < out[j].header.Tick
	})
	return out, nil
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (optional)")
	_ = fs.Parse(args)

	snaps, err := listSnapshots(*dataDir, strings.TrimSpace(*runID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	if len(snaps) == 0 {
		fmt.Println("no snapshots")
		return
	}
	for _, s := range snaps {
		fmt.Printf("%s\trun=%s\ttick=%d\twritten %s\n", s.path, s.header.RunID, s.header.Tick, humanize.Time(s.mod))
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		snaps, err := listSnapshots(*dataDir, "")
		if err != nil || len(snaps) == 0 {
			fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
			os.Exit(2)
		}
		path = snaps[len(snaps)-1].path
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printSnapshot(path, snap)
}

func printSnapshot(path string, s snapshot.SnapshotV1) {
	fmt.Printf("snapshot   %s (v%d)\n", path, s.Header.Version)
	fmt.Printf("run        %s player=%q tick=%d elapsed=%ss\n", s.Header.RunID, s.PlayerName, s.Header.Tick, humanize.Commaf(s.ElapsedSeconds))
	fmt.Printf("era        %s agi=%v", s.Era, s.AGIReached)
	if s.AGIReached {
		fmt.Printf(" at tick %d", s.AGIReachedTick)
	}
	fmt.Println()
	fmt.Printf("intel      %s (passive %s, training bonus %s)\n",
		humanize.Commaf(s.Intelligence), humanize.Commaf(s.PassiveIntelligence), humanize.Commaf(s.TrainingBonus))
	fmt.Printf("money      $%s (peak $%s)\n", humanize.Commaf(s.Money), humanize.Commaf(s.PeakMoney))
	fmt.Printf("levels     compute=%d data=%d algorithm=%d\n", s.Levels.Compute, s.Levels.Data, s.Levels.Algorithm)
	fmt.Printf("resources  compute=%s data=%s algorithm=%s\n",
		humanize.Commaf(s.Resources.Compute), humanize.Commaf(s.Resources.Data), humanize.Commaf(s.Resources.Algorithm))
	c := s.Capacity
	fmt.Printf("capacity   max=%s used=%s customers=%s reserved=%s served=%.0f%%\n",
		humanize.Commaf(c.MaxCapacity), humanize.Commaf(c.Used), humanize.Commaf(c.CustomerUsage), humanize.Commaf(c.Reserved), c.ServedFraction*100)
	fmt.Printf("training   %s runs_completed=%d\n", s.Training.Phase, s.TrainingRunsCompleted)
	r := s.Revenue
	fmt.Printf("revenue    b2b=%v ($%s) b2c=%v ($%s) investors=$%s\n",
		r.B2BEnabled, humanize.Commaf(r.B2BTotal), r.B2CEnabled, humanize.Commaf(r.B2CTotal), humanize.Commaf(r.InvestorsTotal))
	fmt.Printf("unlocked   %d", len(s.Unlocked))
	for _, u := range s.Unlocked {
		fmt.Printf(" %s@%d", u.ID, u.Tick)
	}
	fmt.Println()
	fmt.Printf("digests    tuning=%s catalog=%s\n", s.Tuning.Digest(), s.CatalogDigest)
}

func archivesCmd(args []string) {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dirs, err := filepath.Glob(filepath.Join(*dataDir, "archives", "run_*"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		m, err := archive.ReadMeta(d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", d, err)
			continue
		}
		fmt.Printf("%s\tplayer=%q\tagi_tick=%d\ttime=%ss\tintel=%s\tbreakthroughs=%d\n",
			m.RunID, m.PlayerName, m.AGITick, humanize.Commaf(m.ElapsedSeconds), humanize.Commaf(m.Intelligence), m.Breakthroughs)
	}
}
