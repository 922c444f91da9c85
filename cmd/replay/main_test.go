package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	persistlog "agirush.ai/internal/persistence/log"
	"agirush.ai/internal/persistence/snapshot"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/game"
	"agirush.ai/internal/sim/tuning"
)

func newEngine(t *testing.T, tu tuning.Tuning, runs *int) *game.Engine {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "configs"))
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	e, err := game.New(game.Config{
		Tuning:     tu,
		Catalogs:   cats,
		PlayerName: "replayer",
		NewRunID: func() string {
			*runs++
			return fmt.Sprintf("run-%d", *runs)
		},
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

// record plays a short scripted session into a tick log and returns the
// snapshot taken at tick 20. A data purchase is applied between ticks 19 and
// 20, after the snapshot unless applyFirst is set.
func record(t *testing.T, dataDir string, resetAfter, applyFirst bool) snapshot.SnapshotV1 {
	t.Helper()
	runs := 0
	e := newEngine(t, tuning.Defaults(), &runs)
	tl := persistlog.NewTickLogger(dataDir)
	e.SetTickLogger(tl)

	var snap snapshot.SnapshotV1
	for i := 0; i < 120; i++ {
		var cmds []game.Command
		switch i {
		case 0:
			cmds = []game.Command{{Type: game.CmdSetRevenue, Stream: game.StreamB2B, Enabled: true}}
		case 10, 40:
			cmds = []game.Command{{Type: game.CmdAllocate, Resource: game.Compute, Input: "hardware"}}
		case 30:
			cmds = []game.Command{{Type: game.CmdStartTraining, Preset: "small"}}
		}
		if i == 20 {
			// Applied between ticks: logged with the next entry.
			buy := game.Command{Type: game.CmdAllocate, Resource: game.Data, Input: "quantity"}
			if applyFirst {
				if err := e.Apply(buy); err != nil {
					t.Fatalf("apply: %v", err)
				}
				snap = e.ExportSnapshot()
			} else {
				snap = e.ExportSnapshot()
				_ = e.Apply(buy)
			}
		}
		e.StepOnce(cmds)
	}
	if resetAfter {
		e.Reset()
		for i := 0; i < 5; i++ {
			e.StepOnce(nil)
		}
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return snap
}

func loadReplay(t *testing.T, snap snapshot.SnapshotV1) *game.Engine {
	t.Helper()
	runs := 100
	e := newEngine(t, snap.Tuning, &runs)
	if err := e.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	return e
}

func TestReplay_MatchesRecordedDigests(t *testing.T) {
	dir := t.TempDir()
	snap := record(t, dir, true, false)
	files, err := persistlog.TickLogFiles(persistlog.TickLogDir(dir))
	if err != nil || len(files) == 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}

	e := loadReplay(t, snap)
	res, err := replay(e, files, snap.Header.RunID, snap.AppliedCommands, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.checked != 100 || !res.ended {
		t.Fatalf("res=%+v", res)
	}
	if res.commands != 3 {
		t.Fatalf("commands=%d", res.commands)
	}
	if e.CurrentTick() != 120 {
		t.Fatalf("tick=%d", e.CurrentTick())
	}
}

func TestReplay_StopsAtToTick(t *testing.T) {
	dir := t.TempDir()
	snap := record(t, dir, false, false)
	files, _ := persistlog.TickLogFiles(persistlog.TickLogDir(dir))

	e := loadReplay(t, snap)
	res, err := replay(e, files, snap.Header.RunID, snap.AppliedCommands, 49)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.checked != 30 || res.ended || e.CurrentTick() != 50 {
		t.Fatalf("res=%+v tick=%d", res, e.CurrentTick())
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	snap := record(t, dir, false, false)
	files, _ := persistlog.TickLogFiles(persistlog.TickLogDir(dir))

	snap.Money += 1
	e := loadReplay(t, snap)
	_, err := replay(e, files, snap.Header.RunID, snap.AppliedCommands, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("err=%v", err)
	}
}

func TestReplay_SnapshotBetweenTicksSkipsAppliedCommands(t *testing.T) {
	dir := t.TempDir()
	snap := record(t, dir, false, true)
	if snap.AppliedCommands != 1 {
		t.Fatalf("applied=%d", snap.AppliedCommands)
	}
	files, _ := persistlog.TickLogFiles(persistlog.TickLogDir(dir))

	e := loadReplay(t, snap)
	if got := e.State().InputLevel(game.Data, "quantity"); got != 1 {
		t.Fatalf("snapshot quantity level=%d", got)
	}
	res, err := replay(e, files, snap.Header.RunID, snap.AppliedCommands, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.checked != 100 || res.commands != 2 {
		t.Fatalf("res=%+v", res)
	}
	if got := e.State().InputLevel(game.Data, "quantity"); got != 1 {
		t.Fatalf("quantity level=%d after replay", got)
	}
}
