package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"agirush.ai/internal/persistence/archive"
	persistlog "agirush.ai/internal/persistence/log"
	"agirush.ai/internal/persistence/snapshot"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/game"
	"agirush.ai/internal/sim/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		player     = flag.String("player", "player", "player name recorded on the leaderboard")
		autostart  = flag.Bool("autostart", false, "start the game clock immediately")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks, snapshots, leaderboard)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(*dataDir)
	}

	// Tuning is required for a fresh run; a snapshot carries its own.
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	idx, err := openRuntimeIndex(*dataDir, *player, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	e, err := game.New(game.Config{
		Tuning:     tune,
		Catalogs:   cats,
		PlayerName: *player,
		Logger:     log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := e.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d run=%s money=%s",
			filepath.Base(snapshotToLoad), e.CurrentTick(), snap.Header.RunID, humanize.Commaf(snap.Money))
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(*dataDir)
	defer tickLog.Close()
	e.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	if idx != nil {
		e.SetLeaderboard(idx)
	}
	e.Subscribe(milestoneLogger(logger))

	snapCh := make(chan snapshot.SnapshotV1, 2)
	e.SetSnapshotSink(snapCh)
	// The writer outlives the engine so a snapshot pushed on the way out
	// still lands on disk.
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		runSnapshotWriter(writerCtx, *dataDir, snapCh, idx, logger)
	}()

	if *autostart {
		if err := e.Start(); err != nil {
			logger.Printf("autostart: %v", err)
		}
	}
	runDone := startEngine(ctx, e, logger)

	srv := newHTTPServer(*addr, e, idx, tune, cats, logger)
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	// Sinks close in deferred calls; the loop must be gone by then.
	cancel()
	<-runDone
	stopWriter()
	<-writerDone
}

// startEngine runs the engine loop until ctx ends. The returned channel is
// closed once Run has returned.
func startEngine(ctx context.Context, e *game.Engine, logger *log.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()
	return done
}

// runSnapshotWriter persists snapshots pushed by the engine, indexes them and
// archives the terminal snapshot of every run that reached AGI.
func runSnapshotWriter(ctx context.Context, dataDir string, snaps <-chan snapshot.SnapshotV1, idx runtimeIndex, logger *log.Logger) {
	archived := map[string]bool{}
	write := func(snap snapshot.SnapshotV1) {
		path := filepath.Join(dataDir, "snapshots", snap.Header.RunID, fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		if !snap.AGIReached || archived[snap.Header.RunID] {
			return
		}
		if dst, ok, err := archive.ArchiveRunSnapshot(dataDir, path, snap); err != nil {
			logger.Printf("archive run snapshot: %v", err)
		} else if ok {
			archived[snap.Header.RunID] = true
			logger.Printf("archived run=%s at %s", snap.Header.RunID, dst)
		}
	}
	for {
		select {
		case <-ctx.Done():
			// Keep whatever the engine pushed on its way out.
			for {
				select {
				case snap := <-snaps:
					write(snap)
				default:
					return
				}
			}
		case snap := <-snaps:
			write(snap)
		}
	}
}

func milestoneLogger(logger *log.Logger) game.Listener {
	return func(s *game.GameState, evs []game.Event) {
		for _, ev := range evs {
			switch ev.Type {
			case game.EventBreakthroughUnlocked:
				logger.Printf("tick=%d breakthrough %s", ev.Tick, ev.Breakthrough)
			case game.EventEraAdvanced:
				logger.Printf("tick=%d era %s -> %s intelligence=%s money=%s",
					ev.Tick, ev.FromEra, ev.Era, humanize.Commaf(s.Intelligence), humanize.Commaf(s.Money))
			case game.EventAGIReached:
				logger.Printf("tick=%d AGI reached after %s seconds (peak money %s)",
					ev.Tick, humanize.Commaf(s.ElapsedSeconds), humanize.Commaf(s.PeakMoney))
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// latestSnapshot returns the most recently written snapshot under
// dataDir/snapshots/<run_id>/.
func latestSnapshot(dataDir string) string {
	files, _ := filepath.Glob(filepath.Join(dataDir, "snapshots", "*", "*.snap.zst"))
	var best string
	var bestTime time.Time
	var bestTick uint64
	for _, path := range files {
		tick, err := strconv.ParseUint(strings.TrimSuffix(filepath.Base(path), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		mt := fi.ModTime()
		if best == "" || mt.After(bestTime) || (mt.Equal(bestTime) && tick > bestTick) {
			best, bestTime, bestTick = path, mt, tick
		}
	}
	return best
}
