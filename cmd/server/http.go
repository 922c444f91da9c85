package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"agirush.ai/internal/persistence/indexdb"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/game"
	"agirush.ai/internal/sim/tuning"
	"agirush.ai/internal/transport/ws"
)

// engineAPI is what the HTTP surface needs from *game.Engine.
type engineAPI interface {
	ws.Engine
	RequestState(ctx context.Context) (*game.GameState, error)
	RequestSnapshot(ctx context.Context) (uint64, error)
}

func newHTTPServer(addr string, e engineAPI, idx runtimeIndex, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(e, idx))
	mux.HandleFunc("/v1/leaderboard", leaderboardHandler(idx))

	if envBool("AGI_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", loopbackOnly(adminStateHandler(e)))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(adminSnapshotHandler(e)))
		mux.HandleFunc("/admin/v1/control", loopbackOnly(adminControlHandler(e)))
	} else {
		logger.Printf("admin endpoints disabled (AGI_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("AGI_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	catalogDigest := ""
	if cats != nil {
		catalogDigest = cats.Breakthroughs.Digest
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(e, ws.Config{
		Info: ws.Info{
			TickRateHz:    tune.TickRateHz,
			AGIThreshold:  tune.AGIThreshold,
			CatalogDigest: catalogDigest,
			TuningDigest:  tune.Digest(),
		},
		Logger: log.New(logger.Writer(), "[ws] ", log.LstdFlags|log.Lmicroseconds),
	}).Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func metricsHandler(e engineAPI, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := e.Metrics()
		run := m.RunID

		// Minimal Prometheus exposition format.
		gauge := func(name, help string, format string, v any) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
			fmt.Fprintf(rw, "%s{run=%q} "+format+"\n", name, run, v)
		}
		running := 0
		if m.Running {
			running = 1
		}
		gauge("agirush_tick", "Current game tick.", "%d", m.Tick)
		gauge("agirush_running", "1 while the game clock runs.", "%d", running)
		gauge("agirush_intelligence", "Current intelligence score.", "%.6f", m.Intelligence)
		gauge("agirush_money", "Current money balance.", "%.2f", m.Money)
		gauge("agirush_breakthroughs_unlocked", "Breakthroughs unlocked this run.", "%d", m.Unlocked)
		gauge("agirush_observers", "Connected state observers.", "%d", m.Observers)
		gauge("agirush_step_ms", "Last tick step duration in milliseconds.", "%.3f", m.StepMS)

		fmt.Fprintf(rw, "# HELP agirush_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE agirush_queue_depth gauge\n")
		fmt.Fprintf(rw, "agirush_queue_depth{queue=%q} %d\n", "commands", m.QueueDepths.Commands)
		fmt.Fprintf(rw, "agirush_queue_depth{queue=%q} %d\n", "controls", m.QueueDepths.Controls)

		// Era as an info-style gauge.
		fmt.Fprintf(rw, "# HELP agirush_era Current era (value is always 1).\n")
		fmt.Fprintf(rw, "# TYPE agirush_era gauge\n")
		fmt.Fprintf(rw, "agirush_era{run=%q,era=%q} 1\n", run, m.Era)

		writeIndexMetrics(rw, idx)
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx runtimeIndex) {
	switch x := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := x.Stats()
		fmt.Fprintf(rw, "# HELP agirush_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE agirush_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "agirush_index_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP agirush_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE agirush_index_dropped_total counter\n")
		fmt.Fprintf(rw, "agirush_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "agirush_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
		fmt.Fprintf(rw, "agirush_index_dropped_total{kind=%q} %d\n", "run", s.DropRunTotal)
	case *indexdb.HTTPIndex:
		s := x.Stats()
		fmt.Fprintf(rw, "# HELP agirush_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE agirush_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "agirush_index_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP agirush_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE agirush_index_dropped_total counter\n")
		fmt.Fprintf(rw, "agirush_index_dropped_total{kind=%q} %d\n", "queue", s.QueueDroppedTotal)
		fmt.Fprintf(rw, "agirush_index_dropped_total{kind=%q} %d\n", "retained", s.RetainDropTotal)
		fmt.Fprintf(rw, "# HELP agirush_index_flush_total Remote index flushes by outcome.\n")
		fmt.Fprintf(rw, "# TYPE agirush_index_flush_total counter\n")
		fmt.Fprintf(rw, "agirush_index_flush_total{result=%q} %d\n", "ok", s.FlushOKTotal)
		fmt.Fprintf(rw, "agirush_index_flush_total{result=%q} %d\n", "fail", s.FlushFailTotal)
	}
}

func leaderboardHandler(idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if idx == nil {
			http.Error(rw, "leaderboard disabled", http.StatusServiceUnavailable)
			return
		}
		limit := 10
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 100 {
				http.Error(rw, "limit must be 1..100", http.StatusBadRequest)
				return
			}
			limit = n
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		runs, err := idx.TopRuns(ctx, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadGateway)
			return
		}
		if runs == nil {
			runs = []game.RunRecord{}
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"runs": runs})
	}
}

func adminStateHandler(e engineAPI) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		s, err := e.RequestState(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			Metrics game.Metrics    `json:"metrics"`
			State   *game.GameState `json:"state"`
		}{Metrics: e.Metrics(), State: s})
	}
}

func adminSnapshotHandler(e engineAPI) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, err := e.RequestSnapshot(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
	}
}

func adminControlHandler(e engineAPI) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(rw, "bad json", http.StatusBadRequest)
			return
		}
		action := game.ControlAction(strings.ToUpper(strings.TrimSpace(body.Action)))
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		res, err := e.Control(ctx, action)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if !res.OK() {
			rw.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": res.Tick, "error": res.Err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": res.Tick})
	}
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
