package indexdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"agirush.ai/internal/persistence/snapshot"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/game"
	"agirush.ai/internal/sim/tuning"
)

// HTTPConfig configures the remote ingest backend. Endpoint receives POSTed
// batches {"events":[...]}; GET <Endpoint>/runs?limit=N serves the leaderboard.
type HTTPConfig struct {
	Endpoint      string
	Token         string
	Source        string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained bounds how many unsent events survive failed flushes.
	MaxRetained int
	Logger      *log.Logger
}

type HTTPIndex struct {
	cfg        HTTPConfig
	httpClient *http.Client

	ch   chan httpEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	queueDropped atomic.Uint64
	retainDrop   atomic.Uint64
	flushOK      atomic.Uint64
	flushFail    atomic.Uint64
}

type httpEvent struct {
	Kind    string `json:"kind"`
	Source  string `json:"source"`
	Payload any    `json:"payload"`
}

type httpTickPayload struct {
	RunID    string         `json:"run_id"`
	Tick     uint64         `json:"tick"`
	Digest   string         `json:"digest"`
	Commands []game.Command `json:"commands,omitempty"`
	Events   []game.Event   `json:"events,omitempty"`
	Reset    bool           `json:"reset,omitempty"`
}

type httpSnapshotPayload struct {
	RunID        string  `json:"run_id"`
	Tick         uint64  `json:"tick"`
	Path         string  `json:"path"`
	Era          string  `json:"era"`
	Intelligence float64 `json:"intelligence"`
	Money        float64 `json:"money"`
	Unlocked     int     `json:"unlocked"`
	AGIReached   bool    `json:"agi_reached"`
}

type httpCatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

type HTTPStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	RetainDropTotal   uint64 `json:"retain_drop_total"`
	FlushOKTotal      uint64 `json:"flush_ok_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
}

func OpenHTTP(cfg HTTPConfig) (*HTTPIndex, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty index ingest endpoint")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("index ingest endpoint: %w", err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16384
	}

	d := &HTTPIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan httpEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *HTTPIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *HTTPIndex) Stats() HTTPStats {
	if d == nil {
		return HTTPStats{}
	}
	return HTTPStats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		QueueDroppedTotal: d.queueDropped.Load(),
		RetainDropTotal:   d.retainDrop.Load(),
		FlushOKTotal:      d.flushOK.Load(),
		FlushFailTotal:    d.flushFail.Load(),
	}
}

func (d *HTTPIndex) WriteTick(entry game.TickLogEntry) error {
	d.enqueue(httpEvent{Kind: "tick", Payload: httpTickPayload{
		RunID:    entry.RunID,
		Tick:     entry.Tick,
		Digest:   entry.Digest,
		Commands: entry.Commands,
		Events:   entry.Events,
		Reset:    entry.Reset,
	}})
	return nil
}

func (d *HTTPIndex) SubmitRun(r game.RunRecord) error {
	if !d.enqueue(httpEvent{Kind: "run", Payload: r}) {
		return ErrQueueFull
	}
	return nil
}

func (d *HTTPIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	d.enqueue(httpEvent{Kind: "snapshot", Payload: httpSnapshotPayload{
		RunID:        snap.Header.RunID,
		Tick:         snap.Header.Tick,
		Path:         path,
		Era:          snap.Era,
		Intelligence: snap.Intelligence,
		Money:        snap.Money,
		Unlocked:     len(snap.Unlocked),
		AGIReached:   snap.AGIReached,
	}})
}

func (d *HTTPIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range catalogRows(cats, tune) {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		d.enqueue(httpEvent{Kind: "catalog", Payload: httpCatalogPayload{
			Name:      r.name,
			Digest:    r.digest,
			JSON:      string(r.json),
			UpdatedAt: now,
		}})
	}
	return nil
}

// TopRuns asks the remote service for its ranked leaderboard.
func (d *HTTPIndex) TopRuns(ctx context.Context, limit int) ([]game.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.Endpoint+"/runs?limit="+strconv.Itoa(limit), nil)
	if err != nil {
		return nil, err
	}
	d.authorize(req)
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("leaderboard status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		Runs []game.RunRecord `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func (d *HTTPIndex) enqueue(ev httpEvent) bool {
	if d == nil || d.closed.Load() {
		return false
	}
	ev.Source = d.cfg.Source
	select {
	case d.ch <- ev:
		return true
	default:
		d.queueDropped.Add(1)
		d.printf("index queue full; drop kind=%s", ev.Kind)
		return false
	}
}

func (d *HTTPIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]httpEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.printf("index flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next flush; shed the oldest past the bound.
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.retainDrop.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.flushOK.Add(1)
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *HTTPIndex) sendBatch(events []httpEvent) error {
	body := struct {
		Events []httpEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		d.authorize(req)

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *HTTPIndex) authorize(req *http.Request) {
	if d.cfg.Token != "" {
		req.Header.Set("x-agi-index-token", d.cfg.Token)
	}
}

func (d *HTTPIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
