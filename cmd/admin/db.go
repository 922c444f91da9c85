package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"

	"agirush.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/agirush.sqlite)")
	runID := fs.String("run", "", "run id filter (snapshots, ticks, events)")
	eventType := fs.String("type", "", "event type filter (events)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "agirush.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	run := strings.TrimSpace(*runID)
	switch q {
	case "runs":
		rows, err := db.Query(`SELECT run_id,player_name,final_intelligence,total_time_elapsed,peak_money,peak_b2b,peak_b2c,breakthroughs,tick,recorded_at
			FROM runs ORDER BY total_time_elapsed ASC, final_intelligence DESC, run_id ASC LIMIT ?`, *limit)
		if err != nil {
			fatalQuery(err)
		}
		defer rows.Close()
		rank := 0
		for rows.Next() {
			var r struct {
				Rank          int     `json:"rank"`
				RunID         string  `json:"run_id"`
				PlayerName    string  `json:"player_name"`
				Intelligence  float64 `json:"final_intelligence"`
				Elapsed       float64 `json:"total_time_elapsed"`
				PeakMoney     float64 `json:"peak_money"`
				PeakB2B       float64 `json:"peak_b2b_subscribers"`
				PeakB2C       float64 `json:"peak_b2c_subscribers"`
				Breakthroughs int     `json:"breakthroughs_unlocked"`
				Tick          uint64  `json:"tick"`
				RecordedAt    string  `json:"recorded_at"`
			}
			if err := rows.Scan(&r.RunID, &r.PlayerName, &r.Intelligence, &r.Elapsed, &r.PeakMoney, &r.PeakB2B, &r.PeakB2C, &r.Breakthroughs, &r.Tick, &r.RecordedAt); err != nil {
				fatalQuery(err)
			}
			rank++
			r.Rank = rank
			printJSON(r)
		}
		checkRows(rows)

	case "snapshots":
		rows, err := db.Query(`SELECT run_id,tick,path,era,intelligence,money,unlocked,agi_reached FROM snapshots
			WHERE (?='' OR run_id=?) ORDER BY tick DESC LIMIT ?`, run, run, *limit)
		if err != nil {
			fatalQuery(err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID        string  `json:"run_id"`
				Tick         uint64  `json:"tick"`
				Path         string  `json:"path"`
				Era          string  `json:"era"`
				Intelligence float64 `json:"intelligence"`
				Money        float64 `json:"money"`
				Unlocked     int     `json:"unlocked"`
				AGIReached   bool    `json:"agi_reached"`
			}
			if err := rows.Scan(&r.RunID, &r.Tick, &r.Path, &r.Era, &r.Intelligence, &r.Money, &r.Unlocked, &r.AGIReached); err != nil {
				fatalQuery(err)
			}
			printJSON(r)
		}
		checkRows(rows)

	case "ticks":
		rows, err := db.Query(`SELECT run_id,tick,digest,commands,events,reset FROM ticks
			WHERE (?='' OR run_id=?) AND (commands>0 OR events>0 OR reset=1) ORDER BY tick DESC LIMIT ?`, run, run, *limit)
		if err != nil {
			fatalQuery(err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID    string `json:"run_id"`
				Tick     uint64 `json:"tick"`
				Digest   string `json:"digest"`
				Commands int    `json:"commands"`
				Events   int    `json:"events"`
				Reset    bool   `json:"reset,omitempty"`
			}
			if err := rows.Scan(&r.RunID, &r.Tick, &r.Digest, &r.Commands, &r.Events, &r.Reset); err != nil {
				fatalQuery(err)
			}
			printJSON(r)
		}
		checkRows(rows)

	case "events":
		typ := strings.TrimSpace(*eventType)
		rows, err := db.Query(`SELECT raw_json FROM events
			WHERE (?='' OR run_id=?) AND (?='' OR type=?) ORDER BY tick DESC, seq DESC LIMIT ?`, run, run, typ, typ, *limit)
		if err != nil {
			fatalQuery(err)
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				fatalQuery(err)
			}
			fmt.Println(raw)
		}
		checkRows(rows)

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fatalQuery(err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fatalQuery(err)
			}
			printJSON(r)
		}
		checkRows(rows)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-run RUN] [-type TYPE] [-limit N] runs|snapshots|ticks|events|catalogs")
		os.Exit(2)
	}
}

func fatalQuery(err error) {
	fmt.Fprintln(os.Stderr, "query:", err)
	os.Exit(1)
}

func checkRows(rows *sql.Rows) {
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func leaderboardCmd(args []string) {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	limit := fs.Int("limit", 10, "result limit")
	_ = fs.Parse(args)

	idx, err := indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "agirush.sqlite"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	runs, err := idx.TopRuns(context.Background(), *limit)
	if err != nil {
		fatalQuery(err)
	}
	if len(runs) == 0 {
		fmt.Println("no finished runs")
		return
	}
	for i, r := range runs {
		fmt.Printf("%2d. %-20s %10ss  intel=%s  peak=$%s  b2b=%s  b2c=%s  breakthroughs=%d\n",
			i+1, r.PlayerName, humanize.CommafWithDigits(r.TotalTimeElapsed, 1), humanize.Commaf(r.FinalIntelligence),
			humanize.Commaf(r.PeakMoney), humanize.Commaf(r.PeakB2BSubscribers), humanize.Commaf(r.PeakB2CSubscribers), r.BreakthroughsUnlocked)
	}
}
