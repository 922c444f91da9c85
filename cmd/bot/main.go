package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"agirush.ai/internal/protocol"
	"agirush.ai/internal/sim/autoplay"
	"agirush.ai/internal/sim/game"
	"agirush.ai/internal/sim/tuning"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "bot", "player name")
		tuningPath = flag.String("tuning", "", "tuning yaml matching the server (empty = built-in defaults)")
		start      = flag.Bool("start", true, "send CONTROL START after the handshake if the clock is paused")
		preset     = flag.String("preset", "small", "training preset to keep running (empty disables training)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	tu := tuning.Defaults()
	if *tuningPath != "" {
		var err error
		if tu, err = tuning.Load(*tuningPath); err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	p := autoplay.New(tu)
	p.TrainingPreset = *preset

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: *name}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	b := &bot{conn: conn, logger: logger, planner: p}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s run=%s tick_rate=%d agi_threshold=%s running=%v",
				w.SessionID, w.RunID, w.TickRateHz, humanize.Commaf(w.AGIThreshold), w.Running)
			if w.TuningDigest != tu.Digest() {
				logger.Printf("tuning digest %s differs from server %s; plans may be off", tu.Digest(), w.TuningDigest)
			}
			if !w.Running && *start {
				b.control(game.ControlStart)
			}

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil || st.State == nil {
				continue
			}
			if b.onState(st.State) {
				return
			}

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			b.onEvent(ev)

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			b.onAck(ack)
		}
	}
}

type bot struct {
	conn    *websocket.Conn
	logger  *log.Logger
	planner autoplay.Planner

	seq      int
	inFlight string
	sentAt   time.Time
}

func (b *bot) nextReqID(prefix string) string {
	b.seq++
	return prefix + strconv.Itoa(b.seq)
}

func (b *bot) control(a game.ControlAction) {
	msg := protocol.ControlMsg{Type: protocol.TypeControl, ProtocolVersion: protocol.Version, ReqID: b.nextReqID("C"), Action: a}
	if err := b.conn.WriteJSON(msg); err != nil {
		b.logger.Printf("send CONTROL: %v", err)
	}
}

// onState plans one command per state frame, with at most one unacknowledged
// command on the wire. It reports true once the run reached AGI.
func (b *bot) onState(s *game.GameState) bool {
	if s.AGIReached {
		b.logger.Printf("AGI reached at tick %d after %s seconds, intelligence=%s",
			s.AGIReachedTick, humanize.Commaf(s.ElapsedSeconds), humanize.Commaf(s.Intelligence))
		return true
	}
	if b.inFlight != "" && time.Since(b.sentAt) < 5*time.Second {
		return false
	}
	cmd, ok := b.planner.Next(s)
	if !ok {
		return false
	}
	msg := protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ReqID: b.nextReqID("K"), Command: cmd}
	if err := b.conn.WriteJSON(msg); err != nil {
		b.logger.Printf("send CMD: %v", err)
		return false
	}
	b.inFlight, b.sentAt = msg.ReqID, time.Now()
	return false
}

func (b *bot) onAck(ack protocol.AckMsg) {
	if ack.AckFor == b.inFlight {
		b.inFlight = ""
	}
	if !ack.Accepted {
		b.logger.Printf("ACK %s rejected at tick %d: %s %s", ack.AckFor, ack.Tick, ack.Code, ack.Message)
	}
}

func (b *bot) onEvent(ev protocol.EventMsg) {
	switch ev.Event.Type {
	case game.EventBreakthroughUnlocked:
		b.logger.Printf("tick %d: breakthrough %s", ev.Tick, ev.Event.Breakthrough)
	case game.EventEraAdvanced:
		b.logger.Printf("tick %d: era %s", ev.Tick, ev.Event.Era)
	}
}
