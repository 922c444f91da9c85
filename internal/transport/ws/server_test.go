package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"agirush.ai/internal/protocol"
	"agirush.ai/internal/sim/catalogs"
	"agirush.ai/internal/sim/game"
	"agirush.ai/internal/sim/tuning"
)

func startServer(t *testing.T, cfg Config) (*websocket.Conn, *game.Engine) {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tu := tuning.Defaults()
	e, err := game.New(game.Config{Tuning: tu, Catalogs: cats})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()

	cfg.Info = Info{TickRateHz: tu.TickRateHz, AGIThreshold: tu.AGIThreshold, CatalogDigest: cats.Breakthroughs.Digest, TuningDigest: tu.Digest()}
	srv := httptest.NewServer(NewServer(e, cfg).Handler())

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Close()
		cancel()
		<-done
	})
	return conn, e
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil returns the first frame of the given type, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == typ {
			return msg
		}
	}
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "ada"})
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeWelcome), &w); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	return w
}

func readAck(t *testing.T, conn *websocket.Conn) protocol.AckMsg {
	t.Helper()
	var a protocol.AckMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &a); err != nil {
		t.Fatalf("ack: %v", err)
	}
	return a
}

func TestHandshakeAndCommands(t *testing.T) {
	conn, _ := startServer(t, Config{})

	w := hello(t, conn)
	if w.SessionID == "" || w.RunID == "" || w.TickRateHz != 10 || w.Running {
		t.Fatalf("welcome=%+v", w)
	}

	var st protocol.StateMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeState), &st); err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.State == nil || st.State.Money != 1000 {
		t.Fatalf("initial state=%+v", st.State)
	}

	send(t, conn, protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ReqID:           "c1",
		Command:         game.Command{Type: game.CmdAllocate, Resource: game.Compute, Input: "hardware"},
	})
	if a := readAck(t, conn); !a.Accepted || a.AckFor != "c1" {
		t.Fatalf("ack=%+v", a)
	}

	send(t, conn, protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ReqID:           "c2",
		Command:         game.Command{Type: game.CmdSetRevenue, Stream: game.StreamB2C, Enabled: true},
	})
	if a := readAck(t, conn); a.Accepted || a.Code != protocol.ErrLocked {
		t.Fatalf("locked ack=%+v", a)
	}

	send(t, conn, protocol.ControlMsg{Type: protocol.TypeControl, ProtocolVersion: protocol.Version, ReqID: "k1", Action: game.ControlStart})
	if a := readAck(t, conn); !a.Accepted || a.AckFor != "k1" {
		t.Fatalf("control ack=%+v", a)
	}
	send(t, conn, protocol.ControlMsg{Type: protocol.TypeControl, ProtocolVersion: protocol.Version, ReqID: "k2", Action: game.ControlStart})
	if a := readAck(t, conn); a.Accepted || a.Code != protocol.ErrInvalidTransition {
		t.Fatalf("double start ack=%+v", a)
	}

	// The clock is running now; ticks keep arriving.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := json.Unmarshal(readUntil(t, conn, protocol.TypeState), &st); err != nil {
			t.Fatalf("state: %v", err)
		}
		if st.Tick >= 3 {
			return
		}
	}
	t.Fatalf("ticks did not advance: last=%d", st.Tick)
}

func TestRejectsBadFrames(t *testing.T) {
	conn, _ := startServer(t, Config{})
	hello(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CMD","protocol_version":"1.0","req_id":"x","command":{"type":"TELEPORT"}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if a := readAck(t, conn); a.Accepted || a.Code != protocol.ErrProtoBadRequest || a.AckFor != "x" {
		t.Fatalf("ack=%+v", a)
	}
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "again"})
	if a := readAck(t, conn); a.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("second hello ack=%+v", a)
	}
}

func TestRateLimit(t *testing.T) {
	conn, _ := startServer(t, Config{RateLimit: 0.001, Burst: 1})
	hello(t, conn)
	cmd := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ReqID:           "r1",
		Command:         game.Command{Type: game.CmdSetRevenue, Stream: game.StreamB2B, Enabled: true},
	}
	send(t, conn, cmd)
	if a := readAck(t, conn); !a.Accepted {
		t.Fatalf("first ack=%+v", a)
	}
	cmd.ReqID = "r2"
	send(t, conn, cmd)
	if a := readAck(t, conn); a.Code != protocol.ErrRateLimit || a.AckFor != "r2" {
		t.Fatalf("second ack=%+v", a)
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	conn, _ := startServer(t, Config{})
	send(t, conn, protocol.ControlMsg{Type: protocol.TypeControl, ProtocolVersion: protocol.Version, ReqID: "k", Action: game.ControlStart})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err=%v want policy close", err)
	}
}
