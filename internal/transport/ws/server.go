package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"agirush.ai/internal/protocol"
	"agirush.ai/internal/sim/game"
)

// Engine is the part of *game.Engine a connection needs. All methods are
// safe to call while the engine loop runs.
type Engine interface {
	Submit(ctx context.Context, cmd game.Command) (game.Result, error)
	Control(ctx context.Context, action game.ControlAction) (game.Result, error)
	Observe(ctx context.Context, buffer int) (*game.Observer, error)
	Unobserve(id uint64)
	Metrics() game.Metrics
}

// Info is the static part of WELCOME.
type Info struct {
	TickRateHz    int
	AGIThreshold  float64
	CatalogDigest string
	TuningDigest  string
}

type Config struct {
	Info   Info
	Logger *log.Logger

	// Per-connection CMD/CONTROL budget.
	RateLimit rate.Limit
	Burst     int

	SubmitTimeout time.Duration
}

type Server struct {
	engine Engine
	cfg    Config
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(e Engine, cfg Config) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags)
	}
	return &Server{
		engine: e,
		cfg:    cfg,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, sessionID, ok := s.handshake(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		obs, err := s.engine.Observe(ctx, 4)
		if err != nil {
			return
		}
		defer s.engine.Unobserve(obs.ID)
		s.log.Printf("session %s player=%q joined", sessionID, hello.PlayerName)

		// STATE is latest-wins; ACK and EVENT frames queue in order.
		states := make(chan []byte, 1)
		out := make(chan []byte, 256)

		go s.writeLoop(ctx, cancel, conn, states, out)
		go s.pump(ctx, obs, states, out)

		limiter := rate.NewLimiter(s.cfg.RateLimit, s.cfg.Burst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			ack := s.handleInbound(ctx, limiter, msg)
			if !enqueue(ctx, out, ack) {
				break
			}
		}
		s.log.Printf("session %s left", sessionID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, string, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, "", false
	}
	base, err := protocol.ValidateInbound(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reason := "expected HELLO"
		if err != nil {
			reason = "bad HELLO: " + err.Error()
		}
		closePolicy(conn, reason)
		return hello, "", false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		closePolicy(conn, "bad HELLO")
		return hello, "", false
	}

	m := s.engine.Metrics()
	sessionID := uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		RunID:           m.RunID,
		TickRateHz:      s.cfg.Info.TickRateHz,
		AGIThreshold:    s.cfg.Info.AGIThreshold,
		CatalogDigest:   s.cfg.Info.CatalogDigest,
		TuningDigest:    s.cfg.Info.TuningDigest,
		Running:         m.Running,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return hello, "", false
	}
	return hello, sessionID, true
}

// handleInbound turns one client frame into its ACK.
func (s *Server) handleInbound(ctx context.Context, limiter *rate.Limiter, msg []byte) protocol.AckMsg {
	var probe struct {
		ReqID string `json:"req_id"`
	}
	_ = json.Unmarshal(msg, &probe)
	tick := s.engine.Metrics().Tick

	base, err := protocol.ValidateInbound(msg)
	if err != nil {
		return protoAck(probe.ReqID, tick, protocol.ErrProtoBadRequest, err.Error())
	}
	if base.Type == protocol.TypeHello {
		return protoAck(probe.ReqID, tick, protocol.ErrProtoBadRequest, "already greeted")
	}
	if !limiter.Allow() {
		return protoAck(probe.ReqID, tick, protocol.ErrRateLimit, "too many requests")
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	var res game.Result
	switch base.Type {
	case protocol.TypeCmd:
		var m protocol.CmdMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protoAck(probe.ReqID, tick, protocol.ErrProtoBadRequest, err.Error())
		}
		res, err = s.engine.Submit(sctx, m.Command)
	case protocol.TypeControl:
		var m protocol.ControlMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protoAck(probe.ReqID, tick, protocol.ErrProtoBadRequest, err.Error())
		}
		res, err = s.engine.Control(sctx, m.Action)
	}
	if err != nil {
		return protoAck(probe.ReqID, tick, protocol.ErrInternal, err.Error())
	}
	return protocol.NewAck(probe.ReqID, res.Tick, res.Err)
}

func protoAck(reqID string, tick uint64, code, msg string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          reqID,
		Code:            code,
		Message:         msg,
		Tick:            tick,
	}
}

// pump converts engine updates into STATE and EVENT frames.
func (s *Server) pump(ctx context.Context, obs *game.Observer, states chan []byte, out chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-obs.C:
			if !ok {
				return
			}
			for _, ev := range u.Events {
				if !enqueue(ctx, out, protocol.EventMsg{
					Type:            protocol.TypeEvent,
					ProtocolVersion: protocol.Version,
					Tick:            ev.Tick,
					Event:           ev,
				}) {
					return
				}
			}
			b, err := json.Marshal(protocol.StateMsg{
				Type:            protocol.TypeState,
				ProtocolVersion: protocol.Version,
				Tick:            u.Tick,
				State:           u.State,
			})
			if err != nil {
				s.log.Printf("encode state: %v", err)
				continue
			}
			sendLatest(states, b)
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, states, out chan []byte) {
	defer cancel()
	write := func(b []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, b) == nil
	}
	for {
		// Drain ordered frames first so an ACK never waits behind states.
		select {
		case b := <-out:
			if !write(b) {
				return
			}
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return
		case b := <-out:
			if !write(b) {
				return
			}
		case b := <-states:
			if !write(b) {
				return
			}
		}
	}
}

func enqueue(ctx context.Context, out chan []byte, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return true
	}
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
