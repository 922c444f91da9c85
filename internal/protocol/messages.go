package protocol

import "agirush.ai/internal/sim/game"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	RunID           string  `json:"run_id"`
	TickRateHz      int     `json:"tick_rate_hz"`
	AGIThreshold    float64 `json:"agi_threshold"`
	CatalogDigest   string  `json:"catalog_digest"`
	TuningDigest    string  `json:"tuning_digest"`
	Running         bool    `json:"running"`
}

// STATE (server -> client). Only the newest state is delivered to a slow client.
type StateMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	State           *game.GameState `json:"state"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Event           game.Event `json:"event"`
}

// CMD (client -> server)
type CmdMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ReqID           string       `json:"req_id"`
	Command         game.Command `json:"command"`
}

// CONTROL (client -> server)
type ControlMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	ReqID           string             `json:"req_id"`
	Action          game.ControlAction `json:"action"`
}

// ACK (server -> client). AckFor echoes the req_id of the CMD or CONTROL.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Tick            uint64 `json:"tick"`
}

func NewAck(reqID string, tick uint64, err error) AckMsg {
	a := AckMsg{Type: TypeAck, ProtocolVersion: Version, AckFor: reqID, Accepted: err == nil, Tick: tick}
	if err != nil {
		a.Code = CodeForError(err)
		a.Message = err.Error()
	}
	return a
}
