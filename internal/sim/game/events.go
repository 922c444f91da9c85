package game

type EventType string

const (
	EventBreakthroughUnlocked EventType = "BREAKTHROUGH_UNLOCKED"
	EventEraAdvanced          EventType = "ERA_ADVANCED"
	EventAGIReached           EventType = "AGI_REACHED"
	EventInsufficientFunds    EventType = "INSUFFICIENT_FUNDS"
	EventLevelUp              EventType = "LEVEL_UP"
	EventTrainingStarted      EventType = "TRAINING_STARTED"
	EventTrainingCompleted    EventType = "TRAINING_COMPLETED"
	EventNotice               EventType = "NOTICE"
	EventCommandRejected      EventType = "COMMAND_REJECTED"
)

// Event is a flat record; only the fields relevant to Type are set.
type Event struct {
	Tick uint64    `json:"tick"`
	Type EventType `json:"type"`

	Breakthrough string   `json:"breakthrough,omitempty"`
	Era          Era      `json:"era,omitempty"`
	FromEra      Era      `json:"from_era,omitempty"`
	Resource     Resource `json:"resource,omitempty"`
	Level        int      `json:"level,omitempty"`
	Amount       float64  `json:"amount,omitempty"`
	Flag         string   `json:"flag,omitempty"`
	Command      string   `json:"command,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// Listener is called on the engine goroutine after every tick and after any
// state change applied outside a tick. state is a private copy.
type Listener func(state *GameState, events []Event)

func (e *Engine) emit(ev Event) {
	ev.Tick = e.state.Tick
	e.pending = append(e.pending, ev)
}
