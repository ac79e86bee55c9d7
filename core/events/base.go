package events

import "time"

type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
	Turn() Turn
}

// Turn identifies the run an event belongs to. SessionID may be empty.
type Turn struct {
	SessionID string
	RunID     string
}

type Base struct {
	kind      Kind
	timestamp time.Time
	turn      Turn
}

func NewBase(kind Kind, turn Turn) Base {
	return Base{kind: kind, timestamp: time.Now(), turn: turn}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (b Base) Turn() Turn {
	return b.turn
}

// Handler receives events synchronously on the goroutine that emitted them.
type Handler func(Event)
