package controller

import "time"

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventStateChanged  EventType = "state_changed"
	EventQueryFinished EventType = "query_finished"
)

// Event is published to subscribers. Data is a state.State for
// EventStateChanged and a QueryStats for EventQueryFinished.
type Event struct {
	Type EventType
	Data interface{}
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// QueryStats describes a finished query.
type QueryStats struct {
	QueryID  string
	Address  string
	Tokens   int
	Duration time.Duration
	Err      error
}
