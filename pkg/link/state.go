package link

// This file implements the link connection state machine as a pure
// function over a transition table. No side effects, no Runtime
// dependency, so every transition is independently testable.
//
// State diagram:
//
//	Stopped --startServer--> Listening
//	Stopped --startClient--> Connecting
//	Connecting --connected--> Connected     (resets the reconnect policy)
//	Connecting --connError--> Reconnecting
//	Connected  --disconnected--> Reconnecting
//	Reconnecting --reconnectTimer--> Connecting  (increments attempts)
//	any --stop--> Stopped
//
// Error is reserved for unrecoverable initialization failures such as
// a bind failure; nothing transitions out of it except stop.

// State is the connection state of one link.
type State uint8

const (
	StateStopped State = iota
	StateListening
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

// String returns the internal state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// External returns the state name reported on status surfaces.
// Reconnecting is an internal detail and is externalized as connecting.
func (s State) External() string {
	if s == StateReconnecting {
		return "connecting"
	}
	return s.String()
}

// Event is a state machine input.
type Event uint8

const (
	EventStartServer Event = iota
	EventStartClient
	EventConnected
	EventDisconnected
	EventConnError
	EventReconnectTimer
	EventStop
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventStartServer:
		return "StartServer"
	case EventStartClient:
		return "StartClient"
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventConnError:
		return "ConnError"
	case EventReconnectTimer:
		return "ReconnectTimer"
	case EventStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// stateEvent is the transition table key: current state + incoming event.
type stateEvent struct {
	state State
	event Event
}

var transitions = map[stateEvent]State{
	{StateStopped, EventStartServer}: StateListening,
	{StateStopped, EventStartClient}: StateConnecting,

	{StateConnecting, EventConnected}: StateConnected,
	{StateConnecting, EventConnError}: StateReconnecting,

	{StateConnected, EventDisconnected}: StateReconnecting,

	{StateReconnecting, EventReconnectTimer}: StateConnecting,
}

// Transition applies ev to the current state. It returns the new state
// and whether the transition is defined; undefined transitions leave the
// state unchanged. EventStop is accepted from every state.
func Transition(current State, ev Event) (State, bool) {
	if ev == EventStop {
		return StateStopped, true
	}
	next, ok := transitions[stateEvent{current, ev}]
	if !ok {
		return current, false
	}
	return next, true
}
