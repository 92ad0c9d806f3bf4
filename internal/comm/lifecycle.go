package comm

import "sync"

// HandlerState is the connection lifecycle of spec §4.9:
// Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected.
type HandlerState int

const (
	HandlerDisconnected HandlerState = iota
	HandlerConnecting
	HandlerConnected
	HandlerDisconnecting
)

func (s HandlerState) String() string {
	switch s {
	case HandlerConnecting:
		return "connecting"
	case HandlerConnected:
		return "connected"
	case HandlerDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// StreamState is the stream lifecycle of spec §4.9:
// Idle -> Starting -> Streaming -> Stopping -> Idle.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamStarting
	StreamStreaming
	StreamStopping
)

func (s StreamState) String() string {
	switch s {
	case StreamStarting:
		return "starting"
	case StreamStreaming:
		return "streaming"
	case StreamStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// lifecycle guards both state machines under one mutex; CommHandler holds a
// single instance. Kept separate from CommHandler's own mutex so state reads
// (e.g. a concurrent caller checking "are we connected") never contend with
// the longer-held command/ACK critical sections.
type lifecycle struct {
	mu     sync.Mutex
	handlerState HandlerState
	streamState  StreamState
}

func (l *lifecycle) Handler() HandlerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handlerState
}

func (l *lifecycle) setHandler(s HandlerState) {
	l.mu.Lock()
	l.handlerState = s
	l.mu.Unlock()
}

func (l *lifecycle) Stream() StreamState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streamState
}

func (l *lifecycle) setStream(s StreamState) {
	l.mu.Lock()
	l.streamState = s
	l.mu.Unlock()
}
