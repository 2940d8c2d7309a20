package bridge

// State is the lifecycle state of a session. States only move forward,
// except that READY becomes STREAMING on the first accepted audio.
type State int

const (
	StateInitializing State = iota
	StateConnecting
	StateReady
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) acceptsAudio() bool {
	return s == StateReady || s == StateStreaming
}

func (s State) isTerminating() bool {
	return s == StateClosing || s == StateClosed
}

// CloseReason records what ended a session. It is sent to the listener in
// the close frame.
type CloseReason string

const (
	ReasonPeerDisconnected      CloseReason = "peer_disconnected"
	ReasonRequested             CloseReason = "requested"
	ReasonUpstreamClosed        CloseReason = "upstream_closed"
	ReasonUpstreamConnectFailed CloseReason = "upstream_connect_failed"
	ReasonIdleTimeout           CloseReason = "idle_timeout"
	ReasonShutdown              CloseReason = "shutdown"
)
