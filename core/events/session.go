package events

const (
	// KindSessionInit identifies the first frame of every session stream.
	KindSessionInit Kind = "session_init"
	// KindSessionReady identifies an open upstream recognition connection.
	KindSessionReady Kind = "session_ready"
	// KindError identifies a session or upstream failure.
	KindError Kind = "error"
	// KindClose identifies the last frame of every session stream.
	KindClose Kind = "close"
)

// SessionPayload is the frame body of session_init and session_ready.
type SessionPayload struct {
	SessionID string `json:"sessionId" jsonschema:"title=Session ID,description=Identifier to send with every audio fragment"`
}

// SessionInit announces the identifier of a newly created session.
type SessionInit struct {
	Base
	SessionID string
}

// NewSessionInit creates a session init event.
func NewSessionInit(sessionID string) SessionInit {
	return SessionInit{Base: NewBase(KindSessionInit), SessionID: sessionID}
}

func (e SessionInit) Payload() any { return SessionPayload{SessionID: e.SessionID} }

// SessionReady announces that the session accepts audio.
type SessionReady struct {
	Base
	SessionID string
}

// NewSessionReady creates a session ready event.
func NewSessionReady(sessionID string) SessionReady {
	return SessionReady{Base: NewBase(KindSessionReady), SessionID: sessionID}
}

func (e SessionReady) Payload() any { return SessionPayload{SessionID: e.SessionID} }

// ErrorPayload is the frame body of error.
type ErrorPayload struct {
	Message string `json:"message" jsonschema:"title=Message"`
}

// Error carries a listener-safe failure description.
type Error struct {
	Base
	Message string
}

// NewError creates an error event.
func NewError(message string) Error {
	return Error{Base: NewBase(KindError), Message: message}
}

func (e Error) Payload() any { return ErrorPayload{Message: e.Message} }

// ClosePayload is the frame body of close.
type ClosePayload struct {
	SessionID string `json:"sessionId" jsonschema:"title=Session ID"`
	Reason    string `json:"reason,omitempty" jsonschema:"title=Reason,enum=peer_disconnected,enum=requested,enum=upstream_closed,enum=upstream_connect_failed,enum=idle_timeout,enum=shutdown"`
}

// Close marks the end of a session stream.
type Close struct {
	Base
	SessionID string
	Reason    string
}

// NewClose creates a close event.
func NewClose(sessionID, reason string) Close {
	return Close{Base: NewBase(KindClose), SessionID: sessionID, Reason: reason}
}

func (e Close) Payload() any { return ClosePayload{SessionID: e.SessionID, Reason: e.Reason} }
