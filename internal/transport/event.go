package transport

// ErrorKind classifies a recoverable error reported by the remote service
// while a session is up or being established.
type ErrorKind string

const (
	ErrorKindThrottled          ErrorKind = "throttled"
	ErrorKindElsewhereCollision ErrorKind = "elsewhere_collision"
	ErrorKindOther              ErrorKind = "other"
)

// DisconnectReason classifies why a session went down.
type DisconnectReason string

const (
	// ReasonElsewhere means the remote service dropped this session
	// because the same identity logged in somewhere else.
	ReasonElsewhere DisconnectReason = "elsewhere"
	// ReasonOrdinary covers every other cause: network failure, server
	// restart, explicit remote close.
	ReasonOrdinary DisconnectReason = "ordinary"
)

// Event is the closed set of lifecycle notifications a Client delivers on
// its Events channel.
type Event interface {
	isEvent()
}

// Established signals that the login completed and the session is live.
type Established struct{}

// TokenRotated carries a fresh session token issued by the remote service.
// The previous token is no longer valid for future logins.
type TokenRotated struct {
	Token string
}

// RecoverableError reports a condition the session may survive.
type RecoverableError struct {
	Kind ErrorKind
}

// Disconnected is terminal for the client instance. No further events
// follow and the Events channel is closed.
type Disconnected struct {
	Reason DisconnectReason
}

func (Established) isEvent()      {}
func (TokenRotated) isEvent()     {}
func (RecoverableError) isEvent() {}
func (Disconnected) isEvent()     {}
