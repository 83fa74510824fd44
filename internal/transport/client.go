package transport

import "context"

// Credentials identify one account to the remote service. SessionToken is
// preferred over Secret when both are present.
type Credentials struct {
	Identity     string
	Secret       *string
	SessionToken *string
}

// Client is one connection attempt against the remote service. A Client is
// single-use: once Disconnected has been delivered (or Disconnect called)
// the instance is discarded and a fresh one dialed for the next attempt.
type Client interface {
	// Connect starts the login. The outcome arrives asynchronously on
	// Events; a non-nil error here means the attempt could not even be
	// started (dial failure) and no events will follow.
	Connect(ctx context.Context, creds Credentials) error
	// DeclarePresence sets the session's visibility.
	DeclarePresence(appearOffline bool) error
	// DeclareActivities declares the activity list, with an optional
	// display title prepended by the remote service when non-empty.
	DeclareActivities(activities []int64, title string) error
	// Disconnect requests a logoff and releases the connection. The
	// Events channel is closed without a trailing Disconnected event.
	Disconnect() error
	// Events delivers lifecycle events in order. Closed when the client
	// is done.
	Events() <-chan Event
}

// Dialer produces a fresh, unconnected Client per session attempt.
type Dialer func() Client
