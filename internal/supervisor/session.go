package supervisor

import (
	"time"

	"github.com/openclaw/presence-keeper-go/internal/model"
	"github.com/openclaw/presence-keeper-go/internal/transport"
)

// session is the runtime state for one identity. It is owned exclusively by
// the supervisor loop; nothing here is persisted or shared.
type session struct {
	identity string
	account  model.Account
	status   model.SessionStatus

	// retryCount is the number of consecutive failed attempts; reset to 0
	// the moment a login succeeds.
	retryCount int

	// autoRestart starts as the account's persisted preference but can be
	// cleared for the lifetime of this session when the remote service
	// throttles the login. The cleared value is never written back; a
	// process restart or a session replacement reverts to the stored one.
	autoRestart bool

	// wakeGen invalidates in-flight timer fires: a fire is acted on only
	// when its captured generation still matches.
	wakeGen uint64
	timer   *time.Timer

	// client is the transport connection currently owned by this session,
	// nil while waiting out a backoff or cooldown. Replaced wholesale on
	// every reconnect attempt.
	client transport.Client
}

// SessionInfo is the read-only view of a session exposed by Snapshot.
type SessionInfo struct {
	Identity    string              `json:"identity"`
	Status      model.SessionStatus `json:"status"`
	RetryCount  int                 `json:"retryCount"`
	AutoRestart bool                `json:"autoRestart"`
}
