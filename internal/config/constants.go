package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// Database ping timeout for the startup check
const DBPingTimeout = 5 * time.Second

// Reconnect policy. BackoffBase doubles per failed attempt; after
// BackoffMaxRetries consecutive failures the session stays down until the
// configuration changes. A login collision with the same identity elsewhere
// waits ElsewhereCooldown flat instead, outside the retry budget.
const (
	BackoffBase       = 60 * time.Second
	BackoffMaxRetries = 5
	ElsewhereCooldown = 45 * time.Minute
)

// Store access timeouts
const (
	PollTimeout         = 10 * time.Second
	TokenPersistTimeout = 5 * time.Second
)

// Grace window for session logoffs to flush during shutdown
const ShutdownGrace = 2 * time.Second

// HTTP server timeouts
const (
	ServerReadTimeout = 15 * time.Second
	ServerIdleTimeout = 120 * time.Second
	ServerStopTimeout = 5 * time.Second
)

// Process exit code when the account store cannot be read at startup
const ExitStoreUnavailable = 2
