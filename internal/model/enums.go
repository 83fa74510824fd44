package model

type SessionStatus string

const (
	SessionStatusConnecting        SessionStatus = "connecting"
	SessionStatusActive            SessionStatus = "active"
	SessionStatusCooldownElsewhere SessionStatus = "cooldown_elsewhere"
	SessionStatusBackoffWait       SessionStatus = "backoff_wait"
	SessionStatusStopped           SessionStatus = "stopped"
)
