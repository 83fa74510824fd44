package model

import (
	"time"

	"github.com/lib/pq"
)

// Account is one row of keeper configuration: who to log in as and what
// presence to hold. A snapshot of accounts is immutable once read; the
// reconciler compares snapshots, it never mutates them.
type Account struct {
	Identity      string        `db:"identity" json:"identity"`
	Secret        *string       `db:"secret" json:"-"`
	SessionToken  *string       `db:"session_token" json:"-"`
	Activities    pq.Int64Array `db:"activities" json:"activities"`
	DisplayTitle  *string       `db:"display_title" json:"displayTitle,omitempty"`
	AppearOffline bool          `db:"appear_offline" json:"appearOffline"`
	AutoRestart   bool          `db:"auto_restart" json:"autoRestart"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`
}

// EquivalentTo reports whether two snapshots of the same account would hold
// an identical session. SessionToken is excluded: tokens rotate while a
// session is up and a rotation alone must never force a restart. Row
// bookkeeping timestamps are excluded for the same reason.
func (a Account) EquivalentTo(other Account) bool {
	if a.Identity != other.Identity {
		return false
	}
	if !ptrEqual(a.Secret, other.Secret) {
		return false
	}
	if !ptrEqual(a.DisplayTitle, other.DisplayTitle) {
		return false
	}
	if a.AppearOffline != other.AppearOffline || a.AutoRestart != other.AutoRestart {
		return false
	}
	if len(a.Activities) != len(other.Activities) {
		return false
	}
	for i := range a.Activities {
		if a.Activities[i] != other.Activities[i] {
			return false
		}
	}
	return true
}

// HasCredentials reports whether the account carries anything a login
// attempt could use.
func (a Account) HasCredentials() bool {
	return (a.Secret != nil && *a.Secret != "") ||
		(a.SessionToken != nil && *a.SessionToken != "")
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
