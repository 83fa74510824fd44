package model

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func baseAccount() Account {
	return Account{
		Identity:      "alice",
		Secret:        strPtr("hunter2"),
		SessionToken:  strPtr("tok-1"),
		Activities:    pq.Int64Array{440, 570},
		DisplayTitle:  strPtr("idling"),
		AppearOffline: false,
		AutoRestart:   true,
		CreatedAt:     time.Now(),
	}
}

func TestAccountEquivalentTo(t *testing.T) {
	t.Run("identical snapshots are equivalent", func(t *testing.T) {
		assert.True(t, baseAccount().EquivalentTo(baseAccount()))
	})

	t.Run("session token rotation is ignored", func(t *testing.T) {
		a := baseAccount()
		b := baseAccount()
		b.SessionToken = strPtr("tok-2")
		assert.True(t, a.EquivalentTo(b))

		b.SessionToken = nil
		assert.True(t, a.EquivalentTo(b))
	})

	t.Run("bookkeeping timestamps are ignored", func(t *testing.T) {
		a := baseAccount()
		b := baseAccount()
		b.UpdatedAt = time.Now().Add(time.Hour)
		assert.True(t, a.EquivalentTo(b))
	})

	t.Run("every other field change breaks equivalence", func(t *testing.T) {
		mutations := map[string]func(*Account){
			"identity":       func(a *Account) { a.Identity = "bob" },
			"secret":         func(a *Account) { a.Secret = strPtr("changed") },
			"secret cleared": func(a *Account) { a.Secret = nil },
			"activities":     func(a *Account) { a.Activities = pq.Int64Array{440} },
			"activity order": func(a *Account) { a.Activities = pq.Int64Array{570, 440} },
			"display title":  func(a *Account) { a.DisplayTitle = strPtr("renamed") },
			"appear offline": func(a *Account) { a.AppearOffline = true },
			"auto restart":   func(a *Account) { a.AutoRestart = false },
		}
		for name, mutate := range mutations {
			t.Run(name, func(t *testing.T) {
				a := baseAccount()
				b := baseAccount()
				mutate(&b)
				assert.False(t, a.EquivalentTo(b))
				assert.False(t, b.EquivalentTo(a))
			})
		}
	})
}

func TestAccountHasCredentials(t *testing.T) {
	a := baseAccount()
	assert.True(t, a.HasCredentials())

	a.Secret = nil
	assert.True(t, a.HasCredentials(), "token alone is enough")

	a.SessionToken = strPtr("")
	assert.False(t, a.HasCredentials())

	a.SessionToken = nil
	assert.False(t, a.HasCredentials())
}
