package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/presence-keeper-go/internal/model"
)

type mockAccountRepo struct {
	accounts []model.Account
	err      error
	calls    int
}

func (m *mockAccountRepo) GetAll(ctx context.Context) ([]model.Account, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.accounts, nil
}

func (m *mockAccountRepo) UpdateSessionToken(ctx context.Context, identity string, token *string) error {
	return nil
}

type mockReconciler struct {
	calls    int
	lastPass []model.Account
	err      error
}

func (m *mockReconciler) Reconcile(ctx context.Context, accounts []model.Account) error {
	m.calls++
	m.lastPass = accounts
	return m.err
}

func strPtr(s string) *string { return &s }

func testAccount(identity string) model.Account {
	return model.Account{
		Identity:    identity,
		Secret:      strPtr("secret"),
		Activities:  pq.Int64Array{440},
		AutoRestart: true,
	}
}

func TestRunOnceReconciles(t *testing.T) {
	repo := &mockAccountRepo{accounts: []model.Account{testAccount("a")}}
	rec := &mockReconciler{}
	p := New(repo, rec, time.Second)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 1, rec.calls)
	require.Len(t, rec.lastPass, 1)
	assert.Equal(t, "a", rec.lastPass[0].Identity)
}

func TestUnchangedSnapshotSkipsReconcile(t *testing.T) {
	repo := &mockAccountRepo{accounts: []model.Account{testAccount("a")}}
	rec := &mockReconciler{}
	p := New(repo, rec, time.Second)

	require.NoError(t, p.RunOnce(context.Background()))
	require.NoError(t, p.RunOnce(context.Background()))
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 3, repo.calls, "the store is read every pass")
	assert.Equal(t, 1, rec.calls, "the diff runs only when the snapshot changed")
}

func TestChangedSnapshotReconcilesAgain(t *testing.T) {
	repo := &mockAccountRepo{accounts: []model.Account{testAccount("a")}}
	rec := &mockReconciler{}
	p := New(repo, rec, time.Second)

	require.NoError(t, p.RunOnce(context.Background()))

	changed := testAccount("a")
	changed.Activities = pq.Int64Array{440, 570}
	repo.accounts = []model.Account{changed, testAccount("b")}
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 2, rec.calls)
	assert.Len(t, rec.lastPass, 2)
}

func TestTokenOnlyChangeStillRunsDiff(t *testing.T) {
	repo := &mockAccountRepo{accounts: []model.Account{testAccount("a")}}
	rec := &mockReconciler{}
	p := New(repo, rec, time.Second)

	require.NoError(t, p.RunOnce(context.Background()))

	rotated := testAccount("a")
	rotated.SessionToken = strPtr("tok-1")
	repo.accounts = []model.Account{rotated}
	require.NoError(t, p.RunOnce(context.Background()))

	// The supervisor's field-wise comparison makes this pass a no-op; the
	// poller only needs to notice the snapshot moved.
	assert.Equal(t, 2, rec.calls)
}

func TestStoreErrorSkipsCycle(t *testing.T) {
	repo := &mockAccountRepo{accounts: []model.Account{testAccount("a")}}
	rec := &mockReconciler{}
	p := New(repo, rec, time.Second)

	require.NoError(t, p.RunOnce(context.Background()))

	repo.err = errors.New("connection refused")
	assert.Error(t, p.RunOnce(context.Background()))
	assert.Equal(t, 1, rec.calls)

	// Recovery on a later pass picks up where it left off.
	repo.err = nil
	repo.accounts = []model.Account{testAccount("a"), testAccount("b")}
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 2, rec.calls)
}

func TestReconcileErrorKeepsFingerprintDirty(t *testing.T) {
	repo := &mockAccountRepo{accounts: []model.Account{testAccount("a")}}
	rec := &mockReconciler{err: errors.New("shutting down")}
	p := New(repo, rec, time.Second)

	assert.Error(t, p.RunOnce(context.Background()))

	// The same snapshot must be retried once the supervisor recovers.
	rec.err = nil
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 2, rec.calls)
}

type signalReconciler struct {
	called chan struct{}
}

func (s *signalReconciler) Reconcile(ctx context.Context, accounts []model.Account) error {
	select {
	case s.called <- struct{}{}:
	default:
	}
	return nil
}

func TestStartStopLoop(t *testing.T) {
	repo := &mockAccountRepo{accounts: []model.Account{testAccount("a")}}
	rec := &signalReconciler{called: make(chan struct{}, 1)}
	p := New(repo, rec, 10*time.Millisecond)

	p.Start()
	select {
	case <-rec.called:
	case <-time.After(time.Second):
		t.Fatal("poller never reconciled")
	}
	p.Stop()
}
