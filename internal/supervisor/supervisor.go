// Package supervisor keeps one remote session alive per configured account.
// All state lives behind a single actor goroutine: reconcile requests,
// transport events and timer fires arrive as messages on one ordered inbox,
// so the session registry is never mutated concurrently.
package supervisor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/presence-keeper-go/internal/backoff"
	"github.com/openclaw/presence-keeper-go/internal/config"
	"github.com/openclaw/presence-keeper-go/internal/model"
	"github.com/openclaw/presence-keeper-go/internal/transport"
)

var ErrShuttingDown = errors.New("supervisor is shutting down")

// TokenStore persists rotated session tokens. Satisfied by the account
// repository.
type TokenStore interface {
	UpdateSessionToken(ctx context.Context, identity string, token *string) error
}

// Notifier receives session status transitions. Implementations must not
// block.
type Notifier interface {
	SessionStatus(identity string, status model.SessionStatus)
}

type Options struct {
	Dial   transport.Dialer
	Tokens TokenStore
	// Notifier is optional.
	Notifier Notifier
	// Backoff and ElsewhereCooldown default to the values in config.
	Backoff           backoff.Policy
	ElsewhereCooldown time.Duration
}

type message interface{ isMessage() }

type reconcileMsg struct {
	accounts []model.Account
	done     chan struct{}
}

type clientEventMsg struct {
	sess   *session
	client transport.Client
	event  transport.Event
}

type connectFailedMsg struct {
	sess   *session
	client transport.Client
}

type timerFiredMsg struct {
	sess *session
	gen  uint64
}

type snapshotMsg struct {
	reply chan []SessionInfo
}

type shutdownMsg struct {
	grace time.Duration
	done  chan struct{}
}

func (reconcileMsg) isMessage()     {}
func (clientEventMsg) isMessage()   {}
func (connectFailedMsg) isMessage() {}
func (timerFiredMsg) isMessage()    {}
func (snapshotMsg) isMessage()      {}
func (shutdownMsg) isMessage()      {}

type Supervisor struct {
	dial              transport.Dialer
	tokens            TokenStore
	notify            Notifier
	policy            backoff.Policy
	elsewhereCooldown time.Duration

	inbox    chan message
	quit     chan struct{}
	sessions map[string]*session
	wg       sync.WaitGroup

	// after is time.AfterFunc, replaceable in tests.
	after func(time.Duration, func()) *time.Timer
}

func New(opts Options) *Supervisor {
	policy := opts.Backoff
	if policy.Base == 0 {
		policy = backoff.Policy{Base: config.BackoffBase, MaxRetries: config.BackoffMaxRetries}
	}
	cooldown := opts.ElsewhereCooldown
	if cooldown == 0 {
		cooldown = config.ElsewhereCooldown
	}

	return &Supervisor{
		dial:              opts.Dial,
		tokens:            opts.Tokens,
		notify:            opts.Notifier,
		policy:            policy,
		elsewhereCooldown: cooldown,
		inbox:             make(chan message, 64),
		quit:              make(chan struct{}),
		sessions:          make(map[string]*session),
		after:             time.AfterFunc,
	}
}

func (s *Supervisor) Start() {
	go s.run()
	log.Info().Msg("session supervisor started")
}

// Reconcile converges the live session set onto the given accounts: missing
// sessions are started, removed accounts stopped, and materially changed
// accounts restarted. It returns once the registry has been updated; login
// attempts proceed in the background. A single unusable account never fails
// the pass.
func (s *Supervisor) Reconcile(ctx context.Context, accounts []model.Account) error {
	done := make(chan struct{})
	if err := s.post(ctx, reconcileMsg{accounts: accounts, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrShuttingDown
	}
}

// Snapshot returns the current state of every session, sorted by identity.
func (s *Supervisor) Snapshot(ctx context.Context) ([]SessionInfo, error) {
	reply := make(chan []SessionInfo, 1)
	if err := s.post(ctx, snapshotMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case infos := <-reply:
		return infos, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.quit:
		return nil, ErrShuttingDown
	}
}

// Shutdown stops every session, waiting up to grace for outstanding logoffs
// to flush before abandoning them. The supervisor accepts no work afterward.
func (s *Supervisor) Shutdown(grace time.Duration) {
	done := make(chan struct{})
	select {
	case s.inbox <- shutdownMsg{grace: grace, done: done}:
	case <-s.quit:
		return
	}
	<-done
}

func (s *Supervisor) post(ctx context.Context, msg message) error {
	select {
	case s.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrShuttingDown
	}
}

// postAsync delivers timer fires and transport events from their own
// goroutines, giving up once the supervisor is shutting down.
func (s *Supervisor) postAsync(msg message) {
	select {
	case s.inbox <- msg:
	case <-s.quit:
	}
}

func (s *Supervisor) run() {
	for msg := range s.inbox {
		if s.handle(msg) {
			return
		}
	}
}

// handle processes one inbox message on the actor goroutine. Messages
// referring to a session that has since been stopped or replaced, or to a
// transport client or timer the session no longer owns, are dropped here.
func (s *Supervisor) handle(msg message) (stop bool) {
	switch m := msg.(type) {
	case reconcileMsg:
		s.reconcile(m.accounts)
		close(m.done)
	case clientEventMsg:
		if s.sessions[m.sess.identity] == m.sess && m.sess.client == m.client {
			s.handleEvent(m.sess, m.event)
		}
	case connectFailedMsg:
		if s.sessions[m.sess.identity] == m.sess && m.sess.client == m.client {
			s.sessionDown(m.sess, transport.ReasonOrdinary)
		}
	case timerFiredMsg:
		if s.sessions[m.sess.identity] == m.sess && m.sess.wakeGen == m.gen {
			s.handleTimer(m.sess)
		}
	case snapshotMsg:
		m.reply <- s.collect()
	case shutdownMsg:
		s.shutdown(m.grace)
		close(m.done)
		return true
	}
	return false
}

func (s *Supervisor) reconcile(accounts []model.Account) {
	desired := make(map[string]model.Account, len(accounts))
	for _, acct := range accounts {
		desired[acct.Identity] = acct
	}

	for identity, sess := range s.sessions {
		acct, ok := desired[identity]
		if !ok {
			log.Info().Str("identity", identity).Msg("account removed, stopping session")
			s.stopSession(sess)
			continue
		}
		if !sess.account.EquivalentTo(acct) {
			log.Info().Str("identity", identity).Msg("account changed, restarting session")
			s.stopSession(sess)
			s.startSession(acct)
		}
	}

	for _, acct := range accounts {
		if _, ok := s.sessions[acct.Identity]; ok {
			continue
		}
		s.startSession(acct)
	}
}

func (s *Supervisor) startSession(acct model.Account) {
	if _, ok := s.sessions[acct.Identity]; ok {
		return
	}
	if !acct.HasCredentials() {
		log.Warn().Str("identity", acct.Identity).Msg("account has neither secret nor session token, skipping")
		return
	}

	sess := &session{
		identity:    acct.Identity,
		account:     acct,
		autoRestart: acct.AutoRestart,
	}
	s.sessions[acct.Identity] = sess
	log.Info().Str("identity", acct.Identity).Msg("starting session")
	s.connect(sess)
}

// stopSession removes the session from the registry. Used when the account
// disappeared or changed and on shutdown.
func (s *Supervisor) stopSession(sess *session) {
	s.cancelWake(sess)
	s.teardownClient(sess)
	s.setStatus(sess, model.SessionStatusStopped)
	delete(s.sessions, sess.identity)
}

// park leaves the session in the registry as stopped so reconciliation does
// not immediately restart it; only a configuration change revives it.
func (s *Supervisor) park(sess *session) {
	s.cancelWake(sess)
	s.teardownClient(sess)
	s.setStatus(sess, model.SessionStatusStopped)
}

func (s *Supervisor) connect(sess *session) {
	client := s.dial()
	sess.client = client
	s.setStatus(sess, model.SessionStatusConnecting)

	s.wg.Add(1)
	go s.pump(sess, client)

	creds := transport.Credentials{
		Identity:     sess.identity,
		Secret:       sess.account.Secret,
		SessionToken: sess.account.SessionToken,
	}
	go func() {
		if err := client.Connect(context.Background(), creds); err != nil {
			log.Warn().Err(err).Str("identity", creds.Identity).Msg("could not reach remote service")
			s.postAsync(connectFailedMsg{sess: sess, client: client})
		}
	}()
}

func (s *Supervisor) pump(sess *session, client transport.Client) {
	defer s.wg.Done()
	for ev := range client.Events() {
		select {
		case s.inbox <- clientEventMsg{sess: sess, client: client, event: ev}:
		case <-s.quit:
			return
		}
	}
}

func (s *Supervisor) handleEvent(sess *session, ev transport.Event) {
	switch e := ev.(type) {
	case transport.Established:
		s.sessionEstablished(sess)
	case transport.TokenRotated:
		s.tokenRotated(sess, e.Token)
	case transport.RecoverableError:
		s.recoverableError(sess, e.Kind)
	case transport.Disconnected:
		s.sessionDown(sess, e.Reason)
	}
}

func (s *Supervisor) sessionEstablished(sess *session) {
	sess.retryCount = 0
	s.setStatus(sess, model.SessionStatusActive)
	log.Info().Str("identity", sess.identity).Msg("session established")

	if err := sess.client.DeclarePresence(sess.account.AppearOffline); err != nil {
		log.Warn().Err(err).Str("identity", sess.identity).Msg("failed to declare presence")
		return
	}

	title := ""
	if sess.account.DisplayTitle != nil {
		title = *sess.account.DisplayTitle
	}
	if err := sess.client.DeclareActivities([]int64(sess.account.Activities), title); err != nil {
		log.Warn().Err(err).Str("identity", sess.identity).Msg("failed to declare activities")
	}
}

func (s *Supervisor) tokenRotated(sess *session, token string) {
	sess.account.SessionToken = &token
	log.Debug().Str("identity", sess.identity).Msg("session token rotated")

	if s.tokens == nil {
		return
	}
	identity := sess.identity
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.TokenPersistTimeout)
		defer cancel()
		if err := s.tokens.UpdateSessionToken(ctx, identity, &token); err != nil {
			log.Error().Err(err).Str("identity", identity).Msg("failed to persist session token")
		}
	}()
}

func (s *Supervisor) recoverableError(sess *session, kind transport.ErrorKind) {
	switch kind {
	case transport.ErrorKindThrottled:
		sess.autoRestart = false
		log.Warn().Str("identity", sess.identity).
			Msg("login throttled, automatic restart disabled until the account is saved again")
	case transport.ErrorKindElsewhereCollision:
		s.sessionDown(sess, transport.ReasonElsewhere)
	default:
		log.Warn().Str("identity", sess.identity).Msg("recoverable transport error")
	}
}

func (s *Supervisor) sessionDown(sess *session, reason transport.DisconnectReason) {
	s.teardownClient(sess)

	if reason == transport.ReasonElsewhere {
		if !sess.autoRestart {
			log.Info().Str("identity", sess.identity).Msg("logged in elsewhere, automatic restart disabled")
			s.park(sess)
			return
		}
		// Reconnecting sooner just loses the takeover race again, so this
		// waits flat instead of consuming the retry budget.
		log.Info().Str("identity", sess.identity).Dur("cooldown", s.elsewhereCooldown).
			Msg("logged in elsewhere, waiting out the collision")
		s.setStatus(sess, model.SessionStatusCooldownElsewhere)
		s.scheduleWake(sess, s.elsewhereCooldown)
		return
	}

	if !sess.autoRestart {
		log.Info().Str("identity", sess.identity).Msg("session down, automatic restart disabled")
		s.park(sess)
		return
	}

	sess.retryCount++
	if s.policy.Exhausted(sess.retryCount) {
		log.Error().Str("identity", sess.identity).Int("attempts", sess.retryCount-1).
			Msg("reconnect attempts exhausted, giving up until the account changes")
		s.park(sess)
		return
	}

	delay := s.policy.Delay(sess.retryCount)
	log.Info().Str("identity", sess.identity).Int("attempt", sess.retryCount).Dur("delay", delay).
		Msg("session down, reconnect scheduled")
	s.setStatus(sess, model.SessionStatusBackoffWait)
	s.scheduleWake(sess, delay)
}

func (s *Supervisor) handleTimer(sess *session) {
	sess.timer = nil
	switch sess.status {
	case model.SessionStatusBackoffWait, model.SessionStatusCooldownElsewhere:
		log.Info().Str("identity", sess.identity).Msg("retrying login")
		s.connect(sess)
	}
}

func (s *Supervisor) scheduleWake(sess *session, d time.Duration) {
	s.cancelWake(sess)
	gen := sess.wakeGen
	sess.timer = s.after(d, func() {
		s.postAsync(timerFiredMsg{sess: sess, gen: gen})
	})
}

func (s *Supervisor) cancelWake(sess *session) {
	sess.wakeGen++
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
}

func (s *Supervisor) teardownClient(sess *session) {
	if sess.client == nil {
		return
	}
	if err := sess.client.Disconnect(); err != nil {
		log.Debug().Err(err).Str("identity", sess.identity).Msg("logoff failed")
	}
	sess.client = nil
}

func (s *Supervisor) setStatus(sess *session, status model.SessionStatus) {
	if sess.status == status {
		return
	}
	sess.status = status
	if s.notify != nil {
		s.notify.SessionStatus(sess.identity, status)
	}
}

func (s *Supervisor) collect() []SessionInfo {
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, SessionInfo{
			Identity:    sess.identity,
			Status:      sess.status,
			RetryCount:  sess.retryCount,
			AutoRestart: sess.autoRestart,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Identity < infos[j].Identity })
	return infos
}

func (s *Supervisor) shutdown(grace time.Duration) {
	log.Info().Int("sessions", len(s.sessions)).Msg("stopping all sessions")
	for _, sess := range s.sessions {
		s.stopSession(sess)
	}
	close(s.quit)

	flushed := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(grace):
		log.Warn().Dur("grace", grace).Msg("shutdown grace elapsed before all logoffs flushed")
	}
	log.Info().Msg("session supervisor stopped")
}
