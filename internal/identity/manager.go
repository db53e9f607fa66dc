// Package identity implements the state machine that orchestrates
// initial login and issuance, then runs the certificate renewal loop,
// publishing fresh TLS material through the Broadcast as it arrives.
package identity

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/certproxy/certproxy/internal/authority"
	"github.com/certproxy/certproxy/internal/broadcast"
	"github.com/certproxy/certproxy/internal/config"
	"github.com/certproxy/certproxy/internal/material"
	"github.com/certproxy/certproxy/internal/store"
)

// State names the Manager's current position in its lifecycle:
// Starting -> Serving -> {AuthBackoff, IssueBackoff} -> Serving ->
// ... -> Stopped.
type State string

const (
	StateStarting     State = "starting"
	StateServing      State = "serving"
	StateAuthBackoff  State = "auth_backoff"
	StateIssueBackoff State = "issue_backoff"
	StateStopped      State = "stopped"
)

const (
	baseBackoff = 5 * time.Second
	maxBackoff  = 300 * time.Second
)

// WorkloadTokenReader returns the current workload identity token.
// Abstracted so tests can substitute a fixed token without touching
// the filesystem.
type WorkloadTokenReader func() (string, error)

// Manager runs the identity lifecycle state machine: initial
// login/issuance followed by a long-lived renewal loop.
type Manager struct {
	conf   *config.Config
	client *authority.Client
	store  *store.Store
	bcast  *broadcast.Broadcast
	log    *slog.Logger

	readToken WorkloadTokenReader

	backoffBase time.Duration
	backoffMax  time.Duration

	state atomic.Value // State
}

// New builds a Manager. readToken is typically authority.ReadWorkloadToken;
// tests inject a fixed-token stand-in.
func New(conf *config.Config, client *authority.Client, st *store.Store, bcast *broadcast.Broadcast, log *slog.Logger, readToken WorkloadTokenReader) *Manager {
	m := &Manager{
		conf:        conf,
		client:      client,
		store:       st,
		bcast:       bcast,
		log:         log.With("component", "identity-manager"),
		readToken:   readToken,
		backoffBase: baseBackoff,
		backoffMax:  maxBackoff,
	}
	m.setState(StateStarting)
	return m
}

func (m *Manager) setState(s State) { m.state.Store(s) }

// State returns the Manager's current lifecycle state.
func (m *Manager) State() State {
	s, _ := m.state.Load().(State)
	return s
}

// Init performs the startup sequence: login, issue, write, parse,
// publish. Any failure here is fatal to process startup — the caller
// is expected to exit after a non-nil error. On success it returns the
// initial lease duration in seconds, which seeds the renewal loop.
func (m *Manager) Init(ctx context.Context) (int64, error) {
	token, err := m.readToken()
	if err != nil {
		return 0, err
	}

	if _, err := m.client.Login(m.conf.AuthMount, m.conf.AuthRole, token); err != nil {
		return 0, err
	}

	bundle, err := m.client.Issue(m.conf.PKIMount, m.conf.PKIRole, m.conf.CommonName, m.conf.AltNames, m.conf.IPSANs, m.conf.TTL)
	if err != nil {
		return 0, err
	}

	if err := m.store.Write(bundle); err != nil {
		return 0, err
	}

	mat, err := material.Parse(bundle)
	if err != nil {
		return 0, err
	}

	m.bcast.Publish(mat)
	m.setState(StateServing)
	m.log.Info("initial identity issued", "lease_seconds", bundle.LeaseDurationSecs)
	return bundle.LeaseDurationSecs, nil
}

// Run executes the long-lived renewal loop. It blocks until ctx is
// cancelled. leaseSecs is the lease returned by Init.
func (m *Manager) Run(ctx context.Context, leaseSecs int64) {
	backoff := m.backoffBase

	for {
		sleepFor := time.Duration(float64(leaseSecs)*m.conf.RenewThreshold) * time.Second
		m.log.Info("scheduling next renewal", "sleep_seconds", sleepFor.Seconds(), "lease_seconds", leaseSecs)

		if !m.sleepOrShutdown(ctx, sleepFor) {
			m.setState(StateStopped)
			return
		}

		// The workload token is re-read from disk on every iteration
		// rather than cached, since the orchestrator may rotate it.
		if err := m.reauthenticate(); err != nil {
			m.log.Warn("re-authentication failed, will retry", "error", err)
			m.setState(StateAuthBackoff)
			if !m.sleepOrShutdown(ctx, backoff) {
				m.setState(StateStopped)
				return
			}
			backoff = m.nextBackoff(backoff)
			continue
		}
		backoff = m.backoffBase

		bundle, err := m.client.Issue(m.conf.PKIMount, m.conf.PKIRole, m.conf.CommonName, m.conf.AltNames, m.conf.IPSANs, m.conf.TTL)
		if err != nil {
			m.log.Error("certificate renewal failed, will retry", "error", err)
			m.setState(StateIssueBackoff)
			if !m.sleepOrShutdown(ctx, backoff) {
				m.setState(StateStopped)
				return
			}
			backoff = m.nextBackoff(backoff)
			continue
		}

		// Disk write errors do not stall the pipeline: the in-memory
		// identity remains authoritative.
		if err := m.store.Write(bundle); err != nil {
			m.log.Error("failed to write renewed certificate to disk", "error", err)
		}

		// Parse failures suppress publication for this iteration
		// only: previous material stays in force and lease is not
		// advanced.
		mat, err := material.Parse(bundle)
		if err != nil {
			m.log.Error("failed to parse renewed certificate, keeping previous material in effect", "error", err)
			m.setState(StateServing)
			continue
		}

		m.bcast.Publish(mat)
		leaseSecs = bundle.LeaseDurationSecs
		backoff = m.backoffBase
		m.setState(StateServing)
		m.log.Info("certificate renewed and hot-reloaded", "lease_seconds", leaseSecs)
	}
}

// reauthenticate re-reads the workload token and calls Login. A
// token-read failure is treated identically to a login failure: both
// drive the AuthBackoff path in Run.
func (m *Manager) reauthenticate() error {
	token, err := m.readToken()
	if err != nil {
		return err
	}
	_, err = m.client.Login(m.conf.AuthMount, m.conf.AuthRole, token)
	return err
}

// sleepOrShutdown blocks for d or returns early (false) if ctx is
// cancelled.
func (m *Manager) sleepOrShutdown(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// nextBackoff doubles d, saturating at m.backoffMax.
func (m *Manager) nextBackoff(d time.Duration) time.Duration {
	next := d * 2
	if next > m.backoffMax {
		return m.backoffMax
	}
	return next
}
