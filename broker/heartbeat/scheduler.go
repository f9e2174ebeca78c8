// Package heartbeat refreshes every broker session on a fixed interval. It is the only code path
// that exchanges refresh tokens, so request handlers never race each other for a rotation.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/go-token-broker/broker/issuerclient"
	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/internal/logging"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Refresher exchanges a refresh token at the issuer
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*issuerclient.Grant, error)
}

// SessionError is one session's failure within a cycle
type SessionError struct {
	SessionID string
	UserID    string
	Err       error
}

func (e SessionError) Error() string {
	return fmt.Sprintf("session %s (%s): %v", logging.ShortID(e.SessionID), e.UserID, e.Err)
}

// CycleSummary reports one pass over the session store
type CycleSummary struct {
	Total     int
	Refreshed int
	Failed    int
	Skipped   int
	// Purged counts sessions the reaper removed before the pass began
	Purged int
	Errors []SessionError
}

type Scheduler struct {
	store     *sessions.Store
	refresher Refresher
	cfg       config.BrokerConfig
	metrics   *instruments

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	running bool
}

type Option func(*schedulerOptions)

type schedulerOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider records cycle metrics on mp instead of the global provider
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *schedulerOptions) {
		o.meterProvider = mp
	}
}

func New(cfg config.BrokerConfig, store *sessions.Store, refresher Refresher, options ...Option) (*Scheduler, error) {
	opts := schedulerOptions{meterProvider: otel.GetMeterProvider()}
	for _, opt := range options {
		opt(&opts)
	}
	if cfg.GetHeartbeatInterval() <= 0 {
		return nil, fmt.Errorf("[Scheduler New] heartbeat interval must be positive, got %s", cfg.GetHeartbeatInterval())
	}

	in, err := newInstruments(opts.meterProvider.Meter(cfg.GetMeterName()))
	if err != nil {
		return nil, errors.Wrapf(err, "[Scheduler New] failed to create instruments")
	}
	return &Scheduler{
		store:     store,
		refresher: refresher,
		cfg:       cfg,
		metrics:   in,
		inFlight:  make(map[string]struct{}),
	}, nil
}

// Start launches the heartbeat loop. The first cycle runs one interval after Start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("[Scheduler Start] heartbeat already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.cancel = cancel
	s.running = true

	go s.loop(loopCtx, s.stop, s.done)

	log.Info().
		Dur("interval", s.cfg.GetHeartbeatInterval()).
		Dur("refresh_timeout", s.cfg.GetRefreshTimeout()).
		Msg("heartbeat started")
	return nil
}

// Stop refuses new cycles and waits for the in-flight one. If it has not finished within the
// shutdown grace (or ctx ends first) its refreshes are cancelled and an error is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	done, cancel := s.done, s.cancel
	s.mu.Unlock()

	grace := time.NewTimer(s.cfg.GetShutdownGrace())
	defer grace.Stop()

	select {
	case <-done:
		cancel()
		log.Info().Msg("heartbeat stopped")
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	cancel()
	<-done
	log.Warn().Dur("grace", s.cfg.GetShutdownGrace()).Msg("heartbeat cycle cancelled at shutdown")
	return fmt.Errorf("[Scheduler Stop] in-flight cycle did not finish within %s", s.cfg.GetShutdownGrace())
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.GetHeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// a tick and a stop can race; stop wins
		select {
		case <-stop:
			return
		default:
		}
		s.RunCycle(ctx)
	}
}

// RunCycle refreshes every stored session once and returns what happened
func (s *Scheduler) RunCycle(ctx context.Context) CycleSummary {
	start := time.Now()
	var summary CycleSummary

	if s.cfg.GetReaperEnabled() {
		purged := s.store.PurgeExpired(s.store.Now())
		summary.Purged = len(purged)
		for _, id := range purged {
			log.Info().Str("session_id", logging.ShortID(id)).Msg("session purged, refresh token expired")
		}
	}

	snapshot := s.store.List()
	summary.Total = len(snapshot)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	if n := s.cfg.GetRefreshConcurrency(); n > 0 {
		g.SetLimit(n)
	}

	for _, session := range snapshot {
		if !s.claim(session.ID) {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			defer s.release(session.ID)
			// the snapshot may be stale: another cycle can rotate the session before this one claims it
			current, err := s.store.Get(session.ID)
			if err == nil {
				err = s.refreshSession(ctx, current)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Refreshed++
			case errors.Is(err, errors.ErrSessionNotFound):
				// deleted before or while its refresh ran
				summary.Skipped++
			default:
				summary.Failed++
				summary.Errors = append(summary.Errors, SessionError{SessionID: session.ID, UserID: session.UserID, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	s.metrics.record(ctx, summary, elapsed)

	event := log.Info()
	if summary.Failed > 0 {
		event = log.Warn()
	}
	event.
		Int("total", summary.Total).
		Int("refreshed", summary.Refreshed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("purged", summary.Purged).
		Dur("elapsed", elapsed).
		Msg("heartbeat cycle complete")
	return summary
}

func (s *Scheduler) refreshSession(ctx context.Context, session sessions.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GetRefreshTimeout())
	defer cancel()

	grant, err := backoff.Retry(ctx, func() (*issuerclient.Grant, error) {
		g, err := s.refresher.Refresh(ctx, session.RefreshToken)
		// only retry when the issuer never processed the request; a lost response may hide a rotation
		if err != nil && !errors.Is(err, errors.ErrIssuerUnavailable) {
			return nil, backoff.Permanent(err)
		}
		return g, err
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(s.maxTries()))
	if err != nil {
		s.handleRefreshError(session, err)
		return err
	}

	update := sessions.Refresh{AccessToken: grant.AccessToken, AccessTTL: grant.AccessTTL}
	if grant.Rotated {
		update.RefreshToken = grant.RefreshToken
		update.RefreshTTL = grant.RefreshTTL
	}
	updated, err := s.store.ApplyRefresh(session.ID, update)
	if err != nil {
		return err
	}

	if s.cfg.GetLogTokenEvents() {
		log.Debug().
			Str("session_id", logging.ShortID(session.ID)).
			Str("user_id", session.UserID).
			Int("refresh_count", updated.RefreshCount).
			Bool("rotated", grant.Rotated).
			Msg("session tokens refreshed")
	}
	return nil
}

func (s *Scheduler) handleRefreshError(session sessions.Session, err error) {
	if errors.Is(err, errors.ErrTokenReuseDetected) {
		s.store.Delete(session.ID)
		log.Warn().
			Str("session_id", logging.ShortID(session.ID)).
			Str("user_id", session.UserID).
			Msg("refresh token reuse detected, session removed")
		return
	}
	if s.cfg.GetLogTokenEvents() {
		log.Warn().Err(err).
			Str("session_id", logging.ShortID(session.ID)).
			Str("user_id", session.UserID).
			Msg("session refresh failed")
	}
}

func (s *Scheduler) maxTries() uint {
	if n := s.cfg.GetRefreshRetryAttempts(); n > 0 {
		return uint(n)
	}
	return 1
}

func (s *Scheduler) claim(id string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, id)
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}
