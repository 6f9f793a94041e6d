package services

import (
	"context"
	"errors"
	"sync"

	"github.com/benmeehan/shipment-tracker/internal/metrics"
	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/rs/zerolog"
)

// ErrIncompleteCredential is returned when token or barcode is empty.
var ErrIncompleteCredential = errors.New("credential requires both token and barcode")

// TrackerFactory builds a fresh, idle Tracker for a credential.
type TrackerFactory func(credential models.Credential) *Tracker

// trackerHandle is the running tracker plus what is needed to stop it.
type trackerHandle struct {
	tracker *Tracker
	cancel  context.CancelFunc
	done    chan struct{}
}

// Supervisor owns the single active Tracker. Every credential change cancels
// the running tracker and waits for it to exit before the replacement starts,
// so two trackers never poll at the same time.
type Supervisor struct {
	newTracker    TrackerFactory
	initial       models.Credential
	restartOnSame bool
	logger        zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	current *trackerHandle
}

// NewSupervisor creates a stopped supervisor. If initial is complete, Start
// launches a tracker for it right away; otherwise the supervisor stays idle
// until SetCredential is called.
//
// restartOnSame controls what happens when SetCredential receives the
// credential that is already active: true cancels and restarts the tracker
// (so its first coordinate is broadcast again), false ignores the call.
func NewSupervisor(factory TrackerFactory, initial models.Credential, restartOnSame bool, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		newTracker:    factory,
		initial:       initial,
		restartOnSame: restartOnSame,
		logger:        logger,
	}
}

// Start implements registry.Service.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		s.logger.Warn().Msg("Supervisor is already running")
		return errors.New("supervisor is already running")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.initial.Complete() {
		s.logger.Info().Str("barcode", s.initial.Barcode).Msg("Starting tracker with preconfigured credential")
		s.replaceLocked(s.initial)
	} else {
		s.logger.Info().Msg("No credential configured, waiting for a subscriber to send one")
	}

	s.logger.Info().Msg("Supervisor started")
	return nil
}

// Stop cancels the active tracker and waits for it to exit.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		s.logger.Warn().Msg("Supervisor is not running")
		return errors.New("supervisor is not running")
	}

	s.cancel()
	s.stopCurrentLocked()
	s.ctx = nil
	s.cancel = nil

	s.logger.Info().Msg("Supervisor stopped")
	return nil
}

// SetCredential replaces the running tracker with one bound to credential.
// It returns once the previous tracker has fully terminated and the new one
// has been launched.
func (s *Supervisor) SetCredential(credential models.Credential) error {
	if !credential.Complete() {
		return ErrIncompleteCredential
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return errors.New("supervisor is not running")
	}

	if !s.restartOnSame && s.current != nil && s.current.tracker.Credential() == credential {
		s.logger.Info().Str("barcode", credential.Barcode).Msg("Credential unchanged, keeping current tracker")
		return nil
	}

	s.replaceLocked(credential)
	return nil
}

// Current returns the credential of the active tracker, if any.
func (s *Supervisor) Current() (models.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return models.Credential{}, false
	}
	return s.current.tracker.Credential(), true
}

// State reports "stopped", "idle" or the state of the active tracker.
func (s *Supervisor) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return "stopped"
	}
	if s.current == nil {
		return TrackerIdle.String()
	}
	return s.current.tracker.State().String()
}

func (s *Supervisor) replaceLocked(credential models.Credential) {
	if s.current != nil {
		s.logger.Info().
			Str("old_barcode", s.current.tracker.Credential().Barcode).
			Str("new_barcode", credential.Barcode).
			Msg("Replacing tracker")
	}
	s.stopCurrentLocked()

	tracker := s.newTracker(credential)
	ctx, cancel := context.WithCancel(s.ctx)
	handle := &trackerHandle{
		tracker: tracker,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(handle.done)
		if err := tracker.Run(ctx); err != nil {
			s.logger.Error().Err(err).Str("barcode", credential.Barcode).Msg("Tracker terminated")
		}
	}()

	s.current = handle
	metrics.TrackerStartsTotal.Inc()
}

func (s *Supervisor) stopCurrentLocked() {
	if s.current == nil {
		return
	}
	s.current.cancel()
	<-s.current.done
	s.current = nil
}
