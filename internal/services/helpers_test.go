package services

import (
	"context"
	"sync"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/benmeehan/shipment-tracker/pkg/location"
)

type step struct {
	coord models.Coordinate
	err   error
}

func ok(lat, lng float64) step {
	return step{coord: models.Coordinate{Latitude: lat, Longitude: lng}}
}

func fail(kind location.Kind) step {
	return step{err: &location.FetchError{Kind: kind, Err: context.DeadlineExceeded}}
}

// scriptedProvider replays steps in order, then blocks until the caller's
// context is cancelled.
type scriptedProvider struct {
	mu          sync.Mutex
	steps       []step
	credentials []models.Credential
	drained     chan struct{}
	once        sync.Once
}

func newScriptedProvider(steps ...step) *scriptedProvider {
	return &scriptedProvider{steps: steps, drained: make(chan struct{})}
}

func (p *scriptedProvider) Fetch(ctx context.Context, credential models.Credential) (models.Coordinate, error) {
	p.mu.Lock()
	p.credentials = append(p.credentials, credential)
	if len(p.steps) > 0 {
		s := p.steps[0]
		p.steps = p.steps[1:]
		p.mu.Unlock()
		return s.coord, s.err
	}
	p.mu.Unlock()

	p.once.Do(func() { close(p.drained) })
	<-ctx.Done()
	return models.Coordinate{}, &location.FetchError{Kind: location.KindNetwork, Err: ctx.Err()}
}

func (p *scriptedProvider) calls(credential models.Credential) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.credentials {
		if c == credential {
			n++
		}
	}
	return n
}

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []models.LocationEvent
}

func (s *recordingSink) Publish(_ context.Context, event models.LocationEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSink) coordinates() []models.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Coordinate, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Coordinate)
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func waitClosed(ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
