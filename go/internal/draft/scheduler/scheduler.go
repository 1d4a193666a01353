// Package scheduler starts drafts with auto start enabled when their
// scheduled time arrives.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/rs/zerolog/log"
)

// Source lists pending auto starts. store.Store satisfies it.
type Source interface {
	DueScheduled(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	NextScheduled(ctx context.Context) (time.Time, bool, error)
}

// Starter starts one draft. registry.Registry satisfies it.
type Starter interface {
	Start(ctx context.Context, id uuid.UUID) error
}

type Config struct {
	Workers  int
	// MaxSleep bounds how long the scheduler sleeps without re-reading the
	// source, covering notifications that never arrive.
	MaxSleep time.Duration
	// MinSleep is the pause after a round that left due drafts behind.
	MinSleep time.Duration
	Clock    clockwork.Clock
}

func DefaultConfig() Config {
	return Config{
		Workers:  4,
		MaxSleep: time.Minute,
		MinSleep: time.Second,
		Clock:    clockwork.NewRealClock(),
	}
}

type Scheduler struct {
	source  Source
	starter Starter
	cfg     Config
	wakeCh  chan struct{}
	workCh  chan uuid.UUID

	// Track in-flight work to prevent duplicate processing
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
	// drafts whose start was refused; they are not retried until re-saved
	rejected map[uuid.UUID]bool
}

func New(source Source, starter Starter, cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = time.Minute
	}
	if cfg.MinSleep <= 0 {
		cfg.MinSleep = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		source:   source,
		starter:  starter,
		cfg:      cfg,
		wakeCh:   make(chan struct{}, 1),
		workCh:   make(chan uuid.UUID, cfg.Workers*2), // Buffer to prevent blocking
		inFlight: make(map[uuid.UUID]bool),
		rejected: make(map[uuid.UUID]bool),
	}
}

// Wake makes the scheduler re-read the source now. It never blocks.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Forget clears a refused start so the draft is considered again, for
// example after it was re-saved with new settings.
func (s *Scheduler) Forget(id uuid.UUID) {
	s.inFlightMu.Lock()
	delete(s.rejected, id)
	s.inFlightMu.Unlock()
	s.Wake()
}

// Run sleeps until the next scheduled start, hands due drafts to the worker
// pool and repeats until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Int("workers", s.cfg.Workers).Msg("draft scheduler started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}
	defer func() {
		cancelWorkers()
		wg.Wait()
		log.Info().Msg("draft scheduler stopped")
	}()

	for {
		sleep := s.tick(ctx)

		timer := s.cfg.Clock.NewTimer(sleep)
		select {
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return nil
		case <-s.wakeCh:
			stopAndDrainTimer(timer)
		case <-timer.Chan():
		}
	}
}

// tick enqueues due drafts and returns how long to sleep.
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	now := s.cfg.Clock.Now()
	due, err := s.source.DueScheduled(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to list due drafts")
		return s.cfg.MinSleep
	}

	backlog := false
	for _, id := range due {
		if !s.claim(id) {
			backlog = backlog || s.isInFlight(id)
			continue
		}
		select {
		case s.workCh <- id:
			log.Debug().Str("draft_id", id.String()).Msg("enqueued scheduled start")
		default:
			s.release(id)
			backlog = true
			log.Warn().Str("draft_id", id.String()).Msg("work channel full, will retry")
		}
	}
	if backlog {
		return s.cfg.MinSleep
	}

	next, ok, err := s.source.NextScheduled(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read next scheduled draft")
		return s.cfg.MinSleep
	}
	if !ok {
		return s.cfg.MaxSleep
	}
	sleep := next.Sub(now)
	switch {
	case sleep > s.cfg.MaxSleep:
		return s.cfg.MaxSleep
	case sleep < s.cfg.MinSleep:
		// due but refused or just started; the store catches up shortly
		return s.cfg.MinSleep
	}
	return sleep
}

func (s *Scheduler) claim(id uuid.UUID) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[id] || s.rejected[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Scheduler) isInFlight(id uuid.UUID) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	return s.inFlight[id]
}

func (s *Scheduler) release(id uuid.UUID) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, id)
}

// worker starts drafts from the work channel
func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.workCh:
			s.start(ctx, workerID, id)
		}
	}
}

func (s *Scheduler) start(ctx context.Context, workerID int, id uuid.UUID) {
	defer s.release(id)

	err := s.starter.Start(ctx, id)
	if err == nil {
		log.Info().
			Str("draft_id", id.String()).
			Int("worker_id", workerID).
			Msg("scheduled draft started")
		return
	}

	var derr *drafterr.Error
	if errors.As(err, &derr) {
		// the draft itself is not startable; retrying will not help
		s.inFlightMu.Lock()
		s.rejected[id] = true
		s.inFlightMu.Unlock()
		log.Warn().
			Err(err).
			Str("draft_id", id.String()).
			Str("code", string(derr.Code)).
			Msg("scheduled draft could not be started")
		return
	}

	log.Error().
		Err(err).
		Str("draft_id", id.String()).
		Int("worker_id", workerID).
		Msg("failed to start scheduled draft")
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent goroutine leaks.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
