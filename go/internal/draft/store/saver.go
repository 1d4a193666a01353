package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SaverConfig tunes a Saver.
type SaverConfig struct {
	MaxRetries   int
	RetryDelay   time.Duration
	FlushTimeout time.Duration
	Clock        clockwork.Clock
}

// DefaultSaverConfig returns the defaults used in production.
func DefaultSaverConfig() SaverConfig {
	return SaverConfig{
		MaxRetries:   5,
		RetryDelay:   200 * time.Millisecond,
		FlushTimeout: 10 * time.Second,
		Clock:        clockwork.NewRealClock(),
	}
}

// Saver writes committed snapshots to a Store in the background. Snapshots of
// the same draft coalesce so only the newest pending one is written. It
// implements engine.Saver and never blocks the caller.
type Saver struct {
	store  Store
	config SaverConfig

	mu      sync.Mutex
	pending map[uuid.UUID]*models.Draft
	wake    chan struct{}
	idle    *sync.Cond
	busy    bool
}

// NewSaver creates a Saver. Call Run to start writing.
func NewSaver(s Store, cfg SaverConfig) *Saver {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	sv := &Saver{
		store:   s,
		config:  cfg,
		pending: make(map[uuid.UUID]*models.Draft),
		wake:    make(chan struct{}, 1),
	}
	sv.idle = sync.NewCond(&sv.mu)
	return sv
}

// Save queues d. Older versions than one already queued are dropped.
func (s *Saver) Save(d *models.Draft) {
	s.mu.Lock()
	if cur, ok := s.pending[d.ID]; !ok || cur.Version < d.Version {
		s.pending[d.ID] = d
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run writes queued snapshots until ctx is done, then flushes what is left.
func (s *Saver) Run(ctx context.Context) error {
	log.Info().Msg("draft saver started")
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), s.config.FlushTimeout)
			defer cancel()
			s.Flush(flushCtx)
			log.Info().Msg("draft saver stopped")
			return nil
		case <-s.wake:
			s.drain(ctx)
		}
	}
}

// Flush attempts every queued snapshot once, waiting for an in-progress
// batch to finish first.
func (s *Saver) Flush(ctx context.Context) {
	s.mu.Lock()
	for s.busy {
		s.idle.Wait()
	}
	batch := s.takeLocked()
	s.mu.Unlock()
	s.write(ctx, batch)
}

func (s *Saver) takeLocked() []*models.Draft {
	if s.busy || len(s.pending) == 0 {
		return nil
	}
	batch := make([]*models.Draft, 0, len(s.pending))
	for id, d := range s.pending {
		batch = append(batch, d)
		delete(s.pending, id)
	}
	s.busy = true
	return batch
}

func (s *Saver) drain(ctx context.Context) {
	s.mu.Lock()
	batch := s.takeLocked()
	s.mu.Unlock()
	s.write(ctx, batch)
}

func (s *Saver) write(ctx context.Context, batch []*models.Draft) {
	if batch == nil {
		return
	}
	for _, d := range batch {
		if err := s.saveWithRetry(ctx, d); err != nil {
			log.Error().
				Err(err).
				Str("draft_id", d.ID.String()).
				Int64("version", d.Version).
				Msg("failed to persist draft")
			s.requeue(d)
		}
	}
	s.mu.Lock()
	s.busy = false
	s.idle.Broadcast()
	s.mu.Unlock()
}

// requeue puts d back unless something newer arrived meanwhile. It is
// retried with the next snapshot or flush.
func (s *Saver) requeue(d *models.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.pending[d.ID]; !ok || cur.Version < d.Version {
		s.pending[d.ID] = d
	}
}

func (s *Saver) saveWithRetry(ctx context.Context, d *models.Draft) error {
	var lastErr error

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.config.Clock.After(s.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := s.store.SaveDraft(ctx, d); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("draft_id", d.ID.String()).
				Msg("failed to save draft, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("save failed after %d attempts: %w", s.config.MaxRetries+1, lastErr)
}
