package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

type RelayConfig struct {
	BufferSize   int
	MaxRetries   int
	RetryDelay   time.Duration
	FlushTimeout time.Duration
	Clock        clockwork.Clock
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BufferSize:   1024,
		MaxRetries:   5,
		RetryDelay:   200 * time.Millisecond,
		FlushTimeout: 5 * time.Second,
		Clock:        clockwork.NewRealClock(),
	}
}

// Relay forwards committed draft events to a Publisher. It implements
// engine.Notifier: Notify runs under the draft lock, so it only enqueues and
// drops the event when the buffer is full.
type Relay struct {
	publisher Publisher
	cfg       RelayConfig
	queue     chan OutboxEvent

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	mu            sync.Mutex
	lastPublished time.Time
}

func NewRelay(publisher Publisher, cfg RelayConfig) *Relay {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Relay{
		publisher: publisher,
		cfg:       cfg,
		queue:     make(chan OutboxEvent, cfg.BufferSize),
	}
}

// Notify implements engine.Notifier.
func (r *Relay) Notify(ev events.DraftEvent) {
	if !ev.Type.Persistent() {
		return
	}
	event, err := FromDraftEvent(ev)
	if err != nil {
		log.Error().Err(err).Str("draft_id", ev.DraftID.String()).Msg("failed to encode outbox event")
		return
	}
	select {
	case r.queue <- event:
	default:
		r.dropped.Add(1)
		log.Warn().
			Str("draft_id", ev.DraftID.String()).
			Str("event_type", string(ev.Type)).
			Msg("outbox buffer full, dropping event")
	}
}

// Run publishes queued events in commit order until ctx is done, then tries
// to flush what is left within FlushTimeout.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Int("buffer", r.cfg.BufferSize).Msg("outbox relay started")
	for {
		select {
		case <-ctx.Done():
			r.flush()
			log.Info().Msg("outbox relay stopped")
			return nil
		case event := <-r.queue:
			r.deliver(ctx, event)
		}
	}
}

func (r *Relay) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FlushTimeout)
	defer cancel()
	for {
		select {
		case event := <-r.queue:
			r.deliver(ctx, event)
		default:
			return
		}
	}
}

func (r *Relay) deliver(ctx context.Context, event OutboxEvent) {
	if err := r.publishWithRetry(ctx, event); err != nil {
		r.failed.Add(1)
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("draft_id", event.DraftID.String()).
			Str("event_type", event.EventType).
			Msg("failed to publish event")
		return
	}
	r.published.Add(1)
	r.mu.Lock()
	r.lastPublished = r.cfg.Clock.Now()
	r.mu.Unlock()
}

// publishWithRetry attempts to publish an outbox event with a given retry delay and max retries.
func (r *Relay) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.cfg.Clock.After(delay):
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

// RelayStats is reported by the health endpoint.
type RelayStats struct {
	Published     uint64    `json:"published"`
	Dropped       uint64    `json:"dropped"`
	Failed        uint64    `json:"failed"`
	Pending       int       `json:"pending"`
	LastPublished time.Time `json:"last_published,omitempty"`
}

func (r *Relay) Stats() RelayStats {
	r.mu.Lock()
	last := r.lastPublished
	r.mu.Unlock()
	return RelayStats{
		Published:     r.published.Load(),
		Dropped:       r.dropped.Load(),
		Failed:        r.failed.Load(),
		Pending:       len(r.queue),
		LastPublished: last,
	}
}
