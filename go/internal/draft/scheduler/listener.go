package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL   string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string // Channel name to LISTEN on
	PingInterval  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "draft_scheduled",
		PingInterval:  90 * time.Second,
	}
}

// Notifications is the part of pq.Listener the scheduler reads from.
type Notifications interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Listener wakes the scheduler whenever Postgres reports a draft written
// with auto start enabled.
type Listener struct {
	notes Notifications
	wake  func()
	cfg   ListenerConfig
}

// NewListener opens a LISTEN connection on cfg.NotifyChannel.
func NewListener(cfg ListenerConfig, wake func()) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return newListener(l, cfg, wake), nil
}

func newListener(notes Notifications, cfg ListenerConfig, wake func()) *Listener {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 90 * time.Second
	}
	return &Listener{notes: notes, wake: wake, cfg: cfg}
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	notes := l.notes.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.notes.Close()
		case note := <-notes:
			// nil means the connection was re-established; notifications
			// may have been missed so look anyway
			if note != nil {
				log.Debug().Str("draft_id", note.Extra).Msg("scheduled draft changed")
			}
			l.wake()
		case <-pingTicker.C:
			if err := l.notes.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}
