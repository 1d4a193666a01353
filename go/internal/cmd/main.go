package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mcdev12/dynasty/go/internal/admin"
	"github.com/mcdev12/dynasty/go/internal/dbconfig"
	"github.com/mcdev12/dynasty/go/internal/draft/autopick"
	"github.com/mcdev12/dynasty/go/internal/draft/engine"
	"github.com/mcdev12/dynasty/go/internal/draft/gateway"
	"github.com/mcdev12/dynasty/go/internal/draft/outbox"
	"github.com/mcdev12/dynasty/go/internal/draft/registry"
	"github.com/mcdev12/dynasty/go/internal/draft/scheduler"
	"github.com/mcdev12/dynasty/go/internal/draft/store"
	"github.com/mcdev12/dynasty/go/internal/identity"
	"github.com/mcdev12/dynasty/go/internal/ranking"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig(getEnv("CONFIG_FILE", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.LogLevel)

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("draft server failed")
	}
	log.Info().Msg("draft server stopped")
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func run(ctx context.Context, cfg Config) error {
	dbCfg := dbconfig.NewConfigFromEnv()

	var pool *pgxpool.Pool
	if cfg.needsPostgres() {
		p, err := setupDatabase(ctx, dbCfg)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
	}

	st, err := setupStore(ctx, cfg, pool)
	if err != nil {
		return err
	}
	saver := store.NewSaver(st, store.DefaultSaverConfig())

	ident, err := setupIdentity(cfg, pool)
	if err != nil {
		return err
	}
	players, err := setupRankings(cfg, pool)
	if err != nil {
		return err
	}

	var (
		publisher *outbox.JetStreamPublisher
		relay     *outbox.Relay
		notifiers []engine.Notifier
	)
	if cfg.NATS.URL != "" {
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.Stream
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		publisher, err = outbox.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return err
		}
		relay = outbox.NewRelay(publisher, outbox.DefaultRelayConfig())
		notifiers = append(notifiers, relay)
	} else {
		log.Warn().Msg("NATS_URL not set, draft events will not be published")
	}

	reg := registry.New(registry.Config{
		Store:        st,
		Saver:        saver,
		Selector:     autopick.NewSelector(players),
		Identity:     ident,
		Players:      players,
		Notifiers:    notifiers,
		TickInterval: cfg.Draft.TickInterval,
		ChatHistory:  cfg.Draft.ChatHistory,
	})

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Workers = cfg.Scheduler.Workers
	sched := scheduler.New(st, reg, schedCfg)

	var listener *scheduler.Listener
	if cfg.Store.Backend == "postgres" && cfg.Scheduler.Listen {
		lcfg := scheduler.DefaultListenerConfig()
		lcfg.DatabaseURL = dbCfg.DSN()
		lcfg.NotifyChannel = store.ScheduledChannel
		listener, err = scheduler.NewListener(lcfg, sched.Wake)
		if err != nil {
			return err
		}
	}

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	ws := gateway.NewWebSocketHandler(cm, func(ctx context.Context, id uuid.UUID) (gateway.Room, error) {
		e, err := reg.Acquire(ctx, id)
		if err != nil {
			return nil, err
		}
		return e.Room, nil
	})

	adminCfg := admin.Config{
		Drafts:      reg,
		Players:     players,
		WebSocket:   ws,
		Connections: cm,
		Scheduled:   sched.Forget,
	}
	if relay != nil {
		adminCfg.Events = relay
	}
	server := admin.NewServer(cfg.Server.Addr, admin.NewHandler(adminCfg).Routes(), cfg.Server.AllowedOrigins)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return saver.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	if listener != nil {
		g.Go(func() error { return listener.Start(gctx) })
	}
	if relay != nil {
		g.Go(func() error {
			err := relay.Run(gctx)
			if cerr := publisher.Close(); cerr != nil {
				log.Error().Err(cerr).Msg("failed to close NATS connection")
			}
			return err
		})
	}

	g.Go(func() error {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store.Backend).
			Bool("events", relay != nil).
			Msg("draft server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// stop the clocks first so nothing commits while sessions drain
		reg.Shutdown()
		cm.CloseAll(registry.CloseShutdown)
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func setupDatabase(ctx context.Context, dbCfg dbconfig.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbCfg.PoolDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return pool, nil
}

func setupStore(ctx context.Context, cfg Config, pool *pgxpool.Pool) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		rs, err := store.NewRedis(ctx, client)
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		pg := store.NewPostgres(pool)
		if cfg.Store.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return pg, nil
	}
}

func setupIdentity(cfg Config, pool *pgxpool.Pool) (identity.Provider, error) {
	var dir *identity.Directory
	if cfg.Identity.Source == "file" || cfg.Identity.TeamSource == "file" {
		d, err := identity.LoadDirectory(cfg.Identity.File)
		if err != nil {
			return nil, err
		}
		dir = d
	}

	var auth identity.Authenticator
	if cfg.Identity.Source == "file" {
		auth = dir
	} else {
		auth = identity.NewPostgres(pool)
	}
	var teams identity.TeamResolver
	if cfg.Identity.TeamSource == "file" {
		teams = dir
	} else {
		teams = identity.NewPostgres(pool)
	}
	return identity.Combine(auth, teams), nil
}

func setupRankings(cfg Config, pool *pgxpool.Pool) (*ranking.Service, error) {
	var src ranking.Source
	if cfg.Rankings.Source == "file" {
		fs, err := ranking.LoadFileSource(cfg.Rankings.File)
		if err != nil {
			return nil, err
		}
		src = fs
	} else {
		src = ranking.NewPostgresSource(pool)
	}
	return ranking.NewService(src, cfg.Rankings.CacheSize)
}
