package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"fleetdesk/internal/api"
	"fleetdesk/internal/auth"
	"fleetdesk/internal/authz"
	"fleetdesk/internal/config"
	"fleetdesk/internal/dispatch"
	"fleetdesk/internal/draft"
	"fleetdesk/internal/events"
	"fleetdesk/internal/logging"
	"fleetdesk/internal/metrics"
	"fleetdesk/internal/routing"
	"fleetdesk/internal/store"
	"fleetdesk/internal/webhooks"
)

// backend groups the collaborators chosen from the store configuration.
type backend struct {
	requests dispatch.RequestLoader
	commits  dispatch.Backend
	queue    store.WebhookQueue
	drafts   draft.KV
	ready    []api.Pinger
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logging.New(cfg.LogLevel, os.Stdout)
	metrics.RegisterDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("backend")
	}
	defer be.close()

	var broker events.Broker = events.NewMemoryBroker()
	draftKV := be.drafts
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		broker = events.NewRedisBroker(rdb, log)
		draftKV = draft.NewRedisKV(rdb, cfg.DraftTTL)
		be.ready = append(be.ready, redisPinger{rdb})
	}

	publishers := events.Fanout{broker, webhooks.NewPublisher(be.queue, cfg.WebhookURLs, cfg.WebhookSecret, log)}
	if cfg.NSQDAddr != "" {
		sink, err := events.NewNSQSink(cfg.NSQDAddr, events.DefaultTopic, log, events.DispatchCommitted, events.DispatchCommitFailed)
		if err != nil {
			log.WithError(err).Fatal("nsq")
		}
		defer sink.Close()
		publishers = append(publishers, sink)
	}

	router := newRouter(cfg)
	drafts := draft.NewStore(draftKV, cfg.DraftPrefix, log)
	autosaver := draft.NewAutosaver(drafts, log)
	defer autosaver.Close()

	policy, err := authz.NewPolicy(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("authz")
	}
	svc := dispatch.NewService(be.requests, drafts, policy, dispatch.Deps{
		Estimator: routing.NewEstimator(router, cfg.Routing.MaxConcurrent, log),
		Backend:   be.commits,
		Drafts:    autosaver,
		Events:    publishers,
		Log:       log,
	})

	verifier := auth.NewVerifier(auth.Config{Mode: cfg.AuthMode, HMACSecret: cfg.AuthHMACSecret, JWKSURL: cfg.AuthJWKSURL})
	s := api.NewServer(svc, broker, verifier, log)
	s.Ready = be.ready
	s.Info = map[string]any{
		"PORT":             cfg.Port,
		"AUTH_MODE":        cfg.AuthMode,
		"ROUTING_PROVIDER": router.Name(),
		"DRAFT_PREFIX":     cfg.DraftPrefix,
		"WEBHOOK_URLS":     len(cfg.WebhookURLs),
		"HAS_DATABASE_URL": cfg.DatabaseURL != "",
		"HAS_BACKEND_URL":  cfg.BackendURL != "",
		"HAS_REDIS_URL":    cfg.RedisURL != "",
		"HAS_NSQD_ADDR":    cfg.NSQDAddr != "",
	}

	worker := webhooks.NewWorker(be.queue, cfg.WebhookMaxAttempts, log)
	worker.Start()
	defer worker.Shutdown()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
}

// openBackend picks Postgres, a remote REST backend or the seeded in-memory
// store, in that order.
func openBackend(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backend, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		log.Info("using postgres store")
		return &backend{
			requests: pg,
			commits:  pg,
			queue:    pg,
			drafts:   draft.NewPostgresKV(pg.DB()),
			ready:    []api.Pinger{pg},
			close:    func() { _ = pg.Close() },
		}, nil
	case cfg.BackendURL != "":
		rest := store.NewREST(cfg.BackendURL, cfg.BackendToken)
		log.WithField("url", cfg.BackendURL).Info("using remote transport backend")
		return &backend{
			requests: rest,
			commits:  rest,
			queue:    store.NewMemory(),
			drafts:   draft.NewMemoryKV(),
			close:    func() {},
		}, nil
	}
	mem := store.NewMemory()
	if cfg.SeedFile != "" {
		n, err := mem.LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		log.WithField("requests", n).Info("seeded memory store")
	}
	return &backend{
		requests: mem,
		commits:  mem,
		queue:    mem,
		drafts:   draft.NewMemoryKV(),
		ready:    []api.Pinger{mem},
		close:    func() {},
	}, nil
}

func newRouter(cfg config.Config) routing.Router {
	if cfg.Routing.Provider == "google" {
		return routing.NewGoogleDirections(cfg.Routing.BaseURL, cfg.Routing.APIKey, cfg.Routing.RPS, cfg.Routing.Burst)
	}
	return routing.NewLocal(cfg.Routing.SpeedKPH)
}

type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }
