package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/loopyluu007/anime-ai/internal/server"
	"github.com/loopyluu007/anime-ai/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func runServe(parent context.Context, embeddedWorker bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()
	log := rt.log

	var stopQueue func()
	switch rt.cfg.Queue.Backend {
	case "asynq":
		asynqClient := asynq.NewClient(rt.redisOpt())
		defer asynqClient.Close()
		rt.tasks.SetDispatcher(worker.NewAsynqDispatcher(asynqClient, rt.cfg.Queue.MaxRetry))

		if embeddedWorker {
			srv := newWorkerServer(rt)
			mux := asynq.NewServeMux()
			worker.NewTaskWorker(rt.tasks, log).Register(mux)
			if err := srv.Start(mux); err != nil {
				return err
			}
			stopQueue = srv.Shutdown
		}
	default:
		pool := worker.NewPool(rt.tasks, worker.PoolConfig{WorkerCount: rt.cfg.Queue.Concurrency}, log)
		pool.Start()
		rt.tasks.SetDispatcher(pool)
		stopQueue = func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := pool.Stop(sctx); err != nil {
				log.Warn().Err(err).Msg("worker pool did not drain")
			}
		}
	}

	go purgeLimiter(ctx, rt)

	app := server.New(server.Deps{
		Config:    rt.cfg,
		Log:       log,
		Tasks:     rt.tasks,
		Hub:       rt.hub,
		Resolver:  rt.resolver,
		Limiter:   rt.limiter,
		Validator: rt.validate,
		Services:  rt.services,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + rt.cfg.Server.Port
	log.Info().Str("addr", addr).Str("queue", rt.cfg.Queue.Backend).Msg("server starting")
	err = app.Listen(addr)

	rt.hub.Close()
	if stopQueue != nil {
		stopQueue()
	}
	return err
}

// purgeLimiter drops idle admission windows once per window.
func purgeLimiter(ctx context.Context, rt *runtime) {
	window := rt.cfg.RateLimit.Window()
	if !rt.limiter.Enabled() || window <= 0 {
		return
	}
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rt.limiter.Purge(window); n > 0 {
				rt.log.Debug().Int("keys", n).Msg("purged idle rate limit windows")
			}
		}
	}
}
