package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/loopyluu007/anime-ai/internal/worker"
)

// runWorker processes the asynq queue without serving HTTP. Its task events
// reach no websocket client; clients of a separate serve process poll.
func runWorker(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := checkStandaloneWorker(rt.cfg); err != nil {
		return err
	}

	srv := newWorkerServer(rt)
	mux := asynq.NewServeMux()
	worker.NewTaskWorker(rt.tasks, rt.log).Register(mux)
	if err := srv.Start(mux); err != nil {
		return err
	}
	rt.log.Info().Int("concurrency", rt.cfg.Queue.Concurrency).Msg("worker started")

	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// checkStandaloneWorker requires a queue and a task store shared with the
// serve process.
func checkStandaloneWorker(cfg *config.Config) error {
	if cfg.Queue.Backend != "asynq" {
		return fmt.Errorf("worker requires QUEUE_BACKEND=asynq, got %q", cfg.Queue.Backend)
	}
	switch cfg.Store.Backend {
	case "redis", "postgres":
		return nil
	default:
		return fmt.Errorf("worker requires STORE_BACKEND=redis or postgres, got %q", cfg.Store.Backend)
	}
}

func newWorkerServer(rt *runtime) *asynq.Server {
	return asynq.NewServer(rt.redisOpt(), asynq.Config{
		Concurrency: rt.cfg.Queue.Concurrency,
		Queues: map[string]int{
			worker.DefaultQueue: 1,
		},
		Logger: asynqLogger{rt.log.With().Str("component", "asynq").Logger()},
	})
}

// asynqLogger adapts zerolog to asynq.Logger
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
