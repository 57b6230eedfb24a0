package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/loopyluu007/anime-ai/internal/admission"
	"github.com/loopyluu007/anime-ai/internal/auth"
	"github.com/loopyluu007/anime-ai/internal/client"
	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/loopyluu007/anime-ai/internal/infra"
	"github.com/loopyluu007/anime-ai/internal/service"
	"github.com/loopyluu007/anime-ai/internal/store"
	ws "github.com/loopyluu007/anime-ai/internal/websocket"
)

const redisTaskTTL = 7 * 24 * time.Hour

// runtime holds every long-lived component and how to release it
type runtime struct {
	cfg      *config.Config
	log      zerolog.Logger
	redis    *redis.Client
	pg       *pgxpool.Pool
	store    store.TaskStore
	hub      *ws.Hub
	tasks    *service.TaskService
	resolver *auth.Resolver
	limiter  *admission.Limiter
	validate *validator.Validate
	services map[string]bool
}

func (r *runtime) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     r.cfg.Redis.Addr,
		Password: r.cfg.Redis.Password,
		DB:       r.cfg.Redis.DB,
	}
}

func (r *runtime) Close() {
	if r.hub != nil {
		r.hub.Close()
	}
	if r.pg != nil {
		r.pg.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}

// bootstrap loads configuration and builds the shared components. withHub
// is false for the standalone worker, which has no websocket clients.
func bootstrap(ctx context.Context, withHub bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := infra.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)

	rt := &runtime{
		cfg:      cfg,
		log:      log,
		validate: validator.New(),
		limiter:  admission.New(cfg.RateLimit.Enabled),
		services: map[string]bool{},
	}

	rt.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rt.redis.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not available")
	} else {
		rt.services["redis"] = true
	}

	if err := rt.buildStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	var notifier service.Notifier
	if withHub {
		rt.hub = ws.NewHub(cfg.WebSocket.SendBuffer, log)
		notifier = rt.hub
	}

	providers, mirror := rt.buildProviders(ctx)
	opts := []service.Option{service.WithVideoWait(service.VideoWait{
		MaxWait:      time.Duration(cfg.Video.MaxWaitSeconds) * time.Second,
		PollInterval: time.Duration(cfg.Video.PollIntervalSeconds) * time.Second,
	})}
	if mirror != nil {
		opts = append(opts, service.WithMirror(mirror))
	}
	rt.tasks = service.NewTaskService(rt.store, providers, notifier, rt.validate, log, opts...)

	rt.resolver = rt.buildResolver(ctx)
	return rt, nil
}

func (r *runtime) buildStore(ctx context.Context) error {
	switch r.cfg.Store.Backend {
	case "memory", "":
		r.store = store.NewMemoryStore()
	case "redis":
		r.store = store.NewRedisStore(r.redis, redisTaskTTL)
	case "postgres":
		pool, err := pgxpool.New(ctx, r.cfg.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("failed to reach postgres: %w", err)
		}
		r.pg = pool
		r.store = store.NewPostgresStore(pool)
	default:
		return fmt.Errorf("unknown store backend %q", r.cfg.Store.Backend)
	}
	r.log.Info().Str("backend", r.cfg.Store.Backend).Msg("task store ready")
	return nil
}

func (r *runtime) buildProviders(ctx context.Context) (service.Providers, client.MediaMirror) {
	cfg := r.cfg
	var providers service.Providers

	switch cfg.Text.Provider {
	case "gemini":
		gemini, err := client.NewGeminiClient(ctx, &cfg.Gemini, r.log)
		if err != nil {
			r.log.Warn().Err(err).Msg("gemini client not configured")
		} else {
			providers.Script = gemini
			r.services["gemini"] = true
		}
	default:
		glm := client.NewGLMClient(&cfg.GLM, r.log)
		if glm.IsConfigured() {
			providers.Script = glm
			r.services["glm"] = true
		} else {
			r.log.Warn().Msg("GLM_API_KEY not set, script tasks will fail")
		}
	}

	if img := client.NewImageClient(&cfg.Image, r.log); img.IsConfigured() {
		providers.Image = img
		r.services["image"] = true
	}
	if vid := client.NewVideoClient(&cfg.Video, r.log); vid.IsConfigured() {
		providers.Video = vid
		r.services["video"] = true
	}

	r2, err := client.NewR2Client(&cfg.R2)
	if err != nil {
		r.log.Warn().Err(err).Msg("media mirror disabled")
		return providers, nil
	}
	if !r2.IsConfigured() {
		r.log.Info().Msg("R2 not configured, media mirror disabled")
		return providers, nil
	}
	r.services["r2"] = true
	return providers, r2
}

// buildResolver wires JWKS verification when an issuer is configured. The
// key refresh goroutine lives as long as ctx.
func (r *runtime) buildResolver(ctx context.Context) *auth.Resolver {
	var verifier auth.TokenVerifier
	if r.cfg.Zitadel.Issuer != "" {
		v, err := auth.NewJWKSVerifier(ctx, &r.cfg.Zitadel)
		if err != nil {
			r.log.Warn().Err(err).Msg("JWKS verifier unavailable, using legacy tokens only")
		} else {
			verifier = v
			r.services["auth"] = true
		}
	}
	if r.cfg.JWT.Secret != "" {
		r.services["auth"] = true
	}
	return auth.NewResolver(verifier, r.cfg.JWT.Secret)
}
