package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/auth"
	"github.com/dkeye/Huddle/internal/adapters/crypto"
	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/notify"
	wssignal "github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/adapters/store/memory"
	"github.com/dkeye/Huddle/internal/adapters/store/mongodb"
	"github.com/dkeye/Huddle/internal/adapters/store/postgres"
	"github.com/dkeye/Huddle/internal/adapters/store/redisstate"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if !cfg.Debug() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	stores, closers, err := buildStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init stores")
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	o := orch.New(stores, app.PolicyByName(cfg.Limits.Backpressure))

	var tokens wssignal.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		log.Warn().Msg("no jwt secret, identify tokens are taken as user ids")
		tokens = auth.Insecure{}
	}

	ctl := wssignal.NewSignalWSController(o, tokens,
		wssignal.NewMessageRateLimiter(cfg.Limits.MessagesPerWindow, cfg.Limits.Window),
		wssignal.Options{ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod, SendBuffer: cfg.SendBuffer})

	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: o, Signal: ctl, Tokens: tokens})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func buildCipher(cfg *config.Config) (core.Cipher, error) {
	c, err := crypto.NewContentCipher(cfg.Crypto.Key)
	if err == nil {
		return c, nil
	}
	if cfg.Debug() {
		log.Warn().Msg("no crypto key, storing message content in plaintext")
		return crypto.Plaintext{}, nil
	}
	return nil, err
}

func buildStores(ctx context.Context, cfg *config.Config) (orch.Stores, []io.Closer, error) {
	cipher, err := buildCipher(cfg)
	if err != nil {
		return orch.Stores{}, nil, err
	}
	if !cfg.External() {
		mem := memory.New()
		memory.SeedDemo(mem)
		return orch.Stores{
			Identity: mem,
			Channels: mem,
			Messages: mem,
			Reads:    mem,
			Cipher:   cipher,
			Notify:   &memory.Sink{},
			Presence: mem,
		}, nil, nil
	}

	var closers []io.Closer
	fail := func(err error) (orch.Stores, []io.Closer, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return orch.Stores{}, nil, err
	}

	mg, err := mongodb.Connect(ctx, mongodb.Config{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
		Timeout:     cfg.Mongo.Timeout,
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closerFunc(func() error { return mg.Close(context.Background()) }))

	pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closerFunc(func() error { pool.Close(); return nil }))

	rs, err := redisstate.Connect(ctx, redisstate.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PresenceTTL: cfg.Redis.PresenceTTL,
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, rs)

	sink, err := notify.Connect(notify.Config{
		Servers:       cfg.Nats.Servers,
		Name:          "huddle",
		SubjectPrefix: cfg.Nats.SubjectPrefix,
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, sink)

	log.Info().Str("mongo", cfg.Mongo.Database).Str("redis", cfg.Redis.Addr).Msg("external stores connected")
	return orch.Stores{
		Identity: postgres.NewIdentity(pool),
		Channels: mg,
		Messages: mg,
		Reads:    rs,
		Cipher:   cipher,
		Notify:   sink,
		Presence: rs,
	}, closers, nil
}
