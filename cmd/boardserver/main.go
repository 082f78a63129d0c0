// Command boardserver runs the collaborative whiteboard backend: the HTTP
// and WebSocket surface, the per-board hub registry, the presence tracker,
// and the LLM agent executor.
//
// Grounded on the teacher's cmd/server/main.go shape: env-driven config,
// logger.Init() at startup, a background cleanup goroutine tied to a
// cancelable context, and a signal-driven graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"

	"github.com/silapakurthi/collabboard/internal/auth"
	"github.com/silapakurthi/collabboard/internal/config"
	"github.com/silapakurthi/collabboard/internal/httpapi"
	"github.com/silapakurthi/collabboard/internal/logging"
	"github.com/silapakurthi/collabboard/internal/metrics"
	"github.com/silapakurthi/collabboard/internal/observability"
	"github.com/silapakurthi/collabboard/pkg/agent"
	"github.com/silapakurthi/collabboard/pkg/board"
	"github.com/silapakurthi/collabboard/pkg/mutation"
	"github.com/silapakurthi/collabboard/pkg/presence"
	"github.com/silapakurthi/collabboard/pkg/store"
)

func main() {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.LogFields(log.Logger)

	var bus *store.Bus
	if cfg.NATSURL != "" {
		bus, err = store.NewBus(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer bus.Close()
	} else {
		log.Info().Msg("NATS_URL not set, using single-instance in-process event bus")
	}

	st, err := store.Open(cfg.SQLitePath, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	presences, err := presence.New(cfg.ThrottleMS, cfg.Stale, cfg.StaleStore)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start presence tracker")
	}
	defer presences.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := board.NewRegistry(ctx, st)
	go registry.RunIdleSweeper(ctx, cfg.IdleSweepInterval, cfg.IdleTimeout)
	go presences.RunReaper(ctx)

	mutations := mutation.New(registry, presences)

	anthropicClient := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	tracer := observability.New(ctx, cfg.LangfuseHost, cfg.LangfusePublicKey, cfg.LangfuseSecretKey)
	executor := agent.NewExecutor(anthropicClient, cfg.AgentModel, registry, tracer,
		cfg.PerTurnTimeout, cfg.MaxTurns, cfg.PadSide, cfg.PadTop, cfg.PadBottom)

	authMgr := auth.NewManager(cfg.JWTSecret)

	m := metrics.New()
	sampler := metrics.NewSystemSampler(m)
	go sampler.Run(ctx.Done(), 15*time.Second)

	srv := httpapi.NewServer(registry, mutations, presences, executor, authMgr, tracer, m)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Addr).Msg("collabboard server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}
