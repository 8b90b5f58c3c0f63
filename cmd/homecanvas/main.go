package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homecanvas/homecanvas/config"
	"github.com/homecanvas/homecanvas/dispatch"
	"github.com/homecanvas/homecanvas/events"
	"github.com/homecanvas/homecanvas/imageedit"
	"github.com/homecanvas/homecanvas/imageedit/flux"
	"github.com/homecanvas/homecanvas/imageedit/openaiimage"
	"github.com/homecanvas/homecanvas/media"
	"github.com/homecanvas/homecanvas/orchestrator"
	"github.com/homecanvas/homecanvas/pipeline"
	"github.com/homecanvas/homecanvas/pkg/logging"
	"github.com/homecanvas/homecanvas/pkg/telemetry"
	"github.com/homecanvas/homecanvas/provider"
	"github.com/homecanvas/homecanvas/provider/claude"
	"github.com/homecanvas/homecanvas/provider/gemini"
	"github.com/homecanvas/homecanvas/server"
	"github.com/homecanvas/homecanvas/store"
	"github.com/homecanvas/homecanvas/tokenizer"
	"github.com/homecanvas/homecanvas/worker"
)

func main() {
	log := logging.WithComponent("main")

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "homecanvas"})
	if err != nil {
		log.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	st, err := buildStore(cfg)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	mediaStore, err := media.NewGridFSStore(ctx, &media.GridFSConfig{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDB,
		BaseURL:  cfg.MediaBaseURL,
	})
	if err != nil {
		log.Error("failed to open media store", "error", err)
		os.Exit(1)
	}
	defer mediaStore.Close(context.Background())

	model, err := buildModel(ctx, cfg)
	if err != nil {
		log.Error("failed to configure chat provider", "error", err)
		os.Exit(1)
	}

	tok, err := tokenizer.Default()
	if err != nil {
		log.Warn("tokenizer unavailable, history budgeting disabled", "error", err)
	}

	dispatcher := dispatch.New(model, tok, &dispatch.Config{
		HistoryTokenBudget: cfg.HistoryTokenBudget,
	})

	var fallback imageedit.Provider
	if cfg.OpenAIAPIKey != "" {
		fallback = openaiimage.New(openaiimage.DefaultConfig(cfg.OpenAIAPIKey))
	}
	pipe := pipeline.New(flux.New(flux.DefaultConfig(cfg.FalAPIKey)), fallback, mediaStore)

	bus := events.NewBus()
	orch := orchestrator.New(st, dispatcher, pipe, bus, worker.NewPool(cfg.WorkerConcurrency),
		&orchestrator.Config{SyncGeneration: cfg.SyncGeneration})
	defer orch.Close()

	srvCfg := server.DefaultConfig()
	srvCfg.ListenAddr = cfg.ListenAddr
	srvCfg.KeepaliveInterval = cfg.KeepaliveInterval
	srv := server.New(orch, bus, server.StoreTokenResolver{Store: st}, srvCfg)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func buildStore(cfg *config.Config) (store.Store, error) {
	pg, err := store.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if cfg.RedisAddr == "" {
		return pg, nil
	}
	return store.NewCachedStore(pg, &store.RedisCacheConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}), nil
}

func buildModel(ctx context.Context, cfg *config.Config) (provider.Client, error) {
	switch cfg.ChatProvider {
	case config.ChatProviderGemini:
		gcfg := gemini.DefaultConfig(cfg.GeminiAPIKey)
		gcfg.Model = cfg.GeminiModel
		return gemini.New(ctx, gcfg)
	default:
		ccfg := claude.DefaultConfig(cfg.AnthropicAPIKey)
		ccfg.Model = cfg.AnthropicModel
		return claude.New(ccfg), nil
	}
}
