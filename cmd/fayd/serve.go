package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soullink/fay-gateway/internal/adapter/loopback"
	adapteropenai "github.com/soullink/fay-gateway/internal/adapter/openai"
	"github.com/soullink/fay-gateway/internal/adapter/router"
	"github.com/soullink/fay-gateway/internal/assets"
	"github.com/soullink/fay-gateway/internal/config"
	"github.com/soullink/fay-gateway/internal/content"
	contentpg "github.com/soullink/fay-gateway/internal/content/postgres"
	contentsqlite "github.com/soullink/fay-gateway/internal/content/sqlite"
	"github.com/soullink/fay-gateway/internal/health"
	"github.com/soullink/fay-gateway/internal/httpserver"
	"github.com/soullink/fay-gateway/internal/interact"
	"github.com/soullink/fay-gateway/internal/llm"
	"github.com/soullink/fay-gateway/internal/logging"
	"github.com/soullink/fay-gateway/internal/metrics"
	modelsqlite "github.com/soullink/fay-gateway/internal/modelstore/sqlite"
	"github.com/soullink/fay-gateway/internal/qa"
	"github.com/soullink/fay-gateway/internal/stream"
	"github.com/soullink/fay-gateway/internal/version"
)

const (
	backendLoopback = "loopback"
	backendOpenAI   = "openai"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

// newLogger mirrors logs to stdout and the rotating file. The returned
// closer releases the file.
func newLogger(cfg config.Config) (zerolog.Logger, io.Closer, error) {
	rot, err := logging.NewRotatingWriter(cfg.LogFile, logging.DefaultMaxBytes)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("init rotating log: %w", err)
	}
	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: io.MultiWriter(os.Stdout, rot),
		Pretty: cfg.LogPretty,
	})
	return logger, rot, nil
}

func openContent(cfg config.Config) (content.Store, error) {
	if cfg.UsePostgres() {
		s, err := contentpg.New(cfg.ContentDSN, contentpg.Pool{MaxOpen: 20, MaxIdle: 5, LifetimeMinutes: 30})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := contentsqlite.New(cfg.ContentDBPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newBackend routes the configured model to the OpenAI compatible upstream
// when an API key is present. Everything else echoes through loopback.
func newBackend(cfg config.Config, logger zerolog.Logger) (*router.Router, error) {
	r := router.New()
	if err := r.Register(backendLoopback, loopback.New()); err != nil {
		return nil, err
	}
	if err := r.SetFallback(backendLoopback); err != nil {
		return nil, err
	}
	if cfg.LLMAPIKey == "" {
		logger.Warn().Msg("llm_api_key not set; replies echo through loopback")
		return r, nil
	}
	upstream, err := adapteropenai.New(adapteropenai.Config{
		APIKey:         cfg.LLMAPIKey,
		BaseURL:        cfg.LLMBaseURL,
		RequestTimeout: cfg.LLMTimeout,
		MaxRetries:     cfg.LLMMaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("init openai adapter: %w", err)
	}
	if err := r.Register(backendOpenAI, upstream); err != nil {
		return nil, err
	}
	if err := r.Route(cfg.LLMModel, backendOpenAI); err != nil {
		return nil, err
	}
	logger.Info().Str("base_url", upstream.BaseURL()).Str("model", cfg.LLMModel).Msg("llm upstream configured")
	return r, nil
}

func runServe(ctx context.Context, flags *globalFlags) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger.Info().Str("version", version.Info()).Str("env", cfg.Environment).Msg("fayd starting")

	contentStore, err := openContent(cfg)
	if err != nil {
		return fmt.Errorf("open content store: %w", err)
	}
	defer contentStore.Close()

	modelStore, err := modelsqlite.New(cfg.ModelDBPath)
	if err != nil {
		return fmt.Errorf("open model store: %w", err)
	}
	defer modelStore.Close()

	assetStore, err := assets.New(cfg.AssetDir, cfg.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("open asset dir: %w", err)
	}
	book, err := qa.Open(cfg.QAFile, logger)
	if err != nil {
		return fmt.Errorf("open qa book: %w", err)
	}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	client := llm.New(backend, llm.Options{Model: cfg.LLMModel, MaxTokens: cfg.LLMMaxTokens})

	collector := metrics.NewCollector()
	dispatcher, err := interact.New(interact.Config{
		Registry:      stream.NewRegistry(),
		Content:       contentStore,
		LLM:           client,
		Models:        modelStore,
		QA:            book,
		Metrics:       collector,
		Logger:        logger,
		HistoryLimit:  cfg.HistoryLimit,
		MaxGenerators: cfg.MaxGenerators,
	})
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	checker := health.New(health.Config{
		Stores:     map[string]health.Pinger{"content": contentStore, "models": modelStore},
		LLMBaseURL: cfg.LLMBaseURL,
	})
	srv, err := httpserver.New(httpserver.Config{
		Dispatcher:     dispatcher,
		Content:        contentStore,
		Models:         modelStore,
		Assets:         assetStore,
		QA:             book,
		LLM:            client,
		Health:         checker,
		Metrics:        collector,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	// No WriteTimeout: SSE replies stay open for the whole generation.
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddress).Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.QAWatch {
		g.Go(func() error {
			if err := book.Watch(gctx); err != nil {
				logger.Warn().Err(err).Msg("qa watcher stopped")
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info().Err(err).Msg("fayd stopped")
	return err
}
