package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	analysis "github.com/echosoul/backend/internal/analysis/emotion"
	"github.com/echosoul/backend/internal/config"
	"github.com/echosoul/backend/internal/emotionlog"
	"github.com/echosoul/backend/internal/handler"
	"github.com/echosoul/backend/internal/metrics"
	"github.com/echosoul/backend/internal/nlp"
	"github.com/echosoul/backend/internal/service/ai"
	"github.com/echosoul/backend/internal/service/chat"
	"github.com/echosoul/backend/internal/service/classifier"
	"github.com/echosoul/backend/internal/store"
	logx "github.com/echosoul/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logx.Init()
		logx.Fatal().Err(err).Msg("failed to load configuration")
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment()})
	if envErr != nil {
		logx.Debug().Err(envErr).Msg("no .env file, using system environment only")
	}

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logx.Warn().Err(err).Msg("failed to close store")
		}
	}()

	normalizer, err := nlp.NewNormalizer()
	if err != nil {
		return fmt.Errorf("init normalizer: %w", err)
	}

	chatModel, err := cfg.LLM.NewChatModel(ctx, cfg.LLM.ChatModel)
	if err != nil {
		return fmt.Errorf("init chat model: %w", err)
	}
	recommendModel, err := cfg.LLM.NewChatModel(ctx, cfg.LLM.RecommendModel)
	if err != nil {
		return fmt.Errorf("init recommendation model: %w", err)
	}

	cls, err := newClassifier(ctx, cfg, chatModel)
	if err != nil {
		return fmt.Errorf("init classifier: %w", err)
	}

	generator, err := ai.NewGenerator(ctx, chatModel, cfg.LLM.Timeout)
	if err != nil {
		return fmt.Errorf("init reply generator: %w", err)
	}
	recommender, err := ai.NewRecommender(ctx, recommendModel, st, cfg.LLM.Timeout)
	if err != nil {
		return fmt.Errorf("init recommender: %w", err)
	}

	var ringOpts []emotionlog.Option
	if cfg.EmotionLogPath != "" {
		ringOpts = append(ringOpts, emotionlog.WithSnapshotFile(cfg.EmotionLogPath))
	}
	ring := emotionlog.New(cfg.EmotionLogCapacity, ringOpts...)
	if err := ring.Load(); err != nil {
		logx.Warn().Err(err).Str("path", cfg.EmotionLogPath).Msg("failed to restore emotion log, starting empty")
	}

	m := metrics.New()
	chatSvc, err := chat.NewService(chat.Dependencies{
		Normalizer: normalizer,
		Classifier: cls,
		Responder:  generator,
		Store:      st,
		Emotions:   ring,
		Metrics:    m,
	}, cfg.HistoryWindow)
	if err != nil {
		return fmt.Errorf("init chat service: %w", err)
	}

	router := handler.NewRouter(handler.Services{
		Chat:          chatSvc,
		Recommender:   recommender,
		Metrics:       m,
		AllowedOrigin: cfg.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logx.Info().
		Str("addr", srv.Addr).
		Str("store", cfg.Store.Backend).
		Str("classifier", cfg.Classifier.Backend).
		Str("llm_provider", cfg.LLM.Provider).
		Msg("EchoSoul backend listening")
	return runServer(ctx, srv)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case config.StoreMemory:
		logx.Warn().Msg("using in-memory store, history is lost on restart")
		return store.NewMemory(), nil
	case config.StoreRedis:
		client, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewRedis(client, ""), nil
	default:
		sqlStore, err := store.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlStore, nil
	}
}

func newClassifier(ctx context.Context, cfg *config.Config, chatModel model.ChatModel) (*classifier.Service, error) {
	var backend classifier.Model
	switch strings.ToLower(cfg.Classifier.Backend) {
	case config.ClassifierLLM:
		llmModel, err := classifier.NewLLMModel(ctx, chatModel)
		if err != nil {
			return nil, err
		}
		backend = llmModel
	default:
		httpModel, err := classifier.NewHTTPModel(classifier.HTTPConfig{
			URL:        cfg.Classifier.URL,
			Token:      cfg.Classifier.Token,
			Timeout:    cfg.Classifier.Timeout,
			MaxRetries: cfg.Classifier.MaxRetries,
			RetryDelay: cfg.Classifier.RetryDelay,
		})
		if err != nil {
			return nil, err
		}
		backend = httpModel
	}

	overrides := analysis.NewOverrides(nil, cfg.Classifier.OverrideThreshold)
	return classifier.NewService(backend, overrides)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logx.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
