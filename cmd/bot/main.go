package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/xaenox/interviewbud/internal/bot"
	"github.com/xaenox/interviewbud/internal/classifier"
	"github.com/xaenox/interviewbud/internal/messenger"
	"github.com/xaenox/interviewbud/internal/questions"
	"github.com/xaenox/interviewbud/internal/sms"
	"github.com/xaenox/interviewbud/internal/storage"
	"github.com/xaenox/interviewbud/internal/telegram"
	"github.com/xaenox/interviewbud/pkg/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger, _ := zap.NewProduction()
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	// Initialize logger
	logger := newLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStorage(cfg.Database, logger)
	defer store.Close()

	if cfg.Questions.SourceURL != "" {
		syncer, err := questions.NewSyncer(cfg.Questions.SourceURL, cfg.Questions.Category, cfg.Questions.PerPage, store, logger)
		if err != nil {
			logger.Fatal("Failed to create question syncer", zap.Error(err))
		}
		go func() {
			if _, err := syncer.Sync(ctx); err != nil {
				logger.Error("Failed to sync questions", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("IVB_QUESTIONS_URL not set, serving questions already in storage")
	}

	clf := classifier.NewRuleClassifier()
	mux := http.NewServeMux()
	var waiters []func()

	if cfg.Messenger.Enabled {
		client := messenger.NewClient(cfg.Messenger.GraphURL, cfg.Messenger.PageAccessToken, logger)
		b, err := bot.New(store, client, clf, logger.Named("messenger"))
		if err != nil {
			logger.Fatal("Failed to create messenger bot", zap.Error(err))
		}
		webhook, err := messenger.NewWebhookHandler(cfg.Messenger.ValidationToken, cfg.Messenger.AppSecret, b, logger)
		if err != nil {
			logger.Fatal("Failed to create webhook handler", zap.Error(err))
		}
		mux.Handle("/webhook", webhook)
		waiters = append(waiters, webhook.Wait)

		if cfg.Messenger.SetupThread {
			go func() {
				if err := client.SetupThread(ctx, bot.GreetingText, cfg.Messenger.WebsiteURL); err != nil {
					logger.Error("Failed to post thread settings", zap.Error(err))
				}
			}()
		}
		logger.Info("Messenger webhook enabled", zap.String("server_url", cfg.Messenger.ServerURL))
	}

	if cfg.SMS.Enabled {
		handler, err := sms.NewHandler(store, logger.Named("sms"))
		if err != nil {
			logger.Fatal("Failed to create SMS handler", zap.Error(err))
		}
		mux.Handle("/sms", handler)
		logger.Info("SMS webhook enabled")
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	telegramDone := make(chan struct{})
	if cfg.Telegram.Token != "" {
		api, err := telegram.NewAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal("Failed to create telegram bot", zap.Error(err))
		}
		b, err := bot.New(store, telegram.NewNotifier(api, logger), clf, logger.Named("telegram"))
		if err != nil {
			logger.Fatal("Failed to create telegram dispatcher", zap.Error(err))
		}
		channel, err := telegram.NewChannel(api, b, logger)
		if err != nil {
			logger.Fatal("Failed to create telegram channel", zap.Error(err))
		}
		go func() {
			defer close(telegramDone)
			if err := channel.Start(ctx); err != nil {
				logger.Error("Telegram polling stopped", zap.Error(err))
			}
		}()
	} else {
		close(telegramDone)
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Interviewbud is running", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	for _, wait := range waiters {
		wait()
	}
	<-telegramDone
}

func newLogger(cfg config.LogConfig) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func openStorage(cfg config.DatabaseConfig, logger *zap.Logger) storage.Storage {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage()
	case config.DriverSQLite:
		logger.Info("Using SQLite storage")
		store, err := storage.NewSQLiteStorage(cfg.SQLitePath, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		return store
	default:
		logger.Info("Using PostgreSQL storage")
		store, err := storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		return store
	}
}
