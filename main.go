package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/samuel/go-metrics/metrics"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/config"
	"medical-dictation-server/internal/dictation"
	"medical-dictation-server/internal/graph"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/notify"
	"medical-dictation-server/internal/query"
	"medical-dictation-server/internal/routes"
	"medical-dictation-server/internal/search"
	"medical-dictation-server/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// A .env file is optional; the environment wins when both are set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Environment, cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	db, err := models.InitDB(models.DatabaseConfig{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		LogLevel: cfg.Database.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	if su := cfg.FirstSuperuser; su.Email != "" && su.Password != "" {
		user, created, err := models.EnsureSuperuser(db, su.Email, su.Password, su.FullName)
		if err != nil {
			return err
		}
		if created {
			logger.Info("created first superuser", slog.String("email", user.Email))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	sender, closeSender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	metricsRegistry := metrics.NewRegistry().Scope("dictation")
	dispatcher := notify.NewDispatcher(sender, db, logger,
		time.Duration(cfg.Notify.TimeoutSeconds)*time.Second, metricsRegistry.Scope("notify"))

	mode := access.SearchByRole
	if cfg.SearchScopeMode == config.SearchScopeSelf {
		mode = access.SearchSelfOnly
	}
	g := graph.NewStore(db)
	svc := dictation.NewService(dictation.Deps{
		DB:            db,
		Graph:         g,
		Access:        access.NewEvaluator(db, g, mode),
		Query:         query.NewStore(db),
		Search:        search.NewComposer(db),
		Blobs:         blobs,
		Notifier:      dispatcher,
		Log:           logger,
		MaxAudioBytes: cfg.MaxAudioBytes,
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, db, cfg, svc)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.String("port", cfg.Port),
			slog.String("storage", cfg.Storage.Driver),
			slog.String("notify", sender.Name()))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			dispatcher.Wait()
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	err = drain(srv.Shutdown, dispatcher.Wait, 15*time.Second)
	logMetrics(logger, metricsRegistry)
	return err
}

// drain stops the server, then waits for in-flight notifications whether or
// not the server stopped cleanly. Senders are closed only after drain returns.
func drain(shutdown func(context.Context) error, wait func(), timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := shutdown(ctx)
	wait()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func logMetrics(logger *slog.Logger, reg metrics.Registry) {
	err := reg.Do(func(name string, value interface{}) error {
		if c, ok := value.(*metrics.Counter); ok {
			logger.Info("metric", slog.String("name", name), slog.Uint64("count", c.Count()))
		}
		return nil
	})
	if err != nil {
		logger.Warn("read metrics", slog.Any("error", err))
	}
}

func newLogger(env, level string, w io.Writer) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: l}
	if env == "development" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return storage.NewS3Store(storage.NewS3Client(awsCfg), cfg.Storage.S3Bucket, cfg.Storage.S3Prefix), nil
	case "local":
		return storage.NewLocalStore(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Storage.Driver)
	}
}

func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Sender, func(), error) {
	noop := func() {}
	switch cfg.Notify.Driver {
	case "sns", "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("load aws config: %w", err)
		}
		if cfg.Notify.Driver == "sns" {
			return notify.SNSSender{Client: sns.NewFromConfig(awsCfg)}, noop, nil
		}
		sender, err := notify.NewSQSSender(ctx, sqs.NewFromConfig(awsCfg), cfg.Notify.SQSQueueName)
		if err != nil {
			return nil, noop, err
		}
		return sender, noop, nil
	case "kafka":
		sender := notify.KafkaSender{Writer: notify.NewKafkaWriter(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)}
		return sender, func() {
			if err := sender.Close(); err != nil {
				logger.Warn("close kafka writer", slog.Any("error", err))
			}
		}, nil
	default:
		return notify.LogSender{Log: logger}, noop, nil
	}
}
