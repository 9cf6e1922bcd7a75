package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/api"
	"github.com/tharindu-dm/herald/internal/clients"
	"github.com/tharindu-dm/herald/internal/config"
	"github.com/tharindu-dm/herald/internal/db"
	"github.com/tharindu-dm/herald/internal/dispatch"
	"github.com/tharindu-dm/herald/internal/metrics"
	"github.com/tharindu-dm/herald/internal/observ"
	"github.com/tharindu-dm/herald/internal/preference"
	"github.com/tharindu-dm/herald/internal/queue"
	"github.com/tharindu-dm/herald/internal/redis"
	"github.com/tharindu-dm/herald/internal/reminder"
	"github.com/tharindu-dm/herald/internal/scheduler"
	"github.com/tharindu-dm/herald/internal/sender"
	"github.com/tharindu-dm/herald/internal/template"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting herald",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Directory clients
	dirCfg := clients.Config{
		UserServiceURL:  cfg.UserServiceURL,
		EventServiceURL: cfg.EventServiceURL,
		Timeout:         5 * time.Second,
	}
	users := clients.NewUserClient(dirCfg, logger)
	events := clients.NewEventClient(dirCfg, logger)

	// AWS transports
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	sesClient := ses.NewFromConfig(awsCfg)
	snsClient := sns.NewFromConfig(awsCfg)

	// Delivery pipeline
	tracker := sender.NewTracker(repo, cfg.MaxAttempts, logger)
	mux := sender.NewMux(logger,
		sender.NewEmailSender(sesClient, users, tracker, cfg.SESFromEmail, cfg.SendTimeout, logger),
		sender.NewPushSender(snsClient, users, tracker, cfg.SendTimeout, logger),
		sender.NewInAppSender(tracker, logger),
	)

	renderer := template.NewRenderer(repo, logger)
	gate := preference.NewGate(repo, logger)
	dispatcher := dispatch.NewOrchestrator(repo, renderer, gate, mux, cfg.BatchSize, logger)

	preferences := preference.NewService(repo, logger)
	templates := template.NewService(repo, logger)

	reminderJob := reminder.NewJob(events, dispatcher, cfg.ReminderLeadDays, logger)

	// Queue consumer needs Redis for message dedup; without Redis the
	// consumer stays off and dispatch runs via HTTP and sweeps only.
	if cfg.SQSQueueURL != "" {
		rdb, err := redis.New(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()

		handler := queue.Handler{
			Dispatch: func(ctx context.Context, req dispatch.Request) error {
				_, err := dispatcher.Create(ctx, req)
				return err
			},
			Batch: func(ctx context.Context, req dispatch.BatchRequest) error {
				_, err := dispatcher.CreateBatch(ctx, req)
				return err
			},
			Reminder: func(ctx context.Context) error {
				_, err := reminderJob.Run(ctx)
				return err
			},
		}

		consumer, err := queue.NewConsumer(ctx, queue.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, redis.NewDeduper(rdb, logger), handler, logger)
		if err != nil {
			return fmt.Errorf("failed to create queue consumer: %w", err)
		}
		go consumer.Run(ctx)
	} else {
		logger.Warn("SQS_QUEUE_URL not set, queue consumer disabled")
	}

	// Reconciliation sweeps plus the daily reminder job.
	sweep := func(channel db.Channel) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			_, err := dispatcher.ProcessPending(ctx, channel)
			return err
		}
	}
	sched := scheduler.New(logger,
		scheduler.Job{Name: "sweep-in-app", Interval: cfg.SweepInAppInterval, Run: sweep(db.ChannelInApp)},
		scheduler.Job{Name: "sweep-push", Interval: cfg.SweepPushInterval, Run: sweep(db.ChannelPush)},
		scheduler.Job{Name: "sweep-email", Interval: cfg.SweepEmailInterval, Run: sweep(db.ChannelEmail)},
		scheduler.Job{Name: "event-reminders", Interval: cfg.ReminderInterval, Run: func(ctx context.Context) error {
			_, err := reminderJob.Run(ctx)
			return err
		}},
	)
	sched.Start(ctx)

	// HTTP API
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			logger.Info("request completed",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(req.Context())),
			)
		})
	})

	apiHandler := api.NewHandler(logger, dispatcher, preferences, templates)
	r.Route("/v1", apiHandler.Routes)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := database.Health(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		sched.Wait()
		logger.Info("server stopped gracefully")
	}

	return nil
}
