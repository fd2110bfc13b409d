package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notification-dispatch/internal/audit"
	commonaws "notification-dispatch/internal/common/aws"
	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/database"
	commonhttp "notification-dispatch/internal/common/http"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/observability"
	"notification-dispatch/internal/messaging"
	"notification-dispatch/internal/messaging/queue"
	"notification-dispatch/internal/repository"
	"notification-dispatch/internal/sender"
	"notification-dispatch/internal/worker"
)

// retryWithBackoff attempts an operation with exponential backoff between
// tries. Used only during bootstrap; steady-state retries go through the
// dispatch pipeline.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting notification dispatcher",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	tracer, err := observability.NewTracer(cfg.App.Name, os.Getenv("JAEGER_ENDPOINT"))
	if err != nil {
		zapLog.Fatal("tracer init failed", zap.Error(err))
	}
	defer tracer.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected")

	// --- Topics and transport ---
	topics := messaging.Topics{
		Send:   queue.Topic{Name: cfg.Queue.SendTopic, Partitions: cfg.Queue.SendPartitions},
		Retry:  queue.Topic{Name: cfg.Queue.RetryTopic, Partitions: cfg.Queue.RetryPartitions},
		Dlq:    queue.Topic{Name: cfg.Queue.DlqTopic, Partitions: 1},
		Events: queue.Topic{Name: cfg.Queue.EventsTopic, Partitions: cfg.Queue.EventPartitions},
	}

	publisher := queue.NewPublisher(rdb.Client)
	producer := messaging.NewDispatchProducer(publisher, topics, log)
	emitter := messaging.NewEventEmitter(publisher, topics.Events, log)

	store := repository.NewNotificationRepository(pg.DB, log)

	// --- Senders ---
	senders := buildSenders(ctx, cfg, rdb, zapLog, log)
	registry := sender.NewRegistry(log, senders...)

	// --- Workers ---
	backoff := worker.NewBackoffSchedule(cfg.Dispatch)
	sendWorker := worker.NewSendWorker(worker.SendWorkerOptions{
		Store:       store,
		Registry:    registry,
		Producer:    producer,
		Emitter:     emitter,
		Backoff:     backoff,
		Tracer:      tracer,
		Obs:         obs,
		SendTimeout: config.GetDuration(cfg.Dispatch.SendTimeout),
		Logger:      log,
	})
	retryScheduler := worker.NewRetryScheduler(producer, config.GetDuration(cfg.Dispatch.RetryHoldCap), log)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Dispatch.WorkerConcurrency; i++ {
		name := fmt.Sprintf("send-worker-%d", i)
		consumer := queue.NewConsumer(rdb.Client, topics.Send, "dispatch", name, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx, sendWorker.Handle); err != nil && ctx.Err() == nil {
				zapLog.Error("send consumer stopped", zap.Error(err))
			}
		}()
	}
	zapLog.Info("send workers started", zap.Int("concurrency", cfg.Dispatch.WorkerConcurrency))

	retryConsumer := queue.NewConsumer(rdb.Client, topics.Retry, "retry-scheduler", "retry-worker", log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := retryConsumer.Run(ctx, retryScheduler.Handle); err != nil && ctx.Err() == nil {
			zapLog.Error("retry consumer stopped", zap.Error(err))
		}
	}()
	zapLog.Info("retry scheduler started")

	// --- Audit archiver (optional) ---
	if cfg.Audit.ArchiverEnabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}

		archiver := audit.NewArchiver(audit.NewESIndexer(esClient.Client), cfg.Database.Elasticsearch.Index, log)
		archiveConsumer := queue.NewConsumer(rdb.Client, topics.Events, "audit-archiver", "archiver", log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := archiveConsumer.Run(ctx, archiver.Handle); err != nil && ctx.Err() == nil {
				zapLog.Error("archive consumer stopped", zap.Error(err))
			}
		}()
		zapLog.Info("audit archiver started", zap.String("index", cfg.Database.Elasticsearch.Index))
	}

	// --- Metrics and health endpoints ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Ping(r.Context()); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := pg.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	metricsServer := &http.Server{Addr: cfg.App.MetricsAddr, Handler: mux}
	go func() {
		zapLog.Info("metrics server listening", zap.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("shutdown signal received, stopping consumers...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		zapLog.Warn("consumers did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("metrics server shutdown failed", zap.Error(err))
	}

	zapLog.Info("notification dispatcher stopped")
}

// buildSenders assembles the enabled channel senders from config.
func buildSenders(ctx context.Context, cfg *config.Config, rdb *database.RedisClient, zapLog *zap.Logger, log logger.Logger) []sender.Sender {
	var senders []sender.Sender

	if cfg.Senders.Email.Enabled {
		switch cfg.Senders.Email.Provider {
		case "ses":
			sesClient, err := commonaws.NewSESClient(ctx, cfg.Senders.AWS.Region)
			if err != nil {
				zapLog.Fatal("ses client init failed", zap.Error(err))
			}
			senders = append(senders, sender.NewSESEmailSender(sesClient, cfg.Senders.Email.From, log))
		default:
			senders = append(senders, sender.NewSMTPEmailSender(cfg, log))
		}
	}

	if cfg.Senders.SMS.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Senders.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		senders = append(senders, sender.NewSNSSMSSender(snsClient, cfg.Senders.SMS.SenderID, log))
	}

	if cfg.Senders.Push.Enabled {
		client := commonhttp.NewClient(config.GetDuration(cfg.Senders.Push.Timeout))
		senders = append(senders, sender.NewPushSender(client, cfg.Senders.Push.GatewayURL, cfg.Senders.Push.APIKey, log))
	}

	if cfg.Senders.InApp.Enabled {
		senders = append(senders, sender.NewInAppSender(rdb.Client, cfg.Senders.InApp.MaxSize, log))
	}

	return senders
}
