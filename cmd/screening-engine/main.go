// cmd/screening-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/max-tl-2000/red-sub014/internal/common/aws"
	"github.com/max-tl-2000/red-sub014/internal/common/camunda"
	"github.com/max-tl-2000/red-sub014/internal/common/config"
	"github.com/max-tl-2000/red-sub014/internal/common/database"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/common/observability"
	"github.com/max-tl-2000/red-sub014/internal/screening/orchestrator"
	"github.com/max-tl-2000/red-sub014/internal/screening/partydata"
	"github.com/max-tl-2000/red-sub014/internal/screening/provider"
	"github.com/max-tl-2000/red-sub014/internal/screening/recovery"
	"github.com/max-tl-2000/red-sub014/internal/screening/store"
	"github.com/max-tl-2000/red-sub014/pkg/registry"

	// Screening Workers
	hr "github.com/max-tl-2000/red-sub014/internal/workers/screening/handle-response"
	lr "github.com/max-tl-2000/red-sub014/internal/workers/screening/long-running"
	pl "github.com/max-tl-2000/red-sub014/internal/workers/screening/party-lifecycle"
	pr "github.com/max-tl-2000/red-sub014/internal/workers/screening/poll-responses"
	rar "github.com/max-tl-2000/red-sub014/internal/workers/screening/request-applicant-report"
	sr "github.com/max-tl-2000/red-sub014/internal/workers/screening/submit-request"
	svr "github.com/max-tl-2000/red-sub014/internal/workers/screening/submit-view-request"
)

// retryWithBackoff attempts to execute a function with exponential backoff
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting screening engine...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("screening-engine")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Load Topic Registry ---
	registryPath := cfg.Registry.Path
	if registryPath == "" {
		registryPath = "configs/topics.json"
	}
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		zapLog.Fatal("topic registry load failed", zap.Error(err))
	}
	zapLog.Info("Topic registry loaded",
		zap.String("path", registryPath),
		zap.String("version", reg.Version),
		zap.Int("topics", len(reg.Topics)),
	)

	// --- Init Zeebe Client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// Message-publishing client for the recovery scheduler.
	broker, err := camunda.NewClient(cfg.Camunda.BrokerAddress)
	if err != nil {
		zapLog.Fatal("broker message client failed", zap.Error(err))
	}

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init AWS Clients ---
	sesClient, err := aws.NewSESClient(ctx, cfg.AWS.Region)
	if err != nil {
		zapLog.Fatal("ses client failed", zap.Error(err))
	}
	snsClient, err := aws.NewSNSClient(ctx, cfg.AWS.Region)
	if err != nil {
		zapLog.Fatal("sns client failed", zap.Error(err))
	}

	alertMailer := aws.NewAlertMailer(sesClient, cfg.AWS.SES.FromEmail, cfg.AWS.SES.AlertEmail, cfg.AWS.SES.Enabled)
	notifier := aws.NewApplicationUpdatedNotifier(snsClient, cfg.AWS.SNS.TopicARN, cfg.AWS.SNS.Enabled)

	zapLog.Info("All external service clients initialized")

	// --- Core Screening Components ---
	tracking := store.New(pg.DB, log)
	party := partydata.New(pg.DB, log)
	providerClient := provider.NewClient(cfg.Provider, log)

	orch := orchestrator.New(orchestrator.Deps{
		Config:   cfg,
		Store:    tracking,
		Party:    party,
		Client:   providerClient,
		Locks:    redis,
		Notifier: notifier,
		Audit:    esClient,
		Logger:   log,
	})

	// --- Recovery Scheduler ---
	recoveryCtx, stopRecovery := context.WithCancel(ctx)
	defer stopRecovery()
	sched := recovery.New(cfg, tracking, providerClient, broker, orch, log)
	go sched.Run(recoveryCtx)

	// --- Register Workers ---

	// Trigger topics all funnel into the same submission pipeline. One
	// subscription per topic so the broker sees distinct job types.
	for _, topic := range sr.TriggerTopics {
		wcfg, enabled := workerSettings(reg, cfg, topic)
		if !enabled {
			continue
		}
		handler := sr.NewHandler(
			&sr.Config{
				Timeout: time.Duration(wcfg.Timeout) * time.Millisecond,
			},
			topic, orch, log,
		)
		startWorker(zeebeClient, topic, wcfg, handler.Handle, zapLog)
	}

	if wcfg, enabled := workerSettings(reg, cfg, hr.TaskType); enabled {
		handler := hr.NewHandler(
			&hr.Config{
				Timeout: time.Duration(wcfg.Timeout) * time.Millisecond,
			},
			orch, log,
		)
		startWorker(zeebeClient, hr.TaskType, wcfg, handler.Handle, zapLog)
	}

	if wcfg, enabled := workerSettings(reg, cfg, svr.TaskType); enabled {
		handler := svr.NewHandler(
			&svr.Config{
				Timeout: time.Duration(wcfg.Timeout) * time.Millisecond,
			},
			orch, log,
		)
		startWorker(zeebeClient, svr.TaskType, wcfg, handler.Handle, zapLog)
	}

	if wcfg, enabled := workerSettings(reg, cfg, pr.TaskType); enabled {
		prCfg := pr.LoadConfig()
		prCfg.Timeout = time.Duration(wcfg.Timeout) * time.Millisecond
		handler := pr.NewHandler(prCfg, tracking, orch, log)
		startWorker(zeebeClient, pr.TaskType, wcfg, handler.Handle, zapLog)
	}

	if wcfg, enabled := workerSettings(reg, cfg, lr.TaskType); enabled {
		lrCfg := lr.LoadConfig()
		lrCfg.Timeout = time.Duration(wcfg.Timeout) * time.Millisecond
		lrCfg.SLA = cfg.Screening.StuckSLA()
		handler := lr.NewHandler(lrCfg, tracking, alertMailer, log)
		startWorker(zeebeClient, lr.TaskType, wcfg, handler.Handle, zapLog)
	}

	if wcfg, enabled := workerSettings(reg, cfg, rar.TaskType); enabled {
		handler := rar.NewHandler(
			&rar.Config{
				Timeout: time.Duration(wcfg.Timeout) * time.Millisecond,
			},
			orch, log,
		)
		startWorker(zeebeClient, rar.TaskType, wcfg, handler.Handle, zapLog)
	}

	for _, topic := range pl.LifecycleTopics {
		wcfg, enabled := workerSettings(reg, cfg, topic)
		if !enabled {
			continue
		}
		handler := pl.NewHandler(
			&pl.Config{
				Timeout: time.Duration(wcfg.Timeout) * time.Millisecond,
			},
			topic, tracking, log,
		)
		startWorker(zeebeClient, topic, wcfg, handler.Handle, zapLog)
	}

	zapLog.Info("All screening workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := pg.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "not ready",
					"error":  "postgres unreachable",
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	stopRecovery()

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := broker.Close(); err != nil {
		zapLog.Error("Error closing broker message client", zap.Error(err))
	}

	zapLog.Info("Screening engine stopped gracefully")
}

// workerSettings resolves the effective worker config for a topic. The
// registry supplies defaults; an explicit entry in the workers config
// section overrides them, so operations can tune or disable a single
// subscription without touching the registry file.
func workerSettings(reg *registry.TopicRegistry, cfg *config.Config, topic string) (config.WorkerConfig, bool) {
	entry := reg.FindByTopic(topic)
	if entry == nil {
		return config.WorkerConfig{}, false
	}

	wcfg := config.WorkerConfig{
		Enabled:       entry.Enabled,
		MaxJobsActive: entry.MaxJobsActive,
		Timeout:       int(entry.TimeoutDuration() / time.Millisecond),
	}
	if override, ok := cfg.Workers[topic]; ok {
		wcfg.Enabled = override.Enabled
		if override.MaxJobsActive > 0 {
			wcfg.MaxJobsActive = override.MaxJobsActive
		}
		if override.Timeout > 0 {
			wcfg.Timeout = override.Timeout
		}
	}
	if wcfg.MaxJobsActive <= 0 {
		wcfg.MaxJobsActive = cfg.Camunda.MaxJobsActive
	}
	return wcfg, wcfg.Enabled
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
