package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkeyez/arkdoc/internal/bootstrap"
	"github.com/arkeyez/arkdoc/internal/config"
	"github.com/arkeyez/arkdoc/internal/core/domain"
	"github.com/arkeyez/arkdoc/internal/infrastructure/erp"
	"github.com/arkeyez/arkdoc/internal/infrastructure/resilience"
	"github.com/arkeyez/arkdoc/internal/observability/logging"
	"github.com/arkeyez/arkdoc/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Store == nil {
		slog.Error("ERP_BASE_URL is not set; the push worker has nothing to push to")
		os.Exit(1)
	}
	if err := app.Store.Ping(ctx); err != nil {
		slog.Warn("erp unreachable at startup, pushes will retry", "error", err)
	}

	wm := metrics.NewWorkerMetrics(serviceName)
	go serveMetrics(cfg.WorkerMetricsPort, wm)

	executor := resilience.NewExecutor(resilience.ERPPushConfig())

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeRecordFinalized(ctx, func(handlerCtx context.Context, recordID string) error {
		pushCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
		defer cancel()
		return pushRecord(pushCtx, app, executor, wm, recordID)
	})
	if err != nil {
		slog.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}

func pushRecord(
	ctx context.Context,
	app *bootstrap.App,
	executor *resilience.Executor,
	wm *metrics.WorkerMetrics,
	recordID string,
) error {
	record, err := app.Repo.GetByID(ctx, recordID)
	if err != nil {
		if domain.IsKind(err, domain.ErrRecordNotFound) {
			// A queue replay can outlive the record. Drop, don't redeliver.
			slog.Warn("record gone, skipping push", "record_id", recordID)
			return nil
		}
		return err
	}
	wm.ObserveQueueLag(serviceName, time.Since(record.CreatedAt))

	wm.StartPush()
	start := time.Now()
	name, err := resilience.Do(executor, ctx, "erp_push", func(callCtx context.Context) (string, error) {
		return app.Store.CreateRecord(callCtx, record)
	}, erp.ClassifyError)
	wm.FinishPush(serviceName, time.Since(start), err)

	if err != nil {
		slog.Error("erp push failed", "record_id", recordID, "error", err)
		return err
	}
	slog.Info("record pushed",
		"record_id", recordID,
		"erp_name", name,
		"class", record.Result.DocumentClass,
	)
	return nil
}

func serveMetrics(port string, wm *metrics.WorkerMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", wm.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server failed", "error", err)
	}
}
