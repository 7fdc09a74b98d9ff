package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arkeyez/arkdoc/internal/config"
	"github.com/arkeyez/arkdoc/internal/core/ports"
	"github.com/arkeyez/arkdoc/internal/core/usecase"
	"github.com/arkeyez/arkdoc/internal/export"
	"github.com/arkeyez/arkdoc/internal/infrastructure/erp"
	"github.com/arkeyez/arkdoc/internal/infrastructure/extract"
	"github.com/arkeyez/arkdoc/internal/infrastructure/lexicon"
	"github.com/arkeyez/arkdoc/internal/infrastructure/progress"
	"github.com/arkeyez/arkdoc/internal/infrastructure/queue/nats"
	"github.com/arkeyez/arkdoc/internal/infrastructure/rasterize"
	"github.com/arkeyez/arkdoc/internal/infrastructure/repository/postgres"
	"github.com/arkeyez/arkdoc/internal/infrastructure/resilience"
	"github.com/arkeyez/arkdoc/internal/infrastructure/storage/localfs"
	"github.com/arkeyez/arkdoc/internal/infrastructure/vision"
)

type App struct {
	Config config.Config

	Queue ports.RecordQueue
	Repo  ports.RecordRepository
	Store ports.RecordStore

	Submitter ports.DocumentSubmitter
	Stats     ports.StatsReader
	Model     ports.ModelLifecycle
	Progress  *progress.Broker
	Exporter  *export.Service

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewRecordRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init record queue: %w", err)
	}

	scorer, err := lexicon.NewScorerFromFile(cfg.LexiconPath)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load lexicon: %w", err)
	}

	model := vision.NewModel(cfg.ModelPath, time.Duration(cfg.ModelLoadTimeoutMS)*time.Millisecond)
	model.SubmitLoad()

	broker := progress.NewBroker()
	extractor := extract.NewExtractor(cfg.TesseractBinary, cfg.TesseractLang, "")
	fusion := usecase.NewFusionEngine(usecase.FusionConfig{
		MaxBoost:          cfg.MaxOCRBoost,
		OverrideThreshold: cfg.OverrideThreshold,
		HighConfidence:    cfg.HighConfidence,
		TieEpsilon:        cfg.TieEpsilon,
		KeywordTopN:       cfg.KeywordTopN,
	})
	pipeline := usecase.NewPagePipeline(
		rasterize.New(),
		extractor,
		model,
		scorer,
		fusion,
		broker,
		usecase.PipelineConfig{
			PageWorkers:    cfg.PageWorkers,
			PageOCRTimeout: time.Duration(cfg.PageOCRTimeoutMS) * time.Millisecond,
		},
	)

	aggregator := usecase.NewAggregator(repo, cfg.HistoryLimit)
	if err := aggregator.Rebuild(ctx); err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("rebuild statistics: %w", err)
	}

	submitter := usecase.NewSubmitDocumentUseCase(storage, pipeline, aggregator, queue)
	exporter := export.NewService(repo, aggregator, slog.Default())

	var store ports.RecordStore
	if cfg.ERPBaseURL != "" {
		store = erp.New(cfg.ERPBaseURL, cfg.ERPAPIKey, cfg.ERPAPISecret)
	}

	return &App{
		Config: cfg,

		Queue: queue,
		Repo:  repo,
		Store: store,

		Submitter: submitter,
		Stats:     aggregator,
		Model:     model,
		Progress:  broker,
		Exporter:  exporter,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
