package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/handlers"
	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/services/chat"
	"github.com/avencast/tutorbridge/internal/services/ingest"
	"github.com/avencast/tutorbridge/internal/services/llm"
	"github.com/avencast/tutorbridge/internal/services/pdf"
	"github.com/avencast/tutorbridge/internal/services/retrieval"
	badgerstorage "github.com/avencast/tutorbridge/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Provider routing and streaming
	ProviderFactory *llm.ProviderFactory

	// Retrieval over the context corpus
	RetrievalEngine *retrieval.Engine

	// PDF ingestion and export
	IngestService interfaces.IngestService
	Sweeper       *ingest.Sweeper
	Exporter      *pdf.Exporter

	// Gateway orchestrator
	ChatService interfaces.ChatService

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	ChatHandler    *handlers.ChatHandler
	ContextHandler *handlers.ContextHandler
	ModelsHandler  *handlers.ModelsHandler
	ExportHandler  *handlers.ExportHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.ProviderFactory = llm.NewProviderFactory(cfg, storageManager.KeyValueStorage(), logger)
	app.RetrievalEngine = retrieval.NewEngine(logger)

	extractor := pdf.NewExtractor(logger)
	ocrEngine := ingest.NewOCREngine(logger, cfg.Ingest.OCRMaxPages)
	app.IngestService = ingest.NewService(&cfg.Ingest, extractor, ocrEngine, storageManager.DocumentStorage(), logger)
	app.Sweeper = ingest.NewSweeper(&cfg.Ingest, storageManager.DocumentStorage(), logger)
	app.Exporter = pdf.NewExporter(logger)

	app.ChatService = chat.NewService(app.ProviderFactory, app.RetrievalEngine, storageManager, cfg, logger)

	app.APIHandler = handlers.NewAPIHandler(storageManager, app.ProviderFactory, logger)
	app.ChatHandler = handlers.NewChatHandler(app.ChatService, logger)
	app.ContextHandler = handlers.NewContextHandler(storageManager.DocumentStorage(), app.IngestService, &cfg.Ingest, logger)
	app.ModelsHandler = handlers.NewModelsHandler(app.ProviderFactory, logger)
	app.ExportHandler = handlers.NewExportHandler(app.Exporter, logger)

	if err := app.Sweeper.Start(); err != nil {
		logger.Warn().Err(err).Msg("Retention sweep not started")
	}

	logger.Info().Msg("Application initialized")
	return app, nil
}

// Close shuts down application components in reverse dependency order
func (a *App) Close() {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}

	if a.ProviderFactory != nil {
		if err := a.ProviderFactory.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close provider factory")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}

	a.Logger.Info().Msg("Application closed")
}
