package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/customExec"
	"github.com/akolanti/MedExtract/internal/customHttpClient"
	"github.com/akolanti/MedExtract/internal/data/redisStore"
	"github.com/akolanti/MedExtract/internal/data/store"
	"github.com/akolanti/MedExtract/internal/extraction/chunker"
	"github.com/akolanti/MedExtract/internal/extraction/document"
	"github.com/akolanti/MedExtract/internal/extraction/llm"
	"github.com/akolanti/MedExtract/internal/extraction/ocr"
	"github.com/akolanti/MedExtract/internal/extraction/pipeline"
	"github.com/akolanti/MedExtract/internal/handlers"
	"github.com/akolanti/MedExtract/internal/job"
	"github.com/akolanti/MedExtract/internal/middleware"
	"github.com/akolanti/MedExtract/internal/server"
	"github.com/akolanti/MedExtract/internal/worker"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

var (
	listenAddr        string
	stopWorkerChannel chan bool
	workerWaitGroup   sync.WaitGroup
)

func main() {

	logger_i.Init()
	var logger = logger_i.NewLogger("main")

	settings := config.Get()
	flag.StringVar(&listenAddr, "listen-addr", settings.ListenAddr, "server listen address")
	flag.Parse()

	batchChannel := make(chan job.Task, config.BufferLimit)
	dispatcherChannel := make(chan bool, 1)
	stopWorkerChannel = make(chan bool, 1)

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	batchStore, err := store.NewBatchStore(serviceContext, settings)
	if err != nil {
		logger.Error("Batch store unavailable", "backend", settings.StoreBackend, "err", err)
		return
	}

	provider, err := newProvider(serviceContext, settings)
	if err != nil {
		logger.Error("Remote extraction provider failed to initialize", "provider", settings.LLMProvider, "err", err)
		return
	}
	if settings.MockAI {
		logger.Warn("MOCK_AI is set, remote extraction is disabled")
	}

	runner := customExec.NewRunner()
	engine := ocr.NewEngine(settings.OCREngine, ocr.Options{
		Runner:        runner,
		TesseractPath: settings.TesseractPath,
		TempDir:       settings.TempDir,
	})
	documents := document.NewProcessor(runner, engine, document.NewTextExtractor(), document.Config{
		PdftoppmPath: settings.PdftoppmPath,
		DPI:          config.RenderDPI,
		OCRThreshold: settings.OCRThreshold,
		TempDir:      settings.TempDir,
	})
	extractor := llm.NewExtractor(provider, llm.Options{
		Concurrency: settings.AIConcurrency,
		MaxRetries:  config.AIMaxRetries,
		Mock:        settings.MockAI,
	})
	pipe := pipeline.New(documents, chunker.NewDispatcher(extractor, batchStore))

	service := job.InitJobService(job.ServiceConfig{
		BatchChannel:      batchChannel,
		DispatcherChannel: dispatcherChannel,
		Store:             batchStore,
		Pipeline:          pipe,
		MaxWorkers:        settings.MaxWorkers,
	})
	logger.Info("Starting batch service", "store", settings.StoreBackend, "ocr", engine.Name(), "maxWorkers", settings.MaxWorkers)

	handlers.InitJobHandler(service, settings.MaxFileSizeBytes())
	middleware.InitAuth(settings.AuthToken, settings.NoAuthBypass)
	middleware.StartLimiterJanitor(serviceContext)
	if settings.AuthToken == "" && !settings.NoAuthBypass {
		logger.Warn("API_AUTH_TOKEN is empty, every guarded request will be rejected")
	}

	//init worker pool
	worker.InitServices(service)
	worker.InitWorkerPool(stopWorkerChannel, &workerWaitGroup)

	//server handling
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	shutdownParams := server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		WorkerStop:       stopWorkerChannel,
		Group:            &workerWaitGroup,
		CloseServices: func() {
			closeExternalServices()
			if err := redisStore.CloseAll(); err != nil {
				logger.Error("Failed to close redis clients", "err", err)
			}
			if c, ok := batchStore.(io.Closer); ok {
				if err := c.Close(); err != nil {
					logger.Error("Failed to close batch store", "err", err)
				}
			}
		},
	}
	go server.ShutDownHandler(shutdownParams)
	go func() {
		if err := server.CreateServer(listenAddr); err != nil {
			logger.Error("Server crashed", "err", err)
			gracefulShutdown <- syscall.SIGTERM
		}
	}()

	<-stopExecution
	logger.Info("Server stopped")
}

// newProvider picks the remote model client. A nil provider is valid in mock mode.
func newProvider(ctx context.Context, settings config.Settings) (llm.Provider, error) {
	if settings.MockAI {
		return nil, nil
	}
	httpClient := customHttpClient.Shared()
	switch settings.LLMProvider {
	case "gemini":
		return llm.NewGeminiProvider(ctx, settings.GeminiAPIKey, settings.GeminiModel, httpClient)
	default:
		return llm.NewOpenAIProvider(settings.OpenAIAPIKey, settings.OpenAIBaseURL, settings.OpenAIModel, httpClient), nil
	}
}
