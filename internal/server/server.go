package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/akolanti/MedExtract/internal/adapter/utils"
	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/middleware"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

var (
	mu      sync.Mutex
	server  *http.Server
	_logger = logger_i.NewLogger("Server")
)

type ShutdownParams struct {
	GracefulShutdown chan os.Signal
	StopExecution    chan bool
	WorkerStop       chan bool
	Group            *sync.WaitGroup
	CloseServices    func()
}

// Routes builds the API router.
func Routes() http.Handler {
	r := utils.NewRouter(config.Get().TrustProxy)

	r.Router.Get("/health", middleware.GetHandler)
	r.Router.Post("/extract", middleware.ExtractHandler)
	r.Router.Post("/upload", middleware.ExtractHandler)
	r.Router.Get("/status/{id}", middleware.GetStatusHandler)
	r.Router.Get("/download/{id}", middleware.DownloadHandler)
	return r.Router
}

// CreateServer serves until shutdown. It returns nil once ShutDownHandler has closed it.
func CreateServer(listenAddr string) error {
	mu.Lock()
	server = &http.Server{
		Addr:              listenAddr,
		Handler:           Routes(),
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}
	srv := server
	mu.Unlock()

	_logger.Info("Server is listening at", "address", listenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	return nil
}

// ShutDownHandler waits for a signal, stops accepting requests, then gives running
// batches WorkerDrainTimeout to finish before the process is forced down.
func ShutDownHandler(shutdownParams ShutdownParams) {
	state := <-shutdownParams.GracefulShutdown
	_logger.Info("Server is shutting down", "signal", state.String())

	httpCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()
	mu.Lock()
	srv := server
	mu.Unlock()
	if srv != nil {
		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(httpCtx); err != nil {
			_logger.Error("Could not shutdown gracefully", "err", err)
		}
	}

	drained := make(chan struct{})
	go func() {
		close(shutdownParams.WorkerStop)
		shutdownParams.Group.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		shutdownParams.CloseServices()
		_logger.Info("Gracefully shut down")
		close(shutdownParams.StopExecution)
	case <-time.After(config.WorkerDrainTimeout):
		_logger.Error("Workers did not drain, forcing shut down", "timeout", config.WorkerDrainTimeout)
		shutdownParams.CloseServices()
		os.Exit(1)
	}
}
