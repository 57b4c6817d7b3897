package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/handlog/internal/analysis"
	"github.com/MarcoPoloResearchLab/handlog/internal/config"
	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
	"github.com/MarcoPoloResearchLab/handlog/internal/logging"
	"github.com/MarcoPoloResearchLab/handlog/internal/server"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	handStore, closeStore, err := openHandStore(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	persister, err := hands.NewPersister(hands.PersisterConfig{
		Saver:  handStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer persister.Close() //nolint:errcheck

	dispatcher := server.NewRealtimeDispatcher()
	records := handStore.Load(ctx)
	collection, err := hands.NewCollection(hands.CollectionConfig{
		Records:   records,
		Scheduler: persister,
		Clock:     time.Now,
		Location:  appConfig.Location,
		Logger:    logger,
		OnChange:  dispatcher.PublishHandChange,
	})
	if err != nil {
		return err
	}
	logger.Info("hand collection loaded", zap.Int("hands", collection.Len()))

	client, err := analysis.NewClient(analysis.ClientConfig{
		BaseURL: appConfig.AnalysisBaseURL,
		Timeout: appConfig.AnalysisTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	manager, err := analysis.NewManager(analysis.ManagerConfig{
		Hands:     collection,
		Requester: client,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Hands:       collection,
		Analysis:    manager,
		Realtime:    dispatcher,
		Logger:      logger,
		WaitTimeout: appConfig.AnalysisTimeout + 5*time.Second,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if err := persister.Flush(shutdownCtx); err != nil {
			logger.Warn("pending hand save not flushed", zap.Error(err))
		}
		return shutdownErr
	case err := <-errCh:
		return err
	}
}
