package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/amqp"
	"finanzas/internal/cli"
	"finanzas/internal/config"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
	"finanzas/internal/sheets/google"
	"finanzas/internal/worker"
)

func main() {
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadConfig(logger, (*config.Config).ValidateMirror)
	logger = cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting finanzas-mirror")
	if err := run(cfg, logger); err != nil {
		logger.Error("finanzas-mirror stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("finanzas-mirror stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	sheetsClient, err := google.New(ctx, google.Options{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return err
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer amqpClient.Close()

	procCfg := services.DefaultMirrorProcessorConfig()
	procCfg.PollInterval = cfg.MirrorInterval
	processor := services.NewMirrorProcessor(repo, sheetsClient, procCfg, logger)
	if err := processor.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := cli.ShutdownContext()
		defer cancel()
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Mirror processor stop failed", applog.FieldError, err)
		}
	}()

	mirrorWorker := worker.NewMirrorWorker(processor, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeRecordsChanged(gctx, mirrorWorker.HandleRecordsChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}
