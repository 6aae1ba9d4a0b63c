package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/app"
	"finanzas/internal/backend"
	"finanzas/internal/cli"
	"finanzas/internal/config"
	apphttp "finanzas/internal/http"
	"finanzas/internal/identity"
	applog "finanzas/internal/log"
	"finanzas/internal/session"
)

func main() {
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("finanzas stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("finanzas stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	provider := identity.NewProvider([]byte(cfg.AuthSecret), cfg.IdentityFile,
		logger.WithComponent(applog.ComponentIdentity))
	sess := session.New(provider, be.Store, session.Options{Token: cfg.AuthToken, Logger: logger})
	defer sess.Close()

	a := app.New(sess, app.Options{Month: cfg.InitialMonth(time.Now()), Logger: logger})
	srv := apphttp.NewServer(":"+cfg.Port, a, apphttp.Options{Ready: be.Ready, Logger: logger})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting finanzas server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext()
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if be.Consume != nil {
		g.Go(func() error {
			if err := be.Consume(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// failures are recorded on the session and retried through the API
	a.SignIn(gctx)

	return g.Wait()
}
