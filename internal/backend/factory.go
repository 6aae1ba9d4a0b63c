package backend

import (
	"context"
	"errors"
	"fmt"

	"finanzas/internal/amqp"
	applog "finanzas/internal/log"
	"finanzas/internal/records/memory"
	"finanzas/internal/services"
	"finanzas/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional: without it writes still reach local subscribers
	var (
		amqpClient *amqp.Client
		publisher  services.ChangePublisher
	)
	if config.AMQPURL != "" {
		// empty queue name: each server process gets its own exclusive queue
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, "", f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events", applog.FieldError, err)
			amqpClient = nil
		} else {
			publisher = amqpClient
			f.logger.InfoContext(ctx, "Initialized AMQP client", "exchange", config.AMQPExchange)
		}
	}

	store := services.NewLiveStore(repo, publisher, f.logger)

	result := &BackendResult{
		Store: store,
		Ready: repo.Ping,
		Cleanup: func() error {
			var errs []error
			if err := store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("store: %w", err))
			}
			if amqpClient != nil {
				if err := amqpClient.Close(); err != nil {
					errs = append(errs, fmt.Errorf("amqp: %w", err))
				}
			}
			if err := repo.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
			return errors.Join(errs...)
		},
	}
	if amqpClient != nil {
		result.Consume = func(ctx context.Context) error {
			return amqpClient.ConsumeRecordsChanged(ctx, store.HandleRecordsChanged)
		}
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return result, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	store := memory.New()

	f.logger.Info("Initialized memory backend")

	return &BackendResult{
		Store:   store,
		Ready:   func(context.Context) error { return nil },
		Cleanup: store.Close,
	}, nil
}
