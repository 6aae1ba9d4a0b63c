package backend

import (
	"errors"
	"fmt"

	"finanzas/internal/config"
)

// FromAppConfig picks the backend settings out of the process config.
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, errors.New("backend: nil config")
	}
	bc := Config{
		Type:         BackendType(cfg.DataBackend),
		SQLiteDBPath: cfg.SQLiteDBPath,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
	}
	if !bc.Type.IsValid() {
		return Config{}, fmt.Errorf("backend: unknown DATA_BACKEND %q", cfg.DataBackend)
	}
	return bc, nil
}

// Validate reports every inconsistency at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			errs = append(errs, errors.New("sqlite backend needs a database path"))
		}
		if c.AMQPURL != "" && c.AMQPExchange == "" {
			errs = append(errs, errors.New("change events need an AMQP exchange"))
		}
	case MemoryBackend:
		if c.AMQPURL != "" {
			errs = append(errs, errors.New("change events are only published by the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend type %q", c.Type))
	}
	if len(errs) > 0 {
		return fmt.Errorf("backend config: %w", errors.Join(errs...))
	}
	return nil
}
