// Package backend builds the record store selected by DATA_BACKEND.
package backend

import (
	"context"

	"finanzas/internal/records"
)

type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool {
	return bt == MemoryBackend || bt == SQLiteBackend
}

// Config selects and parameterizes a backend. The AMQP fields only apply to
// sqlite, where they enable cross-process change events.
type Config struct {
	Type         BackendType
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
}

// BackendResult is a ready record store plus the hooks its owner must run.
type BackendResult struct {
	Store records.Store

	// Ready reports whether the backing resources are reachable.
	Ready func(ctx context.Context) error

	// Consume, when set, must run for the lifetime of the process so that
	// changes made by other processes reach local subscribers.
	Consume func(ctx context.Context) error

	// Cleanup releases everything the backend opened, in reverse order.
	Cleanup func() error
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
