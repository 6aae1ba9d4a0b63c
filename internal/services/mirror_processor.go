package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// LedgerWriter replaces the mirrored ledger of one user.
type LedgerWriter interface {
	WriteLedger(ctx context.Context, userID string, ledger core.Ledger) error
}

// MirrorSource is the bookkeeping the processor needs from the database.
type MirrorSource interface {
	ListByOwner(ctx context.Context, owner string) ([]core.Record, error)
	Owners(ctx context.Context) ([]string, error)
	Version(ctx context.Context, owner string) (int64, error)
	PendingMirror(ctx context.Context, limit int) ([]storage.OwnerVersion, error)
	MarkMirrored(ctx context.Context, owner string, version int64) error
	MarkMirrorError(ctx context.Context, owner string, cause error) error
}

// MirrorProcessorConfig holds configuration for the mirror processor
type MirrorProcessorConfig struct {
	// PollInterval is how often pending owners are swept (default: 5m)
	PollInterval time.Duration

	// BatchSize is the max number of owners mirrored per sweep (default: 20)
	BatchSize int

	// FullOnStart mirrors every known owner when the processor starts.
	FullOnStart bool
}

func DefaultMirrorProcessorConfig() MirrorProcessorConfig {
	return MirrorProcessorConfig{
		PollInterval: 5 * time.Minute,
		BatchSize:    20,
		FullOnStart:  true,
	}
}

// MirrorProcessor copies ledgers from SQLite to a LedgerWriter. It runs a
// periodic sweep of owners with unmirrored changes; MirrorOwner serves
// event-driven mirroring.
type MirrorProcessor struct {
	source MirrorSource
	writer LedgerWriter
	config MirrorProcessorConfig
	logger *applog.Logger

	// one mirror per owner at a time
	ownerMu sync.Map

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirrorProcessor(source MirrorSource, writer LedgerWriter, config MirrorProcessorConfig, logger *applog.Logger) *MirrorProcessor {
	if logger == nil {
		logger = applog.Discard()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultMirrorProcessorConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultMirrorProcessorConfig().BatchSize
	}
	return &MirrorProcessor{
		source: source,
		writer: writer,
		config: config,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *MirrorProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("mirror processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Mirror processor started",
		"poll_interval", p.config.PollInterval.String(),
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for it to finish or ctx to expire.
func (p *MirrorProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Mirror processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Mirror processor stop timed out")
		return ctx.Err()
	}
}

func (p *MirrorProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *MirrorProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	if p.config.FullOnStart {
		p.MirrorAll(ctx)
	} else {
		p.processPending(ctx)
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processPending(ctx)
		}
	}
}

// MirrorAll mirrors every owner in the database and returns how many
// succeeded.
func (p *MirrorProcessor) MirrorAll(ctx context.Context) int {
	owners, err := p.source.Owners(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list owners", applog.FieldError, err)
		return 0
	}
	ok := 0
	for _, owner := range owners {
		if ctx.Err() != nil {
			break
		}
		if err := p.MirrorOwner(ctx, owner); err == nil {
			ok++
		}
	}
	p.logger.InfoContext(ctx, "Full mirror completed", "owners", len(owners), "mirrored", ok)
	return ok
}

func (p *MirrorProcessor) processPending(ctx context.Context) {
	pending, err := p.source.PendingMirror(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to get pending owners", applog.FieldError, err)
		return
	}
	if len(pending) == 0 {
		return
	}
	p.logger.DebugContext(ctx, "Processing mirror batch", "count", len(pending))
	for _, ov := range pending {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		_ = p.MirrorOwner(ctx, ov.Owner)
	}
}

// MirrorOwner rewrites the mirrored ledger of owner from the database.
func (p *MirrorProcessor) MirrorOwner(ctx context.Context, owner string) error {
	lock, _ := p.ownerMu.LoadOrStore(owner, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()

	err := p.mirror(ctx, owner)
	if err != nil {
		p.logger.Fields(ctx, slog.LevelWarn, "Mirror failed",
			applog.NewFields().WithOperation(applog.OpMirror).WithUser(owner).WithError(err, applog.ErrorTypeNetwork))
		if markErr := p.source.MarkMirrorError(ctx, owner, err); markErr != nil {
			p.logger.ErrorContext(ctx, "Failed to record mirror error", applog.FieldError, markErr)
		}
	}
	return err
}

func (p *MirrorProcessor) mirror(ctx context.Context, owner string) error {
	// read the version first so a concurrent write keeps the owner pending
	version, err := p.source.Version(ctx, owner)
	if err != nil {
		return err
	}
	recs, err := p.source.ListByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	ledger := core.BuildLedger(recs)
	if err := p.writer.WriteLedger(ctx, owner, ledger); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := p.source.MarkMirrored(ctx, owner, version); err != nil {
		return err
	}
	p.logger.Fields(ctx, slog.LevelInfo, "Ledger mirrored",
		applog.NewFields().WithOperation(applog.OpMirror).WithUser(owner).
			With(applog.FieldRecordCount, len(ledger.Entries)).With("version", version))
	return nil
}
