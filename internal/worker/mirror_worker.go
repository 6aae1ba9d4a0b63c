package worker

import (
	"context"
	"fmt"
	"log/slog"

	"finanzas/internal/amqp"
	applog "finanzas/internal/log"
)

// OwnerMirror rewrites the mirrored ledger of one owner.
type OwnerMirror interface {
	MirrorOwner(ctx context.Context, owner string) error
}

// MirrorWorker turns records.changed events into ledger mirrors.
type MirrorWorker struct {
	mirror OwnerMirror
	logger *applog.Logger
}

func NewMirrorWorker(mirror OwnerMirror, logger *applog.Logger) *MirrorWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &MirrorWorker{mirror: mirror, logger: logger.WithComponent(applog.ComponentWorker)}
}

// HandleRecordsChanged mirrors the owner named in msg. A failure is returned
// so the consumer can requeue the message once; the periodic sweep picks up
// anything still pending afterwards.
func (w *MirrorWorker) HandleRecordsChanged(ctx context.Context, msg *amqp.RecordsChangedMessage) error {
	w.logger.Fields(ctx, slog.LevelDebug, "Processing records changed message",
		applog.NewFields().WithOperation(applog.OpMirror).WithUser(msg.UserID).With("version", msg.Version))

	if err := w.mirror.MirrorOwner(ctx, msg.UserID); err != nil {
		return fmt.Errorf("mirror %s: %w", msg.UserID, err)
	}
	return nil
}
