package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/records"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the durable record store. It knows nothing about
// subscriptions; see services.LiveStore for the live view on top of it.
type SQLiteRepository struct {
	db     *sql.DB
	logger *applog.Logger
}

// OwnerVersion identifies the state of one user's records.
type OwnerVersion struct {
	Owner   string
	Version int64
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string, logger *applog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger = logger.WithComponent(applog.ComponentStorage)
	if err := RunMigrations(dsn(dbPath), logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListByOwner returns the owner's records in insertion order.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, owner string) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, description, amount_cents, date FROM records WHERE owner = ? ORDER BY seq`, owner)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		var (
			rec        core.Record
			typ, date  string
			amountCent int64
		)
		if err := rows.Scan(&rec.ID, &typ, &rec.Description, &amountCent, &date); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Type, err = core.ParseRecordType(typ)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		rec.Date, err = core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		rec.Amount = core.Money{Cents: amountCent}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Insert persists rec for owner. rec.ID must be set.
func (r *SQLiteRepository) Insert(ctx context.Context, owner string, rec core.Record) error {
	if owner == "" {
		return records.ErrNoUser
	}
	if rec.ID == "" {
		return errors.New("insert record: empty id")
	}
	if err := rec.Draft().Validate(); err != nil {
		return err
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (id, owner, type, description, amount_cents, date) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, owner, string(rec.Type), strings.TrimSpace(rec.Description), rec.Amount.Cents, rec.Date.String()); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		return bumpVersion(ctx, tx, owner)
	})
	if err != nil {
		return err
	}

	r.logger.Fields(ctx, slog.LevelDebug, "Record saved to SQLite",
		applog.NewFields().WithOperation(applog.OpCreate).WithUser(owner).
			WithRecord(rec.ID, string(rec.Type), rec.Date.String(), rec.Amount.Cents))
	return nil
}

// DeleteByID removes the owner's record. Records of other owners are never
// touched; a foreign or unknown id gives records.ErrNotFound.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, owner, id string) error {
	if owner == "" {
		return records.ErrNoUser
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE owner = ? AND id = ?`, owner, id)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if n == 0 {
			return records.ErrNotFound
		}
		return bumpVersion(ctx, tx, owner)
	})
	if err != nil {
		return err
	}

	r.logger.Fields(ctx, slog.LevelDebug, "Record deleted from SQLite",
		applog.NewFields().WithOperation(applog.OpDelete).WithUser(owner).With(applog.FieldRecordID, id))
	return nil
}

// Owners lists every user that has written at least once.
func (r *SQLiteRepository) Owners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT owner FROM owners ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PendingMirror returns owners whose records changed since their last
// successful mirror, oldest change first.
func (r *SQLiteRepository) PendingMirror(ctx context.Context, limit int) ([]OwnerVersion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT owner, version FROM owners WHERE version > mirrored_version ORDER BY updated_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending mirror owners: %w", err)
	}
	defer rows.Close()
	var out []OwnerVersion
	for rows.Next() {
		var ov OwnerVersion
		if err := rows.Scan(&ov.Owner, &ov.Version); err != nil {
			return nil, fmt.Errorf("scan owner version: %w", err)
		}
		out = append(out, ov)
	}
	return out, rows.Err()
}

// Version returns the owner's current write version, 0 when unknown.
func (r *SQLiteRepository) Version(ctx context.Context, owner string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM owners WHERE owner = ?`, owner).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get owner version: %w", err)
	}
	return v, nil
}

// MarkMirrored records that version of owner was copied to the mirror.
func (r *SQLiteRepository) MarkMirrored(ctx context.Context, owner string, version int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE owners SET mirrored_version = MAX(mirrored_version, ?), mirror_error = NULL WHERE owner = ?`, version, owner)
	if err != nil {
		return fmt.Errorf("mark owner mirrored: %w", err)
	}
	return nil
}

// MarkMirrorError keeps the last mirror failure for owner.
func (r *SQLiteRepository) MarkMirrorError(ctx context.Context, owner string, cause error) error {
	_, err := r.db.ExecContext(ctx, `UPDATE owners SET mirror_error = ? WHERE owner = ?`, cause.Error(), owner)
	if err != nil {
		return fmt.Errorf("mark owner mirror error: %w", err)
	}
	r.logger.Warn("Mirror error recorded", applog.FieldUserID, owner, applog.FieldError, cause)
	return nil
}

func bumpVersion(ctx context.Context, tx *sql.Tx, owner string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO owners (owner, version, updated_at) VALUES (?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT(owner) DO UPDATE SET version = version + 1, updated_at = CURRENT_TIMESTAMP`, owner)
	if err != nil {
		return fmt.Errorf("bump owner version: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
