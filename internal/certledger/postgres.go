package certledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/canonical"
)

// advisoryLockKey serialises every chain mutation across server instances.
// The value is arbitrary but must be consistent across all instances.
const advisoryLockKey = int64(1_482_305_117)

const uniqueViolation = "23505"

const recordColumns = `seq, cert_id, student_name, course, issuing_institution, grade, roll_number, year, prev_hash, hash, created_at`

// PostgresLedger persists the certificate chain to a PostgreSQL database.
// It implements the Ledger interface.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	opts   options
}

// NewPostgresLedger creates a PostgresLedger backed by the given connection pool.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger, opts ...Option) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger, opts: buildOptions(opts)}
}

// withLock runs fn inside a transaction holding the chain advisory lock.
// The lock is released when the transaction commits or rolls back.
func (l *PostgresLedger) withLock(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrPersistence, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("%w: acquire advisory lock: %w", ErrPersistence, err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit ledger tx: %w", ErrPersistence, err)
	}
	return nil
}

// EnsureGenesis implements Ledger.
func (l *PostgresLedger) EnsureGenesis(ctx context.Context) error {
	return l.withLock(ctx, func(tx pgx.Tx) error {
		_, err := l.ensureGenesisTx(ctx, tx)
		return err
	})
}

// ensureGenesisTx inserts the genesis record when the table is empty and
// returns the current tail.
func (l *PostgresLedger) ensureGenesisTx(ctx context.Context, tx pgx.Tx) (*Record, error) {
	tail, err := scanRecord(tx.QueryRow(ctx,
		"SELECT "+recordColumns+" FROM certificates ORDER BY seq DESC LIMIT 1"))
	if err == nil {
		return tail, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: read ledger tail: %w", ErrPersistence, err)
	}

	g := newGenesis(l.opts.now())
	if err := insertRecord(ctx, tx, g); err != nil {
		return nil, err
	}
	l.logger.Info("genesis record created", zap.String("hash", g.Hash))
	return g, nil
}

// Append implements Ledger.
// It acquires the advisory lock, reads the chain tail, links the new record to
// it and inserts it, all within a single transaction. The unique prev_hash
// constraint rejects a second successor of the same tail.
func (l *PostgresLedger) Append(ctx context.Context, f canonical.IdentityFields) (*Record, error) {
	var rec *Record
	err := l.withLock(ctx, func(tx pgx.Tx) error {
		tail, err := l.ensureGenesisTx(ctx, tx)
		if err != nil {
			return err
		}
		rec = newRecord(tail.Seq+1, f, tail.Hash, l.opts.now())
		return insertRecord(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("certificate appended",
		zap.Int("seq", rec.Seq),
		zap.String("cert_id", rec.ID),
		zap.String("hash", rec.Hash),
	)
	return rec, nil
}

func insertRecord(ctx context.Context, tx pgx.Tx, r *Record) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO certificates (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.Seq, r.ID, r.StudentName, r.Course, r.IssuingInstitution,
		r.Grade, r.RollNumber, r.Year, r.PreviousHash, r.Hash, r.CreatedAt,
	)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "certificates_cert_id_key" {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	return fmt.Errorf("%w: insert certificate: %w", ErrPersistence, err)
}

// GetByID implements Ledger.
func (l *PostgresLedger) GetByID(ctx context.Context, id string) (*Record, error) {
	r, err := scanRecord(l.pool.QueryRow(ctx,
		"SELECT "+recordColumns+" FROM certificates WHERE cert_id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get certificate %s: %w", ErrPersistence, id, err)
	}
	return r, nil
}

// List implements Ledger.
func (l *PostgresLedger) List(ctx context.Context) ([]*Record, error) {
	return listRecords(ctx, l.pool)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listRecords(ctx context.Context, q querier) ([]*Record, error) {
	rows, err := q.Query(ctx, "SELECT "+recordColumns+" FROM certificates ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("%w: query ledger: %w", ErrPersistence, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan ledger row: %w", ErrPersistence, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate ledger: %w", ErrPersistence, err)
	}
	return out, nil
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM certificates").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count certificates: %w", ErrPersistence, err)
	}
	return n, nil
}

// Root implements Ledger.
func (l *PostgresLedger) Root(ctx context.Context) (string, error) {
	var hash string
	err := l.pool.QueryRow(ctx, "SELECT hash FROM certificates ORDER BY seq DESC LIMIT 1").Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get ledger root: %w", ErrPersistence, err)
	}
	return hash, nil
}

// VerifyIntegrity implements Ledger. O(n) in ledger length.
func (l *PostgresLedger) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	records, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		if err := l.EnsureGenesis(ctx); err != nil {
			return nil, err
		}
		return emptyChainReport(), nil
	}
	return verifyChain(records), nil
}

// TamperRandom implements Ledger.
func (l *PostgresLedger) TamperRandom(ctx context.Context) (*TamperResult, error) {
	var res *TamperResult
	err := l.withLock(ctx, func(tx pgx.Tx) error {
		var n int
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM certificates").Scan(&n); err != nil {
			return fmt.Errorf("%w: count certificates: %w", ErrPersistence, err)
		}
		if n < 2 {
			return ErrNotEnoughRecords
		}
		offset := 1 + l.opts.pick(n-1)

		var seq int
		var id string
		if err := tx.QueryRow(ctx,
			`UPDATE certificates SET student_name = student_name || $1
			 WHERE seq = (SELECT seq FROM certificates ORDER BY seq ASC OFFSET $2 LIMIT 1)
			 RETURNING seq, cert_id`, TamperSuffix, offset,
		).Scan(&seq, &id); err != nil {
			return fmt.Errorf("%w: tamper certificate: %w", ErrPersistence, err)
		}
		res = &TamperResult{Seq: seq, CertificateID: id, Message: tamperMessage(id)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Warn("ledger record tampered", zap.String("cert_id", res.CertificateID))
	return res, nil
}

// Reset implements Ledger.
func (l *PostgresLedger) Reset(ctx context.Context) error {
	err := l.withLock(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM certificates"); err != nil {
			return fmt.Errorf("%w: delete certificates: %w", ErrPersistence, err)
		}
		_, err := l.ensureGenesisTx(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}
	l.logger.Info("ledger reset to genesis")
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	r := &Record{}
	if err := row.Scan(
		&r.Seq, &r.ID, &r.StudentName, &r.Course, &r.IssuingInstitution,
		&r.Grade, &r.RollNumber, &r.Year, &r.PreviousHash, &r.Hash, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	return r, nil
}
