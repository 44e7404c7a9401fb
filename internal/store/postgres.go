package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

const marksSchema = `CREATE TABLE IF NOT EXISTS nonce_marks (
	scope      TEXT PRIMARY KEY,
	mark       BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresMarks keeps nonce high-water marks in a table. Reservations are atomic, so
// processes on different hosts sharing a credential draw disjoint nonce blocks.
type PostgresMarks struct {
	db *sql.DB
}

func OpenPostgresMarks(ctx context.Context, dsn string) (*PostgresMarks, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, marksSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create nonce_marks: %w", err)
	}
	return &PostgresMarks{db: db}, nil
}

func (p *PostgresMarks) LoadMark(ctx context.Context, scope string) (int64, bool, error) {
	var mark int64
	err := p.db.QueryRowContext(ctx, `SELECT mark FROM nonce_marks WHERE scope = $1`, scope).Scan(&mark)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return mark, true, nil
}

// ReserveBlock raises the mark in one upsert and returns the first value of the block.
// The row lock taken by the upsert orders concurrent reservations from any host.
func (p *PostgresMarks) ReserveBlock(ctx context.Context, scope string, atLeast, size int64) (int64, error) {
	if size < 1 {
		return 0, fmt.Errorf("reserve %s: block size %d", scope, size)
	}
	var mark int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO nonce_marks (scope, mark, updated_at) VALUES ($1, $2::BIGINT + $3::BIGINT - 1, NOW())
		ON CONFLICT (scope) DO UPDATE
		SET mark = GREATEST(nonce_marks.mark + 1, $2::BIGINT) + $3::BIGINT - 1, updated_at = NOW()
		RETURNING mark`,
		scope, atLeast, size).Scan(&mark)
	if err != nil {
		return 0, err
	}
	return mark - size + 1, nil
}

func (p *PostgresMarks) Close() error {
	return p.db.Close()
}
