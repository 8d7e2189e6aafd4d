package kvstore

import (
	"context"
	"errors"

	"github.com/2beens/healthtracker/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*Postgres)(nil)

// pgxQuerier is satisfied by *pgxpool.Pool.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Postgres stores entries in the kv_entry table, created by db.RunMigrations.
type Postgres struct {
	db pgxQuerier
}

func NewPostgres(db pgxQuerier) *Postgres {
	return &Postgres{
		db: db,
	}
}

func (p *Postgres) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "kvstore.postgres.get")
	defer func() {
		if errors.Is(err, ErrNotFound) {
			span.End()
			return
		}
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var value []byte
	if err := p.db.QueryRow(
		ctx,
		`SELECT value FROM kv_entry WHERE key = $1`,
		key,
	).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "kvstore.postgres.set")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	_, err = p.db.Exec(
		ctx,
		`INSERT INTO kv_entry (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "kvstore.postgres.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	_, err = p.db.Exec(ctx, `DELETE FROM kv_entry WHERE key = $1`, key)
	return err
}

// Close leaves the pool open, the server owns it.
func (p *Postgres) Close() error {
	return nil
}
