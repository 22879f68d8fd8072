package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// Querier is the read/write surface shared by *sqlx.DB and *sqlx.Tx. Repositories
// resolve one with From so the same method works inside or outside a transaction.
type Querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

type DB struct {
	*sqlx.DB
	logger ectologger.Logger
}

func New(db *sqlx.DB, logger ectologger.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// GetTx returns the transaction carried by ctx when one is open, otherwise it
// begins a new one and stores it on the returned context.
func (db *DB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db.DB, opts)
}

// From returns the open transaction carried by ctx, or fallback when there is
// none. Repository methods call this so they transparently join a merge
// transaction started higher up.
func From(ctx context.Context, fallback Querier) Querier {
	tx, ok := ctx.Value(txKey).(Tx)
	if ok && tx != nil && tx.IsOpen() {
		return tx
	}
	return fallback
}
