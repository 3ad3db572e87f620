package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Tx is a bun.Tx whose Rollback is a no-op once Commit succeeded, so callers
// can always defer Rollback.
type Tx struct {
	bun.Tx
	done bool
}

// Begin starts a transaction on db.
func Begin(ctx context.Context, db bun.IDB) (*Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{Tx: tx}, nil
}

func (tx *Tx) Commit() error {
	if tx.done {
		return nil
	}
	if err := tx.Tx.Commit(); err != nil {
		return err
	}
	tx.done = true
	return nil
}

func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.Tx.Rollback()
}

// InTx runs fn inside a transaction, committing when it returns nil.
func InTx(ctx context.Context, db bun.IDB, fn func(tx bun.IDB) error) error {
	tx, err := Begin(ctx, db)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx.Tx); err != nil {
		return err
	}
	return tx.Commit()
}

type txKey struct{}

// Transactor runs work in a transaction carried by the context. Repositories
// that resolve their handle through Conn join it.
type Transactor struct {
	db bun.IDB
}

// NewTransactor creates a Transactor on db.
func NewTransactor(db bun.IDB) *Transactor {
	return &Transactor{db: db}
}

// InTx runs fn with a context carrying a new transaction, or the caller's
// transaction when ctx already has one.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.IDB); ok {
		return fn(ctx)
	}
	return InTx(ctx, t.db, func(tx bun.IDB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db bun.IDB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.IDB); ok {
		return tx
	}
	return db
}
