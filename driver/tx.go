package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// PostCommit collects callbacks to run after the surrounding transaction
// commits. Hooks never run if the transaction rolls back and never run while
// any lock taken by the transaction is still held.
type PostCommit struct {
	fns []func()
}

func (p *PostCommit) Register(fn func()) {
	p.fns = append(p.fns, fn)
}

// Invoke runs the registered hooks in registration order. Called by the
// transaction manager after a successful commit.
func (p *PostCommit) Invoke() {
	for _, fn := range p.fns {
		fn()
	}
}

type TransactionManager struct {
	conn   PostgresPool
	logger *zap.Logger
}

func NewTransactionManager(conn PostgresPool, logger *zap.Logger) *TransactionManager {
	return &TransactionManager{
		conn:   conn,
		logger: logger,
	}
}

func (m *TransactionManager) ExecuteTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return m.ExecuteTransactionWithHooks(ctx, func(tx pgx.Tx, _ *PostCommit) error {
		return fn(tx)
	})
}

func (m *TransactionManager) ExecuteTransactionWithHooks(ctx context.Context, fn func(tx pgx.Tx, hooks *PostCommit) error) error {
	return m.executeWithHooks(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

func (m *TransactionManager) ExecuteSerializableTransaction(ctx context.Context, fn func(tx pgx.Tx, hooks *PostCommit) error) error {
	return m.ExecuteTransactionWithRetry(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn, 3)
}

func (m *TransactionManager) executeWithHooks(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx, hooks *PostCommit) error) error {
	dbTx, err := m.conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			m.rollback(ctx, dbTx)
			m.logger.Error("panic in transaction", zap.Any("panic", p))
			panic(p) // re-throw panic after Rollback
		}
	}()

	hooks := new(PostCommit)
	if err = fn(dbTx, hooks); err != nil {
		m.rollback(ctx, dbTx)
		return err
	}

	if err = dbTx.Commit(ctx); err != nil {
		m.logger.Error("commit transaction failed", zap.Error(err))
		return fmt.Errorf("commit transaction failed: %w", err)
	}

	// Locks are released at this point; only now may the hooks fire.
	hooks.Invoke()

	return nil
}

func (m *TransactionManager) ExecuteTransactionWithRetry(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx, hooks *PostCommit) error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = m.executeWithHooks(ctx, opts, fn); err == nil {
			return nil
		}
		if !m.isRetryableError(err) {
			return err
		}
		m.logger.Warn("Transaction failed, retrying", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxRetries, err)
}

func (m *TransactionManager) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		m.logger.Error("rollback failed", zap.Error(err))
	}
}

// isRetryableError reports whether the error is a serialization failure or a
// deadlock, the two conditions Postgres asks clients to retry.
func (m *TransactionManager) isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
