package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/hydronet-io/hydrogate/internal/logger"
)

// Guard errors.
var (
	// ErrTxTerminated reports use of a guard that already committed or
	// rolled back.
	ErrTxTerminated = errors.New("store: transaction already terminated")

	// ErrCommitFailed wraps a driver-reported commit failure.
	ErrCommitFailed = errors.New("store: commit failed")
)

// TxGuard is a scoped database transaction. Exactly one terminal
// transition (Commit or Rollback) is allowed; a guard whose scope exits
// without one rolls back via Close. Post-commit hooks run sequentially
// after the database has acknowledged the commit, and only then.
//
// Intended for single-goroutine use within one business operation.
type TxGuard struct {
	tx         *gorm.DB
	terminated bool
	hooks      []func()
}

// Begin opens a transaction and wraps it in a guard.
func (s *Store) Begin(ctx context.Context) (*TxGuard, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", tx.Error)
	}
	return &TxGuard{tx: tx}, nil
}

// Tx exposes the transaction for repository operations. Fails once the
// guard is terminated.
func (g *TxGuard) Tx() (*gorm.DB, error) {
	if g.terminated {
		return nil, ErrTxTerminated
	}
	return g.tx, nil
}

// Exec runs one parameterized statement inside the transaction.
func (g *TxGuard) Exec(sql string, args ...any) error {
	if g.terminated {
		return ErrTxTerminated
	}
	return g.tx.Exec(sql, args...).Error
}

// OnCommit registers a post-commit hook, typically cache invalidation.
// Hooks run in registration order after a successful commit; a failed
// or absent commit discards them.
func (g *TxGuard) OnCommit(fn func()) {
	g.hooks = append(g.hooks, fn)
}

// Commit commits the transaction and waits for the database's
// acknowledgement, then runs the post-commit hooks. A hook panic is
// logged and does not fail the commit.
func (g *TxGuard) Commit() error {
	if g.terminated {
		return ErrTxTerminated
	}
	g.terminated = true

	if err := g.tx.Commit().Error; err != nil {
		g.hooks = nil
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	for _, hook := range g.hooks {
		runHook(hook)
	}
	g.hooks = nil
	return nil
}

func runHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("post-commit hook panicked", "panic", r)
		}
	}()
	fn()
}

// Rollback rolls the transaction back. Idempotent once terminated.
func (g *TxGuard) Rollback() error {
	if g.terminated {
		return nil
	}
	g.terminated = true
	g.hooks = nil
	return g.tx.Rollback().Error
}

// Close is the scope-exit safety net: a guard still open rolls back
// with a warning. Intended for defer.
func (g *TxGuard) Close() {
	if g.terminated {
		return
	}
	logger.Warn("transaction guard left open, rolling back")
	if err := g.Rollback(); err != nil {
		logger.Error("implicit rollback failed", logger.KeyError, err.Error())
	}
}
