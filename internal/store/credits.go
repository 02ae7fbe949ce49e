package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetCreditBalance creates or replaces an owner's credit balance.
func (s *Store) SetCreditBalance(ctx context.Context, ownerID string, balance int64) error {
	if balance < 0 {
		return errors.New("balance must not be negative")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO credit_accounts (owner_id, balance) VALUES (?, ?)
         ON CONFLICT(owner_id) DO UPDATE SET balance = excluded.balance`,
		ownerID, balance,
	)
	if err != nil {
		return fmt.Errorf("set credit balance: %w", err)
	}
	return nil
}

// CreditBalance returns an owner's current balance. Unknown owners read as zero.
func (s *Store) CreditBalance(ctx context.Context, ownerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM credit_accounts WHERE owner_id = ?`, ownerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read credit balance: %w", err)
	}
	return balance, nil
}

// CheckAndDeduct atomically verifies the owner's balance covers cost, debits
// it, and inserts the downstream external task row in the same transaction,
// so "balance sufficient" and "task created" cannot diverge under
// concurrency. When ok is false nothing is written and the caller must not
// perform the paid side effect.
func (s *Store) CheckAndDeduct(ctx context.Context, ownerID string, cost int64, task *ExternalTask) (ok bool, newBalance int64, err error) {
	if task == nil {
		return false, 0, errors.New("task is nil")
	}
	if cost < 0 {
		return false, 0, errors.New("cost must not be negative")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin credit deduction: %w", err)
	}
	defer tx.Rollback()

	// The guarded decrement acquires the write lock and enforces the
	// never-negative invariant in a single statement.
	res, err := tx.ExecContext(
		ctx,
		`UPDATE credit_accounts SET balance = balance - ? WHERE owner_id = ? AND balance >= ?`,
		cost, ownerID, cost,
	)
	if err != nil {
		return false, 0, fmt.Errorf("deduct credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		balance, readErr := creditBalanceTx(ctx, tx, ownerID)
		if readErr != nil {
			return false, 0, readErr
		}
		return false, balance, nil
	}

	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now().UTC()
	}
	task.UpdatedAt = task.SubmittedAt
	if task.ProviderStatus == "" {
		task.ProviderStatus = TaskStatusQueued
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO external_tasks (id, provider_ref, kind, item_id, owner_id, provider_status, submitted_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		nullableString(task.ProviderRef),
		task.Kind,
		task.ItemID,
		task.OwnerID,
		task.ProviderStatus,
		timestamp(task.SubmittedAt),
		timestamp(task.UpdatedAt),
	); err != nil {
		return false, 0, fmt.Errorf("insert gated task: %w", err)
	}

	balance, err := creditBalanceTx(ctx, tx, ownerID)
	if err != nil {
		return false, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit credit deduction: %w", err)
	}
	return true, balance, nil
}

func creditBalanceTx(ctx context.Context, tx *sql.Tx, ownerID string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM credit_accounts WHERE owner_id = ?`, ownerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read credit balance: %w", err)
	}
	return balance, nil
}
