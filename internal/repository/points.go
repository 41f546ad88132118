package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jmshop/luckybox-system/internal/model"
)

// entryDelta is the signed contribution of one ledger entry to the balance:
// credit and refund entries add, debit entries subtract.
func entryDelta(typ model.PointType, amount int64) int64 {
	if typ == model.PointTypeDebit {
		return -amount
	}
	return amount
}

// FoldBalance recomputes a balance from ledger entries. The ledger is the
// source of truth; stored totals are only snapshots of this fold.
func FoldBalance(entries []model.PointEntry) int64 {
	var balance int64
	for _, e := range entries {
		balance += entryDelta(e.Type, e.Amount)
	}
	return balance
}

// NextTotal computes the running-total snapshot for a new entry on top of the
// current balance. A debit beyond the balance is rejected.
func NextTotal(balance int64, typ model.PointType, amount int64) (int64, error) {
	if typ == model.PointTypeDebit && amount > balance {
		return 0, ErrInsufficientPoints
	}
	return balance + entryDelta(typ, amount), nil
}

// PointBalance folds the user's ledger into the current balance: credit and
// refund entries add, debit entries subtract. The ledger is the source of
// truth; no separate balance column exists.
func (r *PostgresRepository) PointBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = $2 THEN -amount ELSE amount END), 0)
		 FROM points
		 WHERE user_id = $1`,
		userID, string(model.PointTypeDebit),
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("fold point balance: %w", err)
	}

	return balance, nil
}

// AppendPointEntry appends one ledger entry with a correct running-total
// snapshot. Appends for the same user are serialized through a row lock so
// two concurrent writes cannot both record a stale total, and a debit beyond
// the current balance is rejected inside the same critical section.
func (r *PostgresRepository) AppendPointEntry(ctx context.Context, entry *model.PointEntry) (*model.PointEntry, error) {
	var created *model.PointEntry

	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		created, err = appendPointEntryTx(ctx, tx, entry)
		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// appendPointEntryTx performs the locked fold-and-insert inside an existing
// transaction, which lets the refund settlement combine the order mutation
// and the ledger append atomically.
func appendPointEntryTx(ctx context.Context, tx pgx.Tx, entry *model.PointEntry) (*model.PointEntry, error) {
	// Lock the user row to serialize ledger appends per user.
	var dummy int
	err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, entry.UserID).Scan(&dummy)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user for update: %w", err)
	}

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = $2 THEN -amount ELSE amount END), 0)
		 FROM points
		 WHERE user_id = $1`,
		entry.UserID, string(model.PointTypeDebit),
	).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("fold point balance: %w", err)
	}

	newTotal, err := NextTotal(balance, entry.Type, entry.Amount)
	if err != nil {
		return nil, err
	}

	created := *entry
	created.TotalAmount = newTotal

	err = tx.QueryRow(ctx,
		`INSERT INTO points (user_id, type, amount, description, related_order_id, total_amount)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		entry.UserID, string(entry.Type), entry.Amount, entry.Description,
		entry.RelatedOrderID, newTotal,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert point entry: %w", err)
	}

	return &created, nil
}

// GetPointsByUser returns the user's ledger history, newest first.
func (r *PostgresRepository) GetPointsByUser(ctx context.Context, userID int64) ([]model.PointEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, amount, description, related_order_id, total_amount, created_at
		 FROM points
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select points: %w", err)
	}
	defer rows.Close()

	var entries []model.PointEntry
	for rows.Next() {
		var e model.PointEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Description, &e.RelatedOrderID, &e.TotalAmount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan point entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}
