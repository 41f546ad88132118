package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jmshop/luckybox-system/internal/model"
)

const orderColumns = `
	o.id, o.user_id, o.box_id, o.payment_type, o.payment_amount, o.point_used,
	o.status, o.unboxed_product_id, o.unboxed_at, o.refunded_point, o.refunded_cash,
	o.delivery_fee_point, o.delivery_fee_cash, o.external_order_no,
	o.tracking_number, o.tracking_company, o.created_at,
	b.name, b.price, b.is_public,
	p.name, p.price, p.image_url`

const orderJoins = `
	FROM orders o
	JOIN boxes b ON b.id = o.box_id
	LEFT JOIN products p ON p.id = o.unboxed_product_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o                model.Order
		box              model.Box
		unboxedProductID *int64
		unboxedAt        *time.Time
		externalOrderNo  *string
		productName      *string
		productPrice     *int64
		productImage     *string
	)

	err := row.Scan(
		&o.ID, &o.UserID, &o.BoxID, &o.PaymentType, &o.PaymentAmount, &o.PointUsed,
		&o.Status, &unboxedProductID, &unboxedAt, &o.Refunded.Point, &o.Refunded.Cash,
		&o.DeliveryFee.Point, &o.DeliveryFee.Cash, &externalOrderNo,
		&o.TrackingNumber, &o.TrackingCompany, &o.CreatedAt,
		&box.Name, &box.Price, &box.IsPublic,
		&productName, &productPrice, &productImage,
	)
	if err != nil {
		return nil, err
	}

	box.ID = o.BoxID
	o.Box = &box

	if externalOrderNo != nil {
		o.ExternalOrderNo = *externalOrderNo
	}

	if unboxedProductID != nil {
		p := &model.Product{ID: *unboxedProductID}
		if productName != nil {
			p.Name = *productName
		}
		if productPrice != nil {
			p.Price = *productPrice
		}
		if productImage != nil {
			p.ImageURL = *productImage
		}
		o.Unboxed = model.UnboxedProduct{Product: p, DecidedAt: unboxedAt}
	}

	return &o, nil
}

// CreateGatewayOrder inserts an order carrying a gateway order number. The
// unique constraint on external_order_no makes a repeated gateway callback a
// no-op: when the number was already consumed the existing order id is
// returned with created=false.
func (r *PostgresRepository) CreateGatewayOrder(ctx context.Context, o *model.Order) (int64, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO orders
		 (user_id, box_id, payment_type, payment_amount, point_used, status, external_order_no)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (external_order_no) DO NOTHING`,
		o.UserID, o.BoxID, string(o.PaymentType), o.PaymentAmount, o.PointUsed,
		string(o.Status), o.ExternalOrderNo,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert gateway order: %w", err)
	}

	inserted := cmdTag.RowsAffected() == 1

	var id int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM orders WHERE external_order_no = $1`,
		o.ExternalOrderNo,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("select gateway order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit tx: %w", err)
	}

	return id, inserted, nil
}

// GetOrderByID returns one order with its box and, when decided, the unboxed product.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+orderColumns+orderJoins+` WHERE o.id = $1`,
		orderID,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

// GetOrdersByUser returns the user's orders, newest first. When status is
// non-empty only orders in that status are returned.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64, status model.OrderStatus) ([]model.Order, error) {
	query := `SELECT` + orderColumns + orderJoins + ` WHERE o.user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND o.status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY o.created_at DESC`

	return r.queryOrders(ctx, query, args...)
}

// GetUnboxedOrdersByUser returns the user's orders whose draw is decided,
// most recently decided first.
func (r *PostgresRepository) GetUnboxedOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	query := `SELECT` + orderColumns + orderJoins + `
		WHERE o.user_id = $1 AND o.unboxed_product_id IS NOT NULL AND o.status = $2
		ORDER BY o.unboxed_at DESC`

	return r.queryOrders(ctx, query, userID, string(model.OrderStatusPaid))
}

// GetAllUnboxedOrders returns every decided order across users, most recently
// decided first. Admin listing.
func (r *PostgresRepository) GetAllUnboxedOrders(ctx context.Context) ([]model.Order, error) {
	query := `SELECT` + orderColumns + orderJoins + `
		WHERE o.unboxed_product_id IS NOT NULL AND o.status = $1
		ORDER BY o.unboxed_at DESC`

	return r.queryOrders(ctx, query, string(model.OrderStatusPaid))
}

func (r *PostgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// ClaimUnboxing binds the draw outcome to the order. The IS NULL guard is
// part of the same atomic write as the assignment, so at most one caller can
// ever claim a given order; everyone else sees claimed=false and must
// re-fetch the order for the original outcome.
func (r *PostgresRepository) ClaimUnboxing(ctx context.Context, orderID, productID int64) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET unboxed_product_id = $2, unboxed_at = now()
		 WHERE id = $1 AND unboxed_product_id IS NULL AND status = $3`,
		orderID, productID, string(model.OrderStatusPaid),
	)
	if err != nil {
		return false, fmt.Errorf("claim unboxing: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// RefundOrder moves a paid order to refunded and appends the matching refund
// ledger entry in one transaction, so the order mutation and the ledger
// append are both-or-neither.
func (r *PostgresRepository) RefundOrder(ctx context.Context, orderID, userID, refundPoint int64, description string) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE orders
			 SET status = $3, refunded_point = $4
			 WHERE id = $1 AND user_id = $2 AND status = $5`,
			orderID, userID, string(model.OrderStatusRefunded), refundPoint,
			string(model.OrderStatusPaid),
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrOrderStateConflict
		}

		entry := &model.PointEntry{
			UserID:         userID,
			Type:           model.PointTypeRefund,
			Amount:         refundPoint,
			Description:    description,
			RelatedOrderID: &orderID,
		}
		if _, err := appendPointEntryTx(ctx, tx, entry); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

// ShipOrder moves a paid order to shipped after its shipping fee was
// settled, debiting the point component of the fee in the same transaction.
// A non-empty externalOrderNo records the gateway payment; the unique
// constraint turns a duplicate gateway callback into ErrDuplicateOrderNo
// instead of a second transition.
func (r *PostgresRepository) ShipOrder(ctx context.Context, orderID, userID int64, fee model.Money, paymentType model.PaymentType, externalOrderNo string) error {
	var extNo *string
	if externalOrderNo != "" {
		extNo = &externalOrderNo
	}

	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE orders
			 SET status = $2, delivery_fee_point = $3, delivery_fee_cash = $4,
			     payment_type = $5, external_order_no = COALESCE($6, external_order_no)
			 WHERE id = $1 AND user_id = $7 AND status = $8`,
			orderID, string(model.OrderStatusShipped), fee.Point, fee.Cash,
			string(paymentType), extNo, userID, string(model.OrderStatusPaid),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return ErrDuplicateOrderNo
			}
			return fmt.Errorf("mark shipped: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrOrderStateConflict
		}

		if fee.Point > 0 {
			entry := &model.PointEntry{
				UserID:         userID,
				Type:           model.PointTypeDebit,
				Amount:         fee.Point,
				Description:    "shipping fee payment",
				RelatedOrderID: &orderID,
			}
			if _, err := appendPointEntryTx(ctx, tx, entry); err != nil {
				return err
			}
		}

		return tx.Commit(ctx)
	})
}

// PurchaseOrders fans one purchase of count box units out into count per-unit
// orders and, when points were spent, appends the single debit ledger entry
// tied to the first order, all in one transaction.
func (r *PostgresRepository) PurchaseOrders(ctx context.Context, unit *model.Order, count int, totalPointUsed int64, debitDescription string) ([]int64, error) {
	var ids []int64

	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		ids = ids[:0]
		for i := 0; i < count; i++ {
			var id int64
			err := tx.QueryRow(ctx,
				`INSERT INTO orders
				 (user_id, box_id, payment_type, payment_amount, point_used, status)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 RETURNING id`,
				unit.UserID, unit.BoxID, string(unit.PaymentType),
				unit.PaymentAmount, unit.PointUsed, string(model.OrderStatusPaid),
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
			ids = append(ids, id)
		}

		if totalPointUsed > 0 {
			entry := &model.PointEntry{
				UserID:         unit.UserID,
				Type:           model.PointTypeDebit,
				Amount:         totalPointUsed,
				Description:    debitDescription,
				RelatedOrderID: &ids[0],
			}
			if _, err := appendPointEntryTx(ctx, tx, entry); err != nil {
				return err
			}
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// GetOrderByExternalNo returns the order carrying the given gateway order number.
func (r *PostgresRepository) GetOrderByExternalNo(ctx context.Context, externalOrderNo string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+orderColumns+orderJoins+` WHERE o.external_order_no = $1`,
		externalOrderNo,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by external no: %w", err)
	}

	return o, nil
}

// UpdateTracking sets the shipment tracking details on an order.
func (r *PostgresRepository) UpdateTracking(ctx context.Context, orderID int64, number, company string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET tracking_number = $2, tracking_company = $3 WHERE id = $1`,
		orderID, number, company,
	)
	if err != nil {
		return fmt.Errorf("update tracking: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// GetPendingGatewayOrders returns orders created for a gateway payment that
// were never confirmed by a callback, oldest first.
func (r *PostgresRepository) GetPendingGatewayOrders(ctx context.Context, limit int) ([]model.Order, error) {
	query := `SELECT` + orderColumns + orderJoins + `
		WHERE o.status = $1 AND o.external_order_no IS NOT NULL
		ORDER BY o.created_at
		LIMIT $2`

	return r.queryOrders(ctx, query, string(model.OrderStatusPending), limit)
}

// PromotePendingOrder confirms a pending gateway order. Returns false when
// the order already left the pending state.
func (r *PostgresRepository) PromotePendingOrder(ctx context.Context, orderID int64) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
		orderID, string(model.OrderStatusPaid), string(model.OrderStatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("promote pending order: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}
