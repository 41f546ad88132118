package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jmshop/luckybox-system/internal/draw"
	"github.com/jmshop/luckybox-system/internal/model"
	"github.com/jmshop/luckybox-system/internal/repository"
	"github.com/jmshop/luckybox-system/internal/validation"
)

// batchUnboxConcurrency bounds how many draws a batch keeps in flight at
// once. Backpressure on the catalog store, not a correctness requirement.
const batchUnboxConcurrency = 3

// Unbox settles the draw for one order: select a product from the box's
// weighted pool and bind it to the order exactly once.
//
// The binding is a conditional write; when another caller wins the race the
// order is re-fetched and returned together with ErrAlreadyUnboxed so the
// caller always sees the original outcome, never a second draw.
func (s *Service) Unbox(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	if order.Unboxed.Decided() {
		return order, ErrAlreadyUnboxed
	}
	if order.Status != model.OrderStatusPaid {
		return order, repository.ErrOrderStateConflict
	}

	box, err := s.repo.GetBoxWithProducts(ctx, order.BoxID)
	if err != nil {
		return nil, err
	}

	entries := make([]draw.Entry, 0, len(box.Products))
	for _, bp := range box.Products {
		entries = append(entries, draw.Entry{ProductID: bp.Product.ID, Weight: bp.Weight})
	}

	productID, err := draw.Pick(entries, s.drawSrc)
	if err != nil {
		return nil, fmt.Errorf("draw for order %d: %w", orderID, err)
	}

	claimed, err := s.repo.ClaimUnboxing(ctx, orderID, productID)
	if err != nil {
		return nil, err
	}

	// Losing the conditional write means a concurrent caller already bound
	// an outcome; our candidate draw is discarded.
	if !claimed {
		order, err = s.repo.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.Unboxed.Decided() {
			return order, ErrAlreadyUnboxed
		}
		return order, repository.ErrOrderStateConflict
	}

	order, err = s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	orderRef := orderID
	_ = s.repo.CreateNotification(ctx, &model.Notification{
		UserID:  userID,
		OrderID: &orderRef,
		Message: fmt.Sprintf("Your box %q revealed %q", box.Name, order.Unboxed.Product.Name),
	})

	return order, nil
}

// UnboxResult is one order's outcome within a batch unbox.
type UnboxResult struct {
	OrderID int64
	Order   *model.Order
	Err     error
}

// UnboxBatch settles the draw for up to validation.MaxBatchUnbox orders with
// bounded concurrency. Every order is settled independently: one order's
// failure never aborts its siblings, and each result reports its own outcome.
func (s *Service) UnboxBatch(ctx context.Context, userID int64, orderIDs []int64) ([]UnboxResult, error) {
	if !validation.IsValidBatchSize(len(orderIDs)) {
		return nil, ErrInvalidBatchSize
	}

	results := make([]UnboxResult, len(orderIDs))

	var g errgroup.Group
	g.SetLimit(batchUnboxConcurrency)

	for i, orderID := range orderIDs {
		i, orderID := i, orderID
		g.Go(func() error {
			order, err := s.Unbox(ctx, userID, orderID)
			results[i] = UnboxResult{OrderID: orderID, Order: order, Err: err}
			return nil
		})
	}

	// Goroutines never return an error: per-item failures live in results.
	_ = g.Wait()

	return results, nil
}
