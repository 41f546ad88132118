package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmshop/luckybox-system/internal/gateway"
	"github.com/jmshop/luckybox-system/internal/model"
	"github.com/jmshop/luckybox-system/internal/repository"
	"github.com/jmshop/luckybox-system/internal/validation"
)

// PurchaseRequest describes one box purchase, possibly of several units.
type PurchaseRequest struct {
	BoxID         int64
	BoxCount      int
	PaymentType   model.PaymentType
	PaymentAmount int64
	PointUsed     int64
}

// PurchaseBox creates BoxCount per-unit paid orders for the box and debits
// the spent points once, tied to the first order. Fanning a multi-unit
// purchase out into individual orders keeps draw and refund atomic per
// physical box.
func (s *Service) PurchaseBox(ctx context.Context, userID int64, req PurchaseRequest) ([]model.Order, error) {
	if !req.PaymentType.Valid() {
		return nil, ErrInvalidPaymentType
	}
	if !validation.IsValidBoxCount(req.BoxCount) {
		return nil, ErrInvalidBoxCount
	}
	if req.PaymentAmount < 0 || req.PointUsed < 0 {
		return nil, errors.New("negative payment amount")
	}

	box, err := s.repo.GetBoxWithProducts(ctx, req.BoxID)
	if err != nil {
		return nil, err
	}
	if !box.IsPublic || len(box.Products) == 0 {
		return nil, ErrBoxNotPurchasable
	}

	count := int64(req.BoxCount)
	unit := &model.Order{
		UserID:        userID,
		BoxID:         req.BoxID,
		PaymentType:   req.PaymentType,
		PaymentAmount: req.PaymentAmount / count,
		PointUsed:     req.PointUsed / count,
		Status:        model.OrderStatusPaid,
	}

	ids, err := s.repo.PurchaseOrders(ctx, unit, req.BoxCount, req.PointUsed, "luckybox purchase")
	if err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.repo.GetOrderByID(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}

	return orders, nil
}

// RefundOrder refunds a paid order into points at the given rate and returns
// the refunded amount. Admin operation.
//
// refundAmount = floor((paymentAmount + pointUsed) * refundRate / 100).
func (s *Service) RefundOrder(ctx context.Context, orderID, refundRate int64, description string) (int64, error) {
	if !validation.IsValidRefundRate(refundRate) {
		return 0, ErrInvalidRefundRate
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if order.Status != model.OrderStatusPaid {
		return 0, repository.ErrOrderStateConflict
	}

	refundAmount := (order.PaymentAmount + order.PointUsed) * refundRate / 100

	if description == "" {
		description = "point refund"
	}

	if err := s.repo.RefundOrder(ctx, orderID, order.UserID, refundAmount, description); err != nil {
		return 0, err
	}

	return refundAmount, nil
}

// ShippingRequest describes a shipping fee settlement for an unboxed order.
type ShippingRequest struct {
	PaymentType     model.PaymentType
	Fee             model.Money
	ExternalOrderNo string
}

// PayShipping settles the shipping fee of a paid order and moves it to
// shipped. The point component is debited in the same transaction as the
// state transition; the cash component must reference a gateway order number,
// whose uniqueness suppresses duplicate gateway callbacks.
func (s *Service) PayShipping(ctx context.Context, userID, orderID int64, req ShippingRequest) (*model.Order, error) {
	if !req.PaymentType.Valid() {
		return nil, ErrInvalidPaymentType
	}
	if req.Fee.Point < 0 || req.Fee.Cash < 0 {
		return nil, errors.New("negative shipping fee")
	}
	if req.Fee.Cash > 0 && req.ExternalOrderNo == "" {
		return nil, ErrMissingOrderNo
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	if order.Status != model.OrderStatusPaid {
		return order, repository.ErrOrderStateConflict
	}

	err = s.repo.ShipOrder(ctx, orderID, userID, req.Fee, req.PaymentType, req.ExternalOrderNo)
	if err != nil {
		return nil, err
	}

	return s.repo.GetOrderByID(ctx, orderID)
}

// UpdateTracking sets shipment tracking details on an order. Admin operation.
func (s *Service) UpdateTracking(ctx context.Context, orderID int64, number, company string) error {
	if number == "" {
		return errors.New("tracking number is required")
	}
	return s.repo.UpdateTracking(ctx, orderID, number, company)
}

// RequestCardPayment initiates a gateway card payment for one box unit and
// records a pending order keyed by the gateway order number. The order is
// promoted to paid by the gateway callback or by the reconciler.
func (s *Service) RequestCardPayment(ctx context.Context, userID, boxID int64) (*gateway.PaymentSession, error) {
	if s.gateway == nil {
		return nil, errors.New("payment gateway not configured")
	}

	box, err := s.repo.GetBoxWithProducts(ctx, boxID)
	if err != nil {
		return nil, err
	}
	if !box.IsPublic || len(box.Products) == 0 {
		return nil, ErrBoxNotPurchasable
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	orderNo := gateway.NewOrderNo()

	session, err := s.gateway.RequestPayment(ctx, gateway.PaymentRequest{
		OrderNo:     orderNo,
		UserID:      userID,
		UserName:    user.Login,
		Amount:      box.Price,
		ProductName: box.Name,
	})
	if err != nil {
		return nil, err
	}

	pending := &model.Order{
		UserID:          userID,
		BoxID:           boxID,
		PaymentType:     model.PaymentTypeCard,
		PaymentAmount:   box.Price,
		Status:          model.OrderStatusPending,
		ExternalOrderNo: orderNo,
	}
	if _, _, err := s.repo.CreateGatewayOrder(ctx, pending); err != nil {
		return nil, err
	}

	return session, nil
}

// HandleGatewayCallback confirms a pending gateway order. A repeated
// callback for the same order number finds the order already promoted and is
// a no-op, never a second order.
func (s *Service) HandleGatewayCallback(ctx context.Context, payload gateway.CallbackPayload) (*model.Order, error) {
	if payload.PaymentResult != gateway.StatusPaid {
		return nil, ErrPaymentNotCompleted
	}

	order, err := s.repo.GetOrderByExternalNo(ctx, payload.OrderNo)
	if err != nil {
		return nil, err
	}

	// Promotion is conditional on pending status; losing it means an earlier
	// callback or the reconciler already confirmed the payment.
	if _, err := s.repo.PromotePendingOrder(ctx, order.ID); err != nil {
		return nil, err
	}

	return s.repo.GetOrderByID(ctx, order.ID)
}

// StartPaymentReconciler starts a background loop confirming pending gateway
// orders whose callback never arrived.
func (s *Service) StartPaymentReconciler(ctx context.Context) {
	if s.gateway == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reconcilePendingPayments(ctx)
			}
		}
	}()
}

func (s *Service) reconcilePendingPayments(ctx context.Context) {
	orders, err := s.repo.GetPendingGatewayOrders(ctx, 100)
	if err != nil {
		return
	}

	for _, o := range orders {
		status, err := s.gateway.GetPaymentStatus(ctx, o.ExternalOrderNo)
		if err != nil {
			continue
		}

		if status == gateway.StatusPaid {
			_, _ = s.repo.PromotePendingOrder(ctx, o.ID)
		}
	}
}
