package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmshop/luckybox-system/internal/model"
	"github.com/jmshop/luckybox-system/internal/repository"
)

// stubRepo is an in-memory Repository used by the service tests. It mimics
// the conditional-write semantics of the real store: claiming an unboxing or
// promoting a pending order only succeeds when the guard condition holds.
type stubRepo struct {
	mu sync.Mutex

	users  map[int64]*model.User
	boxes  map[int64]*model.Box
	orders map[int64]*model.Order

	entries       []model.PointEntry
	notifications []model.Notification

	nextOrderID int64
	claimCalls  int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:       map[int64]*model.User{},
		boxes:       map[int64]*model.Box{},
		orders:      map[int64]*model.Order{},
		nextOrderID: 1,
	}
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.users) + 1)
	s.users[id] = &model.User{ID: id, Login: login, PasswordHash: passwordHash}
	return id, nil
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Login == login {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *stubRepo) GetBoxWithProducts(ctx context.Context, boxID int64) (*model.Box, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boxes[boxID]
	if !ok {
		return nil, repository.ErrBoxNotFound
	}
	return b, nil
}

func (s *stubRepo) addOrder(o model.Order) *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.nextOrderID
	s.nextOrderID++
	s.orders[o.ID] = &o
	return &o
}

func (s *stubRepo) PurchaseOrders(ctx context.Context, unit *model.Order, count int, totalPointUsed int64, debitDescription string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		o := *unit
		o.ID = s.nextOrderID
		s.nextOrderID++
		s.orders[o.ID] = &o
		ids = append(ids, o.ID)
	}

	if totalPointUsed > 0 {
		if err := s.appendLocked(&model.PointEntry{
			UserID:         unit.UserID,
			Type:           model.PointTypeDebit,
			Amount:         totalPointUsed,
			Description:    debitDescription,
			RelatedOrderID: &ids[0],
		}); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

func (s *stubRepo) CreateGatewayOrder(ctx context.Context, o *model.Order) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.ExternalOrderNo == o.ExternalOrderNo {
			return existing.ID, false, nil
		}
	}
	created := *o
	created.ID = s.nextOrderID
	s.nextOrderID++
	s.orders[created.ID] = &created
	return created.ID, true, nil
}

func (s *stubRepo) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *stubRepo) GetOrderByExternalNo(ctx context.Context, externalOrderNo string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ExternalOrderNo == externalOrderNo {
			copied := *o
			return &copied, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID int64, status model.OrderStatus) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Order
	for _, o := range s.orders {
		if o.UserID == userID && (status == "" || o.Status == status) {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (s *stubRepo) GetUnboxedOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Order
	for _, o := range s.orders {
		if o.UserID == userID && o.Unboxed.Decided() {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (s *stubRepo) GetAllUnboxedOrders(ctx context.Context) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Order
	for _, o := range s.orders {
		if o.Unboxed.Decided() {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (s *stubRepo) ClaimUnboxing(ctx context.Context, orderID, productID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.claimCalls++

	o, ok := s.orders[orderID]
	if !ok || o.Unboxed.Decided() || o.Status != model.OrderStatusPaid {
		return false, nil
	}

	now := time.Now()
	o.Unboxed = model.UnboxedProduct{
		Product:   &model.Product{ID: productID, Name: fmt.Sprintf("product-%d", productID)},
		DecidedAt: &now,
	}
	return true, nil
}

func (s *stubRepo) RefundOrder(ctx context.Context, orderID, userID, refundPoint int64, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status != model.OrderStatusPaid {
		return repository.ErrOrderStateConflict
	}

	o.Status = model.OrderStatusRefunded
	o.Refunded.Point = refundPoint

	return s.appendLocked(&model.PointEntry{
		UserID:         userID,
		Type:           model.PointTypeRefund,
		Amount:         refundPoint,
		Description:    description,
		RelatedOrderID: &orderID,
	})
}

func (s *stubRepo) ShipOrder(ctx context.Context, orderID, userID int64, fee model.Money, paymentType model.PaymentType, externalOrderNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID || o.Status != model.OrderStatusPaid {
		return repository.ErrOrderStateConflict
	}

	o.Status = model.OrderStatusShipped
	o.DeliveryFee = fee
	o.PaymentType = paymentType
	if externalOrderNo != "" {
		o.ExternalOrderNo = externalOrderNo
	}

	if fee.Point > 0 {
		return s.appendLocked(&model.PointEntry{
			UserID:         userID,
			Type:           model.PointTypeDebit,
			Amount:         fee.Point,
			RelatedOrderID: &orderID,
		})
	}
	return nil
}

func (s *stubRepo) UpdateTracking(ctx context.Context, orderID int64, number, company string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.TrackingNumber = number
	o.TrackingCompany = company
	return nil
}

func (s *stubRepo) GetPendingGatewayOrders(ctx context.Context, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Order
	for _, o := range s.orders {
		if o.Status == model.OrderStatusPending && o.ExternalOrderNo != "" {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (s *stubRepo) PromotePendingOrder(ctx context.Context, orderID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != model.OrderStatusPending {
		return false, nil
	}
	o.Status = model.OrderStatusPaid
	return true, nil
}

func (s *stubRepo) appendLocked(entry *model.PointEntry) error {
	var userEntries []model.PointEntry
	for _, e := range s.entries {
		if e.UserID == entry.UserID {
			userEntries = append(userEntries, e)
		}
	}

	total, err := repository.NextTotal(repository.FoldBalance(userEntries), entry.Type, entry.Amount)
	if err != nil {
		return err
	}

	e := *entry
	e.ID = int64(len(s.entries) + 1)
	e.TotalAmount = total
	e.CreatedAt = time.Now()
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubRepo) PointBalance(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var userEntries []model.PointEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			userEntries = append(userEntries, e)
		}
	}
	return repository.FoldBalance(userEntries), nil
}

func (s *stubRepo) AppendPointEntry(ctx context.Context, entry *model.PointEntry) (*model.PointEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(entry); err != nil {
		return nil, err
	}
	created := s.entries[len(s.entries)-1]
	return &created, nil
}

func (s *stubRepo) GetPointsByUser(ctx context.Context, userID int64) ([]model.PointEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.PointEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (s *stubRepo) CreateNotification(ctx context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *stubRepo) GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			res = append(res, n)
		}
	}
	return res, nil
}
