// Package service implements the business logic of the luckybox service:
// the unboxing draw settlement, the point ledger and the refund/shipping
// state machine.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jmshop/luckybox-system/internal/draw"
	"github.com/jmshop/luckybox-system/internal/gateway"
	"github.com/jmshop/luckybox-system/internal/model"
	"github.com/jmshop/luckybox-system/internal/repository"
)

var (
	// ErrNotOrderOwner is returned when a user operates on someone else's order.
	ErrNotOrderOwner = errors.New("order belongs to another user")
	// ErrAlreadyUnboxed is returned when an order's draw outcome is already
	// bound. The accompanying order carries the original outcome.
	ErrAlreadyUnboxed = errors.New("order already unboxed")
	// ErrInvalidRefundRate is returned for refund rates outside [0, 100].
	ErrInvalidRefundRate = errors.New("refund rate must be between 0 and 100")
	// ErrInvalidBatchSize is returned for an empty or oversized batch unbox request.
	ErrInvalidBatchSize = errors.New("batch must contain between 1 and 10 order ids")
	// ErrInvalidPaymentType is returned for unknown payment types.
	ErrInvalidPaymentType = errors.New("invalid payment type")
	// ErrInvalidBoxCount is returned for a purchase with a bad fan-out count.
	ErrInvalidBoxCount = errors.New("invalid box count")
	// ErrBoxNotPurchasable is returned when a box is not public or has an
	// empty product pool.
	ErrBoxNotPurchasable = errors.New("box is not purchasable")
	// ErrMissingOrderNo is returned when a cash shipping fee carries no
	// gateway order number.
	ErrMissingOrderNo = errors.New("external order number required for cash payment")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPaymentNotCompleted is returned for a gateway callback that does not
	// report a completed payment.
	ErrPaymentNotCompleted = errors.New("payment not completed")
)

// Repository describes the data access contract used by the service.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	GetBoxWithProducts(ctx context.Context, boxID int64) (*model.Box, error)

	PurchaseOrders(ctx context.Context, unit *model.Order, count int, totalPointUsed int64, debitDescription string) ([]int64, error)
	CreateGatewayOrder(ctx context.Context, o *model.Order) (int64, bool, error)
	GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrderByExternalNo(ctx context.Context, externalOrderNo string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64, status model.OrderStatus) ([]model.Order, error)
	GetUnboxedOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetAllUnboxedOrders(ctx context.Context) ([]model.Order, error)
	ClaimUnboxing(ctx context.Context, orderID, productID int64) (bool, error)
	RefundOrder(ctx context.Context, orderID, userID, refundPoint int64, description string) error
	ShipOrder(ctx context.Context, orderID, userID int64, fee model.Money, paymentType model.PaymentType, externalOrderNo string) error
	UpdateTracking(ctx context.Context, orderID int64, number, company string) error
	GetPendingGatewayOrders(ctx context.Context, limit int) ([]model.Order, error)
	PromotePendingOrder(ctx context.Context, orderID int64) (bool, error)

	PointBalance(ctx context.Context, userID int64) (int64, error)
	AppendPointEntry(ctx context.Context, entry *model.PointEntry) (*model.PointEntry, error)
	GetPointsByUser(ctx context.Context, userID int64) ([]model.PointEntry, error)

	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error)
}

// Gateway describes the payment gateway operations the service depends on.
type Gateway interface {
	RequestPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentSession, error)
	GetPaymentStatus(ctx context.Context, orderNo string) (string, error)
}

// lockedSource makes a rand.Rand safe for the concurrent draws of a batch unbox.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Service contains the luckybox business logic.
type Service struct {
	repo    Repository
	gateway Gateway
	drawSrc draw.Source
}

// NewService creates a service with the given repository and payment gateway.
// gw may be nil when no gateway is configured.
func NewService(repo Repository, gw Gateway) *Service {
	return &Service{
		repo:    repo,
		gateway: gw,
		drawSrc: &lockedSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))},
	}
}

// Close closes the service's resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser registers a new user account.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (*model.User, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		return nil, err
	}
	return &model.User{ID: id, Login: login}, nil
}

// AuthenticateUser checks the user's credentials and returns the account.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// GetOrder returns one order, scoped to its owner unless isAdmin.
func (s *Service) GetOrder(ctx context.Context, userID int64, isAdmin bool, orderID int64) (*model.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	return order, nil
}

// GetOrdersByUser returns the user's paid orders.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID, model.OrderStatusPaid)
}

// GetUnboxedOrdersByUser returns the user's orders with a decided draw.
func (s *Service) GetUnboxedOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetUnboxedOrdersByUser(ctx, userID)
}

// GetAllUnboxedOrders returns every decided order. Admin listing.
func (s *Service) GetAllUnboxedOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.GetAllUnboxedOrders(ctx)
}

// PointBalance returns the user's current point balance.
func (s *Service) PointBalance(ctx context.Context, userID int64) (int64, error) {
	return s.repo.PointBalance(ctx, userID)
}

// GetPointsByUser returns the user's ledger history.
func (s *Service) GetPointsByUser(ctx context.Context, userID int64) ([]model.PointEntry, error) {
	return s.repo.GetPointsByUser(ctx, userID)
}

// CreatePointEntry appends a ledger entry on behalf of an admin.
func (s *Service) CreatePointEntry(ctx context.Context, entry *model.PointEntry) (*model.PointEntry, error) {
	if !entry.Type.Valid() {
		return nil, errors.New("invalid point entry type")
	}
	if entry.Amount <= 0 {
		return nil, errors.New("point amount must be positive")
	}
	return s.repo.AppendPointEntry(ctx, entry)
}

// GetNotificationsByUser returns the user's notifications.
func (s *Service) GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error) {
	return s.repo.GetNotificationsByUser(ctx, userID)
}
