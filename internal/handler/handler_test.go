package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmshop/luckybox-system/internal/gateway"
	"github.com/jmshop/luckybox-system/internal/middleware"
	"github.com/jmshop/luckybox-system/internal/model"
	"github.com/jmshop/luckybox-system/internal/repository"
	"github.com/jmshop/luckybox-system/internal/service"
)

// stubService returns preset values so handler tests exercise only the HTTP
// layer: routing, auth and status mapping.
type stubService struct {
	user    *model.User
	userErr error

	order    *model.Order
	orderErr error

	orders    []model.Order
	ordersErr error

	batchResults []service.UnboxResult
	batchErr     error

	refundedAmount int64
	refundErr      error

	entry   *model.PointEntry
	balance int64

	session    *gateway.PaymentSession
	sessionErr error
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubService) PurchaseBox(ctx context.Context, userID int64, req service.PurchaseRequest) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubService) GetOrder(ctx context.Context, userID int64, isAdmin bool, orderID int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubService) GetUnboxedOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubService) GetAllUnboxedOrders(ctx context.Context) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubService) Unbox(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) UnboxBatch(ctx context.Context, userID int64, orderIDs []int64) ([]service.UnboxResult, error) {
	return s.batchResults, s.batchErr
}

func (s *stubService) RefundOrder(ctx context.Context, orderID, refundRate int64, description string) (int64, error) {
	return s.refundedAmount, s.refundErr
}

func (s *stubService) PayShipping(ctx context.Context, userID, orderID int64, req service.ShippingRequest) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) UpdateTracking(ctx context.Context, orderID int64, number, company string) error {
	return s.orderErr
}

func (s *stubService) PointBalance(ctx context.Context, userID int64) (int64, error) {
	return s.balance, nil
}

func (s *stubService) GetPointsByUser(ctx context.Context, userID int64) ([]model.PointEntry, error) {
	return nil, nil
}

func (s *stubService) CreatePointEntry(ctx context.Context, entry *model.PointEntry) (*model.PointEntry, error) {
	return s.entry, nil
}

func (s *stubService) GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error) {
	return nil, nil
}

func (s *stubService) RequestCardPayment(ctx context.Context, userID, boxID int64) (*gateway.PaymentSession, error) {
	return s.session, s.sessionErr
}

func (s *stubService) HandleGatewayCallback(ctx context.Context, payload gateway.CallbackPayload) (*model.Order, error) {
	return s.order, s.orderErr
}

func newTestRouter(t *testing.T, svc Service) (http.Handler, string, string) {
	t.Helper()

	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(svc, zap.NewNop(), auth)

	userToken, err := auth.IssueToken(1, false)
	require.NoError(t, err)
	adminToken, err := auth.IssueToken(99, true)
	require.NoError(t, err)

	return h.SetupRouter(), userToken, adminToken
}

func doRequest(router http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decidedOrder(id int64) *model.Order {
	now := time.Now()
	return &model.Order{
		ID:     id,
		UserID: 1,
		Status: model.OrderStatusPaid,
		Unboxed: model.UnboxedProduct{
			Product:   &model.Product{ID: 101, Name: "keyring"},
			DecidedAt: &now,
		},
	}
}

func TestUnboxStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		wantStatus int
		wantOrder  bool
	}{
		{
			name:       "success",
			svc:        &stubService{order: decidedOrder(5)},
			wantStatus: http.StatusOK,
			wantOrder:  true,
		},
		{
			name:       "already unboxed returns original outcome",
			svc:        &stubService{order: decidedOrder(5), orderErr: service.ErrAlreadyUnboxed},
			wantStatus: http.StatusConflict,
			wantOrder:  true,
		},
		{
			name:       "not owner",
			svc:        &stubService{orderErr: service.ErrNotOrderOwner},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "not found",
			svc:        &stubService{orderErr: repository.ErrOrderNotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "state conflict",
			svc:        &stubService{order: &model.Order{ID: 5, Status: model.OrderStatusPending}, orderErr: repository.ErrOrderStateConflict},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, token, _ := newTestRouter(t, tt.svc)

			w := doRequest(router, http.MethodPost, "/api/orders/5/unbox", token, nil)
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp struct {
				Success bool         `json:"success"`
				Order   *model.Order `json:"order"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

			if tt.wantOrder {
				require.NotNil(t, resp.Order)
				assert.Equal(t, int64(101), resp.Order.Unboxed.Product.ID)
			}
			assert.Equal(t, tt.wantStatus == http.StatusOK, resp.Success)
		})
	}
}

func TestUnboxRequiresAuth(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubService{})

	w := doRequest(router, http.MethodPost, "/api/orders/5/unbox", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnboxBatchPerItemResults(t *testing.T) {
	svc := &stubService{
		batchResults: []service.UnboxResult{
			{OrderID: 1, Order: decidedOrder(1)},
			{OrderID: 2, Err: repository.ErrOrderStateConflict},
			{OrderID: 3, Order: decidedOrder(3)},
		},
	}
	router, token, _ := newTestRouter(t, svc)

	w := doRequest(router, http.MethodPost, "/api/orders/unbox/batch", token,
		map[string]any{"orderIds": []int64{1, 2, 3}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Results []struct {
			OrderID int64  `json:"orderId"`
			Success bool   `json:"success"`
			Message string `json:"message"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 3)

	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
	assert.NotEmpty(t, resp.Results[1].Message)
	assert.True(t, resp.Results[2].Success)
}

func TestUnboxBatchTooLarge(t *testing.T) {
	router, token, _ := newTestRouter(t, &stubService{batchErr: service.ErrInvalidBatchSize})

	w := doRequest(router, http.MethodPost, "/api/orders/unbox/batch", token,
		map[string]any{"orderIds": make([]int64, 11)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseBoxCreated(t *testing.T) {
	svc := &stubService{orders: []model.Order{{ID: 1, Status: model.OrderStatusPaid}, {ID: 2, Status: model.OrderStatusPaid}}}
	router, token, _ := newTestRouter(t, svc)

	w := doRequest(router, http.MethodPost, "/api/orders", token,
		map[string]any{"boxId": 10, "boxCount": 2, "paymentType": "card", "paymentAmount": 20000})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool          `json:"success"`
		Orders  []model.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Orders, 2)
}

func TestRefundAdminOnly(t *testing.T) {
	svc := &stubService{refundedAmount: 7200}
	router, userToken, adminToken := newTestRouter(t, svc)

	body := map[string]any{"refundRate": 60}

	w := doRequest(router, http.MethodPost, "/api/orders/5/refund", userToken, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodPost, "/api/orders/5/refund", adminToken, body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success        bool  `json:"success"`
		RefundedAmount int64 `json:"refundedAmount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(7200), resp.RefundedAmount)
}

func TestRefundBadRate(t *testing.T) {
	router, _, adminToken := newTestRouter(t, &stubService{refundErr: service.ErrInvalidRefundRate})

	w := doRequest(router, http.MethodPost, "/api/orders/5/refund", adminToken,
		map[string]any{"refundRate": 101})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterIssuesToken(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubService{user: &model.User{ID: 7, Login: "buyer"}})

	w := doRequest(router, http.MethodPost, "/api/auth/register", "",
		map[string]any{"login": "buyer", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, int64(7), resp.UserID)
}

func TestRegisterDuplicateLogin(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubService{userErr: repository.ErrUserExists})

	w := doRequest(router, http.MethodPost, "/api/auth/register", "",
		map[string]any{"login": "buyer", "password": "secret"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGatewayCallback(t *testing.T) {
	t.Run("confirms payment", func(t *testing.T) {
		router, _, _ := newTestRouter(t, &stubService{order: &model.Order{ID: 5, Status: model.OrderStatusPaid}})

		w := doRequest(router, http.MethodPost, "/api/gateway/callback", "",
			map[string]any{"order_no": "order_abc", "payment_result": "paid"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects failed payment", func(t *testing.T) {
		router, _, _ := newTestRouter(t, &stubService{orderErr: service.ErrPaymentNotCompleted})

		w := doRequest(router, http.MethodPost, "/api/gateway/callback", "",
			map[string]any{"order_no": "order_abc", "payment_result": "failed"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		router, _, _ := newTestRouter(t, &stubService{})

		w := doRequest(router, http.MethodPost, "/api/gateway/callback", "", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestShippingMissingOrderNo(t *testing.T) {
	router, token, _ := newTestRouter(t, &stubService{orderErr: service.ErrMissingOrderNo})

	w := doRequest(router, http.MethodPost, "/api/orders/5/shipping", token,
		map[string]any{"paymentType": "card", "deliveryFee": map[string]int64{"cash": 3000}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
