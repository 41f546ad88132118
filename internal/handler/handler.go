// Package handler contains the HTTP handlers of the luckybox API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jmshop/luckybox-system/internal/draw"
	"github.com/jmshop/luckybox-system/internal/gateway"
	"github.com/jmshop/luckybox-system/internal/middleware"
	"github.com/jmshop/luckybox-system/internal/model"
	"github.com/jmshop/luckybox-system/internal/repository"
	"github.com/jmshop/luckybox-system/internal/service"
)

// Service defines the business logic contract used by the HTTP handlers.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (*model.User, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)

	PurchaseBox(ctx context.Context, userID int64, req service.PurchaseRequest) ([]model.Order, error)
	GetOrder(ctx context.Context, userID int64, isAdmin bool, orderID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetUnboxedOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetAllUnboxedOrders(ctx context.Context) ([]model.Order, error)

	Unbox(ctx context.Context, userID, orderID int64) (*model.Order, error)
	UnboxBatch(ctx context.Context, userID int64, orderIDs []int64) ([]service.UnboxResult, error)
	RefundOrder(ctx context.Context, orderID, refundRate int64, description string) (int64, error)
	PayShipping(ctx context.Context, userID, orderID int64, req service.ShippingRequest) (*model.Order, error)
	UpdateTracking(ctx context.Context, orderID int64, number, company string) error

	PointBalance(ctx context.Context, userID int64) (int64, error)
	GetPointsByUser(ctx context.Context, userID int64) ([]model.PointEntry, error)
	CreatePointEntry(ctx context.Context, entry *model.PointEntry) (*model.PointEntry, error)

	GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error)

	RequestCardPayment(ctx context.Context, userID, boxID int64) (*gateway.PaymentSession, error)
	HandleGatewayCallback(ctx context.Context, payload gateway.CallbackPayload) (*model.Order, error)
}

// Handler implements the HTTP handlers of the luckybox API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler instance.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

type failureResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Order   *model.Order `json:"order,omitempty"`
}

func (h *Handler) writeFailure(w http.ResponseWriter, status int, message string, order *model.Order) {
	h.writeJSON(w, status, failureResponse{Success: false, Message: message, Order: order})
}

// writeServiceError maps the settlement error taxonomy to HTTP statuses. The
// order, when available, is attached so the client can reconcile its state.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, order *model.Order) {
	switch {
	case errors.Is(err, service.ErrNotOrderOwner):
		h.writeFailure(w, http.StatusForbidden, "order belongs to another user", nil)
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrBoxNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		h.writeFailure(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrAlreadyUnboxed):
		h.writeFailure(w, http.StatusConflict, "order already unboxed", order)
	case errors.Is(err, repository.ErrOrderStateConflict):
		h.writeFailure(w, http.StatusConflict, err.Error(), order)
	case errors.Is(err, repository.ErrDuplicateOrderNo):
		h.writeFailure(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, repository.ErrInsufficientPoints):
		h.writeFailure(w, http.StatusPaymentRequired, err.Error(), nil)
	case errors.Is(err, draw.ErrEmptyPool):
		h.writeFailure(w, http.StatusInternalServerError, "box has no products", nil)
	case errors.Is(err, service.ErrInvalidRefundRate),
		errors.Is(err, service.ErrInvalidBatchSize),
		errors.Is(err, service.ErrInvalidPaymentType),
		errors.Is(err, service.ErrInvalidBoxCount),
		errors.Is(err, service.ErrBoxNotPurchasable),
		errors.Is(err, service.ErrMissingOrderNo),
		errors.Is(err, service.ErrPaymentNotCompleted):
		h.writeFailure(w, http.StatusBadRequest, err.Error(), nil)
	default:
		h.logger.Error("internal error", zap.Error(err))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	UserID  int64  `json:"userId"`
}

// Register handles new user registration and issues a token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" || req.Password == "" {
		h.writeFailure(w, http.StatusBadRequest, "login and password are required", nil)
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			h.writeFailure(w, http.StatusConflict, "login already taken", nil)
			return
		}
		h.logger.Error("register user", zap.Error(err))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	token, err := h.authMiddleware.IssueToken(user.ID, user.IsAdmin)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, authResponse{Success: true, Token: token, UserID: user.ID})
}

// Login authenticates a user and issues a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" || req.Password == "" {
		h.writeFailure(w, http.StatusBadRequest, "login and password are required", nil)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.writeFailure(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		h.logger.Error("login user", zap.Error(err))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	token, err := h.authMiddleware.IssueToken(user.ID, user.IsAdmin)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, authResponse{Success: true, Token: token, UserID: user.ID})
}

// GetPoints returns the user's point ledger history.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	points, err := h.service.GetPointsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get points", zap.Error(err), zap.Int64("userID", userID))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "points": points})
}

// GetPointBalance returns the user's current point balance.
func (h *Handler) GetPointBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	balance, err := h.service.PointBalance(r.Context(), userID)
	if err != nil {
		h.logger.Error("get balance", zap.Error(err), zap.Int64("userID", userID))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "balance": balance})
}

type createPointRequest struct {
	TargetUserID int64           `json:"targetUserId"`
	Type         model.PointType `json:"type"`
	Amount       int64           `json:"amount"`
	Description  string          `json:"description"`
	RelatedOrder *int64          `json:"relatedOrder"`
}

// CreatePoint appends a ledger entry for a user. Admin endpoint.
func (h *Handler) CreatePoint(w http.ResponseWriter, r *http.Request) {
	var req createPointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetUserID == 0 {
		h.writeFailure(w, http.StatusBadRequest, "invalid input", nil)
		return
	}

	entry, err := h.service.CreatePointEntry(r.Context(), &model.PointEntry{
		UserID:         req.TargetUserID,
		Type:           req.Type,
		Amount:         req.Amount,
		Description:    req.Description,
		RelatedOrderID: req.RelatedOrder,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, repository.ErrInsufficientPoints) {
			h.writeServiceError(w, err, nil)
			return
		}
		h.writeFailure(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"point":       entry,
		"totalAmount": entry.TotalAmount,
	})
}

// GetNotifications returns the user's notifications.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	notifications, err := h.service.GetNotificationsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get notifications", zap.Error(err), zap.Int64("userID", userID))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "notifications": notifications})
}
