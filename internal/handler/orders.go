package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jmshop/luckybox-system/internal/gateway"
	"github.com/jmshop/luckybox-system/internal/middleware"
	"github.com/jmshop/luckybox-system/internal/model"
	"github.com/jmshop/luckybox-system/internal/service"
)

func orderIDFromURL(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

type purchaseRequest struct {
	BoxID         int64             `json:"boxId"`
	BoxCount      int               `json:"boxCount"`
	PaymentType   model.PaymentType `json:"paymentType"`
	PaymentAmount int64             `json:"paymentAmount"`
	PointUsed     int64             `json:"pointUsed"`
}

// PurchaseBox creates per-unit orders for a box purchase.
func (h *Handler) PurchaseBox(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BoxID == 0 {
		h.writeFailure(w, http.StatusBadRequest, "box id is required", nil)
		return
	}
	if req.BoxCount == 0 {
		req.BoxCount = 1
	}

	orders, err := h.service.PurchaseBox(r.Context(), userID, service.PurchaseRequest{
		BoxID:         req.BoxID,
		BoxCount:      req.BoxCount,
		PaymentType:   req.PaymentType,
		PaymentAmount: req.PaymentAmount,
		PointUsed:     req.PointUsed,
	})
	if err != nil {
		h.writeServiceError(w, err, nil)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "orders": orders})
}

// GetOrders returns the current user's paid orders.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders", zap.Error(err), zap.Int64("userID", userID))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": orders})
}

// GetOrder returns one of the current user's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	orderID, ok := orderIDFromURL(r)
	if !ok {
		h.writeFailure(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}

	order, err := h.service.GetOrder(r.Context(), userID, middleware.IsAdminFromContext(r.Context()), orderID)
	if err != nil {
		h.writeServiceError(w, err, nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

// Unbox runs the draw settlement for one order. Duplicate attempts resolve
// to the original outcome, never a new draw.
func (h *Handler) Unbox(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	orderID, ok := orderIDFromURL(r)
	if !ok {
		h.writeFailure(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}

	order, err := h.service.Unbox(r.Context(), userID, orderID)
	if err != nil {
		h.writeServiceError(w, err, order)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

type batchUnboxRequest struct {
	OrderIDs []int64 `json:"orderIds"`
}

type batchUnboxResult struct {
	OrderID int64        `json:"orderId"`
	Success bool         `json:"success"`
	Order   *model.Order `json:"order,omitempty"`
	Message string       `json:"message,omitempty"`
}

// UnboxBatch settles the draw for several orders, reporting each outcome
// independently.
func (h *Handler) UnboxBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req batchUnboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFailure(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	results, err := h.service.UnboxBatch(r.Context(), userID, req.OrderIDs)
	if err != nil {
		h.writeServiceError(w, err, nil)
		return
	}

	resp := make([]batchUnboxResult, 0, len(results))
	for _, res := range results {
		item := batchUnboxResult{OrderID: res.OrderID, Success: res.Err == nil, Order: res.Order}
		if res.Err != nil {
			item.Message = res.Err.Error()
		}
		resp = append(resp, item)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": resp})
}

// GetUnboxedOrders returns the current user's decided orders.
func (h *Handler) GetUnboxedOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	orders, err := h.service.GetUnboxedOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get unboxed orders", zap.Error(err), zap.Int64("userID", userID))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": orders})
}

// GetAllUnboxedOrders returns every decided order. Admin endpoint.
func (h *Handler) GetAllUnboxedOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetAllUnboxedOrders(r.Context())
	if err != nil {
		h.logger.Error("get all unboxed orders", zap.Error(err))
		h.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "total": len(orders), "orders": orders})
}

type refundRequest struct {
	RefundRate  int64  `json:"refundRate"`
	Description string `json:"description"`
}

// Refund refunds a paid order into points. Admin endpoint.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromURL(r)
	if !ok {
		h.writeFailure(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFailure(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	refunded, err := h.service.RefundOrder(r.Context(), orderID, req.RefundRate, req.Description)
	if err != nil {
		h.writeServiceError(w, err, nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "refundedAmount": refunded})
}

type shippingRequest struct {
	PaymentType     model.PaymentType `json:"paymentType"`
	DeliveryFee     model.Money       `json:"deliveryFee"`
	ExternalOrderNo string            `json:"externalOrderNo"`
}

// PayShipping settles the shipping fee of an unboxed order.
func (h *Handler) PayShipping(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	orderID, ok := orderIDFromURL(r)
	if !ok {
		h.writeFailure(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}

	var req shippingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFailure(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	order, err := h.service.PayShipping(r.Context(), userID, orderID, service.ShippingRequest{
		PaymentType:     req.PaymentType,
		Fee:             req.DeliveryFee,
		ExternalOrderNo: req.ExternalOrderNo,
	})
	if err != nil {
		h.writeServiceError(w, err, order)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

type trackingRequest struct {
	TrackingNumber  string `json:"trackingNumber"`
	TrackingCompany string `json:"trackingCompany"`
}

// UpdateTracking sets shipment tracking details. Admin endpoint.
func (h *Handler) UpdateTracking(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromURL(r)
	if !ok {
		h.writeFailure(w, http.StatusBadRequest, "invalid order id", nil)
		return
	}

	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackingNumber == "" {
		h.writeFailure(w, http.StatusBadRequest, "tracking number is required", nil)
		return
	}

	if err := h.service.UpdateTracking(r.Context(), orderID, req.TrackingNumber, req.TrackingCompany); err != nil {
		h.writeServiceError(w, err, nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "trackingNumber": req.TrackingNumber})
}

type cardPaymentRequest struct {
	BoxID int64 `json:"boxId"`
}

// RequestCardPayment initiates a gateway card payment for a box.
func (h *Handler) RequestCardPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeFailure(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req cardPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BoxID == 0 {
		h.writeFailure(w, http.StatusBadRequest, "box id is required", nil)
		return
	}

	session, err := h.service.RequestCardPayment(r.Context(), userID, req.BoxID)
	if err != nil {
		h.writeServiceError(w, err, nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": session})
}

// GatewayCallback confirms a gateway payment. Repeated callbacks for the
// same order number are acknowledged without a second order.
func (h *Handler) GatewayCallback(w http.ResponseWriter, r *http.Request) {
	var payload gateway.CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.OrderNo == "" {
		h.writeFailure(w, http.StatusBadRequest, "invalid callback payload", nil)
		return
	}

	order, err := h.service.HandleGatewayCallback(r.Context(), payload)
	if err != nil {
		h.writeServiceError(w, err, nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "orderId": order.ID})
}
