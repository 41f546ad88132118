package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/jmshop/luckybox-system/internal/middleware"
)

// SetupRouter configures the HTTP routes and middleware of the luckybox API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		// Gateway callbacks are authenticated by order number, not by user token.
		r.Post("/gateway/callback", h.GatewayCallback)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/orders", h.PurchaseBox)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/unboxed", h.GetUnboxedOrders)
			r.Post("/orders/unbox/batch", h.UnboxBatch)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/unbox", h.Unbox)
			r.Post("/orders/{id}/shipping", h.PayShipping)

			r.Get("/points", h.GetPoints)
			r.Get("/points/balance", h.GetPointBalance)

			r.Get("/notifications", h.GetNotifications)

			r.Post("/gateway/payment", h.RequestCardPayment)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.RequireAdmin)

				r.Post("/orders/{id}/refund", h.Refund)
				r.Patch("/orders/{id}/tracking", h.UpdateTracking)
				r.Get("/admin/orders/unboxed", h.GetAllUnboxedOrders)
				r.Post("/admin/points", h.CreatePoint)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
