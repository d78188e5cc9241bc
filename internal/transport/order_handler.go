package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PlaceOrderRequest represents the order placement payload
type PlaceOrderRequest struct {
	UserID    string `json:"user_id" validate:"required,max=128"`
	AddressID int64  `json:"address_id" validate:"required,gt=0"`
}

type PlaceOrderResponse struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

type ChangeStatusRequest struct {
	NewStatus string `json:"new_status" validate:"required"`
}

type ChangeStatusResponse struct {
	OrderID   string `json:"order_id"`
	NewStatus string `json:"new_status"`
	Message   string `json:"message"`
}

// OrderHandler handles HTTP requests for orders
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// RegisterRoutes mounts the order routes under r. Every route requires a
// token.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	ownerOrAdmin := middleware.RequireOwnerOrAdmin("userID", h.logger)

	r.Route("/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.PlaceOrder)
		r.With(ownerOrAdmin).Get("/cart-items/{userID}", h.CartItemsWithPrices)
		r.With(ownerOrAdmin).Get("/{userID}", h.GetUserOrders)
		r.With(middleware.RequireAdmin(h.logger)).Patch("/{orderID}/status", h.ChangeStatus)
	})
}

// PlaceOrder turns the caller's cart into an order.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req PlaceOrderRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if !identity.CanAccess(req.UserID) {
		h.logger.Warn("User attempted to order for another user",
			zap.String("user_id", identity.UserID),
			zap.String("target_user_id", req.UserID),
		)
		middleware.RespondWithError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), req.UserID, req.AddressID)
	if err != nil {
		h.logger.Debug("Order placement failed", zap.Error(err), zap.String("user_id", req.UserID))
		respondServiceError(w, r, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, PlaceOrderResponse{
		OrderID: order.ID.String(),
		Message: "Order placed successfully!",
	})
}

// GetUserOrders lists a user's orders with the optional query filters.
func (h *OrderHandler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	q := newQueryParser(r)
	query := service.OrderQuery{
		StartDate:      q.timeValue("start_date"),
		EndDate:        q.timeValue("end_date"),
		MinTotal:       q.decimalValue("min_total"),
		MaxTotal:       q.decimalValue("max_total"),
		Status:         q.get("status"),
		OrderBy:        q.get("order_by"),
		OrderDirection: q.get("order_direction"),
	}
	if q.err != nil {
		respondServiceError(w, r, h.logger, q.err)
		return
	}

	orders, err := h.orders.GetUserOrders(r.Context(), chi.URLParam(r, "userID"), query)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) CartItemsWithPrices(w http.ResponseWriter, r *http.Request) {
	lines, err := h.orders.CartItemsWithPrices(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, lines)
}

// ChangeStatus moves an order to a new status. Admin only.
func (h *OrderHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "orderID")
	if !ok {
		return
	}
	var req ChangeStatusRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	order, err := h.orders.ChangeStatus(r.Context(), orderID, req.NewStatus)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ChangeStatusResponse{
		OrderID:   order.ID.String(),
		NewStatus: order.Status.String(),
		Message:   "Order status updated successfully!",
	})
}
