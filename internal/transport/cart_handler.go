package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AddToCartRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

// CartResponse is a priced view of the cart.
type CartResponse struct {
	UserID string            `json:"user_id"`
	Items  []domain.CartLine `json:"items"`
	Total  decimal.Decimal   `json:"total"`
}

type CartHandler struct {
	carts  service.CartService
	logger *zap.Logger
}

func NewCartHandler(carts service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

// RegisterRoutes mounts /cart/{userID}. Only the owner or an admin may use
// a cart.
func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/cart/{userID}", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireOwnerOrAdmin("userID", h.logger))
		r.Get("/", h.List)
		r.Post("/", h.Add)
		r.Delete("/{productID}", h.Remove)
		r.Patch("/{productID}", h.UpdateQuantity)
	})
}

func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	lines, err := h.carts.List(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, CartResponse{
		UserID: userID,
		Items:  lines,
		Total:  domain.SnapshotTotal(lines),
	})
}

// Add puts quantity units of a product in the cart, reserving the stock.
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	result, err := h.carts.Add(r.Context(), chi.URLParam(r, "userID"), uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, result)
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}
	if err := h.carts.Remove(r.Context(), chi.URLParam(r, "userID"), productID); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, MessageResponse{Message: "Item removed from cart successfully!"})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}
	var req UpdateCartItemRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	if err := h.carts.UpdateQuantity(r.Context(), chi.URLParam(r, "userID"), productID, req.Quantity); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, MessageResponse{Message: "Cart item quantity updated successfully!"})
}
