package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AddressFields struct {
	Label       string   `json:"label" validate:"max=50"`
	Unit        string   `json:"unit" validate:"max=20"`
	HouseNumber string   `json:"house_number" validate:"required,max=20"`
	Road        string   `json:"road" validate:"required,max=100"`
	City        string   `json:"city" validate:"required,max=100"`
	State       string   `json:"state" validate:"required,max=100"`
	Postcode    string   `json:"postcode" validate:"required,max=20"`
	Country     string   `json:"country" validate:"required,max=100"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type CreateAddressRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	AddressFields
}

type UpdateAddressRequest struct {
	Label       *string  `json:"label" validate:"omitempty,max=50"`
	Unit        *string  `json:"unit" validate:"omitempty,max=20"`
	HouseNumber *string  `json:"house_number" validate:"omitempty,max=20"`
	Road        *string  `json:"road" validate:"omitempty,max=100"`
	City        *string  `json:"city" validate:"omitempty,max=100"`
	State       *string  `json:"state" validate:"omitempty,max=100"`
	Postcode    *string  `json:"postcode" validate:"omitempty,max=20"`
	Country     *string  `json:"country" validate:"omitempty,max=100"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type AddressResponse struct {
	Message string          `json:"message"`
	Address *domain.Address `json:"address"`
}

type AddressHandler struct {
	addresses service.AddressService
	logger    *zap.Logger
}

func NewAddressHandler(addresses service.AddressService, logger *zap.Logger) *AddressHandler {
	return &AddressHandler{addresses: addresses, logger: logger}
}

// RegisterRoutes mounts /addresses. Ownership of an existing address is
// checked by the service, which has to load the row first.
func (h *AddressHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/addresses", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.Create)
		r.With(middleware.RequireOwnerOrAdmin("userID", h.logger)).Get("/user/{userID}", h.ListForUser)
		r.Put("/{addressID}", h.Update)
		r.Delete("/{addressID}", h.Delete)
	})
}

func (h *AddressHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	var req CreateAddressRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	address, err := h.addresses.Create(r.Context(), identity, req.UserID, domain.AddressParams{
		Label:       req.Label,
		Unit:        req.Unit,
		HouseNumber: req.HouseNumber,
		Road:        req.Road,
		City:        req.City,
		State:       req.State,
		Postcode:    req.Postcode,
		Country:     req.Country,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, AddressResponse{Message: "Address created successfully!", Address: address})
}

func (h *AddressHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.addresses.ListForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, addresses)
}

func (h *AddressHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	addressID, ok := int64Param(w, r, "addressID")
	if !ok {
		return
	}
	var req UpdateAddressRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	address, err := h.addresses.Update(r.Context(), identity, addressID, domain.AddressUpdate{
		Label:       req.Label,
		Unit:        req.Unit,
		HouseNumber: req.HouseNumber,
		Road:        req.Road,
		City:        req.City,
		State:       req.State,
		Postcode:    req.Postcode,
		Country:     req.Country,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, AddressResponse{Message: "Address updated successfully!", Address: address})
}

func (h *AddressHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	addressID, ok := int64Param(w, r, "addressID")
	if !ok {
		return
	}

	if err := h.addresses.Delete(r.Context(), identity, addressID); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, MessageResponse{Message: "Address deleted successfully!"})
}
