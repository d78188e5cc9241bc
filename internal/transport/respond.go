package transport

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MessageResponse is the body of mutations that return no entity.
type MessageResponse struct {
	Message string `json:"message"`
}

// respondServiceError maps a service error onto a status code. Only errors
// the caller can act on are echoed back; everything else becomes a logged 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var validation *domain.ValidationError

	switch {
	case errors.Is(err, service.ErrForbidden):
		middleware.RespondWithError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrAccountDisabled):
		middleware.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrTokenExpired):
		middleware.RespondWithError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, service.ErrInvalidToken):
		middleware.RespondWithError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, service.ErrLoginUnavailable):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, err.Error(), map[string]any{
			"field": validation.Field,
		})
	case errors.Is(err, domain.ErrApplication):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("Request failed",
			zap.Error(err),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes and validates the JSON body into dst, writing the 400
// itself when that fails.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	if err := middleware.DecodeAndValidate(r, dst); err != nil {
		logger.Debug("Request body rejected", zap.Error(err), zap.String("path", r.URL.Path))
		middleware.RespondWithDecodeError(w, err)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, "invalid "+name, map[string]any{"field": name})
		return uuid.Nil, false
	}
	return id, true
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, "invalid "+name, map[string]any{"field": name})
		return 0, false
	}
	return id, true
}

// callerIdentity returns the identity AuthMiddleware stored. Routes that call
// it are always mounted behind AuthMiddleware.
func callerIdentity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
	}
	return identity, ok
}

// queryParser collects typed query parameters and remembers the first bad
// one.
type queryParser struct {
	values map[string][]string
	err    error
}

func newQueryParser(r *http.Request) *queryParser {
	return &queryParser{values: r.URL.Query()}
}

func (q *queryParser) get(name string) string {
	if v := q.values[name]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (q *queryParser) fail(name, message string) {
	if q.err == nil {
		q.err = &domain.ValidationError{Field: name, Message: message}
	}
}

func (q *queryParser) decimalValue(name string) *decimal.Decimal {
	raw := q.get(name)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		q.fail(name, "must be a decimal number")
		return nil
	}
	return &d
}

// timeValue accepts RFC 3339 timestamps and plain dates.
func (q *queryParser) timeValue(name string) *time.Time {
	raw := q.get(name)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	q.fail(name, "must be an ISO 8601 date or timestamp")
	return nil
}

func (q *queryParser) intValue(name string, fallback int) int {
	raw := q.get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(name, "must be an integer")
		return fallback
	}
	return n
}

func (q *queryParser) boolValue(name string) bool {
	raw := q.get(name)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.fail(name, "must be true or false")
	}
	return b
}

func (q *queryParser) uuidValue(name string) *uuid.UUID {
	raw := q.get(name)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		q.fail(name, "must be a UUID")
		return nil
	}
	return &id
}
