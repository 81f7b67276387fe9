package httpadapter

import (
	"net/http"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrProfileNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrIdentityConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrBudgetExceeded):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrAllAdaptersFailed):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrAdapterTimeout):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrRerankerUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrProfileStoreUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
