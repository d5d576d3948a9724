package server

import (
	"errors"
	"net/http"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
)

// statusFromError maps engine errors onto HTTP status codes. Unknown errors
// surface as 500.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, lending.ErrUnsupportedAsset):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrAssetInactive),
		errors.Is(err, lending.ErrZeroAmount):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrInsufficientBalance),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrExceedsBorrowCapacity),
		errors.Is(err, lending.ErrUndercollateralized),
		errors.Is(err, lending.ErrPositionHealthy),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrNoDebt):
		return http.StatusConflict
	case errors.Is(err, lending.ErrStalePrice):
		return http.StatusFailedDependency
	case errors.Is(err, lending.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
