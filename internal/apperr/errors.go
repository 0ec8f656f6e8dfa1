// Package apperr holds the error kinds shared by the stores, the asset layer
// and the profile service. Callers wrap them with fmt.Errorf("%w: ...") and
// match them with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound is returned when a user or follow edge does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for duplicate usernames and duplicate follow edges
	ErrConflict = errors.New("conflict")
	// ErrInvalidAsset is returned for missing, empty or non-image uploads
	ErrInvalidAsset = errors.New("invalid asset")
	// ErrSelfReference is returned when a user tries to follow itself
	ErrSelfReference = errors.New("self reference")
	// ErrUpstream is returned when the object store or a remote origin fails
	ErrUpstream = errors.New("upstream failure")
	// ErrValidation is returned for blank queries and malformed or foreign URLs
	ErrValidation = errors.New("validation error")
)

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidAsset),
		errors.Is(err, ErrSelfReference),
		errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
