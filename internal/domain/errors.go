// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a state conflict (e.g. an illegal outcome transition).
var ErrConflict = errors.New("conflict: resource state does not allow this operation")

// ErrValidation indicates the caller supplied invalid input.
var ErrValidation = errors.New("validation failed")

// ErrUnavailable indicates an external collaborator could not serve the request.
var ErrUnavailable = errors.New("upstream unavailable")
