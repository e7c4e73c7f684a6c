package model

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInsufficientData = errors.New("at least two accepted participants with a location are required")
	ErrExternalService  = errors.New("places directory unavailable")
	ErrUnauthorized     = errors.New("not permitted")
	ErrNoSuggestions    = errors.New("no suggested locations")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("already exists")
)
