package models

import "errors"

// Common errors for drop and storage operations.
var (
	// Drop errors
	ErrDropNotFound  = errors.New("drop not found")
	ErrSlugTaken     = errors.New("slug already taken")
	ErrSlugExhausted = errors.New("slug generation retries exhausted")
	ErrSlugInvalid   = errors.New("slug is invalid")

	// Access errors
	ErrAuthRequired     = errors.New("authentication required")
	ErrForbidden        = errors.New("access forbidden")
	ErrPasswordRequired = errors.New("password required")
	ErrPasswordInvalid  = errors.New("password invalid")

	// Upload errors
	ErrSizeLimitExceeded = errors.New("upload exceeds size limit")
	ErrValidation        = errors.New("validation failed")

	// Storage errors
	ErrBlobNotFound = errors.New("blob not found")
	ErrRangeInvalid = errors.New("byte range invalid")
	ErrStorage      = errors.New("storage failure")

	// Concurrency errors
	ErrConflict = errors.New("concurrent modification rejected")

	// API key errors
	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrAPIKeyInvalid  = errors.New("api key invalid")
)
