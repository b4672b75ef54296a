package apis

import (
	"errors"
)

const (
	// HTTP Request Fields
	IfMatch = "If-Match"

	// HTTP Response Fields
	Location = "Location"
	ETag     = "ETag"

	// Query parameters
	Filter   = "filter"
	Exploded = "exploded"
	Category = "category"
	Critical = "critical"
	Start    = "start"
	End      = "end"
	Limit    = "limit"
)

var (
	ErrMismatch = errors.New("resource mismatch")
	ErrInternal = errors.New("internal error")
)
