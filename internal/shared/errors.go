package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrAuthFailed         = fmt.Errorf("authentication failed")

	// Cache and database errors
	ErrCacheUnavailable = fmt.Errorf("cache unavailable")
	ErrBlobNotFound     = fmt.Errorf("cached blob not found")
	ErrDatabase         = fmt.Errorf("database error")

	// Fetch errors
	ErrFetchFailed    = fmt.Errorf("fetch failed")
	ErrResponseStatus = fmt.Errorf("unexpected response status")
	ErrTooLarge       = fmt.Errorf("response exceeds size limit")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// Server errors
	ErrJobNotFound = fmt.Errorf("job not found")
	ErrJobClosed   = fmt.Errorf("job closed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
