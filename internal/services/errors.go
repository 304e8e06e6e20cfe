// Package services implements the notification dispatch core: condition
// evaluation, deduplication, token registry, fan-out, and the warning
// pipeline that ties them together. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrUnknownKind is returned when a caller names a warning kind the
	// pipeline does not know.
	ErrUnknownKind = errors.New("unknown warning kind")

	// ErrAlreadySent indicates the ledger already holds an entry for the
	// kind within its minimum re-fire interval; the candidate warning was
	// suppressed, not lost.
	ErrAlreadySent = errors.New("warning already sent within the re-fire interval")

	// ErrNoForecastData indicates the weather provider returned a response
	// with no usable forecast records. Treated as "nothing to warn about"
	// by the pipeline; exported for callers that want to distinguish it.
	ErrNoForecastData = errors.New("no forecast data available")
)
