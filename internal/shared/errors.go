package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrNotConnected     = fmt.Errorf("platform not connected")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")

	// Platform errors
	ErrTransport          = fmt.Errorf("transport error")
	ErrPartialBatch       = fmt.Errorf("partial batch")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrUnknownPlatform    = fmt.Errorf("unknown platform")

	// Job errors
	ErrJobNotFound   = fmt.Errorf("sync job not found")
	ErrJobInProgress = fmt.Errorf("sync job already running")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// PartialBatchError reports an add operation that stopped part way through.
//
// Added tracks are already on the remote playlist and are not rolled back.
type PartialBatchError struct {
	Added     int
	Requested int
	Err       error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%v: added %d of %d tracks: %v", ErrPartialBatch, e.Added, e.Requested, e.Err)
}

// Is reports ErrPartialBatch so callers can match with [errors.Is].
func (e *PartialBatchError) Is(target error) bool {
	return target == ErrPartialBatch
}

func (e *PartialBatchError) Unwrap() error {
	return e.Err
}

// Classify maps err onto the sync error taxonomy label written to the sync log.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, ErrPartialBatch):
		return "partial_batch"
	case errors.Is(err, ErrTrackNotFound):
		return "not_found"
	case errors.Is(err, ErrPlaylistNotFound):
		return "playlist_not_found"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "error"
	}
}
