package transfer

import "fmt"

// NetworkError represents transport failures during a range fetch, including
// non-2xx responses, connection failures, and per-chunk timeouts.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "fetch_range")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string // Error message from the server or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}
	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RangeNotSupportedError is returned when a resume offset was requested but
// the server answered with a full-body 200 instead of a 206 partial response.
// Appending a full body at a nonzero offset would corrupt the file.
type RangeNotSupportedError struct {
	URL    string
	Offset int64
}

func (e *RangeNotSupportedError) Error() string {
	return fmt.Sprintf("server ignored range request at offset %d", e.Offset)
}
