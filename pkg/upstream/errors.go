package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrIdleTimeout is returned from a stream read when the upstream sent no
// bytes for longer than the configured idle timeout.
var ErrIdleTimeout = errors.New("upstream idle timeout")

// UpstreamRequestError reports a non-2xx upstream status. It is returned
// before any body byte is handed to the caller.
type UpstreamRequestError struct {
	StatusCode int

	// Body is the (possibly truncated) upstream error body.
	Body []byte
}

func (e *UpstreamRequestError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
