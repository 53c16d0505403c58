package contract

import (
	"errors"
	"fmt"
	"time"
)

// Analysis error kinds. Only these three propagate to the caller; rule
// failures and $ref resolution failures are handled internally.
var (
	// ErrMissingToolName is returned when a listed tool has no name.
	// The whole batch is rejected.
	ErrMissingToolName = errors.New("tool name missing")

	// ErrTransport wraps loader/transport failures. Analysis does not start.
	ErrTransport = errors.New("transport error")

	// ErrDeadlineExceeded is returned when the overall analysis deadline
	// expires at any pipeline step.
	ErrDeadlineExceeded = errors.New("analysis deadline exceeded")

	// ErrEmbeddingInit is returned when the embedding model cannot be
	// loaded. Concept-anchor initialization is the only fatal embedding
	// failure.
	ErrEmbeddingInit = errors.New("embedding initialization failed")
)

// MissingNameError identifies which item in the batch lacked a name.
func MissingNameError(index int) error {
	return fmt.Errorf("%w: tool at index %d has no name", ErrMissingToolName, index)
}

// TransportError wraps a loader failure with a context message.
func TransportError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransport, msg, err)
}

// TimeoutError names the pipeline step that exceeded the deadline.
func TimeoutError(step string, elapsed time.Duration) error {
	return fmt.Errorf("%w: step %q after %s", ErrDeadlineExceeded, step, elapsed.Round(time.Millisecond))
}
