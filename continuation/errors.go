package continuation

import (
	"errors"
	"fmt"
)

// ErrPrecondition is wrapped by every argument validation error returned from Run.
var ErrPrecondition = errors.New("continuation: precondition violated")

var (
	ErrEmptyPrompt       = fmt.Errorf("%w: empty prompt", ErrPrecondition)
	ErrEmptyModel        = fmt.Errorf("%w: empty model", ErrPrecondition)
	ErrInvalidMaxTokens  = fmt.Errorf("%w: max tokens per call must be positive", ErrPrecondition)
	ErrInvalidMaxRetries = fmt.Errorf("%w: max retries must be positive", ErrPrecondition)
)

// TransportError reports a completion call that could not complete.
type TransportError struct {
	// Call is the 1-based index of the failed call.
	Call int
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("completion call %d failed: %v", e.Call, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
