package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a digest or storage key is unknown.
var ErrNotFound = errors.New("not found")

// ErrNoJSON is returned when generated text contains no parseable JSON block.
var ErrNoJSON = errors.New("no JSON block found in response")

// GenErrorKind classifies generation failures. RateLimited and Overloaded are
// retryable with backoff; InvalidInput means the model cannot serve the
// request and retrying is pointless.
type GenErrorKind int

const (
	GenUnknown GenErrorKind = iota
	GenRateLimited
	GenOverloaded
	GenInvalidInput
)

func (k GenErrorKind) String() string {
	switch k {
	case GenRateLimited:
		return "rate_limited"
	case GenOverloaded:
		return "overloaded"
	case GenInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// GenError wraps a generation endpoint failure with its class and model.
type GenError struct {
	Kind  GenErrorKind
	Model string
	Err   error
}

func (e *GenError) Error() string {
	return fmt.Sprintf("generate (%s, model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *GenError) Unwrap() error { return e.Err }

// GenKindOf extracts the failure class from an error chain, falling back to
// status-code sniffing for errors the client could not classify.
func GenKindOf(err error) GenErrorKind {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	s := err.Error()
	switch {
	case strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED"):
		return GenRateLimited
	case strings.Contains(s, "503") || strings.Contains(s, "UNAVAILABLE"):
		return GenOverloaded
	case strings.Contains(s, "400") || strings.Contains(s, "INVALID_ARGUMENT"):
		return GenInvalidInput
	default:
		return GenUnknown
	}
}

// GenerationExhausted reports that every candidate model failed.
type GenerationExhausted struct {
	Details string
}

func (e *GenerationExhausted) Error() string {
	return fmt.Sprintf("all models failed: %s", e.Details)
}
