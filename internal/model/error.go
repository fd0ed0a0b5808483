package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error definitions for the model package.
var (
	ErrModelUnavailable = errors.New("model unavailable")
	ErrNoCandidates     = errors.New("no candidate artifacts configured")
	ErrRegistryClosed   = errors.New("model registry closed")
)

// ModelUnavailableError reports that no candidate artifact could be loaded
// for a key. It matches ErrModelUnavailable.
type ModelUnavailableError struct {
	Family     string
	Key        string
	Candidates []string
	Err        error
}

func (e *ModelUnavailableError) Error() string {
	msg := fmt.Sprintf("%s model unavailable for %q", e.Family, e.Key)
	if len(e.Candidates) > 0 {
		msg += " (tried " + strings.Join(e.Candidates, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }
