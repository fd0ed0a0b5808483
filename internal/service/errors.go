package service

import (
	"errors"
	"fmt"

	"github.com/notflix/aiservice/internal/model"
)

// Error classes. Every error returned by a service matches exactly one.
var (
	// ErrValidation marks malformed input rejected before any model work.
	ErrValidation = errors.New("validation error")
	// ErrResourceMissing marks well-formed input naming a file that is absent.
	ErrResourceMissing = errors.New("resource missing")
	// ErrModelUnavailable marks a model whose artifacts are not deployed.
	ErrModelUnavailable = model.ErrModelUnavailable
	// ErrInferenceFailure marks a model that failed while processing input.
	ErrInferenceFailure = errors.New("inference failure")
	// ErrExternalProcess marks an auxiliary process that failed.
	ErrExternalProcess = errors.New("external process failure")
)

// ValidationError describes rejected input.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ResourceMissingError names a file that should exist but does not.
type ResourceMissingError struct {
	Path string
}

func (e *ResourceMissingError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

func (e *ResourceMissingError) Is(target error) bool { return target == ErrResourceMissing }

// TranscriptionFailed wraps a decode or model error for one audio file.
type TranscriptionFailed struct {
	AudioPath string
	Err       error
}

func (e *TranscriptionFailed) Error() string {
	return fmt.Sprintf("transcription of %s failed: %v", e.AudioPath, e.Err)
}

func (e *TranscriptionFailed) Unwrap() error { return e.Err }

func (e *TranscriptionFailed) Is(target error) bool { return target == ErrInferenceFailure }

// TranslationModelUnavailable reports a directed pair with no model. There
// is no pivoting through a third language.
type TranslationModelUnavailable struct {
	Pair model.Pair
	Err  error
}

func (e *TranslationModelUnavailable) Error() string {
	return fmt.Sprintf("no translation model for %s: %v", e.Pair, e.Err)
}

func (e *TranslationModelUnavailable) Unwrap() error { return e.Err }

func (e *TranslationModelUnavailable) Is(target error) bool { return target == ErrModelUnavailable }

// ExternalProcessFailure reports a failed auxiliary process.
type ExternalProcessFailure struct {
	Process string
	Stderr  string
	Err     error
}

func (e *ExternalProcessFailure) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %v: %s", e.Process, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Process, e.Err)
}

func (e *ExternalProcessFailure) Unwrap() error { return e.Err }

func (e *ExternalProcessFailure) Is(target error) bool { return target == ErrExternalProcess }

func inferenceFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInferenceFailure, err)
}
