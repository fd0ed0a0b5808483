package backend

import (
	"errors"
	"fmt"
)

// Error definitions for the backend package.
var (
	ErrArtifactNotFound = errors.New("model artifact not found")
	ErrDecode           = errors.New("input could not be decoded")
	ErrWorkerExited     = errors.New("worker process exited")
	ErrWorkerProtocol   = errors.New("worker protocol violation")
	ErrEmptyCommand     = errors.New("worker command is empty")
)

// WorkerError is an error reported by a worker process.
type WorkerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WorkerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("worker: %s", e.Message)
	}
	return fmt.Sprintf("worker: %s: %s", e.Code, e.Message)
}

// Is maps well-known worker codes onto package sentinels.
func (e *WorkerError) Is(target error) bool {
	switch e.Code {
	case "not_found":
		return target == ErrArtifactNotFound
	case "decode_failed":
		return target == ErrDecode
	}
	return false
}
