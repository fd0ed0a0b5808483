package http

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/notflix/aiservice/internal/logger"
	"github.com/notflix/aiservice/internal/service"
	"github.com/notflix/aiservice/internal/xfs"
)

const internalErrorDetail = "Internal AI Service Error"

// fail logs err and maps it onto a status: rejected input is 400 or 422,
// everything else is 500.
func fail(ctx context.Context, identifier string, err error) huma.StatusError {
	log := logger.FromContext(ctx).With("identifier", identifier, "error", err)

	switch {
	case errors.Is(err, xfs.ErrEmptyPath), errors.Is(err, xfs.ErrUnsafePath):
		log.Warn("Rejected unsafe path")
		return huma.Error400BadRequest("invalid file path", err)
	case errors.Is(err, xfs.ErrOutsideRoot):
		log.Warn("Rejected path outside media root")
		return huma.Error422UnprocessableEntity("path is outside the media root", err)
	case errors.Is(err, service.ErrValidation):
		log.Warn("Rejected request")
		return huma.Error422UnprocessableEntity(err.Error(), err)
	}

	log.Error("Request failed")
	return huma.Error500InternalServerError(internalErrorDetail, err)
}
