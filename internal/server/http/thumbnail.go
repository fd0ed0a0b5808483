package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/notflix/aiservice/internal/logger"
	"github.com/notflix/aiservice/internal/service"
	"github.com/notflix/aiservice/internal/xfs"
)

type (
	ThumbnailRequestDTO struct {
		FilePath string `json:"file_path" doc:"Video path, absolute or relative to the media root"`
	}

	ThumbnailInput struct {
		Body ThumbnailRequestDTO
	}

	ThumbnailResponseDTO struct {
		ThumbnailPath string `json:"thumbnail_path"`
	}

	ThumbnailOutput struct {
		Body ThumbnailResponseDTO
	}
)

// ThumbnailHandler handles HTTP requests for thumbnails.
type ThumbnailHandler struct {
	service   *service.Thumbnail
	mediaRoot string
}

// NewThumbnailHandler creates a new ThumbnailHandler instance.
func NewThumbnailHandler(api huma.API, service *service.Thumbnail, mediaRoot string) *ThumbnailHandler {
	h := &ThumbnailHandler{service: service, mediaRoot: mediaRoot}

	huma.Register(api, huma.Operation{
		OperationID:   "generate-thumbnail",
		Method:        http.MethodPost,
		Path:          "/generate_thumbnail",
		Summary:       "Extract one frame of a video as a JPEG next to it",
		Tags:          []string{"thumbnail"},
		DefaultStatus: http.StatusOK,
	}, h.handleGenerate)

	return h
}

func (h *ThumbnailHandler) handleGenerate(ctx context.Context, input *ThumbnailInput) (*ThumbnailOutput, error) {
	videoPath, err := xfs.ResolveWithin(h.mediaRoot, input.Body.FilePath)
	if err != nil {
		return nil, fail(ctx, input.Body.FilePath, err)
	}

	logger.FromContext(ctx).Info("Generating thumbnail", "file", videoPath)

	thumb, err := h.service.Generate(ctx, videoPath)
	if err != nil {
		return nil, fail(ctx, input.Body.FilePath, err)
	}

	return &ThumbnailOutput{Body: ThumbnailResponseDTO{ThumbnailPath: thumb}}, nil
}
