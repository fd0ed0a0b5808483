package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/logger"
	"github.com/notflix/aiservice/internal/service"
	"github.com/notflix/aiservice/internal/xfs"
)

type (
	TranscribeRequestDTO struct {
		FilePath string `json:"file_path" doc:"Bare file name inside the media root"`
		Language string `json:"language,omitempty" doc:"Skip detection and decode in this language" example:"es"`
	}

	TranscribeInput struct {
		Body TranscribeRequestDTO
	}

	TranscribeOutput struct {
		Body *service.TranscriptionResult
	}
)

// Stream events, named after the keys they are registered under.
type (
	LanguageEvent struct {
		Language            string  `json:"language"`
		LanguageProbability float64 `json:"language_probability"`
	}

	SegmentEvent backend.Segment

	ErrorEvent struct {
		Status  int    `json:"status"`
		Detail  string `json:"detail"`
		Message string `json:"message,omitempty"`
	}

	DoneEvent struct {
		Segments int `json:"segments"`
	}
)

// TranscriptionHandler handles HTTP requests for transcription.
type TranscriptionHandler struct {
	service   *service.Transcription
	mediaRoot string
}

// NewTranscriptionHandler creates a new TranscriptionHandler instance.
func NewTranscriptionHandler(api huma.API, service *service.Transcription, mediaRoot string) *TranscriptionHandler {
	h := &TranscriptionHandler{service: service, mediaRoot: mediaRoot}

	huma.Register(api, huma.Operation{
		OperationID:   "transcribe",
		Method:        http.MethodPost,
		Path:          "/transcribe",
		Summary:       "Transcribe an audio file from the media root",
		Tags:          []string{"transcription"},
		DefaultStatus: http.StatusOK,
	}, h.handleTranscribe)

	sse.Register(api, huma.Operation{
		OperationID: "transcribe-stream",
		Method:      http.MethodPost,
		Path:        "/transcribe/stream",
		Summary:     "Transcribe an audio file, one segment per event (SSE)",
		Tags:        []string{"transcription"},
	}, map[string]any{
		"language": LanguageEvent{},
		"segment":  SegmentEvent{},
		"error":    ErrorEvent{},
		"done":     DoneEvent{},
	}, h.handleTranscribeStream)

	return h
}

func (h *TranscriptionHandler) handleTranscribe(ctx context.Context, input *TranscribeInput) (*TranscribeOutput, error) {
	audioPath, err := xfs.BareFilename(h.mediaRoot, input.Body.FilePath)
	if err != nil {
		return nil, fail(ctx, input.Body.FilePath, err)
	}

	logger.FromContext(ctx).Info("Transcribing", "file", audioPath, "language", input.Body.Language)

	result, err := h.service.Transcribe(ctx, audioPath, input.Body.Language)
	if err != nil {
		return nil, fail(ctx, input.Body.FilePath, err)
	}

	return &TranscribeOutput{Body: result}, nil
}

// handleTranscribeStream relays segments as they are decoded. Headers are
// already sent when the handler runs, so failures become an error event.
func (h *TranscriptionHandler) handleTranscribeStream(ctx context.Context, input *TranscribeInput, send sse.Sender) {
	sendErr := func(err error) {
		mapped := fail(ctx, input.Body.FilePath, err)
		event := ErrorEvent{Status: mapped.GetStatus(), Detail: internalErrorDetail, Message: err.Error()}
		if m, ok := mapped.(*huma.ErrorModel); ok {
			event.Detail = m.Detail
		}
		_ = send.Data(event)
	}

	audioPath, err := xfs.BareFilename(h.mediaRoot, input.Body.FilePath)
	if err != nil {
		sendErr(err)
		return
	}

	stream, err := h.service.TranscribeStream(ctx, audioPath, input.Body.Language)
	if err != nil {
		sendErr(err)
		return
	}
	defer stream.Close()

	segments := 0
	for event := range stream.Events() {
		var data any
		switch e := event.(type) {
		case service.LanguageAnnouncement:
			data = LanguageEvent{Language: e.Language, LanguageProbability: e.Probability}
		case service.SegmentChunk:
			segments++
			data = SegmentEvent(e.Segment)
		}
		if err := send.Data(data); err != nil {
			// Client went away. Close drains the rest so the model is released.
			logger.FromContext(ctx).Warn("Stream client disconnected", "error", err)
			return
		}
	}

	if err := stream.Err(); err != nil {
		sendErr(err)
		return
	}
	_ = send.Data(DoneEvent{Segments: segments})
}
