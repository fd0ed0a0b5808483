// Package service implements the model-backed operations of the gateway on
// top of the per-family model registries.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/model"
	"github.com/notflix/aiservice/internal/xfs"
)

// TranscriptionResult is a complete transcription.
type TranscriptionResult struct {
	Segments            []backend.Segment `json:"segments"`
	Language            string            `json:"language"`
	LanguageProbability float64           `json:"language_probability"`
}

// TranscriptEvent is either a LanguageAnnouncement or a SegmentChunk.
type TranscriptEvent interface {
	transcriptEvent()
}

// LanguageAnnouncement is always the first event of a stream.
type LanguageAnnouncement struct {
	Language    string
	Probability float64
}

// SegmentChunk carries one segment in the order the model produced it.
type SegmentChunk struct {
	backend.Segment
}

func (LanguageAnnouncement) transcriptEvent() {}
func (SegmentChunk) transcriptEvent()         {}

// TranscriptStream is a forward-only, single-consumer sequence of events. The
// speech model stays locked until the sequence ends, so callers must either
// drain Events or call Close. A stream cannot be restarted.
type TranscriptStream struct {
	events  chan TranscriptEvent
	abandon chan struct{}
	once    sync.Once
	done    chan struct{}
	err     error
}

// Events returns the event channel. It is closed when the model is done.
func (s *TranscriptStream) Events() <-chan TranscriptEvent { return s.events }

// Err reports why the stream ended early. Valid once Events is closed.
func (s *TranscriptStream) Err() error {
	<-s.done
	return s.err
}

// Close discards remaining events and waits until the model is released.
func (s *TranscriptStream) Close() error {
	s.once.Do(func() { close(s.abandon) })
	for range s.events {
	}
	<-s.done
	return nil
}

// Transcription serves the single speech model.
type Transcription struct {
	models *model.Registry[model.Name, backend.SpeechModel]
	key    model.Name
	logger *slog.Logger
}

// NewTranscription creates the service for the named speech model.
func NewTranscription(models *model.Registry[model.Name, backend.SpeechModel], modelName string, logger *slog.Logger) *Transcription {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcription{models: models, key: model.Name(modelName), logger: logger}
}

// Preload loads the speech model eagerly.
func (s *Transcription) Preload(ctx context.Context) error {
	return s.models.Preload(ctx, s.key)
}

// Transcribe decodes the whole file. With a language hint detection is
// skipped and the probability is reported as 1.
func (s *Transcription) Transcribe(ctx context.Context, audioPath, languageHint string) (*TranscriptionResult, error) {
	stream, err := s.TranscribeStream(ctx, audioPath, languageHint)
	if err != nil {
		return nil, err
	}

	result := &TranscriptionResult{Segments: []backend.Segment{}}
	for ev := range stream.Events() {
		switch ev := ev.(type) {
		case LanguageAnnouncement:
			result.Language = ev.Language
			result.LanguageProbability = ev.Probability
		case SegmentChunk:
			result.Segments = append(result.Segments, ev.Segment)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// TranscribeStream starts a transcription and returns its event stream.
// Failures before the model starts are returned directly; later ones are
// reported by the stream's Err.
func (s *Transcription) TranscribeStream(ctx context.Context, audioPath, languageHint string) (*TranscriptStream, error) {
	if !xfs.Exists(audioPath) {
		return nil, &ResourceMissingError{Path: audioPath}
	}

	h, err := s.models.Acquire(ctx, s.key)
	if err != nil {
		return nil, err
	}

	release, err := h.Hold(ctx)
	if err != nil {
		return nil, err
	}

	chunks, err := h.Runtime().TranscribeStream(ctx, &backend.TranscribeRequest{AudioPath: audioPath, Language: languageHint})
	if err != nil {
		release(err)
		return nil, &TranscriptionFailed{AudioPath: audioPath, Err: err}
	}

	stream := &TranscriptStream{
		events:  make(chan TranscriptEvent),
		abandon: make(chan struct{}),
		done:    make(chan struct{}),
	}

	go func() {
		err := s.relay(stream, chunks, audioPath, languageHint)
		release(err)
		stream.err = err
		close(stream.done)
		close(stream.events)
	}()

	return stream, nil
}

// relay forwards model chunks until the model is done. Once the consumer
// abandons the stream, chunks are still drained so the model finishes.
func (s *Transcription) relay(stream *TranscriptStream, chunks <-chan backend.SpeechChunk, audioPath, hint string) error {
	var (
		err       error
		announced bool
	)

	emit := func(ev TranscriptEvent) {
		select {
		case stream.events <- ev:
		case <-stream.abandon:
		}
	}

	for chunk := range chunks {
		switch {
		case err != nil:
			// keep draining
		case chunk.Done:
			if chunk.Error != nil {
				err = &TranscriptionFailed{AudioPath: audioPath, Err: chunk.Error}
			}
		case chunk.Info != nil:
			ann := LanguageAnnouncement{Language: chunk.Info.Language, Probability: chunk.Info.LanguageProbability}
			if hint != "" {
				ann = LanguageAnnouncement{Language: hint, Probability: 1}
			}
			s.logger.Info("Detected language", "language", ann.Language, "probability", ann.Probability, "file_path", audioPath)
			announced = true
			emit(ann)
		case chunk.Segment != nil:
			if !announced {
				err = &TranscriptionFailed{AudioPath: audioPath, Err: fmt.Errorf("%w: segment before language info", backend.ErrWorkerProtocol)}
				continue
			}
			emit(SegmentChunk{Segment: *chunk.Segment})
		}
	}
	return err
}
