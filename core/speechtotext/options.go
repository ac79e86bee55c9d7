package speechtotext

import (
	"context"
	"strings"
	"time"
)

// Segment is one timed piece of a transcript.
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Transcriber turns a recorded audio file into an ordered list of segments.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]Segment, error)
}

// Join concatenates segment texts in order, ignoring timing.
func Join(segments []Segment) string {
	var text strings.Builder
	for _, segment := range segments {
		text.WriteString(segment.Text)
	}
	return text.String()
}

type TranscriptionOptions struct {
	Model       string
	Language    string
	SmartFormat bool
}

type TranscriptionOption func(*TranscriptionOptions)

func WithModel(model string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Model = model
	}
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}

func WithSmartFormat(smartFormat bool) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SmartFormat = smartFormat
	}
}
