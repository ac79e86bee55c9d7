package texttospeech

import (
	"context"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
)

// Speech is mono linear16 audio produced for one piece of text.
type Speech struct {
	Samples    []int16
	SampleRate int
}

func (s Speech) Duration() time.Duration {
	return audio.EncodingInfo{SampleRate: s.SampleRate, Format: audio.EncodingLinear16}.Duration(len(s.Samples))
}

// Synthesizer renders text to speech. The sample rate is fixed per instance.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Speech, error)
}

type TextToSpeechOptions struct {
	EncodingInfo audio.EncodingInfo
}

type TextToSpeechOption func(*TextToSpeechOptions)

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		o.EncodingInfo = encodingInfo
	}
}

func WithSampleRate(sampleRate int) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		o.EncodingInfo.SampleRate = sampleRate
	}
}
