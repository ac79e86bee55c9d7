package deepgram

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

const defaultSpeakURL = "wss://api.deepgram.com/v1/speak"

type TextToSpeechClient struct {
	apiKey   string
	speakURL string
	options  texttospeech.TextToSpeechOptions
	voice    deepgramVoice
	dialer   *websocket.Dialer

	flushTimeout time.Duration
}

type ClientOption func(*TextToSpeechClient)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TextToSpeechClient) { c.apiKey = apiKey }
}

func WithVoice(voice string) ClientOption {
	return func(c *TextToSpeechClient) { c.voice = deepgramVoice(voice) }
}

// WithSpeakURL overrides the websocket endpoint.
func WithSpeakURL(speakURL string) ClientOption {
	return func(c *TextToSpeechClient) { c.speakURL = speakURL }
}

func WithTextToSpeechOptions(opts ...texttospeech.TextToSpeechOption) ClientOption {
	return func(c *TextToSpeechClient) {
		for _, opt := range opts {
			opt(&c.options)
		}
	}
}

func NewTextToSpeechClient(opts ...ClientOption) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{
		voice:    defaultVoice,
		speakURL: defaultSpeakURL,
		options: texttospeech.TextToSpeechOptions{
			EncodingInfo: audio.GetDefaultEncodingInfo(),
		},
		dialer:       websocket.DefaultDialer,
		flushTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}

	if !slices.Contains(GetAvailableVoices(), client.voice) {
		return nil, fmt.Errorf("invalid voice %q", client.voice)
	}
	if client.options.EncodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding %q, only linear16 is supported", client.options.EncodingInfo.Format.Name())
	}
	switch client.options.EncodingInfo.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return nil, fmt.Errorf("unsupported sample rate %d", client.options.EncodingInfo.SampleRate)
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("deepgram api key not found")
		}
		client.apiKey = apiKey
	}

	return client, nil
}

func (c *TextToSpeechClient) SampleRate() int { return c.options.EncodingInfo.SampleRate }

func (c *TextToSpeechClient) Voice() string { return string(c.voice) }
