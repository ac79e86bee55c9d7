package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrEmptySpeech = errors.New("deepgram returned no audio")

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

// Synthesize opens a speak connection, sends the text followed by a flush
// and collects audio until Deepgram reports the flush as done.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string) (texttospeech.Speech, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.voice", string(c.voice)),
		attribute.Int("request.text_length", len(text)),
	)

	fail := func(err error) (texttospeech.Speech, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return texttospeech.Speech{}, err
	}

	conn, err := c.connectWebsocket(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to open websocket: %w", err))
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		return fail(fmt.Errorf("failed to send websocket speak message: %w", err))
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		return fail(fmt.Errorf("failed to send websocket flush message: %w", err))
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.flushTimeout))

	pcm, err := c.readUntilFlushed(conn)
	if err != nil {
		if ctx.Err() != nil {
			return fail(fmt.Errorf("speech synthesis interrupted: %w", ctx.Err()))
		}
		return fail(err)
	}

	if err := conn.WriteJSON(closeMsg); err != nil {
		logger.WarnContext(ctx, "failed to send close message to deepgram websocket", "error", err)
	}

	if len(pcm) < 2 {
		return fail(ErrEmptySpeech)
	}

	speech := texttospeech.Speech{
		Samples:    audio.PCMToSamples(pcm),
		SampleRate: c.options.EncodingInfo.SampleRate,
	}
	span.SetAttributes(attribute.Float64("response.audio_seconds", speech.Duration().Seconds()))
	return speech, nil
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context) (*websocket.Conn, error) {
	speakURL, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", c.options.EncodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.options.EncodingInfo.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (c *TextToSpeechClient) readUntilFlushed(conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			pcm = append(pcm, msg...)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
				ErrMsg      string `json:"err_msg"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Warn("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				return pcm, nil
			case "Warning":
				logger.Warn("deepgram speak warning", "description", parsedMsg.Description)
			case "Error":
				description := parsedMsg.Description
				if description == "" {
					description = parsedMsg.ErrMsg
				}
				return nil, fmt.Errorf("deepgram error: %s", description)
			}
		}
	}
}
