package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultListenURL = "wss://api.deepgram.com/v1/listen"
	defaultChunkSize = 8 * 1024

	typeErrorResponse = "Error"

	// closeGracePerMB extends the read deadline after CloseStream for
	// every megabyte sent.
	closeGracePerMB = 2 * time.Second
)

// errConnectionLost marks a socket that ended without a normal close frame.
var errConnectionLost = errors.New("deepgram connection lost")

type TranscriptionClient struct {
	apiKey    string
	listenURL string
	chunkSize int

	options      speechtotext.TranscriptionOptions
	rawEncoding  audio.EncodingInfo
	dialer       *websocket.Dialer
	closeTimeout time.Duration
}

type ClientOption func(*TranscriptionClient)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TranscriptionClient) { c.apiKey = apiKey }
}

// WithListenURL overrides the websocket endpoint.
func WithListenURL(listenURL string) ClientOption {
	return func(c *TranscriptionClient) { c.listenURL = listenURL }
}

// WithRawEncoding sets the encoding used for headerless audio files.
func WithRawEncoding(encoding audio.EncodingInfo) ClientOption {
	return func(c *TranscriptionClient) { c.rawEncoding = encoding }
}

func WithTranscriptionOptions(opts ...speechtotext.TranscriptionOption) ClientOption {
	return func(c *TranscriptionClient) {
		for _, opt := range opts {
			opt(&c.options)
		}
	}
}

func NewTranscriptionClient(opts ...ClientOption) (*TranscriptionClient, error) {
	c := &TranscriptionClient{
		listenURL: defaultListenURL,
		chunkSize: defaultChunkSize,
		options: speechtotext.TranscriptionOptions{
			Model:       "nova-3",
			Language:    "en-US",
			SmartFormat: true,
		},
		rawEncoding:  audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16},
		dialer:       websocket.DefaultDialer,
		closeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("deepgram api key not found")
		}
		c.apiKey = apiKey
	}

	return c, nil
}

// Transcribe streams the file at path to Deepgram and returns every final
// result as a segment. Segments after the first carry a leading space so that
// [speechtotext.Join] yields readable text.
func (c *TranscriptionClient) Transcribe(ctx context.Context, path string) ([]speechtotext.Segment, error) {
	ctx, span := tracer.Start(ctx, "transcribe file")
	defer span.End()
	span.SetAttributes(attribute.String("audio.path", path))

	fail := func(err error) ([]speechtotext.Segment, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return fail(fmt.Errorf("failed to open audio file: %w", err))
	}
	defer file.Close()

	query, err := c.queryParams(path)
	if err != nil {
		return fail(err)
	}

	conn, err := c.connectWebsocket(ctx, query)
	if err != nil {
		return fail(fmt.Errorf("failed to open websocket: %w", err))
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var (
		wg       sync.WaitGroup
		segments []speechtotext.Segment
		readErr  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		segments, readErr = c.readResults(conn)
	}()

	sent, err := c.sendFile(conn, file)
	span.SetAttributes(attribute.Int64("audio.bytes_sent", sent))
	if err != nil {
		_ = conn.Close()
		wg.Wait()
		return fail(err)
	}

	wg.Wait()
	if ctx.Err() != nil {
		return fail(fmt.Errorf("transcription interrupted: %w", ctx.Err()))
	}
	if readErr != nil {
		if !errors.Is(readErr, errConnectionLost) || len(segments) == 0 {
			return fail(readErr)
		}
		span.RecordError(readErr)
		logger.WarnContext(ctx, "deepgram connection ended early, keeping partial transcript",
			"path", path,
			"segments", len(segments),
			"error", readErr,
		)
	}

	span.SetAttributes(attribute.Int("transcript.segments", len(segments)))
	return segments, nil
}

func (c *TranscriptionClient) queryParams(path string) (url.Values, error) {
	queryParams := url.Values{}
	queryParams.Set("model", c.options.Model)
	queryParams.Set("language", c.options.Language)
	queryParams.Set("smart_format", strconv.FormatBool(c.options.SmartFormat))
	queryParams.Set("punctuate", "true")

	if !isContainerFile(path) {
		encoding, err := convertEncoding(c.rawEncoding)
		if err != nil {
			return nil, fmt.Errorf("invalid encoding: %w", err)
		}
		queryParams.Set("encoding", encoding.Format.Name())
		queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
		queryParams.Set("channels", "1")
	}
	return queryParams, nil
}

func (c *TranscriptionClient) connectWebsocket(ctx context.Context, query url.Values) (*websocket.Conn, error) {
	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	listenURL.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (c *TranscriptionClient) sendFile(conn *websocket.Conn, r io.Reader) (int64, error) {
	var sent int64
	buf := make([]byte, c.chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
				return sent, fmt.Errorf("failed to write to deepgram client: %w", err)
			}
			sent += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sent, fmt.Errorf("failed to read audio file: %w", err)
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return sent, fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	grace := c.closeTimeout + time.Duration(sent>>20)*closeGracePerMB
	_ = conn.SetReadDeadline(time.Now().Add(grace))
	return sent, nil
}

func (c *TranscriptionClient) readResults(conn *websocket.Conn) ([]speechtotext.Segment, error) {
	segments := []speechtotext.Segment{}
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return segments, nil
			}
			return segments, fmt.Errorf("%w: failed to read deepgram websocket message: %w", errConnectionLost, err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		segment, ok, err := parseMessage(msg)
		if err != nil {
			return segments, err
		}
		if !ok {
			continue
		}
		if len(segments) > 0 {
			segment.Text = " " + segment.Text
		}
		segments = append(segments, segment)
	}
}

func parseMessage(msg []byte) (speechtotext.Segment, bool, error) {
	var parsedMsg struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return speechtotext.Segment{}, false, nil
	}

	switch parsedMsg.Type {
	case string(api.TypeMessageResponse):
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return speechtotext.Segment{}, false, nil
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return speechtotext.Segment{}, false, nil
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			return speechtotext.Segment{}, false, nil
		}
		return speechtotext.Segment{
			Text:  transcript,
			Start: seconds(msgResp.Start),
			End:   seconds(msgResp.Start + msgResp.Duration),
		}, true, nil

	case typeErrorResponse:
		return speechtotext.Segment{}, false, fmt.Errorf("deepgram error: %s", parsedMsg.Description)
	}

	return speechtotext.Segment{}, false, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
