package groq

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "deepseek-r1-distill-llama-70b"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

type Client struct {
	apiKey  string
	model   string
	baseURL string

	httpClient *http.Client
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithBaseURL points the client at a different OpenAI-compatible chat
// completions endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(baseURL, "/") }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient builds a streaming chat completions client. When no API key is
// passed explicitly it is read from GROQ_API_KEY.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		model:   DefaultModel,
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		apiKey, ok := os.LookupEnv("GROQ_API_KEY")
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("groq api key not found")
		}
		c.apiKey = apiKey
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
	}

	return c, nil
}

func (c *Client) Model() string { return c.model }

func (c *Client) completionsURL() string {
	return c.baseURL + "/chat/completions"
}

// Complete streams a completion and returns the accumulated text. Reasoning
// that the API returns out of band is folded back into a leading <think>
// block so callers see the same shape regardless of the reasoning format.
func (c *Client) Complete(ctx context.Context, messages []llms.Message) (string, error) {
	var content, reasoning strings.Builder
	for chunk, err := range c.stream(ctx, messages) {
		if err != nil {
			return "", err
		}
		content.WriteString(chunk.content)
		reasoning.WriteString(chunk.reasoning)
	}

	if reasoning.Len() == 0 {
		return content.String(), nil
	}
	return "<think>" + reasoning.String() + "</think>\n" + content.String(), nil
}
