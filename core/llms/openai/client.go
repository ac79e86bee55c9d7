package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultBaseURL targets a local Ollama server, which exposes an
	// OpenAI-compatible API.
	DefaultBaseURL = "http://localhost:11434/v1"
	DefaultModel   = "deepseek-r1:8b"
)

type Client struct {
	client *openai.Client

	model       string
	baseURL     string
	apiKey      string
	temperature *float64
	httpClient  *http.Client
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithTemperature(temperature float64) ClientOption {
	return func(c *Client) { c.temperature = &temperature }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a chat completions client. Local servers such as Ollama
// accept any API key, so a missing OPENAI_API_KEY falls back to a placeholder.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		if apiKey, ok := os.LookupEnv("OPENAI_API_KEY"); ok && apiKey != "" {
			c.apiKey = apiKey
		} else {
			c.apiKey = "ollama"
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	client := openai.NewClient(
		option.WithAPIKey(c.apiKey),
		option.WithBaseURL(c.baseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	c.client = &client

	return c
}

func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, messages []llms.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.String("request.base_url", c.baseURL),
		attribute.Int("request.messages", len(messages)),
	)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toParams(messages),
	}
	if c.temperature != nil {
		params.Temperature = param.NewOpt(*c.temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = fmt.Errorf("failed to create chat completion: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(
		attribute.Int64("usage.prompt", resp.Usage.PromptTokens),
		attribute.Int64("usage.completion", resp.Usage.CompletionTokens),
		attribute.Int64("usage.total", resp.Usage.TotalTokens),
	)

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("chat completion returned no choices")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	choice := resp.Choices[0]
	span.SetAttributes(attribute.String("response.finish_reason", choice.FinishReason))
	return choice.Message.Content, nil
}

func toParams(messages []llms.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llms.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llms.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
