package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type requestBody struct {
	Model           string    `json:"model"`
	Messages        []message `json:"messages"`
	Stream          bool      `json:"stream"`
	ReasoningFormat *string   `json:"reasoning_format,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role         string  `json:"role,omitempty"`
			Content      string  `json:"content,omitempty"`
			Reasoning    string  `json:"reasoning,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		QueueTime        float64 `json:"queue_time"`
		PromptTokens     int     `json:"prompt_tokens"`
		PromptTime       float64 `json:"prompt_time"`
		CompletionTokens int     `json:"completion_tokens"`
		CompletionTime   float64 `json:"completion_time"`
		TotalTokens      int     `json:"total_tokens"`
		TotalTime        float64 `json:"total_time"`
	} `json:"usage"`
	XGroq *struct {
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	} `json:"x_groq,omitempty"`
}

type streamChunk struct {
	content   string
	reasoning string
}

var tokenCounter, _ = meter.Int64Counter("ema.llm.tokens",
	metric.WithDescription("Tokens consumed by chat completions"),
	metric.WithUnit("{token}"),
)

func (c *Client) stream(ctx context.Context, msgs []llms.Message) iter.Seq2[streamChunk, error] {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(streamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", c.model))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(streamChunk{}, err)
		}

		messages, err := toMessages(msgs)
		if err != nil {
			fail(fmt.Errorf("error converting messages: %w", err))
			return
		}

		reqBody := requestBody{
			Model:    c.model,
			Messages: messages,
			Stream:   true,
		}
		if strings.Contains(c.model, "deepseek") || strings.Contains(c.model, "qwen") {
			raw := "raw"
			reqBody.ReasoningFormat = &raw
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.completionsURL(), bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err != nil {
				span.SetAttributes(attribute.String("error", fmt.Errorf("error reading error body: %w", err).Error()))
			} else {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}

			fail(fmt.Errorf("non-OK HTTP status: %s", resp.Status))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			setRequestToFirstTokenTime(span)

			if len(chunk) == 0 {
				continue
			}

			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				logger.WarnContext(ctx, "skipping malformed completion chunk", "error", err)
				continue
			}

			if len(responseBody.Choices) > 0 {
				delta := responseBody.Choices[0].Delta
				if delta.FinishReason != nil {
					span.SetAttributes(attribute.String("response.finish_reason", *delta.FinishReason))
				}

				if delta.Content != "" || delta.Reasoning != "" {
					if !yield(streamChunk{content: delta.Content, reasoning: delta.Reasoning}, nil) {
						return
					}
				}
			}

			c.recordUsage(ctx, span, responseBody)
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

func (c *Client) recordUsage(ctx context.Context, span trace.Span, responseBody streamingResponseBody) {
	var prompt, completion, total int
	switch {
	case responseBody.Usage != nil:
		prompt = responseBody.Usage.PromptTokens
		completion = responseBody.Usage.CompletionTokens
		total = responseBody.Usage.TotalTokens

		span.SetAttributes(attribute.Float64("usage.queue_time", responseBody.Usage.QueueTime))
		span.SetAttributes(attribute.Float64("usage.prompt_time", responseBody.Usage.PromptTime))
		span.SetAttributes(attribute.Float64("usage.completion_time", responseBody.Usage.CompletionTime))
		span.SetAttributes(attribute.Float64("usage.total_time", responseBody.Usage.TotalTime))
	case responseBody.XGroq != nil && responseBody.XGroq.Usage != nil:
		prompt = responseBody.XGroq.Usage.PromptTokens
		completion = responseBody.XGroq.Usage.CompletionTokens
		total = responseBody.XGroq.Usage.TotalTokens
	default:
		return
	}

	span.SetAttributes(attribute.Int("usage.prompt", prompt))
	span.SetAttributes(attribute.Int("usage.completion", completion))
	span.SetAttributes(attribute.Int("usage.total", total))

	modelAttr := attribute.String("model", c.model)
	tokenCounter.Add(ctx, int64(prompt), metric.WithAttributes(modelAttr, attribute.String("direction", "prompt")))
	tokenCounter.Add(ctx, int64(completion), metric.WithAttributes(modelAttr, attribute.String("direction", "completion")))
}
