package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/utils"
)

// Options tune a single generation call. Zero values fall back to the
// client defaults.
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// Usage is the token accounting reported by the API for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CallRecorder receives a best-effort record of every API call for cost
// tracking. Implementations must never block or fail the caller.
type CallRecorder interface {
	RecordCall(ctx context.Context, callType string, model string, usage Usage, success bool, errMsg string)
}

// Client is the LLM/embedding API surface used by the pipeline stages.
// Failures are reported as typed errors (*APIError for HTTP-level failures),
// never as silently truncated output.
type Client interface {
	GenerateText(ctx context.Context, system string, user string, opts Options) (string, error)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any, opts Options) (json.RawMessage, error)
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client
	maxRetries int
	recorder   CallRecorder
}

func NewClient(log *logger.Logger, recorder CallRecorder) (Client, error) {
	apiKey := strings.TrimSpace(utils.GetEnv("OPENAI_API_KEY", "", log))
	if apiKey == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	timeoutSec := utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 120, log)
	return &client{
		log:        log.With("client", "OpenAI"),
		baseURL:    strings.TrimRight(utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log), "/"),
		apiKey:     apiKey,
		model:      utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log),
		embedModel: utils.GetEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small", log),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 2, log),
		recorder:   recorder,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage Usage `json:"usage"`
}

func (c *client) GenerateText(ctx context.Context, system string, user string, opts Options) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    buildMessages(system, user),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	var resp chatResponse
	err := c.do(ctx, "/v1/chat/completions", &req, &resp)
	c.record(ctx, "generate_text", resp.Usage, err)
	if err != nil {
		return "", err
	}
	text, err := extractContent(resp)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any, opts Options) (json.RawMessage, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}
	req := chatRequest{
		Model:       c.model,
		Messages:    buildMessages(system, user),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"schema": schema,
				"strict": true,
			},
		},
	}
	var resp chatResponse
	err := c.do(ctx, "/v1/chat/completions", &req, &resp)
	c.record(ctx, "generate_json", resp.Usage, err)
	if err != nil {
		return nil, err
	}
	text, err := extractContent(resp)
	if err != nil {
		return nil, err
	}
	var probe map[string]any
	if uErr := json.Unmarshal([]byte(text), &probe); uErr != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", uErr)
	}
	return json.RawMessage(text), nil
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}
	req := embeddingsRequest{Model: c.embedModel, Input: clean}
	var resp embeddingsResponse
	err := c.do(ctx, "/v1/embeddings", &req, &resp)
	c.record(ctx, "embed", resp.Usage, err)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("embeddings response missing index %d (requested %d, returned %d)", i, len(clean), len(resp.Data))
		}
	}
	return out, nil
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 2 * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		req, rErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if rErr != nil {
			return rErr
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, dErr := c.httpClient.Do(req)
		if dErr != nil {
			lastErr = dErr
			continue
		}
		data, rdErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if rdErr != nil {
			lastErr = rdErr
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := parseAPIError(resp.StatusCode, data)
			if apiErr.Retryable() && attempt < c.maxRetries {
				c.log.Warn("API call failed, retrying", "path", path, "status", resp.StatusCode, "attempt", attempt+1)
				lastErr = apiErr
				continue
			}
			return apiErr
		}
		return json.Unmarshal(data, out)
	}
	return lastErr
}

func (c *client) record(ctx context.Context, callType string, usage Usage, err error) {
	if c.recorder == nil {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	c.recorder.RecordCall(ctx, callType, c.modelFor(callType), usage, err == nil, errMsg)
}

func (c *client) modelFor(callType string) string {
	if callType == "embed" {
		return c.embedModel
	}
	return c.model
}

func buildMessages(system, user string) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})
	return msgs
}

func extractContent(resp chatResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", choice.Message.Refusal)
	}
	text := choice.Message.Content
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no content in response")
	}
	return text, nil
}

func parseAPIError(status int, data []byte) *APIError {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	msg := envelope.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
		if len(msg) > 300 {
			msg = msg[:300]
		}
	}
	return &APIError{Status: status, Code: envelope.Error.Code, Message: msg}
}
