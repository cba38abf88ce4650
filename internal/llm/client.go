package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RichardoC/chatpad/internal/config"
	"github.com/RichardoC/chatpad/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoAPIKey is reported when no API key is configured.
var ErrNoAPIKey = errors.New("LLM API key is not configured")

// MalformedResponseError means the endpoint answered but the reply text
// could not be found in the response. Body is the response as received.
type MalformedResponseError struct {
	Body string
}

func (e *MalformedResponseError) Error() string {
	return "response has no choices[0].message.content: " + e.Body
}

// Result is the outcome of one completion: either Content, or Err
// describing why there is none.
type Result struct {
	Content string
	Err     error
}

func (r Result) OK() bool { return r.Err == nil }

// Text returns the reply on success and a human-readable stand-in on failure.
func (r Result) Text() string {
	if r.Err == nil {
		return r.Content
	}
	var malformed *MalformedResponseError
	switch {
	case errors.Is(r.Err, ErrNoAPIKey):
		return "Error: " + ErrNoAPIKey.Error()
	case errors.As(r.Err, &malformed):
		return malformed.Body
	default:
		return fmt.Sprintf("AI service is temporarily unavailable, please try again later. Error: %v", r.Err)
	}
}

// Completer produces an assistant reply for a conversation history.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage, model string) Result
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	llm          llms.Model
	defaultModel string
	timeout      time.Duration
}

// NewClient builds a client from cfg. An empty API key is not an error: the
// client is created and every call reports ErrNoAPIKey.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	c := &Client{defaultModel: cfg.DefaultModel, timeout: cfg.Timeout}
	if cfg.APIKey == "" {
		return c, nil
	}

	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.DefaultModel),
		openai.WithHTTPClient(&recordingDoer{client: http.DefaultClient}),
	)
	if err != nil {
		return nil, err
	}
	c.llm = llm
	return c, nil
}

// Complete never returns an error or panics; failures are carried in the
// Result.
func (c *Client) Complete(ctx context.Context, messages []models.ChatMessage, model string) (result Result) {
	if c.llm == nil {
		return Result{Err: ErrNoAPIKey}
	}
	if model == "" {
		model = c.defaultModel
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			result = Result{Err: fmt.Errorf("completion panicked: %v", r)}
		}
	}()

	ctx, raw := withRawResponse(ctx)
	resp, err := c.llm.GenerateContent(ctx, toMessageContent(messages), llms.WithModel(model))
	if err != nil {
		// A 2xx JSON answer that still failed has no usable choices.
		if status, body := raw.get(); status >= 200 && status < 300 && json.Valid(body) {
			return Result{Err: &MalformedResponseError{Body: string(body)}}
		}
		return Result{Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0] == nil || strings.TrimSpace(resp.Choices[0].Content) == "" {
		_, body := raw.get()
		if len(body) == 0 {
			body = []byte(rawJSON(resp))
		}
		return Result{Err: &MalformedResponseError{Body: string(body)}}
	}
	return Result{Content: resp.Choices[0].Content}
}

func toMessageContent(messages []models.ChatMessage) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}
	return content
}

func rawJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
