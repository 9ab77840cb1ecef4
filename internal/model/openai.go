package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultBaseURL points at a locally hosted OpenAI-compatible server.
const DefaultBaseURL = "http://127.0.0.1:1234/v1"

// OpenAIConfig configures an OpenAI-compatible chat-completion client.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration // per request; 0 leaves only ctx in charge
}

// OpenAIClient talks to any endpoint implementing the chat-completions API,
// including local servers such as LM Studio or llama.cpp.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the given endpoint.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// Model returns the configured model identifier.
func (o *OpenAIClient) Model() string {
	return o.cfg.Model
}

// Send implements Client.
func (o *OpenAIClient) Send(ctx context.Context, turns []Turn) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    toMessages(turns),
		Temperature: o.cfg.Temperature,
	}
	if o.cfg.MaxTokens > 0 {
		req.MaxTokens = o.cfg.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &Error{Kind: KindMalformed, Err: ErrNoChoices}
	}
	return resp.Choices[0].Message.Content, nil
}

func toMessages(turns []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		switch t.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return msgs
}

// classify maps transport and protocol failures onto the ErrorKind taxonomy.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{Kind: KindMalformed, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindNetwork, Err: fmt.Errorf("endpoint returned status %d: %w", apiErr.HTTPStatusCode, err)}
	}
	return &Error{Kind: KindNetwork, Err: err}
}
