package narrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are the narrator for a cooperative tabletop role-playing session.
Respond with a single JSON object containing a "narration" field and an optional
"delta" object describing state changes: character hit point and resource pool
updates, status flags, quest transitions, container retrievals, encounter start
or end. Never invent characters that are not in the provided state context,
only retrieve items from containers that exist there, and never exceed a
resource pool's declared maximum.`

// OpenAIClient implements Client against an OpenAI-compatible API
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	log         zerolog.Logger
}

// OpenAIConfig holds configuration for the narrator client
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // Optional, for OpenAI-compatible providers
	Model       string
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// NewOpenAIClient creates a narrator backed by a chat-completion model
func NewOpenAIClient(cfg *OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("narrator API key is required")
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(conf),
		model:       model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		log:         cfg.Logger,
	}, nil
}

// Generate implements Client
func (c *OpenAIClient) Generate(ctx context.Context, req *Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserMessage(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("narrator request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("narrator returned no choices")
	}

	content := StripFences(resp.Choices[0].Message.Content)
	c.log.Debug().Str("kind", string(req.Kind)).Int("bytes", len(content)).Msg("narrator response")
	return []byte(content), nil
}

func buildUserMessage(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request kind: %s\n", req.Kind)
	if req.Action != nil {
		fmt.Fprintf(&b, "Actor: %s\nAction (%s): %s\n", req.Action.Actor, req.Action.Kind, req.Action.Payload)
	}
	if req.StateContext != "" {
		fmt.Fprintf(&b, "Current state:\n%s\n", req.StateContext)
	}
	if req.Correction != "" {
		fmt.Fprintf(&b, "Your previous response failed validation: %s\nReturn a corrected JSON object.\n", req.Correction)
	}
	return b.String()
}

// StripFences removes markdown code fences some models wrap around JSON
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
