package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Defaults for the OpenAI-backed oracle.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.1
	DefaultTimeout     = 30 * time.Second
)

// Config configures the OpenAI-backed oracle.
type Config struct {
	// APIKey authenticates against the API.
	APIKey string
	// BaseURL overrides the API endpoint (for OpenAI-compatible servers).
	BaseURL string
	// Model is the chat model used for all three transforms.
	Model string
	// Temperature keeps transforms near-deterministic when low.
	Temperature float32
	// Timeout bounds every individual call.
	Timeout time.Duration
}

// Client is an Oracle backed by an OpenAI-compatible chat model.
type Client struct {
	api     *openai.Client
	model   string
	temp    float32
	timeout time.Duration
}

var _ Oracle = (*Client)(nil)

// NewClient creates an OpenAI-backed oracle.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:     openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		temp:    cfg.Temperature,
		timeout: cfg.Timeout,
	}, nil
}

// Rewrite implements Oracle.
func (c *Client) Rewrite(ctx context.Context, query, recentContext string) (Rewrite, error) {
	if len(recentContext) > MaxRewriteContext {
		recentContext = recentContext[:MaxRewriteContext]
	}

	text, err := c.complete(ctx, rewriteSystemPrompt, fmt.Sprintf(rewriteUserPrompt, query, recentContext))
	if err != nil {
		return Rewrite{}, err
	}

	var parsed Rewrite
	if err := extractJSON(text, &parsed); err != nil {
		return Rewrite{}, fmt.Errorf("%w: rewrite: %s", ErrOracle, err)
	}
	if parsed.Rewritten == "" {
		parsed.Rewritten = query
	}
	return parsed, nil
}

// scoreFallbackRegex extracts a bare number when the model skips the JSON
// envelope and answers "7" or "7.5/10".
var scoreFallbackRegex = regexp.MustCompile(`(\d+\.?\d*)`)

// ScoreRelevance implements Oracle.
func (c *Client) ScoreRelevance(ctx context.Context, query, passage string) (float64, error) {
	if len(passage) > MaxRerankPassage {
		passage = passage[:MaxRerankPassage]
	}

	text, err := c.complete(ctx, rerankSystemPrompt, fmt.Sprintf(rerankUserPrompt, query, passage))
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if jsonErr := extractJSON(text, &parsed); jsonErr == nil {
		return clampScore(parsed.Score), nil
	}

	if m := scoreFallbackRegex.FindString(text); m != "" {
		if score, parseErr := strconv.ParseFloat(m, 64); parseErr == nil {
			return clampScore(score), nil
		}
	}
	return 0, fmt.Errorf("%w: rerank: unparseable score %q", ErrOracle, truncate(text, 80))
}

// Compress implements Oracle.
func (c *Client) Compress(ctx context.Context, query, content string) (string, error) {
	if len(content) > MaxCompressContent {
		content = content[:MaxCompressContent]
	}

	text, err := c.complete(ctx, compressSystemPrompt, fmt.Sprintf(compressUserPrompt, query, content))
	if err != nil {
		return "", err
	}
	return text, nil
}

// complete runs one chat completion under the client timeout.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temp,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOracle, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrOracle)
	}

	slog.Debug("oracle_completion",
		slog.String("model", c.model),
		slog.Duration("duration", time.Since(start)))

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
