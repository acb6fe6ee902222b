package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = `You are a trading signal extractor for crypto futures.
Given one social media post, decide whether it carries actionable trading intent.
Respond with exactly one JSON object and nothing else:
{"asset": "<base asset symbol, e.g. BTC>", "direction": "buy" | "sell" | "none", "confidence": <integer 0-100>}
Use direction "none" and confidence 0 when the post is not a tradeable signal.`

// Client wraps the chat completion API used to turn captured posts into
// structured trade outcomes.
type Client struct {
	api        openai.Client
	model      string
	quoteAsset string
}

func NewClient(apiKey, baseURL, model, quoteAsset string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &Client{
		api:        openai.NewClient(opts...),
		model:      model,
		quoteAsset: quoteAsset,
	}
}

// Analyze runs one post through the model. authorNote is optional extra
// context about the account the post came from.
func (c *Client) Analyze(ctx context.Context, text, authorNote string) (*Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return &Outcome{Direction: DirectionNone}, nil
	}
	user := "Post:\n" + text
	if authorNote != "" {
		user += "\n\nContext about the author: " + authorNote
	}
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.1),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	out, err := parseOutcome(resp.Choices[0].Message.Content, c.quoteAsset)
	if err != nil {
		return nil, err
	}
	return out, nil
}
