package transport

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICaller issues chat completion requests through the openai-go SDK,
// bound to a single API key. SDK-level retries are disabled: attempt
// scheduling belongs to the rotation core.
type OpenAICaller struct {
	client openai.Client
}

// NewOpenAI creates an OpenAI caller. baseURL overrides the API endpoint
// (pass "" for the default).
func NewOpenAI(apiKey string, baseURL string) (*OpenAICaller, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAICaller{client: openai.NewClient(opts...)}, nil
}

// Call sends one chat completion request. SDK API errors are wrapped in
// ClientError/ServerError by HTTP status; everything else is returned as-is.
func (c *OpenAICaller) Call(ctx context.Context, model string, contents any, cfg *GenerationConfig) (*Response, error) {
	turns, err := coerceContents(contents)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: buildOpenAIMessages(turns, cfg),
	}
	if cfg != nil {
		if cfg.Temperature != nil {
			params.Temperature = openai.Float(*cfg.Temperature)
		}
		if cfg.TopP != nil {
			params.TopP = openai.Float(*cfg.TopP)
		}
		if cfg.MaxOutputTokens != nil {
			params.MaxTokens = openai.Int(int64(*cfg.MaxOutputTokens))
		}
		if len(cfg.StopSequences) > 0 {
			params.Stop = openai.ChatCompletionNewParamsStopUnion{
				OfStringArray: cfg.StopSequences,
			}
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, classify(apierr.StatusCode, "", apierr.RawJSON())
		}
		return nil, err
	}

	var text, finishReason string
	if len(completion.Choices) > 0 {
		text = completion.Choices[0].Message.Content
		finishReason = string(completion.Choices[0].FinishReason)
	}

	return &Response{
		Text:         text,
		Model:        completion.Model,
		Backend:      "openai",
		FinishReason: finishReason,
		Usage: Usage{
			PromptTokens: int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
		Raw: []byte(completion.RawJSON()),
	}, nil
}

// buildOpenAIMessages converts structured turns to the SDK union type.
// Gemini-style "model" roles map to assistant messages.
func buildOpenAIMessages(turns []Content, cfg *GenerationConfig) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if cfg != nil && cfg.SystemInstruction != "" {
		out = append(out, openai.SystemMessage(cfg.SystemInstruction))
	}
	for _, turn := range turns {
		var text string
		for _, p := range turn.Parts {
			text += p.Text
		}
		switch turn.Role {
		case "model", "assistant":
			out = append(out, openai.AssistantMessage(text))
		case "system":
			out = append(out, openai.SystemMessage(text))
		default:
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}
