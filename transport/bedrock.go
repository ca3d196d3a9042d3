package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

// BedrockCaller issues InvokeModel requests against AWS Bedrock.
// The opaque credential string is "ACCESS_KEY:SECRET_KEY" with an optional
// ":SESSION_TOKEN" suffix; each caller signs with exactly one key pair.
// Supports Anthropic Claude and Amazon Titan model families.
type BedrockCaller struct {
	client *bedrockruntime.Client
	region string
}

// NewBedrock creates a Bedrock caller. region defaults to us-east-1.
func NewBedrock(credential string, region string) (*BedrockCaller, error) {
	if region == "" {
		region = "us-east-1"
	}

	fields := strings.SplitN(credential, ":", 3)
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return nil, errors.New("bedrock: credential must be ACCESS_KEY:SECRET_KEY[:SESSION_TOKEN]")
	}
	session := ""
	if len(fields) == 3 {
		session = fields[2]
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(fields[0], fields[1], session),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BedrockCaller{
		client: bedrockruntime.NewFromConfig(cfg),
		region: region,
	}, nil
}

// bedrockAnthropicRequest is the Claude-on-Bedrock request body.
type bedrockAnthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []bedrockMessage   `json:"messages"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
	System           string             `json:"system,omitempty"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// bedrockTitanRequest is the Amazon Titan request body.
type bedrockTitanRequest struct {
	InputText            string `json:"inputText"`
	TextGenerationConfig struct {
		MaxTokenCount int      `json:"maxTokenCount,omitempty"`
		Temperature   float64  `json:"temperature,omitempty"`
		TopP          *float64 `json:"topP,omitempty"`
		StopSequences []string `json:"stopSequences,omitempty"`
	} `json:"textGenerationConfig"`
}

type bedrockTitanResponse struct {
	InputTextTokenCount int `json:"inputTextTokenCount"`
	Results             []struct {
		TokenCount       int    `json:"tokenCount"`
		OutputText       string `json:"outputText"`
		CompletionReason string `json:"completionReason"`
	} `json:"results"`
}

// Call sends one InvokeModel request. AWS API errors are wrapped in
// ClientError/ServerError using the HTTP status of the failed response.
func (c *BedrockCaller) Call(ctx context.Context, model string, contents any, cfg *GenerationConfig) (*Response, error) {
	turns, err := coerceContents(contents)
	if err != nil {
		return nil, err
	}

	var body []byte
	switch {
	case strings.HasPrefix(model, "anthropic."):
		body, err = marshalBedrockAnthropic(turns, cfg)
	case strings.HasPrefix(model, "amazon.titan"):
		body, err = marshalBedrockTitan(turns, cfg)
	default:
		return nil, fmt.Errorf("unsupported Bedrock model prefix for model: %s", model)
	}
	if err != nil {
		return nil, err
	}

	output, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	if strings.HasPrefix(model, "anthropic.") {
		return decodeBedrockAnthropic(model, output.Body)
	}
	return decodeBedrockTitan(model, output.Body)
}

// classifyBedrockError maps AWS SDK failures onto the two recognized
// classes. Failures without an API error code (network, signing bugs)
// propagate unmodified.
func classifyBedrockError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	statusCode := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		statusCode = respErr.HTTPStatusCode()
	}
	if statusCode == 0 {
		switch apiErr.ErrorFault() {
		case smithy.FaultServer:
			statusCode = 500
		default:
			statusCode = 400
		}
	}
	return classify(statusCode, apiErr.ErrorCode(), apiErr.ErrorMessage())
}

func marshalBedrockAnthropic(turns []Content, cfg *GenerationConfig) ([]byte, error) {
	req := bedrockAnthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1024,
	}
	for _, turn := range turns {
		role := turn.Role
		if role == "model" {
			role = "assistant"
		}
		var text string
		for _, p := range turn.Parts {
			text += p.Text
		}
		req.Messages = append(req.Messages, bedrockMessage{Role: role, Content: text})
	}
	if cfg != nil {
		if cfg.MaxOutputTokens != nil {
			req.MaxTokens = *cfg.MaxOutputTokens
		}
		req.Temperature = cfg.Temperature
		req.TopP = cfg.TopP
		req.StopSequences = cfg.StopSequences
		req.System = cfg.SystemInstruction
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

func marshalBedrockTitan(turns []Content, cfg *GenerationConfig) ([]byte, error) {
	req := bedrockTitanRequest{InputText: flattenContents(turns)}
	if cfg != nil {
		if cfg.MaxOutputTokens != nil {
			req.TextGenerationConfig.MaxTokenCount = *cfg.MaxOutputTokens
		}
		if cfg.Temperature != nil {
			req.TextGenerationConfig.Temperature = *cfg.Temperature
		}
		req.TextGenerationConfig.TopP = cfg.TopP
		req.TextGenerationConfig.StopSequences = cfg.StopSequences
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

func decodeBedrockAnthropic(model string, raw []byte) (*Response, error) {
	var resp bedrockAnthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	return &Response{
		Text:         text,
		Model:        model,
		Backend:      "bedrock",
		FinishReason: resp.StopReason,
		Usage: Usage{
			PromptTokens: resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Raw: raw,
	}, nil
}

func decodeBedrockTitan(model string, raw []byte) (*Response, error) {
	var resp bedrockTitanResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var text, finishReason string
	outputTokens := 0
	if len(resp.Results) > 0 {
		text = resp.Results[0].OutputText
		finishReason = resp.Results[0].CompletionReason
	}
	for _, r := range resp.Results {
		outputTokens += r.TokenCount
	}

	return &Response{
		Text:         text,
		Model:        model,
		Backend:      "bedrock",
		FinishReason: finishReason,
		Usage: Usage{
			PromptTokens: resp.InputTextTokenCount,
			OutputTokens: outputTokens,
			TotalTokens:  resp.InputTextTokenCount + outputTokens,
		},
		Raw: raw,
	}, nil
}
