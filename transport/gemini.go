package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiCaller issues generateContent requests against the Google
// generative language REST API, bound to a single API key.
type GeminiCaller struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewGemini creates a Gemini caller. baseURL overrides the API endpoint
// (pass "" for the default).
func NewGemini(apiKey string, baseURL string) (*GeminiCaller, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &GeminiCaller{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    baseURL,
	}, nil
}

// geminiGenerationConfig holds generation parameters in Gemini wire format.
type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// geminiRequest is the generateContent request format.
type geminiRequest struct {
	Contents          []Content               `json:"contents"`
	SystemInstruction *Content                `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// geminiResponse is the generateContent response format.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
			Role  string `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Call sends one generateContent request. Non-2xx responses are wrapped in
// ClientError/ServerError; network and encode/decode failures are returned
// as plain errors.
func (c *GeminiCaller) Call(ctx context.Context, model string, contents any, cfg *GenerationConfig) (*Response, error) {
	turns, err := coerceContents(contents)
	if err != nil {
		return nil, err
	}

	geminiReq := geminiRequest{Contents: turns}
	if cfg != nil {
		geminiReq.GenerationConfig = &geminiGenerationConfig{
			Temperature:     cfg.Temperature,
			TopP:            cfg.TopP,
			MaxOutputTokens: cfg.MaxOutputTokens,
			StopSequences:   cfg.StopSequences,
		}
		if cfg.SystemInstruction != "" {
			geminiReq.SystemInstruction = &Content{Parts: []Part{{Text: cfg.SystemInstruction}}}
		}
	}

	body, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp geminiErrorResponse
		_ = json.Unmarshal(respBody, &errResp)
		return nil, classify(httpResp.StatusCode, errResp.Error.Status, string(respBody))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var text string
	finishReason := ""
	if len(geminiResp.Candidates) > 0 {
		candidate := geminiResp.Candidates[0]
		for _, part := range candidate.Content.Parts {
			text += part.Text
		}
		finishReason = candidate.FinishReason
	}

	return &Response{
		Text:         text,
		Model:        model,
		Backend:      "gemini",
		FinishReason: finishReason,
		Usage: Usage{
			PromptTokens: geminiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  geminiResp.UsageMetadata.TotalTokenCount,
		},
		Raw: respBody,
	}, nil
}
