// Package transport defines the caller contract consumed by the rotation
// core and the concrete backends that implement it.
//
// A Caller is bound to exactly one upstream credential and issues one
// generation request per Call. Failures are signalled through two recognized
// error classes: ClientError for request-side rejections (bad request, auth,
// quota) and ServerError for upstream failures. The rotation core treats
// both classes as retryable and anything else as fatal, so backends must
// wrap every routine upstream failure in one of the two classes.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Caller issues a single generation request against one credential.
type Caller interface {
	Call(ctx context.Context, model string, contents any, cfg *GenerationConfig) (*Response, error)
}

// GenerationConfig carries optional sampling parameters. The rotation core
// passes it through to the backend unmodified; a nil config is valid.
type GenerationConfig struct {
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	MaxOutputTokens   *int     `json:"max_output_tokens,omitempty"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
	SystemInstruction string   `json:"system_instruction,omitempty"`
}

// Content is one conversational turn in a structured payload.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a single text fragment within a Content turn.
type Part struct {
	Text string `json:"text"`
}

// Usage carries token consumption reported by the backend.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is a completed generation, normalised across backends.
// Raw holds the undecoded backend payload for callers that need fields the
// normalised view drops.
type Response struct {
	Text         string          `json:"text"`
	Model        string          `json:"model"`
	Backend      string          `json:"backend,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        Usage           `json:"usage"`
	Raw          json.RawMessage `json:"-"`
}

// ClientError is a request-side rejection (HTTP 4xx): bad request, invalid
// credential, exhausted quota. Retryable from the rotation core's point of
// view, since a different credential or model may succeed.
type ClientError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%d %s. %s", e.StatusCode, e.Status, e.Body)
}

// ServerError is an upstream failure (HTTP 5xx). Retryable, same as
// ClientError.
type ServerError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%d %s. %s", e.StatusCode, e.Status, e.Body)
}

// Recognized reports whether err is one of the two retryable error classes.
// Everything else must propagate out of the rotation traversal unmodified.
func Recognized(err error) bool {
	var ce *ClientError
	var se *ServerError
	return errors.As(err, &ce) || errors.As(err, &se)
}

// classify wraps an upstream HTTP failure in the matching error class.
func classify(statusCode int, status, body string) error {
	if status == "" {
		status = strings.ToUpper(strings.ReplaceAll(http.StatusText(statusCode), " ", "_"))
	}
	if statusCode >= 500 {
		return &ServerError{StatusCode: statusCode, Status: status, Body: body}
	}
	return &ClientError{StatusCode: statusCode, Status: status, Body: body}
}

// coerceContents accepts the opaque payload forms callers may pass: a plain
// prompt string, a structured []Content transcript, or pre-encoded JSON.
// A payload the backend cannot represent is a caller bug and surfaces as a
// plain error, outside the two recognized classes.
func coerceContents(contents any) ([]Content, error) {
	switch v := contents.(type) {
	case string:
		return []Content{{Role: "user", Parts: []Part{{Text: v}}}}, nil
	case []Content:
		return v, nil
	case json.RawMessage:
		var cs []Content
		if err := json.Unmarshal(v, &cs); err != nil {
			return nil, fmt.Errorf("transport: decoding contents: %w", err)
		}
		return cs, nil
	case nil:
		return nil, errors.New("transport: contents must not be nil")
	default:
		return nil, fmt.Errorf("transport: unsupported contents type %T", contents)
	}
}

// flattenContents joins all text parts into a single prompt string for
// backends that take flat prompts rather than structured turns.
func flattenContents(cs []Content) string {
	var b strings.Builder
	for _, c := range cs {
		for _, p := range c.Parts {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
