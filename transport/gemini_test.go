package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newGeminiTestServer(t *testing.T, status int, body string, gotReq *geminiRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key = %q, want %q", got, "test-key")
		}
		if gotReq != nil {
			if err := json.NewDecoder(r.Body).Decode(gotReq); err != nil {
				t.Errorf("decoding request body: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiCall_Success(t *testing.T) {
	respBody := `{
		"candidates": [{"content": {"parts": [{"text": "Hello, "}, {"text": "world"}], "role": "model"}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 5, "totalTokenCount": 8}
	}`
	var gotReq geminiRequest
	srv := newGeminiTestServer(t, http.StatusOK, respBody, &gotReq)

	caller, err := NewGemini("test-key", srv.URL)
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}

	temp := 0.7
	resp, err := caller.Call(context.Background(), "gemini-2.5-flash", "say hello", &GenerationConfig{
		Temperature:       &temp,
		SystemInstruction: "be brief",
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	if resp.Text != "Hello, world" {
		t.Errorf("Text = %q, want %q", resp.Text, "Hello, world")
	}
	if resp.Model != "gemini-2.5-flash" || resp.Backend != "gemini" {
		t.Errorf("Model/Backend = %q/%q", resp.Model, resp.Backend)
	}
	if resp.FinishReason != "STOP" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 8 {
		t.Errorf("TotalTokens = %d, want 8", resp.Usage.TotalTokens)
	}

	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "say hello" {
		t.Errorf("request contents = %+v", gotReq.Contents)
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.Temperature == nil || *gotReq.GenerationConfig.Temperature != 0.7 {
		t.Errorf("request generationConfig = %+v", gotReq.GenerationConfig)
	}
	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("request systemInstruction = %+v", gotReq.SystemInstruction)
	}
}

func TestGeminiCall_ClientError(t *testing.T) {
	body := `{"error": {"code": 429, "message": "Quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`
	srv := newGeminiTestServer(t, http.StatusTooManyRequests, body, nil)

	caller, _ := NewGemini("test-key", srv.URL)
	_, err := caller.Call(context.Background(), "gemini-2.5-flash", "hi", nil)

	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("Call error = %v, want *ClientError", err)
	}
	if ce.StatusCode != 429 || ce.Status != "RESOURCE_EXHAUSTED" {
		t.Errorf("ClientError = %d %s", ce.StatusCode, ce.Status)
	}
	if ce.Body != body {
		t.Errorf("Body = %q, want raw payload", ce.Body)
	}
}

func TestGeminiCall_ServerError(t *testing.T) {
	srv := newGeminiTestServer(t, http.StatusServiceUnavailable, `{"error": {"status": "UNAVAILABLE"}}`, nil)

	caller, _ := NewGemini("test-key", srv.URL)
	_, err := caller.Call(context.Background(), "gemini-2.5-pro", "hi", nil)

	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("Call error = %v, want *ServerError", err)
	}
	if se.StatusCode != 503 || se.Status != "UNAVAILABLE" {
		t.Errorf("ServerError = %d %s", se.StatusCode, se.Status)
	}
}

func TestGeminiCall_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	caller, _ := NewGemini("test-key", srv.URL)
	_, err := caller.Call(context.Background(), "gemini-2.5-flash", "hi", nil)
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if Recognized(err) {
		t.Errorf("network errors must not be recognized, got %v", err)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini("", ""); err == nil {
		t.Error("expected error for empty api key")
	}
}
