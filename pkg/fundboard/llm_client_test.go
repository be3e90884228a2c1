package fundboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestResolveCompletionsEndpoint(t *testing.T) {
	tests := map[string]string{
		"":                          "https://api.openai.com/v1/chat/completions",
		"https://x.test/v1":         "https://x.test/v1/chat/completions",
		"https://x.test/v1/":        "https://x.test/v1/chat/completions",
		" https://x.test/api/v3/  ": "https://x.test/api/v3/chat/completions",
	}
	for in, want := range tests {
		if got := ResolveCompletionsEndpoint(in); got != want {
			t.Errorf("ResolveCompletionsEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

type capturedChatRequest struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Messages    []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func newChatCompletionServer(t *testing.T, status int, body string, captured *capturedChatRequest, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRequestCompletionOpenAICompatible(t *testing.T) {
	var captured capturedChatRequest
	var auth string
	srv := newChatCompletionServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-test",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "你好"}}]
	}`, &captured, &auth)

	result, err := requestCompletion(context.Background(), CompletionRequest{
		Model:       AIModel{Name: "gpt-test", BaseURL: srv.URL + "/v1/", APIKey: "sk-test"},
		Messages:    BuildChatMessages("sys", "hello"),
		Temperature: temperature(0.7),
	})
	assertNoError(t, err, "requestCompletion")

	if result.Content != "你好" {
		t.Errorf("unexpected content %q", result.Content)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("unexpected Authorization header %q", auth)
	}
	if captured.Model != "gpt-test" {
		t.Errorf("unexpected model %q", captured.Model)
	}
	if captured.Temperature == nil || *captured.Temperature != 0.7 {
		t.Errorf("unexpected temperature %v", captured.Temperature)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
	assertContains(t, string(captured.Messages[1].Content), "hello", "user content")
}

func TestRequestCompletionMaxTokens(t *testing.T) {
	var captured capturedChatRequest
	srv := newChatCompletionServer(t, http.StatusOK,
		`{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"Hi"}}]}`,
		&captured, nil)

	_, err := requestCompletion(context.Background(), CompletionRequest{
		Model:     AIModel{BaseURL: srv.URL + "/v1", APIKey: "k"},
		Messages:  []PromptMessage{{Role: RoleUser, Content: "Hi"}},
		MaxTokens: 5,
	})
	assertNoError(t, err, "requestCompletion")
	if captured.MaxTokens == nil || *captured.MaxTokens != 5 {
		t.Errorf("expected max_tokens 5, got %v", captured.MaxTokens)
	}
	if captured.Model != defaultOpenAIModel {
		t.Errorf("expected default model, got %q", captured.Model)
	}
}

func TestRequestCompletionEmptyChoices(t *testing.T) {
	srv := newChatCompletionServer(t, http.StatusOK,
		`{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[]}`, nil, nil)

	result, err := requestCompletion(context.Background(), CompletionRequest{
		Model:    AIModel{Name: "m", BaseURL: srv.URL + "/v1", APIKey: "k"},
		Messages: []PromptMessage{{Role: RoleUser, Content: "x"}},
	})
	assertNoError(t, err, "requestCompletion")
	if result.Content != "" {
		t.Fatalf("expected empty content, got %q", result.Content)
	}
}

func TestRequestCompletionUpstreamError(t *testing.T) {
	srv := newChatCompletionServer(t, http.StatusInternalServerError,
		`{"error":{"message":"boom","type":"server_error"}}`, nil, nil)

	_, err := requestCompletion(context.Background(), CompletionRequest{
		Model:    AIModel{Name: "m", BaseURL: srv.URL + "/v1", APIKey: "k"},
		Messages: []PromptMessage{{Role: RoleUser, Content: "x"}},
	})
	assertErrorCode(t, err, ErrCodeLLM, "upstream 500")
	assertContains(t, err.Error(), "boom", "upstream message")
}

func TestRequestCompletionTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := requestCompletion(context.Background(), CompletionRequest{
		Model:    AIModel{Name: "m", BaseURL: srv.URL + "/v1", APIKey: "k"},
		Messages: []PromptMessage{{Role: RoleUser, Content: "x"}},
		Timeout:  50 * time.Millisecond,
	})
	assertErrorCode(t, err, ErrCodeLLM, "timeout")
}

func TestRequestCompletionInvalidBaseURL(t *testing.T) {
	_, err := requestCompletion(context.Background(), CompletionRequest{
		Model:    AIModel{Name: "m", BaseURL: "ftp://x.test", APIKey: "k"},
		Messages: []PromptMessage{{Role: RoleUser, Content: "x"}},
	})
	assertErrorCode(t, err, ErrCodeConfiguration, "ftp base url")
}

func TestRequestCompletionDispatchesOnProvider(t *testing.T) {
	origAnthropic, origGemini := anthropicComplete, geminiComplete
	defer func() {
		anthropicComplete, geminiComplete = origAnthropic, origGemini
	}()

	var called []string
	anthropicComplete = func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		called = append(called, "anthropic")
		return CompletionResult{Content: "from claude"}, nil
	}
	geminiComplete = func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		called = append(called, "gemini")
		return CompletionResult{}, errors.New("quota exceeded")
	}

	result, err := requestCompletion(context.Background(), CompletionRequest{Model: AIModel{APIKey: "k", Provider: "Anthropic"}})
	assertNoError(t, err, "anthropic")
	if result.Content != "from claude" {
		t.Errorf("unexpected content %q", result.Content)
	}

	_, err = requestCompletion(context.Background(), CompletionRequest{Model: AIModel{APIKey: "k", Provider: ProviderGemini}})
	assertErrorCode(t, err, ErrCodeLLM, "gemini failure")
	assertContains(t, err.Error(), "quota exceeded", "gemini message")

	_, err = requestCompletion(context.Background(), CompletionRequest{Model: AIModel{APIKey: "k", Provider: "mistral"}})
	assertErrorCode(t, err, ErrCodeConfiguration, "unknown provider")

	if strings.Join(called, ",") != "anthropic,gemini" {
		t.Fatalf("unexpected dispatch order %v", called)
	}
}

func TestBuildGeminiClientConfig(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		base    string
		version string
	}{
		{"default", "", "https://generativelanguage.googleapis.com/", "v1beta"},
		{"bare host", "proxy.test", "https://proxy.test/", "v1beta"},
		{"prefix and version", "https://proxy.test/gemini/v1/", "https://proxy.test/gemini/", "v1"},
		{"prefix only", "http://proxy.test/gemini", "http://proxy.test/gemini/", "v1beta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := buildGeminiClientConfig(tt.baseURL, " key ")
			assertNoError(t, err, tt.name)
			if cfg.HTTPOptions.BaseURL != tt.base {
				t.Errorf("base = %q, want %q", cfg.HTTPOptions.BaseURL, tt.base)
			}
			if cfg.HTTPOptions.APIVersion != tt.version {
				t.Errorf("version = %q, want %q", cfg.HTTPOptions.APIVersion, tt.version)
			}
			if cfg.APIKey != "key" {
				t.Errorf("api key not trimmed: %q", cfg.APIKey)
			}
		})
	}

	if _, err := buildGeminiClientConfig("ftp://proxy.test", "k"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestModelNameOfDefaults(t *testing.T) {
	if got := modelNameOf(AIModel{Provider: ProviderAnthropic}); got != defaultAnthropicModel {
		t.Errorf("anthropic default = %q", got)
	}
	if got := modelNameOf(AIModel{Provider: ProviderGemini}); got != defaultGeminiModel {
		t.Errorf("gemini default = %q", got)
	}
	if got := modelNameOf(AIModel{Name: " custom "}); got != "custom" {
		t.Errorf("explicit name = %q", got)
	}
}
