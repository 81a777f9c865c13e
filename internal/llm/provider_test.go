package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockProvider is a test implementation of Provider
type mockProvider struct {
	name     string
	response *Response
	errs     []error
	calls    atomic.Int32
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	n := int(m.calls.Add(1)) - 1
	if n < len(m.errs) && m.errs[n] != nil {
		return nil, m.errs[n]
	}
	return m.response, nil
}

func TestRegistry_GetAndDefault(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Default(); !errors.Is(err, ErrNoDefaultProvider) {
		t.Errorf("Default() error = %v; want ErrNoDefaultProvider", err)
	}

	r.Register("openai", &mockProvider{name: "openai"})
	r.Register("deepseek", &mockProvider{name: "deepseek"})

	p, err := r.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if p.Name() != "deepseek" {
		t.Errorf("Default() = %s; want alphabetical first deepseek", p.Name())
	}

	if err := r.SetDefault("openai"); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}
	p, _ = r.Default()
	if p.Name() != "openai" {
		t.Errorf("Default() = %s; want openai", p.Name())
	}
	if r.DefaultName() != "openai" {
		t.Errorf("DefaultName() = %s; want openai", r.DefaultName())
	}

	if err := r.SetDefault("claude"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("SetDefault(claude) error = %v; want ErrProviderNotFound", err)
	}
	if _, err := r.Get("claude"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("Get(claude) error = %v; want ErrProviderNotFound", err)
	}

	names := r.List()
	if len(names) != 2 || names[0] != "deepseek" || names[1] != "openai" {
		t.Errorf("List() = %v", names)
	}
}

func TestRegistry_AutoDefault(t *testing.T) {
	r := NewRegistry()
	r.Register("auto", &mockProvider{name: "auto"})
	r.Register("b", &mockProvider{name: "b"})
	_ = r.SetDefault("auto")

	p, _ := r.Default()
	if p.Name() != "auto" {
		t.Errorf("Default() = %s; want alphabetical first auto", p.Name())
	}
}

func TestRegistry_Concurrency(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(fmt.Sprintf("p%d", i), &mockProvider{name: "x"})
		}(i)
		go func() {
			defer wg.Done()
			_ = r.List()
		}()
	}
	wg.Wait()

	if len(r.List()) != 50 {
		t.Errorf("List() = %d; want 50", len(r.List()))
	}
}

func TestParseRole(t *testing.T) {
	for _, ok := range []string{"user", "assistant"} {
		if _, err := ParseRole(ok); err != nil {
			t.Errorf("ParseRole(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"system", "", "tool"} {
		if _, err := ParseRole(bad); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("ParseRole(%q) error = %v; want ErrInvalidRole", bad, err)
		}
	}
}

func TestChatProvider_Defaults(t *testing.T) {
	p := NewDeepSeekProvider("key", "")
	if p.Name() != "deepseek" || p.baseURL != DeepSeekBaseURL || p.model != DeepSeekModel {
		t.Errorf("NewDeepSeekProvider() = %+v", p)
	}

	p = NewChatProvider(ChatConfig{BaseURL: "http://localhost:9999/"})
	if p.baseURL != "http://localhost:9999" {
		t.Errorf("baseURL = %q; want trailing slash trimmed", p.baseURL)
	}
	if p.model != OpenAIModel || p.Name() != "openai" {
		t.Errorf("NewChatProvider() = %+v", p)
	}
}

func TestChatProvider_BuildRequest(t *testing.T) {
	p := NewChatProvider(ChatConfig{Model: "m1"})
	req := p.buildRequest(&Request{
		System:      "be kind",
		Messages:    []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}},
		MaxTokens:   500,
		Temperature: 0.8,
	})

	if req.Model != "m1" {
		t.Errorf("Model = %q; want m1", req.Model)
	}
	if len(req.Messages) != 3 || req.Messages[0].Role != "system" || req.Messages[0].Content != "be kind" {
		t.Errorf("Messages = %+v", req.Messages)
	}
	if req.MaxTokens != 500 || req.Temperature != 0.8 {
		t.Errorf("limits = %d, %v", req.MaxTokens, req.Temperature)
	}

	override := p.buildRequest(&Request{Model: "m2"})
	if override.Model != "m2" || len(override.Messages) != 0 {
		t.Errorf("override = %+v", override)
	}
}

func TestChatProvider_Complete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s; want /chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"总分：88"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`))
	}))
	defer server.Close()

	p := NewChatProvider(ChatConfig{Name: "deepseek", APIKey: "secret", BaseURL: server.URL, Model: "deepseek-coder"})
	resp, err := p.Complete(context.Background(), &Request{
		Messages:    []Message{{Role: RoleUser, Content: "grade"}},
		Temperature: 0.5,
		MaxTokens:   1000,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "总分：88" || resp.FinishReason != "stop" {
		t.Errorf("Complete() = %+v", resp)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 5 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if got.Model != "deepseek-coder" || got.Temperature != 0.5 || got.MaxTokens != 1000 {
		t.Errorf("request = %+v", got)
	}
}

func TestChatProvider_CompleteErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewChatProvider(ChatConfig{APIKey: "k", BaseURL: server.URL})
	_, err := p.Complete(context.Background(), &Request{})
	if StatusCode(err) != http.StatusTooManyRequests {
		t.Errorf("StatusCode(%v) = %d; want 429", err, StatusCode(err))
	}

	noKey := NewChatProvider(ChatConfig{BaseURL: server.URL})
	if _, err := noKey.Complete(context.Background(), &Request{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Complete() error = %v; want ErrMissingAPIKey", err)
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()
	p = NewChatProvider(ChatConfig{APIKey: "k", BaseURL: empty.URL})
	if _, err := p.Complete(context.Background(), &Request{}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Complete() error = %v; want ErrEmptyResponse", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&APIError{StatusCode: 429}, true},
		{fmt.Errorf("wrapped: %w", &APIError{StatusCode: 503}), true},
		{&APIError{StatusCode: 400}, false},
		{&APIError{StatusCode: 401}, false},
		{errors.New("status 503"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := isRetryable(tt.err); got != tt.want {
			t.Errorf("isRetryable(%v) = %v; want %v", tt.err, got, tt.want)
		}
	}
}

func TestResilientProvider_RetriesTransientErrors(t *testing.T) {
	mock := &mockProvider{
		name:     "deepseek",
		response: &Response{Content: "ok"},
		errs:     []error{&APIError{StatusCode: 503}},
	}
	rp := NewResilientProvider(mock, ResilientConfig{
		EnableRetry: true,
		RetryDelay:  time.Millisecond,
	})
	defer rp.Close()

	resp, err := rp.Complete(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q; want ok", resp.Content)
	}
	if mock.calls.Load() != 2 {
		t.Errorf("calls = %d; want 2", mock.calls.Load())
	}
}

func TestResilientProvider_DoesNotRetryClientErrors(t *testing.T) {
	mock := &mockProvider{name: "deepseek", errs: []error{&APIError{StatusCode: 401}}}
	rp := NewResilientProvider(mock, ResilientConfig{EnableRetry: true, RetryDelay: time.Millisecond})
	defer rp.Close()

	if _, err := rp.Complete(context.Background(), &Request{}); StatusCode(err) != 401 {
		t.Errorf("Complete() error = %v; want the 401", err)
	}
	if mock.calls.Load() != 1 {
		t.Errorf("calls = %d; want 1", mock.calls.Load())
	}
}

func TestResilientProvider_AllPatterns(t *testing.T) {
	mock := &mockProvider{name: "deepseek", response: &Response{Content: "fine"}}
	cfg := DefaultResilientConfig()
	cfg.RetryDelay = time.Millisecond
	rp := NewResilientProvider(mock, cfg)
	defer rp.Close()

	if rp.Name() != "deepseek" {
		t.Errorf("Name() = %s", rp.Name())
	}
	resp, err := rp.Complete(context.Background(), &Request{})
	if err != nil || resp.Content != "fine" {
		t.Errorf("Complete() = %+v, %v", resp, err)
	}
}

func TestResilientProvider_NoPatterns(t *testing.T) {
	mock := &mockProvider{name: "x", response: &Response{Content: "direct"}}
	rp := NewResilientProvider(mock, ResilientConfig{})

	resp, err := rp.Complete(context.Background(), &Request{})
	if err != nil || resp.Content != "direct" {
		t.Errorf("Complete() = %+v, %v", resp, err)
	}
	if err := rp.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewLLMHTTPClient(t *testing.T) {
	c := newLLMHTTPClient()
	if c.Timeout != RequestTimeout {
		t.Errorf("Timeout = %v; want %v", c.Timeout, RequestTimeout)
	}
}
