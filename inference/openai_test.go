package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeUpstream is an OpenAI-compatible test double. Each call to its
// completions endpoint consumes the next scripted status; 200 serves a
// canned completion.
type fakeUpstream struct {
	t        *testing.T
	statuses []int
	calls    atomic.Int64
	srv      *httptest.Server
}

func newFakeUpstream(t *testing.T, statuses ...int) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{t: t, statuses: statuses}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeUpstream) handle(w http.ResponseWriter, r *http.Request) {
	n := int(f.calls.Add(1))
	status := http.StatusOK
	if n <= len(f.statuses) {
		status = f.statuses[n-1]
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "scripted failure", "type": "test_error"},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": "hello from upstream"},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
	})
}

func testClient(t *testing.T, upstream *fakeUpstream) *OpenAIClient {
	t.Helper()
	c, err := NewOpenAI(OpenAIOptions{
		APIKey:       "sk-test-key",
		BaseURL:      upstream.srv.URL,
		DefaultModel: "test-model",
		Retry:        RetryPolicy{Attempts: 3, BaseBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	return c
}

func TestNewOpenAI_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIOptions{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestComplete_Success(t *testing.T) {
	up := newFakeUpstream(t)
	c := testClient(t, up)

	resp, err := c.Complete(context.Background(), Request{Query: "hi"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Text != "hello from upstream" {
		t.Errorf("text = %q, want %q", resp.Text, "hello from upstream")
	}
	if resp.Usage.TotalTokens != 8 {
		t.Errorf("total tokens = %d, want 8", resp.Usage.TotalTokens)
	}
	if got := up.calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, want 1", got)
	}
}

func TestComplete_RetriesTransientThenSucceeds(t *testing.T) {
	up := newFakeUpstream(t, http.StatusInternalServerError, http.StatusTooManyRequests)
	c := testClient(t, up)

	resp, err := c.Complete(context.Background(), Request{Query: "hi"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Text == "" {
		t.Error("expected a completion after retries")
	}
	if got := up.calls.Load(); got != 3 {
		t.Errorf("upstream called %d times, want 3 (2 failures + 1 success)", got)
	}
}

func TestComplete_ExhaustsRetryBudget(t *testing.T) {
	up := newFakeUpstream(t,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusInternalServerError,
	)
	c := testClient(t, up)

	_, err := c.Complete(context.Background(), Request{Query: "hi"})
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %v, want UnavailableError", err)
	}
	if unavailable.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", unavailable.Attempts)
	}
	if unavailable.Unwrap() == nil {
		t.Error("expected last underlying error to be carried")
	}
	if got := up.calls.Load(); got != 3 {
		t.Errorf("upstream called %d times, want exactly 3", got)
	}
}

func TestComplete_AuthErrorFailsImmediately(t *testing.T) {
	up := newFakeUpstream(t, http.StatusUnauthorized)
	c := testClient(t, up)

	_, err := c.Complete(context.Background(), Request{Query: "hi"})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("got %v, want AuthError", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", authErr.Status)
	}
	if got := up.calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, want 1 (no retry on auth failure)", got)
	}
}

func TestComplete_RequestErrorFailsImmediately(t *testing.T) {
	up := newFakeUpstream(t, http.StatusNotFound)
	c := testClient(t, up)

	_, err := c.Complete(context.Background(), Request{Query: "hi", Model: "no-such-model"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("got %v, want RequestError", err)
	}
	if got := up.calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, want 1 (no retry on request error)", got)
	}
}

func TestComplete_ContextCancelledDuringBackoff(t *testing.T) {
	up := newFakeUpstream(t, http.StatusInternalServerError, http.StatusInternalServerError, http.StatusInternalServerError)
	c, err := NewOpenAI(OpenAIOptions{
		APIKey:  "sk-test-key",
		BaseURL: up.srv.URL,
		Retry:   RetryPolicy{Attempts: 3, BaseBackoff: 10 * time.Second},
	})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = c.Complete(ctx, Request{Query: "hi", Model: "m"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %v; backoff wait did not honour the context", elapsed)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{Attempts: 4, BaseBackoff: 100 * time.Millisecond}

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration // min + 10% jitter
	}{
		{2, 100 * time.Millisecond, 110 * time.Millisecond},
		{3, 200 * time.Millisecond, 220 * time.Millisecond},
		{4, 400 * time.Millisecond, 440 * time.Millisecond},
	}
	for _, tt := range tests {
		got := p.backoff(tt.attempt)
		if got < tt.min || got > tt.max {
			t.Errorf("backoff(%d) = %v, want within [%v, %v]", tt.attempt, got, tt.min, tt.max)
		}
	}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	if p.Attempts != DefaultAttempts {
		t.Errorf("attempts = %d, want %d", p.Attempts, DefaultAttempts)
	}
	if p.BaseBackoff != DefaultBaseBackoff {
		t.Errorf("base backoff = %v, want %v", p.BaseBackoff, DefaultBaseBackoff)
	}
}
