package chatrelay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quill-labs/chat-relay/inference"
	"github.com/quill-labs/chat-relay/internal/cache"
)

// fakeClient counts upstream calls and answers with a canned response.
type fakeClient struct {
	mu    sync.Mutex
	calls int
	err   error
	text  string
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, req inference.Request) (*inference.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	text := f.text
	if text == "" {
		text = "answer to: " + req.Query
	}
	return &inference.Response{Text: text, Model: req.Model}, nil
}

func (f *fakeClient) Ping(_ context.Context) error { return nil }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// downCache fails every operation, as an unreachable Redis would.
type downCache struct{}

func (downCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, cache.ErrUnavailable
}
func (downCache) Set(_ context.Context, _, _ string, _ time.Duration) error {
	return cache.ErrUnavailable
}
func (downCache) Delete(_ context.Context, _ string) error      { return cache.ErrUnavailable }
func (downCache) ClearAll(_ context.Context) (int, error)       { return 0, cache.ErrUnavailable }
func (downCache) Stats(_ context.Context) (cache.Stats, error)  { return cache.Stats{}, cache.ErrUnavailable }
func (downCache) Ping(_ context.Context) error                  { return cache.ErrUnavailable }
func (downCache) Close() error                                  { return nil }

func testRelay(t *testing.T, cfg Config, store cache.Cache, client inference.Client) *Relay {
	t.Helper()
	if cfg.Inference.Model == "" {
		cfg.Inference.Model = "test-model"
	}
	if cfg.Inference.APIKey == "" {
		cfg.Inference.APIKey = "sk-test"
	}
	r, err := New(cfg, store, client)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestHandle_SecondIdenticalQueryIsCached(t *testing.T) {
	client := &fakeClient{}
	r := testRelay(t, Config{}, cache.NewMemory(0), client)
	ctx := context.Background()

	first, err := r.Handle(ctx, "What is Go?", "")
	if err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	if first.Cached {
		t.Error("first call must not be cached")
	}

	second, err := r.Handle(ctx, "What is Go?", "")
	if err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if !second.Cached {
		t.Error("second identical call must be served from cache")
	}
	if second.Text != first.Text {
		t.Errorf("cached text = %q, want %q", second.Text, first.Text)
	}
	if got := client.callCount(); got != 1 {
		t.Errorf("upstream called %d times, want 1", got)
	}
}

func TestHandle_NormalizedQueriesShareOneEntry(t *testing.T) {
	client := &fakeClient{}
	r := testRelay(t, Config{}, cache.NewMemory(0), client)
	ctx := context.Background()

	if _, err := r.Handle(ctx, "What is Go?", ""); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	res, err := r.Handle(ctx, "  WHAT IS GO?  ", "")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.Cached {
		t.Error("case and whitespace variants must hit the same cache entry")
	}
	if got := client.callCount(); got != 1 {
		t.Errorf("upstream called %d times, want 1", got)
	}
}

func TestHandle_DifferentModelsCachedSeparately(t *testing.T) {
	client := &fakeClient{}
	r := testRelay(t, Config{}, cache.NewMemory(0), client)
	ctx := context.Background()

	if _, err := r.Handle(ctx, "hello", "model-a"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	res, err := r.Handle(ctx, "hello", "model-b")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Cached {
		t.Error("a different model must not share the cache entry")
	}
	if got := client.callCount(); got != 2 {
		t.Errorf("upstream called %d times, want 2", got)
	}
}

func TestHandle_ValidationRejectsBeforeUpstream(t *testing.T) {
	client := &fakeClient{}
	r := testRelay(t, Config{MaxQueryLen: 32}, cache.NewMemory(0), client)
	ctx := context.Background()

	if _, err := r.Handle(ctx, "   ", ""); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank query: got %v, want ErrEmptyQuery", err)
	}
	if _, err := r.Handle(ctx, strings.Repeat("x", 33), ""); !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("oversized query: got %v, want ErrQueryTooLong", err)
	}
	if got := client.callCount(); got != 0 {
		t.Errorf("upstream called %d times, want 0", got)
	}
}

func TestHandle_CacheDownFallsThroughToUpstream(t *testing.T) {
	client := &fakeClient{text: "still served"}
	r := testRelay(t, Config{}, downCache{}, client)

	res, err := r.Handle(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Handle with dead cache: %v", err)
	}
	if res.Cached {
		t.Error("result must not be marked cached")
	}
	if res.Text != "still served" {
		t.Errorf("text = %q, want %q", res.Text, "still served")
	}
}

func TestHandle_UpstreamErrorPropagates(t *testing.T) {
	wantErr := &inference.UnavailableError{Attempts: 3, Err: errors.New("boom")}
	client := &fakeClient{err: wantErr}
	r := testRelay(t, Config{}, cache.NewMemory(0), client)

	_, err := r.Handle(context.Background(), "hello", "")
	var unavailable *inference.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %v, want UnavailableError", err)
	}
}

func TestHandle_ExpiredEntryRefetches(t *testing.T) {
	client := &fakeClient{}
	r := testRelay(t, Config{Cache: CacheConfig{TTL: "30ms"}}, cache.NewMemory(0), client)
	ctx := context.Background()

	if _, err := r.Handle(ctx, "hello", ""); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	res, err := r.Handle(ctx, "hello", "")
	if err != nil {
		t.Fatalf("Handle after expiry: %v", err)
	}
	if res.Cached {
		t.Error("expired entry must not be served")
	}
	if got := client.callCount(); got != 2 {
		t.Errorf("upstream called %d times, want 2", got)
	}
}

func TestClearCache_NextCallMisses(t *testing.T) {
	client := &fakeClient{}
	r := testRelay(t, Config{}, cache.NewMemory(0), client)
	ctx := context.Background()

	if _, err := r.Handle(ctx, "hello", ""); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	cleared, err := r.ClearCache(ctx)
	if err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if cleared != 1 {
		t.Errorf("cleared = %d, want 1", cleared)
	}

	res, err := r.Handle(ctx, "hello", "")
	if err != nil {
		t.Fatalf("Handle after clear: %v", err)
	}
	if res.Cached {
		t.Error("cleared entry must not be served")
	}
}

func TestCacheStats_CountsHitsAndMisses(t *testing.T) {
	client := &fakeClient{}
	r := testRelay(t, Config{}, cache.NewMemory(0), client)
	ctx := context.Background()

	_, _ = r.Handle(ctx, "a", "")
	_, _ = r.Handle(ctx, "a", "")
	_, _ = r.Handle(ctx, "b", "")

	stats, err := r.CacheStats(ctx)
	if err != nil {
		t.Fatalf("CacheStats: %v", err)
	}
	if stats.Hits != 1 {
		t.Errorf("hits = %d, want 1", stats.Hits)
	}
	if stats.Misses != 2 {
		t.Errorf("misses = %d, want 2", stats.Misses)
	}
	if stats.Keys != 2 {
		t.Errorf("keys = %d, want 2", stats.Keys)
	}
}

func TestHealth_ReportsDeadCache(t *testing.T) {
	r := testRelay(t, Config{}, downCache{}, &fakeClient{})

	status := r.Health(context.Background())
	if status.Cache != "unreachable" {
		t.Errorf("cache status = %q, want unreachable", status.Cache)
	}
	if status.Inference != "ok" {
		t.Errorf("inference status = %q, want ok", status.Inference)
	}
	if status.Healthy() {
		t.Error("status must not report healthy with a dead cache")
	}
}

func TestHooks_ReceiveCompletionEvents(t *testing.T) {
	client := &fakeClient{}
	r := testRelay(t, Config{}, cache.NewMemory(0), client)

	events := make(chan string, 2)
	r.AddHook(func(_ context.Context, subject string, data map[string]interface{}) {
		if _, ok := data["cache_key"].(string); !ok {
			t.Error("event missing cache_key")
		}
		events <- subject
	})

	if _, err := r.Handle(context.Background(), "hello", ""); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	select {
	case subject := <-events:
		if subject != SubjectRequestCompleted {
			t.Errorf("subject = %q, want %q", subject, SubjectRequestCompleted)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hook was not invoked")
	}
}
