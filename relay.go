// Package chatrelay provides a caching relay in front of a hosted large
// language model endpoint.
//
// The Relay type is the main entry point: create one with New, wire a cache
// and an inference client, and serve queries with Handle. Identical queries
// within the cache TTL are answered from the cache without touching the
// upstream; every other failure mode degrades rather than breaks (a dead
// cache falls through to the provider, a dead provider is retried and then
// reported).
package chatrelay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quill-labs/chat-relay/inference"
	"github.com/quill-labs/chat-relay/internal/cache"
	"github.com/quill-labs/chat-relay/internal/logging"
	"github.com/quill-labs/chat-relay/internal/metrics"
	"github.com/quill-labs/chat-relay/internal/requestlog"
)

// Validation errors returned by Handle before any upstream or cache work.
var (
	ErrEmptyQuery   = errors.New("query must not be empty")
	ErrQueryTooLong = errors.New("query exceeds the maximum length")
)

// EventHookFunc is called asynchronously after a relay event (request
// completed or failed). Hooks must tolerate concurrent invocation.
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking relay hooks.
const (
	SubjectRequestCompleted = "relay.request.completed"
	SubjectRequestFailed    = "relay.request.failed"
)

// Result is the outcome of one handled query.
type Result struct {
	// Text is the model's answer.
	Text string
	// Cached reports whether the answer was served from the cache.
	Cached bool
	// Model is the model that produced (or originally produced) the answer.
	Model string
	// Latency is the wall-clock time Handle spent on this query.
	Latency time.Duration
}

// HealthStatus reports component reachability for the health endpoint.
type HealthStatus struct {
	Cache     string `json:"cache"`
	Inference string `json:"inference"`
}

// Healthy reports whether every component was reachable.
func (h HealthStatus) Healthy() bool {
	return h.Cache == "ok" && h.Inference == "ok"
}

// Relay answers chat queries, consulting the cache before the upstream.
type Relay struct {
	mu     sync.RWMutex
	cfg    Config
	cache  cache.Cache
	client inference.Client
	ttl    time.Duration
	maxLen int
	hooks  []EventHookFunc
}

// New creates a Relay from an already-constructed cache and inference client.
// Construction of those (Redis vs memory, breaker on or off) is the caller's
// concern; see cmd/chatrelayd for the full wiring.
func New(cfg Config, store cache.Cache, client inference.Client) (*Relay, error) {
	if store == nil {
		return nil, errors.New("chatrelay: cache is required")
	}
	if client == nil {
		return nil, errors.New("chatrelay: inference client is required")
	}
	ttl, err := cfg.Cache.CacheTTL()
	if err != nil {
		return nil, err
	}
	maxLen := cfg.MaxQueryLen
	if maxLen <= 0 {
		maxLen = DefaultMaxQueryLen
	}
	return &Relay{
		cfg:    cfg,
		cache:  store,
		client: client,
		ttl:    ttl,
		maxLen: maxLen,
	}, nil
}

// AddHook registers an EventHookFunc that is called asynchronously on each
// completed or failed request. Multiple hooks may be registered; all are
// invoked for every event.
func (r *Relay) AddHook(fn EventHookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// TTL returns the effective cache TTL.
func (r *Relay) TTL() time.Duration { return r.ttl }

// Handle answers one query: validate, consult the cache, call the upstream on
// a miss, then store the answer best-effort. Cache failures never fail the
// request; the cache read falls through to the provider and the write is
// dropped with a warning.
func (r *Relay) Handle(ctx context.Context, query, model string) (*Result, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if len(query) > r.maxLen {
		return nil, fmt.Errorf("%w (%d > %d bytes)", ErrQueryTooLong, len(query), r.maxLen)
	}
	if model == "" {
		model = r.cfg.Inference.Model
	}

	key := cache.Key(model, query)

	if text, ok, err := r.cache.Get(ctx, key); err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		log.Warn("cache read failed, falling through to upstream", "error", err.Error())
	} else if ok {
		latency := time.Since(start)
		metrics.CacheHits.Inc()
		metrics.RequestsTotal.WithLabelValues(model, "hit").Inc()
		metrics.RequestDuration.WithLabelValues(model, "hit").Observe(latency.Seconds())
		log.Info("request served from cache",
			"model", model,
			"latency_ms", latency.Milliseconds(),
		)
		r.publishEvent(ctx, SubjectRequestCompleted, map[string]interface{}{
			"trace_id":   logging.TraceIDFromContext(ctx),
			"model":      model,
			"cache_key":  key,
			"cached":     true,
			"latency_ms": latency.Milliseconds(),
			"timestamp":  time.Now(),
		})
		return &Result{Text: text, Cached: true, Model: model, Latency: latency}, nil
	}
	metrics.CacheMisses.Inc()

	resp, err := r.client.Complete(ctx, inference.Request{Query: query, Model: model})
	latency := time.Since(start)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(model, "error").Inc()
		log.Error("request failed",
			"model", model,
			"latency_ms", latency.Milliseconds(),
			"error", err.Error(),
		)
		r.publishEvent(ctx, SubjectRequestFailed, map[string]interface{}{
			"trace_id":   logging.TraceIDFromContext(ctx),
			"model":      model,
			"cache_key":  key,
			"error":      err.Error(),
			"latency_ms": latency.Milliseconds(),
			"timestamp":  time.Now(),
		})
		return nil, err
	}

	// Best-effort write: a full or unreachable cache must not fail the
	// request that already has its answer.
	if err := r.cache.Set(ctx, key, resp.Text, r.ttl); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		log.Warn("cache write failed, response served uncached", "error", err.Error())
	}

	answered := resp.Model
	if answered == "" {
		answered = model
	}
	metrics.RequestsTotal.WithLabelValues(answered, "miss").Inc()
	metrics.RequestDuration.WithLabelValues(answered, "miss").Observe(latency.Seconds())
	log.Info("request completed",
		"model", answered,
		"latency_ms", latency.Milliseconds(),
		"tokens_in", resp.Usage.PromptTokens,
		"tokens_out", resp.Usage.CompletionTokens,
	)
	r.publishEvent(ctx, SubjectRequestCompleted, map[string]interface{}{
		"trace_id":   logging.TraceIDFromContext(ctx),
		"model":      answered,
		"cache_key":  key,
		"cached":     false,
		"latency_ms": latency.Milliseconds(),
		"tokens_in":  resp.Usage.PromptTokens,
		"tokens_out": resp.Usage.CompletionTokens,
		"timestamp":  time.Now(),
	})

	return &Result{Text: resp.Text, Cached: false, Model: answered, Latency: latency}, nil
}

// Health probes the cache and the inference endpoint.
func (r *Relay) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Cache: "ok", Inference: "ok"}
	if err := r.cache.Ping(ctx); err != nil {
		status.Cache = "unreachable"
	}
	if err := r.client.Ping(ctx); err != nil {
		status.Inference = "unreachable"
	}
	return status
}

// CacheStats returns hit/miss counters and the live key count.
func (r *Relay) CacheStats(ctx context.Context) (cache.Stats, error) {
	return r.cache.Stats(ctx)
}

// ClearCache removes every cached response and returns the number removed.
func (r *Relay) ClearCache(ctx context.Context) (int, error) {
	return r.cache.ClearAll(ctx)
}

// publishEvent calls all registered hooks asynchronously.
func (r *Relay) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	r.mu.RLock()
	hooks := make([]EventHookFunc, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()

	// Detach from the request context so hooks outlive the HTTP handler.
	ctx = context.WithoutCancel(ctx)
	for _, h := range hooks {
		fn := h
		go fn(ctx, subject, data)
	}
}

// LogHook adapts a requestlog.Writer into an EventHookFunc so every completed
// or failed request lands in the audit trail.
func LogHook(w requestlog.Writer) EventHookFunc {
	return func(ctx context.Context, subject string, data map[string]interface{}) {
		entry := requestlog.Entry{CreatedAt: time.Now()}
		if v, ok := data["trace_id"].(string); ok {
			entry.TraceID = v
		}
		if v, ok := data["model"].(string); ok {
			entry.Model = v
		}
		if v, ok := data["cache_key"].(string); ok {
			entry.CacheKey = v
		}
		if v, ok := data["cached"].(bool); ok {
			entry.Cached = v
		}
		if v, ok := data["latency_ms"].(int64); ok {
			entry.LatencyMS = v
		}
		if subject == SubjectRequestFailed {
			if v, ok := data["error"].(string); ok {
				entry.ErrorMessage = v
			}
		}
		if err := w.Write(ctx, entry); err != nil {
			logging.FromContext(ctx).Warn("request log write failed", "error", err.Error())
		}
	}
}
