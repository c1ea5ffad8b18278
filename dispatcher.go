package textact

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/EugeneMsv/textact/internal/circuitbreaker"
	"github.com/EugeneMsv/textact/internal/logging"
	"github.com/EugeneMsv/textact/internal/metrics"
	"github.com/EugeneMsv/textact/internal/promptcache"
	"github.com/EugeneMsv/textact/internal/ratelimit"
	"github.com/EugeneMsv/textact/internal/requestlog"
	"github.com/EugeneMsv/textact/internal/settings"
	"github.com/EugeneMsv/textact/providers"
)

// Dispatch-level errors.
var (
	// ErrBlockedDomain rejects actions originating from a blocklisted domain.
	ErrBlockedDomain = errors.New("domain is blocked")
	// ErrRateLimited rejects calls throttled by the outbound rate limiter.
	ErrRateLimited = errors.New("provider rate limit exceeded")
	// ErrNoProvider means no configured target could take the request.
	ErrNoProvider = errors.New("no provider available")
)

// RemoteError is a remote API failure surfaced to the requester, either live
// or replayed from the prompt cache. Its message is the provider's verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// ActionRequest is one text-action invocation.
type ActionRequest struct {
	Action         Action `json:"action"`
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	// SourceURL is the page the text was selected on; used for the domain
	// blocklist check.
	SourceURL string `json:"sourceUrl,omitempty"`
}

// ActionResult is a completed text action.
type ActionResult struct {
	Text     string          `json:"responseText"`
	Model    string          `json:"model,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Cached   bool            `json:"cached"`
	Usage    providers.Usage `json:"usage,omitempty"`
}

// Dispatcher routes action requests: blocklist check, template rendering,
// prompt cache lookup, then an ordered fallback walk over the configured
// provider targets with per-provider rate limiting and circuit breaking.
// Identical concurrent prompts share a single in-flight remote call.
type Dispatcher struct {
	cfg      Config
	registry *providers.Registry
	cache    *promptcache.Cache
	settings *settings.Service
	limiter  *ratelimit.PerProvider
	breakers map[string]*circuitbreaker.Breaker
	logw     requestlog.Writer

	mu       sync.Mutex
	inflight map[string]*inflightCall
}

type inflightCall struct {
	done   chan struct{}
	result *ActionResult
	err    error
}

// NewDispatcher wires a Dispatcher from a validated Config. logw may be nil.
func NewDispatcher(cfg Config, registry *providers.Registry, settingsSvc *settings.Service, logw requestlog.Writer) (*Dispatcher, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if settingsSvc == nil {
		return nil, fmt.Errorf("settings service is required")
	}
	if logw == nil {
		logw = requestlog.NoopWriter{}
	}

	breakers := make(map[string]*circuitbreaker.Breaker, len(cfg.Targets))
	for _, t := range cfg.Targets {
		if _, ok := breakers[t.Provider]; ok {
			continue
		}
		breakers[t.Provider] = circuitbreaker.New(circuitbreaker.Settings{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
			Cooldown:         time.Duration(cfg.CircuitBreaker.CooldownSeconds) * time.Second,
		})
	}

	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		cache:    promptcache.New(cfg.Cache.Capacity),
		settings: settingsSvc,
		limiter:  ratelimit.NewPerProvider(cfg.RateLimit.RatePerSecond, cfg.RateLimit.Burst),
		breakers: breakers,
		logw:     logw,
		inflight: make(map[string]*inflightCall),
	}, nil
}

// Cache exposes the prompt cache for management endpoints.
func (d *Dispatcher) Cache() *promptcache.Cache { return d.cache }

// Settings exposes the settings service.
func (d *Dispatcher) Settings() *settings.Service { return d.settings }

// Do runs one text action end to end.
func (d *Dispatcher) Do(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	action, err := ParseAction(string(req.Action))
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(string(req.Action), "rejected").Inc()
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		metrics.ActionsTotal.WithLabelValues(string(action), "rejected").Inc()
		return nil, errors.New("text is required")
	}

	userSettings, err := d.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if host := hostOf(req.SourceURL); host != "" && userSettings.IsBlocked(host) {
		metrics.ActionsTotal.WithLabelValues(string(action), "blocked").Inc()
		log.Info("action blocked by domain blocklist", "action", action, "host", host)
		return nil, fmt.Errorf("%w: %s", ErrBlockedDomain, host)
	}

	tpl, ok := userSettings.Template(string(action))
	if !ok {
		metrics.ActionsTotal.WithLabelValues(string(action), "rejected").Inc()
		return nil, fmt.Errorf("no prompt template for action %q", action)
	}
	prompt := renderPrompt(tpl, req.Text, req.TargetLanguage)
	key := promptcache.Key(prompt)

	if cached, ok := d.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues(string(action)).Inc()
		result, err := replay(cached)
		d.finish(ctx, action, result, err, true, start)
		return result, err
	}
	metrics.CacheMisses.WithLabelValues(string(action)).Inc()

	result, err := d.dispatch(ctx, action, userSettings, prompt, key)
	d.finish(ctx, action, result, err, false, start)
	return result, err
}

// replay converts a memoized result back into the live call's shape.
func replay(cached promptcache.Result) (*ActionResult, error) {
	if cached.ErrMessage != "" {
		return nil, &RemoteError{Message: cached.ErrMessage}
	}
	return &ActionResult{Text: cached.Text, Cached: true}, nil
}

// dispatch deduplicates concurrent identical prompts, then walks the target
// chain for the winner.
func (d *Dispatcher) dispatch(ctx context.Context, action Action, userSettings settings.Settings, prompt, key string) (*ActionResult, error) {
	d.mu.Lock()
	if call, ok := d.inflight[key]; ok {
		d.mu.Unlock()
		select {
		case <-call.done:
			return call.result, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	d.inflight[key] = call
	d.mu.Unlock()

	call.result, call.err = d.generate(ctx, action, userSettings, prompt, key)
	close(call.done)

	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()

	return call.result, call.err
}

// generate walks the target chain in order and memoizes the outcome.
// Remote API failures are cached like successes; local rejections
// (rate limit, open circuit, cancellation) are not.
func (d *Dispatcher) generate(ctx context.Context, action Action, userSettings settings.Settings, prompt, key string) (*ActionResult, error) {
	log := logging.FromContext(ctx)

	var lastErr error
	var remoteErr *providers.Error

	for _, target := range d.cfg.Targets {
		p, ok := d.registry.Get(target.Provider)
		if !ok {
			continue
		}

		if !d.limiter.Allow(target.Provider) {
			metrics.ProviderErrors.WithLabelValues(target.Provider, "rate_limited").Inc()
			lastErr = fmt.Errorf("%w: %s", ErrRateLimited, target.Provider)
			continue
		}

		model := d.resolveModel(target, userSettings, p)
		preq := providers.Request{
			Model:       model,
			Prompt:      prompt,
			Temperature: d.cfg.Generation.Temperature,
			MaxTokens:   d.cfg.Generation.MaxTokens,
		}
		if err := preq.Validate(); err != nil {
			return nil, err
		}

		breaker := d.breakers[target.Provider]
		var resp *providers.Response
		err := breaker.Do(func() error {
			var callErr error
			resp, callErr = p.Generate(ctx, preq)
			return callErr
		})
		metrics.CircuitBreakerState.WithLabelValues(target.Provider).Set(float64(breaker.State()))

		if err == nil {
			metrics.TokensInput.WithLabelValues(target.Provider, model).Add(float64(resp.Usage.PromptTokens))
			metrics.TokensOutput.WithLabelValues(target.Provider, model).Add(float64(resp.Usage.CompletionTokens))
			d.cache.Put(key, promptcache.Result{Text: resp.Text})
			return &ActionResult{
				Text:     resp.Text,
				Model:    resp.Model,
				Provider: target.Provider,
				Usage:    resp.Usage,
			}, nil
		}

		if errors.Is(err, circuitbreaker.ErrOpen) {
			metrics.ProviderErrors.WithLabelValues(target.Provider, "circuit_open").Inc()
			lastErr = err
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		metrics.ProviderErrors.WithLabelValues(target.Provider, "provider_error").Inc()
		log.Warn("provider call failed", "action", action, "provider", target.Provider, "error", err)
		lastErr = err
		var perr *providers.Error
		if errors.As(err, &perr) {
			remoteErr = perr
		}
	}

	if remoteErr != nil {
		d.cache.Put(key, promptcache.Result{ErrMessage: remoteErr.Message})
		return nil, &RemoteError{Message: remoteErr.Message}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoProvider
}

// resolveModel picks the model for a target: explicit target override, then
// the user-configured model when the provider supports it, then the
// provider's first known model.
func (d *Dispatcher) resolveModel(target Target, userSettings settings.Settings, p providers.Provider) string {
	if target.Model != "" {
		return target.Model
	}
	if userSettings.Model != "" && p.SupportsModel(userSettings.Model) {
		return userSettings.Model
	}
	if models := p.SupportedModels(); len(models) > 0 {
		return models[0]
	}
	return userSettings.Model
}

// finish records metrics and the request log entry for a completed action.
func (d *Dispatcher) finish(ctx context.Context, action Action, result *ActionResult, err error, cacheHit bool, start time.Time) {
	status := "success"
	entry := requestlog.Entry{
		RequestID: logging.RequestIDFromContext(ctx),
		Action:    string(action),
		CacheHit:  cacheHit,
	}
	if err != nil {
		status = "error"
		entry.ErrorMessage = err.Error()
	} else if result != nil {
		entry.Provider = result.Provider
		entry.Model = result.Model
		entry.PromptTokens = result.Usage.PromptTokens
		entry.CompletionTokens = result.Usage.CompletionTokens
		entry.TotalTokens = result.Usage.TotalTokens
	}

	metrics.ActionsTotal.WithLabelValues(string(action), status).Inc()
	metrics.ActionDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())

	if werr := d.logw.Write(ctx, entry); werr != nil {
		logging.FromContext(ctx).Warn("failed to write action log entry", "error", werr)
	}
}

// hostOf extracts the lowercase host from a page URL. Bare hosts without a
// scheme are accepted as-is.
func hostOf(sourceURL string) string {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return ""
	}
	if u, err := url.Parse(sourceURL); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	// No scheme: treat the value as a bare host, dropping any path.
	host := sourceURL
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(host)
}
