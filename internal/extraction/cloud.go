package extraction

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/voxnotes/internal/config"
	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-haiku-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 1024
	defaultTimeout          = 30 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second
	defaultCacheTTL         = 10 * time.Minute
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// extractionTemperature keeps model output close to deterministic.
const extractionTemperature = 0.1

var (
	// ErrCloudUnavailable is returned when no API key is configured.
	ErrCloudUnavailable = errors.New("cloud model not configured")
	// ErrCloudAuth means the provider rejected the API key. It is never
	// retried.
	ErrCloudAuth = errors.New("cloud model rejected credentials")
)

// completer sends one system+user exchange to a hosted model.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
	name() string
}

// CloudClient extracts entities with a hosted model. Transcripts and entity
// previews are scrubbed for secrets before they leave the device, and
// results are cached by prompt.
type CloudClient struct {
	backend completer
	cache   *cache.Cache
	logger  *zap.Logger
	now     func() time.Time
}

// CloudOption configures a CloudClient.
type CloudOption func(*CloudClient)

// WithCloudClock overrides the clock used for prompt dates.
func WithCloudClock(now func() time.Time) CloudOption {
	return func(c *CloudClient) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCloudClient builds a client for cfg.Provider.
func NewCloudClient(cfg config.CloudConfig, logger *zap.Logger, opts ...CloudOption) (*CloudClient, error) {
	if !cfg.Enabled() {
		return nil, ErrCloudUnavailable
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ttl := cfg.CacheTTL.Duration()
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	var backend completer
	switch cfg.Provider {
	case config.ProviderAnthropic, "":
		backend = newAnthropicBackend(cfg, timeout)
	case config.ProviderOpenAI:
		backend = newOpenAIBackend(cfg, timeout)
	default:
		return nil, fmt.Errorf("unsupported cloud provider %q", cfg.Provider)
	}

	c := &CloudClient{
		backend: backend,
		cache:   cache.New(ttl, 2*ttl),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Provider names the hosted backend.
func (c *CloudClient) Provider() string {
	return c.backend.name()
}

// Completion sends a bare prompt and returns the model's text.
func (c *CloudClient) Completion(ctx context.Context, prompt string) (string, error) {
	return c.backend.complete(ctx, "", scrubSecrets(prompt))
}

// ExtractEntities asks the hosted model to extract entities from
// transcript. Completions may only reference entities in active.
func (c *CloudClient) ExtractEntities(ctx context.Context, transcript string, active []entity.Entity) (entity.ExtractionResult, error) {
	known := make(map[string]bool, len(active))
	previews := previewLines(active)
	for i := range previews {
		previews[i] = scrubSecrets(previews[i])
	}
	for _, e := range active {
		known[e.ID] = true
	}

	system := SystemPrompt(c.now(), previews)
	user := UserPrompt(scrubSecrets(transcript))

	key := cacheKey(system, user)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("cloud extraction cache hit", zap.String("provider", c.backend.name()))
		return cached.(entity.ExtractionResult), nil
	}

	raw, err := c.backend.complete(ctx, system, user)
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("%s completion: %w", c.backend.name(), err)
	}

	result, err := ParseModelOutput(raw, known)
	if err != nil {
		c.logger.Warn("cloud output held no extraction",
			zap.String("provider", c.backend.name()),
			zap.Int("output_len", len(raw)))
		return entity.ExtractionResult{}, err
	}
	result.Strategy = entity.StrategyCloud

	c.cache.Set(key, result, cache.DefaultExpiration)
	return result, nil
}

func cacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// httpBackend holds what the Anthropic and OpenAI backends share.
type httpBackend struct {
	model       string
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
}

func newHTTPBackend(cfg config.CloudConfig, timeout time.Duration, defaultModel, defaultBaseURL string) httpBackend {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return httpBackend{
		model:       model,
		apiKey:      cfg.APIKey.Value(),
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// withRetries runs do under the rate limiter, retrying retryable failures
// with exponential backoff.
func (b *httpBackend) withRetries(ctx context.Context, do func() (string, error)) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := b.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := do()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// post sends body to path and returns the body of a 200 reply. Both
// providers report failures as {"error":{"message":...}}.
func (b *httpBackend) post(ctx context.Context, path string, body any, headers map[string]string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	msg := gjson.GetBytes(data, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (%d): %s", ErrCloudAuth, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, &retryableError{err: fmt.Errorf("status %d: %s", resp.StatusCode, msg)}
	}
	return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}

// chatMessage is the role/content pair both providers accept.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// replyText pulls the model text from a 200 body at path.
func replyText(body []byte, path string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errors.New("response is not JSON")
	}
	text := gjson.GetBytes(body, path)
	if !text.Exists() {
		return "", errors.New("empty response")
	}
	return text.String(), nil
}

// anthropicBackend calls the Anthropic Messages API.
type anthropicBackend struct {
	httpBackend
}

func newAnthropicBackend(cfg config.CloudConfig, timeout time.Duration) *anthropicBackend {
	return &anthropicBackend{httpBackend: newHTTPBackend(cfg, timeout, defaultAnthropicModel, defaultAnthropicBaseURL)}
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

func (a *anthropicBackend) name() string { return config.ProviderAnthropic }

func (a *anthropicBackend) complete(ctx context.Context, system, user string) (string, error) {
	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   defaultMaxTokens,
		System:      system,
		Messages:    []chatMessage{{Role: "user", Content: user}},
		Temperature: extractionTemperature,
	}
	headers := map[string]string{
		"X-API-Key":         a.apiKey,
		"Anthropic-Version": "2023-06-01",
	}
	return a.withRetries(ctx, func() (string, error) {
		body, err := a.post(ctx, "/v1/messages", req, headers)
		if err != nil {
			return "", err
		}
		return replyText(body, "content.0.text")
	})
}

// openAIBackend calls the OpenAI Chat Completions API.
type openAIBackend struct {
	httpBackend
}

func newOpenAIBackend(cfg config.CloudConfig, timeout time.Duration) *openAIBackend {
	return &openAIBackend{httpBackend: newHTTPBackend(cfg, timeout, defaultOpenAIModel, defaultOpenAIBaseURL)}
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

func (o *openAIBackend) name() string { return config.ProviderOpenAI }

func (o *openAIBackend) complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	req := openAIRequest{
		Model:       o.model,
		Messages:    append(messages, chatMessage{Role: "user", Content: user}),
		MaxTokens:   defaultMaxTokens,
		Temperature: extractionTemperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	return o.withRetries(ctx, func() (string, error) {
		body, err := o.post(ctx, "/v1/chat/completions", req, headers)
		if err != nil {
			return "", err
		}
		return replyText(body, "choices.0.message.content")
	})
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var secretPatterns = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	{
		regexp.MustCompile(`(OPENAI_API_KEY|ANTHROPIC_API_KEY|GITHUB_TOKEN|GITLAB_TOKEN|AWS_SECRET_ACCESS_KEY)\s*=\s*([^\s]+)`),
		"$1=[REDACTED:ENV_SECRET]",
	},
	{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
		"[REDACTED:ANTHROPIC_KEY]",
	},
	{
		regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
		"[REDACTED:OPENAI_KEY]",
	},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?\s*([^"'\s\[]{8,})["']?`),
		"$1=[REDACTED:API_KEY]",
	},
	{
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]{20,}`),
		"[REDACTED:BEARER_TOKEN]",
	},
	{
		regexp.MustCompile(`(?i)(token|auth[_-]?token)\s*[:=]\s*["']?\s*([^"'\s]{8,})["']?`),
		"$1=[REDACTED:TOKEN]",
	},
	{
		regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']?\s*([^"'\s]{4,})["']?`),
		"$1=[REDACTED:PASSWORD]",
	},
	{
		regexp.MustCompile(`(?i)\b(?:card|credit\s+card)\s+(?:number\s+)?(?:is\s+)?(\d[\d\s-]{11,}\d)`),
		"card [REDACTED:CARD]",
	},
	{
		regexp.MustCompile(`(?i)-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		"[REDACTED:PRIVATE_KEY]",
	},
}

// scrubSecrets removes secret patterns from text before it is sent to a
// hosted model. Spoken notes can hold dictated passwords or card numbers.
func scrubSecrets(content string) string {
	result := content
	for _, p := range secretPatterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

var (
	_ completer = (*anthropicBackend)(nil)
	_ completer = (*openAIBackend)(nil)
)
