// Package llm classifies citations in paper text using an OpenAI-compatible
// chat completion API.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/matsen/citelens/internal/citation"
	"github.com/matsen/citelens/internal/retry"
)

const (
	// DefaultEndpoint is the chat completion URL.
	DefaultEndpoint = "https://api.siliconflow.cn/v1/chat/completions"

	// DefaultModel is the model id sent with every request.
	DefaultModel = "deepseek-ai/DeepSeek-R1-Distill-Qwen-32B"

	DefaultTemperature  = 0.3
	DefaultMaxTokens    = 2000
	DefaultTimeout      = 60 * time.Second
	DefaultMaxTextChars = 30000

	// RequestIDHeader carries the per-attempt request id.
	RequestIDHeader = "X-Request-Id"
)

// Client classifies the citations of one paper per call. It is safe for
// concurrent use; calls share only the rate limiter.
type Client struct {
	api        *openai.Client
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	prompt     *template.Template
	log        logrus.FieldLogger

	endpoint     string
	apiKey       string
	model        string
	temperature  float32
	maxTokens    int
	maxTextChars int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the bearer credential.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithEndpoint sets the full chat completion URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithModel sets the model id.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithSampling sets temperature and the completion token limit.
func WithSampling(temperature float32, maxTokens int) ClientOption {
	return func(c *Client) {
		c.temperature = temperature
		c.maxTokens = maxTokens
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithRateLimit caps requests per second across all callers. Zero or less
// disables the limiter.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetryPolicy replaces the backoff policy. The retryable predicate is
// always IsTransient.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) {
		sleep := c.policy.Sleep
		c.policy = p
		if c.policy.Sleep == nil {
			c.policy.Sleep = sleep
		}
	}
}

// WithSleeper replaces the clock used between attempts (for testing).
func WithSleeper(s retry.Sleeper) ClientOption {
	return func(c *Client) {
		c.policy.Sleep = s
	}
}

// WithPromptTemplate replaces the built-in prompt.
func WithPromptTemplate(t *template.Template) ClientOption {
	return func(c *Client) {
		c.prompt = t
	}
}

// WithMaxTextChars sets how much paper text is sent.
func WithMaxTextChars(n int) ClientOption {
	return func(c *Client) {
		c.maxTextChars = n
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(log logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a classifier client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		policy:       retry.Default(IsTransient),
		prompt:       DefaultPromptTemplate(),
		log:          logrus.StandardLogger(),
		endpoint:     DefaultEndpoint,
		model:        DefaultModel,
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		maxTextChars: DefaultMaxTextChars,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.policy.Retryable = IsTransient
	c.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    delay.String(),
		}).WithError(err).Warn("llm.classify.retry")
	}

	hc := *c.httpClient
	hc.Transport = &observingTransport{base: hc.Transport}

	config := openai.DefaultConfig(c.apiKey)
	config.BaseURL = BaseURL(c.endpoint)
	config.HTTPClient = &hc
	c.api = openai.NewClientWithConfig(config)

	return c
}

// BaseURL derives the API base URL from a full chat completion endpoint.
func BaseURL(endpoint string) string {
	base := strings.TrimRight(endpoint, "/")
	return strings.TrimSuffix(base, "/chat/completions")
}

// Classify asks the model for the bibliographic data of the paper and every
// evaluation of targetTitle in it. Transient failures are retried under the
// client's policy; anything else returns at once.
func (c *Client) Classify(ctx context.Context, text, targetTitle string) (citation.Paper, error) {
	prompt, err := BuildPrompt(c.prompt, targetTitle, text, c.maxTextChars)
	if err != nil {
		return citation.Paper{}, err
	}

	var paper citation.Paper
	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		p, err := c.complete(ctx, prompt, attempt)
		if err != nil {
			return err
		}
		paper = p
		return nil
	})
	if err != nil {
		return citation.Paper{}, err
	}
	return paper, nil
}

func (c *Client) complete(ctx context.Context, prompt string, attempt int) (citation.Paper, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return citation.Paper{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	obs := &observation{requestID: uuid.New().String()}
	ctx = context.WithValue(ctx, observationKey{}, obs)
	start := time.Now()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: &c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})

	log := c.log.WithFields(logrus.Fields{
		"req_id":     obs.requestID,
		"attempt":    attempt,
		"status":     obs.status,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	if err != nil {
		err = classifyError(ctx, err, obs.status)
		log.WithError(err).Debug("llm.classify.http_error")
		return citation.Paper{}, err
	}
	if len(resp.Choices) == 0 {
		log.Debug("llm.classify.no_choices")
		return citation.Paper{}, fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}

	paper, unknown, err := DecodePaper(resp.Choices[0].Message.Content)
	if err != nil {
		log.WithError(err).Debug("llm.classify.decode_error")
		return citation.Paper{}, err
	}
	for _, label := range unknown {
		log.WithField("sentiment", label).Warn("llm.classify.unknown_sentiment")
	}

	log.WithField("citations", len(paper.Citations)).Debug("llm.classify.ok")
	return paper, nil
}

type observationKey struct{}

// observation is filled in by the transport for one attempt.
type observation struct {
	requestID string
	status    int
}

// observingTransport tags each request with its id and records the HTTP
// status of the response.
type observingTransport struct {
	base http.RoundTripper
}

func (t *observingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	obs, _ := req.Context().Value(observationKey{}).(*observation)
	if obs != nil {
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, obs.requestID)
	}

	resp, err := base.RoundTrip(req)
	if obs != nil && resp != nil {
		obs.status = resp.StatusCode
	}
	return resp, err
}
