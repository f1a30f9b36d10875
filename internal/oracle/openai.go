package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/gyeh/billadj/internal/metrics"
)

// OpenAIConfig configures the OpenAI-backed oracle.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string  // optional, for compatible gateways
	RPS       float64 // client-side request rate; 0 disables limiting
	MaxTokens int
}

// OpenAI implements Oracle with chat completions.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewOpenAI builds an OpenAI oracle.
func NewOpenAI(cfg OpenAIConfig, log zerolog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &OpenAI{
		client:    openai.NewClientWithConfig(cc),
		model:     model,
		maxTokens: maxTokens,
		limiter:   limiter,
		log:       log.With().Str("component", "oracle").Str("model", model).Logger(),
	}, nil
}

// CompareBatch asks for one YES/NO judgment per pair.
func (o *OpenAI) CompareBatch(ctx context.Context, label string, pairs []Pair) ([]*bool, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	text, err := o.complete(ctx, comparePrompt(label, pairs))
	if err != nil {
		observe("compare", err)
		return nil, err
	}
	verdicts, err := ParseVerdicts(text)
	observe("compare", err)
	return verdicts, err
}

// Justify asks which diagnoses support each procedure.
func (o *OpenAI) Justify(ctx context.Context, procedures, diagnoses []Described) (map[string][]string, error) {
	text, err := o.complete(ctx, justifyPrompt(procedures, diagnoses))
	if err != nil {
		observe("justify", err)
		return nil, err
	}
	attr, err := ParseAttribution(text)
	observe("justify", err)
	return attr, err
}

func observe(kind string, err error) {
	outcome := "ok"
	var se *ShapeError
	switch {
	case errors.As(err, &se):
		outcome = "malformed"
	case err != nil:
		outcome = "error"
	}
	metrics.OracleCalls.WithLabelValues(kind, outcome).Inc()
}

func (o *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         0,
		MaxCompletionTokens: o.maxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.log.Debug().Err(err).Msg("chat completion failed")
		return "", wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ShapeError{Kind: "completion", Reason: "no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

// statusError exposes the HTTP status of an API failure to the retry classifier.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) StatusCode() int { return e.code }

func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &statusError{code: apiErr.HTTPStatusCode, err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &statusError{code: reqErr.HTTPStatusCode, err: err}
	}
	return err
}
