package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"promo-server/internal/config"
	"promo-server/internal/models"
	"promo-server/internal/retry"
)

// Estimated model pricing per 1M tokens in USD.
const (
	pricePerMillionInputTokensUSD  = 0.1
	pricePerMillionOutputTokensUSD = 0.4
)

// ErrSynthesisFailed marks synthesis errors so the orchestrator can classify
// them with errors.Is.
var ErrSynthesisFailed = errors.New("storyboard synthesis failed")

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_worker_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promo_worker_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiTotalTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promo_worker_ai_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(350, 350, 20),
		},
		[]string{"model"},
	)
	aiEstimatedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_worker_ai_estimated_cost_usd_total",
			Help: "Estimated total cost of AI requests in USD.",
		},
		[]string{"model"},
	)
)

// UsageInfo carries token usage and estimated cost for one synthesis call.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD float64
}

// SynthesisOptions tunes one synthesis call. Pointers distinguish zero values
// from absent ones.
type SynthesisOptions struct {
	Temperature *float64
	MaxTokens   *int
}

// SynthesisClient converts raw lead text into a structured storyboard.
type SynthesisClient interface {
	// Synthesize returns the storyboard for the given raw text and duration
	// tag, or an error when no usable storyboard could be produced.
	Synthesize(ctx context.Context, rawText, durationTag string, opts SynthesisOptions) (*models.SynthesisResult, UsageInfo, error)
}

// NewSynthesisClient selects the backend by AI_CLIENT_TYPE.
func NewSynthesisClient(cfg *config.Config, logger *zap.Logger) (SynthesisClient, error) {
	switch strings.ToLower(cfg.AIClientType) {
	case "openai", "openrouter":
		return newOpenAISynthesisClient(cfg, logger)
	case "ollama":
		return newOllamaSynthesisClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown AI client type %q", cfg.AIClientType)
	}
}

// criticalProfileFromConfig builds the retry profile for the synthesis call.
func criticalProfileFromConfig(cfg *config.Config) retry.Policy {
	p := retry.CriticalProfile()
	if cfg.CriticalMaxAttempts > 0 {
		p.MaxAttempts = cfg.CriticalMaxAttempts
	}
	if cfg.RetryInitialDelay > 0 {
		p.InitialDelay = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		p.MaxDelay = cfg.RetryMaxDelay
	}
	return p
}

func calculateCost(promptTokens, completionTokens int) float64 {
	inputCost := float64(promptTokens) * pricePerMillionInputTokensUSD / 1_000_000.0
	outputCost := float64(completionTokens) * pricePerMillionOutputTokensUSD / 1_000_000.0
	return inputCost + outputCost
}

// estimateTokens falls back to a tokenizer estimate when the API response
// carried no usage block.
func estimateTokens(model, systemPrompt, userInput, response string) (prompt, completion int) {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model for the tokenizer; use a generic encoding.
		tke, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, 0
		}
	}
	prompt = len(tke.Encode(systemPrompt, nil, nil)) + len(tke.Encode(userInput, nil, nil))
	completion = len(tke.Encode(response, nil, nil))
	return prompt, completion
}

// --- OpenAI-compatible implementation ---

type openAISynthesisClient struct {
	client  *openaigo.Client
	model   string
	timeout time.Duration
	policy  retry.Policy
	logger  *zap.Logger
}

func newOpenAISynthesisClient(cfg *config.Config, logger *zap.Logger) (SynthesisClient, error) {
	if strings.TrimSpace(cfg.AIAPIKey) == "" {
		return nil, errors.New("AI API key is not configured")
	}
	clientConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
	if cfg.AIBaseURL != "" {
		clientConfig.BaseURL = cfg.AIBaseURL
	}
	logger.Info("OpenAI-compatible synthesis client created",
		zap.String("base_url", clientConfig.BaseURL),
		zap.String("model", cfg.AIModel))
	return &openAISynthesisClient{
		client:  openaigo.NewClientWithConfig(clientConfig),
		model:   cfg.AIModel,
		timeout: cfg.AITimeout,
		policy:  criticalProfileFromConfig(cfg),
		logger:  logger.Named("SynthesisClient"),
	}, nil
}

func (c *openAISynthesisClient) Synthesize(ctx context.Context, rawText, durationTag string, opts SynthesisOptions) (*models.SynthesisResult, UsageInfo, error) {
	usage := UsageInfo{}
	if strings.TrimSpace(rawText) == "" {
		return nil, usage, fmt.Errorf("%w: raw text is empty", ErrSynthesisFailed)
	}

	systemPrompt := storyboardSystemPrompt
	userInput := buildSynthesisInput(rawText, durationTag)

	var raw string
	err := c.policy.Do(ctx, c.logger, "synthesis", func() error {
		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		defer cancel()

		start := time.Now()
		resp, err := c.client.CreateChatCompletion(callCtx, openaigo.ChatCompletionRequest{
			Model: c.model,
			Messages: []openaigo.ChatCompletionMessage{
				{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openaigo.ChatMessageRoleUser, Content: userInput},
			},
			Temperature: float32Val(opts.Temperature),
			MaxTokens:   intVal(opts.MaxTokens),
			ResponseFormat: &openaigo.ChatCompletionResponseFormat{
				Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		duration := time.Since(start)

		if err != nil {
			aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error"}).Inc()
			return err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error_empty_response"}).Inc()
			return fmt.Errorf("%w: empty response received", ErrSynthesisFailed)
		}

		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "success"}).Inc()
		aiRequestDuration.With(prometheus.Labels{"model": c.model}).Observe(duration.Seconds())

		raw = resp.Choices[0].Message.Content
		if resp.Usage.TotalTokens > 0 {
			usage.PromptTokens = resp.Usage.PromptTokens
			usage.CompletionTokens = resp.Usage.CompletionTokens
			usage.TotalTokens = resp.Usage.TotalTokens
		} else {
			usage.PromptTokens, usage.CompletionTokens = estimateTokens(c.model, systemPrompt, userInput, raw)
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
		usage.EstimatedCostUSD = calculateCost(usage.PromptTokens, usage.CompletionTokens)
		aiTotalTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(usage.TotalTokens))
		if usage.EstimatedCostUSD > 0 {
			aiEstimatedCostUSD.With(prometheus.Labels{"model": c.model}).Add(usage.EstimatedCostUSD)
		}
		return nil
	})
	if err != nil {
		return nil, usage, err
	}

	result, err := parseStoryboard(raw, durationTag)
	if err != nil {
		return nil, usage, err
	}

	c.logger.Info("Storyboard synthesized",
		zap.Int("scenes", len(result.Storyboard)),
		zap.String("pillar", result.Pillar),
		zap.String("template", result.TemplateUsed),
		zap.Int("total_tokens", usage.TotalTokens))
	return result, usage, nil
}

// float32Val converts *float64 to the float32 the OpenAI API expects.
func float32Val(f64 *float64) float32 {
	if f64 == nil {
		return 0
	}
	return float32(*f64)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
