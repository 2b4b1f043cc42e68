package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"promo-server/internal/config"
	"promo-server/internal/models"
	"promo-server/internal/retry"
)

// ollamaSynthesisClient talks to a local Ollama instance through its native
// API. Used for development runs without an external provider.
type ollamaSynthesisClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	policy  retry.Policy
	logger  *zap.Logger
}

func newOllamaSynthesisClient(cfg *config.Config, logger *zap.Logger) (SynthesisClient, error) {
	baseURL := strings.TrimSuffix(cfg.AIBaseURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ollama base URL %q: %w", baseURL, err)
	}

	httpClient := &http.Client{Timeout: cfg.AITimeout}
	logger.Info("Ollama synthesis client created",
		zap.String("base_url", baseURL),
		zap.String("model", cfg.AIModel))
	return &ollamaSynthesisClient{
		client:  api.NewClient(parsedURL, httpClient),
		model:   cfg.AIModel,
		timeout: cfg.AITimeout,
		policy:  criticalProfileFromConfig(cfg),
		logger:  logger.Named("SynthesisClient"),
	}, nil
}

func (c *ollamaSynthesisClient) Synthesize(ctx context.Context, rawText, durationTag string, opts SynthesisOptions) (*models.SynthesisResult, UsageInfo, error) {
	usage := UsageInfo{}
	if strings.TrimSpace(rawText) == "" {
		return nil, usage, fmt.Errorf("%w: raw text is empty", ErrSynthesisFailed)
	}

	systemPrompt := storyboardSystemPrompt
	userInput := buildSynthesisInput(rawText, durationTag)
	stream := false

	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userInput},
		},
		Stream: &stream,
		Format: []byte(`"json"`),
		Options: map[string]any{
			"temperature": float32Val(opts.Temperature),
		},
	}

	var raw string
	err := c.policy.Do(ctx, c.logger, "synthesis", func() error {
		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		defer cancel()

		start := time.Now()
		var content strings.Builder
		var promptTokens, completionTokens int
		err := c.client.Chat(callCtx, req, func(resp api.ChatResponse) error {
			content.WriteString(resp.Message.Content)
			if resp.Done {
				promptTokens = resp.Metrics.PromptEvalCount
				completionTokens = resp.Metrics.EvalCount
			}
			return nil
		})
		duration := time.Since(start)

		if err != nil {
			aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error"}).Inc()
			return err
		}
		raw = content.String()
		if strings.TrimSpace(raw) == "" {
			aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error_empty_response"}).Inc()
			return fmt.Errorf("%w: empty response received", ErrSynthesisFailed)
		}

		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "success"}).Inc()
		aiRequestDuration.With(prometheus.Labels{"model": c.model}).Observe(duration.Seconds())

		if promptTokens > 0 || completionTokens > 0 {
			usage.PromptTokens = promptTokens
			usage.CompletionTokens = completionTokens
		} else {
			usage.PromptTokens, usage.CompletionTokens = estimateTokens(c.model, systemPrompt, userInput, raw)
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		usage.EstimatedCostUSD = 0 // local inference
		aiTotalTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(usage.TotalTokens))
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
		zap.String("template", result.TemplateUsed))
	return result, usage, nil
}
