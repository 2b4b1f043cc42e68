package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"promo-server/internal/config"
	"promo-server/internal/models"
	"promo-server/internal/retry"
)

// ErrAssetGenerationFailed marks per-scene asset provider failures.
var ErrAssetGenerationFailed = errors.New("asset generation failed")

// ErrAvatarVideoFailed marks consolidated avatar-video failures.
var ErrAvatarVideoFailed = errors.New("avatar video generation failed")

// ImageClient generates one still image per prompt.
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// VideoClient produces a short motion clip per prompt.
type VideoClient interface {
	SimulateVideo(ctx context.Context, prompt string) (string, error)
}

// AvatarVideoClient renders one consolidated avatar video for all
// avatar-ready scenes.
type AvatarVideoClient interface {
	GenerateAvatarVideo(ctx context.Context, scenes []models.AvatarScene) (string, error)
}

// standardProfileFromConfig builds the retry profile for secondary providers.
func standardProfileFromConfig(cfg *config.Config) retry.Policy {
	p := retry.StandardProfile()
	if cfg.StandardMaxAttempts > 0 {
		p.MaxAttempts = cfg.StandardMaxAttempts
	}
	if cfg.RetryInitialDelay > 0 {
		p.InitialDelay = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		p.MaxDelay = cfg.RetryMaxDelay
	}
	return p
}

// --- Image generation ---

type httpImageClient struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
	logger  *zap.Logger
}

// NewImageClient creates the HTTP image generation client.
func NewImageClient(cfg *config.Config, logger *zap.Logger) ImageClient {
	return &httpImageClient{
		baseURL: strings.TrimSuffix(cfg.ImageAPIBaseURL, "/"),
		client:  &http.Client{Timeout: cfg.AssetAPITimeout},
		policy:  standardProfileFromConfig(cfg),
		logger:  logger.Named("ImageClient"),
	}
}

type assetRequest struct {
	Prompt string `json:"prompt"`
}

type assetResponse struct {
	URL string `json:"url"`
}

func (c *httpImageClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: image prompt is empty", ErrAssetGenerationFailed)
	}

	var assetURL string
	err := c.policy.Do(ctx, c.logger, "image generation", func() error {
		url, err := postAssetRequest(ctx, c.client, c.baseURL+"/generate", "", assetRequest{Prompt: prompt})
		if err != nil {
			return err
		}
		assetURL = url
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAssetGenerationFailed, err)
	}
	c.logger.Debug("Image generated", zap.String("url", assetURL))
	return assetURL, nil
}

// --- Video simulation ---

type httpVideoClient struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
	logger  *zap.Logger
}

// NewVideoClient creates the HTTP video-simulation client.
func NewVideoClient(cfg *config.Config, logger *zap.Logger) VideoClient {
	return &httpVideoClient{
		baseURL: strings.TrimSuffix(cfg.VideoAPIBaseURL, "/"),
		client:  &http.Client{Timeout: cfg.AssetAPITimeout},
		policy:  standardProfileFromConfig(cfg),
		logger:  logger.Named("VideoClient"),
	}
}

func (c *httpVideoClient) SimulateVideo(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: video prompt is empty", ErrAssetGenerationFailed)
	}

	var assetURL string
	err := c.policy.Do(ctx, c.logger, "video simulation", func() error {
		url, err := postAssetRequest(ctx, c.client, c.baseURL+"/simulate", "", assetRequest{Prompt: prompt})
		if err != nil {
			return err
		}
		assetURL = url
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAssetGenerationFailed, err)
	}
	c.logger.Debug("Video simulated", zap.String("url", assetURL))
	return assetURL, nil
}

// --- Consolidated avatar video ---

type httpAvatarVideoClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	policy  retry.Policy
	logger  *zap.Logger
}

// NewAvatarVideoClient creates the avatar-video provider client.
func NewAvatarVideoClient(cfg *config.Config, logger *zap.Logger) AvatarVideoClient {
	return &httpAvatarVideoClient{
		baseURL: strings.TrimSuffix(cfg.AvatarAPIBaseURL, "/"),
		apiKey:  cfg.AvatarAPIKey,
		client:  &http.Client{Timeout: cfg.AssetAPITimeout},
		policy:  standardProfileFromConfig(cfg),
		logger:  logger.Named("AvatarVideoClient"),
	}
}

type avatarVideoRequest struct {
	Scenes []models.AvatarScene `json:"scenes"`
}

type avatarVideoResponse struct {
	Data struct {
		VideoID string `json:"video_id"`
	} `json:"data"`
}

func (c *httpAvatarVideoClient) GenerateAvatarVideo(ctx context.Context, scenes []models.AvatarScene) (string, error) {
	if len(scenes) == 0 {
		return "", fmt.Errorf("%w: no avatar scenes provided", ErrAvatarVideoFailed)
	}
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("%w: avatar provider is not configured", ErrAvatarVideoFailed)
	}

	body, err := json.Marshal(avatarVideoRequest{Scenes: scenes})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %v", ErrAvatarVideoFailed, err)
	}

	var videoID string
	err = c.policy.Do(ctx, c.logger, "avatar video generation", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v2/video/generate", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, readErr := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
		}
		if readErr != nil {
			return fmt.Errorf("failed to read response body: %w", readErr)
		}

		var parsed avatarVideoResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if parsed.Data.VideoID == "" {
			return errors.New("response carried no video id")
		}
		videoID = parsed.Data.VideoID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAvatarVideoFailed, err)
	}

	c.logger.Info("Consolidated avatar video requested",
		zap.String("video_id", videoID), zap.Int("scenes", len(scenes)))
	return videoID, nil
}

// postAssetRequest posts a JSON payload and expects {"url": "..."} back.
func postAssetRequest(ctx context.Context, client *http.Client, endpoint, apiKey string, payload assetRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
	}
	if readErr != nil {
		return "", fmt.Errorf("failed to read response body: %w", readErr)
	}

	var parsed assetResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.URL == "" {
		return "", errors.New("response carried no asset url")
	}
	return parsed.URL, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
