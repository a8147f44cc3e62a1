package replicate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spritegen/internal/retry"
)

// Model identifiers used by the pipelines.
const (
	ModelBackgroundRemoval = "cjwbw/rembg:fb8af171cfa1616ddcf1242c093f9c46bcada5ad4cf6f2fbe8b81b330ec5c003"
	ModelStyleTransfer     = "retro-diffusion/rd-plus"
	ModelSpriteAnimation   = "retro-diffusion/rd-animation"
	ModelUpscale           = "nightmareai/real-esrgan:f121d640bd286e1fdc67f9799164c1d5be36ff74576ee11c803ae5b665dd46aa"
	ModelSceneGeneration   = "black-forest-labs/flux-schnell"
	ModelDepthEstimation   = "chenxwh/depth-anything-v2"
)

// Sprite animation styles understood by the animation model.
const (
	StyleWalkingAndIdle   = "walking_and_idle"
	StyleFourAngleWalking = "four_angle_walking"
)

// UpscaleFactor is the scale requested from the upscaler.
const UpscaleFactor = 4

// Predictor creates a prediction and waits for its outcome.
type Predictor interface {
	Predict(ctx context.Context, model string, input map[string]any) (Prediction, error)
}

// Models exposes one method per pipeline stage, each retried.
type Models struct {
	predictor Predictor
	retry     retry.Config
}

// NewModels wraps predictor with the given retry policy.
func NewModels(predictor Predictor, cfg retry.Config) *Models {
	return &Models{predictor: predictor, retry: cfg}
}

// SpriteSheetRequest describes one animation sheet to generate.
type SpriteSheetRequest struct {
	Prompt   string
	Style    string
	ImageURL string
}

// RemoveBackground strips the background of imageURL.
func (m *Models) RemoveBackground(ctx context.Context, imageURL string) (Prediction, error) {
	return m.call(ctx, ModelBackgroundRemoval, map[string]any{"image": imageURL})
}

// StyleTransfer restyles imageURL with prompt.
func (m *Models) StyleTransfer(ctx context.Context, imageURL, prompt string) (Prediction, error) {
	return m.call(ctx, ModelStyleTransfer, map[string]any{
		"input_image": imageURL,
		"prompt":      prompt,
		"strength":    0.5,
	})
}

// GenerateSpriteSheet renders one animation sheet.
func (m *Models) GenerateSpriteSheet(ctx context.Context, req SpriteSheetRequest) (Prediction, error) {
	input := map[string]any{
		"prompt": req.Prompt,
		"style":  req.Style,
	}
	if strings.TrimSpace(req.ImageURL) != "" {
		input["input_image"] = req.ImageURL
	}
	return m.call(ctx, ModelSpriteAnimation, input)
}

// Upscale enlarges imageURL by UpscaleFactor.
func (m *Models) Upscale(ctx context.Context, imageURL string) (Prediction, error) {
	return m.call(ctx, ModelUpscale, map[string]any{"image": imageURL, "scale": UpscaleFactor})
}

// GenerateScene renders a scene layer from prompt.
func (m *Models) GenerateScene(ctx context.Context, prompt, aspectRatio string) (Prediction, error) {
	return m.call(ctx, ModelSceneGeneration, map[string]any{
		"prompt":        prompt,
		"output_format": "png",
		"aspect_ratio":  aspectRatio,
	})
}

// EstimateDepth produces a depth map of imageURL.
func (m *Models) EstimateDepth(ctx context.Context, imageURL string) (Prediction, error) {
	return m.call(ctx, ModelDepthEstimation, map[string]any{"image": imageURL})
}

func (m *Models) call(ctx context.Context, model string, input map[string]any) (Prediction, error) {
	var pred Prediction
	err := retry.Do(ctx, m.retry, func(ctx context.Context, _ int) error {
		p, err := m.predictor.Predict(ctx, model, input)
		if err != nil {
			return classify(err)
		}
		pred = p
		return nil
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("%s: %w", model, err)
	}
	return pred, nil
}

func classify(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Permanent() {
		return retry.Permanent(err)
	}
	return err
}
