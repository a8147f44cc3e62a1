package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"sort"

	_ "image/jpeg"

	"spritegen/internal/domain"
)

// RunPreview composites a scene's layers back to front into one PNG and
// records it as the scene preview.
func (o *Orchestrator) RunPreview(ctx context.Context, sceneID string) error {
	scene, err := o.entities.GetScene(ctx, sceneID)
	if err != nil {
		return fmt.Errorf("pipeline: load scene %s: %w", sceneID, err)
	}
	if len(scene.Layers) == 0 {
		return fmt.Errorf("pipeline: scene %s has no layers: %w", sceneID, domain.ErrInvalidInput)
	}
	layers := append([]domain.SceneLayer(nil), scene.Layers...)
	sort.SliceStable(layers, func(i, j int) bool { return layers[i].Depth < layers[j].Depth })

	var canvas *image.RGBA
	for _, layer := range layers {
		data, err := o.blobs.Read(ctx, layer.ImageKey)
		if err != nil {
			return fmt.Errorf("pipeline: read layer %d: %w", layer.Index, err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("pipeline: decode layer %d: %w", layer.Index, err)
		}
		if canvas == nil {
			canvas = image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
		}
		draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return fmt.Errorf("pipeline: encode preview: %w", err)
	}
	key, err := o.blobs.Write(ctx, fmt.Sprintf("scenes/%s/preview.png", scene.ID), buf.Bytes())
	if err != nil {
		return fmt.Errorf("pipeline: store preview: %w", err)
	}
	if err := o.entities.SetScenePreview(ctx, scene.ID, key); err != nil {
		return fmt.Errorf("pipeline: record preview: %w", err)
	}
	o.logger.Info().Str("scene_id", scene.ID).Str("key", key).Int("layers", len(layers)).Msg("pipeline: preview composited")
	return nil
}
