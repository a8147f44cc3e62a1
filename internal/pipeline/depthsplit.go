package pipeline

import (
	"context"
	"fmt"

	"spritegen/internal/domain"
)

// runDepthSplit estimates a depth map for the scene's source image and
// records layers that reference the source at evenly spread depths.
func (o *Orchestrator) runDepthSplit(ctx context.Context, r *run) error {
	var input domain.DepthSplitJobInput
	if err := r.decodeInput(&input); err != nil {
		return err
	}
	total := input.LayerCount
	if total == 0 {
		total = domain.DefaultSplitLayers
	}
	if total < domain.MinLayers || total > domain.MaxLayers {
		return fmt.Errorf("%w: layer count %d outside %d..%d", domain.ErrInvalidInput, total, domain.MinLayers, domain.MaxLayers)
	}
	scene, err := o.entities.GetScene(ctx, input.SceneID)
	if err != nil {
		return fmt.Errorf("load scene %s: %w", input.SceneID, err)
	}
	if scene.SourceImageKey == "" {
		return fmt.Errorf("%w: scene %s has no source image", domain.ErrInvalidInput, scene.ID)
	}

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	if err := r.progress(ctx, 10, "depth-estimation"); err != nil {
		return err
	}
	start := o.now()
	pred, err := o.models.EstimateDepth(ctx, o.blobs.URL(scene.SourceImageKey))
	if err != nil {
		return fmt.Errorf("%s: %w", domain.StageDepthEstimation, err)
	}
	if pred.First() == "" {
		return fmt.Errorf("%s: %w", domain.StageDepthEstimation, errEmptyOutput)
	}
	depthKey, err := o.blobs.Import(ctx, fmt.Sprintf("scenes/%s/depth.png", scene.ID), pred.First())
	if err != nil {
		return fmt.Errorf("store depth map: %w", err)
	}
	if err := r.record(ctx, 40, "depth-estimation", domain.NewStep{
		Stage:        domain.StageDepthEstimation,
		Name:         "depth-estimation",
		Order:        0,
		Output:       mustJSON(map[string]any{"depthMapKey": depthKey}),
		PredictionID: pred.ID,
		DurationMS:   r.since(start),
	}); err != nil {
		return err
	}

	layers := make([]domain.SceneLayer, 0, total)
	for i := 0; i < total; i++ {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		layer := domain.SceneLayer{Index: i, Depth: layerDepth(i, total), ImageKey: scene.SourceImageKey}
		name := fmt.Sprintf("layer-%d", i)
		if err := r.record(ctx, 40+(i+1)*50/total, name, domain.NewStep{
			Stage: domain.StageLayerGeneration,
			Name:  name,
			Order: i + 1,
			Output: mustJSON(map[string]any{
				"layerIndex":  i,
				"depth":       layer.Depth,
				"imageKey":    layer.ImageKey,
				"depthMapKey": depthKey,
			}),
		}); err != nil {
			return err
		}
		layers = append(layers, layer)
	}

	if err := o.entities.SetSceneLayers(ctx, scene.ID, layers); err != nil {
		return fmt.Errorf("save scene layers: %w", err)
	}
	if err := o.jobs.Complete(ctx, r.job.ID, mustJSON(domain.ParallaxResult{Layers: layers})); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	o.enqueuePreview(ctx, r, scene.ID)
	return nil
}
