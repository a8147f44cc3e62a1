package pipeline

import (
	"context"
	"fmt"

	"spritegen/internal/domain"
	"spritegen/internal/scheduler"
)

func (o *Orchestrator) runParallax(ctx context.Context, r *run) error {
	var input domain.ParallaxJobInput
	if err := r.decodeInput(&input); err != nil {
		return err
	}
	total := input.LayerCount
	if total == 0 {
		total = domain.DefaultParallaxLayers
	}
	if total < domain.MinLayers || total > domain.MaxLayers {
		return fmt.Errorf("%w: layer count %d outside %d..%d", domain.ErrInvalidInput, total, domain.MinLayers, domain.MaxLayers)
	}
	scene, err := o.entities.GetScene(ctx, input.SceneID)
	if err != nil {
		return fmt.Errorf("load scene %s: %w", input.SceneID, err)
	}
	aspect := aspectRatioFor(input.DeviceWidth, input.DeviceHeight)

	layers := make([]domain.SceneLayer, 0, total)
	for i := 0; i < total; i++ {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		if i == 0 {
			if err := r.progress(ctx, 0, "layer-0"); err != nil {
				return err
			}
		}
		layer, ok, res := o.generateLayer(ctx, r, scene, i, total, aspect)
		if err := r.settle(domain.StageLayerGeneration, res); err != nil {
			return err
		}
		if ok {
			layers = append(layers, layer)
		}
	}

	if err := o.entities.SetSceneLayers(ctx, scene.ID, layers); err != nil {
		return fmt.Errorf("save scene layers: %w", err)
	}
	result := domain.ParallaxResult{Layers: layers, Warnings: r.warnings}
	if err := o.jobs.Complete(ctx, r.job.ID, mustJSON(result)); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	o.enqueuePreview(ctx, r, scene.ID)
	return nil
}

// generateLayer renders layer i. Layers above the backdrop get their
// background removed so they composite cleanly; that pass is best effort.
// A layer whose generation returns no output is skipped, its step still
// written.
func (o *Orchestrator) generateLayer(ctx context.Context, r *run, scene domain.Scene, i, total int, aspect string) (domain.SceneLayer, bool, StageResult) {
	start := o.now()
	depth := layerDepth(i, total)
	name := fmt.Sprintf("layer-%d", i)
	progress := (i + 1) * 90 / total

	pred, err := o.models.GenerateScene(ctx, layerPrompt(scene, i, total), aspect)
	if err != nil {
		return domain.SceneLayer{}, false, fatal(fmt.Errorf("%s: %w", name, err))
	}

	output := map[string]any{"layerIndex": i, "depth": depth}
	step := domain.NewStep{
		Stage:        domain.StageLayerGeneration,
		Name:         name,
		Order:        i,
		PredictionID: pred.ID,
	}
	layerURL := pred.First()
	if layerURL == "" {
		output["skipped"] = true
		step.Output = mustJSON(output)
		step.DurationMS = r.since(start)
		if err := r.record(ctx, progress, name, step); err != nil {
			return domain.SceneLayer{}, false, fatal(err)
		}
		return domain.SceneLayer{}, false, degraded(errEmptyOutput, name+" produced no image, skipped")
	}

	var cutErr error
	if i > 0 {
		cut, err := o.models.RemoveBackground(ctx, layerURL)
		switch {
		case err != nil:
			cutErr = err
		case cut.First() == "":
			cutErr = errEmptyOutput
		default:
			layerURL = cut.First()
		}
		if cutErr != nil && isStop(cutErr) {
			return domain.SceneLayer{}, false, fatal(cutErr)
		}
	}

	key, err := o.blobs.Import(ctx, fmt.Sprintf("scenes/%s/%s.png", scene.ID, name), layerURL)
	if err != nil {
		return domain.SceneLayer{}, false, fatal(fmt.Errorf("store %s: %w", name, err))
	}
	output["imageKey"] = key
	if cutErr != nil {
		output["backgroundRemovalError"] = cutErr.Error()
	}
	step.Output = mustJSON(output)
	step.DurationMS = r.since(start)
	if err := r.record(ctx, progress, name, step); err != nil {
		return domain.SceneLayer{}, false, fatal(err)
	}

	layer := domain.SceneLayer{Index: i, Depth: depth, ImageKey: key}
	if cutErr != nil {
		return layer, true, degraded(cutErr, name+" kept its background")
	}
	return layer, true, succeeded()
}

// enqueuePreview schedules the composite preview. Failures only log.
func (o *Orchestrator) enqueuePreview(ctx context.Context, r *run, sceneID string) {
	if o.dispatcher == nil {
		return
	}
	task := scheduler.CompositePreview(sceneID)
	task.EnqueuedAt = o.now()
	var err error
	// An in-process queue is drained by the same workers that run jobs.
	if try, ok := o.dispatcher.(scheduler.TryDispatcher); ok {
		err = try.TryEnqueue(task)
	} else {
		err = o.dispatcher.Enqueue(ctx, task)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("scene_id", sceneID).Msg("pipeline: enqueue composite preview failed")
	}
}
