package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spritegen/internal/domain"
	"spritegen/internal/providers/replicate"
	"spritegen/internal/scheduler"
)

func (h *harness) scene(t *testing.T, s domain.Scene) domain.Scene {
	t.Helper()
	created, err := h.store.CreateScene(context.Background(), s)
	require.NoError(t, err)
	return created
}

func TestParallaxPipelineCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1", Description: "misty forest"})
	job := h.charge(t, "u1", domain.JobTypeParallax, domain.ParallaxJobInput{SceneID: s.ID, LayerCount: 3, DeviceWidth: 1920, DeviceHeight: 1080}, 3)

	require.NoError(t, h.orch.Run(ctx, job.ID))

	done := h.job(t, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	assert.Equal(t, 97, h.balance(t, "u1"))

	var res domain.ParallaxResult
	require.NoError(t, json.Unmarshal(done.Result, &res))
	require.Len(t, res.Layers, 3)
	for i, layer := range res.Layers {
		assert.Equal(t, i, layer.Index)
	}
	assert.Equal(t, []float64{0, 0.5, 1}, []float64{res.Layers[0].Depth, res.Layers[1].Depth, res.Layers[2].Depth})
	assert.Equal(t, "scenes/s1/layer-0.png", res.Layers[0].ImageKey)

	// backdrop keeps its background; upper layers are cut out
	assert.Equal(t, 2, h.models.Calls("RemoveBackground"))
	assert.Equal(t, []string{"16:9", "16:9", "16:9"}, h.models.aspects)

	stored, err := h.store.GetScene(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Layers, 3)

	steps := h.steps(t, job.ID)
	require.Len(t, steps, 3)
	assert.Equal(t, "layer-2", steps[2].Name)
	assert.Equal(t, 2, steps[2].Order)
	assert.Equal(t, domain.StageLayerGeneration, steps[2].Stage)
	assert.Contains(t, h.jobs.values, 30)
	assert.Contains(t, h.jobs.values, 90)

	require.Len(t, h.dispatcher.tasks, 1)
	assert.Equal(t, scheduler.KindCompositePreview, h.dispatcher.tasks[0].Kind)
	assert.Equal(t, s.ID, h.dispatcher.tasks[0].SceneID)
}

func TestParallaxSingleLayerHasDepthZero(t *testing.T) {
	h := newHarness(t)
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	job := h.charge(t, "u1", domain.JobTypeParallax, domain.ParallaxJobInput{SceneID: s.ID, LayerCount: 1}, 1)

	require.NoError(t, h.orch.Run(context.Background(), job.ID))

	var res domain.ParallaxResult
	require.NoError(t, json.Unmarshal(h.job(t, job.ID).Result, &res))
	require.Len(t, res.Layers, 1)
	assert.Zero(t, res.Layers[0].Depth)
	assert.Zero(t, h.models.Calls("RemoveBackground"))
	assert.Equal(t, []string{"9:16"}, h.models.aspects)
}

func TestParallaxCancelMidRunStopsWithoutSecondRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	job := h.charge(t, "u1", domain.JobTypeParallax, domain.ParallaxJobInput{SceneID: s.ID, LayerCount: 6}, 6)

	h.models.scene = func(n int, _, _ string) (replicate.Prediction, error) {
		if n == 3 {
			// what the cancel endpoint does while layer 2 is rendering
			outcome, err := h.store.Cancel(ctx, job.ID)
			require.NoError(t, err)
			require.Equal(t, domain.CancelApplied, outcome)
			_, err = h.store.Refund(ctx, "u1", 6, job.ID, domain.RefundCancelledDescription)
			require.NoError(t, err)
		}
		return predicted("scene", "https://provider.test/layer.png")
	}

	require.NoError(t, h.orch.Run(ctx, job.ID))

	assert.Equal(t, domain.JobStatusCancelled, h.job(t, job.ID).Status)
	assert.Len(t, h.steps(t, job.ID), 2)
	assert.Equal(t, 3, h.models.Calls("GenerateScene"))
	assert.Equal(t, 1, h.refunds(t, "u1"))
	assert.Equal(t, 100, h.balance(t, "u1"))
	assert.Empty(t, h.dispatcher.tasks)
}

func TestParallaxLayerWithoutOutputIsSkipped(t *testing.T) {
	h := newHarness(t)
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	h.models.scene = func(n int, _, _ string) (replicate.Prediction, error) {
		if n == 2 {
			return replicate.Prediction{ID: "empty", Status: replicate.StatusSucceeded}, nil
		}
		return predicted("scene", "https://provider.test/layer.png")
	}
	job := h.charge(t, "u1", domain.JobTypeParallax, domain.ParallaxJobInput{SceneID: s.ID, LayerCount: 3}, 3)

	require.NoError(t, h.orch.Run(context.Background(), job.ID))

	var res domain.ParallaxResult
	require.NoError(t, json.Unmarshal(h.job(t, job.ID).Result, &res))
	assert.Len(t, res.Layers, 2)
	assert.NotEmpty(t, res.Warnings)
	steps := h.steps(t, job.ID)
	require.Len(t, steps, 3)
	assert.Contains(t, string(steps[1].Output), `"skipped":true`)
}

func TestParallaxBackgroundRemovalFailureKeepsLayer(t *testing.T) {
	h := newHarness(t)
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	h.models.removeBackground = func(string) (replicate.Prediction, error) {
		return replicate.Prediction{}, errors.New("rembg timeout")
	}
	job := h.charge(t, "u1", domain.JobTypeParallax, domain.ParallaxJobInput{SceneID: s.ID, LayerCount: 2}, 2)

	require.NoError(t, h.orch.Run(context.Background(), job.ID))

	var res domain.ParallaxResult
	require.NoError(t, json.Unmarshal(h.job(t, job.ID).Result, &res))
	assert.Len(t, res.Layers, 2)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, "https://provider.test/layer-2.png", string(h.blobs.objects["scenes/s1/layer-1.png"]))
}

func TestParallaxGenerationFailureCompensates(t *testing.T) {
	h := newHarness(t)
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	h.models.scene = func(n int, _, _ string) (replicate.Prediction, error) {
		if n == 2 {
			return replicate.Prediction{}, errors.New("flux unavailable")
		}
		return predicted("scene", "https://provider.test/layer.png")
	}
	job := h.charge(t, "u1", domain.JobTypeParallax, domain.ParallaxJobInput{SceneID: s.ID, LayerCount: 4}, 4)

	require.Error(t, h.orch.Run(context.Background(), job.ID))

	assert.Equal(t, domain.JobStatusFailed, h.job(t, job.ID).Status)
	assert.Equal(t, 1, h.refunds(t, "u1"))
	assert.Equal(t, 100, h.balance(t, "u1"))
	assert.Empty(t, h.dispatcher.tasks)
}

func TestParallaxRejectsLayerCountOutOfRange(t *testing.T) {
	h := newHarness(t)
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	job := h.charge(t, "u1", domain.JobTypeParallax, domain.ParallaxJobInput{SceneID: s.ID, LayerCount: 9}, 9)

	assert.ErrorIs(t, h.orch.Run(context.Background(), job.ID), domain.ErrInvalidInput)
	assert.Equal(t, domain.JobStatusFailed, h.job(t, job.ID).Status)
	assert.Zero(t, h.models.Calls("GenerateScene"))
}

func TestDepthSplitPipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1", SourceImageKey: "uploads/city.png"})
	job := h.charge(t, "u1", domain.JobTypeDepthSplit, domain.DepthSplitJobInput{SceneID: s.ID}, domain.DepthSplitCost)

	require.NoError(t, h.orch.Run(ctx, job.ID))

	done := h.job(t, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	assert.Equal(t, 99, h.balance(t, "u1"))

	steps := h.steps(t, job.ID)
	require.Len(t, steps, 1+domain.DefaultSplitLayers)
	assert.Equal(t, domain.StageDepthEstimation, steps[0].Stage)
	assert.Equal(t, "depth-1", steps[0].PredictionID)

	stored, err := h.store.GetScene(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, stored.Layers, 3)
	assert.Equal(t, 0.5, stored.Layers[1].Depth)
	assert.Equal(t, "uploads/city.png", stored.Layers[2].ImageKey)
	assert.Equal(t, []int{10, 40, 56, 73, 90}, h.jobs.values)
	assert.Len(t, h.dispatcher.tasks, 1)
}

func TestDepthSplitWithoutSourceImageFails(t *testing.T) {
	h := newHarness(t)
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	job := h.charge(t, "u1", domain.JobTypeDepthSplit, domain.DepthSplitJobInput{SceneID: s.ID}, 1)

	assert.ErrorIs(t, h.orch.Run(context.Background(), job.ID), domain.ErrInvalidInput)
	assert.Equal(t, domain.JobStatusFailed, h.job(t, job.ID).Status)
	assert.Equal(t, 100, h.balance(t, "u1"))
	assert.Zero(t, h.models.Calls("EstimateDepth"))
}

// saturatedQueue never has room and would block forever on Enqueue.
type saturatedQueue struct {
	blocked int
	tried   int
}

func (q *saturatedQueue) Enqueue(ctx context.Context, _ scheduler.Task) error {
	q.blocked++
	<-ctx.Done()
	return ctx.Err()
}

func (q *saturatedQueue) TryEnqueue(scheduler.Task) error {
	q.tried++
	return scheduler.ErrQueueFull
}

func TestParallaxCompletesWhenPreviewQueueIsFull(t *testing.T) {
	h := newHarness(t)
	q := &saturatedQueue{}
	h.orch.dispatcher = q
	s := h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	job := h.charge(t, "u1", domain.JobTypeParallax, domain.ParallaxJobInput{SceneID: s.ID, LayerCount: 2}, 2)

	require.NoError(t, h.orch.Run(context.Background(), job.ID))

	assert.Equal(t, domain.JobStatusCompleted, h.job(t, job.ID).Status)
	assert.Equal(t, 1, q.tried)
	assert.Zero(t, q.blocked)
}
