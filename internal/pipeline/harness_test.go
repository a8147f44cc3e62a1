package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"spritegen/internal/adapter/memory"
	"spritegen/internal/domain"
	"spritegen/internal/providers/replicate"
	"spritegen/internal/scheduler"
)

// fakeModels answers every call with a deterministic URL unless a hook
// overrides the method.
type fakeModels struct {
	mu    sync.Mutex
	calls map[string]int

	removeBackground func(imageURL string) (replicate.Prediction, error)
	styleTransfer    func(imageURL string) (replicate.Prediction, error)
	spriteSheet      func(req replicate.SpriteSheetRequest) (replicate.Prediction, error)
	upscale          func(imageURL string) (replicate.Prediction, error)
	scene            func(n int, prompt, aspect string) (replicate.Prediction, error)
	depth            func(imageURL string) (replicate.Prediction, error)
	aspects          []string
}

func newFakeModels() *fakeModels {
	return &fakeModels{calls: map[string]int{}}
}

func (f *fakeModels) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.calls[method]
}

func (f *fakeModels) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func predicted(id, url string) (replicate.Prediction, error) {
	return replicate.Prediction{ID: id, Status: replicate.StatusSucceeded, Output: []string{url}}, nil
}

func (f *fakeModels) RemoveBackground(_ context.Context, imageURL string) (replicate.Prediction, error) {
	n := f.count("RemoveBackground")
	if f.removeBackground != nil {
		return f.removeBackground(imageURL)
	}
	return predicted("bg-"+strconv.Itoa(n), "https://provider.test/clean-"+strconv.Itoa(n)+".png")
}

func (f *fakeModels) StyleTransfer(_ context.Context, imageURL, _ string) (replicate.Prediction, error) {
	n := f.count("StyleTransfer")
	if f.styleTransfer != nil {
		return f.styleTransfer(imageURL)
	}
	return predicted("style-"+strconv.Itoa(n), "https://provider.test/styled.png")
}

func (f *fakeModels) GenerateSpriteSheet(_ context.Context, req replicate.SpriteSheetRequest) (replicate.Prediction, error) {
	n := f.count("GenerateSpriteSheet")
	if f.spriteSheet != nil {
		return f.spriteSheet(req)
	}
	return predicted("sheet-"+strconv.Itoa(n), "https://provider.test/sheet-"+strconv.Itoa(n)+".png")
}

func (f *fakeModels) Upscale(_ context.Context, imageURL string) (replicate.Prediction, error) {
	n := f.count("Upscale")
	if f.upscale != nil {
		return f.upscale(imageURL)
	}
	return predicted("up-"+strconv.Itoa(n), strings.TrimSuffix(imageURL, ".png")+"@4x.png")
}

func (f *fakeModels) GenerateScene(_ context.Context, prompt, aspect string) (replicate.Prediction, error) {
	n := f.count("GenerateScene")
	f.mu.Lock()
	f.aspects = append(f.aspects, aspect)
	f.mu.Unlock()
	if f.scene != nil {
		return f.scene(n, prompt, aspect)
	}
	return predicted("scene-"+strconv.Itoa(n), "https://provider.test/layer-"+strconv.Itoa(n)+".png")
}

func (f *fakeModels) EstimateDepth(_ context.Context, imageURL string) (replicate.Prediction, error) {
	f.count("EstimateDepth")
	if f.depth != nil {
		return f.depth(imageURL)
	}
	return predicted("depth-1", "https://provider.test/depth.png")
}

// fakeBlobs keeps objects in memory; imports store the source URL as bytes.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failFor string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (b *fakeBlobs) Import(_ context.Context, key, sourceURL string) (string, error) {
	if b.failFor != "" && strings.Contains(key, b.failFor) {
		return "", errors.New("blob store unavailable")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = []byte(sourceURL)
	return key, nil
}

func (b *fakeBlobs) Read(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("missing object " + key)
	}
	return data, nil
}

func (b *fakeBlobs) Write(_ context.Context, key string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return key, nil
}

func (b *fakeBlobs) URL(key string) string { return "https://blobs.test/" + key }

type fakeDispatcher struct {
	mu    sync.Mutex
	tasks []scheduler.Task
}

func (d *fakeDispatcher) Enqueue(_ context.Context, task scheduler.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return nil
}

// progressLog records every accepted progress write.
type progressLog struct {
	domain.JobStore
	mu     sync.Mutex
	values []int
}

func (p *progressLog) UpdateProgress(ctx context.Context, jobID string, progress int, step string) error {
	err := p.JobStore.UpdateProgress(ctx, jobID, progress, step)
	if err == nil {
		p.mu.Lock()
		p.values = append(p.values, progress)
		p.mu.Unlock()
	}
	return err
}

type harness struct {
	store      *memory.Store
	jobs       *progressLog
	models     *fakeModels
	blobs      *fakeBlobs
	dispatcher *fakeDispatcher
	orch       *Orchestrator
	seq        int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	h := &harness{
		store:      store,
		jobs:       &progressLog{JobStore: store},
		models:     newFakeModels(),
		blobs:      newFakeBlobs(),
		dispatcher: &fakeDispatcher{},
	}
	h.orch = NewOrchestrator(Deps{
		Jobs:       h.jobs,
		Ledger:     store,
		Entities:   store,
		Models:     h.models,
		Blobs:      h.blobs,
		Dispatcher: h.dispatcher,
	})
	return h
}

// charge deducts credits and creates the job the way the generation
// service does.
func (h *harness) charge(t *testing.T, userID string, jobType domain.JobType, input any, cost int) domain.Job {
	t.Helper()
	ctx := context.Background()
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	h.seq++
	jobID := fmt.Sprintf("job-%d", h.seq)
	_, err = h.store.Deduct(ctx, userID, cost, jobID, "test charge")
	require.NoError(t, err)
	job, err := h.store.CreateJob(ctx, domain.NewJob{
		ID:             jobID,
		UserID:         userID,
		Type:           jobType,
		Input:          raw,
		CreditsCharged: cost,
	})
	require.NoError(t, err)
	return job
}

func (h *harness) refunds(t *testing.T, userID string) int {
	t.Helper()
	txs, err := h.store.ListTransactions(context.Background(), userID, 100)
	require.NoError(t, err)
	n := 0
	for _, tx := range txs {
		if tx.Type == domain.TransactionRefund {
			n++
		}
	}
	return n
}

func (h *harness) balance(t *testing.T, userID string) int {
	t.Helper()
	b, err := h.store.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (h *harness) job(t *testing.T, id string) domain.Job {
	t.Helper()
	job, err := h.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (h *harness) steps(t *testing.T, id string) []domain.JobStep {
	t.Helper()
	steps, err := h.store.ListSteps(context.Background(), id)
	require.NoError(t, err)
	return steps
}
