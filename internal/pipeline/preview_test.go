package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spritegen/internal/domain"
)

func solidPNG(t *testing.T, w, h int, fill func(x, y int) color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRunPreviewCompositesBackToFront(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	h.blobs.objects["scenes/s1/layer-0.png"] = solidPNG(t, 4, 4, func(int, int) color.NRGBA { return red })
	// foreground covers only the left half
	h.blobs.objects["scenes/s1/layer-1.png"] = solidPNG(t, 4, 4, func(x, _ int) color.NRGBA {
		if x < 2 {
			return blue
		}
		return color.NRGBA{}
	})
	h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	// stored out of order on purpose
	require.NoError(t, h.store.SetSceneLayers(ctx, "s1", []domain.SceneLayer{
		{Index: 1, Depth: 1, ImageKey: "scenes/s1/layer-1.png"},
		{Index: 0, Depth: 0, ImageKey: "scenes/s1/layer-0.png"},
	}))

	require.NoError(t, h.orch.RunPreview(ctx, "s1"))

	scene, err := h.store.GetScene(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "scenes/s1/preview.png", scene.PreviewKey)

	img, err := png.Decode(bytes.NewReader(h.blobs.objects[scene.PreviewKey]))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, []uint32{0, 0, 0xffff, 0xffff}, []uint32{r, g, b, a})
	r, g, b, a = img.At(3, 3).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0, 0xffff}, []uint32{r, g, b, a})
}

func TestRunPreviewWithoutLayers(t *testing.T) {
	h := newHarness(t)
	h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	assert.ErrorIs(t, h.orch.RunPreview(context.Background(), "s1"), domain.ErrInvalidInput)
}

func TestRunPreviewRejectsUndecodableLayer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.blobs.objects["scenes/s1/layer-0.png"] = []byte("https://provider.test/layer.png")
	h.scene(t, domain.Scene{ID: "s1", UserID: "u1"})
	require.NoError(t, h.store.SetSceneLayers(ctx, "s1", []domain.SceneLayer{{ImageKey: "scenes/s1/layer-0.png"}}))

	err := h.orch.RunPreview(ctx, "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode layer 0")
}
