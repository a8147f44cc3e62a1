package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts := Options{
		Token:             "r8_test",
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
		Burst:             10,
		PollInterval:      time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}
	client, err := NewClient(opts)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(Options{})
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestPredictUsesModelEndpointAndWaitHeader(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/models/black-forest-labs/flux-schnell/predictions", r.URL.Path)
		assert.Equal(t, "Bearer r8_test", r.Header.Get("Authorization"))
		assert.Equal(t, "wait=60", r.Header.Get("Prefer"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["https://cdn/x.png"]}`))
	})

	pred, err := client.Predict(context.Background(), ModelSceneGeneration, map[string]any{"prompt": "forest"})
	require.NoError(t, err)
	assert.Equal(t, "p1", pred.ID)
	assert.Equal(t, "https://cdn/x.png", pred.First())
	assert.NotContains(t, body, "version")
	assert.NotContains(t, body, "webhook")
}

func TestPredictPinnedVersionAndWebhook(t *testing.T) {
	var body predictionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/predictions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"id":"p2","status":"succeeded","output":"https://cdn/clean.png"}`))
	}, func(o *Options) { o.WebhookURL = "https://api.example.com/v1/webhooks/replicate?token=s" })

	pred, err := client.Predict(context.Background(), ModelBackgroundRemoval, map[string]any{"image": "https://cdn/in.png"})
	require.NoError(t, err)
	assert.Equal(t, "fb8af171cfa1616ddcf1242c093f9c46bcada5ad4cf6f2fbe8b81b330ec5c003", body.Version)
	assert.Equal(t, "https://api.example.com/v1/webhooks/replicate?token=s", body.Webhook)
	assert.Equal(t, []string{"completed"}, body.WebhookEventsFilter)
	assert.Equal(t, []string{"https://cdn/clean.png"}, pred.Output)
}

func TestPredictPollsUntilTerminal(t *testing.T) {
	var polls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":"p3","status":"starting","output":null}`))
			return
		}
		assert.Equal(t, "/v1/predictions/p3", r.URL.Path)
		if atomic.AddInt32(&polls, 1) < 3 {
			_, _ = w.Write([]byte(`{"id":"p3","status":"processing","output":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"p3","status":"succeeded","output":{"url":"https://cdn/depth.png"}}`))
	})

	pred, err := client.Predict(context.Background(), ModelDepthEstimation, map[string]any{"image": "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
	assert.Equal(t, "https://cdn/depth.png", pred.First())
}

func TestPredictFailedPrediction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p4","status":"failed","error":"CUDA out of memory"}`))
	})

	_, err := client.Predict(context.Background(), ModelUpscale, map[string]any{"image": "x"})
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.Equal(t, "CUDA out of memory", predErr.Message)
}

func TestPredictErrorClassification(t *testing.T) {
	t.Run("rate limited with hint", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"slow down"}`))
		})
		_, err := client.Predict(context.Background(), ModelSceneGeneration, nil)
		var rl *RateLimitError
		require.ErrorAs(t, err, &rl)
		after, ok := rl.RetryAfter()
		assert.True(t, ok)
		assert.Equal(t, 7*time.Second, after)
		assert.False(t, rl.Permanent())
	})
	t.Run("validation error is permanent", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"title":"Input validation failed","detail":"prompt is required"}`))
		})
		_, err := client.Predict(context.Background(), ModelSceneGeneration, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.Permanent())
		assert.Contains(t, apiErr.Error(), "prompt is required")
	})
	t.Run("server error is transient", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.Predict(context.Background(), ModelSceneGeneration, nil)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.False(t, apiErr.Permanent())
	})
}

func TestNormalizeOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "string", raw: `"https://a/1.png"`, want: []string{"https://a/1.png"}},
		{name: "array", raw: `["https://a/1.png","https://a/2.png"]`, want: []string{"https://a/1.png", "https://a/2.png"}},
		{name: "array of objects", raw: `[{"url":"https://a/1.png"}]`, want: []string{"https://a/1.png"}},
		{name: "object", raw: `{"url":"https://a/1.png"}`, want: []string{"https://a/1.png"}},
		{name: "object without url", raw: `{"foo":1}`, want: nil},
		{name: "null", raw: `null`, want: nil},
		{name: "empty", raw: ``, want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeOutput(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
