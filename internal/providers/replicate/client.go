package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"spritegen/internal/infra"
)

// ErrMissingToken indicates that the client was configured without credentials.
var ErrMissingToken = errors.New("replicate: api token is required")

// Prediction statuses.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Options configures the Replicate HTTP client.
type Options struct {
	Token             string
	BaseURL           string
	WebhookURL        string
	RequestsPerSecond float64
	Burst             int
	WaitSeconds       int
	PollInterval      time.Duration
	HTTPClient        *http.Client
	Logger            *infra.Logger
}

// Client performs prediction calls against the Replicate API.
type Client struct {
	token        string
	baseURL      string
	webhookURL   string
	waitSeconds  int
	pollInterval time.Duration
	limiter      *rate.Limiter
	httpClient   *http.Client
	logger       *infra.Logger
}

// Prediction is the normalized view of a provider prediction.
type Prediction struct {
	ID     string
	Model  string
	Status string
	Output []string
	Error  string
}

// First returns the first output URL or "".
func (p Prediction) First() string {
	if len(p.Output) == 0 {
		return ""
	}
	return p.Output[0]
}

// Terminal reports whether the prediction will not change anymore.
func (p Prediction) Terminal() bool {
	return terminalStatus(p.Status)
}

type predictionRequest struct {
	Version             string         `json:"version,omitempty"`
	Input               map[string]any `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Model  string          `json:"model"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, ErrMissingToken
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com"
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	wait := opts.WaitSeconds
	if wait <= 0 {
		wait = 60
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Client{
		token:        token,
		baseURL:      baseURL,
		webhookURL:   strings.TrimSpace(opts.WebhookURL),
		waitSeconds:  wait,
		pollInterval: poll,
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// Predict creates a prediction for model and waits for it to settle.
// Pinned ids ("owner/name:version") go through the versioned endpoint.
func (c *Client) Predict(ctx context.Context, model string, input map[string]any) (Prediction, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return Prediction{}, errors.New("replicate: model is required")
	}
	payload := predictionRequest{Input: input}
	endpoint := c.baseURL + "/v1/predictions"
	if _, version, pinned := strings.Cut(model, ":"); pinned {
		payload.Version = version
	} else {
		endpoint = c.baseURL + "/v1/models/" + model + "/predictions"
	}
	if c.webhookURL != "" {
		payload.Webhook = c.webhookURL
		payload.WebhookEventsFilter = []string{"completed"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Prediction{}, fmt.Errorf("replicate: encode request: %w", err)
	}

	var resp predictionResponse
	headers := map[string]string{"Prefer": "wait=" + strconv.Itoa(c.waitSeconds)}
	if err := c.do(ctx, http.MethodPost, endpoint, body, headers, &resp); err != nil {
		return Prediction{}, err
	}
	pred, err := toPrediction(resp)
	if err != nil {
		return Prediction{}, err
	}
	if pred.Model == "" {
		pred.Model = model
	}
	c.logger.Debug().
		Str("model", model).
		Str("prediction_id", pred.ID).
		Str("status", pred.Status).
		Msg("replicate: prediction created")

	for !pred.Terminal() {
		if err := sleep(ctx, c.pollInterval); err != nil {
			return pred, err
		}
		next, err := c.Get(ctx, pred.ID)
		if err != nil {
			return pred, err
		}
		if next.Model == "" {
			next.Model = pred.Model
		}
		pred = next
	}
	if pred.Status != StatusSucceeded {
		return pred, &PredictionError{ID: pred.ID, Status: pred.Status, Message: pred.Error}
	}
	return pred, nil
}

// Get fetches the current state of a prediction.
func (c *Client) Get(ctx context.Context, id string) (Prediction, error) {
	if strings.TrimSpace(id) == "" {
		return Prediction{}, errors.New("replicate: prediction id is required")
	}
	var resp predictionResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/predictions/"+id, nil, nil, &resp); err != nil {
		return Prediction{}, err
	}
	return toPrediction(resp)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("replicate: rate limiter: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("replicate: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return newAPIError(resp, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("replicate: decode response: %w", err)
	}
	return nil
}

func newAPIError(resp *http.Response, raw []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil && (detail.Detail != "" || detail.Title != "") {
		apiErr.Detail = strings.TrimSpace(detail.Title + " " + detail.Detail)
	} else {
		apiErr.Detail = strings.TrimSpace(string(raw))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		rl := &RateLimitError{APIError: apiErr}
		if v := strings.TrimSpace(resp.Header.Get("Retry-After")); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				rl.After = time.Duration(secs) * time.Second
				rl.HasAfter = true
			}
		}
		return rl
	}
	return apiErr
}

func toPrediction(resp predictionResponse) (Prediction, error) {
	output, err := normalizeOutput(resp.Output)
	if err != nil {
		return Prediction{}, err
	}
	pred := Prediction{
		ID:     resp.ID,
		Model:  resp.Model,
		Status: resp.Status,
		Output: output,
	}
	switch v := resp.Error.(type) {
	case nil:
	case string:
		pred.Error = v
	default:
		if b, err := json.Marshal(v); err == nil {
			pred.Error = string(b)
		}
	}
	return pred, nil
}

// normalizeOutput flattens the shapes models return into a list of URLs:
// a string, an array of strings or objects, an object with "url", or null.
func normalizeOutput(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return nil, fmt.Errorf("replicate: decode output: %w", err)
	}
	switch v := decoded.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if url := outputURL(item); url != "" {
				out = append(out, url)
			}
		}
		return out, nil
	case map[string]any:
		if url := outputURL(v); url != "" {
			return []string{url}, nil
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func outputURL(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case map[string]any:
		if url, ok := v["url"].(string); ok {
			return url
		}
	}
	return ""
}

func terminalStatus(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
