package replicate

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodePrediction parses a prediction body as delivered to the webhook.
func DecodePrediction(body []byte) (Prediction, error) {
	var resp predictionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Prediction{}, fmt.Errorf("replicate: decode prediction: %w", err)
	}
	if resp.ID == "" {
		return Prediction{}, errors.New("replicate: prediction without id")
	}
	return toPrediction(resp)
}
