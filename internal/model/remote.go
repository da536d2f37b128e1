package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruralpay/kite/internal/domain"
)

const defaultTimeout = 2 * time.Second

// RemoteScorer calls an external inference endpoint over HTTP. The call
// is time-bounded; timeouts, transport errors, non-2xx responses, and
// malformed or out-of-range outputs all degrade to the neutral (0, 0)
// pair. Nothing propagates to the aggregator.
type RemoteScorer struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// NewRemoteScorer creates a scorer for the given inference endpoint.
func NewRemoteScorer(endpoint string, timeout time.Duration) *RemoteScorer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RemoteScorer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
}

// scoreRequest is the inference request payload.
type scoreRequest struct {
	Amount    float64 `json:"amount"`
	Hour      int     `json:"hour"`
	Weekday   int     `json:"weekday"`
	AvgAmount float64 `json:"avgAmount"`
	TxCount   int64   `json:"txCount"`
	DeviceID  string  `json:"deviceId"`
}

// scoreResponse is the inference response payload.
type scoreResponse struct {
	Probability float64 `json:"probability"`
	Confidence  float64 `json:"confidence"`
}

// Score calls the endpoint and neutralizes every failure mode.
func (s *RemoteScorer) Score(ctx context.Context, tx *domain.Transaction, profile *domain.UserProfile) (float64, float64) {
	probability, confidence, err := s.call(ctx, tx, profile)
	if err != nil {
		slog.Warn("model scorer degraded to neutral",
			"endpoint", s.endpoint,
			"error", err,
		)
		return 0, 0
	}
	return probability, confidence
}

func (s *RemoteScorer) call(ctx context.Context, tx *domain.Transaction, profile *domain.UserProfile) (float64, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload := scoreRequest{
		Amount:   tx.Amount,
		Hour:     tx.Timestamp.Hour(),
		Weekday:  int(tx.Timestamp.Weekday()),
		DeviceID: tx.DeviceID,
	}
	if profile != nil {
		payload.AvgAmount = profile.AvgAmount
		payload.TxCount = profile.TotalCount
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("inference call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("inference returned status %d", resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, fmt.Errorf("failed to decode response: %w", err)
	}

	if out.Probability < 0 || out.Probability > 1 || out.Confidence < 0 || out.Confidence > 1 {
		return 0, 0, fmt.Errorf("inference returned out-of-range scores: p=%.3f c=%.3f", out.Probability, out.Confidence)
	}

	return out.Probability, out.Confidence, nil
}
