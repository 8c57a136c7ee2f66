package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "github.com/echosoul/backend/pkg/logger"
	"github.com/echosoul/backend/pkg/utils"
)

// HTTPConfig 描述推理端点。
type HTTPConfig struct {
	URL        string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Client     *http.Client
}

// HTTPModel calls a text-classification endpoint speaking the Hugging Face
// inference format.
type HTTPModel struct {
	url        string
	token      string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPModel validates cfg and builds the client.
func NewHTTPModel(cfg HTTPConfig) (*HTTPModel, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("classifier url is required")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &HTTPModel{
		url:        url,
		token:      strings.TrimSpace(cfg.Token),
		client:     client,
		maxRetries: retries,
		retryDelay: delay,
	}, nil
}

type inferenceRequest struct {
	Inputs  string           `json:"inputs"`
	Options inferenceOptions `json:"options"`
}

type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// statusError is returned for non-2xx replies.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("classifier returned status %d: %s", e.Status, e.Body)
}

func (e *statusError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Predict implements Model.
func (m *HTTPModel) Predict(ctx context.Context, text string) ([]LabelScore, error) {
	body, err := json.Marshal(inferenceRequest{Inputs: text, Options: inferenceOptions{WaitForModel: true}})
	if err != nil {
		return nil, fmt.Errorf("encode classifier request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			if err := utils.SleepContext(ctx, utils.CalculateBackoff(m.retryDelay, attempt)); err != nil {
				return nil, err
			}
		}

		scores, err := m.do(ctx, body)
		if err == nil {
			return scores, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.Warn().Err(err).Int("attempt", attempt+1).Msg("classifier request failed")
	}
	return nil, fmt.Errorf("classifier failed after %d attempts: %w", m.maxRetries+1, lastErr)
}

func (m *HTTPModel) do(ctx context.Context, body []byte) ([]LabelScore, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	return decodeScores(payload)
}

// decodeScores accepts both the batched [[...]] and flat [...] shapes.
func decodeScores(payload []byte) ([]LabelScore, error) {
	var nested [][]LabelScore
	if err := json.Unmarshal(payload, &nested); err == nil {
		if len(nested) == 0 {
			return nil, errors.New("classifier returned no predictions")
		}
		return nested[0], nil
	}

	var flat []LabelScore
	if err := json.Unmarshal(payload, &flat); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}
	if len(flat) == 0 {
		return nil, errors.New("classifier returned no predictions")
	}
	return flat, nil
}
