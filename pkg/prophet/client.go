// Package prophet is a client for the seasonal forecast sidecar.
package prophet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"esg-go-api/internal/resilience"
)

// MinHistory is the shortest series the service accepts
const MinHistory = 12

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. ratePerSec <= 0 disables client-side limiting.
func NewClient(baseURL string, timeout time.Duration, ratePerSec float64) *Client {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type HistoricalDataPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type PredictRequest struct {
	Domain           string                `json:"domain"`
	OrganizationID   string                `json:"organizationId"`
	HistoricalData   []HistoricalDataPoint `json:"historicalData"`
	MonthsToForecast int                   `json:"monthsToForecast"`
}

type PredictResponse struct {
	Forecasted []float64 `json:"forecasted"`
	Confidence struct {
		Lower []float64 `json:"lower"`
		Upper []float64 `json:"upper"`
	} `json:"confidence"`
	Method   string   `json:"method"`
	Metadata Metadata `json:"metadata"`
}

type Metadata struct {
	Trend           float64 `json:"trend"`
	Yearly          float64 `json:"yearly"`
	HistoricalMean  float64 `json:"historical_mean"`
	HistoricalStd   float64 `json:"historical_std"`
	DataPoints      int     `json:"data_points"`
	ForecastHorizon int     `json:"forecast_horizon"`
}

// Predict calls POST /predict. 408/429/5xx responses come back as
// resilience.TransientError.
func (c *Client) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("forecast service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	var out PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}
	return &out, nil
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("forecast service health returned status %d", resp.StatusCode)
	}
	return nil
}
