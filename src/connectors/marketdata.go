// REST CLIENT FOR THE MARKET-DATA FEATURE SERVICE
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"allocengine/src/model"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

var ErrSymbolNotCovered = errors.New("symbol not covered by the feature service")

// featureResponse is the feature service's per-symbol payload.
type featureResponse struct {
	Symbol           string   `json:"symbol"`
	Price            float64  `json:"price"`
	ATR              float64  `json:"atr"`
	ADVValue         float64  `json:"adv_value"`
	VolatilityRegime string   `json:"volatility_regime"`
	LiquidityRegime  string   `json:"liquidity_regime"`
	NextEventDate    *string  `json:"next_event_date,omitempty"` // YYYY-MM-DD
	AsOf             int64    `json:"as_of"`                     // unix millis
	Errors           []string `json:"errors,omitempty"`
}

// ADVSource supplies a locally derived average daily traded value when the
// feature service has no volume figure for a symbol. Backed by the daily
// candle cache.
type ADVSource interface {
	AverageDailyValue(ctx context.Context, symbol string, to time.Time, lookback int) (float64, error)
}

// MarketDataClient talks to the market-data feature service and normalizes
// its payload into MarketSnapshot.
type MarketDataClient struct {
	apiKey  string
	baseURL string
	http    *resty.Client
	adv     ADVSource
	now     func() time.Time
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewMarketDataClient(apiKey, baseURL string) *MarketDataClient {
	retryCount := defaultRetryAttempts - 1

	if baseURL == "" {
		baseURL = "http://localhost:8090"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &MarketDataClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    httpClient,
		now:     time.Now,
	}
}

// WithADVSource attaches a local ADV fallback, consulted when the service
// returns no volume figure.
func (c *MarketDataClient) WithADVSource(adv ADVSource) *MarketDataClient {
	c.adv = adv
	return c
}

// Snapshot fetches the per-symbol feature payload. A 404 means the service
// does not cover the symbol; the caller skips the signal.
func (c *MarketDataClient) Snapshot(ctx context.Context, symbol string) (*model.MarketSnapshot, error) {
	var payload featureResponse

	req := c.http.R().
		SetContext(ctx).
		SetResult(&payload).
		SetPathParam("symbol", symbol)
	if c.apiKey != "" {
		req.SetHeader("X-Api-Key", c.apiKey)
	}

	resp, err := req.Get("/v1/features/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("feature service request for %s: %w", symbol, err)
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotCovered, symbol)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("feature service returned %d for %s", resp.StatusCode(), symbol)
	}
	if len(payload.Errors) > 0 {
		return nil, fmt.Errorf("feature service errors for %s: %v", symbol, payload.Errors)
	}

	snap := &model.MarketSnapshot{
		Symbol:           symbol,
		Price:            payload.Price,
		ATR:              payload.ATR,
		ADV20Value:       payload.ADVValue,
		VolatilityRegime: payload.VolatilityRegime,
		LiquidityRegime:  payload.LiquidityRegime,
		AsOf:             time.UnixMilli(payload.AsOf).UTC(),
	}

	if payload.NextEventDate != nil {
		d, err := time.Parse("2006-01-02", *payload.NextEventDate)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"connector": "MarketDataClient",
				"symbol":    symbol,
				"raw":       *payload.NextEventDate,
			}).WithError(err).Error("Unparseable event date ignored")
		} else {
			snap.NextEventDate = &d
		}
	}

	// The service occasionally lacks volume history for thinner names; the
	// local daily candle cache fills the gap.
	if snap.ADV20Value <= 0 && c.adv != nil {
		adv, err := c.adv.AverageDailyValue(ctx, symbol, c.now(), 20)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"connector": "MarketDataClient",
				"symbol":    symbol,
			}).WithError(err).Error("ADV fallback lookup failed")
		} else {
			snap.ADV20Value = adv
		}
	}

	return snap, nil
}
