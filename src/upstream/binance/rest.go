package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/models"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// RestClient fetches join-time snapshots over the exchange REST API: 24h
// ticker stats, recent klines, and the top-of-market list.
// -----------------------------------------------------------------------------

type RestClient struct {
	BaseURL     string
	Quote       string
	Concurrency int
	Network     interfaces.INetworkManager
	Logger      *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRestClient(cfg *models.MConfig, nm interfaces.INetworkManager, log *logger.Logger) *RestClient {
	return &RestClient{
		BaseURL:     strings.TrimRight(cfg.Upstream.RestURL, "/"),
		Quote:       cfg.Upstream.QuoteAsset,
		Concurrency: cfg.Network.ConcurrentRequests,
		Network:     nm,
		Logger:      log,
	}
}

// -----------------------------------------------------------------------------

// restTicker is the raw 24h statistics payload; numbers arrive as strings.
type restTicker struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	PrevClosePrice     string `json:"prevClosePrice"`
	LastPrice          string `json:"lastPrice"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

// -----------------------------------------------------------------------------

// Pair returns the full trading pair for a base symbol.
func (rc *RestClient) Pair(symbol string) string {
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, rc.Quote) {
		return upper
	}
	return upper + rc.Quote
}

// -----------------------------------------------------------------------------

// GetTicker24h fetches 24h statistics for one trading pair.
func (rc *RestClient) GetTicker24h(ctx context.Context, pair string) (*models.MTicker, error) {
	body, err := rc.Network.Get(ctx, rc.BaseURL+"/api/v3/ticker/24hr", map[string]string{
		"symbol": strings.ToUpper(pair),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch 24h ticker for %s: %w", pair, err)
	}

	var raw restTicker
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode 24h ticker for %s: %w", pair, err)
	}
	return rc.formatTicker(raw), nil
}

// -----------------------------------------------------------------------------

// GetAllTickers fetches 24h statistics for every trading pair.
func (rc *RestClient) GetAllTickers(ctx context.Context) ([]models.MTicker, error) {
	body, err := rc.Network.Get(ctx, rc.BaseURL+"/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch all tickers: %w", err)
	}

	var raws []restTicker
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode ticker list: %w", err)
	}

	tickers := make([]models.MTicker, 0, len(raws))
	for _, raw := range raws {
		tickers = append(tickers, *rc.formatTicker(raw))
	}
	return tickers, nil
}

// -----------------------------------------------------------------------------

// TopByVolume returns the most liquid quote-asset pairs sorted by 24h base
// volume descending.
func (rc *RestClient) TopByVolume(ctx context.Context, limit int) ([]models.MTicker, error) {
	body, err := rc.Network.Get(ctx, rc.BaseURL+"/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch all tickers: %w", err)
	}

	var raws []restTicker
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode ticker list: %w", err)
	}

	pairs := make([]restTicker, 0, limit)
	for _, raw := range raws {
		if !strings.HasSuffix(raw.Symbol, rc.Quote) {
			continue
		}
		if floatOrZero(raw.Volume) <= 0 {
			continue
		}
		pairs = append(pairs, raw)
	}

	sort.Slice(pairs, func(i, j int) bool {
		return floatOrZero(pairs[i].Volume) > floatOrZero(pairs[j].Volume)
	})

	if len(pairs) > limit {
		pairs = pairs[:limit]
	}

	tickers := make([]models.MTicker, 0, len(pairs))
	for _, raw := range pairs {
		tickers = append(tickers, *rc.formatTicker(raw))
	}
	return tickers, nil
}

// -----------------------------------------------------------------------------

// GetKlines fetches up to limit recent klines for a pair.
func (rc *RestClient) GetKlines(ctx context.Context, pair, interval string, limit int) ([]models.MKline, error) {
	body, err := rc.Network.Get(ctx, rc.BaseURL+"/api/v3/klines", map[string]string{
		"symbol":   strings.ToUpper(pair),
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", pair, err)
	}

	// Each row is a positional array mixing numbers and numeric strings.
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines for %s: %w", pair, err)
	}

	klines := make([]models.MKline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 9 {
			continue
		}
		kline := models.MKline{
			OpenTime:    rawInt(row[0]),
			Open:        rawFloat(row[1]),
			High:        rawFloat(row[2]),
			Low:         rawFloat(row[3]),
			Close:       rawFloat(row[4]),
			Volume:      rawFloat(row[5]),
			CloseTime:   rawInt(row[6]),
			QuoteVolume: rawFloat(row[7]),
			Trades:      int(rawInt(row[8])),
			IsClosed:    true,
		}
		klines = append(klines, kline)
	}
	return klines, nil
}

// -----------------------------------------------------------------------------

// FetchSnapshots fetches current snapshots for a set of base symbols with
// bounded concurrency. Per-symbol failures are logged and skipped so one bad
// symbol never empties the whole batch.
func (rc *RestClient) FetchSnapshots(ctx context.Context, symbols []string) map[string]models.MTickSnapshot {
	concurrency := rc.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, concurrency)
		result = make(map[string]models.MTickSnapshot, len(symbols))
	)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()

			ticker, err := rc.GetTicker24h(ctx, rc.Pair(sym))
			if err != nil {
				rc.Logger.Warning("Snapshot fetch failed for %s: %v", sym, err)
				return
			}

			mu.Lock()
			result[strings.ToUpper(sym)] = models.MTickSnapshot{
				Symbol:    strings.ToUpper(sym),
				Price:     ticker.CurrentPrice,
				Change24h: ticker.PriceChangePct24h,
				Volume24h: ticker.Volume24h,
				High24h:   ticker.High24h,
				Low24h:    ticker.Low24h,
				Timestamp: utils.EpochSeconds(),
			}
			mu.Unlock()
		}(symbol)
	}

	wg.Wait()
	return result
}

// -----------------------------------------------------------------------------

func (rc *RestClient) formatTicker(raw restTicker) *models.MTicker {
	base := strings.TrimSuffix(raw.Symbol, rc.Quote)
	return &models.MTicker{
		Symbol:            base,
		Name:              base,
		CurrentPrice:      floatOrZero(raw.LastPrice),
		PriceChange24h:    floatOrZero(raw.PriceChange),
		PriceChangePct24h: floatOrZero(raw.PriceChangePercent),
		Volume24h:         floatOrZero(raw.Volume),
		QuoteVolume24h:    floatOrZero(raw.QuoteVolume),
		High24h:           floatOrZero(raw.HighPrice),
		Low24h:            floatOrZero(raw.LowPrice),
		OpenPrice:         floatOrZero(raw.OpenPrice),
		PrevClosePrice:    floatOrZero(raw.PrevClosePrice),
		BidPrice:          floatOrZero(raw.BidPrice),
		AskPrice:          floatOrZero(raw.AskPrice),
		LastUpdated:       time.Now().UTC().Format(time.RFC3339),
	}
}

// -----------------------------------------------------------------------------

// rawInt decodes a positional JSON number.
func rawInt(raw json.RawMessage) int64 {
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v
}

// rawFloat decodes a positional JSON value that may be a number or a numeric
// string.
func rawFloat(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return floatOrZero(s)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return 0
}
