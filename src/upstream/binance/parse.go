package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"market-pulse/src/models"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// Stream payload decoding. The exchange multiplexes several event kinds over
// one socket using the combined-stream envelope; numeric fields arrive as
// strings.
// -----------------------------------------------------------------------------

type combinedStreamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tickerEvent struct {
	EventType      string `json:"e"`
	EventTime      int64  `json:"E"`
	Symbol         string `json:"s"`
	PriceChange    string `json:"p"`
	PriceChangePct string `json:"P"`
	LastPrice      string `json:"c"`
	OpenPrice      string `json:"o"`
	HighPrice      string `json:"h"`
	LowPrice       string `json:"l"`
	Volume         string `json:"v"`
	QuoteVolume    string `json:"q"`
	PrevClosePrice string `json:"x"`
	BidPrice       string `json:"b"`
	AskPrice       string `json:"a"`
}

type klineEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTime    int64  `json:"t"`
	CloseTime   int64  `json:"T"`
	Symbol      string `json:"s"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	Close       string `json:"c"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	Trades      int    `json:"n"`
	IsClosed    bool   `json:"x"`
	QuoteVolume string `json:"q"`
}

// -----------------------------------------------------------------------------

// StreamEvent is one decoded upstream message. Exactly one field is set.
// Ticker carries the full 24h payload only for @ticker events; @miniTicker
// events produce a Snapshot alone.
type StreamEvent struct {
	Snapshot *models.MTickSnapshot
	Ticker   *models.MTicker
	Kline    *models.MKline
}

// -----------------------------------------------------------------------------

// ParseStreamMessage decodes one combined-stream frame. Unknown stream kinds
// return (nil, nil) so callers skip them without logging noise; malformed
// frames return an error and are dropped upstream.
func ParseStreamMessage(raw []byte) (*StreamEvent, error) {
	var msg combinedStreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid stream frame: %w", err)
	}
	if msg.Stream == "" || len(msg.Data) == 0 {
		return nil, fmt.Errorf("stream frame missing envelope fields")
	}

	switch {
	case strings.Contains(msg.Stream, "@kline"):
		return parseKline(msg.Data)
	case strings.Contains(msg.Stream, "@miniTicker"):
		return parseTicker(msg.Data, false)
	case strings.Contains(msg.Stream, "@ticker"):
		return parseTicker(msg.Data, true)
	default:
		return nil, nil
	}
}

// -----------------------------------------------------------------------------

func parseTicker(data json.RawMessage, full bool) (*StreamEvent, error) {
	var ev tickerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("invalid ticker payload: %w", err)
	}
	if ev.Symbol == "" {
		return nil, fmt.Errorf("ticker payload missing symbol")
	}

	price, err := parseField(ev.LastPrice, "last price")
	if err != nil {
		return nil, err
	}
	high, err := parseField(ev.HighPrice, "high")
	if err != nil {
		return nil, err
	}
	low, err := parseField(ev.LowPrice, "low")
	if err != nil {
		return nil, err
	}
	volume, err := parseField(ev.Volume, "volume")
	if err != nil {
		return nil, err
	}

	// Mini tickers carry no percent field; derive it from the 24h open.
	var changePct float64
	if ev.PriceChangePct != "" {
		changePct, err = parseField(ev.PriceChangePct, "change percent")
		if err != nil {
			return nil, err
		}
	} else if open := floatOrZero(ev.OpenPrice); open > 0 {
		changePct = ((price - open) / open) * 100
	}

	snap := &models.MTickSnapshot{
		Symbol:    ev.Symbol,
		Price:     price,
		Change24h: changePct,
		Volume24h: volume,
		High24h:   high,
		Low24h:    low,
		Timestamp: utils.EpochSeconds(),
	}

	event := &StreamEvent{Snapshot: snap}
	if full {
		event.Ticker = &models.MTicker{
			Symbol:            ev.Symbol,
			Name:              ev.Symbol,
			CurrentPrice:      price,
			PriceChange24h:    floatOrZero(ev.PriceChange),
			PriceChangePct24h: changePct,
			Volume24h:         volume,
			QuoteVolume24h:    floatOrZero(ev.QuoteVolume),
			High24h:           high,
			Low24h:            low,
			OpenPrice:         floatOrZero(ev.OpenPrice),
			PrevClosePrice:    floatOrZero(ev.PrevClosePrice),
			BidPrice:          floatOrZero(ev.BidPrice),
			AskPrice:          floatOrZero(ev.AskPrice),
			LastUpdated:       time.Now().UTC().Format(time.RFC3339),
		}
	}
	return event, nil
}

// -----------------------------------------------------------------------------

func parseKline(data json.RawMessage) (*StreamEvent, error) {
	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("invalid kline payload: %w", err)
	}
	k := ev.Kline
	if k.OpenTime == 0 {
		return nil, fmt.Errorf("kline payload missing open time")
	}

	open, err := parseField(k.Open, "open")
	if err != nil {
		return nil, err
	}
	closePrice, err := parseField(k.Close, "close")
	if err != nil {
		return nil, err
	}

	return &StreamEvent{
		Kline: &models.MKline{
			Symbol:      ev.Symbol,
			OpenTime:    k.OpenTime,
			CloseTime:   k.CloseTime,
			Open:        open,
			High:        floatOrZero(k.High),
			Low:         floatOrZero(k.Low),
			Close:       closePrice,
			Volume:      floatOrZero(k.Volume),
			QuoteVolume: floatOrZero(k.QuoteVolume),
			Trades:      k.Trades,
			IsClosed:    k.IsClosed,
		},
	}, nil
}

// -----------------------------------------------------------------------------

func parseField(s, name string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing %s field", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s field %q: %w", name, s, err)
	}
	return v, nil
}

func floatOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
