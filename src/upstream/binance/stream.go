package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Stream is one supervised connection to the exchange's combined stream. It
// redials forever until its context is cancelled; a failure on one stream
// never touches any other.
// -----------------------------------------------------------------------------

type Stream struct {
	URL            string
	ReconnectDelay time.Duration // after a clean close or read error
	ErrorDelay     time.Duration // after dial or unexpected errors
	Logger         *logger.Logger

	// Exactly the events the caller cares about; nil callbacks are skipped.
	OnSnapshot func(snap models.MTickSnapshot, ticker *models.MTicker)
	OnKline    func(kline models.MKline)
}

// -----------------------------------------------------------------------------

// StreamURL builds a combined-stream URL for the given stream names. The
// base is the full combined-stream endpoint.
func StreamURL(base string, streams []string) string {
	return fmt.Sprintf("%s?streams=%s", strings.TrimRight(base, "/"), strings.Join(streams, "/"))
}

// SymbolStreams returns the stream names for one dedicated symbol feed:
// full ticker, one-minute klines, and the more frequent mini ticker.
// Accepts a base asset or a full pair name.
func SymbolStreams(symbol, quote string) []string {
	pair := strings.ToLower(symbol)
	if !strings.HasSuffix(pair, strings.ToLower(quote)) {
		pair += strings.ToLower(quote)
	}
	return []string{
		pair + "@ticker",
		pair + "@kline_1m",
		pair + "@miniTicker",
	}
}

// MarketStreams returns ticker stream names for the whole universe. Market
// symbols are already full pair names.
func MarketStreams(symbols []string) []string {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@ticker")
	}
	return streams
}

// -----------------------------------------------------------------------------

// Run dials and reads until ctx is cancelled. Malformed frames are dropped
// and logged; connection loss waits the fixed reconnect delay and redials.
func (s *Stream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.Logger.Error("Dial failed: %v", err)
			if !sleepCtx(ctx, s.ErrorDelay) {
				return
			}
			continue
		}

		s.Logger.Info("Connected to upstream stream")
		s.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		s.Logger.Warning("Upstream stream closed, reconnecting...")
		if !sleepCtx(ctx, s.ReconnectDelay) {
			return
		}
	}
}

// -----------------------------------------------------------------------------

// readLoop consumes frames until the connection dies or ctx is cancelled.
// The watchdog goroutine closes the socket on cancellation so the blocking
// ReadMessage returns promptly.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.Logger.Debug("Read error: %v", err)
			}
			return
		}

		event, err := ParseStreamMessage(raw)
		if err != nil {
			s.Logger.Warning("Dropping malformed frame: %v", err)
			continue
		}
		if event == nil {
			continue
		}

		if event.Snapshot != nil && s.OnSnapshot != nil {
			s.OnSnapshot(*event.Snapshot, event.Ticker)
		}
		if event.Kline != nil && s.OnKline != nil {
			s.OnKline(*event.Kline)
		}
	}
}

// -----------------------------------------------------------------------------

// sleepCtx waits for d or until ctx is cancelled; false means cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
