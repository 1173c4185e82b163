package server

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"market-pulse/src/models"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// Gateway helpers: handshake auth, close frames, initial snapshots.
// -----------------------------------------------------------------------------

// closeWith sends a close frame with the given code and reason, then drops
// the connection.
func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	message := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
	conn.Close()
}

// -----------------------------------------------------------------------------

// resolveToken returns the portfolio credential. A token query parameter
// wins; otherwise one inline auth message is awaited under the handshake
// deadline. On failure the connection is closed with the protocol's code and
// false is returned.
func (s *Server) resolveToken(conn *websocket.Conn, queryToken string) (string, bool) {
	if queryToken != "" {
		return queryToken, true
	}

	timeout := time.Duration(s.Config.Auth.AuthTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = utils.DefaultAuthTimeoutSeconds * time.Second
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			s.Logger.Warning("Timeout waiting for auth message")
			s.closeWith(conn, websocket.ClosePolicyViolation, "Authentication timeout")
		} else {
			s.Logger.Warning("Error receiving auth message: %v", err)
			s.closeWith(conn, websocket.CloseProtocolError, "Protocol error")
		}
		return "", false
	}

	var auth models.MAuthMessage
	if err := json.Unmarshal(payload, &auth); err != nil {
		s.Logger.Warning("Invalid JSON in auth message: %v", err)
		s.closeWith(conn, websocket.CloseUnsupportedData, "Invalid JSON")
		return "", false
	}
	if auth.Token == "" {
		s.Logger.Warning("Auth message carries no token")
		s.closeWith(conn, websocket.CloseProtocolError, "Protocol error")
		return "", false
	}
	return auth.Token, true
}

// -----------------------------------------------------------------------------

// marketSnapshot builds the join-time market overview from the top-volume
// tickers.
func (s *Server) marketSnapshot(ctx context.Context) (*models.MWireMessage, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tickers, err := s.Rest.TopByVolume(fetchCtx, utils.DefaultMarketUniverseSize)
	if err != nil {
		return nil, err
	}

	return &models.MWireMessage{
		Type:      models.MsgInitialData,
		Data:      models.MMarketOverview{TrendingAssets: tickers},
		Timestamp: utils.EpochSeconds(),
	}, nil
}

// -----------------------------------------------------------------------------

// symbolSnapshot builds the join-time payload for one symbol: formatted 24h
// ticker plus recent one-minute klines, ticker served from the shared cache
// when fresh.
func (s *Server) symbolSnapshot(ctx context.Context, symbol string) (*models.MWireMessage, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pair := s.Rest.Pair(symbol)

	ticker, err := s.Market.GetTicker(fetchCtx, symbol)
	if err != nil {
		s.Logger.Debug("Ticker cache read failed for %s: %v", symbol, err)
	}
	if ticker == nil {
		ticker, err = s.Rest.GetTicker24h(fetchCtx, pair)
		if err != nil {
			return nil, err
		}
		if err := s.Market.SetTicker(fetchCtx, symbol, ticker); err != nil {
			s.Logger.Debug("Ticker cache write failed for %s: %v", symbol, err)
		}
	}

	limit := s.Config.Stream.InitialKlineLimit
	if limit <= 0 {
		limit = utils.DefaultInitialKlineLimit
	}
	klines, err := s.Rest.GetKlines(fetchCtx, pair, "1m", limit)
	if err != nil {
		return nil, err
	}

	return &models.MWireMessage{
		Type:      models.MsgInitialSymbolData,
		Symbol:    symbol,
		Ticker:    ticker,
		Klines:    klines,
		Timestamp: utils.EpochSeconds(),
	}, nil
}

// -----------------------------------------------------------------------------

// historySnapshot wraps the symbol's current candle window, or nil when the
// window is still empty.
func (s *Server) historySnapshot(symbol string) *models.MWireMessage {
	history := s.Store.History(symbol)
	if len(history) == 0 {
		return nil
	}

	return &models.MWireMessage{
		Type:   models.MsgCandleHistory,
		Symbol: symbol,
		Data: models.MCandleHistory{
			Symbol:       symbol,
			Candles:      history,
			Timestamp:    utils.EpochSeconds(),
			TotalCandles: len(history),
			Interval:     "200ms",
			TimeWindow:   "2_minutes",
		},
		Timestamp: utils.EpochSeconds(),
	}
}

// -----------------------------------------------------------------------------

// portfolioSnapshot wraps the user's current valuation state.
func (s *Server) portfolioSnapshot(userID string) *models.MWireMessage {
	state, ok := s.Portfolios.State(userID)
	if !ok {
		state = models.EmptyPortfolioState(userID)
	}

	return &models.MWireMessage{
		Type:      models.MsgInitialPortfolioData,
		Data:      state,
		Timestamp: utils.EpochSeconds(),
	}
}
