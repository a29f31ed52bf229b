// Package ingestion consumes the upstream trade stream and republishes
// ticks through the tick store, where the quote gateway and the websocket
// hub pick them up.
package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/yourorg/tradesim/internal/domain"
	"github.com/yourorg/tradesim/internal/marketdata"
)

type Feed struct {
	wsURL     string
	apiKey    string
	apiSecret string
	symbols   []string
	ticks     *marketdata.TickStore
	logger    *slog.Logger
}

func NewFeed(wsURL, key, secret string, symbols []string, ticks *marketdata.TickStore, logger *slog.Logger) *Feed {
	return &Feed{
		wsURL:     wsURL,
		apiKey:    key,
		apiSecret: secret,
		symbols:   symbols,
		ticks:     ticks,
		logger:    logger,
	}
}

// Run keeps the feed connected until ctx is cancelled, backing off
// exponentially between reconnects.
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second
	maxBackoff := 60 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		err := f.connect(ctx)
		if err == nil {
			backoff = time.Second
			continue
		}
		f.logger.Error("market feed disconnected", "err", err, "retrying_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

type feedMsg struct {
	T  string  `json:"T"`
	S  string  `json:"S"`
	P  float64 `json:"p"`
	Sz float64 `json:"s"`
	Ts string  `json:"t"`
}

func (f *Feed) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer func() {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	if _, _, err := conn.ReadMessage(); err != nil {
		return err
	}

	authMsg, _ := json.Marshal(map[string]string{
		"action": "auth",
		"key":    f.apiKey,
		"secret": f.apiSecret,
	})
	if err := conn.WriteMessage(websocket.TextMessage, authMsg); err != nil {
		return err
	}

	_, authResp, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	var authMsgs []feedMsg
	if err := json.Unmarshal(authResp, &authMsgs); err != nil {
		return err
	}
	if len(authMsgs) == 0 || authMsgs[0].T != "success" {
		f.logger.Warn("market feed auth failed", "response", string(authResp))
		return nil
	}

	subMsg, _ := json.Marshal(map[string]interface{}{
		"action": "subscribe",
		"trades": f.symbols,
	})
	if err := conn.WriteMessage(websocket.TextMessage, subMsg); err != nil {
		return err
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		return err
	}

	f.logger.Info("market feed connected", "symbols", f.symbols)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msgs []json.RawMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			continue
		}
		for _, raw := range msgs {
			var msg feedMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			if msg.T != "t" {
				continue
			}
			ts, err := time.Parse(time.RFC3339Nano, msg.Ts)
			if err != nil {
				ts = time.Now()
			}
			tick := domain.PriceTick{
				Symbol:    msg.S,
				Price:     decimal.NewFromFloat(msg.P),
				Size:      msg.Sz,
				Timestamp: ts,
			}
			if err := f.ticks.Publish(ctx, tick); err != nil {
				f.logger.Error("failed to publish tick", "symbol", tick.Symbol, "err", err)
			}
		}
	}
}
