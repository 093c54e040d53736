package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tradebot/internal/model"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

const _binanceBaseWsUrl = "wss://stream.binance.com:9443/ws"

// BinancePub streams public market data from the Binance websocket.
type BinancePub struct {
	wss *ws.WebSocket
}

func NewBinancePub(ctx context.Context) *BinancePub {
	return &BinancePub{
		wss: ws.New(ctx, _binanceBaseWsUrl),
	}
}

func (repo *BinancePub) Len() int {
	return repo.wss.Len()
}

func (repo *BinancePub) Close() {
	repo.wss.Close()
}

func (repo *BinancePub) StartWebsocket(ctx context.Context) error {
	if err := repo.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}

	return nil
}

type BinanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type BinanceSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func subscriberResponseParser(m ws.Message) (BinanceSubscribeResponse, bool) {
	var resp BinanceSubscribeResponse
	err := m.Unmarshal(&resp)
	return resp, err == nil
}

// SubscribeMiniTicker subscribes the 'Individual Symbol Mini Ticker Stream'
func (repo *BinancePub) SubscribeMiniTicker(ctx context.Context, symbol string) error {
	appendIntoRegister := true
	if err := repo.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := BinanceSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{
					fmt.Sprintf("%s@miniTicker", strings.ToLower(symbol)),
				},
				ID: 1,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := subscriberResponseParser(m)
			if !ok || resp.ID != 1 {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

type BinanceMiniTicker struct {
	EventType string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	Close     decimal.Decimal `json:"c"`
}

func (repo *BinancePub) ObserveMiniTicker(ctx context.Context, handler func(t BinanceMiniTicker)) (unsubscribe func()) {
	ch, cancel := repo.wss.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				var tick BinanceMiniTicker
				if err := m.Unmarshal(&tick); err != nil {
					continue
				}
				if tick.EventType != "24hrMiniTicker" {
					continue
				}

				handler(tick)
			}
		}
	}()

	return cancel
}

// Stream starts the websocket, subscribes the symbol's mini ticker and
// publishes every update into the shared Latest cell. It is the
// websocket counterpart to the REST Poller.
func (repo *BinancePub) Stream(ctx context.Context, symbol string, latest *Latest) (stop func(), err error) {
	if err := repo.StartWebsocket(ctx); err != nil {
		return nil, err
	}
	if err := repo.SubscribeMiniTicker(ctx, symbol); err != nil {
		repo.Close()
		return nil, err
	}

	unsubscribe := repo.ObserveMiniTicker(ctx, func(t BinanceMiniTicker) {
		price, err := strconv.ParseFloat(t.Close.String(), 64)
		if err != nil || price <= 0 {
			logs.Errorf("drop mini ticker with bad close %q", t.Close.String())
			return
		}
		latest.Store(model.Quote{
			Symbol: t.Symbol,
			Price:  price,
			Source: "binance-ws",
			At:     time.UnixMilli(t.EventTime).UTC(),
		})
	})

	return func() {
		unsubscribe()
		repo.Close()
	}, nil
}
