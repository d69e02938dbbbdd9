package service

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

type wsDialer = *websocket.Dialer

func newDialer() wsDialer {
	return &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
}

// StreamPrices держит WS-подписку на сделки по вселенной и обновляет
// кэш последних цен. Переподключается сам, с нарастающей паузой.
func (f *Feed) StreamPrices(ctx context.Context, tickers []string) {
	if f.streamURL == "" || len(tickers) == 0 {
		return
	}

	retry := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := f.wsDialer.Dial(f.streamURL, nil)
		if err != nil {
			retry++
			if retry > 8 {
				retry = 8
			}
			time.Sleep(time.Duration(300*retry) * time.Millisecond)
			continue
		}
		retry = 0

		_ = conn.WriteJSON(map[string]any{
			"action":  "subscribe",
			"trades":  tickers,
			"api_key": f.apiKey,
		})

		if f.status != nil {
			f.status(true)
		}

		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(15 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-stopPing:
					return
				case <-ctx.Done():
					return
				case <-t.C:
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}()

		f.readLoop(ctx, conn)
		close(stopPing)
		_ = conn.Close()
		if f.status != nil {
			f.status(false)
		}

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(1 * time.Second)
		}
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Type   string  `json:"T"`
			Symbol string  `json:"S"`
			Price  float64 `json:"p"`
		}
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Type == "t" && frame.Symbol != "" && frame.Price > 0 {
			f.setPrice(frame.Symbol, frame.Price)
		}
	}
}
