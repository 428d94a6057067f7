// Package broker - stream.go implements the optional push-quote
// channel over a gateway websocket feed, reconnecting with
// exponential backoff. Dial/reconnect pattern grounded in the
// market-maker bot's WSFeed (internal/exchange/ws.go in the pack).
package broker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsReadTimeout     = 90 * time.Second
	wsMaxReconnectWait = 30 * time.Second
	wsQuoteBuffer     = 256
)

// WSQuoteStream dials a gateway quote-push endpoint and republishes
// ticks on a channel, reconnecting with backoff on any read failure.
type WSQuoteStream struct {
	url    string
	token  string
	log    zerolog.Logger
}

// NewWSQuoteStream builds a streaming client for the gateway's push
// endpoint. Dial only happens when Stream is called.
func NewWSQuoteStream(url, token string, log zerolog.Logger) *WSQuoteStream {
	return &WSQuoteStream{url: url, token: token, log: log.With().Str("component", "broker_stream").Logger()}
}

type wsQuoteMsg struct {
	Symbol    string `json:"symbol"`
	LastDone  string `json:"last_done"`
	Volume    int64  `json:"volume"`
	Timestamp int64  `json:"timestamp"`
}

// Stream subscribes to symbols and returns a channel of ticks, closed
// when ctx is cancelled. Connection drops trigger automatic
// resubscription after exponential backoff.
func (s *WSQuoteStream) Stream(ctx context.Context, symbols []string) (<-chan Quote, error) {
	out := make(chan Quote, wsQuoteBuffer)
	go s.run(ctx, symbols, out)
	return out, nil
}

func (s *WSQuoteStream) run(ctx context.Context, symbols []string, out chan<- Quote) {
	defer close(out)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.connectAndRead(ctx, symbols, out); err != nil {
			s.log.Warn().Err(err).Dur("backoff", backoff).Msg("quote stream disconnected, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsMaxReconnectWait {
			backoff = wsMaxReconnectWait
		}
	}
}

func (s *WSQuoteStream) connectAndRead(ctx context.Context, symbols []string, out chan<- Quote) error {
	header := map[string][]string{"Authorization": {"Bearer " + s.token}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{"action": "subscribe", "symbols": symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	for {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg wsQuoteMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug().Err(err).Msg("discarding unparseable stream message")
			continue
		}
		price, _ := strconv.ParseFloat(msg.LastDone, 64)
		q := Quote{
			Symbol:      msg.Symbol,
			LastPrice:   price,
			VolumeToday: float64(msg.Volume),
			Timestamp:   time.Unix(msg.Timestamp, 0),
		}
		select {
		case out <- q:
		case <-ctx.Done():
			return ctx.Err()
		default:
			s.log.Warn().Str("symbol", q.Symbol).Msg("quote stream buffer full, dropping tick")
		}
	}
}
