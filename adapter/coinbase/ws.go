package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/yitech/candlestore/adapter"
	"github.com/yitech/candlestore/model/book"
)

// subscription is the Subscription handle returned by SubscribeLevel2. It
// owns the read goroutine and the reconnect loop; Close tears both down.
type subscription struct {
	cancel    context.CancelFunc
	out       chan adapter.Level2Message
	closeOnce sync.Once
}

func (s *subscription) Messages() <-chan adapter.Level2Message { return s.out }

func (s *subscription) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

// SubscribeLevel2 opens a Coinbase Advanced Trade WebSocket level2 channel
// for products, reconnecting with exponential backoff on any error until
// the returned Subscription is closed.
func (a *Adapter) SubscribeLevel2(ctx context.Context, products []string) (adapter.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		cancel: cancel,
		out:    make(chan adapter.Level2Message),
	}

	go func() {
		defer close(sub.out)
		backoff := time.Second
		for {
			if ctx.Err() != nil {
				return
			}
			if err := connectAndRead(ctx, products, sub.out); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Strs("products", products).Dur("backoff", backoff).Msg("coinbase level2 ws: reconnecting")
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				backoff *= 2
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
			} else {
				backoff = time.Second
			}
		}
	}()

	return sub, nil
}

// connectAndRead maintains a single WebSocket session until ctx is
// cancelled or a read/parse error occurs.
func connectAndRead(ctx context.Context, products []string, out chan<- adapter.Level2Message) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := wsSubscribeMsg{Type: "subscribe", ProductIDs: products, Channel: "level2"}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		msg, ok, err := parseLevel2Message(raw)
		if err != nil {
			log.Error().Err(err).Msg("coinbase level2 ws: malformed message")
			continue
		}
		if !ok {
			continue // non-l2_data channel message
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

type wsSubscribeMsg struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channel    string   `json:"channel"`
}

type wsEnvelope struct {
	Channel string `json:"channel"`
	Events  []struct {
		Type      string `json:"type"`
		ProductID string `json:"product_id"`
		Updates   []struct {
			Side       string `json:"side"`
			PriceLevel string `json:"price_level"`
			NewQty     string `json:"new_quantity"`
		} `json:"updates"`
	} `json:"events"`
}

// parseLevel2Message decodes one WS frame. ok is false for frames on any
// channel other than l2_data, which callers should silently ignore.
func parseLevel2Message(raw []byte) (adapter.Level2Message, bool, error) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return adapter.Level2Message{}, false, err
	}
	if env.Channel != "l2_data" {
		return adapter.Level2Message{}, false, nil
	}

	var msg adapter.Level2Message
	for _, event := range env.Events {
		if event.Type != "snapshot" && event.Type != "update" {
			continue
		}
		msg.Product = event.ProductID
		for _, u := range event.Updates {
			side := book.Bid
			if u.Side != "bid" {
				side = book.Ask
			}
			price, perr := parseFloat(u.PriceLevel)
			if perr != nil {
				return adapter.Level2Message{}, false, perr
			}
			qty, qerr := parseFloat(u.NewQty)
			if qerr != nil {
				return adapter.Level2Message{}, false, qerr
			}
			msg.Updates = append(msg.Updates, adapter.LevelUpdate{
				Side:        side,
				Price:       price,
				NewQuantity: qty,
			})
		}
	}
	if msg.Product == "" {
		return adapter.Level2Message{}, false, nil
	}
	return msg, true, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
