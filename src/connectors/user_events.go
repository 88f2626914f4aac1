package connectors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// UserOrderEvent is a real-time update about one of our orders, pushed by
// the exchange over the user channel.
type UserOrderEvent struct {
	EventType   string  `json:"event_type"` // order, trade
	OrderID     string  `json:"id"`
	Status      string  `json:"status"`
	Price       float64 `json:"price,string"`
	SizeMatched float64 `json:"size_matched,string"`
	Timestamp   int64   `json:"timestamp,string"`
}

type wsAuth struct {
	APIKey     string   `json:"apiKey"`
	Secret     string   `json:"secret"`
	Passphrase string   `json:"passphrase"`
	Type       string   `json:"type"`
	Markets    []string `json:"markets,omitempty"`
}

// UserEventStream consumes the user-order websocket channel and forwards
// decoded events. It reconnects with backoff until the context is done.
type UserEventStream struct {
	config Config
	Events chan UserOrderEvent
}

func NewUserEventStream(config Config) *UserEventStream {
	return &UserEventStream{
		config: config,
		Events: make(chan UserOrderEvent, 64),
	}
}

// Run blocks until ctx is cancelled, maintaining the subscription.
func (s *UserEventStream) Run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			close(s.Events)
			return
		default:
		}

		if err := s.consume(ctx); err != nil {
			logger.WithError(err).Warn("User event stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			close(s.Events)
			return
		case <-time.After(backoff):
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *UserEventStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, s.config.CLOBWSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	auth := wsAuth{
		APIKey:     s.config.APIKey,
		Secret:     s.config.APISecret,
		Passphrase: s.config.APIPassphrase,
		Type:       "user",
	}
	if err := conn.WriteJSON(auth); err != nil {
		return err
	}

	logger.Info("User event stream connected")

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var event UserOrderEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			logger.WithError(err).Debug("Skipping undecodable user event")
			continue
		}

		select {
		case s.Events <- event:
		default:
			logger.Warn("User event buffer full, dropping event")
		}
	}
}
