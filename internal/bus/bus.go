// Package bus implements the optional cross-instance fan-out: when a
// Redis address is configured, Room broadcasts are additionally
// published on a room-scoped channel so sibling server processes can
// relay them to their own locally-connected players. Single-instance
// mode (no Service configured) is the default, and is what spec.md
// describes end to end.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"dradu/server/internal/logging"
	"dradu/server/internal/metrics"
)

// Envelope is the JSON container published on a room's bus channel. Body
// is a plain []byte, not json.RawMessage: room broadcasts are JSON
// (Map, Player), plain UTF-8 text (Msg), or raw binary (File), and only
// a []byte field gets encoding/json's automatic base64 round-trip that
// keeps the envelope itself valid JSON regardless of what's inside.
type Envelope struct {
	RoomID  string            `json:"roomId"`
	Type    string            `json:"type"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// Service wraps a Redis client behind a circuit breaker. A nil *Service
// is valid and behaves as single-instance mode everywhere below.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// New dials addr and verifies the connection with a Ping before
// returning, following the corpus's "robust connection" pattern.
func New(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bus: failed to connect to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "bus-redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
		},
	}

	return &Service{client: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// NewFromClient wraps an already-constructed *redis.Client, used by
// tests against miniredis.
func NewFromClient(client *redis.Client) *Service {
	return &Service{
		client: client,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "bus-redis",
			Timeout: 15 * time.Second,
		}),
	}
}

func channelFor(roomID string) string {
	return "dradu:room:" + roomID
}

// Publish mirrors one room broadcast onto the room's Redis channel. A
// nil Service, a marshal error, or a tripped breaker all degrade to a
// no-op: publishing to the bus never blocks or fails local delivery.
func (s *Service) Publish(ctx context.Context, roomID, msgType string, headers map[string]string, body []byte) {
	if s == nil || s.client == nil {
		return
	}

	env := Envelope{RoomID: roomID, Type: msgType, Headers: headers, Body: body}
	data, err := json.Marshal(env)
	if err != nil {
		logging.Warn(ctx, "bus: failed to marshal envelope", zap.Error(err))
		return
	}

	_, err = s.cb.Execute(func() (any, error) {
		return nil, s.client.Publish(ctx, channelFor(roomID), data).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			logging.Warn(ctx, "bus: circuit open, dropping publish")
			return
		}
		logging.Warn(ctx, "bus: publish failed", zap.Error(err))
	}
}

// Subscribe starts a background goroutine relaying messages published by
// sibling processes on roomID's channel to handler, until ctx is done.
func (s *Service) Subscribe(ctx context.Context, roomID string, handler func(Envelope)) {
	if s == nil || s.client == nil {
		return
	}

	pubsub := s.client.Subscribe(ctx, channelFor(roomID))
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					logging.Warn(ctx, "bus: dropping malformed envelope", zap.Error(err))
					continue
				}
				handler(env)
			}
		}
	}()
}

// Close releases the underlying Redis client.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
