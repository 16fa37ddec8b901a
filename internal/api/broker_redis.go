package api

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"roadscout/internal/model"
)

type EventBroker interface {
	Subscribe(sessionID string) chan model.Event
	Unsubscribe(sessionID string, ch chan model.Event)
	Publish(sessionID string, evt model.Event)
}

// RedisBroker implements EventBroker over Redis Pub/Sub, so multiple API
// replicas share one event stream per session.
type RedisBroker struct {
	rdb *redis.Client

	mu  sync.Mutex
	pss map[chan model.Event]*redis.PubSub
}

func NewRedisBroker() (*RedisBroker, error) {
	opt, err := redis.ParseURL(os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt), pss: map[chan model.Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(sessionID string) chan model.Event {
	ch := make(chan model.Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(sessionID))
	// initial receive confirms the subscription before events flow
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.pss[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(_ string, ch chan model.Event) {
	b.mu.Lock()
	ps := b.pss[ch]
	delete(b.pss, ch)
	b.mu.Unlock()
	if ps != nil {
		// Ends the reader goroutine, which closes ch on its way out.
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(sessionID string, evt model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(sessionID), data).Err()
}

func (b *RedisBroker) chanName(sessionID string) string { return "session:" + sessionID }
