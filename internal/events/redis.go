package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"carevrp/internal/model"
)

// Redis implements Broker over Redis Pub/Sub so several API replicas share
// one event stream per solve.
type Redis struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan model.Event]*redis.PubSub
}

// NewRedis connects to url (redis://...). The connection is checked with a
// PING so a bad URL fails at startup.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Redis{rdb: rdb, subs: map[chan model.Event]*redis.PubSub{}}, nil
}

func (b *Redis) Subscribe(solveID string) chan model.Event {
	ch := make(chan model.Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, chanName(solveID))
	// wait for the subscription confirmation so no early publish is lost
	if _, err := ps.Receive(ctx); err != nil {
		log.Printf("events: redis subscribe solve=%s err=%v", solveID, err)
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		for msg := range ps.Channel() {
			var evt model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			b.mu.Lock()
			_, live := b.subs[ch]
			if live {
				select {
				case ch <- evt:
				default:
				}
			}
			b.mu.Unlock()
		}
	}()
	return ch
}

func (b *Redis) Unsubscribe(solveID string, ch chan model.Event) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	if ok {
		close(ch)
	}
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

func (b *Redis) Publish(solveID string, evt model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	if err := b.rdb.Publish(ctx, chanName(solveID), data).Err(); err != nil {
		log.Printf("events: redis publish solve=%s err=%v", solveID, err)
	}
}

// Ping reports whether Redis is reachable, for readiness checks.
func (b *Redis) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *Redis) Close() error { return b.rdb.Close() }

func chanName(solveID string) string { return "solve:" + solveID }
