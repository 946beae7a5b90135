package cart

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	EventUpdated = "updated"
	EventCleared = "cleared"
)

// Notifier diffuse les changements de panier aux abonnés (websocket).
type Notifier interface {
	Publish(ctx context.Context, token, event string) error
	// Subscribe retourne un canal d'événements et une fonction de désabonnement.
	Subscribe(ctx context.Context, token string) (<-chan string, func())
}

// RedisNotifier passe par le Pub/Sub Redis, ce qui couvre plusieurs instances du serveur.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Publish(ctx context.Context, token, event string) error {
	return n.rdb.Publish(ctx, cartKey(token), event).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, token string) (<-chan string, func()) {
	pubsub := n.rdb.Subscribe(ctx, cartKey(token))
	out := make(chan string, 8)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- msg.Payload:
			default:
			}
		}
	}()
	return out, func() { _ = pubsub.Close() }
}

type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[string]map[chan string]struct{}
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string]map[chan string]struct{})}
}

func (n *MemoryNotifier) Publish(_ context.Context, token, event string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[token] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (n *MemoryNotifier) Subscribe(_ context.Context, token string) (<-chan string, func()) {
	ch := make(chan string, 8)

	n.mu.Lock()
	if n.subs[token] == nil {
		n.subs[token] = make(map[chan string]struct{})
	}
	n.subs[token][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[token], ch)
			if len(n.subs[token]) == 0 {
				delete(n.subs, token)
			}
			n.mu.Unlock()
			close(ch)
		})
	}
}
