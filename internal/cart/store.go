package cart

import (
	"context"
	"sync"

	"boutique_back_end/internal/models"
)

// Store persiste les paniers par jeton de session.
// Mutate applique fn de façon atomique : deux requêtes concurrentes sur la même session
// ne perdent aucune mise à jour.
type Store interface {
	Load(ctx context.Context, token string) (models.Cart, error)
	Mutate(ctx context.Context, token string, fn func(models.Cart) error) (models.Cart, error)
	// Take retire le panier et le retourne ; un second Take concurrent obtient un panier vide.
	Take(ctx context.Context, token string) (models.Cart, error)
	Restore(ctx context.Context, token string, cart models.Cart) error
}

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]models.Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]models.Cart)}
}

func (m *MemoryStore) Load(_ context.Context, token string) (models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.carts[token].Clone(), nil
}

func (m *MemoryStore) Mutate(_ context.Context, token string, fn func(models.Cart) error) (models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.carts[token].Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	m.save(token, working)
	return working.Clone(), nil
}

func (m *MemoryStore) Take(_ context.Context, token string) (models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.carts[token].Clone()
	delete(m.carts, token)
	return c, nil
}

// Restore fusionne le panier restitué avec ce qui a pu être ajouté entre-temps.
func (m *MemoryStore) Restore(_ context.Context, token string, cart models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := m.carts[token].Clone()
	mergeInto(merged, cart)
	m.save(token, merged)
	return nil
}

func (m *MemoryStore) save(token string, c models.Cart) {
	if len(c) == 0 {
		delete(m.carts, token)
		return
	}
	m.carts[token] = c
}

// mergeInto ajoute les lignes de src absentes de dst ; les lignes déjà présentes dans dst priment.
func mergeInto(dst, src models.Cart) {
	for id, entry := range src {
		if _, ok := dst[id]; !ok {
			dst[id] = entry
		}
	}
}
