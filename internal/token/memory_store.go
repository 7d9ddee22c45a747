package token

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"participant-gate/internal/models"
)

// MemoryStore keeps tokens in a go-cache whose janitor evicts entries
// past their TTL.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(defaultTTL, cleanupInterval),
	}
}

func (s *MemoryStore) Put(_ context.Context, tok models.DownloadToken, ttl time.Duration) error {
	s.cache.Set(tok.ID, tok, ttl)
	return nil
}

func (s *MemoryStore) Take(_ context.Context, id string) (models.DownloadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, found := s.cache.Get(id)
	if !found {
		return models.DownloadToken{}, ErrTokenNotFound
	}
	s.cache.Delete(id)

	tok, ok := raw.(models.DownloadToken)
	if !ok {
		return models.DownloadToken{}, ErrTokenCorrupted
	}
	return tok, nil
}

func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
