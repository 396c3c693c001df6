package snapshots

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/loreforge/loreforge/internal/domain/game"
	apperr "github.com/loreforge/loreforge/internal/errors"
)

// inMemoryRepository implements Repository with a map, for tests and
// local development. Snapshots round-trip through JSON so stored data
// shares no memory with the caller.
type inMemoryRepository struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryRepository creates a new in-memory snapshot repository
func NewInMemoryRepository() Repository {
	return &inMemoryRepository{
		data: make(map[string][]byte),
	}
}

func (r *inMemoryRepository) Load(_ context.Context, sessionKey string) (*game.State, error) {
	if sessionKey == "" {
		return nil, apperr.InvalidArgument("session key cannot be empty")
	}

	r.mu.RLock()
	data, ok := r.data[sessionKey]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFoundf("no snapshot for session %q", sessionKey)
	}

	var snapshot game.State
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *inMemoryRepository) Save(_ context.Context, sessionKey string, snapshot *game.State) error {
	if sessionKey == "" {
		return apperr.InvalidArgument("session key cannot be empty")
	}
	if snapshot == nil {
		return apperr.InvalidArgument("snapshot cannot be nil")
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.data[sessionKey] = data
	r.mu.Unlock()
	return nil
}

func (r *inMemoryRepository) Delete(_ context.Context, sessionKey string) error {
	r.mu.Lock()
	delete(r.data, sessionKey)
	r.mu.Unlock()
	return nil
}
