package snapshots

//go:generate mockgen -destination=mock/mock_repository.go -package=mocksnapshots -source=repository.go

import (
	"context"

	"github.com/loreforge/loreforge/internal/domain/game"
)

// Repository persists full session state snapshots. The core never
// assumes a save succeeded synchronously with gameplay.
type Repository interface {
	// Load retrieves the snapshot for a session key
	Load(ctx context.Context, sessionKey string) (*game.State, error)

	// Save stores a consistent snapshot under the session key
	Save(ctx context.Context, sessionKey string, snapshot *game.State) error

	// Delete removes a stored snapshot
	Delete(ctx context.Context, sessionKey string) error
}
