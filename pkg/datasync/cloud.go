package datasync

import (
	"context"

	"github.com/google/uuid"
)

// CloudStore is the server-side aggregate store consumed by the engine.
// Download's second return reports presence: a user who has never synced
// returns (zero, false, nil), which the engine treats differently from an
// explicitly empty snapshot only in that both leave local data alone under
// the non-entitled merge.
type CloudStore interface {
	Upload(ctx context.Context, userID uuid.UUID, agg Aggregate) error
	Download(ctx context.Context, userID uuid.UUID) (Aggregate, bool, error)
}
