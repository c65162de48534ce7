package matrix

import (
	"context"
	"errors"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Lumio/internal/lumio/store"
)

var _ mautrix.SyncStore = (*stateSyncStore)(nil)

// stateSyncStore keeps the filter id and next_batch token in store.State
// under matrix.<user>.<key>.
type stateSyncStore struct {
	state store.State
}

func newStateSyncStore(state store.State) *stateSyncStore {
	return &stateSyncStore{state: state}
}

func (s *stateSyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.state.Set(ctx, key(userID, "filter_id"), filterID)
}

func (s *stateSyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, key(userID, "filter_id"))
}

func (s *stateSyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	return s.state.Set(ctx, key(userID, "next_batch"), nextBatchToken)
}

func (s *stateSyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, key(userID, "next_batch"))
}

// load returns ("", nil) for keys that were never saved.
func (s *stateSyncStore) load(ctx context.Context, k string) (string, error) {
	v, err := s.state.Get(ctx, k)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func key(userID id.UserID, name string) string {
	return "matrix." + userID.String() + "." + name
}
