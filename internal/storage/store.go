package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apexai/apex/internal/metrics"
)

// maxWriteAttempts bounds how often a conflicting read-modify-write is replayed.
const maxWriteAttempts = 5

// Store exposes the feedback and user collections on top of a Backend.
//
// Every mutation reads the whole collection, changes it in memory and writes
// it back with a version check. Writers inside one process are serialized by
// a mutex; writers in other processes are caught by the backend's
// compare-and-swap and replayed on the fresh state.
type Store struct {
	backend Backend
	now     func() time.Time
	logger  *slog.Logger

	mu sync.Mutex
}

// NewStore wraps b. The Store does not own b; callers close it.
func NewStore(b Backend) *Store {
	return &Store{
		backend: b,
		now:     time.Now,
		logger:  slog.Default(),
	}
}

func newFeedbackID() string { return "fdb_" + uuid.New().String() }

func newUserID() string { return "usr_" + uuid.New().String() }

// --- Feedback ---

// FindFeedback returns the records matching f, newest first.
func (s *Store) FindFeedback(ctx context.Context, f FeedbackFilter) ([]FeedbackRecord, error) {
	all, _, err := readCollection[FeedbackRecord](ctx, s.backend, FeedbackCollection)
	metrics.ObserveStoreOp("find_feedback", err)
	if err != nil {
		return nil, err
	}
	metrics.FeedbackRecords.Set(float64(len(all)))

	out := make([]FeedbackRecord, 0, len(all))
	for _, r := range all {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// InsertFeedback assigns a fresh ID to rec and stores it at the head of the collection.
func (s *Store) InsertFeedback(ctx context.Context, rec FeedbackRecord) (FeedbackRecord, error) {
	saved, err := s.InsertManyFeedback(ctx, []FeedbackRecord{rec})
	if err != nil {
		return FeedbackRecord{}, err
	}
	return saved[0], nil
}

// InsertManyFeedback assigns fresh IDs and prepends recs, keeping their order.
func (s *Store) InsertManyFeedback(ctx context.Context, recs []FeedbackRecord) ([]FeedbackRecord, error) {
	if len(recs) == 0 {
		return []FeedbackRecord{}, nil
	}

	saved := make([]FeedbackRecord, len(recs))
	for i, r := range recs {
		r.ID = newFeedbackID()
		if r.Keywords == nil {
			r.Keywords = []string{}
		}
		saved[i] = r
	}

	var size int
	err := update(ctx, s, FeedbackCollection, func(all []FeedbackRecord) ([]FeedbackRecord, error) {
		next := make([]FeedbackRecord, 0, len(saved)+len(all))
		next = append(next, saved...)
		next = append(next, all...)
		size = len(next)
		return next, nil
	})
	metrics.ObserveStoreOp("insert_feedback", err)
	if err != nil {
		return nil, fmt.Errorf("inserting feedback: %w", err)
	}
	metrics.FeedbackRecords.Set(float64(size))
	return saved, nil
}

// DeleteManyFeedback clears the feedback collection when f is empty and
// reports how many records were removed. Filtered deletes are not supported:
// a non-empty filter leaves the collection untouched and returns 0.
func (s *Store) DeleteManyFeedback(ctx context.Context, f FeedbackFilter) (int, error) {
	if !f.IsEmpty() {
		s.logger.Debug("filtered delete ignored", "owner", f.OwnerID, "sentiment", f.Sentiment)
		return 0, nil
	}

	var removed int
	err := update(ctx, s, FeedbackCollection, func(all []FeedbackRecord) ([]FeedbackRecord, error) {
		removed = len(all)
		return []FeedbackRecord{}, nil
	})
	metrics.ObserveStoreOp("delete_feedback", err)
	if err != nil {
		return 0, fmt.Errorf("clearing feedback: %w", err)
	}
	metrics.FeedbackRecords.Set(0)
	return removed, nil
}

// --- Users ---

// FindUser returns the account with exactly the given contact, or ErrNotFound.
func (s *Store) FindUser(ctx context.Context, contact string) (UserAccount, error) {
	all, _, err := readCollection[UserAccount](ctx, s.backend, UsersCollection)
	metrics.ObserveStoreOp("find_user", err)
	if err != nil {
		return UserAccount{}, err
	}
	for _, u := range all {
		if u.Contact == contact {
			return u, nil
		}
	}
	return UserAccount{}, ErrNotFound
}

// InsertUser assigns an ID and creation time to acct and appends it.
// Uniqueness of Contact is the caller's concern.
func (s *Store) InsertUser(ctx context.Context, acct UserAccount) (UserAccount, error) {
	acct.ID = newUserID()
	acct.CreatedAt = s.now().UTC()

	err := update(ctx, s, UsersCollection, func(all []UserAccount) ([]UserAccount, error) {
		return append(all, acct), nil
	})
	metrics.ObserveStoreOp("insert_user", err)
	if err != nil {
		return UserAccount{}, fmt.Errorf("inserting user: %w", err)
	}
	return acct, nil
}

// --- collection plumbing ---

func readCollection[T any](ctx context.Context, b Backend, name string) ([]T, int64, error) {
	blob, err := b.Get(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	if len(blob.Data) == 0 {
		return nil, blob.Version, nil
	}
	var items []T
	if err := json.Unmarshal(blob.Data, &items); err != nil {
		return nil, 0, fmt.Errorf("decoding collection %s: %w", name, err)
	}
	return items, blob.Version, nil
}

func update[T any](ctx context.Context, s *Store, name string, mutate func([]T) ([]T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		items, version, err := readCollection[T](ctx, s.backend, name)
		if err != nil {
			return err
		}

		next, err := mutate(items)
		if err != nil {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encoding collection %s: %w", name, err)
		}

		_, err = s.backend.Put(ctx, name, data, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		s.logger.Debug("collection write conflict, retrying", "collection", name, "attempt", attempt)
	}
	return fmt.Errorf("writing %s after %d attempts: %w", name, maxWriteAttempts, ErrConflict)
}
