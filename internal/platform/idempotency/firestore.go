package idempotency

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/webshop/api/internal/platform/firestore"
)

const (
	defaultCollection   = "idempotencyKeys"
	defaultCleanupBatch = 100
)

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name used to store idempotency keys.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.records = pfirestore.NewCollection[firestoreRecord](name, nil, nil)
		}
	}
}

// FirestoreStore keeps records in Firestore so replays survive restarts and span instances.
type FirestoreStore struct {
	provider *pfirestore.Provider
	records  *pfirestore.Collection[firestoreRecord]
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		provider: provider,
		records:  pfirestore.NewCollection[firestoreRecord](defaultCollection, nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Reserve implements Store.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := recordID(key)

	var result Reservation
	err := s.provider.RunInScope(ctx, func(ctx context.Context) error {
		stored, err := s.records.Get(ctx, id)
		if err != nil && !pfirestore.IsNotFound(err) {
			return err
		}
		if err == nil && !expired(stored.toRecord(), now) {
			result, err = classify(stored.toRecord(), fingerprint)
			return err
		}
		record := newPendingRecord(key, fingerprint, now, ttl)
		result = Reservation{State: ReservationStateNew, Record: record}
		return s.records.Set(ctx, id, newFirestoreRecord(record))
	})
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

// SaveResponse implements Store.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := recordID(key)

	return s.provider.RunInScope(ctx, func(ctx context.Context) error {
		stored, err := s.records.Get(ctx, id)
		record := Record{Key: key, Fingerprint: fingerprint}
		switch {
		case err == nil:
			record = stored.toRecord()
			if record.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		case !pfirestore.IsNotFound(err):
			return err
		}
		return s.records.Set(ctx, id, newFirestoreRecord(complete(record, resp, now, ttl)))
	})
}

// CleanupExpired implements Store. At most limit records are removed per call.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupBatch
	}
	removed := 0
	err := s.provider.RunInScope(ctx, func(ctx context.Context) error {
		removed = 0
		docs, err := s.records.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
		})
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := s.records.Delete(ctx, doc.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	return removed, nil
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	return s.provider.RunInScope(ctx, func(ctx context.Context) error {
		return s.records.Delete(ctx, recordID(key))
	})
}

type firestoreRecord struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func newFirestoreRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          Status(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}
