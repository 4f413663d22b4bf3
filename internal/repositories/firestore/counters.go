package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	pfirestore "github.com/webshop/api/internal/platform/firestore"
)

type counterDocument struct {
	Value     int64     `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type counterRepository struct{ s *Store }

// Next increments the named counter inside the caller's transaction and returns the new value.
// Counters start at 1.
func (r counterRepository) Next(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("counter name is required")
	}

	var next int64
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.s.counters.Get(ctx, name)
		if err != nil && !pfirestore.IsNotFound(err) {
			return err
		}
		doc.Value++
		doc.UpdatedAt = r.s.now()
		next = doc.Value
		return r.s.counters.Set(ctx, name, doc)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
