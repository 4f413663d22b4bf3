package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// Encoder serialises the strongly typed entity prior to persistence.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection provides typed access to a Firestore collection through the Scope bound to the
// context. Every method requires a scope; see Provider.RunInScope.
type Collection[T any] struct {
	name   string
	encode Encoder[T]
	decode Decoder[T]
}

// NewCollection constructs a Collection bound to name.
func NewCollection[T any](name string, encode Encoder[T], decode Decoder[T]) *Collection[T] {
	if encode == nil {
		encode = IdentityEncoder[T]()
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &Collection[T]{
		name:   strings.TrimSpace(name),
		encode: encode,
		decode: decode,
	}
}

// Get reads the document transactionally, observing writes staged earlier in the same scope.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	scope, ref, err := c.documentRef(ctx, id)
	if err != nil {
		return zero, err
	}

	if w, ok := scope.lookup(ref); ok {
		if w.deleted {
			return zero, WrapError(c.op("get"), status.Errorf(codes.NotFound, "document %s deleted in scope", ref.Path))
		}
		value, ok := w.value.(T)
		if !ok {
			return zero, WrapError(c.op("get"), fmt.Errorf("firestore: staged value for %s has type %T", ref.Path, w.value))
		}
		return value, nil
	}

	snapshot, err := scope.tx.Get(ref)
	if err != nil {
		return zero, WrapError(c.op("get"), err)
	}
	return c.decode(ctx, snapshot)
}

// Set stages an upsert of value under id.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	scope, ref, err := c.documentRef(ctx, id)
	if err != nil {
		return err
	}
	payload, err := c.encode(ctx, value)
	if err != nil {
		return fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	scope.stage(&stagedWrite{ref: ref, value: value, payload: payload})
	return nil
}

// Delete stages removal of the document. Deleting a missing document is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	scope, ref, err := c.documentRef(ctx, id)
	if err != nil {
		return err
	}
	scope.stage(&stagedWrite{ref: ref, deleted: true})
	return nil
}

// Query executes a collection query inside the transaction. Documents replaced or deleted earlier
// in the scope are reported in their staged form; documents created in the scope are not visible.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	scope, coll, err := c.collectionRef(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := scope.tx.Documents(query)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		if w, ok := scope.lookup(snapshot.Ref); ok {
			if w.deleted {
				continue
			}
			if value, ok := w.value.(T); ok {
				docs = append(docs, Document[T]{ID: snapshot.Ref.ID, Data: value, UpdateTime: snapshot.UpdateTime})
				continue
			}
		}
		entity, err := c.decode(ctx, snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		docs = append(docs, Document[T]{ID: snapshot.Ref.ID, Data: entity, UpdateTime: snapshot.UpdateTime})
	}
	return docs, nil
}

func (c *Collection[T]) collectionRef(ctx context.Context) (*Scope, *firestore.CollectionRef, error) {
	if c == nil || c.name == "" {
		return nil, nil, WrapError(c.op("collection"), errors.New("firestore: collection name is required"))
	}
	scope, ok := ScopeFromContext(ctx)
	if !ok {
		return nil, nil, WrapError(c.op("collection"), ErrNoScope)
	}
	return scope, scope.client.Collection(c.name), nil
}

func (c *Collection[T]) documentRef(ctx context.Context, id string) (*Scope, *firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	scope, coll, err := c.collectionRef(ctx)
	if err != nil {
		return nil, nil, err
	}
	return scope, coll.Doc(id), nil
}

func (c *Collection[T]) op(action string) string {
	name := "firestore"
	if c != nil && c.name != "" {
		name = c.name
	}
	return fmt.Sprintf("%s.%s", name, strings.ToLower(action))
}

// IdentityEncoder returns an encoder that writes the value unchanged.
func IdentityEncoder[T any]() Encoder[T] {
	return func(_ context.Context, value T) (any, error) {
		return value, nil
	}
}

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}
