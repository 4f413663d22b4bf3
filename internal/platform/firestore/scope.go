package firestore

import (
	"context"
	"errors"
	"sync"

	"cloud.google.com/go/firestore"
)

// ErrNoScope is returned when a collection is used outside RunInScope.
var ErrNoScope = errors.New("firestore: no transaction scope bound to context")

type scopeKey struct{}

// Scope binds a Firestore transaction to a context and buffers writes until the callback returns,
// so every transactional read precedes the first write. Reads of a buffered document observe the
// buffered value.
type Scope struct {
	client *firestore.Client
	tx     *firestore.Transaction

	mu     sync.Mutex
	staged map[string]*stagedWrite
	order  []string
}

type stagedWrite struct {
	ref     *firestore.DocumentRef
	value   any
	payload any
	deleted bool
}

func newScope(client *firestore.Client, tx *firestore.Transaction) *Scope {
	return &Scope{client: client, tx: tx, staged: make(map[string]*stagedWrite)}
}

// ScopeFromContext returns the scope bound by RunInScope, if any.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok && scope != nil
}

// Client returns the client the scope's transaction runs on.
func (s *Scope) Client() *firestore.Client { return s.client }

func (s *Scope) stage(w *stagedWrite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := w.ref.Path
	if _, ok := s.staged[path]; !ok {
		s.order = append(s.order, path)
	}
	s.staged[path] = w
}

func (s *Scope) lookup(ref *firestore.DocumentRef) (*stagedWrite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.staged[ref.Path]
	return w, ok
}

func (s *Scope) commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range s.order {
		w := s.staged[path]
		var err error
		if w.deleted {
			err = s.tx.Delete(w.ref)
		} else {
			err = s.tx.Set(w.ref, w.payload)
		}
		if err != nil {
			return WrapError("scope.commit", err)
		}
	}
	return nil
}

// RunInScope runs fn inside a Firestore transaction with a Scope bound to its context. Writes
// staged through Collection are applied when fn succeeds; nested calls join the outer scope.
// Errors returned by fn are passed through unchanged.
func (p *Provider) RunInScope(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error {
	if _, ok := ScopeFromContext(ctx); ok {
		return fn(ctx)
	}
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}

	var fnErr error
	err = RunTransaction(ctx, client, func(txCtx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		scope := newScope(client, tx)
		if err := fn(context.WithValue(txCtx, scopeKey{}, scope)); err != nil {
			fnErr = err
			return err
		}
		return scope.commit()
	}, opts...)
	if fnErr != nil {
		return fnErr
	}
	return err
}
