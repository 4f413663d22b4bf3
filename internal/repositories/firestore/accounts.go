package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories"
)

type accountDocument struct {
	ID           int64     `firestore:"id"`
	Role         string    `firestore:"role"`
	Login        string    `firestore:"login"`
	PasswordHash string    `firestore:"passwordHash"`
	Address      string    `firestore:"address,omitempty"`
	Phone        string    `firestore:"phone,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d accountDocument) toDomain() domain.Account {
	return domain.Account{
		ID:           d.ID,
		Role:         domain.Role(d.Role),
		Login:        d.Login,
		PasswordHash: d.PasswordHash,
		Address:      d.Address,
		Phone:        d.Phone,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func accountDocID(role domain.Role, id int64) string {
	return string(role) + "_" + docID(id)
}

type accountRepository struct{ s *Store }

func (r accountRepository) Insert(ctx context.Context, account domain.Account) (domain.Account, error) {
	var doc accountDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := r.s.accounts.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("role", "==", string(account.Role)).Where("login", "==", account.Login)
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return repositories.Conflict("accounts.insert", "%s %q already exists", account.Role, account.Login)
		}
		id, err := r.s.nextID(ctx, accountsCollection)
		if err != nil {
			return err
		}
		now := r.s.now()
		doc = accountDocument{
			ID:           id,
			Role:         string(account.Role),
			Login:        account.Login,
			PasswordHash: account.PasswordHash,
			Address:      account.Address,
			Phone:        account.Phone,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return r.s.accounts.Set(ctx, accountDocID(account.Role, id), doc)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return doc.toDomain(), nil
}

func (r accountRepository) Get(ctx context.Context, role domain.Role, accountID int64) (domain.Account, error) {
	var doc accountDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		doc, err = r.s.accounts.Get(ctx, accountDocID(role, accountID))
		return missing(err, func() *repositories.StoreError {
			return repositories.NotFound("accounts.get", "%s %d not found", role, accountID)
		})
	})
	if err != nil {
		return domain.Account{}, err
	}
	return doc.toDomain(), nil
}

func (r accountRepository) FindByLogin(ctx context.Context, role domain.Role, login string) (domain.Account, error) {
	var found []accountDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		docs, err := r.s.accounts.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("role", "==", string(role)).Where("login", "==", login)
		})
		for _, doc := range docs {
			found = append(found, doc.Data)
		}
		return err
	})
	if err != nil {
		return domain.Account{}, err
	}
	if len(found) == 0 {
		return domain.Account{}, repositories.NotFound("accounts.find_by_login", "%s %q not found", role, login)
	}
	return found[0].toDomain(), nil
}

func (r accountRepository) UpdatePassword(ctx context.Context, role domain.Role, accountID int64, passwordHash string) error {
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		id := accountDocID(role, accountID)
		doc, err := r.s.accounts.Get(ctx, id)
		if err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("accounts.update_password", "%s %d not found", role, accountID)
			})
		}
		doc.PasswordHash = passwordHash
		doc.UpdatedAt = r.s.now()
		return r.s.accounts.Set(ctx, id, doc)
	})
}
