package memory

import (
	"context"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories"
)

type accountKey struct {
	role domain.Role
	id   int64
}

type accountRepository struct{ s *Store }

func (r accountRepository) Insert(ctx context.Context, account domain.Account) (domain.Account, error) {
	s := r.s
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	for key, existing := range s.accounts {
		if key.role == account.Role && existing.Login == account.Login {
			return domain.Account{}, repositories.Conflict("accounts.insert", "%s %q already exists", account.Role, account.Login)
		}
	}
	now := s.now()
	account.ID = s.accountSeq.Add(1)
	account.CreatedAt = now
	account.UpdatedAt = now
	key := accountKey{role: account.Role, id: account.ID}
	s.accounts[key] = account

	onRollback(ctx, func() {
		s.accountsMu.Lock()
		delete(s.accounts, key)
		s.accountsMu.Unlock()
	})
	return account, nil
}

func (r accountRepository) Get(_ context.Context, role domain.Role, accountID int64) (domain.Account, error) {
	s := r.s
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	account, ok := s.accounts[accountKey{role: role, id: accountID}]
	if !ok {
		return domain.Account{}, repositories.NotFound("accounts.get", "%s %d not found", role, accountID)
	}
	return account, nil
}

func (r accountRepository) FindByLogin(_ context.Context, role domain.Role, login string) (domain.Account, error) {
	s := r.s
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	for key, account := range s.accounts {
		if key.role == role && account.Login == login {
			return account, nil
		}
	}
	return domain.Account{}, repositories.NotFound("accounts.find_by_login", "%s %q not found", role, login)
}

func (r accountRepository) UpdatePassword(ctx context.Context, role domain.Role, accountID int64, passwordHash string) error {
	s := r.s
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	key := accountKey{role: role, id: accountID}
	prev, ok := s.accounts[key]
	if !ok {
		return repositories.NotFound("accounts.update_password", "%s %d not found", role, accountID)
	}
	next := prev
	next.PasswordHash = passwordHash
	next.UpdatedAt = s.now()
	s.accounts[key] = next

	onRollback(ctx, func() {
		s.accountsMu.Lock()
		s.accounts[key] = prev
		s.accountsMu.Unlock()
	})
	return nil
}
