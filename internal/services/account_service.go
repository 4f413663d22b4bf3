package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/auth"
	"github.com/webshop/api/internal/repositories"
)

var (
	// ErrAccountInvalidInput indicates missing or malformed credentials.
	ErrAccountInvalidInput = errors.New("account: invalid input")
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountConflict indicates the login is already registered for the role.
	ErrAccountConflict = errors.New("account: conflict")
	// ErrAccountUnauthorized indicates the login or password was wrong.
	ErrAccountUnauthorized = errors.New("account: invalid credentials")
	// ErrAccountForbidden indicates the actor may not register accounts of the requested role.
	ErrAccountForbidden = errors.New("account: forbidden")
	// ErrAccountUnavailable indicates the store could not serve the request.
	ErrAccountUnavailable = errors.New("account: unavailable")
)

// SessionIssuer signs session tokens. *auth.TokenManager satisfies it.
type SessionIssuer interface {
	Issue(identity auth.Identity) (string, time.Time, error)
}

// PasswordHasher hashes and verifies passwords. auth.PasswordHasher satisfies it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// AccountServiceDeps bundles collaborators for the account service.
type AccountServiceDeps struct {
	Accounts   repositories.AccountRepository
	UnitOfWork repositories.UnitOfWork
	Sessions   SessionIssuer
	Hasher     PasswordHasher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type accountService struct {
	accounts   repositories.AccountRepository
	unitOfWork repositories.UnitOfWork
	sessions   SessionIssuer
	hasher     PasswordHasher
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewAccountService constructs the account service.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account service: account repository is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("account service: session issuer is required")
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.PasswordHasher{}
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &accountService{
		accounts:   deps.Accounts,
		unitOfWork: unit,
		sessions:   deps.Sessions,
		hasher:     hasher,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

func (s *accountService) Register(ctx context.Context, cmd RegisterCommand) (Account, error) {
	role, err := parseRole(cmd.Role)
	if err != nil {
		return Account{}, err
	}
	if role.IsStaff() && (cmd.Actor == nil || cmd.Actor.Role != domain.RoleAdmin) {
		return Account{}, fmt.Errorf("%w: only admins may register %s accounts", ErrAccountForbidden, role)
	}
	login := strings.TrimSpace(cmd.Login)
	if login == "" {
		return Account{}, fmt.Errorf("%w: login is required", ErrAccountInvalidInput)
	}
	if strings.TrimSpace(cmd.Password) == "" {
		return Account{}, fmt.Errorf("%w: password is required", ErrAccountInvalidInput)
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return Account{}, err
	}

	var created Account
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.accounts.FindByLogin(txCtx, role, login); err == nil {
			return fmt.Errorf("%w: %s %q already exists", ErrAccountConflict, role, login)
		} else if !isRepositoryNotFound(err) {
			return mapAccountError(err)
		}
		now := s.clock()
		account, err := s.accounts.Insert(txCtx, Account{
			Role:         role,
			Login:        login,
			PasswordHash: hash,
			Address:      strings.TrimSpace(cmd.Address),
			Phone:        strings.TrimSpace(cmd.Phone),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return mapAccountError(err)
		}
		created = account
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	s.logger(ctx, "account.registered", map[string]any{
		"accountId": created.ID,
		"role":      string(created.Role),
	})
	return created, nil
}

func (s *accountService) Login(ctx context.Context, role Role, login, password string) (Session, error) {
	role, err := parseRole(role)
	if err != nil {
		return Session{}, err
	}
	login = strings.TrimSpace(login)
	if login == "" || strings.TrimSpace(password) == "" {
		return Session{}, fmt.Errorf("%w: login and password are required", ErrAccountInvalidInput)
	}

	account, err := s.accounts.FindByLogin(ctx, role, login)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Session{}, ErrAccountUnauthorized
		}
		return Session{}, mapAccountError(err)
	}
	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger(ctx, "account.login.failed", map[string]any{"role": string(role), "accountId": account.ID})
			return Session{}, ErrAccountUnauthorized
		}
		return Session{}, err
	}

	token, expiresAt, err := s.sessions.Issue(auth.Identity{
		UserID: account.ID,
		Role:   account.Role,
		Login:  account.Login,
	})
	if err != nil {
		return Session{}, fmt.Errorf("account: issue session: %w", err)
	}
	account.PasswordHash = ""
	return Session{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

func (s *accountService) ChangePassword(ctx context.Context, actor Actor, newPassword string) error {
	if actor.ID <= 0 {
		return fmt.Errorf("%w: account id must be positive", ErrAccountInvalidInput)
	}
	role, err := parseRole(actor.Role)
	if err != nil {
		return err
	}
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: new password is required", ErrAccountInvalidInput)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	return s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.accounts.Get(txCtx, role, actor.ID); err != nil {
			return mapAccountError(err)
		}
		return mapAccountError(s.accounts.UpdatePassword(txCtx, role, actor.ID, hash))
	})
}

func parseRole(role domain.Role) (domain.Role, error) {
	switch domain.Role(strings.ToLower(strings.TrimSpace(string(role)))) {
	case domain.RoleUser:
		return domain.RoleUser, nil
	case domain.RoleWorker:
		return domain.RoleWorker, nil
	case domain.RoleAdmin:
		return domain.RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrAccountInvalidInput, role)
	}
}

func mapAccountError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrAccountConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
		}
	}
	return err
}
