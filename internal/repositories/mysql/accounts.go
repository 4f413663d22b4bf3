package mysql

import (
	"context"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories"
)

type accountRepository struct{ s *Store }

func (r accountRepository) Insert(ctx context.Context, account domain.Account) (domain.Account, error) {
	now := r.s.now()
	model := accountModel{
		Role:         string(account.Role),
		Login:        account.Login,
		PasswordHash: account.PasswordHash,
		Address:      account.Address,
		Phone:        account.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.s.conn(ctx).Create(&model).Error; err != nil {
		return domain.Account{}, conflict(translate("accounts.insert", err), "%s %q already exists", account.Role, account.Login)
	}
	return model.toDomain(), nil
}

func (r accountRepository) Get(ctx context.Context, role domain.Role, accountID int64) (domain.Account, error) {
	var model accountModel
	err := r.s.conn(ctx).Where("id = ? AND role = ?", accountID, string(role)).First(&model).Error
	if err != nil {
		return domain.Account{}, notFound(translate("accounts.get", err), "%s %d not found", role, accountID)
	}
	return model.toDomain(), nil
}

func (r accountRepository) FindByLogin(ctx context.Context, role domain.Role, login string) (domain.Account, error) {
	var model accountModel
	err := r.s.conn(ctx).Where("role = ? AND login = ?", string(role), login).First(&model).Error
	if err != nil {
		return domain.Account{}, notFound(translate("accounts.find_by_login", err), "%s %q not found", role, login)
	}
	return model.toDomain(), nil
}

func (r accountRepository) UpdatePassword(ctx context.Context, role domain.Role, accountID int64, passwordHash string) error {
	res := r.s.conn(ctx).Model(&accountModel{}).
		Where("id = ? AND role = ?", accountID, string(role)).
		Updates(map[string]any{"password_hash": passwordHash, "updated_at": r.s.now()})
	if res.Error != nil {
		return translate("accounts.update_password", res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.NotFound("accounts.update_password", "%s %d not found", role, accountID)
	}
	return nil
}
