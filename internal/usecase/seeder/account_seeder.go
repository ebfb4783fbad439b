package seeder

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/simaogato/fundsflow-backend/internal/domain"
)

// DemoAccount defines an account to be seeded
type DemoAccount struct {
	Name    string
	Email   string
	Balance decimal.Decimal
}

// DemoAccounts are the funded accounts a fresh database starts with
var DemoAccounts = []DemoAccount{
	{Name: "Juan Pérez", Email: "juan@example.com", Balance: decimal.NewFromInt(1000)},
	{Name: "María García", Email: "maria@example.com", Balance: decimal.NewFromInt(500)},
	{Name: "Carlos López", Email: "carlos@example.com", Balance: decimal.NewFromInt(750)},
}

// AccountSeeder handles seeding of demo accounts
type AccountSeeder struct {
	repo     domain.AccountStore
	accounts []DemoAccount
}

// NewAccountSeeder creates a new AccountSeeder instance
func NewAccountSeeder(repo domain.AccountStore, accounts []DemoAccount) *AccountSeeder {
	return &AccountSeeder{
		repo:     repo,
		accounts: accounts,
	}
}

// Seed ensures every demo account exists.
// Existing accounts are left untouched, balances included.
func (s *AccountSeeder) Seed(ctx context.Context) (int, error) {
	created := 0
	for _, demo := range s.accounts {
		_, err := s.repo.GetByEmail(ctx, demo.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return created, err
		}

		balance, err := domain.NewAccountBalance(demo.Balance)
		if err != nil {
			return created, err
		}
		account := &domain.Account{
			Name:    demo.Name,
			Email:   demo.Email,
			Balance: balance,
		}
		if err := s.repo.Create(ctx, account); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
