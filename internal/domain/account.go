package domain

import "time"

// Account is the owner of a balance. Accounts are managed elsewhere;
// the transfer engine only reads them and writes their balance.
type Account struct {
	ID        int64
	Name      string
	Email     string
	Balance   AccountBalance
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time // soft-delete marker
}

// IsDeleted reports whether the account was soft-deleted
func (a *Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// CanAffordTransfer reports whether the account balance covers amount
func (a *Account) CanAffordTransfer(amount Money) bool {
	return a.Balance.CanAfford(amount)
}
