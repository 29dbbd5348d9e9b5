// Package custody tracks native value held by the contract and paid out to
// accounts.
package custody

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lynora/internal/db"
	"lynora/internal/domain"
)

// Vault books value moving in and out of contract custody.
type Vault struct {
	q db.Querier
}

func NewVault(q db.Querier) *Vault {
	return &Vault{q: q}
}

// Deposit credits value attached to a call to contract custody.
func (v *Vault) Deposit(ctx context.Context, amount uint64) error {
	held, err := v.Custody(ctx)
	if err != nil {
		return err
	}
	if amount > domain.MaxAmount-held {
		return fmt.Errorf("%w: custody overflow", domain.ErrInvalidParameter)
	}
	if _, err := v.q.ExecContext(ctx, `UPDATE custody SET balance = balance + ? WHERE id = 1`, int64(amount)); err != nil {
		return fmt.Errorf("crediting custody: %w", err)
	}
	return nil
}

// Withdraw moves amount from custody to the account of to.
func (v *Vault) Withdraw(ctx context.Context, to domain.Identity, amount uint64, at time.Time) error {
	held, err := v.Custody(ctx)
	if err != nil {
		return err
	}
	if amount > held {
		return fmt.Errorf("%w: custody holds %d, cannot pay %d", domain.ErrInvalidParameter, held, amount)
	}
	balance, err := v.Balance(ctx, to)
	if err != nil {
		return err
	}
	if amount > domain.MaxAmount-balance {
		return fmt.Errorf("%w: balance overflow for %s", domain.ErrInvalidParameter, to.Hex())
	}

	if _, err := v.q.ExecContext(ctx, `UPDATE custody SET balance = balance - ? WHERE id = 1`, int64(amount)); err != nil {
		return fmt.Errorf("debiting custody: %w", err)
	}
	_, err = v.q.ExecContext(ctx, `
		INSERT INTO accounts (address, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			balance = balance + excluded.balance,
			updated_at = excluded.updated_at`,
		to.Hex(), int64(amount), at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("crediting %s: %w", to.Hex(), err)
	}
	return nil
}

// Custody returns the value currently held by the contract.
func (v *Vault) Custody(ctx context.Context) (uint64, error) {
	var held int64
	if err := v.q.QueryRowContext(ctx, `SELECT balance FROM custody WHERE id = 1`).Scan(&held); err != nil {
		return 0, fmt.Errorf("reading custody: %w", err)
	}
	return uint64(held), nil
}

// Balance returns the amount paid out to an account so far.
func (v *Vault) Balance(ctx context.Context, who domain.Identity) (uint64, error) {
	var balance int64
	err := v.q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE address = ?`, who.Hex()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance of %s: %w", who.Hex(), err)
	}
	return uint64(balance), nil
}
