package engine

import (
	"context"

	"lynora/internal/domain"
)

// Transferer moves native value out of the contract to a recipient. It runs
// inside the claiming call; any call it makes back into the contract must go
// through sess.
type Transferer interface {
	Transfer(ctx context.Context, sess *Session, to domain.Identity, amount uint64) error
}

// VaultTransfer pays out of contract custody into the recipient's account.
type VaultTransfer struct{}

func (VaultTransfer) Transfer(ctx context.Context, sess *Session, to domain.Identity, amount uint64) error {
	return sess.Vault().Withdraw(ctx, to, amount, sess.Call().Time)
}

// TransferFunc adapts a function to Transferer.
type TransferFunc func(ctx context.Context, sess *Session, to domain.Identity, amount uint64) error

func (f TransferFunc) Transfer(ctx context.Context, sess *Session, to domain.Identity, amount uint64) error {
	return f(ctx, sess, to, amount)
}
