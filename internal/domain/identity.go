package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is a wallet address attributed to a call by the ledger.
type Identity = common.Address

// ParseIdentity parses a 0x-prefixed hex address. The zero address is rejected.
func ParseIdentity(s string) (Identity, error) {
	if !common.IsHexAddress(s) {
		return Identity{}, fmt.Errorf("%w: bad address %q", ErrInvalidParameter, s)
	}
	id := common.HexToAddress(s)
	if id == (Identity{}) {
		return Identity{}, fmt.Errorf("%w: zero address", ErrInvalidParameter)
	}
	return id, nil
}
