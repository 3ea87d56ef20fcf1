package custody

import "github.com/ethereum/go-ethereum/common"

// RequireOwner returns ErrNotOwner unless caller is owner. Privileged
// operations call it before anything else.
func RequireOwner(caller, owner common.Address) error {
	if caller != owner {
		return ErrNotOwner
	}
	return nil
}
