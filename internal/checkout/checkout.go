package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/offline-pos/internal/cart"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

// Checkout finalizes the register's active cart and, on success, moves the
// register to a fresh session. On failure the cart is left as it was.
func Checkout(ctx context.Context, reg *cart.Register, f Finalizer, payments []types.Payment) (*Receipt, cart.Cart, error) {
	if reg == nil || f == nil {
		return nil, cart.Cart{}, fmt.Errorf("register and finalizer required")
	}
	var receipt *Receipt
	next, err := reg.Commit(ctx, func(ctx context.Context, c cart.Cart) error {
		r, err := f.Finalize(ctx, c, payments)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, next, err
	}
	return receipt, next, nil
}
