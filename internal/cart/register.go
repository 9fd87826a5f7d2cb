package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Register owns the terminal's active cart. Every mutation is persisted as
// the active draft before it becomes visible, so Restore rebuilds the same
// view after a crash.
type Register struct {
	mu     sync.Mutex
	drafts DraftRepository
	tx     txRunner
	logg   *logger.Logger
	clock  func() time.Time
	cart   Cart
}

// NewRegister builds a register. Call Restore before use.
func NewRegister(drafts DraftRepository, tx txRunner, logg *logger.Logger) (*Register, error) {
	if drafts == nil {
		return nil, fmt.Errorf("draft repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Register{
		drafts: drafts,
		tx:     tx,
		logg:   logg,
		clock:  time.Now,
	}, nil
}

// Restore loads the active draft, or starts a new session when none exists.
func (r *Register) Restore(ctx context.Context) (Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok, err := r.drafts.ActiveSession(ctx)
	if err != nil {
		return Cart{}, err
	}
	if ok && sessionID != "" {
		row, err := r.drafts.Get(ctx, sessionID)
		if err != nil {
			return Cart{}, err
		}
		if row != nil && row.State == enums.HeldCartStateActive {
			r.cart = FromSnapshot(row.Snapshot.Data())
			r.logg.Info(r.logg.WithSessionID(ctx, sessionID), "restored active cart")
			return r.cart, nil
		}
	}

	fresh := New(uuid.NewString(), r.clock())
	if err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return r.saveActive(ctx, tx, fresh)
	}); err != nil {
		return Cart{}, err
	}
	r.cart = fresh
	return r.cart, nil
}

// Current returns the active cart.
func (r *Register) Current() Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cart
}

// Apply runs a reducer against the active cart and persists the result.
// On any error the active cart is unchanged.
func (r *Register) Apply(ctx context.Context, fn func(Cart) (Cart, error)) (Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := fn(r.cart)
	if err != nil {
		return r.cart, err
	}
	if err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return r.drafts.Save(ctx, tx, next, enums.HeldCartStateActive, "")
	}); err != nil {
		return r.cart, err
	}
	r.cart = next
	return r.cart, nil
}

func (r *Register) AddItem(ctx context.Context, in ItemInput) (Cart, error) {
	return r.Apply(ctx, func(c Cart) (Cart, error) { return c.AddItem(in) })
}

func (r *Register) UpdateQuantity(ctx context.Context, lineID string, qty int) (Cart, error) {
	return r.Apply(ctx, func(c Cart) (Cart, error) { return c.UpdateQuantity(lineID, qty) })
}

func (r *Register) RemoveItem(ctx context.Context, lineID string) (Cart, error) {
	return r.Apply(ctx, func(c Cart) (Cart, error) { return c.RemoveItem(lineID) })
}

func (r *Register) ApplyDiscount(ctx context.Context, amount decimal.Decimal) (Cart, error) {
	return r.Apply(ctx, func(c Cart) (Cart, error) { return c.ApplyDiscount(amount) })
}

func (r *Register) SetCustomer(ctx context.Context, customerID *string) (Cart, error) {
	return r.Apply(ctx, func(c Cart) (Cart, error) { return c.SetCustomer(customerID), nil })
}

func (r *Register) Clear(ctx context.Context) (Cart, error) {
	return r.Apply(ctx, func(c Cart) (Cart, error) { return c.Clear(), nil })
}

// Hold parks the active cart under note and starts a new session.
func (r *Register) Hold(ctx context.Context, note string) (Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cart.IsEmpty() {
		return r.cart, pkgerrors.New(pkgerrors.CodeValidation, "cannot hold an empty cart")
	}

	parked := r.cart
	fresh := New(uuid.NewString(), r.clock())
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := r.drafts.Save(ctx, tx, parked, enums.HeldCartStateHeld, strings.TrimSpace(note)); err != nil {
			return err
		}
		return r.saveActive(ctx, tx, fresh)
	})
	if err != nil {
		return r.cart, err
	}

	r.logg.Info(r.logg.WithSessionID(ctx, parked.SessionID), "cart held")
	r.cart = fresh
	return r.cart, nil
}

// Resume swaps a held cart in. A non-empty active cart is parked in its
// place; an empty one is discarded.
func (r *Register) Resume(ctx context.Context, sessionID string) (Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, err := r.drafts.Get(ctx, sessionID)
	if err != nil {
		return r.cart, err
	}
	if row == nil || row.State != enums.HeldCartStateHeld {
		return r.cart, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("held cart %s not found", sessionID))
	}

	resumed := FromSnapshot(row.Snapshot.Data())
	current := r.cart
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if current.IsEmpty() {
			if err := r.drafts.Delete(ctx, tx, current.SessionID); err != nil {
				return err
			}
		} else if err := r.drafts.Save(ctx, tx, current, enums.HeldCartStateHeld, ""); err != nil {
			return err
		}
		return r.saveActive(ctx, tx, resumed)
	})
	if err != nil {
		return r.cart, err
	}

	r.logg.Info(r.logg.WithSessionID(ctx, sessionID), "held cart resumed")
	r.cart = resumed
	return r.cart, nil
}

// Held lists parked carts.
func (r *Register) Held(ctx context.Context) ([]models.HeldCart, error) {
	return r.drafts.ListHeld(ctx)
}

// Commit hands the active cart to fn while holding the register lock. When
// fn succeeds a new session begins; fn is expected to remove the draft in
// the same transaction that makes the sale durable.
func (r *Register) Commit(ctx context.Context, fn func(ctx context.Context, c Cart) error) (Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fn(ctx, r.cart); err != nil {
		return r.cart, err
	}

	fresh := New(uuid.NewString(), r.clock())
	r.cart = fresh
	if err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return r.saveActive(ctx, tx, fresh)
	}); err != nil {
		// The sale is already durable; the next mutation persists the draft.
		r.logg.Warn(r.logg.WithSessionID(ctx, fresh.SessionID), "persisting new cart draft failed")
	}
	return r.cart, nil
}

func (r *Register) saveActive(ctx context.Context, tx *gorm.DB, c Cart) error {
	if err := r.drafts.Save(ctx, tx, c, enums.HeldCartStateActive, ""); err != nil {
		return err
	}
	return r.drafts.SetActiveSession(ctx, tx, c.SessionID)
}
