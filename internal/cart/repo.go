package cart

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/offline-pos/internal/localstore"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	"github.com/angelmondragon/offline-pos/pkg/enums"
)

// DraftRepository persists cart drafts and parked carts.
type DraftRepository interface {
	Save(ctx context.Context, tx *gorm.DB, c Cart, state enums.HeldCartState, note string) error
	Get(ctx context.Context, sessionID string) (*models.HeldCart, error)
	ListHeld(ctx context.Context) ([]models.HeldCart, error)
	Delete(ctx context.Context, tx *gorm.DB, sessionID string) error
	ActiveSession(ctx context.Context) (string, bool, error)
	SetActiveSession(ctx context.Context, tx *gorm.DB, sessionID string) error
}

type draftRepository struct {
	store *localstore.Store
}

// NewDraftRepository binds drafts to the held_carts collection.
func NewDraftRepository(store *localstore.Store) DraftRepository {
	return &draftRepository{store: store}
}

func (r *draftRepository) collection(tx *gorm.DB) *localstore.Collection[models.HeldCart] {
	return r.store.HeldCarts().WithTx(tx)
}

func (r *draftRepository) Save(ctx context.Context, tx *gorm.DB, c Cart, state enums.HeldCartState, note string) error {
	row := models.HeldCart{
		SessionID: c.SessionID,
		State:     state,
		Note:      note,
		Snapshot:  datatypes.NewJSONType(c.Snapshot()),
		ItemCount: c.ItemCount(),
		Total:     c.Total,
	}
	return r.collection(tx).Put(ctx, &row)
}

func (r *draftRepository) Get(ctx context.Context, sessionID string) (*models.HeldCart, error) {
	return r.store.HeldCarts().Get(ctx, sessionID)
}

func (r *draftRepository) ListHeld(ctx context.Context) ([]models.HeldCart, error) {
	return r.store.HeldCarts().GetByIndex(ctx, "state", enums.HeldCartStateHeld)
}

func (r *draftRepository) Delete(ctx context.Context, tx *gorm.DB, sessionID string) error {
	return r.collection(tx).Delete(ctx, sessionID)
}

func (r *draftRepository) ActiveSession(ctx context.Context) (string, bool, error) {
	return r.store.GetSetting(ctx, localstore.SettingActiveSession)
}

func (r *draftRepository) SetActiveSession(ctx context.Context, tx *gorm.DB, sessionID string) error {
	if tx == nil {
		return r.store.PutSetting(ctx, localstore.SettingActiveSession, sessionID)
	}
	return localstore.PutSettingTx(ctx, tx, localstore.SettingActiveSession, sessionID)
}
