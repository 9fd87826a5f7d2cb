package cart

import (
	"time"

	"github.com/shopspring/decimal"

	cartsvc "github.com/angelmondragon/offline-pos/internal/cart"
	"github.com/angelmondragon/offline-pos/internal/checkout"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
)

type heldCartResponse struct {
	SessionID string          `json:"session_id"`
	Note      string          `json:"note,omitempty"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
	HeldAt    time.Time       `json:"held_at"`
}

func newHeldCartsResponse(rows []models.HeldCart) []heldCartResponse {
	out := make([]heldCartResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, heldCartResponse{
			SessionID: row.SessionID,
			Note:      row.Note,
			ItemCount: row.ItemCount,
			Total:     row.Total,
			HeldAt:    row.UpdatedAt,
		})
	}
	return out
}

type checkoutResponse struct {
	Receipt *checkout.Receipt `json:"receipt"`
	Cart    cartsvc.Cart      `json:"cart"`
}
