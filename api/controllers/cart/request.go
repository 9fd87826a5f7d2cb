package cart

import (
	cartdto "github.com/angelmondragon/offline-pos/api/controllers/cart/dto"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

func toPayments(reqs []cartdto.PaymentRequest) []types.Payment {
	out := make([]types.Payment, 0, len(reqs))
	for _, p := range reqs {
		out = append(out, types.Payment{
			Method:    p.Method,
			Amount:    p.Amount,
			Reference: p.Reference,
		})
	}
	return out
}
