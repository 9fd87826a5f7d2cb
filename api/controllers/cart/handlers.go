package cart

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	cartdto "github.com/angelmondragon/offline-pos/api/controllers/cart/dto"
	"github.com/angelmondragon/offline-pos/api/responses"
	"github.com/angelmondragon/offline-pos/api/validators"
	cartsvc "github.com/angelmondragon/offline-pos/internal/cart"
	"github.com/angelmondragon/offline-pos/internal/checkout"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
)

// ProductLookup resolves catalog products for the register. Lookups return
// nil, nil when nothing matches.
type ProductLookup interface {
	Product(ctx context.Context, id string) (*models.CatalogProduct, error)
	ProductByBarcode(ctx context.Context, code string) (*models.CatalogProduct, error)
	ProductBySKU(ctx context.Context, sku string) (*models.CatalogProduct, error)
}

// Handlers serves the register UI's cart endpoints.
type Handlers struct {
	register  *cartsvc.Register
	finalizer checkout.Finalizer
	products  ProductLookup
	logg      *logger.Logger
}

func NewHandlers(register *cartsvc.Register, finalizer checkout.Finalizer, products ProductLookup, logg *logger.Logger) *Handlers {
	return &Handlers{register: register, finalizer: finalizer, products: products, logg: logg}
}

func (h *Handlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h == nil || h.register == nil {
		responses.WriteError(r.Context(), h.logger(), w, pkgerrors.New(pkgerrors.CodeDependency, "register unavailable"))
		return false
	}
	return true
}

func (h *Handlers) logger() *logger.Logger {
	if h == nil {
		return nil
	}
	return h.logg
}

// Get returns the active cart.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	responses.WriteSuccess(w, h.register.Current())
}

// AddItem rings up a product on the active cart.
func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var payload cartdto.AddItemRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	product, err := h.resolve(r.Context(), payload)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	price := product.Price
	if payload.UnitPrice != nil {
		price = *payload.UnitPrice
	}
	c, err := h.register.AddItem(r.Context(), cartsvc.ItemInput{
		ProductID: product.ID,
		SKU:       product.SKU,
		Name:      product.Name,
		Quantity:  payload.Quantity,
		UnitPrice: price,
		TaxRate:   product.TaxRate,
	})
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, c)
}

func (h *Handlers) resolve(ctx context.Context, payload cartdto.AddItemRequest) (*models.CatalogProduct, error) {
	if h.products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable")
	}
	var (
		product *models.CatalogProduct
		err     error
		key     string
	)
	switch {
	case strings.TrimSpace(payload.ProductID) != "":
		key = payload.ProductID
		product, err = h.products.Product(ctx, key)
		if product != nil && !product.IsActive {
			product = nil
		}
	case strings.TrimSpace(payload.Barcode) != "":
		key = payload.Barcode
		product, err = h.products.ProductByBarcode(ctx, key)
	case strings.TrimSpace(payload.SKU) != "":
		key = payload.SKU
		product, err = h.products.ProductBySKU(ctx, key)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id, barcode or sku is required")
	}
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{"lookup": key})
	}
	return product, nil
}

// UpdateItem sets a line's quantity. Zero removes the line.
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var payload cartdto.UpdateQuantityRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	c, err := h.register.UpdateQuantity(r.Context(), chi.URLParam(r, "lineId"), payload.Quantity)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, c)
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	c, err := h.register.RemoveItem(r.Context(), chi.URLParam(r, "lineId"))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, c)
}

func (h *Handlers) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var payload cartdto.DiscountRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	c, err := h.register.ApplyDiscount(r.Context(), payload.Amount)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, c)
}

// SetCustomer attaches a customer, or detaches with a null id.
func (h *Handlers) SetCustomer(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var payload cartdto.CustomerRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	c, err := h.register.SetCustomer(r.Context(), payload.CustomerID)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, c)
}

func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	c, err := h.register.Clear(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, c)
}

// Hold parks the active cart and returns the fresh one.
func (h *Handlers) Hold(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var payload cartdto.HoldRequest
	if r.ContentLength != 0 {
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), h.logg, w, err)
			return
		}
	}
	c, err := h.register.Hold(r.Context(), payload.Note)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, c)
}

func (h *Handlers) ListHeld(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	rows, err := h.register.Held(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, newHeldCartsResponse(rows))
}

func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	c, err := h.register.Resume(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, c)
}

// Checkout finalizes the active cart with the given tenders.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	if h.finalizer == nil {
		responses.WriteError(r.Context(), h.logg, w, pkgerrors.New(pkgerrors.CodeDependency, "checkout unavailable"))
		return
	}
	var payload cartdto.CheckoutRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	receipt, next, err := checkout.Checkout(r.Context(), h.register, h.finalizer, toPayments(payload.Payments))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{Receipt: receipt, Cart: next})
}
