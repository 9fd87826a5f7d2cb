package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/offline-pos/api/responses"
	"github.com/angelmondragon/offline-pos/api/validators"
	"github.com/angelmondragon/offline-pos/internal/catalog"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
)

// CatalogService is the offline catalog as seen by the register UI.
type CatalogService interface {
	Product(ctx context.Context, id string) (*models.CatalogProduct, error)
	ProductByBarcode(ctx context.Context, code string) (*models.CatalogProduct, error)
	ProductBySKU(ctx context.Context, sku string) (*models.CatalogProduct, error)
	SearchProducts(ctx context.Context, term string) ([]models.CatalogProduct, error)
	SaveProduct(ctx context.Context, in catalog.ProductInput) (*models.CatalogProduct, error)
	CustomerByPhone(ctx context.Context, phone string) ([]models.Customer, error)
	SearchCustomers(ctx context.Context, term string) ([]models.Customer, error)
	SaveCustomer(ctx context.Context, in catalog.CustomerInput) (*models.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	Refresh(ctx context.Context) (catalog.RefreshResult, error)
	LastRefreshed(ctx context.Context) (time.Time, error)
}

type productResponse struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Barcode   string          `json:"barcode,omitempty"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Price     decimal.Decimal `json:"price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	IsActive  bool            `json:"is_active"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newProductResponse(p models.CatalogProduct) productResponse {
	return productResponse{
		ID:        p.ID,
		SKU:       p.SKU,
		Barcode:   p.Barcode,
		Name:      p.Name,
		Category:  p.Category,
		Price:     p.Price,
		TaxRate:   p.TaxRate,
		IsActive:  p.IsActive,
		UpdatedAt: p.UpdatedAt,
	}
}

type customerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newCustomerResponse(c models.Customer) customerResponse {
	return customerResponse{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email, UpdatedAt: c.UpdatedAt}
}

// ProductSearch serves barcode, sku and free text lookups. Exact lookups
// return a list of at most one product.
func ProductSearch(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable"))
			return
		}
		q := r.URL.Query()
		var (
			rows []models.CatalogProduct
			err  error
		)
		switch {
		case q.Get("barcode") != "":
			rows, err = single(svc.ProductByBarcode(r.Context(), q.Get("barcode")))
		case q.Get("sku") != "":
			rows, err = single(svc.ProductBySKU(r.Context(), q.Get("sku")))
		default:
			rows, err = svc.SearchProducts(r.Context(), validators.SanitizeString(q.Get("q"), 100))
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]productResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newProductResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}

func single(p *models.CatalogProduct, err error) ([]models.CatalogProduct, error) {
	if err != nil || p == nil {
		return []models.CatalogProduct{}, err
	}
	return []models.CatalogProduct{*p}, nil
}

func ProductGet(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable"))
			return
		}
		p, err := svc.Product(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if p == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "product not found"))
			return
		}
		responses.WriteSuccess(w, newProductResponse(*p))
	}
}

// ProductSave creates (POST) or edits (PUT /{id}) a product locally and
// queues the change for the ledger.
func ProductSave(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable"))
			return
		}
		var payload catalog.ProductInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.ID = chi.URLParam(r, "id")
		p, err := svc.SaveProduct(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if payload.ID == "" {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newProductResponse(*p))
	}
}

func CustomerSearch(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable"))
			return
		}
		q := r.URL.Query()
		var (
			rows []models.Customer
			err  error
		)
		if phone := strings.TrimSpace(q.Get("phone")); phone != "" {
			rows, err = svc.CustomerByPhone(r.Context(), phone)
		} else {
			rows, err = svc.SearchCustomers(r.Context(), validators.SanitizeString(q.Get("q"), 100))
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]customerResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newCustomerResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// CustomerSave creates (POST) or edits (PUT /{id}) a customer.
func CustomerSave(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable"))
			return
		}
		var payload catalog.CustomerInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.ID = chi.URLParam(r, "id")
		c, err := svc.SaveCustomer(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if payload.ID == "" {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newCustomerResponse(*c))
	}
}

func CustomerDelete(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable"))
			return
		}
		if err := svc.DeleteCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type catalogStatusResponse struct {
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
}

func CatalogStatus(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable"))
			return
		}
		at, err := svc.LastRefreshed(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := catalogStatusResponse{}
		if !at.IsZero() {
			out.LastRefreshed = &at
		}
		responses.WriteSuccess(w, out)
	}
}

// CatalogRefresh pulls the ledger's catalog now.
func CatalogRefresh(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable"))
			return
		}
		res, err := svc.Refresh(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
