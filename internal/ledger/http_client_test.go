package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func newStubClient(t *testing.T, rt roundTripFunc) *HTTPClient {
	t.Helper()
	client, err := NewHTTPClient("http://ledger.test/api/", WithHTTPClient(&http.Client{Transport: rt}), WithAPIKey("secret"))
	require.NoError(t, err)
	return client
}

func record() types.TransactionRecord {
	return types.TransactionRecord{
		ClientTransactionID: "6d0f3c8e-54a2-4bb4-9a55-3b7d2a5f9c11",
		SessionID:           "sess-1",
		Items: []types.LineItem{{
			LineID: "l-1", ProductID: "p-1", Name: "Coffee", Quantity: 2,
			UnitPrice: decimal.RequireFromString("2.50"), TaxRate: decimal.Zero,
			Subtotal: decimal.RequireFromString("5.00"), Tax: decimal.Zero, Total: decimal.RequireFromString("5.00"),
		}},
		Payments:      []types.Payment{{Method: enums.PaymentMethodCash, Amount: decimal.RequireFromString("5.00")}},
		Subtotal:      decimal.RequireFromString("5.00"),
		TaxTotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		Total:         decimal.RequireFromString("5.00"),
		CreatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient("  ")
	require.Error(t, err)

	_, err = NewHTTPClient("not a url")
	require.Error(t, err)
}

func TestSubmitTransactionSendsIdempotencyKey(t *testing.T) {
	rec := record()
	var captured *http.Request
	var payload map[string]any

	client := newStubClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &payload))
		return respond(http.StatusCreated, `{"canonical_id":"L-100","transaction":`+mustJSON(t, rec)+`}`), nil
	})

	res, err := client.SubmitTransaction(context.Background(), rec.ClientTransactionID, rec)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "http://ledger.test/api/transactions", captured.URL.String())
	assert.Equal(t, rec.ClientTransactionID, captured.Header.Get(IdempotencyHeader))
	assert.Equal(t, "Bearer secret", captured.Header.Get("Authorization"))
	assert.Equal(t, rec.ClientTransactionID, payload["client_transaction_id"])
	assert.Equal(t, "5", payload["total"])

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, "L-100", res.CanonicalID)
	assert.True(t, res.Record.Matches(rec))
}

func TestSubmitTransactionDuplicate(t *testing.T) {
	rec := record()
	client := newStubClient(t, func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"canonical_id":"L-100","transaction":`+mustJSON(t, rec)+`}`), nil
	})

	res, err := client.SubmitTransaction(context.Background(), rec.ClientTransactionID, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
}

func TestSubmitTransactionErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   pkgerrors.Code
	}{
		{name: "unprocessable", status: http.StatusUnprocessableEntity, code: pkgerrors.CodeValidation},
		{name: "bad request", status: http.StatusBadRequest, code: pkgerrors.CodeValidation},
		{name: "not found", status: http.StatusNotFound, code: pkgerrors.CodeValidation},
		{name: "server error", status: http.StatusInternalServerError, code: pkgerrors.CodeTransientNetwork},
		{name: "unavailable", status: http.StatusServiceUnavailable, code: pkgerrors.CodeTransientNetwork},
		{name: "throttled", status: http.StatusTooManyRequests, code: pkgerrors.CodeTransientNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newStubClient(t, func(*http.Request) (*http.Response, error) {
				return respond(tt.status, `{"error":"nope"}`), nil
			})
			_, err := client.SubmitTransaction(context.Background(), "key", record())
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestSubmitTransactionTransportFailureIsTransient(t *testing.T) {
	client := newStubClient(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := client.SubmitTransaction(context.Background(), "key", record())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransientNetwork))
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestSubmitTransactionTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = client.SubmitTransaction(context.Background(), "key", record())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransientNetwork), "got %v", err)
}

func TestSubmitTransactionRequiresKey(t *testing.T) {
	client := newStubClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err := client.SubmitTransaction(context.Background(), " ", record())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSubmitCustomerMapsActionsToMethods(t *testing.T) {
	tests := []struct {
		action enums.MutationAction
		method string
		path   string
		status int
		want   SubmitOutcome
	}{
		{action: enums.ActionCreate, method: http.MethodPost, path: "/api/customers", status: http.StatusCreated, want: OutcomeCreated},
		{action: enums.ActionUpdate, method: http.MethodPut, path: "/api/customers/c%201", status: http.StatusOK, want: OutcomeDuplicate},
		{action: enums.ActionDelete, method: http.MethodDelete, path: "/api/customers/c%201", status: http.StatusNoContent, want: OutcomeDuplicate},
		{action: enums.ActionDelete, method: http.MethodDelete, path: "/api/customers/c%201", status: http.StatusNotFound, want: OutcomeDuplicate},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			client := newStubClient(t, func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, tt.method, req.Method)
				assert.Equal(t, tt.path, req.URL.EscapedPath())
				assert.Equal(t, "env-1", req.Header.Get(IdempotencyHeader))
				return respond(tt.status, ""), nil
			})
			got, err := client.SubmitCustomer(context.Background(), "env-1", tt.action, types.CustomerRecord{ID: "c 1", Name: "Ada"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubmitProductRejectsUnknownAction(t *testing.T) {
	client := newStubClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err := client.SubmitProduct(context.Background(), "k", "merge", types.ProductRecord{ID: "p-1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestFetchCatalog(t *testing.T) {
	client := newStubClient(t, func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/api/catalog/products":
			return respond(http.StatusOK, `{"products":[{"id":"p-1","sku":"COF","name":"Coffee","price":"2.50","tax_rate":"0.08","is_active":true}]}`), nil
		case "/api/catalog/customers":
			return respond(http.StatusOK, `{}`), nil
		}
		return respond(http.StatusNotFound, ""), nil
	})

	products, err := client.FetchProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("2.50")))

	customers, err := client.FetchCustomers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, customers)
	assert.Empty(t, customers)
}

func TestPing(t *testing.T) {
	healthy := true
	client := newStubClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/healthz", req.URL.Path)
		if healthy {
			return respond(http.StatusOK, ""), nil
		}
		return respond(http.StatusServiceUnavailable, ""), nil
	})

	require.NoError(t, client.Ping(context.Background()))
	healthy = false
	assert.True(t, pkgerrors.IsCode(client.Ping(context.Background()), pkgerrors.CodeTransientNetwork))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
