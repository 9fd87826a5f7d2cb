package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/offline-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/types"
)

const (
	// IdempotencyHeader carries the client-generated idempotency key.
	IdempotencyHeader = "Idempotency-Key"

	defaultTimeout             = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("ledger base url is required")

// HTTPClient talks to the ledger over its JSON API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *HTTPClient) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout bounds each request made by the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewHTTPClient builds a ledger client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("parsing ledger base url: %w", err)
	}

	client := &HTTPClient{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type transactionResponse struct {
	CanonicalID string                  `json:"canonical_id"`
	Transaction types.TransactionRecord `json:"transaction"`
}

// SubmitTransaction posts a finalized sale. 201 means the ledger recorded
// it now, 200 means it already held a sale under the same key.
func (c *HTTPClient) SubmitTransaction(ctx context.Context, idempotencyKey string, rec types.TransactionRecord) (*TransactionResult, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}

	var body transactionResponse
	outcome, err := c.write(ctx, http.MethodPost, "transactions", idempotencyKey, rec, &body)
	if err != nil {
		return nil, err
	}
	if body.CanonicalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeTransientNetwork, "ledger response missing canonical id")
	}
	return &TransactionResult{
		Outcome:     outcome,
		CanonicalID: body.CanonicalID,
		Record:      body.Transaction,
	}, nil
}

func (c *HTTPClient) SubmitCustomer(ctx context.Context, idempotencyKey string, action enums.MutationAction, rec types.CustomerRecord) (SubmitOutcome, error) {
	return c.submitResource(ctx, "customers", rec.ID, idempotencyKey, action, rec)
}

func (c *HTTPClient) SubmitProduct(ctx context.Context, idempotencyKey string, action enums.MutationAction, rec types.ProductRecord) (SubmitOutcome, error) {
	return c.submitResource(ctx, "products", rec.ID, idempotencyKey, action, rec)
}

// submitResource maps create to POST, update to PUT and delete to DELETE.
// Deleting something the ledger no longer has counts as a duplicate.
func (c *HTTPClient) submitResource(ctx context.Context, resource, id, idempotencyKey string, action enums.MutationAction, payload any) (SubmitOutcome, error) {
	if strings.TrimSpace(id) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, resource+" id is required")
	}
	itemPath := fmt.Sprintf("%s/%s", resource, url.PathEscape(id))

	switch action {
	case enums.ActionCreate:
		return c.write(ctx, http.MethodPost, resource, idempotencyKey, payload, nil)
	case enums.ActionUpdate:
		return c.write(ctx, http.MethodPut, itemPath, idempotencyKey, payload, nil)
	case enums.ActionDelete:
		return c.write(ctx, http.MethodDelete, itemPath, idempotencyKey, nil, nil)
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported action %q", action))
	}
}

func (c *HTTPClient) FetchProducts(ctx context.Context) ([]types.ProductRecord, error) {
	var body struct {
		Products []types.ProductRecord `json:"products"`
	}
	if err := c.read(ctx, "catalog/products", &body); err != nil {
		return nil, err
	}
	if body.Products == nil {
		body.Products = []types.ProductRecord{}
	}
	return body.Products, nil
}

func (c *HTTPClient) FetchCustomers(ctx context.Context) ([]types.CustomerRecord, error) {
	var body struct {
		Customers []types.CustomerRecord `json:"customers"`
	}
	if err := c.read(ctx, "catalog/customers", &body); err != nil {
		return nil, err
	}
	if body.Customers == nil {
		body.Customers = []types.CustomerRecord{}
	}
	return body.Customers, nil
}

// Ping checks ledger liveness.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.read(ctx, "healthz", nil)
}

func (c *HTTPClient) write(ctx context.Context, method, path, idempotencyKey string, payload, out any) (SubmitOutcome, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "marshal ledger request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build ledger request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(IdempotencyHeader, idempotencyKey)

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var outcome SubmitOutcome
	switch {
	case resp.StatusCode == http.StatusCreated:
		outcome = OutcomeCreated
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		outcome = OutcomeDuplicate
	case method == http.MethodDelete && resp.StatusCode == http.StatusNotFound:
		return OutcomeDuplicate, nil
	default:
		return "", statusError(resp, method+" "+path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeTransientNetwork, err, "decode ledger response")
		}
	}
	return outcome, nil
}

func (c *HTTPClient) read(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path), nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build ledger request")
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, "GET "+path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransientNetwork, err, "decode ledger response")
	}
	return nil
}

func (c *HTTPClient) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	return resp, nil
}

func (c *HTTPClient) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}

// statusError classifies a non-success response. Server errors, 408 and 429
// are transient; any other 4xx is a rejection that retrying cannot fix.
func statusError(resp *http.Response, op string) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))

	switch {
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return pkgerrors.Wrap(pkgerrors.CodeTransientNetwork, cause, op+" failed").
			WithDetails(map[string]any{"status": resp.StatusCode})
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, op+" rejected").
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
}

func transportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return pkgerrors.Wrap(pkgerrors.CodeTransientNetwork, err, "ledger request timed out")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeTransientNetwork, err, "ledger unreachable")
	}
}
