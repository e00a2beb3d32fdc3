// Package ledger implements the REST client for the backend system of
// record. The ledger store owns authoritative statuses and balances; this
// engine only asks it to list, transition and create records.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/velora-crm/velora-pos/internal/cashflow"
	"github.com/velora-crm/velora-pos/internal/receipts"
	"github.com/velora-crm/velora-pos/internal/shared"
)

// Config groups client settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the ledger store over HTTP with bearer-token auth.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
}

// New constructs a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   base,
		token:  cfg.Token,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// ListCashFlows lists cash-flow entries, statuses normalised on decode.
func (c *Client) ListCashFlows(ctx context.Context, filter cashflow.Filter) ([]cashflow.Entry, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.CashboxRef != "" {
		q.Set("cashbox", filter.CashboxRef)
	}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PerPage > 0 {
		q.Set("page_size", strconv.Itoa(filter.PerPage))
	}
	var entries []cashflow.Entry
	if err := c.do(ctx, http.MethodGet, "/api/cashflows", q, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetCashFlow fetches one entry by id.
func (c *Client) GetCashFlow(ctx context.Context, id string) (cashflow.Entry, error) {
	var entry cashflow.Entry
	if err := c.do(ctx, http.MethodGet, "/api/cashflows/"+url.PathEscape(id), nil, nil, &entry); err != nil {
		return cashflow.Entry{}, err
	}
	return entry, nil
}

// SetCashFlowStatus persists one status transition. The canonical string
// enum is always written, regardless of how the deployment encodes reads.
func (c *Client) SetCashFlowStatus(ctx context.Context, update cashflow.StatusUpdate) (cashflow.Entry, error) {
	body := map[string]string{"status": string(update.Status)}
	if update.CashboxRef != "" {
		body["cashbox_ref"] = update.CashboxRef
	}
	var entry cashflow.Entry
	if err := c.do(ctx, http.MethodPatch, "/api/cashflows/"+url.PathEscape(update.ID), nil, body, &entry); err != nil {
		return cashflow.Entry{}, err
	}
	return entry, nil
}

// BulkSetCashFlowStatus issues one batched status call. The response holds
// the entries the backend actually transitioned.
func (c *Client) BulkSetCashFlowStatus(ctx context.Context, updates []cashflow.StatusUpdate) ([]cashflow.Entry, error) {
	var entries []cashflow.Entry
	if err := c.do(ctx, http.MethodPost, "/api/cashflows/bulk-status", nil, updates, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateCashFlow creates a new entry in the ledger store.
func (c *Client) CreateCashFlow(ctx context.Context, entry cashflow.Entry) (cashflow.Entry, error) {
	var created cashflow.Entry
	if err := c.do(ctx, http.MethodPost, "/api/cashflows", nil, entry, &created); err != nil {
		return cashflow.Entry{}, err
	}
	return created, nil
}

// ListProducts lists product records carrying receipt statuses.
func (c *Client) ListProducts(ctx context.Context, filter receipts.Filter) ([]receipts.Receipt, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PerPage > 0 {
		q.Set("page_size", strconv.Itoa(filter.PerPage))
	}
	var products []receipts.Receipt
	if err := c.do(ctx, http.MethodGet, "/api/products", q, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct fetches one product by id.
func (c *Client) GetProduct(ctx context.Context, id string) (receipts.Receipt, error) {
	var product receipts.Receipt
	if err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(id), nil, nil, &product); err != nil {
		return receipts.Receipt{}, err
	}
	return product, nil
}

// SetProductStatus persists one receipt-side status transition.
func (c *Client) SetProductStatus(ctx context.Context, id string, status receipts.Status) (receipts.Receipt, error) {
	body := map[string]string{"status": string(status)}
	var product receipts.Receipt
	if err := c.do(ctx, http.MethodPatch, "/api/products/"+url.PathEscape(id), nil, body, &product); err != nil {
		return receipts.Receipt{}, err
	}
	return product, nil
}

// DeleteProduct removes the product created by a now-rejected warehouse entry.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/products/"+url.PathEscape(id), nil, nil, nil)
}

// DeleteSale removes the sale behind a now-rejected sale entry.
func (c *Client) DeleteSale(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sales/"+url.PathEscape(id), nil, nil, nil)
}

// ReverseDebtPayment rolls a debt payment back onto the client's balance.
func (c *Client) ReverseDebtPayment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/debt-payments/"+url.PathEscape(id)+"/reverse", nil, nil, nil)
}

// DeleteRawConsumption removes a raw-material consumption record.
func (c *Client) DeleteRawConsumption(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/raw-consumptions/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ledger: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("ledger: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", shared.ErrRemoteUnavailable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp, method, path); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ledger: decode response for %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) checkStatus(resp *http.Response, method, path string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, method, path)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s %s", shared.ErrConflict, method, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d", shared.ErrRemoteUnavailable, method, path, resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("ledger request rejected",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return errors.New("ledger: " + method + " " + path + ": status " + strconv.Itoa(resp.StatusCode) + ": " + strings.TrimSpace(string(detail)))
	}
}
