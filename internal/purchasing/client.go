// Package purchasing is the purchasing-system collaborator. Converting a
// requisition creates an order header plus one line per requisition line
// through this client; the purchasing system owns the created documents.
package purchasing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OrderRequest describes a new purchase order header.
type OrderRequest struct {
	VendorID  *string   `json:"vendorId,omitempty"`
	Origin    string    `json:"origin"`
	OrderDate time.Time `json:"orderDate"`
	CompanyID string    `json:"companyId"`
}

// OrderLineRequest describes one line of an existing purchase order.
type OrderLineRequest struct {
	OrderID     string    `json:"orderId"`
	ProductID   string    `json:"productId"`
	Label       string    `json:"label"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unitPrice"`
	Unit        *string   `json:"unit,omitempty"`
	PlannedDate time.Time `json:"plannedDate"`
}

// Client is the contract the conversion engine depends on.
type Client interface {
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)
	CreateOrderLine(ctx context.Context, req OrderLineRequest) (string, error)
}

// HTTPClient talks to the purchasing system's REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient constructs a client targeting the provided base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateOrder creates an order header and returns its identifier.
func (c *HTTPClient) CreateOrder(ctx context.Context, order OrderRequest) (string, error) {
	return c.post(ctx, fmt.Sprintf("%s/orders", c.baseURL), order)
}

// CreateOrderLine creates a line on an existing order and returns its
// identifier.
func (c *HTTPClient) CreateOrderLine(ctx context.Context, line OrderLineRequest) (string, error) {
	endpoint := fmt.Sprintf("%s/orders/%s/lines", c.baseURL, url.PathEscape(line.OrderID))
	return c.post(ctx, endpoint, line)
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("purchasing request failed: %s", resp.Status)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}
