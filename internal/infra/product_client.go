package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"grocery-service/internal/domain"

	"github.com/shopspring/decimal"
)

// ProductInfo is the product service's wire representation.
type ProductInfo struct {
	ID      uint64          `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Qty     int64           `json:"qty"`
	InStock *bool           `json:"inStock,omitempty"`
}

func (p ProductInfo) toDomain() *domain.Product {
	inStock := p.Qty > 0
	if p.InStock != nil {
		inStock = *p.InStock
	}
	return &domain.Product{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		StockQuantity: p.Qty,
		InStock:       inStock,
	}
}

// ProductClient reads the catalog from a remote product service.
type ProductClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewProductClient(baseURL string, timeout time.Duration) *ProductClient {
	return &ProductClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetProductById returns (nil, nil) when the product does not exist.
func (c *ProductClient) GetProductById(ctx context.Context, id uint64) (*domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/products/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product service returned status %d", resp.StatusCode)
	}

	var p ProductInfo
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	return p.toDomain(), nil
}
