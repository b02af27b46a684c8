// Package catalog defines the canonical product record and the record store
// contract consumed by the search core and the HTTP layer.
package catalog

import (
	"context"
	"strings"
)

// Product is the canonical catalog record, keyed by ProductID.
type Product struct {
	ProductID          string `json:"productId"`
	SupplierGroupID    string `json:"supplierGroupId"`
	Supplier           string `json:"supplier"`
	IsPrimarySupplier  string `json:"isPrimarySupplier"`
	ItemDescription    string `json:"itemDescription"`
	SmktsMerchCategory string `json:"smktsMerchCategory"`
	LiqMerchCategory   string `json:"liqMerchCategory"`
	DigitalBrandName   string `json:"digitalBrandName"`
	SubBrandName       string `json:"subBrandName"`
}

// HasID reports whether the record carries a non-blank product id.
func (p Product) HasID() bool {
	return strings.TrimSpace(p.ProductID) != ""
}

// Store owns canonical product records.
type Store interface {
	// ListAll streams every record to fn in a stable order. Iteration stops
	// at the first error returned by fn.
	ListAll(ctx context.Context, fn func(Product) error) error
	Get(ctx context.Context, productID string) (*Product, error)
	GetMany(ctx context.Context, productIDs []string) ([]Product, error)
	InsertBatch(ctx context.Context, products []Product) error
	FindBySuppliers(ctx context.Context, suppliers []string) ([]Product, error)
	SearchLike(ctx context.Context, term string, limit int) ([]Product, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// SplitCSV splits a comma-separated list, trimming entries and dropping
// blanks.
func SplitCSV(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
