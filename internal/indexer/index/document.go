package index

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
)

const (
	FieldProductID          = "productId"
	FieldSupplier           = "supplier"
	FieldItemDescription    = "itemDescription"
	FieldBrand              = "brand"
	FieldSupplierSearch     = "supplierSearch"
	FieldSupplierGroupID    = "supplierGroupId"
	FieldSmktsMerchCategory = "smktsMerchCategory"
	FieldLiqMerchCategory   = "liqMerchCategory"
	FieldDigitalBrandName   = "digitalBrandName"
	FieldSubBrandName       = "subBrandName"
	FieldIsPrimarySupplier  = "isPrimarySupplier"
)

var searchableFields = map[string]struct{}{
	FieldProductID:       {},
	FieldSupplier:        {},
	FieldItemDescription: {},
	FieldBrand:           {},
	FieldSupplierSearch:  {},
}

// IsSearchable reports whether field is analyzed into the inverted index.
func IsSearchable(field string) bool {
	_, ok := searchableFields[field]
	return ok
}

// SearchableFields lists the analyzed fields in a fixed order.
func SearchableFields() []string {
	return []string{
		FieldProductID,
		FieldSupplier,
		FieldItemDescription,
		FieldBrand,
		FieldSupplierSearch,
	}
}

// Document is the projection of a product record into the index. Text holds
// the searchable fields; Stored holds what is returned verbatim.
type Document struct {
	Text   map[string]string
	Stored map[string]string
}

// ProductID returns the stored product id.
func (d Document) ProductID() string {
	return d.Stored[FieldProductID]
}

// FromProduct builds the indexed form of a catalog record. brand is the brand
// and sub-brand joined by a space; supplierSearch is supplier plus supplier
// group and is not stored.
func FromProduct(p catalog.Product) Document {
	brand := strings.TrimSpace(p.DigitalBrandName + " " + p.SubBrandName)
	return Document{
		Text: map[string]string{
			FieldProductID:       p.ProductID,
			FieldSupplier:        p.Supplier,
			FieldItemDescription: p.ItemDescription,
			FieldBrand:           brand,
			FieldSupplierSearch:  strings.TrimSpace(p.Supplier + " " + p.SupplierGroupID),
		},
		Stored: map[string]string{
			FieldProductID:          p.ProductID,
			FieldSupplier:           p.Supplier,
			FieldItemDescription:    p.ItemDescription,
			FieldBrand:              brand,
			FieldSupplierGroupID:    p.SupplierGroupID,
			FieldSmktsMerchCategory: p.SmktsMerchCategory,
			FieldLiqMerchCategory:   p.LiqMerchCategory,
			FieldDigitalBrandName:   p.DigitalBrandName,
			FieldSubBrandName:       p.SubBrandName,
			FieldIsPrimarySupplier:  p.IsPrimarySupplier,
		},
	}
}
