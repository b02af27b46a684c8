package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name   string
		p      catalog.Product
		fields []string
	}{
		{name: "valid", p: catalog.Product{ProductID: "P1", Supplier: "S1"}},
		{name: "blank id", p: catalog.Product{ProductID: "  ", Supplier: "S1"}, fields: []string{"productId"}},
		{name: "missing supplier", p: catalog.Product{ProductID: "P1"}, fields: []string{"supplier"}},
		{name: "long description", p: catalog.Product{ProductID: "P1", Supplier: "S1", ItemDescription: strings.Repeat("x", maxTextLength+1)}, fields: []string{"itemDescription"}},
		{name: "everything wrong", p: catalog.Product{ProductID: strings.Repeat("9", maxIDLength+1)}, fields: []string{"productId", "supplier"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.p)
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Len(t, verr.Fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestValidateBatch(t *testing.T) {
	var verr *ValidationError

	require.ErrorAs(t, ValidateBatch(nil), &verr)
	assert.Contains(t, verr.Fields, "products")

	require.ErrorAs(t, ValidateBatch(make([]catalog.Product, maxProductsPerUpsert+1)), &verr)
	assert.Contains(t, verr.Fields["products"], "at most")

	err := ValidateBatch([]catalog.Product{{ProductID: "P1", Supplier: "S1"}, {ProductID: "P2"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"[1].supplier": "supplier is required"}, verr.Fields)
	assert.Equal(t, "[1].supplier:supplier is required", err.Error())

	err = ValidateBatch([]catalog.Product{{ProductID: "P1", Supplier: "S1", DigitalBrandName: strings.Repeat("b", maxTextLength+1)}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "digitalBrandName must be at most 1024 characters", verr.Fields["[0].digitalBrandName"])

	assert.NoError(t, ValidateBatch([]catalog.Product{{ProductID: "P1", Supplier: "S1"}}))
}
