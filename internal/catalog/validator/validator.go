// Package validator checks product records submitted over HTTP before they
// reach the record store. Failures are reported per field.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

const (
	maxIDLength          = 64
	maxTextLength        = 1024
	maxProductsPerUpsert = 1000
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// productInput mirrors the checked subset of catalog.Product. Ids are
// trimmed before checking so whitespace-only values count as missing.
type productInput struct {
	ProductID        string `json:"productId" validate:"required,max=64"`
	Supplier         string `json:"supplier" validate:"required,max=64"`
	ItemDescription  string `json:"itemDescription" validate:"max=1024"`
	DigitalBrandName string `json:"digitalBrandName" validate:"max=1024"`
}

type batchInput struct {
	Products []productInput `json:"products" validate:"required,min=1,max=1000,dive"`
}

func toInput(p catalog.Product) productInput {
	return productInput{
		ProductID:        strings.TrimSpace(p.ProductID),
		Supplier:         strings.TrimSpace(p.Supplier),
		ItemDescription:  p.ItemDescription,
		DigitalBrandName: p.DigitalBrandName,
	}
}

// ValidationError holds per-field validation failure messages. Fields of
// the n-th product in a batch are prefixed with "[n].".
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateProduct checks a single record.
func ValidateProduct(p catalog.Product) error {
	return wrap(validate.Struct(toInput(p)))
}

// ValidateBatch checks every record in an upsert request, and that the
// request is neither empty nor oversized.
func ValidateBatch(products []catalog.Product) error {
	in := batchInput{Products: make([]productInput, len(products))}
	for i, p := range products {
		in.Products[i] = toInput(p)
	}
	return wrap(validate.Struct(in))
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fieldKey(fe)
		if _, seen := fields[key]; !seen {
			fields[key] = message(fe)
		}
	}
	return &ValidationError{Fields: fields}
}

// fieldKey turns "batchInput.products[3].supplier" into "[3].supplier" and
// "productInput.supplier" into "supplier".
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, ".products"); ok && strings.HasPrefix(rest, "[") {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	if fe.Field() == "products" {
		if fe.Tag() == "max" {
			return fmt.Sprintf("at most %d products per request", maxProductsPerUpsert)
		}
		return "at least one product is required"
	}
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed on '%s' validation", fe.Field(), fe.Tag())
	}
}
