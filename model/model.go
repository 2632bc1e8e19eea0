// Package model defines the records served by the API, their partial
// updates, and the store schema they live in.
package model

import (
	"strings"

	"github.com/andreyvit/recstore"
)

var (
	Schema    = recstore.NewSchema(recstore.SchemaOpts{})
	Customers = recstore.DefineCollection[Customer](Schema, "customers", "customer_seq", recstore.SuppressContentWhenLogging)
	Items     = recstore.DefineCollection[Item](Schema, "items", "item_seq")
)

// MissingFieldError reports a required field that is absent or blank.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "Missing required field: " + e.Field
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func apply[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
