// Package csvimport turns a sales-channel export into grouped, reviewable rows
// and resolves them to container templates. It does no I/O against the store.
package csvimport

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Recognized header columns, matched case-insensitively.
const (
	ColumnName        = "product name"
	ColumnDescription = "product description"
	ColumnQuantity    = "product quantity"
	ColumnSKU         = "sku"
)

// Row is one import line, or after Group, one merged product+description line.
// Raw keeps every column of the source verbatim, including unrecognized ones.
type Row struct {
	Raw                 map[string]string `json:"raw"`
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	SKU                 string            `json:"sku,omitempty"`
	Quantity            int               `json:"quantity"`
	GroupKey            string            `json:"group_key,omitempty"`
	SourceRows          int               `json:"source_rows,omitempty"`
	AssignedProductID   *uuid.UUID        `json:"assigned_product_id,omitempty"`
	AssignedContainerID *uuid.UUID        `json:"assigned_container_id,omitempty"`

	cols columns
}

var trailingOrdinal = regexp.MustCompile(`\s*#\d+\s*$`)

// NormalizeName strips a trailing "#<digits>" suffix and collapses whitespace:
// "Blue  Raz #2" → "Blue Raz".
func NormalizeName(name string) string {
	name = trailingOrdinal.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

// ParseQuantity parses an integer quantity. Anything that is not an integer
// yields 0 and false.
func ParseQuantity(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// SKUSuffix returns the text after the last "-" ("GUM-BR-4OZ" → "4OZ"); a SKU
// without a dash is returned whole.
func SKUSuffix(sku string) string {
	sku = strings.TrimSpace(sku)
	if i := strings.LastIndex(sku, "-"); i >= 0 {
		return sku[i+1:]
	}
	return sku
}

// GroupKey is the case-insensitive (name, description) merge key.
func GroupKey(name, description string) string {
	return strings.ToLower(NormalizeName(name)) + "|" + strings.ToLower(strings.TrimSpace(description))
}

// columns holds the raw header keys chosen for the recognized columns. An
// empty key means the column is absent.
type columns struct {
	name, description, quantity, sku string
}

// resolveColumns picks, for each recognized column, the first header cell that
// matches it ignoring case and surrounding spaces.
func resolveColumns(header []string) columns {
	var c columns
	for _, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case ColumnName:
			if c.name == "" {
				c.name = h
			}
		case ColumnDescription:
			if c.description == "" {
				c.description = h
			}
		case ColumnQuantity:
			if c.quantity == "" {
				c.quantity = h
			}
		case ColumnSKU:
			if c.sku == "" {
				c.sku = h
			}
		}
	}
	return c
}

// columnsOf resolves columns for a row whose header order is no longer known,
// such as one decoded from a request body. Keys are taken in sorted order.
func columnsOf(raw map[string]string) columns {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return resolveColumns(keys)
}

// value reads column key from raw; an absent column reads as empty even when
// the header has a blank cell.
func value(raw map[string]string, key string) string {
	if key == "" {
		return ""
	}
	return raw[key]
}

func newRow(raw map[string]string, cols columns) Row {
	n, _ := ParseQuantity(value(raw, cols.quantity))
	return Row{
		Raw:         raw,
		Name:        NormalizeName(value(raw, cols.name)),
		Description: strings.TrimSpace(value(raw, cols.description)),
		SKU:         strings.TrimSpace(value(raw, cols.sku)),
		Quantity:    n,
		SourceRows:  1,
		cols:        cols,
	}
}
