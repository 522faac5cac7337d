package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"retail-dashboard/internal/models"
)

const ctxCheckInterval = 1024

var errNoHeader = errors.New("source has no header row")

// Table is a raw tabular source: a header row and data rows of cell text.
type Table struct {
	Header []string
	Rows   [][]string
}

// ColumnMapping names the source columns holding each transaction field.
// OrderColumn is optional; the rest are required.
type ColumnMapping struct {
	DateColumn     string `json:"date_column"`
	CategoryColumn string `json:"category_column"`
	CustomerColumn string `json:"customer_column"`
	QuantityColumn string `json:"quantity_column"`
	PriceColumn    string `json:"price_column"`
	OrderColumn    string `json:"order_column,omitempty"`
}

func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		DateColumn:     "order_date",
		CategoryColumn: "category",
		CustomerColumn: "customer_id",
		QuantityColumn: "quantity",
		PriceColumn:    "unit_price",
		OrderColumn:    "order_id",
	}
}

type columnIndex struct {
	date, category, customer, quantity, price, order int
}

// resolve maps every configured column to its header position. order is -1
// when the optional order column is unset or absent.
func (m ColumnMapping) resolve(header []string) (columnIndex, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h, i == 0)
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	var missing []string
	lookup := func(column string) int {
		if i, ok := positions[normalizeHeader(column, false)]; ok && column != "" {
			return i
		}
		missing = append(missing, column)
		return -1
	}

	idx := columnIndex{
		date:     lookup(m.DateColumn),
		category: lookup(m.CategoryColumn),
		customer: lookup(m.CustomerColumn),
		quantity: lookup(m.QuantityColumn),
		price:    lookup(m.PriceColumn),
		order:    -1,
	}
	if len(missing) > 0 {
		for i, name := range missing {
			if name == "" {
				missing[i] = "<unset>"
			}
		}
		return idx, &LoadError{Missing: missing}
	}
	if m.OrderColumn != "" {
		if i, ok := positions[normalizeHeader(m.OrderColumn, false)]; ok {
			idx.order = i
		}
	}
	return idx, nil
}

func normalizeHeader(h string, first bool) string {
	if first {
		h = strings.TrimPrefix(h, "\ufeff")
	}
	h = strings.ReplaceAll(h, `"`, "")
	return strings.ToLower(strings.TrimSpace(h))
}

// ReadCSV reads the whole source before returning. A source without a header
// row, or one the csv reader cannot parse, is a LoadError.
func ReadCSV(ctx context.Context, r io.Reader, delimiter rune) (Table, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	if delimiter != 0 {
		reader.Comma = delimiter
	}

	header, err := reader.Read()
	if err == io.EOF {
		return Table{}, &LoadError{Cause: errNoHeader}
	}
	if err != nil {
		return Table{}, &LoadError{Cause: fmt.Errorf("read header: %w", err)}
	}

	table := Table{Header: header}
	for {
		if len(table.Rows)%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Table{}, err
			}
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, &LoadError{Cause: fmt.Errorf("read row %d: %w", len(table.Rows), err)}
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// Load converts table rows into typed raw transactions using mapping. Short
// rows produce empty fields and are left for the validator to reject.
func Load(table Table, mapping ColumnMapping) (models.RawDataset, error) {
	if len(table.Header) == 0 {
		return nil, &LoadError{Cause: errNoHeader}
	}
	idx, err := mapping.resolve(table.Header)
	if err != nil {
		return nil, err
	}

	ds := make(models.RawDataset, 0, len(table.Rows))
	for i, row := range table.Rows {
		ds = append(ds, models.RawTransaction{
			Row:      i,
			Date:     cell(row, idx.date),
			Category: cell(row, idx.category),
			Customer: cell(row, idx.customer),
			Quantity: cell(row, idx.quantity),
			Price:    cell(row, idx.price),
			OrderID:  cell(row, idx.order),
		})
	}
	return ds, nil
}

// LoadCSV is ReadCSV followed by Load.
func LoadCSV(ctx context.Context, r io.Reader, mapping ColumnMapping, delimiter rune) (models.RawDataset, error) {
	table, err := ReadCSV(ctx, r, delimiter)
	if err != nil {
		return nil, err
	}
	return Load(table, mapping)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
