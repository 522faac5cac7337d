package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTransaction is one source row after column mapping and before validation.
// Fields hold the trimmed cell text of the mapped columns.
type RawTransaction struct {
	Row      int
	Date     string
	Category string
	Customer string
	Quantity string
	Price    string
	OrderID  string
}

type RawDataset []RawTransaction

// TransactionRecord is a validated sale line. Build it with NewTransactionRecord
// so LineTotal always equals Quantity × UnitPrice.
type TransactionRecord struct {
	Row       int
	Timestamp time.Time
	Category  string
	Customer  string
	OrderID   string
	Quantity  int64
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

func NewTransactionRecord(row int, ts time.Time, category, customer, orderID string, qty int64, price decimal.Decimal) TransactionRecord {
	return TransactionRecord{
		Row:       row,
		Timestamp: ts,
		Category:  category,
		Customer:  customer,
		OrderID:   orderID,
		Quantity:  qty,
		UnitPrice: price,
		LineTotal: price.Mul(decimal.NewFromInt(qty)),
	}
}

// Dataset keeps source row order.
type Dataset []TransactionRecord

func (d Dataset) Revenue() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range d {
		total = total.Add(rec.LineTotal)
	}
	return total
}

func (d Dataset) Quantity() int64 {
	var total int64
	for _, rec := range d {
		total += rec.Quantity
	}
	return total
}

// Orders counts distinct order ids. Rows without an order id count as one
// order each, so a dataset with no order column yields len(d).
func (d Dataset) Orders() int64 {
	seen := make(map[string]struct{})
	var count int64
	for _, rec := range d {
		if rec.OrderID == "" {
			count++
			continue
		}
		if _, ok := seen[rec.OrderID]; !ok {
			seen[rec.OrderID] = struct{}{}
			count++
		}
	}
	return count
}
