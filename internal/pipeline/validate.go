package pipeline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retail-dashboard/internal/models"
)

const (
	DefaultDateFormat    = "2006-01-02"
	DefaultMaxRejections = 100

	// MaxQuantity bounds a single row's quantity so bucket and dataset sums
	// stay within int64 for any dataset that fits in memory.
	MaxQuantity int64 = 1_000_000_000
)

var maxQuantity = decimal.NewFromInt(math.MaxInt64)

type ValidateOptions struct {
	// DateFormat is a Go time layout; empty means DefaultDateFormat.
	DateFormat string
	// MaxRejections caps the individual reasons kept; <= 0 means DefaultMaxRejections.
	MaxRejections int
}

// Validate partitions raw rows into accepted records and a rejection report.
// Bad rows never produce an error; len(accepted)+report.Count == len(raw).
func Validate(raw models.RawDataset, opts ValidateOptions) (models.Dataset, models.RejectionReport) {
	layout := opts.DateFormat
	if layout == "" {
		layout = DefaultDateFormat
	}
	limit := opts.MaxRejections
	if limit <= 0 {
		limit = DefaultMaxRejections
	}

	accepted := make(models.Dataset, 0, len(raw))
	report := models.RejectionReport{
		Reasons:  []models.Rejection{},
		ByReason: make(map[models.ReasonCode]int),
	}

	for _, row := range raw {
		rec, reason := validateRow(row, layout)
		if reason == "" {
			accepted = append(accepted, rec)
			continue
		}
		report.Count++
		report.ByReason[reason]++
		if len(report.Reasons) < limit {
			report.Reasons = append(report.Reasons, models.Rejection{RowIndex: row.Row, Reason: reason})
		} else {
			report.Truncated = true
		}
	}
	return accepted, report
}

func validateRow(row models.RawTransaction, layout string) (models.TransactionRecord, models.ReasonCode) {
	qty, ok := parseQuantity(row.Quantity)
	if !ok {
		return models.TransactionRecord{}, models.ReasonInvalidQuantity
	}
	if qty <= 0 {
		return models.TransactionRecord{}, models.ReasonNonPositiveQuantity
	}
	if qty > MaxQuantity {
		return models.TransactionRecord{}, models.ReasonInvalidQuantity
	}

	price, err := parsePrice(row.Price)
	if err != nil {
		return models.TransactionRecord{}, models.ReasonInvalidPrice
	}
	if price.IsNegative() {
		return models.TransactionRecord{}, models.ReasonNegativePrice
	}

	ts, err := time.ParseInLocation(layout, strings.TrimSpace(row.Date), time.UTC)
	if err != nil {
		return models.TransactionRecord{}, models.ReasonInvalidDate
	}

	category := strings.TrimSpace(row.Category)
	if category == "" {
		return models.TransactionRecord{}, models.ReasonMissingCategory
	}
	customer := strings.TrimSpace(row.Customer)
	if customer == "" {
		return models.TransactionRecord{}, models.ReasonMissingCustomer
	}

	return models.NewTransactionRecord(row.Row, ts, category, customer, strings.TrimSpace(row.OrderID), qty, price), ""
}

// parseQuantity accepts integers, including integral decimals such as "3.0".
func parseQuantity(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() || d.Abs().GreaterThan(maxQuantity) {
		return 0, false
	}
	return d.IntPart(), true
}

func parsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if neg {
		s = "-" + s
	}
	return decimal.NewFromString(s)
}
