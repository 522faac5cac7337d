package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-dashboard/internal/models"
)

func raw(row int, date, category, customer, qty, price string) models.RawTransaction {
	return models.RawTransaction{Row: row, Date: date, Category: category, Customer: customer, Quantity: qty, Price: price}
}

func TestValidate_Reasons(t *testing.T) {
	tests := []struct {
		name string
		row  models.RawTransaction
		want models.ReasonCode
	}{
		{"valid", raw(0, "2024-01-01", "A", "X", "2", "10.00"), ""},
		{"integral decimal quantity", raw(0, "2024-01-01", "A", "X", "3.0", "1"), ""},
		{"dollar price", raw(0, "2024-01-01", "A", "X", "1", "$ 4.25"), ""},
		{"zero price", raw(0, "2024-01-01", "A", "X", "1", "0"), ""},
		{"text quantity", raw(0, "2024-01-01", "A", "X", "two", "1"), models.ReasonInvalidQuantity},
		{"fractional quantity", raw(0, "2024-01-01", "A", "X", "1.5", "1"), models.ReasonInvalidQuantity},
		{"empty quantity", raw(0, "2024-01-01", "A", "X", "", "1"), models.ReasonInvalidQuantity},
		{"largest quantity", raw(0, "2024-01-01", "A", "X", "1000000000", "1"), ""},
		{"quantity above bound", raw(0, "2024-01-01", "A", "X", "1000000001", "1"), models.ReasonInvalidQuantity},
		{"int64 max quantity", raw(0, "2024-01-01", "A", "X", "9223372036854775807", "1"), models.ReasonInvalidQuantity},
		{"zero quantity", raw(0, "2024-01-01", "A", "X", "0", "1"), models.ReasonNonPositiveQuantity},
		{"negative quantity", raw(0, "2024-01-01", "A", "X", "-1", "1"), models.ReasonNonPositiveQuantity},
		{"missing price", raw(0, "2024-01-01", "A", "X", "1", ""), models.ReasonInvalidPrice},
		{"text price", raw(0, "2024-01-01", "A", "X", "1", "free"), models.ReasonInvalidPrice},
		{"negative price", raw(0, "2024-01-01", "A", "X", "1", "-0.01"), models.ReasonNegativePrice},
		{"negative dollar price", raw(0, "2024-01-01", "A", "X", "1", "-$3"), models.ReasonNegativePrice},
		{"bad date", raw(0, "01/02/2024", "A", "X", "1", "1"), models.ReasonInvalidDate},
		{"blank category", raw(0, "2024-01-01", "  ", "X", "1", "1"), models.ReasonMissingCategory},
		{"blank customer", raw(0, "2024-01-01", "A", "", "1", "1"), models.ReasonMissingCustomer},
		{"quantity checked first", raw(0, "bad", "", "", "-4", "bad"), models.ReasonNonPositiveQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := validateRow(tt.row, DefaultDateFormat)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_Record(t *testing.T) {
	ds, report := Validate(models.RawDataset{
		{Row: 4, Date: "2024-03-09", Category: " Toys ", Customer: " C-9 ", Quantity: "3", Price: "$2.35", OrderID: "O1"},
	}, ValidateOptions{})

	require.Len(t, ds, 1)
	assert.Zero(t, report.Count)

	rec := ds[0]
	assert.Equal(t, 4, rec.Row)
	assert.Equal(t, "Toys", rec.Category)
	assert.Equal(t, "C-9", rec.Customer)
	assert.Equal(t, "O1", rec.OrderID)
	assert.Equal(t, int64(3), rec.Quantity)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), rec.Timestamp)
	assertDecimal(t, "7.05", rec.LineTotal)
}

func TestValidate_CustomDateFormat(t *testing.T) {
	ds, report := Validate(models.RawDataset{
		raw(0, "09/03/2024", "A", "X", "1", "1"),
		raw(1, "2024-03-09", "A", "X", "1", "1"),
	}, ValidateOptions{DateFormat: "02/01/2006"})

	require.Len(t, ds, 1)
	assert.Equal(t, time.March, ds[0].Timestamp.Month())
	assert.Equal(t, []models.Rejection{{RowIndex: 1, Reason: models.ReasonInvalidDate}}, report.Reasons)
}

func TestValidate_Completeness(t *testing.T) {
	rows := models.RawDataset{
		raw(0, "2024-01-01", "A", "X", "1", "1"),
		raw(1, "2024-01-01", "A", "X", "0", "1"),
		raw(2, "2024-01-01", "A", "X", "1", "-1"),
		raw(3, "nope", "A", "X", "1", "1"),
		raw(4, "2024-01-02", "B", "Y", "5", "0.10"),
	}

	ds, report := Validate(rows, ValidateOptions{})
	assert.Equal(t, len(rows), len(ds)+report.Count)
	assert.Len(t, ds, 2)
	assert.Equal(t, 3, report.Count)
	assert.False(t, report.Truncated)
	assert.Equal(t, map[models.ReasonCode]int{
		models.ReasonNonPositiveQuantity: 1,
		models.ReasonNegativePrice:       1,
		models.ReasonInvalidDate:         1,
	}, report.ByReason)
	assert.Equal(t, []int{1, 2, 3}, []int{report.Reasons[0].RowIndex, report.Reasons[1].RowIndex, report.Reasons[2].RowIndex})
}

func TestValidate_RejectionCap(t *testing.T) {
	rows := make(models.RawDataset, 10)
	for i := range rows {
		rows[i] = raw(i, "2024-01-01", "A", "X", "0", "1")
	}

	ds, report := Validate(rows, ValidateOptions{MaxRejections: 3})
	assert.Empty(t, ds)
	assert.Equal(t, 10, report.Count)
	assert.Len(t, report.Reasons, 3)
	assert.True(t, report.Truncated)
	assert.Equal(t, 10, report.ByReason[models.ReasonNonPositiveQuantity])
	assert.Equal(t, 2, report.Reasons[2].RowIndex)
}
