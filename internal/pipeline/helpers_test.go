package pipeline

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"retail-dashboard/internal/models"
)

const scenarioCSV = `order_date,category,customer_id,quantity,unit_price
2024-01-05,A,X,2,10.00
2024-01-06,A,Y,1,5.00
2024-01-07,B,X,-1,3.00
`

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got),
		append([]any{fmt.Sprintf("want %s, got %s", want, got.String())}, msgAndArgs...)...)
}

func record(row int, date, category, customer string, qty int64, price string) models.TransactionRecord {
	ts, err := time.Parse(DefaultDateFormat, date)
	if err != nil {
		panic(err)
	}
	return models.NewTransactionRecord(row, ts, category, customer, "", qty, decimal.RequireFromString(price))
}

// randomDataset builds n records with prices in cents so sums are exact.
func randomDataset(seed uint64, n int) models.Dataset {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := make(models.Dataset, n)
	for i := range ds {
		ts := start.AddDate(0, 0, r.IntN(365))
		price := decimal.New(int64(r.IntN(100000)), -2)
		ds[i] = models.NewTransactionRecord(i, ts,
			fmt.Sprintf("cat-%d", r.IntN(7)),
			fmt.Sprintf("cust-%02d", r.IntN(40)),
			fmt.Sprintf("ord-%d", r.IntN(n/2+1)),
			int64(r.IntN(9)+1),
			price,
		)
	}
	return ds
}

func shuffled(ds models.Dataset, seed uint64) models.Dataset {
	out := make(models.Dataset, len(ds))
	copy(out, ds)
	r := rand.New(rand.NewPCG(seed, 7))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
