// Package metrics derives month-over-month change from consumption records.
package metrics

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"snowtrack/internal/core"
	ierr "snowtrack/internal/errors"
)

const (
	Absolute   Mode = "absolute"
	Percentage Mode = "percentage"
)

var hundred = decimal.NewFromInt(100)

type (
	// Mode selects how the change between consecutive records is expressed.
	Mode string

	// Row is a record together with its change against the previous record of
	// the same customer in (customer, month) order.
	Row struct {
		core.Record
		Change decimal.Decimal `json:"mom_change"`
	}

	// Point is one chart sample.
	Point struct {
		Month       core.Month      `json:"month"`
		Consumption decimal.Decimal `json:"consumption"`
		Change      decimal.Decimal `json:"mom_change"`
	}

	// Series is the chart data of a single customer.
	Series struct {
		Customer string  `json:"customer"`
		Points   []Point `json:"points"`
	}
)

// ParseMode accepts "absolute", "percentage" and the short forms "abs", "pct", "%".
// An empty string selects Absolute.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "absolute", "abs":
		return Absolute, nil
	case "percentage", "percent", "pct", "%":
		return Percentage, nil
	}
	return "", ierr.NewErrorf("unknown mode %q", s).
		WithHint("Mode must be absolute or percentage").
		Mark(ierr.ErrValidation)
}

// Compute sorts a copy of records by customer then month and attaches the
// change of each record against the one before it within its customer.
//
// The sort is stable, so records sharing customer and month keep their input
// order and are compared positionally. The first record of every customer has a
// change of zero, and in Percentage mode a zero predecessor also yields zero.
// The input slice is left untouched.
func Compute(records []core.Record, mode Mode) []Row {
	sorted := append([]core.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Customer != sorted[j].Customer {
			return sorted[i].Customer < sorted[j].Customer
		}
		return sorted[i].Month.Before(sorted[j].Month)
	})

	rows := make([]Row, len(sorted))
	for i, r := range sorted {
		rows[i] = Row{Record: r, Change: decimal.Zero}
		if i == 0 || sorted[i-1].Customer != r.Customer {
			continue
		}
		rows[i].Change = change(sorted[i-1].Consumption, r.Consumption, mode)
	}
	return rows
}

func change(prev, cur decimal.Decimal, mode Mode) decimal.Decimal {
	diff := cur.Sub(prev)
	if mode != Percentage {
		return diff
	}
	if prev.IsZero() {
		return decimal.Zero
	}
	return diff.Div(prev).Mul(hundred)
}

// FormatChange renders a change for display: two decimals, with a trailing
// percent sign in Percentage mode.
func FormatChange(change decimal.Decimal, mode Mode) string {
	s := change.StringFixed(2)
	if mode == Percentage {
		return s + "%"
	}
	return s
}

// ChartSeries groups computed rows per customer, keeping the sorted order of
// both customers and points.
func ChartSeries(rows []Row) []Series {
	grouped := lo.GroupBy(rows, func(r Row) string { return r.Customer })
	customers := lo.Uniq(lo.Map(rows, func(r Row, _ int) string { return r.Customer }))

	out := make([]Series, 0, len(customers))
	for _, c := range customers {
		out = append(out, Series{
			Customer: c,
			Points: lo.Map(grouped[c], func(r Row, _ int) Point {
				return Point{Month: r.Month, Consumption: r.Consumption, Change: r.Change}
			}),
		})
	}
	return out
}
