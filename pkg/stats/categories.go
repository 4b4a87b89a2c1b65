package stats

import (
	"sort"

	"github.com/routinebot/RoutineAgent/pkg/timeline"
	"github.com/shopspring/decimal"
)

// UnrecordedCategory is the pseudo-category for time nobody logged.
const UnrecordedCategory = "未记录"

// CategoryTotal is one row of the category breakdown.
type CategoryTotal struct {
	Category   string
	Minutes    float64
	Percent    decimal.Decimal
	Unrecorded bool
}

var hundred = decimal.NewFromInt(100)

// CategoryTotals sums recorded minutes per category, sorted by duration, and
// appends the unrecorded bucket last. Percentages are rounded to one decimal
// and always sum to exactly 100.
func CategoryTotals(intervals []timeline.Interval, windowMinutes float64) []CategoryTotal {
	if windowMinutes <= 0 {
		return nil
	}
	minutes := make(map[string]float64)
	var recorded float64
	for _, iv := range intervals {
		if iv.Unrecorded {
			continue
		}
		minutes[categoryOf(iv.Source.Category)] += iv.DurationMinutes
		recorded += iv.DurationMinutes
	}

	totals := make([]CategoryTotal, 0, len(minutes)+1)
	for category, value := range minutes {
		totals = append(totals, CategoryTotal{Category: category, Minutes: value})
	}
	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].Minutes != totals[j].Minutes {
			return totals[i].Minutes > totals[j].Minutes
		}
		return totals[i].Category < totals[j].Category
	})

	window := decimal.NewFromFloat(windowMinutes)
	sum := decimal.Zero
	for i := range totals {
		totals[i].Percent = decimal.NewFromFloat(totals[i].Minutes).Div(window).Mul(hundred).Round(1)
		sum = sum.Add(totals[i].Percent)
	}

	unrecorded := windowMinutes - recorded
	if unrecorded < 0 {
		unrecorded = 0
	}
	rest := hundred.Sub(sum)
	if rest.IsNegative() {
		// rounding overshoot: take it from the largest category
		if len(totals) > 0 {
			totals[0].Percent = totals[0].Percent.Add(rest)
		}
		rest = decimal.Zero
	}
	totals = append(totals, CategoryTotal{
		Category:   UnrecordedCategory,
		Minutes:    unrecorded,
		Percent:    rest,
		Unrecorded: true,
	})
	return totals
}

// MinutesByCategory returns the recorded minutes of each real category.
func MinutesByCategory(totals []CategoryTotal) map[string]float64 {
	out := make(map[string]float64, len(totals))
	for _, total := range totals {
		if total.Unrecorded {
			continue
		}
		out[total.Category] = total.Minutes
	}
	return out
}
