package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Report is the per-category expense total for one month.
type Report struct {
	// Month is YYYY-MM.
	Month string
	Total decimal.Decimal
	// Categories keeps first-seen order.
	Categories []CategoryTotal
}

// CategoryTotal is one line of a Report.
type CategoryTotal struct {
	Category string
	Amount   decimal.Decimal
}

// MonthlyReport sums the records whose date falls in now's month.
func MonthlyReport(records []Record, now time.Time) Report {
	r := Report{Month: now.Format("2006-01")}
	index := make(map[string]int)
	for _, rec := range records {
		if !strings.Contains(rec.Date, r.Month) {
			continue
		}
		cat := strings.TrimSpace(rec.Category)
		if cat == "" {
			cat = reportFallbackCategory
		}
		r.Total = r.Total.Add(rec.Amount)
		i, ok := index[cat]
		if !ok {
			i = len(r.Categories)
			index[cat] = i
			r.Categories = append(r.Categories, CategoryTotal{Category: cat})
		}
		r.Categories[i].Amount = r.Categories[i].Amount.Add(rec.Amount)
	}
	return r
}

// String renders the report reply.
func (r Report) String() string {
	if len(r.Categories) == 0 {
		return fmt.Sprintf("📊 本月 (%s) 尚無支出紀錄", r.Month)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **本月 (%s) 支出報表**\n💰 總支出：$%s\n\n", r.Month, Thousands(r.Total))
	for _, c := range r.Categories {
		fmt.Fprintf(&b, "- %s: $%s\n", c.Category, Thousands(c.Amount))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Thousands rounds d to a whole number and groups digits by three.
func Thousands(d decimal.Decimal) string {
	s := d.Round(0).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
