// Package ledger records expenses in a spreadsheet and summarizes them.
package ledger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCategory is used when a spend message names no category.
const DefaultCategory = "雜支"

// reportFallbackCategory labels rows whose category cell is empty.
const reportFallbackCategory = "其他"

// User-facing replies for spend parsing.
const (
	SpendFailedHint = "❌ 記帳失敗 (例: 記帳 100 午餐)"
	SpendUsage      = "格式: /spend 100 午餐"
)

// Header is the first row of the worksheet.
var Header = []string{"日期", "項目", "金額", "備註"}

var (
	// ErrNoAmount means a free-text spend carried no number.
	ErrNoAmount = errors.New("ledger: no amount in spend text")
	// ErrUsage means a /spend command was malformed.
	ErrUsage = errors.New("ledger: usage: /spend <amount> <category> [note...]")
)

// SpendEntry is one ledger row.
type SpendEntry struct {
	// Date is the civil date the expense is booked on.
	Date     time.Time
	Category string
	Amount   decimal.Decimal
	Note     string
}

// DateString renders Date as YYYY-MM-DD.
func (e SpendEntry) DateString() string {
	return e.Date.Format("2006-01-02")
}

// Confirmation is the reply after the entry has been written.
func (e SpendEntry) Confirmation() string {
	return "💸 已記帳: " + e.Category + " $" + e.Amount.String()
}

// Record is a row read back from the ledger.
type Record struct {
	Date     string
	Category string
	Amount   decimal.Decimal
}

// Ledger is the expense store. Implementations must be safe for concurrent
// use.
type Ledger interface {
	Append(ctx context.Context, e SpendEntry) error
	Records(ctx context.Context) ([]Record, error)
}

var (
	amountRe    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	spendWordRe = regexp.MustCompile(`(?i)記帳|spend`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// ParseSpendArgs derives an entry from classifier args. The amount is the
// first number in args; the category is what remains after removing every
// number and the words 記帳/spend. The note is always the original message.
func ParseSpendArgs(args, original string, date time.Time) (SpendEntry, error) {
	m := amountRe.FindString(args)
	if m == "" {
		return SpendEntry{}, ErrNoAmount
	}
	amount, err := decimal.NewFromString(m)
	if err != nil || amount.IsNegative() {
		return SpendEntry{}, ErrNoAmount
	}

	category := amountRe.ReplaceAllString(args, "")
	category = spendWordRe.ReplaceAllString(category, "")
	category = strings.TrimSpace(spaceRe.ReplaceAllString(category, " "))
	if category == "" {
		category = DefaultCategory
	}
	return SpendEntry{Date: date, Category: category, Amount: amount, Note: original}, nil
}

// ParseSpendCommand parses the tokens after /spend: a non-negative amount,
// a category and an optional note.
func ParseSpendCommand(args []string, date time.Time) (SpendEntry, error) {
	if len(args) < 2 {
		return SpendEntry{}, ErrUsage
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil || amount.IsNegative() {
		return SpendEntry{}, ErrUsage
	}
	return SpendEntry{
		Date:     date,
		Category: args[1],
		Amount:   amount,
		Note:     strings.Join(args[2:], " "),
	}, nil
}
