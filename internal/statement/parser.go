// Package statement turns raw bank-statement content into structured
// transaction records. Parsing is pure and deterministic: unparseable rows
// and lines are skipped, never reported as errors, because statements
// legitimately contain headers, footers, and other non-transaction text.
package statement

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"finbook/internal/models"
)

// RawTransaction is one extracted statement line. Amount is always
// non-negative; Direction carries the sign. Date is canonical YYYY-MM-DD.
// A RawTransaction has no identity until it is posted.
type RawTransaction struct {
	Date        string
	Particulars string
	Amount      decimal.Decimal
	Direction   models.TransactionDirection
}

var (
	// Dates: YYYY-MM-DD first so a four-digit year is never misread as a
	// day-month pair, then DD-MM-YYYY and two-digit-year variants. Both
	// "-" and "/" separators are accepted.
	dateRe = regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}|\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`)

	// Amounts: optional sign, optional currency marker, digits with
	// optional thousands separators, and a two-digit fraction. Either
	// "," or "." is accepted as the decimal marker; this looseness is
	// deliberate and matches real statement text, not a guarantee.
	amountRe = regexp.MustCompile(`-?\s*(?:Rs\.?|INR|₹|\$)?\s*\d[\d,.]*[.,]\d{2}`)

	currencyRe = regexp.MustCompile(`Rs\.?|INR|₹|\$`)

	dateSplitRe = regexp.MustCompile(`[-/]`)
)

// ParseTabular parses spreadsheet-shaped rows. Each usable row needs at
// least three non-empty cells: date, particulars, signed amount. The sign
// of the amount determines direction; the stored amount is its absolute
// value. Rows failing any of these checks are dropped.
func ParseTabular(rows [][]string) []RawTransaction {
	var out []RawTransaction

	for _, row := range rows {
		if len(row) < 3 {
			continue
		}

		dateStr := strings.TrimSpace(row[0])
		particulars := strings.TrimSpace(row[1])
		amountStr := strings.TrimSpace(row[2])
		if dateStr == "" || particulars == "" || amountStr == "" {
			continue
		}

		date, ok := NormalizeDate(dateStr)
		if !ok {
			continue
		}

		amount, ok := parseAmount(amountStr)
		if !ok {
			continue
		}

		direction := models.DirectionCredit
		if amount.IsNegative() {
			direction = models.DirectionDebit
		}

		out = append(out, RawTransaction{
			Date:        date,
			Particulars: particulars,
			Amount:      amount.Abs(),
			Direction:   direction,
		})
	}

	return out
}

// ParseText parses free-form statement text line by line. A line qualifies
// as a transaction only if it contains both a date token and a currency
// amount token; whatever remains after removing those tokens becomes the
// particulars, defaulting to "Transaction" when nothing is left.
func ParseText(text string) []RawTransaction {
	var out []RawTransaction

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		dateToken := dateRe.FindString(line)
		if dateToken == "" {
			continue
		}
		date, ok := NormalizeDate(dateToken)
		if !ok {
			continue
		}

		amountToken := amountRe.FindString(line)
		if amountToken == "" {
			continue
		}
		amount, ok := parseAmount(amountToken)
		if !ok || amount.IsZero() {
			continue
		}

		particulars := strings.TrimSpace(amountRe.ReplaceAllString(dateRe.ReplaceAllString(line, ""), ""))
		if particulars == "" {
			particulars = "Transaction"
		}

		direction := models.DirectionCredit
		if amount.IsNegative() {
			direction = models.DirectionDebit
		}

		out = append(out, RawTransaction{
			Date:        date,
			Particulars: particulars,
			Amount:      amount.Abs(),
			Direction:   direction,
		})
	}

	return out
}

// ParsePages parses page text extracted from a PDF or similar paginated
// container, preserving page order.
func ParsePages(pages []string) []RawTransaction {
	var out []RawTransaction
	for _, page := range pages {
		out = append(out, ParseText(page)...)
	}
	return out
}

// NormalizeDate converts a date token to canonical YYYY-MM-DD form. It
// accepts DD-MM-YYYY, YYYY-MM-DD, and loose day/month with two-digit years
// ("-" or "/" separated). Two-digit years below 50 map to 20xx, the rest to
// 19xx. Month must be in [1,12] and day in [1,31]; no further calendar
// validation is applied.
func NormalizeDate(s string) (string, bool) {
	parts := dateSplitRe.Split(strings.TrimSpace(s), -1)
	if len(parts) != 3 {
		return "", false
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, ok := atoiStrict(p)
		if !ok {
			return "", false
		}
		nums[i] = n
	}

	var year, month, day int
	if len(parts[0]) == 4 {
		year, month, day = nums[0], nums[1], nums[2]
	} else {
		day, month, year = nums[0], nums[1], nums[2]
	}

	if year < 100 {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}

	return zeroPad(year, 4) + "-" + zeroPad(month, 2) + "-" + zeroPad(day, 2), true
}

// parseAmount converts an amount token to a decimal. Currency markers and
// thousands separators are stripped. When both "," and "." appear, the one
// occurring last is taken as the decimal marker; a lone "," is a decimal
// marker only when followed by exactly two trailing digits.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = currencyRe.ReplaceAllString(s, "")

	// Keep digits and separators only.
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	num := b.String()
	if num == "" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			num = strings.ReplaceAll(num, ",", "")
		} else {
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		}
	case lastComma >= 0:
		if len(num)-lastComma-1 == 2 && strings.Count(num, ",") == 1 {
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	}

	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

func atoiStrict(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func zeroPad(n, width int) string {
	s := ""
	for n > 0 {
		s = string(rune('0'+n%10)) + s
		n /= 10
	}
	for len(s) < width {
		s = "0" + s
	}
	return s
}
