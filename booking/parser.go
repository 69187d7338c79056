/*
parser.go - Booking text to structured record

PURPOSE:
  Turns a booking message into an Outcome. Pure: no I/O, no panics,
  malformed input is returned as WrongFormat or MissingField.

EXPECTED SHAPE:
  🟢SKY HOUSE
  Unit      :L3/30N
  Cek out: 05:00
  Untuk   : 6 jam
  Cash/Tf: tf kr 250
  Cs    : dreamy
  Komisi: 50

RULES:
  - One "label SEP value" per line; SEP is ':', '=' or a full-width colon.
    Lines without a separator may still start with a known label.
  - Labels match case-insensitively against synonym tables, whitespace ignored.
  - Thousands shorthand: bare numbers below 10,000 are thousands of rupiah.
    Grouped numbers (250.000) and numbers >= 10,000 are literal.
  - Missing fields are reported in FieldPriority order, one at a time.
  - DateOnly is the processing date, never a date typed in the message.

SEE ALSO:
  - outcome.go: Outcome variants and guidance text
  - names.go: CS normalization and promotional aliases
*/
package booking

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/generic"
)

// shorthandLimit is the bound below which bare numbers mean thousands.
var shorthandLimit = decimal.NewFromInt(10000)

var labelSynonyms = map[RequiredField][]string{
	RequiredUnit:       {"unit", "nounit", "kamar", "room"},
	RequiredCheckout:   {"cekout", "checkout", "co", "jamcekout", "jamcheckout"},
	RequiredDuration:   {"untuk", "durasi", "duration", "lama"},
	RequiredPayment:    {"cash/tf", "tf/cash", "cash/transfer", "cash", "tf", "transfer", "pembayaran", "bayar", "payment"},
	RequiredCS:         {"cs", "marketing", "mkt", "cs/marketing"},
	RequiredCommission: {"komisi", "fee", "commission"},
}

var (
	labelIndex  = map[string]RequiredField{}
	prefixOrder []string // spaced label prefixes, longest first
	prefixField = map[string]RequiredField{}
)

func init() {
	for f, syns := range labelSynonyms {
		for _, s := range syns {
			labelIndex[s] = f
		}
	}
	spaced := map[string]RequiredField{
		"unit": RequiredUnit, "no unit": RequiredUnit, "kamar": RequiredUnit,
		"cek out": RequiredCheckout, "check out": RequiredCheckout, "checkout": RequiredCheckout,
		"untuk": RequiredDuration, "durasi": RequiredDuration,
		"cash/tf": RequiredPayment, "cash": RequiredPayment, "tf": RequiredPayment, "transfer": RequiredPayment,
		"cs": RequiredCS, "marketing": RequiredCS,
		"komisi": RequiredCommission, "fee": RequiredCommission,
	}
	for p, f := range spaced {
		prefixOrder = append(prefixOrder, p)
		prefixField[p] = f
	}
	sort.Slice(prefixOrder, func(i, j int) bool {
		if len(prefixOrder[i]) != len(prefixOrder[j]) {
			return len(prefixOrder[i]) > len(prefixOrder[j])
		}
		return prefixOrder[i] < prefixOrder[j]
	})
}

var (
	numberPattern = regexp.MustCompile(`(?i)(\d{1,3}(?:[.,]\d{3})+|\d+(?:[.,]\d+)?)\s*(ribu|rb|k|juta|jt)?\b`)
	clockPattern  = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\b`)

	// A duration number may carry its unit glued on ("6jam", "30mnt").
	durationPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(hari|days?|jam|menit|mnt|min|j|h)?\b`)
	dayWord         = regexp.MustCompile(`(?i)\b(?:hari|days?)\b`)
	minuteWord      = regexp.MustCompile(`(?i)\b(?:menit|mnt|min)\b`)
)

// =============================================================================
// PARSER
// =============================================================================

type Parser struct {
	Names    Names
	Clock    generic.Clock
	Location *time.Location
}

func NewParser(names Names, clock generic.Clock, loc *time.Location) *Parser {
	return &Parser{Names: names, Clock: clock, Location: loc}
}

type fieldValue struct {
	label string // normalized label as written
	value string
}

// Parse converts a booking message into an Outcome. label is the apartment
// bound to the source chat.
func (p *Parser) Parse(text string, messageID generic.MessageID, label string) Outcome {
	lines := splitLines(text)
	if len(lines) < 2 {
		return WrongFormat{Reason: "pesan terlalu pendek"}
	}

	fields := make(map[RequiredField]fieldValue)
	for _, line := range lines {
		f, fv, ok := matchField(line)
		if !ok {
			continue
		}
		// First non-empty value wins; a later empty duplicate never erases it.
		if prev, seen := fields[f]; seen && prev.value != "" {
			continue
		}
		fields[f] = fv
	}
	if len(fields) == 0 {
		return WrongFormat{Reason: "tidak ada kolom yang dikenali"}
	}

	for _, f := range FieldPriority {
		fv, seen := fields[f]
		if !seen {
			return MissingField{Field: f}
		}
		// An empty commission means zero; every other field needs a value.
		if fv.value == "" && f != RequiredCommission {
			return MissingField{Field: f}
		}
	}

	checkout, err := parseCheckout(fields[RequiredCheckout].value)
	if err != nil {
		return WrongFormat{Reason: err.Error()}
	}
	duration, err := parseDuration(fields[RequiredDuration].value)
	if err != nil {
		return WrongFormat{Reason: err.Error()}
	}
	method, detail, amount, err := parsePayment(fields[RequiredPayment])
	if err != nil {
		return WrongFormat{Reason: err.Error()}
	}
	commission := decimal.Zero
	if v := fields[RequiredCommission].value; v != "" {
		c, ok := firstAmount(v)
		if !ok {
			return WrongFormat{Reason: fmt.Sprintf("komisi tidak valid: %q", v)}
		}
		commission = c
	}

	cs := p.Names.Normalize(fields[RequiredCS].value)
	b := ParsedBooking{
		Apartment:     label,
		Unit:          strings.TrimSpace(fields[RequiredUnit].value),
		CheckoutTime:  checkout,
		DurationHours: duration,
		PaymentMethod: method,
		PaymentDetail: detail,
		Amount:        amount,
		Commission:    commission,
		CSName:        cs,
		Promotional:   p.Names.IsPromotional(cs, detail),
		DateOnly:      generic.DateOnly(p.now(), p.location()),
	}
	return Valid{MessageID: messageID, Booking: b.WithNet()}
}

func (p *Parser) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock.Now()
}

func (p *Parser) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// =============================================================================
// LINE MATCHING
// =============================================================================

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func isSeparator(r rune) bool { return r == ':' || r == '=' || r == '：' }

// matchField recognizes "label SEP value" first, then "label value".
func matchField(line string) (RequiredField, fieldValue, bool) {
	if sep := strings.IndexFunc(line, isSeparator); sep >= 0 {
		_, size := utf8.DecodeRuneInString(line[sep:])
		key := normalizeLabel(line[:sep])
		if f, ok := labelIndex[key]; ok {
			return f, fieldValue{label: key, value: strings.TrimSpace(line[sep+size:])}, true
		}
	}

	lower := strings.ToLower(strings.TrimLeftFunc(line, isDecoration))
	for _, prefix := range prefixOrder {
		if strings.HasPrefix(lower, prefix+" ") {
			rest := strings.TrimLeftFunc(line, isDecoration)[len(prefix):]
			return prefixField[prefix], fieldValue{
				label: strings.ReplaceAll(prefix, " ", ""),
				value: strings.TrimSpace(rest),
			}, true
		}
	}
	return "", fieldValue{}, false
}

func normalizeLabel(s string) string {
	s = strings.TrimLeftFunc(s, isDecoration)
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isDecoration matches bullets, emoji and other non-alphanumeric lead-ins.
func isDecoration(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// =============================================================================
// VALUE PARSING
// =============================================================================

func parseCheckout(v string) (string, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return "", fmt.Errorf("jam cek out tidak valid: %q", v)
	}
	h, _ := strconv.Atoi(m[1])
	mins := 0
	if m[2] != "" {
		mins, _ = strconv.Atoi(m[2])
	}
	if h > 23 || mins > 59 {
		return "", fmt.Errorf("jam cek out tidak valid: %q", v)
	}
	return fmt.Sprintf("%02d:%02d", h, mins), nil
}

func parseDuration(v string) (decimal.Decimal, error) {
	lower := strings.ToLower(v)
	m := durationPattern.FindStringSubmatch(lower)
	if m == nil {
		return decimal.Zero, fmt.Errorf("durasi tidak valid: %q", v)
	}
	n, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "."))
	if err != nil || !n.IsPositive() {
		return decimal.Zero, fmt.Errorf("durasi tidak valid: %q", v)
	}

	unit := m[2]
	if unit == "" {
		switch {
		case dayWord.MatchString(lower):
			unit = "hari"
		case minuteWord.MatchString(lower):
			unit = "menit"
		}
	}
	switch unit {
	case "hari", "day", "days":
		n = n.Mul(decimal.NewFromInt(24))
	case "menit", "mnt", "min":
		n = n.Div(decimal.NewFromInt(60)).Round(2)
	}
	return n, nil
}

// parsePayment reads "cash 250", "tf kr 250", "tf amel". The label itself
// may carry the method ("Cash: 250").
func parsePayment(fv fieldValue) (generic.PaymentMethod, string, decimal.Decimal, error) {
	detail := strings.ToLower(strings.Join(strings.Fields(fv.value), " "))

	var method generic.PaymentMethod
	switch {
	case strings.HasPrefix(detail, "cash"):
		method = generic.PaymentCash
	case strings.HasPrefix(detail, "tf"), strings.HasPrefix(detail, "transfer"):
		method = generic.PaymentTransfer
	case fv.label == "cash":
		method = generic.PaymentCash
	case fv.label == "tf" || fv.label == "transfer":
		method = generic.PaymentTransfer
	default:
		return "", "", decimal.Zero, fmt.Errorf("metode bayar harus cash atau tf: %q", fv.value)
	}

	amount, ok := lastAmount(detail)
	if !ok {
		amount = decimal.Zero
	}
	return method, detail, amount, nil
}

func firstAmount(s string) (decimal.Decimal, bool) {
	matches := numberPattern.FindAllStringSubmatch(strings.ToLower(s), -1)
	if len(matches) == 0 {
		return decimal.Zero, false
	}
	return toRupiah(matches[0])
}

func lastAmount(s string) (decimal.Decimal, bool) {
	matches := numberPattern.FindAllStringSubmatch(strings.ToLower(s), -1)
	if len(matches) == 0 {
		return decimal.Zero, false
	}
	return toRupiah(matches[len(matches)-1])
}

// toRupiah applies suffixes and the thousands shorthand to one number match.
func toRupiah(m []string) (decimal.Decimal, bool) {
	digits, suffix := m[1], m[2]
	grouped := len(digits) > 4 && strings.ContainsAny(digits, ".,") && isGrouped(digits)

	var n decimal.Decimal
	var err error
	if grouped {
		n, err = decimal.NewFromString(strings.NewReplacer(".", "", ",", "").Replace(digits))
	} else {
		n, err = decimal.NewFromString(strings.ReplaceAll(digits, ",", "."))
	}
	if err != nil {
		return decimal.Zero, false
	}

	switch suffix {
	case "k", "rb", "ribu":
		return n.Mul(decimal.NewFromInt(1000)), true
	case "jt", "juta":
		return n.Mul(decimal.NewFromInt(1000000)), true
	}
	if grouped || !n.LessThan(shorthandLimit) {
		return n, true
	}
	return n.Mul(decimal.NewFromInt(1000)), true
}

// isGrouped reports whether every separator is followed by exactly three digits.
func isGrouped(digits string) bool {
	parts := strings.FieldsFunc(digits, func(r rune) bool { return r == '.' || r == ',' })
	if len(parts) < 2 || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}
