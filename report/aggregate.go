/*
aggregate.go - Grouped totals over transaction records

PURPOSE:
  Turns the records of one window into the numbers every report needs.
  Nothing here formats text; render.go and the exporters consume Summary.

GROUPINGS:
  Grand           all records after the apartment filter
  ByCS            keyed by normalized CS name
  ByPayment       keyed by payment method (cash, transfer)
  Apartments      ordered by the priority list, unknown ones appended in
                  the order they are first seen; records by CreatedAt asc
  CrossTab        CS name x apartment booking counts
  Cash            cash bookings that are not promotional, per apartment and grand

PROMOTIONAL:
  A record is promotional when its flag is set or when a promo alias occurs,
  case-insensitively, in its CS name or payment detail. Promotional cash is
  still revenue; it only leaves the cash subset.

SEE ALSO:
  - render.go: chat text
  - publisher.go: loading records and delivering the result
*/
package report

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/generic"
)

// Totals accumulates one bucket.
type Totals struct {
	Count      int             `json:"count"`
	Amount     decimal.Decimal `json:"amount"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
}

func (t *Totals) add(b generic.Booking) {
	t.Count++
	t.Amount = t.Amount.Add(b.Amount)
	t.Commission = t.Commission.Add(b.Commission)
	t.Net = t.Net.Add(b.Amount.Sub(b.Commission))
}

// ApartmentGroup holds one apartment's records and subtotals.
type ApartmentGroup struct {
	Apartment string                      `json:"apartment"`
	Records   []generic.TransactionRecord `json:"records"`
	Totals    Totals                      `json:"totals"`
	ByPayment map[string]Totals           `json:"byPayment"`
	Cash      Totals                      `json:"cash"`
}

// Summary is the aggregate of one window.
type Summary struct {
	Window     generic.Window            `json:"window"`
	Apartment  string                    `json:"apartment,omitempty"`
	Grand      Totals                    `json:"grand"`
	ByCS       map[string]Totals         `json:"byCs"`
	ByPayment  map[string]Totals         `json:"byPayment"`
	Apartments []ApartmentGroup          `json:"apartments"`
	CrossTab   map[string]map[string]int `json:"crossTab"`
	Cash       Totals                    `json:"cash"`
}

// Options controls filtering, ordering and CS normalization.
type Options struct {
	Window generic.Window
	// Apartment restricts the summary to one apartment; empty means all.
	Apartment      string
	ApartmentOrder []string
	PromoAliases   []string
	// Normalize maps raw CS names to report keys. Nil keeps names as stored.
	Normalize func(string) string
}

// Aggregate computes a Summary. Input order does not matter.
func Aggregate(records []generic.TransactionRecord, opts Options) Summary {
	normalize := opts.Normalize
	if normalize == nil {
		normalize = func(s string) string { return s }
	}

	s := Summary{
		Window:    opts.Window,
		Apartment: opts.Apartment,
		ByCS:      make(map[string]Totals),
		ByPayment: make(map[string]Totals),
		CrossTab:  make(map[string]map[string]int),
	}

	sorted := make([]generic.TransactionRecord, 0, len(records))
	for _, r := range records {
		if opts.Apartment != "" && !strings.EqualFold(r.Apartment, opts.Apartment) {
			continue
		}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	groups := make(map[string]*ApartmentGroup)
	var discovered []string
	for _, r := range sorted {
		cs := normalize(r.CSName)
		key := strings.ToUpper(strings.TrimSpace(r.Apartment))

		s.Grand.add(r.Booking)
		addTo(s.ByCS, cs, r.Booking)
		addTo(s.ByPayment, string(r.PaymentMethod), r.Booking)

		g, ok := groups[key]
		if !ok {
			g = &ApartmentGroup{Apartment: r.Apartment, ByPayment: make(map[string]Totals)}
			groups[key] = g
			discovered = append(discovered, key)
		}
		g.Records = append(g.Records, r)
		g.Totals.add(r.Booking)
		addTo(g.ByPayment, string(r.PaymentMethod), r.Booking)

		if s.CrossTab[cs] == nil {
			s.CrossTab[cs] = make(map[string]int)
		}
		s.CrossTab[cs][g.Apartment]++

		if IsCashRevenue(r.Booking, opts.PromoAliases) {
			g.Cash.add(r.Booking)
			s.Cash.add(r.Booking)
		}
	}

	for _, key := range orderApartments(discovered, opts.ApartmentOrder) {
		s.Apartments = append(s.Apartments, *groups[key])
	}
	return s
}

// IsCashRevenue reports whether a booking belongs to the cash subset.
func IsCashRevenue(b generic.Booking, promoAliases []string) bool {
	if !strings.EqualFold(string(b.PaymentMethod), string(generic.PaymentCash)) {
		return false
	}
	return !isPromotional(b, promoAliases)
}

func isPromotional(b generic.Booking, aliases []string) bool {
	if b.Promotional {
		return true
	}
	cs := strings.ToLower(b.CSName)
	detail := strings.ToLower(b.PaymentDetail)
	for _, a := range aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if strings.Contains(cs, a) || strings.Contains(detail, a) {
			return true
		}
	}
	return false
}

func addTo(m map[string]Totals, key string, b generic.Booking) {
	t := m[key]
	t.add(b)
	m[key] = t
}

// orderApartments puts priority apartments first, then the rest as discovered.
func orderApartments(discovered, priority []string) []string {
	present := make(map[string]bool, len(discovered))
	for _, k := range discovered {
		present[k] = true
	}
	out := make([]string, 0, len(discovered))
	used := make(map[string]bool, len(discovered))
	for _, p := range priority {
		k := strings.ToUpper(strings.TrimSpace(p))
		if present[k] && !used[k] {
			out = append(out, k)
			used[k] = true
		}
	}
	for _, k := range discovered {
		if !used[k] {
			out = append(out, k)
			used[k] = true
		}
	}
	return out
}

// CSNames returns CS keys ordered by booking count desc, then name.
func (s Summary) CSNames() []string {
	names := make([]string, 0, len(s.ByCS))
	for n := range s.ByCS {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := s.ByCS[names[i]].Count, s.ByCS[names[j]].Count
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	return names
}

// Empty reports whether the window had no matching records.
func (s Summary) Empty() bool { return s.Grand.Count == 0 }
