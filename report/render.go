package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/generic"
)

// FormatRupiah renders whole rupiah with dot grouping: "Rp 1.250.000".
func FormatRupiah(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	digits := d.Round(0).StringFixed(0)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "Rp " + b.String()
}

// RenderSummary produces the aggregated chat report.
func RenderSummary(s Summary, title string) string {
	var b strings.Builder
	writeHeader(&b, s, title)

	b.WriteString("=== *Laporan CS* ===\n")
	names := s.CSNames()
	if len(names) == 0 {
		b.WriteString("- Tidak ada data CS\n")
	}
	for _, n := range names {
		fmt.Fprintf(&b, "- Total CS %s: %d\n", n, s.ByCS[n].Count)
	}
	fmt.Fprintf(&b, "- *Total CS: %d*\n\n", s.Grand.Count)

	b.WriteString("=== *Keuangan* ===\n")
	for _, g := range s.Apartments {
		if g.Cash.Count > 0 {
			fmt.Fprintf(&b, "- Total Cash %s: %s\n", g.Apartment, FormatRupiah(g.Cash.Amount))
		}
	}
	for _, g := range s.Apartments {
		if tf, ok := g.ByPayment[string(generic.PaymentTransfer)]; ok && tf.Count > 0 {
			fmt.Fprintf(&b, "- Total TF %s: %s\n", g.Apartment, FormatRupiah(tf.Amount))
		}
	}
	fmt.Fprintf(&b, "- Total Cash: %s\n", FormatRupiah(s.Cash.Amount))
	fmt.Fprintf(&b, "- *Total Kotor: %s*\n", FormatRupiah(s.Grand.Amount))
	fmt.Fprintf(&b, "- *Total Bersih: %s*\n\n", FormatRupiah(s.Grand.Net))

	b.WriteString("=== *Komisi Marketing* ===\n")
	if len(names) == 0 {
		b.WriteString("Tidak ada komisi\n")
		return b.String()
	}
	writeCrossTab(&b, s, names)
	b.WriteString("*Ringkasan Komisi:*\n")
	for _, n := range names {
		t := s.ByCS[n]
		fmt.Fprintf(&b, "%s: %d booking, %s\n", n, t.Count, FormatRupiah(t.Commission))
	}
	fmt.Fprintf(&b, "\n*Total Komisi: %s*\n", FormatRupiah(s.Grand.Commission))
	return b.String()
}

// RenderDetail lists every booking per apartment followed by subtotals.
func RenderDetail(s Summary, title string) string {
	var b strings.Builder
	writeHeader(&b, s, title)

	if s.Empty() {
		b.WriteString("Tidak ada transaksi.\n")
		return b.String()
	}
	for _, g := range s.Apartments {
		fmt.Fprintf(&b, "=== *%s* ===\n", g.Apartment)
		for i, r := range g.Records {
			fmt.Fprintf(&b, "%d. %s | CO %s | %s jam | %s %s | CS %s | komisi %s\n",
				i+1, r.Unit, r.CheckoutTime, r.DurationHours.String(),
				paymentLabel(r.PaymentMethod), FormatRupiah(r.Amount),
				r.CSName, FormatRupiah(r.Commission))
		}
		fmt.Fprintf(&b, "Subtotal: %d booking, %s, komisi %s\n\n",
			g.Totals.Count, FormatRupiah(g.Totals.Amount), FormatRupiah(g.Totals.Commission))
	}
	fmt.Fprintf(&b, "*Total: %d booking, %s, komisi %s, bersih %s*\n",
		s.Grand.Count, FormatRupiah(s.Grand.Amount), FormatRupiah(s.Grand.Commission), FormatRupiah(s.Grand.Net))
	return b.String()
}

func writeHeader(b *strings.Builder, s Summary, title string) {
	if title == "" {
		title = "Laporan Booking"
	}
	fmt.Fprintf(b, "*%s*\n", title)
	if s.Window.Label != "" {
		fmt.Fprintf(b, "*Periode: %s*\n", s.Window.Label)
	}
	if s.Apartment != "" {
		fmt.Fprintf(b, "*Apartemen: %s*\n", s.Apartment)
	}
	b.WriteString("\n")
}

func writeCrossTab(b *strings.Builder, s Summary, names []string) {
	b.WriteString("```\n")
	b.WriteString("| Marketing |")
	for _, g := range s.Apartments {
		fmt.Fprintf(b, " %s |", shortName(g.Apartment))
	}
	b.WriteString(" Total |\n")
	for _, n := range names {
		fmt.Fprintf(b, "| %-9s |", n)
		for _, g := range s.Apartments {
			cell := ""
			if c := s.CrossTab[n][g.Apartment]; c > 0 {
				cell = fmt.Sprint(c)
			}
			fmt.Fprintf(b, " %-*s |", len(shortName(g.Apartment)), cell)
		}
		fmt.Fprintf(b, " %-5d |\n", s.ByCS[n].Count)
	}
	b.WriteString("```\n\n")
}

// shortName keeps the first word of an apartment, title-cased ("SKY HOUSE BSD" -> "Sky").
func shortName(apartment string) string {
	fields := strings.Fields(apartment)
	if len(fields) == 0 {
		return "-"
	}
	w := strings.ToLower(fields[0])
	return strings.ToUpper(w[:1]) + w[1:]
}

func paymentLabel(method generic.PaymentMethod) string {
	if method == generic.PaymentTransfer {
		return "TF"
	}
	return "Cash"
}
