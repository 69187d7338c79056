package report_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/generic/store"
	"github.com/warp/booking-engine/report"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	wib  = time.FixedZone("WIB", 7*60*60)
	base = time.Date(2025, time.July, 30, 15, 0, 0, 0, wib)
)

func record(apartment, cs string, method generic.PaymentMethod, amount, commission int64, offset time.Duration) generic.TransactionRecord {
	return generic.TransactionRecord{
		ID:              generic.TransactionID(cs + "-" + apartment),
		SourceMessageID: generic.MessageID(cs + apartment),
		Booking: generic.Booking{
			Apartment:     apartment,
			Unit:          "A-1",
			CheckoutTime:  "14:00",
			DurationHours: decimal.NewFromInt(3),
			PaymentMethod: method,
			Amount:        generic.Rupiah(amount),
			Commission:    generic.Rupiah(commission),
			CSName:        cs,
		}.WithNet(),
		CreatedAt: base.Add(offset),
	}
}

func sampleRecords() []generic.TransactionRecord {
	promo := record("SKY HOUSE BSD", "APK", generic.PaymentCash, 200000, 0, 2*time.Minute)
	promo.Promotional = true
	return []generic.TransactionRecord{
		record("SKY HOUSE BSD", "Amel", generic.PaymentCash, 250000, 50000, time.Minute),
		record("TREEPARK BSD", "KR", generic.PaymentTransfer, 300000, 30000, 0),
		promo,
	}
}

var apartmentOrder = []string{"SKY HOUSE BSD", "TREEPARK BSD"}

// =============================================================================
// AGGREGATION TESTS
// =============================================================================

func TestAggregate_Totals(t *testing.T) {
	// GIVEN: Three bookings across two apartments, one promotional cash booking
	// WHEN: Aggregating
	s := report.Aggregate(sampleRecords(), report.Options{ApartmentOrder: apartmentOrder})

	// THEN: Grand totals include everything, cash excludes the promotional one
	assert.Equal(t, 3, s.Grand.Count)
	assert.True(t, s.Grand.Amount.Equal(generic.Rupiah(750000)))
	assert.True(t, s.Grand.Commission.Equal(generic.Rupiah(80000)))
	assert.True(t, s.Grand.Net.Equal(generic.Rupiah(670000)))

	assert.Equal(t, 1, s.Cash.Count)
	assert.True(t, s.Cash.Amount.Equal(generic.Rupiah(250000)))

	assert.Equal(t, 2, s.ByPayment[string(generic.PaymentCash)].Count)
	assert.Equal(t, 1, s.ByPayment[string(generic.PaymentTransfer)].Count)
	assert.Equal(t, 1, s.ByCS["Amel"].Count)
	assert.Equal(t, 1, s.CrossTab["KR"]["TREEPARK BSD"])
	assert.False(t, s.Empty())
}

func TestAggregate_ApartmentOrdering(t *testing.T) {
	ordered := report.Aggregate(sampleRecords(), report.Options{ApartmentOrder: apartmentOrder})
	require.Len(t, ordered.Apartments, 2)
	assert.Equal(t, "SKY HOUSE BSD", ordered.Apartments[0].Apartment)

	// Without a priority list apartments appear as first seen by CreatedAt
	discovered := report.Aggregate(sampleRecords(), report.Options{})
	require.Len(t, discovered.Apartments, 2)
	assert.Equal(t, "TREEPARK BSD", discovered.Apartments[0].Apartment)
}

func TestAggregate_RecordsSortedByCreatedAt(t *testing.T) {
	s := report.Aggregate(sampleRecords(), report.Options{ApartmentOrder: apartmentOrder})

	sky := s.Apartments[0]
	require.Len(t, sky.Records, 2)
	assert.Equal(t, "Amel", sky.Records[0].CSName)
	assert.Equal(t, "APK", sky.Records[1].CSName)
	assert.Equal(t, 1, sky.Cash.Count)
}

func TestAggregate_ApartmentFilter(t *testing.T) {
	s := report.Aggregate(sampleRecords(), report.Options{Apartment: "treepark bsd"})

	assert.Equal(t, 1, s.Grand.Count)
	require.Len(t, s.Apartments, 1)
	assert.Equal(t, "TREEPARK BSD", s.Apartments[0].Apartment)
}

func TestAggregate_NormalizeMergesCSNames(t *testing.T) {
	recs := []generic.TransactionRecord{
		record("SKY HOUSE BSD", "amel", generic.PaymentCash, 100000, 10000, 0),
		record("SKY HOUSE BSD", "Amelia", generic.PaymentCash, 100000, 10000, time.Minute),
	}
	s := report.Aggregate(recs, report.Options{Normalize: func(string) string { return "Amel" }})

	assert.Len(t, s.ByCS, 1)
	assert.Equal(t, 2, s.ByCS["Amel"].Count)
}

func TestIsCashRevenue_PromoAliasInPaymentDetail(t *testing.T) {
	b := generic.Booking{PaymentMethod: generic.PaymentCash, CSName: "Dreamy", PaymentDetail: "cash apk 200"}

	assert.False(t, report.IsCashRevenue(b, []string{"APK"}))
	assert.True(t, report.IsCashRevenue(b, nil))
	assert.False(t, report.IsCashRevenue(generic.Booking{PaymentMethod: generic.PaymentTransfer}, nil))
}

func TestSummary_CSNamesByCountThenName(t *testing.T) {
	recs := append(sampleRecords(), record("TREEPARK BSD", "KR", generic.PaymentCash, 1, 0, time.Hour))
	s := report.Aggregate(recs, report.Options{})

	assert.Equal(t, []string{"KR", "APK", "Amel"}, s.CSNames())
}

// =============================================================================
// RENDERING TESTS
// =============================================================================

func TestFormatRupiah(t *testing.T) {
	assert.Equal(t, "Rp 1.250.000", report.FormatRupiah(generic.Rupiah(1250000)))
	assert.Equal(t, "Rp 999", report.FormatRupiah(generic.Rupiah(999)))
	assert.Equal(t, "Rp 0", report.FormatRupiah(decimal.Zero))
	assert.Equal(t, "-Rp 5.000", report.FormatRupiah(generic.Rupiah(-5000)))
}

func TestRenderSummary(t *testing.T) {
	w := generic.BusinessDayWindow(base, wib)
	s := report.Aggregate(sampleRecords(), report.Options{Window: w, ApartmentOrder: apartmentOrder})

	text := report.RenderSummary(s, "Laporan Harian")

	assert.Contains(t, text, "*Laporan Harian*\n*Periode: 30/07/2025*")
	assert.Contains(t, text, "- Total CS Amel: 1\n")
	assert.Contains(t, text, "- *Total CS: 3*")
	assert.Contains(t, text, "- Total Cash SKY HOUSE BSD: Rp 250.000\n")
	assert.Contains(t, text, "- Total TF TREEPARK BSD: Rp 300.000\n")
	assert.Contains(t, text, "- *Total Kotor: Rp 750.000*")
	assert.Contains(t, text, "- *Total Bersih: Rp 670.000*")
	assert.Contains(t, text, "| Marketing | Sky | Treepark | Total |")
	assert.Contains(t, text, "*Total Komisi: Rp 80.000*")
}

func TestRenderSummary_Empty(t *testing.T) {
	text := report.RenderSummary(report.Aggregate(nil, report.Options{}), "")

	assert.Contains(t, text, "*Laporan Booking*")
	assert.Contains(t, text, "- Tidak ada data CS")
	assert.Contains(t, text, "Tidak ada komisi")
}

func TestRenderDetail(t *testing.T) {
	s := report.Aggregate(sampleRecords(), report.Options{ApartmentOrder: apartmentOrder, Apartment: ""})

	text := report.RenderDetail(s, "Detail")

	assert.Contains(t, text, "=== *SKY HOUSE BSD* ===\n1. A-1 | CO 14:00 | 3 jam | Cash Rp 250.000 | CS Amel | komisi Rp 50.000\n")
	assert.Contains(t, text, "1. A-1 | CO 14:00 | 3 jam | TF Rp 300.000 | CS KR | komisi Rp 30.000\n")
	assert.Contains(t, text, "*Total: 3 booking, Rp 750.000, komisi Rp 80.000, bersih Rp 670.000*")

	assert.Contains(t, report.RenderDetail(report.Aggregate(nil, report.Options{}), "x"), "Tidak ada transaksi.")
}

// =============================================================================
// PUBLISHER TESTS
// =============================================================================

type fakeSender struct {
	sent []generic.ChatID
	fail map[generic.ChatID]bool
}

func (f *fakeSender) SendText(_ context.Context, chatID generic.ChatID, _ string) error {
	if f.fail[chatID] {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

type fakeExporter struct {
	name string
	err  error
	got  []report.Summary
}

func (f *fakeExporter) Name() string { return f.name }

func (f *fakeExporter) Export(_ context.Context, s report.Summary) (string, error) {
	f.got = append(f.got, s)
	if f.err != nil {
		return "", f.err
	}
	return "mem://" + s.Window.Label, nil
}

func newTestPublisher(t *testing.T, sender report.Sender, exporters ...report.Exporter) *report.Publisher {
	t.Helper()
	mem := store.NewMemoryWithClock(generic.FixedClock{At: base})
	ctx := context.Background()
	for i, r := range sampleRecords() {
		_, err := mem.Create(ctx, generic.MessageID(fmt.Sprintf("m%d", i)), "g", r.Booking)
		require.NoError(t, err)
	}
	defaults := func() report.Options { return report.Options{ApartmentOrder: apartmentOrder} }
	return report.NewPublisher(mem, sender, defaults, zerolog.Nop(), exporters...)
}

func TestPublisher_PublishSendsAndExports(t *testing.T) {
	// GIVEN: Two owner chats and two exporters, one failing
	sender := &fakeSender{}
	ok := &fakeExporter{name: "file"}
	broken := &fakeExporter{name: "bigquery", err: errors.New("quota")}
	p := newTestPublisher(t, sender, ok, broken)

	// WHEN: Publishing the business day with export
	pub, err := p.Publish(context.Background(), report.Request{
		Kind:       report.KindDaily,
		Window:     generic.BusinessDayWindow(base, wib),
		Recipients: []generic.ChatID{"owner1@c.us", "owner2@c.us"},
		Export:     true,
	})

	// THEN: Both owners got the text; exporter failures are reported, not fatal
	require.NoError(t, err)
	assert.Equal(t, 2, pub.Sent)
	assert.Equal(t, 3, pub.Summary.Grand.Count)
	assert.Contains(t, pub.Text, "*Laporan Harian*")
	require.Len(t, pub.Exports, 2)
	assert.Equal(t, "mem://30/07/2025", pub.Exports[0].Location)
	assert.Equal(t, "quota", pub.Exports[1].Error)
}

func TestPublisher_NoExportWhenNotRequested(t *testing.T) {
	ex := &fakeExporter{name: "file"}
	p := newTestPublisher(t, &fakeSender{}, ex)

	pub, err := p.Publish(context.Background(), report.Request{Kind: report.KindAdhoc, Window: generic.BusinessDayWindow(base, wib), Detail: true})

	require.NoError(t, err)
	assert.Empty(t, ex.got)
	assert.Contains(t, pub.Text, "*Rekap Booking*")
	assert.Contains(t, pub.Text, "=== *SKY HOUSE BSD* ===")
}

func TestPublisher_AllRecipientsFailing(t *testing.T) {
	sender := &fakeSender{fail: map[generic.ChatID]bool{"owner@c.us": true}}
	p := newTestPublisher(t, sender)

	pub, err := p.Publish(context.Background(), report.Request{
		Kind:       report.KindMonthly,
		Window:     generic.MonthWindow(2025, time.July, wib),
		Recipients: []generic.ChatID{"owner@c.us"},
	})

	assert.Error(t, err)
	assert.Zero(t, pub.Sent)
}

func TestPublisher_PartialDeliveryIsNotAnError(t *testing.T) {
	sender := &fakeSender{fail: map[generic.ChatID]bool{"bad@c.us": true}}
	p := newTestPublisher(t, sender)

	pub, err := p.Publish(context.Background(), report.Request{
		Kind:       report.KindDaily,
		Window:     generic.BusinessDayWindow(base, wib),
		Recipients: []generic.ChatID{"bad@c.us", "good@c.us"},
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, pub.Sent)
}

func TestPublisher_BuildFiltersApartment(t *testing.T) {
	p := newTestPublisher(t, nil)

	s, err := p.Build(context.Background(), generic.BusinessDayWindow(base, wib), "SKY HOUSE BSD")

	require.NoError(t, err)
	assert.Equal(t, 2, s.Grand.Count)
	assert.Equal(t, "SKY HOUSE BSD", s.Apartment)
}
