package booking_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/generic"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var wib = time.FixedZone("WIB", 7*60*60)

// 30 Jul 2025 15:00 WIB
var parseTime = time.Date(2025, time.July, 30, 15, 0, 0, 0, wib)

const canonicalBooking = "🟢SKY HOUSE\nUnit      :L3/30N\nCek out: 05:00\nUntuk   : 6 jam\nCash/Tf: tf kr 250\nCs    : dreamy\nKomisi: 50"

func newTestParser() *booking.Parser {
	return booking.NewParser(booking.DefaultNames(), generic.FixedClock{At: parseTime}, wib)
}

func mustValid(t *testing.T, o booking.Outcome) booking.ParsedBooking {
	t.Helper()
	v, ok := o.(booking.Valid)
	require.True(t, ok, "expected Valid, got %#v", o)
	return v.Booking
}

// =============================================================================
// VALID MESSAGES
// =============================================================================

func TestParse_CanonicalMessage(t *testing.T) {
	// GIVEN: The reference booking layout
	// WHEN: Parsing it for the SKY HOUSE BSD group
	b := mustValid(t, newTestParser().Parse(canonicalBooking, "m1", "SKY HOUSE BSD"))

	// THEN: Every field is extracted, shorthand amounts are thousands
	assert.Equal(t, "SKY HOUSE BSD", b.Apartment)
	assert.Equal(t, "L3/30N", b.Unit)
	assert.Equal(t, "05:00", b.CheckoutTime)
	assert.True(t, b.DurationHours.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, generic.PaymentTransfer, b.PaymentMethod)
	assert.Equal(t, "tf kr 250", b.PaymentDetail)
	assert.True(t, b.Amount.Equal(generic.Rupiah(250000)))
	assert.True(t, b.Commission.Equal(generic.Rupiah(50000)))
	assert.True(t, b.NetAmount.Equal(generic.Rupiah(200000)))
	assert.Equal(t, "Dreamy", b.CSName)
	assert.False(t, b.Promotional)
	assert.Equal(t, "2025-07-30", b.DateOnly)
}

func TestParse_MessageIDIsCarried(t *testing.T) {
	o := newTestParser().Parse(canonicalBooking, "msg-42", "SKY HOUSE BSD")
	v, ok := o.(booking.Valid)
	require.True(t, ok)
	assert.Equal(t, generic.MessageID("msg-42"), v.MessageID)
}

func TestParse_DateOnlyIsProcessingDateInLocation(t *testing.T) {
	// 30 Jul 20:00 UTC is 31 Jul 03:00 WIB
	p := booking.NewParser(booking.DefaultNames(), generic.FixedClock{At: time.Date(2025, 7, 30, 20, 0, 0, 0, time.UTC)}, wib)
	b := mustValid(t, p.Parse(canonicalBooking, "m1", "X"))
	assert.Equal(t, "2025-07-31", b.DateOnly)
}

func TestParse_Amounts(t *testing.T) {
	tests := []struct {
		name    string
		payment string
		want    int64
	}{
		{"shorthand", "cash 250", 250000},
		{"grouped dots are literal", "cash 250.000", 250000},
		{"grouped commas are literal", "tf 1,250,000", 1250000},
		{"large bare number is literal", "cash 350000", 350000},
		{"rb suffix", "cash 300rb", 300000},
		{"k suffix", "tf bca 275k", 275000},
		{"juta suffix", "tf 1.5jt", 1500000},
		{"last number wins", "tf kr 2 250", 250000},
		{"no number is zero", "tf amel", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := "SKY\nUnit: A1\nCek out: 12\nUntuk: 3 jam\nCash/Tf: " + tc.payment + "\nCs: amel\nKomisi: 0"
			b := mustValid(t, newTestParser().Parse(msg, "m", "SKY"))
			assert.True(t, b.Amount.Equal(generic.Rupiah(tc.want)), "got %s", b.Amount)
		})
	}
}

func TestParse_Durations(t *testing.T) {
	tests := []struct {
		name     string
		duration string
		want     string
	}{
		{"spaced hours", "6 jam", "6"},
		{"glued hours", "6jam", "6"},
		{"glued two digits", "12jam", "12"},
		{"bare number is hours", "3", "3"},
		{"decimal comma", "1,5 jam", "1.5"},
		{"words after the unit are ignored", "3 jam minggu", "3"},
		{"minutes", "30 menit", "0.5"},
		{"glued minutes", "30mnt", "0.5"},
		{"days", "1 hari", "24"},
		{"glued days", "2hari", "48"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := "SKY\nUnit: A1\nCek out: 12\nUntuk: " + tc.duration + "\nCash/Tf: cash 100\nCs: amel\nKomisi: 0"
			b := mustValid(t, newTestParser().Parse(msg, "m", "SKY"))
			assert.True(t, b.DurationHours.Equal(decimal.RequireFromString(tc.want)), "got %s", b.DurationHours)
		})
	}
}

func TestParse_LabelVariants(t *testing.T) {
	// Separator variants, case, spacing and a label without separator
	msg := "TREEPARK\nNO UNIT = B-7\ncheck out 11.30\nDurasi：1 hari\nPembayaran: CASH 400\nMarketing: AMELIA\nfee: 25"
	b := mustValid(t, newTestParser().Parse(msg, "m", "TREEPARK BSD"))

	assert.Equal(t, "B-7", b.Unit)
	assert.Equal(t, "11:30", b.CheckoutTime)
	assert.True(t, b.DurationHours.Equal(decimal.NewFromInt(24)))
	assert.Equal(t, generic.PaymentCash, b.PaymentMethod)
	assert.True(t, b.Amount.Equal(generic.Rupiah(400000)))
	assert.Equal(t, "Amel", b.CSName)
	assert.True(t, b.Commission.Equal(generic.Rupiah(25000)))
}

func TestParse_MethodFromLabel(t *testing.T) {
	msg := "SKY\nUnit: A1\nCek out: 10:00\nUntuk: 2 jam\nCash: 150\nCs: kr\nKomisi: 10"
	b := mustValid(t, newTestParser().Parse(msg, "m", "SKY"))
	assert.Equal(t, generic.PaymentCash, b.PaymentMethod)
	assert.True(t, b.Amount.Equal(generic.Rupiah(150000)))
	assert.Equal(t, "KR", b.CSName)
}

func TestParse_EmptyCommissionIsZero(t *testing.T) {
	msg := "SKY\nUnit: A1\nCek out: 10:00\nUntuk: 2 jam\nCash/Tf: cash 150\nCs: dreamy\nKomisi:"
	b := mustValid(t, newTestParser().Parse(msg, "m", "SKY"))
	assert.True(t, b.Commission.IsZero())
	assert.True(t, b.NetAmount.Equal(generic.Rupiah(150000)))
}

func TestParse_PromotionalAlias(t *testing.T) {
	msg := "SKY\nUnit: A1\nCek out: 10:00\nUntuk: 2 jam\nCash/Tf: cash 150\nCs: apk\nKomisi: 20"
	b := mustValid(t, newTestParser().Parse(msg, "m", "SKY"))

	assert.Equal(t, "APK", b.CSName)
	assert.True(t, b.Promotional)
	assert.True(t, b.Commission.Equal(generic.Rupiah(20000)), "promotional bookings keep their commission")
}

func TestParse_FirstNonEmptyValueWins(t *testing.T) {
	msg := "SKY\nUnit: A1\nUnit:\nCek out: 10:00\nUntuk: 2 jam\nCash/Tf: cash 150\nCs: dreamy\nKomisi: 20"
	b := mustValid(t, newTestParser().Parse(msg, "m", "SKY"))
	assert.Equal(t, "A1", b.Unit)
}

// =============================================================================
// INVALID MESSAGES
// =============================================================================

func TestParse_MissingFieldsInPriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want booking.RequiredField
	}{
		{"unit first", "SKY\nCek out: 10\nCs: amel", booking.RequiredUnit},
		{"checkout", "SKY\nUnit: A1\nUntuk: 2 jam\nCash/Tf: cash 1\nCs: a\nKomisi: 1", booking.RequiredCheckout},
		{"duration", "SKY\nUnit: A1\nCek out: 10\nCash/Tf: cash 1\nCs: a\nKomisi: 1", booking.RequiredDuration},
		{"payment", "SKY\nUnit: A1\nCek out: 10\nUntuk: 2 jam\nCs: a\nKomisi: 1", booking.RequiredPayment},
		{"cs", "SKY\nUnit: A1\nCek out: 10\nUntuk: 2 jam\nCash/Tf: cash 1\nKomisi: 1", booking.RequiredCS},
		{"commission", "SKY\nUnit: A1\nCek out: 10\nUntuk: 2 jam\nCash/Tf: cash 1\nCs: a", booking.RequiredCommission},
		{"empty value", "SKY\nUnit:\nCek out: 10\nUntuk: 2 jam\nCash/Tf: cash 1\nCs: a\nKomisi: 1", booking.RequiredUnit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := newTestParser().Parse(tc.msg, "m", "SKY")
			mf, ok := o.(booking.MissingField)
			require.True(t, ok, "expected MissingField, got %#v", o)
			assert.Equal(t, tc.want, mf.Field)
		})
	}
}

func TestParse_WrongFormat(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"single line", "Unit: A1"},
		{"no known labels", "halo semua\napa kabar"},
		{"bad checkout", "SKY\nUnit: A1\nCek out: besok\nUntuk: 2 jam\nCash/Tf: cash 1\nCs: a\nKomisi: 1"},
		{"checkout out of range", "SKY\nUnit: A1\nCek out: 25:00\nUntuk: 2 jam\nCash/Tf: cash 1\nCs: a\nKomisi: 1"},
		{"bad duration", "SKY\nUnit: A1\nCek out: 10\nUntuk: lama\nCash/Tf: cash 1\nCs: a\nKomisi: 1"},
		{"unknown payment method", "SKY\nUnit: A1\nCek out: 10\nUntuk: 2 jam\nPembayaran: qris 100\nCs: a\nKomisi: 1"},
		{"bad commission", "SKY\nUnit: A1\nCek out: 10\nUntuk: 2 jam\nCash/Tf: cash 1\nCs: a\nKomisi: nanti"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := newTestParser().Parse(tc.msg, "m", "SKY")
			assert.Equal(t, booking.OutcomeWrongFormat, o.Kind())
		})
	}
}

func TestGuidance(t *testing.T) {
	assert.Equal(t, "Cek outnya mana?", booking.Guidance(booking.MissingField{Field: booking.RequiredCheckout}))
	assert.Contains(t, booking.Guidance(booking.WrongFormat{Reason: "x"}), "Unit      :L3/30N")
	assert.Empty(t, booking.Guidance(booking.Valid{}))
}

// =============================================================================
// NAMES
// =============================================================================

func TestNames_Normalize(t *testing.T) {
	n := booking.DefaultNames()

	assert.Equal(t, "Dreamy", n.Normalize("  dreamy "))
	assert.Equal(t, "Amel", n.Normalize("AMELIA"))
	assert.Equal(t, "APK", n.Normalize("Apk"))
	assert.Equal(t, "KR", n.Normalize("kr"))
	assert.Equal(t, "", n.Normalize("   "))
}

func TestNewNames_FromConfig(t *testing.T) {
	n := booking.NewNames(map[string]string{"VIP": "VIP"}, map[string]string{"Dre": "Dreamy"}, []string{"vip"})

	assert.Equal(t, "VIP", n.Normalize("vip"))
	assert.Equal(t, "Dreamy", n.Normalize("dreamy2"))
	assert.True(t, n.IsPromotional("VIP", ""))
	assert.False(t, n.IsPromotional("Dreamy", "cash 100"))
}

func TestNewNames_EmptyFallsBackToDefaults(t *testing.T) {
	n := booking.NewNames(nil, nil, nil)
	assert.Equal(t, booking.DefaultNames().PromoAliases, n.PromoAliases)
}
