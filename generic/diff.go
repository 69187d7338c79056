package generic

import "strings"

// =============================================================================
// FIELDS - One name per comparable column, used by storage and edit diffs
// =============================================================================

type Field string

const (
	FieldApartment     Field = "apartment"
	FieldUnit          Field = "unit"
	FieldCheckoutTime  Field = "checkout_time"
	FieldDurationHours Field = "duration_hours"
	FieldPaymentMethod Field = "payment_method"
	FieldAmount        Field = "amount"
	FieldCommission    Field = "commission"
	FieldCSName        Field = "cs_name"
)

// ComparisonSet is the fixed, ordered set of fields an edit is compared on.
// NetAmount and DateOnly are derived and never compared directly.
var ComparisonSet = []Field{
	FieldApartment,
	FieldUnit,
	FieldCheckoutTime,
	FieldDurationHours,
	FieldPaymentMethod,
	FieldAmount,
	FieldCommission,
	FieldCSName,
}

// FieldChange is one differing field between the stored and the edited booking.
type FieldChange struct {
	Field Field
	Old   string
	New   string
}

// Value renders the field of b as a comparable string.
func (b Booking) Value(f Field) string {
	switch f {
	case FieldApartment:
		return b.Apartment
	case FieldUnit:
		return b.Unit
	case FieldCheckoutTime:
		return b.CheckoutTime
	case FieldDurationHours:
		return b.DurationHours.String()
	case FieldPaymentMethod:
		return string(b.PaymentMethod)
	case FieldAmount:
		return b.Amount.String()
	case FieldCommission:
		return b.Commission.String()
	case FieldCSName:
		return b.CSName
	}
	return ""
}

// DiffBookings compares old and new over ComparisonSet. Unit compares
// case-insensitively; decimals compare by value.
func DiffBookings(old, new Booking) []FieldChange {
	var changes []FieldChange
	for _, f := range ComparisonSet {
		if fieldEqual(f, old, new) {
			continue
		}
		changes = append(changes, FieldChange{Field: f, Old: old.Value(f), New: new.Value(f)})
	}
	return changes
}

// SameStored reports whether a and b would be stored identically. Unlike
// DiffBookings it compares every persisted field exactly, including the raw
// payment text, the promo flag and the unit's letter case.
func (b Booking) SameStored(o Booking) bool {
	return b.Apartment == o.Apartment &&
		b.Unit == o.Unit &&
		b.CheckoutTime == o.CheckoutTime &&
		b.DurationHours.Equal(o.DurationHours) &&
		b.PaymentMethod == o.PaymentMethod &&
		b.PaymentDetail == o.PaymentDetail &&
		b.Amount.Equal(o.Amount) &&
		b.Commission.Equal(o.Commission) &&
		b.NetAmount.Equal(o.NetAmount) &&
		b.CSName == o.CSName &&
		b.Promotional == o.Promotional &&
		b.DateOnly == o.DateOnly
}

func fieldEqual(f Field, a, b Booking) bool {
	switch f {
	case FieldDurationHours:
		return a.DurationHours.Equal(b.DurationHours)
	case FieldAmount:
		return a.Amount.Equal(b.Amount)
	case FieldCommission:
		return a.Commission.Equal(b.Commission)
	case FieldUnit:
		return strings.EqualFold(a.Unit, b.Unit)
	}
	return a.Value(f) == b.Value(f)
}
