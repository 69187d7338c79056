package booking

import (
	"fmt"

	"github.com/warp/booking-engine/generic"
)

// ParsedBooking is the parser's output; it shares the stored field names.
type ParsedBooking = generic.Booking

// =============================================================================
// OUTCOME - Tagged parse result (exactly one variant per parse)
// =============================================================================

type OutcomeKind string

const (
	OutcomeValid        OutcomeKind = "valid"
	OutcomeWrongFormat  OutcomeKind = "wrong_format"
	OutcomeMissingField OutcomeKind = "missing_field"
)

// Outcome is sealed: only Valid, WrongFormat and MissingField implement it.
// Call sites switch on the concrete type.
type Outcome interface {
	Kind() OutcomeKind
	sealed()
}

// Valid carries a fully parsed booking.
type Valid struct {
	MessageID generic.MessageID
	Booking   ParsedBooking
}

// WrongFormat means the text has no usable booking structure, or a field
// value could not be read.
type WrongFormat struct {
	Reason string
}

// MissingField means the structure was recognized but one required field is
// absent. Field is the highest-priority missing field.
type MissingField struct {
	Field RequiredField
}

func (Valid) Kind() OutcomeKind        { return OutcomeValid }
func (WrongFormat) Kind() OutcomeKind  { return OutcomeWrongFormat }
func (MissingField) Kind() OutcomeKind { return OutcomeMissingField }

func (Valid) sealed()        {}
func (WrongFormat) sealed()  {}
func (MissingField) sealed() {}

// =============================================================================
// REQUIRED FIELDS - Fixed priority order
// =============================================================================

type RequiredField string

const (
	RequiredUnit       RequiredField = "unit"
	RequiredCheckout   RequiredField = "checkout"
	RequiredDuration   RequiredField = "duration"
	RequiredPayment    RequiredField = "payment"
	RequiredCS         RequiredField = "cs"
	RequiredCommission RequiredField = "commission"
)

// FieldPriority is the order in which missing fields are reported. The first
// missing entry is the one surfaced to the user.
var FieldPriority = []RequiredField{
	RequiredUnit,
	RequiredCheckout,
	RequiredDuration,
	RequiredPayment,
	RequiredCS,
	RequiredCommission,
}

// Label is the name staff use for the field in booking messages.
func (f RequiredField) Label() string {
	switch f {
	case RequiredUnit:
		return "Unit"
	case RequiredCheckout:
		return "Cek out"
	case RequiredDuration:
		return "Untuk"
	case RequiredPayment:
		return "Cash/Tf"
	case RequiredCS:
		return "Cs"
	case RequiredCommission:
		return "Komisi"
	}
	return string(f)
}

// =============================================================================
// GUIDANCE - User-facing correction text
// =============================================================================

const exampleBooking = "🟢SKY HOUSE\nUnit      :L3/30N\nCek out: 05:00\nUntuk   : 6 jam\nCash/Tf: tf kr 250\nCs    : dreamy\nKomisi: 50"

// Guidance renders the correction message for an invalid outcome. Valid
// outcomes have no guidance.
func Guidance(o Outcome) string {
	switch v := o.(type) {
	case WrongFormat:
		return fmt.Sprintf("Format booking salah (%s). Yang benar seperti ini:\n\n%s", v.Reason, exampleBooking)
	case MissingField:
		return fmt.Sprintf("%snya mana?", v.Field.Label())
	}
	return ""
}
