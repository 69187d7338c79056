/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Money is rendered as
  decimal strings so clients never see binary floating point.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Reports:       ReportResponse, SummaryDTO, TotalsDTO, ApartmentDTO
  Transactions:  TransactionDTO
  Admin:         ResendRequest, PublicationDTO, BackfillStartedResponse, ConfigDTO
  Schedule:      ScheduleResponse

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - report/aggregate.go: Summary
*/
package api

import (
	"time"

	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/report"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type AcceptedResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type WindowDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
	Kind  string    `json:"kind"`
}

type TotalsDTO struct {
	Count      int    `json:"count"`
	Amount     string `json:"amount"`
	Commission string `json:"commission"`
	Net        string `json:"net"`
}

type ApartmentDTO struct {
	Apartment string               `json:"apartment"`
	Totals    TotalsDTO            `json:"totals"`
	Cash      TotalsDTO            `json:"cash"`
	ByPayment map[string]TotalsDTO `json:"byPayment"`
}

type SummaryDTO struct {
	Window     WindowDTO                 `json:"window"`
	Apartment  string                    `json:"apartment,omitempty"`
	Grand      TotalsDTO                 `json:"grand"`
	Cash       TotalsDTO                 `json:"cash"`
	ByCS       map[string]TotalsDTO      `json:"byCs"`
	ByPayment  map[string]TotalsDTO      `json:"byPayment"`
	Apartments []ApartmentDTO            `json:"apartments"`
	CrossTab   map[string]map[string]int `json:"crossTab"`
}

type ReportResponse struct {
	Summary SummaryDTO       `json:"summary"`
	Text    string           `json:"text"`
	Records []TransactionDTO `json:"records,omitempty"`
}

// TransactionDTO represents a stored booking in API responses.
type TransactionDTO struct {
	ID              string    `json:"id"`
	SourceMessageID string    `json:"sourceMessageId"`
	ChatID          string    `json:"chatId"`
	Apartment       string    `json:"apartment"`
	Unit            string    `json:"unit"`
	CheckoutTime    string    `json:"checkoutTime"`
	DurationHours   string    `json:"durationHours"`
	PaymentMethod   string    `json:"paymentMethod"`
	PaymentDetail   string    `json:"paymentDetail,omitempty"`
	Amount          string    `json:"amount"`
	Commission      string    `json:"commission"`
	NetAmount       string    `json:"netAmount"`
	CSName          string    `json:"csName"`
	Promotional     bool      `json:"promotional"`
	DateOnly        string    `json:"dateOnly"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ResendRequest selects a report: Kind is "daily" (Arg DDMMYYYY) or
// "monthly" (Arg MMYYYY). Empty Arg means the most recent closed period.
type ResendRequest struct {
	Kind string `json:"kind"`
	Arg  string `json:"arg"`
}

type PublicationDTO struct {
	Summary SummaryDTO            `json:"summary"`
	Text    string                `json:"text"`
	Sent    int                   `json:"sent"`
	Exports []report.ExportResult `json:"exports,omitempty"`
}

type BackfillStartedResponse struct {
	RunID  string `json:"runId"`
	Groups int    `json:"groups"`
}

// ConfigDTO is the non-secret part of a loaded config snapshot.
type ConfigDTO struct {
	LoadedAt   time.Time `json:"loadedAt"`
	Timezone   string    `json:"timezone"`
	Groups     int       `json:"groups"`
	Owners     int       `json:"owners"`
	Apartments []string  `json:"apartments"`
}

type ScheduleResponse struct {
	Runs    []ScheduleRun        `json:"runs"`
	NextRun map[string]time.Time `json:"nextRun"`
}

// =============================================================================
// CONVERSION FUNCTIONS
// =============================================================================

func toWindowDTO(w generic.Window) WindowDTO {
	return WindowDTO{Start: w.Start, End: w.End, Label: w.Label, Kind: string(w.Kind)}
}

func toTotalsDTO(t report.Totals) TotalsDTO {
	return TotalsDTO{
		Count:      t.Count,
		Amount:     t.Amount.String(),
		Commission: t.Commission.String(),
		Net:        t.Net.String(),
	}
}

func toTotalsMap(m map[string]report.Totals) map[string]TotalsDTO {
	out := make(map[string]TotalsDTO, len(m))
	for k, v := range m {
		out[k] = toTotalsDTO(v)
	}
	return out
}

func toSummaryDTO(s report.Summary) SummaryDTO {
	dto := SummaryDTO{
		Window:     toWindowDTO(s.Window),
		Apartment:  s.Apartment,
		Grand:      toTotalsDTO(s.Grand),
		Cash:       toTotalsDTO(s.Cash),
		ByCS:       toTotalsMap(s.ByCS),
		ByPayment:  toTotalsMap(s.ByPayment),
		Apartments: make([]ApartmentDTO, 0, len(s.Apartments)),
		CrossTab:   s.CrossTab,
	}
	if dto.CrossTab == nil {
		dto.CrossTab = map[string]map[string]int{}
	}
	for _, g := range s.Apartments {
		dto.Apartments = append(dto.Apartments, ApartmentDTO{
			Apartment: g.Apartment,
			Totals:    toTotalsDTO(g.Totals),
			Cash:      toTotalsDTO(g.Cash),
			ByPayment: toTotalsMap(g.ByPayment),
		})
	}
	return dto
}

func toTransactionDTO(r generic.TransactionRecord) TransactionDTO {
	return TransactionDTO{
		ID:              string(r.ID),
		SourceMessageID: string(r.SourceMessageID),
		ChatID:          string(r.ChatID),
		Apartment:       r.Apartment,
		Unit:            r.Unit,
		CheckoutTime:    r.CheckoutTime,
		DurationHours:   r.DurationHours.String(),
		PaymentMethod:   string(r.PaymentMethod),
		PaymentDetail:   r.PaymentDetail,
		Amount:          r.Amount.String(),
		Commission:      r.Commission.String(),
		NetAmount:       r.NetAmount.String(),
		CSName:          r.CSName,
		Promotional:     r.Promotional,
		DateOnly:        r.DateOnly,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// toTransactionDTOs flattens a summary's records in apartment order.
func toTransactionDTOs(s report.Summary) []TransactionDTO {
	out := []TransactionDTO{}
	for _, g := range s.Apartments {
		for _, r := range g.Records {
			out = append(out, toTransactionDTO(r))
		}
	}
	return out
}

func toPublicationDTO(p report.Publication) PublicationDTO {
	return PublicationDTO{
		Summary: toSummaryDTO(p.Summary),
		Text:    p.Text,
		Sent:    p.Sent,
		Exports: p.Exports,
	}
}

func toConfigDTO(s *config.Snapshot) ConfigDTO {
	return ConfigDTO{
		LoadedAt:   s.LoadedAt,
		Timezone:   s.Location.String(),
		Groups:     len(s.EnabledGroups()),
		Owners:     len(s.Owners),
		Apartments: s.ApartmentNames(),
	}
}
