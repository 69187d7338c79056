/*
Package export ships report data out of the chat: CSV files on disk, CSV
objects in Google Cloud Storage and rows in BigQuery.

Every exporter implements report.Exporter. Names and row ids are derived from
the window and record ids only, so re-exporting the same window overwrites
the previous object instead of adding a second copy.

SEE ALSO:
  - report/publisher.go: runs exporters after rendering
*/
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/report"
)

// Header is the CSV column order.
var Header = []string{
	"business_window", "apartment", "unit", "checkout_time", "duration_hours",
	"payment_method", "amount", "commission", "net_amount", "cs_name",
	"promotional", "status", "date_only", "source_message_id", "created_at",
}

// WriteCSV writes every record of s, grouped by apartment in report order.
func WriteCSV(w io.Writer, s report.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, g := range s.Apartments {
		for _, r := range g.Records {
			if err := cw.Write(csvRow(s.Window, r)); err != nil {
				return fmt.Errorf("write row %s: %w", r.ID, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(w generic.Window, r generic.TransactionRecord) []string {
	return []string{
		w.Label,
		r.Apartment,
		r.Unit,
		r.CheckoutTime,
		r.DurationHours.String(),
		string(r.PaymentMethod),
		r.Amount.StringFixed(0),
		r.Commission.StringFixed(0),
		r.Amount.Sub(r.Commission).StringFixed(0),
		r.CSName,
		strconv.FormatBool(r.Promotional),
		string(r.Status),
		r.DateOnly,
		string(r.SourceMessageID),
		r.CreatedAt.Format(time.RFC3339),
	}
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// ObjectName is the deterministic file name for a summary:
// bookings_<start>_<end>[_<apartment>].csv with dates as YYYYMMDD.
func ObjectName(s report.Summary) string {
	name := fmt.Sprintf("bookings_%s_%s",
		s.Window.Start.Format("20060102"), s.Window.End.Format("20060102"))
	if s.Apartment != "" {
		slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(s.Apartment), "-"), "-")
		name += "_" + slug
	}
	return name + ".csv"
}
