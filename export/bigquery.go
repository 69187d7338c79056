package export

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/report"
)

// BookingRow mirrors one record in the warehouse table.
type BookingRow struct {
	TransactionID   string                 `bigquery:"transaction_id"`
	SourceMessageID string                 `bigquery:"source_message_id"`
	Apartment       string                 `bigquery:"apartment"`
	Unit            string                 `bigquery:"unit"`
	CheckoutTime    string                 `bigquery:"checkout_time"`
	DurationHours   float64                `bigquery:"duration_hours"`
	PaymentMethod   string                 `bigquery:"payment_method"`
	Amount          int64                  `bigquery:"amount"`
	Commission      int64                  `bigquery:"commission"`
	NetAmount       int64                  `bigquery:"net_amount"`
	CSName          string                 `bigquery:"cs_name"`
	Promotional     bool                   `bigquery:"promotional"`
	Status          string                 `bigquery:"status"`
	DateOnly        bigquery.NullString    `bigquery:"date_only"` // NULLABLE
	CreatedAt       time.Time              `bigquery:"created_at"`
	UpdatedAt       bigquery.NullTimestamp `bigquery:"updated_at"` // NULLABLE
	ExportedAt      time.Time              `bigquery:"exported_at"`
}

// BigQueryExporter streams records into dataset.table.
type BigQueryExporter struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
	now     func() time.Time
}

func NewBigQueryExporter(ctx context.Context, project, dataset, table, credentialsFile string) (*BigQueryExporter, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &BigQueryExporter{client: client, project: project, dataset: dataset, table: table, now: time.Now}, nil
}

func (e *BigQueryExporter) Name() string { return "bigquery" }

// Export inserts one row per record. Record ids are the insert ids, so a
// repeated export within BigQuery's dedup window is collapsed.
func (e *BigQueryExporter) Export(ctx context.Context, s report.Summary) (string, error) {
	savers := RowsFor(s, e.now())
	if len(savers) == 0 {
		return "", nil
	}
	inserter := e.client.DatasetInProject(e.project, e.dataset).Table(e.table).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return "", fmt.Errorf("insert booking rows: %w", err)
	}
	return fmt.Sprintf("%s.%s.%s (%d rows)", e.project, e.dataset, e.table, len(savers)), nil
}

func (e *BigQueryExporter) Close() error { return e.client.Close() }

// RowsFor converts a summary into insertable rows keyed by record id.
func RowsFor(s report.Summary, exportedAt time.Time) []*bigquery.StructSaver {
	var out []*bigquery.StructSaver
	for _, g := range s.Apartments {
		for _, r := range g.Records {
			out = append(out, &bigquery.StructSaver{
				Struct:   toRow(r, exportedAt),
				InsertID: string(r.ID),
			})
		}
	}
	return out
}

func toRow(r generic.TransactionRecord, exportedAt time.Time) *BookingRow {
	hours, _ := r.DurationHours.Float64()
	row := &BookingRow{
		TransactionID:   string(r.ID),
		SourceMessageID: string(r.SourceMessageID),
		Apartment:       r.Apartment,
		Unit:            r.Unit,
		CheckoutTime:    r.CheckoutTime,
		DurationHours:   hours,
		PaymentMethod:   string(r.PaymentMethod),
		Amount:          r.Amount.IntPart(),
		Commission:      r.Commission.IntPart(),
		NetAmount:       r.Amount.Sub(r.Commission).IntPart(),
		CSName:          r.CSName,
		Promotional:     r.Promotional,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt,
		ExportedAt:      exportedAt,
	}
	if r.DateOnly != "" {
		row.DateOnly = bigquery.NullString{StringVal: r.DateOnly, Valid: true}
	}
	if !r.UpdatedAt.IsZero() {
		row.UpdatedAt = bigquery.NullTimestamp{Timestamp: r.UpdatedAt, Valid: true}
	}
	return row
}
