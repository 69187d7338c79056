package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/export"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/report"
)

var wib = time.FixedZone("WIB", 7*60*60)

func sampleSummary(apartment string) report.Summary {
	created := time.Date(2025, time.July, 30, 15, 0, 0, 0, wib)
	rec := generic.TransactionRecord{
		ID:              "tx-1",
		SourceMessageID: "m1",
		Booking: generic.Booking{
			Apartment:     "SKY HOUSE BSD",
			Unit:          "A-1",
			CheckoutTime:  "14:00",
			DurationHours: decimal.RequireFromString("1.5"),
			PaymentMethod: generic.PaymentCash,
			Amount:        generic.Rupiah(250000),
			Commission:    generic.Rupiah(50000),
			CSName:        "Amel",
			DateOnly:      "2025-07-30",
		}.WithNet(),
		Status:    generic.StatusActive,
		CreatedAt: created,
		UpdatedAt: created,
	}
	return report.Aggregate([]generic.TransactionRecord{rec}, report.Options{
		Window:    generic.BusinessDayWindow(created, wib),
		Apartment: apartment,
	})
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "bookings_20250730_20250731.csv", export.ObjectName(sampleSummary("")))
	assert.Equal(t, "bookings_20250730_20250731_sky-house-bsd.csv", export.ObjectName(sampleSummary("SKY HOUSE BSD")))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, sampleSummary("")))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, export.Header, rows[0])
	assert.Equal(t, []string{
		"30/07/2025", "SKY HOUSE BSD", "A-1", "14:00", "1.5",
		"cash", "250000", "50000", "200000", "Amel",
		"false", "active", "2025-07-30", "m1", "2025-07-30T15:00:00+07:00",
	}, rows[1])
}

func TestFileExporter_ReexportOverwrites(t *testing.T) {
	// GIVEN: An export directory
	dir := filepath.Join(t.TempDir(), "exports")
	e := export.NewFileExporter(dir)

	// WHEN: Exporting the same window twice
	first, err := e.Export(context.Background(), sampleSummary(""))
	require.NoError(t, err)
	second, err := e.Export(context.Background(), sampleSummary(""))
	require.NoError(t, err)

	// THEN: One file at a deterministic path, no temp files left behind
	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join(dir, "bookings_20250730_20250731.csv"), first)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SKY HOUSE BSD,A-1")
	assert.Equal(t, "file", e.Name())
}

func TestRowsFor_UsesRecordIDAsInsertID(t *testing.T) {
	exported := time.Date(2025, time.July, 31, 12, 0, 0, 0, wib)

	rows := export.RowsFor(sampleSummary(""), exported)

	require.Len(t, rows, 1)
	assert.Equal(t, "tx-1", rows[0].InsertID)
	row, ok := rows[0].Struct.(*export.BookingRow)
	require.True(t, ok)
	assert.Equal(t, int64(250000), row.Amount)
	assert.Equal(t, int64(200000), row.NetAmount)
	assert.Equal(t, 1.5, row.DurationHours)
	assert.True(t, row.DateOnly.Valid)
	assert.Equal(t, "2025-07-30", row.DateOnly.StringVal)
	assert.Equal(t, exported, row.ExportedAt)
}

func TestRowsFor_EmptySummary(t *testing.T) {
	assert.Empty(t, export.RowsFor(report.Summary{}, time.Now()))
}
