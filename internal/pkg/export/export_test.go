package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/pricing"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/summary"
)

var midnight = time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

func testSummary(t *testing.T) model.DeviceSummary {
	t.Helper()
	s, err := summary.Render("em1", []model.Bucket{
		{Start: midnight, End: midnight.Add(time.Hour), KWh: 0.25, Count: 60},
		{Start: midnight.Add(time.Hour), End: midnight.Add(2 * time.Hour), KWh: 0, Count: 0},
	}, 0.4)
	require.NoError(t, err)
	return s
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testSummary(t)))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"2026-01-30T00:00:00Z", "2026-01-30T01:00:00Z", "0.250000", "60", "0.1000"}, rows[1])
	assert.Equal(t, []string{"2026-01-30T01:00:00Z", "2026-01-30T02:00:00Z", "0.000000", "0", "0.0000"}, rows[2])
}

func TestNewInvoice(t *testing.T) {
	tariff := pricing.New(pricing.Config{
		PerKWh:         0.30,
		BaseFeePerYear: 365,
		VATEnabled:     true,
		VATRatePercent: 19,
		Currency:       "EUR",
	})
	s := model.DeviceSummary{
		DeviceID: "em1",
		Window:   model.Window{Start: midnight, End: midnight.AddDate(0, 0, 2)},
		TotalKWh: 10,
	}

	inv := NewInvoice(s, tariff)

	require.Len(t, inv.Lines, 2)
	assert.Equal(t, "3.00", inv.Lines[0].Net.String())
	assert.Equal(t, "Base fee (2 days)", inv.Lines[1].Description)
	assert.Equal(t, "2.00", inv.Lines[1].Net.String())
	assert.Equal(t, "5.00", inv.Net.String())
	assert.Equal(t, "0.95", inv.VAT.String())
	assert.Equal(t, "5.95", inv.Gross.String())
	assert.Equal(t, "EUR", inv.Currency)
}

func TestNewInvoiceWithoutBaseFee(t *testing.T) {
	tariff := pricing.New(pricing.Config{PerKWh: 0.5, Currency: "EUR"})
	s := model.DeviceSummary{
		Window:   model.Window{Start: midnight, End: midnight.Add(time.Hour)},
		TotalKWh: 1.2345,
	}

	inv := NewInvoice(s, tariff)

	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "1.235", inv.Lines[0].Quantity.String())
	assert.Equal(t, "0.62", inv.Net.String())
	assert.Equal(t, "0.00", inv.VAT.String())
	assert.Equal(t, "0.62", inv.Gross.String())
}
