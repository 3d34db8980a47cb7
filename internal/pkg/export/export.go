package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/money"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/pricing"
)

var header = []string{"bucket_start", "bucket_end", "kwh", "samples", "cost"}

// WriteCSV writes one row per bucket of s. Times are RFC 3339 in the
// summary's zone.
func WriteCSV(w io.Writer, s model.DeviceSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range s.Buckets {
		row := []string{
			b.Start.Format(time.RFC3339),
			b.End.Format(time.RFC3339),
			money.Format(b.KWh, 6),
			fmt.Sprint(b.Count),
			money.Format(b.KWh*s.UnitPrice, 4),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type Tariff interface {
	UnitPriceNet() float64
	BaseFeeDayNet() float64
	VATRate() float64
	Currency() string
}

type Line struct {
	Description  string       `json:"description"`
	Quantity     money.Amount `json:"quantity"`
	Unit         string       `json:"unit"`
	UnitPriceNet money.Amount `json:"unit_price_net"`
	Net          money.Amount `json:"net"`
}

type Invoice struct {
	DeviceID string       `json:"device_id"`
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Currency string       `json:"currency"`
	Lines    []Line       `json:"lines"`
	Net      money.Amount `json:"net"`
	VAT      money.Amount `json:"vat"`
	Gross    money.Amount `json:"gross"`
}

// NewInvoice bills the energy of s plus the base fee for every calendar day
// the window touches. Line totals are rounded to cents before summing.
func NewInvoice(s model.DeviceSummary, t Tariff) Invoice {
	inv := Invoice{
		DeviceID: s.DeviceID,
		Start:    s.Window.Start,
		End:      s.Window.End,
		Currency: t.Currency(),
	}

	kwh := money.FromFloat(s.TotalKWh).Round(3)
	unit := money.FromFloat(t.UnitPriceNet()).Round(4)
	inv.Lines = append(inv.Lines, Line{
		Description:  "Energy",
		Quantity:     kwh,
		Unit:         "kWh",
		UnitPriceNet: unit,
		Net:          kwh.Mul(unit).Round(2),
	})

	if days := pricing.Days(s.Window.Start, s.Window.End); days > 0 && t.BaseFeeDayNet() > 0 {
		qty := money.FromFloat(float64(days))
		fee := money.FromFloat(t.BaseFeeDayNet()).Round(4)
		inv.Lines = append(inv.Lines, Line{
			Description:  fmt.Sprintf("Base fee (%d days)", days),
			Quantity:     qty,
			Unit:         "days",
			UnitPriceNet: fee,
			Net:          qty.Mul(fee).Round(2),
		})
	}

	net := money.FromFloat(0)
	for _, l := range inv.Lines {
		net = net.Add(l.Net)
	}
	inv.Net = net.Round(2)
	inv.VAT = net.Mul(money.FromFloat(t.VATRate())).Round(2)
	inv.Gross = inv.Net.Add(inv.VAT).Round(2)
	return inv
}
