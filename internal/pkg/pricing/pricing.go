package pricing

import (
	"time"
)

// Config holds the tariff. Prices are entered the way they appear on the bill,
// IncludesVAT and BaseFeeIncludesVAT say whether that is gross or net.
type Config struct {
	PerKWh             float64 `env:"PER_KWH" envDefault:"0.3265" yaml:"per_kwh"`
	IncludesVAT        bool    `env:"INCLUDES_VAT" envDefault:"true" yaml:"includes_vat"`
	BaseFeePerYear     float64 `env:"BASE_FEE_PER_YEAR" envDefault:"127.51" yaml:"base_fee_per_year"`
	BaseFeeIncludesVAT bool    `env:"BASE_FEE_INCLUDES_VAT" envDefault:"true" yaml:"base_fee_includes_vat"`
	VATEnabled         bool    `env:"VAT_ENABLED" envDefault:"true" yaml:"vat_enabled"`
	VATRatePercent     float64 `env:"VAT_RATE_PERCENT" envDefault:"19" yaml:"vat_rate_percent"`
	Currency           string  `env:"CURRENCY" envDefault:"EUR" yaml:"currency"`
}

type Tariff struct {
	cfg Config
}

func New(cfg Config) *Tariff {
	return &Tariff{cfg: cfg}
}

func (t *Tariff) Currency() string {
	return t.cfg.Currency
}

// VATRate returns the VAT rate as a fraction, zero when VAT is disabled.
func (t *Tariff) VATRate() float64 {
	if !t.cfg.VATEnabled {
		return 0
	}
	return max(0, t.cfg.VATRatePercent) / 100
}

func (t *Tariff) UnitPrice() float64 {
	return t.gross(t.cfg.PerKWh, t.cfg.IncludesVAT)
}

func (t *Tariff) UnitPriceNet() float64 {
	return t.net(t.cfg.PerKWh, t.cfg.IncludesVAT)
}

func (t *Tariff) BaseFeeYearNet() float64 {
	return t.net(t.cfg.BaseFeePerYear, t.cfg.BaseFeeIncludesVAT)
}

func (t *Tariff) BaseFeeYearGross() float64 {
	return t.gross(t.cfg.BaseFeePerYear, t.cfg.BaseFeeIncludesVAT)
}

// BaseFeeDayNet spreads the yearly base fee over a 365 day year.
func (t *Tariff) BaseFeeDayNet() float64 {
	return t.BaseFeeYearNet() / 365
}

// Days counts the calendar days touched by [start, end) in start's location.
// A partial day counts as a whole one.
func Days(start, end time.Time) int {
	if !start.Before(end) {
		return 0
	}
	end = end.In(start.Location())
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	days := 0
	for d := first; d.Before(end); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}

func (t *Tariff) net(p float64, includesVAT bool) float64 {
	r := t.VATRate()
	if r <= 0 || !includesVAT {
		return p
	}
	return p / (1 + r)
}

func (t *Tariff) gross(p float64, includesVAT bool) float64 {
	r := t.VATRate()
	if r <= 0 || includesVAT {
		return p
	}
	return p * (1 + r)
}
