package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/bucket"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/energy"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/storage"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/summary"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/window"
)

// SampleStore is satisfied by both the CSV store and the postgres store.
type SampleStore interface {
	Query(ctx context.Context, deviceID string, w model.Window) (model.SampleSeries, error)
}

type PriceSource interface {
	UnitPrice() float64
	Currency() string
}

type Engine struct {
	store       SampleStore
	devices     []model.Device
	prices      PriceSource
	deriver     *energy.Deriver
	loc         *time.Location
	concurrency int
	logger      *zap.Logger
}

type Option func(*Engine)

func WithMaxGap(d time.Duration) Option {
	return func(e *Engine) {
		e.deriver = energy.NewDeriver(d)
	}
}

func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func New(store SampleStore, devices []model.Device, prices PriceSource, loc *time.Location, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		devices:     devices,
		prices:      prices,
		deriver:     energy.NewDeriver(energy.DefaultMaxGap),
		loc:         loc,
		concurrency: 4,
		logger:      zap.L(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Devices() []model.Device {
	return slices.Clone(e.devices)
}

func (e *Engine) Device(deviceID string) (model.Device, bool) {
	return lo.Find(e.devices, func(d model.Device) bool {
		return d.Key == deviceID
	})
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Resolve turns spec into an absolute window in the engine's zone.
func (e *Engine) Resolve(spec window.Spec, ref time.Time) (model.Window, error) {
	return window.Resolve(spec, ref, e.loc)
}

// Summarize runs the whole pipeline for one device. Every consumer (HTTP,
// notifications, exports) goes through here.
func (e *Engine) Summarize(ctx context.Context, deviceID string, spec window.Spec, width bucket.Width, ref time.Time) (model.DeviceSummary, error) {
	device, ok := e.Device(deviceID)
	if !ok {
		return model.DeviceSummary{}, fmt.Errorf("%w: %q", storage.ErrDeviceNotFound, deviceID)
	}
	w, err := e.Resolve(spec, ref)
	if err != nil {
		return model.DeviceSummary{}, err
	}

	series, err := e.store.Query(ctx, deviceID, w)
	if err != nil {
		return model.DeviceSummary{}, err
	}
	samples := slices.Collect(series.Samples())
	if err := series.Err(); err != nil {
		return model.DeviceSummary{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.DeviceSummary{}, err
	}

	annotated, stats := e.deriver.Derive(samples)
	buckets, dropped := bucket.Bucketize(annotated, w, width)

	var price float64
	var currency string
	if e.prices != nil {
		price = e.prices.UnitPrice()
		currency = e.prices.Currency()
	}
	s, err := summary.Render(deviceID, buckets, price)
	if err != nil {
		return model.DeviceSummary{}, err
	}
	s.DeviceName = device.DisplayName()
	s.Window = w
	s.Width = width
	s.Currency = currency
	s.Diagnostics = model.Diagnostics{
		CorruptRows:   series.Corrupt(),
		Duplicates:    stats.Duplicates,
		CounterResets: stats.CounterResets,
		GapsSkipped:   stats.GapsSkipped,
		OutOfWindow:   dropped,
		Samples:       len(samples),
	}

	if !s.Diagnostics.Clean() {
		e.logger.Warn("data quality issues in summary",
			zap.String("device", deviceID),
			zap.Stringer("window", spec),
			zap.Any("diagnostics", s.Diagnostics),
		)
	}
	e.logger.Debug("summary computed",
		zap.String("device", deviceID),
		zap.Time("start", w.Start),
		zap.Time("end", w.End),
		zap.Float64("total_kwh", s.TotalKWh),
		zap.Int("samples", len(samples)),
	)
	return s, nil
}

// SummarizeAll summarizes every configured device, in configuration order.
func (e *Engine) SummarizeAll(ctx context.Context, spec window.Spec, width bucket.Width, ref time.Time) ([]model.DeviceSummary, error) {
	out := make([]model.DeviceSummary, len(e.devices))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.concurrency)
	for i, d := range e.devices {
		eg.Go(func() error {
			s, err := e.Summarize(ctx, d.Key, spec, width, ref)
			if err != nil {
				return fmt.Errorf("summarize %s: %w", d.Key, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
