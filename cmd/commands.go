package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/config"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/export"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/pricing"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/storage"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/summary"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/window"
)

const importBatchSize = 5000

var (
	errUnknownFormat = errors.New("unknown output format")
	errNoDatabase    = errors.New("import needs DATABASE_URL")
)

// SummaryCommand prints the summary of one or every device.
func SummaryCommand(c *cli.Context) error {
	cfg, _, restore, err := setup(c, "stderr")
	if err != nil {
		return err
	}
	defer restore()

	detail := model.DetailLevel(c.String("detail"))
	if !lo.Contains([]model.DetailLevel{model.DetailSimple, model.DetailDetailed}, detail) {
		return fmt.Errorf("unknown detail level %q", detail)
	}
	spec, width, err := parseWindow(c, cfg)
	if err != nil {
		return err
	}

	store, db, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	eng := newEngine(cfg, store, pricing.New(cfg.Pricing))

	var summaries []model.DeviceSummary
	if id := c.String("device"); id != "" {
		s, err := eng.Summarize(c.Context, id, spec, width, time.Now())
		if err != nil {
			return err
		}
		summaries = append(summaries, s)
	} else {
		summaries, err = eng.SummarizeAll(c.Context, spec, width, time.Now())
		if err != nil {
			return err
		}
	}
	return writeSummaries(c.App.Writer, summaries, c.String("format"), summary.Options{Detail: detail})
}

// ExportCommand writes the bucket table or the invoice of one device.
func ExportCommand(c *cli.Context) error {
	cfg, _, restore, err := setup(c, "stderr")
	if err != nil {
		return err
	}
	defer restore()

	spec, width, err := parseWindow(c, cfg)
	if err != nil {
		return err
	}
	store, db, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	tariff := pricing.New(cfg.Pricing)
	s, err := newEngine(cfg, store, tariff).Summarize(c.Context, c.String("device"), spec, width, time.Now())
	if err != nil {
		return err
	}

	out := c.App.Writer
	if path := c.String("out"); path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch c.String("format") {
	case "csv":
		return export.WriteCSV(out, s)
	case "invoice":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(export.NewInvoice(s, tariff))
	}
	return fmt.Errorf("%w: %q", errUnknownFormat, c.String("format"))
}

// ImportCommand copies the CSV series into the postgres store.
func ImportCommand(c *cli.Context) error {
	cfg, logger, restore, err := setup(c, "stderr")
	if err != nil {
		return err
	}
	defer restore()

	if cfg.DatabaseURL == "" {
		return errNoDatabase
	}
	devices, err := selectDevices(cfg.Devices, c.String("device"))
	if err != nil {
		return err
	}
	spec, err := window.ParseSpec(c.String("window"), cfg.Location())
	if err != nil {
		return err
	}
	w, err := window.Resolve(spec, time.Now(), cfg.Location())
	if err != nil {
		return err
	}

	db, err := openDatabase(c.Context, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	src := storage.New(cfg.DataDir, cfg.Location(), cfg.Devices)
	for _, d := range devices {
		series, err := src.Query(c.Context, d.Key, w)
		if err != nil {
			return err
		}
		n, err := importSeries(c.Context, db, series, importBatchSize)
		if err != nil {
			return fmt.Errorf("import %s: %w", d.Key, err)
		}
		logger.Info("imported samples", zap.String("device", d.Key), zap.Int("rows", n), zap.Int("corrupt", series.Corrupt()))
	}
	return nil
}

type sampleWriter interface {
	WriteSamples(ctx context.Context, samples []model.Sample) error
}

// importSeries streams series into dst in batches of size.
func importSeries(ctx context.Context, dst sampleWriter, series model.SampleSeries, size int) (int, error) {
	var (
		batch = make([]model.Sample, 0, size)
		total int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := dst.WriteSamples(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}
	for s := range series.Samples() {
		batch = append(batch, s)
		if len(batch) == size {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := series.Err(); err != nil {
		return total, err
	}
	if err := ctx.Err(); err != nil {
		return total, err
	}
	return total, flush()
}

func selectDevices(devices []model.Device, key string) ([]model.Device, error) {
	if key == "" {
		return devices, nil
	}
	d, ok := lo.Find(devices, func(d model.Device) bool { return d.Key == key })
	if !ok {
		return nil, fmt.Errorf("%w: %q", storage.ErrDeviceNotFound, key)
	}
	return []model.Device{d}, nil
}

func parseWindow(c *cli.Context, cfg *config.Config) (window.Spec, model.Width, error) {
	spec, err := window.ParseSpec(c.String("window"), cfg.Location())
	if err != nil {
		return window.Spec{}, "", err
	}
	raw := c.String("bucket")
	if raw == "" {
		return spec, spec.DefaultWidth(), nil
	}
	width, ok := model.ParseWidth(raw)
	if !ok {
		return window.Spec{}, "", fmt.Errorf("%w: unknown bucket %q", window.ErrInvalidWindow, raw)
	}
	return spec, width, nil
}

func writeSummaries(w io.Writer, summaries []model.DeviceSummary, format string, opts summary.Options) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	case "text", "":
		for i, s := range summaries {
			if i > 0 {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w, summary.Text(s, opts)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %q", errUnknownFormat, format)
}
