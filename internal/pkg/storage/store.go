package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrCorruptRecord  = errors.New("corrupt record")
)

// Store reads the per-device CSV series kept under a data directory.
type Store struct {
	dataDir string
	loc     *time.Location
	devices map[string]model.Device
	logger  *zap.Logger
}

func New(dataDir string, loc *time.Location, devices []model.Device) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		dataDir: dataDir,
		loc:     loc,
		devices: lo.KeyBy(devices, func(d model.Device) string { return d.Key }),
		logger:  zap.L(),
	}
}

func (s *Store) Device(deviceID string) (model.Device, bool) {
	d, ok := s.devices[deviceID]
	return d, ok
}

// Query returns the samples of deviceID inside w. Nothing is read until the
// result is ranged over.
func (s *Store) Query(ctx context.Context, deviceID string, w model.Window) (model.SampleSeries, error) {
	if _, ok := s.devices[deviceID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	return &series{ctx: ctx, store: s, deviceID: deviceID, window: w}, nil
}

// Files lists the CSV files holding deviceID's series, sorted by name.
// Files under data/<device>/ win; the flat legacy layout is only used when
// that directory has none.
func (s *Store) Files(deviceID string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dataDir, deviceID, "*.csv"))
	if err != nil {
		return nil, err
	}
	files = lo.Filter(files, func(p string, _ int) bool {
		return !strings.Contains(strings.ToLower(filepath.Base(p)), "phases")
	})

	if len(files) == 0 {
		legacy := filepath.Join(s.dataDir, deviceID+".csv")
		if _, err := os.Stat(legacy); err == nil {
			files = append(files, legacy)
		}
		chunks, err := filepath.Glob(filepath.Join(s.dataDir, "emdata_"+deviceID+"_*.csv"))
		if err != nil {
			return nil, err
		}
		files = append(files, chunks...)
	}

	slices.SortFunc(files, func(a, b string) int {
		return strings.Compare(filepath.Base(a), filepath.Base(b))
	})
	return files, nil
}

type series struct {
	ctx      context.Context
	store    *Store
	deviceID string
	window   model.Window
	corrupt  int
	err      error
}

func (r *series) Corrupt() int {
	return r.corrupt
}

func (r *series) Err() error {
	return r.err
}

// Samples reads every file of the device, keeps the rows inside the window
// and yields them in timestamp order. Each call starts a fresh pass.
func (r *series) Samples() iter.Seq[model.Sample] {
	return func(yield func(model.Sample) bool) {
		r.corrupt = 0
		r.err = nil
		files, err := r.store.Files(r.deviceID)
		if err != nil {
			r.err = fmt.Errorf("list files of %s: %w", r.deviceID, err)
			r.store.logger.Error("failed to list device files", zap.String("device", r.deviceID), zap.Error(err))
			return
		}

		var samples []model.Sample
		for _, path := range files {
			if err := r.ctx.Err(); err != nil {
				r.err = err
				return
			}
			read, corrupt, err := r.store.readFile(path, r.deviceID, r.window)
			r.corrupt += corrupt
			if err != nil {
				r.store.logger.Warn("skipping unreadable csv", zap.String("device", r.deviceID), zap.String("file", path), zap.Error(err))
				continue
			}
			samples = append(samples, read...)
		}
		if r.corrupt > 0 {
			r.store.logger.Warn("skipped corrupt rows", zap.String("device", r.deviceID), zap.Int("rows", r.corrupt), zap.Error(ErrCorruptRecord))
		}

		slices.SortStableFunc(samples, func(a, b model.Sample) int {
			return a.At.Time.Compare(b.At.Time)
		})
		for _, sample := range samples {
			if !yield(sample) {
				return
			}
		}
	}
}

func (s *Store) readFile(path, deviceID string, w model.Window) ([]model.Sample, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	comma, err := sniffDelimiter(f)
	if err != nil {
		return nil, 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}

	reader := csv.NewReader(f)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, err
	}
	cols, err := newColumns(slices.Clone(header))
	if err != nil {
		return nil, 0, err
	}

	var (
		samples []model.Sample
		corrupt int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				corrupt++
				s.logger.Debug("corrupt row", zap.String("file", path), zap.Error(fmt.Errorf("%w: %w", ErrCorruptRecord, err)))
				continue
			}
			return samples, corrupt, err
		}
		if isBlank(record) {
			continue
		}

		sample, err := cols.sample(deviceID, record, s.loc)
		if err != nil {
			corrupt++
			line, _ := reader.FieldPos(0)
			s.logger.Debug("corrupt row", zap.String("file", path), zap.Int("line", line), zap.Error(fmt.Errorf("%w: %w", ErrCorruptRecord, err)))
			continue
		}
		if w.Contains(sample.At.Time) {
			samples = append(samples, sample)
		}
	}
	return samples, corrupt, nil
}

// sniffDelimiter prefers ',' and falls back to ';' when only the latter
// yields a header with a timestamp column.
func sniffDelimiter(r io.Reader) (rune, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return 0, errors.New("empty file")
	}
	if findTimestampColumn(strings.Split(line, ",")) != absent {
		return ',', nil
	}
	if findTimestampColumn(strings.Split(line, ";")) != absent {
		return ';', nil
	}
	return ',', nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
