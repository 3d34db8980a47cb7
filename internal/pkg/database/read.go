package database

import (
	"context"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/storage"
)

const selectSamplesSQL = `
	SELECT time_stamp, source, total_power_w, energy_wh, phases
	FROM sample
	WHERE device_id = $1 AND time_stamp >= $2 AND time_stamp < $3
	ORDER BY time_stamp;
`

// Query returns the samples of deviceID inside w. The rows are fetched when
// the result is ranged over, once per pass.
func (db *Database) Query(ctx context.Context, deviceID string, w model.Window) (model.SampleSeries, error) {
	if _, ok := db.devices[deviceID]; !ok {
		return nil, fmt.Errorf("%w: %q", storage.ErrDeviceNotFound, deviceID)
	}
	return &series{ctx: ctx, db: db, deviceID: deviceID, window: w}, nil
}

type series struct {
	ctx      context.Context
	db       *Database
	deviceID string
	window   model.Window
	corrupt  int
	err      error
}

func (s *series) Corrupt() int {
	return s.corrupt
}

func (s *series) Err() error {
	return s.err
}

func (s *series) Samples() iter.Seq[model.Sample] {
	return func(yield func(model.Sample) bool) {
		s.corrupt = 0
		s.err = nil
		rows, err := s.db.pool.Query(s.ctx, selectSamplesSQL, s.deviceID, s.window.Start, s.window.End)
		if err != nil {
			s.err = fmt.Errorf("query samples of %s: %w", s.deviceID, err)
			s.db.logger.Error("failed to query samples", zap.String("device", s.deviceID), zap.Error(err))
			return
		}
		defer rows.Close()

		loc := s.window.Location()
		for rows.Next() {
			sample, err := scanSample(rows, s.deviceID)
			if err != nil {
				s.corrupt++
				s.db.logger.Debug("corrupt row", zap.String("device", s.deviceID), zap.Error(fmt.Errorf("%w: %w", storage.ErrCorruptRecord, err)))
				continue
			}
			sample.At.Time = sample.At.Time.In(loc)
			if !yield(sample) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			s.err = fmt.Errorf("read samples of %s: %w", s.deviceID, err)
			s.db.logger.Error("failed to read samples", zap.String("device", s.deviceID), zap.Error(err))
		}
		if s.corrupt > 0 {
			s.db.logger.Warn("skipped corrupt rows", zap.String("device", s.deviceID), zap.Int("rows", s.corrupt), zap.Error(storage.ErrCorruptRecord))
		}
	}
}

func scanSample(rows pgx.Rows, deviceID string) (model.Sample, error) {
	var (
		sample model.Sample
		source int16
	)
	if err := rows.Scan(&sample.At.Time, &source, &sample.TotalPowerW, &sample.EnergyWh, &sample.Phases); err != nil {
		return model.Sample{}, err
	}
	sample.DeviceID = deviceID
	sample.At.Source = model.TimestampSource(source)
	return sample, nil
}
