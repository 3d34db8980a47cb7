package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

const upsertSampleSQL = `
	INSERT INTO sample (device_id, time_stamp, source, total_power_w, energy_wh, phases)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (device_id, time_stamp) DO UPDATE SET
		source = EXCLUDED.source,
		total_power_w = EXCLUDED.total_power_w,
		energy_wh = EXCLUDED.energy_wh,
		phases = EXCLUDED.phases;
`

// WriteSamples upserts samples in one transaction. A second row for the same
// device and instant replaces the first.
func (db *Database) WriteSamples(ctx context.Context, samples []model.Sample) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range samples {
		phases := s.Phases
		if phases == nil {
			phases = []model.Phase{}
		}
		batch.Queue(upsertSampleSQL, s.DeviceID, s.At.Time, int16(s.At.Source), s.TotalPowerW, s.EnergyWh, phases)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
