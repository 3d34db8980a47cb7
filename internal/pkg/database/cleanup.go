package database

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleanup removes samples recorded before cutoff.
func (db *Database) Cleanup(ctx context.Context, cutoff time.Time) error {
	tag, err := db.pool.Exec(ctx, "DELETE FROM sample WHERE time_stamp < $1", cutoff)
	if err != nil {
		return err
	}
	db.logger.Info("removed old samples", zap.Int64("rows", tag.RowsAffected()), zap.Time("cutoff", cutoff))
	return nil
}
