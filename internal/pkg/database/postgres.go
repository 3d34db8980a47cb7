package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

// Database is the postgres sample store. It answers the same queries as the
// CSV store and is fed by the import command.
type Database struct {
	pool    *pgxpool.Pool
	devices map[string]model.Device
	logger  *zap.Logger
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func NewDatabase(pool *pgxpool.Pool, devices []model.Device) *Database {
	return &Database{
		pool:    pool,
		devices: lo.KeyBy(devices, func(d model.Device) string { return d.Key }),
		logger:  zap.L(),
	}
}

func (db *Database) Close() error {
	if db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}
