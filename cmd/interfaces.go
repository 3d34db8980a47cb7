package cmd

import (
	"context"
	"time"
)

// Runner is a long running component started by serve. Run blocks until ctx
// is done.
type Runner interface {
	Run(ctx context.Context) error
}

// Cleaner prunes stored samples older than cutoff.
type Cleaner interface {
	Cleanup(ctx context.Context, cutoff time.Time) error
}
