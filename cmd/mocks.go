package cmd

import (
	"context"
	"time"
)

// MockRunner is a Runner backed by a function. The zero value blocks until
// the context is done.
type MockRunner struct {
	RunFunc func(ctx context.Context) error
}

func (m *MockRunner) Run(ctx context.Context) error {
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

// MockCleaner is a Cleaner backed by a function.
type MockCleaner struct {
	CleanupFunc func(ctx context.Context, cutoff time.Time) error
}

func (m *MockCleaner) Cleanup(ctx context.Context, cutoff time.Time) error {
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx, cutoff)
	}
	return nil
}
