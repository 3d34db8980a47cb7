package contxt

import (
	"context"
	"os"
	"time"
)

// NewContext derives a context for one background job. CONTEXT_TEST disables
// the deadline so tests can step through jobs without racing the clock.
func NewContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if os.Getenv("CONTEXT_TEST") != "" {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
