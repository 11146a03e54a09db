package context

import (
	"context"
)

// RunContext identifies one valuation run. Every log line and archive row
// produced while computing a valuation carries the same run ID.
type RunContext struct {
	RunID     string
	CompanyID string
}

type runContextKey struct{}

// WithRun adds RunContext to context.
func WithRun(ctx context.Context, run *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, run)
}

// GetRun returns RunContext from context.
func GetRun(ctx context.Context) *RunContext {
	if v, ok := ctx.Value(runContextKey{}).(*RunContext); ok {
		return v
	}
	return nil
}
