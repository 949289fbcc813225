package cron

import "context"

// maxPurgeBatches bounds one run; a larger backlog is worked off over
// later ticks.
const maxPurgeBatches = 20

// purgeStep removes one batch and reports whether a full batch was removed.
type purgeStep func(ctx context.Context) (removed int64, full bool, err error)

// purge repeats step until a short batch, an error, or the batch budget.
func purge(ctx context.Context, step purgeStep) (int64, error) {
	var total int64
	for range maxPurgeBatches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		removed, full, err := step(ctx)
		total += removed
		if err != nil || !full {
			return total, err
		}
	}
	return total, nil
}
