package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/casebook/internal/apperr"
)

// itemFunc processes item i. It returns a non-nil error only when the batch
// must stop; per-item failures are recorded by the function itself.
type itemFunc func(ctx context.Context, i int) error

// forEach runs fn for every index in [0, n) on the worker pool. A panic in fn
// is recovered and handed to onPanic so it stays confined to its item. The
// first systemic error cancels the remaining items and is returned.
func (e *Engine) forEach(ctx context.Context, op string, n int, fn itemFunc, onPanic func(i int, msg string)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					msg := fmt.Sprintf("panic: %v", r)
					e.logger.Error("pipeline: item panicked",
						slog.String("operation", op),
						slog.Int("index", i),
						slog.String("panic", fmt.Sprint(r)))
					onPanic(i, msg)
					err = nil
				}
			}()
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Systemic("pipeline: "+op, err)
	}
	return nil
}
