package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fallback tries sources in order. A source that fails before yielding
// anything is skipped in favour of the next one; once a source has yielded
// an item, Fallback sticks with it.
type Fallback struct {
	sources []Source
	cur     int
	yielded bool
	errs    []error
}

// NewFallback creates a Fallback over sources.
func NewFallback(sources ...Source) *Fallback {
	return &Fallback{sources: sources}
}

// Next implements Source. When every source fails, the error lists each
// failure.
func (f *Fallback) Next(ctx context.Context) (Item, error) {
	for f.cur < len(f.sources) {
		it, err := f.sources[f.cur].Next(ctx)
		switch {
		case err == nil:
			f.yielded = true
			return it, nil
		case errors.Is(err, ErrDone), f.yielded, ctx.Err() != nil:
			return Item{}, err
		}

		zap.L().Warn("source: falling back",
			zap.Int("source", f.cur),
			zap.Error(err),
		)
		f.errs = append(f.errs, fmt.Errorf("source %d: %w", f.cur, err))
		f.cur++
	}
	if len(f.errs) == 0 {
		return Item{}, ErrDone
	}
	return Item{}, eris.Wrap(errors.Join(f.errs...), "source: all sources failed")
}

// Ack forwards to the active source when it tracks items.
func (f *Fallback) Ack(ctx context.Context, it Item, outcome, note string) error {
	if f.cur >= len(f.sources) {
		return nil
	}
	if a, ok := f.sources[f.cur].(Acker); ok {
		return a.Ack(ctx, it, outcome, note)
	}
	return nil
}
