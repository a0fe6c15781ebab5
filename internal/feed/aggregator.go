// Package feed implements incremental collection over infinite-scroll lists.
// The UI only renders a window of items at a time; the aggregator scrolls,
// re-reads the visible window, and merges new items until it has enough or
// the list stops yielding.
package feed

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Item is one collected entry: a stable identity key plus its value. Keys
// drive deduplication across overlapping windows.
type Item[T any] struct {
	Key   string
	Value T
}

// Source is one scrollable list. Visible reads the currently rendered items
// in display order; Advance scrolls the window forward and settles.
type Source[T any] interface {
	Visible(ctx context.Context) ([]Item[T], error)
	Advance(ctx context.Context) error
}

// Params bound a collection run. Target <= 0 means "collect until the list
// runs dry". StallLimit is the number of consecutive advances allowed to
// yield nothing new before the list is considered exhausted.
type Params struct {
	Target     int
	StallLimit int
}

// Collect scrolls src until Target distinct items are gathered, the list is
// exhausted, or ctx is done. Items keep first-seen order, duplicates are
// dropped, and the result never exceeds Target when one is set.
func Collect[T any](ctx context.Context, src Source[T], p Params, logger *zap.Logger) ([]T, error) {
	if p.StallLimit <= 0 {
		p.StallLimit = 3
	}

	seen := make(map[string]struct{})
	var collected []T

	merge := func() (int, error) {
		visible, err := src.Visible(ctx)
		if err != nil {
			return 0, err
		}
		added := 0
		for _, item := range visible {
			if _, dup := seen[item.Key]; dup {
				continue
			}
			seen[item.Key] = struct{}{}
			collected = append(collected, item.Value)
			added++
			if p.Target > 0 && len(collected) == p.Target {
				break
			}
		}
		return added, nil
	}

	if _, err := merge(); err != nil {
		return nil, fmt.Errorf("read initial window: %w", err)
	}

	stalls := 0
	for (p.Target <= 0 || len(collected) < p.Target) && stalls < p.StallLimit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := src.Advance(ctx); err != nil {
			return nil, fmt.Errorf("advance window: %w", err)
		}
		added, err := merge()
		if err != nil {
			return nil, fmt.Errorf("read window: %w", err)
		}
		if added == 0 {
			stalls++
		} else {
			stalls = 0
		}
	}

	if p.Target > 0 && len(collected) < p.Target {
		logger.Debug("List exhausted before reaching target.",
			zap.Int("collected", len(collected)), zap.Int("target", p.Target))
	}
	return collected, nil
}

// funcSource adapts a pair of closures into a Source. Handy for lists whose
// read and scroll steps are built inline.
type funcSource[T any] struct {
	visible func(ctx context.Context) ([]Item[T], error)
	advance func(ctx context.Context) error
}

func (s funcSource[T]) Visible(ctx context.Context) ([]Item[T], error) { return s.visible(ctx) }
func (s funcSource[T]) Advance(ctx context.Context) error              { return s.advance(ctx) }

// NewSource wraps visible/advance closures as a Source.
func NewSource[T any](visible func(ctx context.Context) ([]Item[T], error), advance func(ctx context.Context) error) Source[T] {
	return funcSource[T]{visible: visible, advance: advance}
}
