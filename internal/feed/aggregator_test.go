package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedSource replays a fixed sequence of windows, one per Advance. The
// last window repeats once the script is exhausted, like a page that stopped
// loading new content.
type scriptedSource struct {
	windows  [][]string
	pos      int
	advances int
}

func (s *scriptedSource) Visible(context.Context) ([]Item[string], error) {
	idx := s.pos
	if idx >= len(s.windows) {
		idx = len(s.windows) - 1
	}
	items := make([]Item[string], 0, len(s.windows[idx]))
	for _, key := range s.windows[idx] {
		items = append(items, Item[string]{Key: key, Value: "item-" + key})
	}
	return items, nil
}

func (s *scriptedSource) Advance(context.Context) error {
	s.advances++
	if s.pos < len(s.windows)-1 {
		s.pos++
	}
	return nil
}

func TestCollectDeduplicatesOverlappingWindows(t *testing.T) {
	src := &scriptedSource{windows: [][]string{
		{"a", "b", "c"},
		{"b", "c", "d"},
		{"d", "e", "f"},
	}}

	got, err := Collect[string](context.Background(), src, Params{Target: 6, StallLimit: 3}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"item-a", "item-b", "item-c", "item-d", "item-e", "item-f"}, got)
}

func TestCollectNeverExceedsTarget(t *testing.T) {
	src := &scriptedSource{windows: [][]string{
		{"a", "b", "c", "d", "e"},
	}}

	got, err := Collect[string](context.Background(), src, Params{Target: 3, StallLimit: 3}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"item-a", "item-b", "item-c"}, got)
	assert.Zero(t, src.advances)
}

func TestCollectTerminatesOnStall(t *testing.T) {
	// The list runs dry at two items; the same window repeats forever.
	src := &scriptedSource{windows: [][]string{
		{"a", "b"},
	}}

	got, err := Collect[string](context.Background(), src, Params{Target: 10, StallLimit: 3}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 3, src.advances)
}

func TestCollectStallCounterResetsOnProgress(t *testing.T) {
	src := &scriptedSource{windows: [][]string{
		{"a"},
		{"a"}, // stall 1
		{"a"}, // stall 2
		{"b"}, // progress resets the counter
		{"b"},
		{"b"},
		{"b"}, // three fresh stalls end the run
	}}

	got, err := Collect[string](context.Background(), src, Params{Target: 10, StallLimit: 3}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"item-a", "item-b"}, got)
	assert.Equal(t, 6, src.advances)
}

func TestCollectWithoutTargetRunsUntilStall(t *testing.T) {
	src := &scriptedSource{windows: [][]string{
		{"a", "b"},
		{"c"},
		{"c"},
	}}

	got, err := Collect[string](context.Background(), src, Params{StallLimit: 3}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"item-a", "item-b", "item-c"}, got)
	// One productive advance plus three stalled ones.
	assert.Equal(t, 4, src.advances)
}

func TestCollectPropagatesReadError(t *testing.T) {
	boom := errors.New("boom")
	src := NewSource(
		func(context.Context) ([]Item[string], error) { return nil, boom },
		func(context.Context) error { return nil },
	)

	_, err := Collect[string](context.Background(), src, Params{Target: 5}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCollectPropagatesAdvanceError(t *testing.T) {
	boom := errors.New("scroll failed")
	src := NewSource(
		func(context.Context) ([]Item[string], error) {
			return []Item[string]{{Key: "a", Value: "a"}}, nil
		},
		func(context.Context) error { return boom },
	)

	_, err := Collect[string](context.Background(), src, Params{Target: 5}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCollectHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedSource{windows: [][]string{{"a"}, {"b"}}}
	_, err := Collect[string](ctx, src, Params{Target: 5}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
