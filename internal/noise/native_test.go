package noise

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// binaryFixture has five rows given class 0 and five given class 1. Row 4 and
// row 9 are confidently predicted as the other class.
func binaryFixture() Request {
	return Request{
		Labels: []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1},
		Probabilities: [][]float64{
			{0.9, 0.1}, {0.9, 0.1}, {0.9, 0.1}, {0.9, 0.1}, {0.1, 0.9},
			{0.2, 0.8}, {0.2, 0.8}, {0.2, 0.8}, {0.2, 0.8}, {0.85, 0.15},
		},
		SortedIndexMethod: MethodNormalizedMargin,
	}
}

func TestNative_FindsMislabeledRows(t *testing.T) {
	indices, err := NewNative().FindNoiseIndices(context.Background(), binaryFixture())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 9}, indices)
}

func TestNative_CleanDataHasNoNoise(t *testing.T) {
	req := Request{
		Labels:        []int{0, 0, 1, 1},
		Probabilities: [][]float64{{0.9, 0.1}, {0.8, 0.2}, {0.3, 0.7}, {0.1, 0.9}},
	}

	indices, err := NewNative().FindNoiseIndices(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, indices)
}

func TestNative_PruneMethods(t *testing.T) {
	tests := []struct {
		name   string
		prune  string
		perCls []int
		want   []int
	}{
		{name: "noise rate", prune: PruneByNoiseRate, want: []int{4, 9}},
		{name: "by class", prune: PruneByClass, want: []int{4, 9}},
		{name: "by class with explicit counts", prune: PruneByClass, perCls: []int{2, 0}, want: []int{4, 0}},
		{name: "both", prune: PruneBoth, perCls: []int{2, 0}, want: []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := binaryFixture()
			req.PruneMethod = tt.prune
			req.NumToRemovePerClass = tt.perCls

			indices, err := NewNative().FindNoiseIndices(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, indices)
		})
	}
}

func TestNative_MultiLabel(t *testing.T) {
	req := Request{
		MultiLabel:  true,
		MultiLabels: [][]int{{0, 1}, {0, 1}, {2}, {0}},
		Probabilities: [][]float64{
			{0.9, 0.8, 0.1},
			{0.8, 0.9, 0.1},
			{0.1, 0.1, 0.9},
			{0.1, 0.2, 0.9},
		},
	}

	indices, err := NewNative().FindNoiseIndices(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, indices)
}

func TestOrderIndices(t *testing.T) {
	// Row 0 has the smaller margin, row 1 the higher given-label probability.
	base := Request{
		Labels: []int{0, 0},
		Probabilities: [][]float64{
			{0.3, 0.35, 0.35},
			{0.4, 0.6, 0.0},
		},
	}

	byMargin := base
	byMargin.SortedIndexMethod = MethodNormalizedMargin
	indices := []int{0, 1}
	orderIndices(byMargin, indices)
	assert.Equal(t, []int{1, 0}, indices)

	byProb := base
	byProb.SortedIndexMethod = MethodProbGivenLabel
	indices = []int{1, 0}
	orderIndices(byProb, indices)
	assert.Equal(t, []int{0, 1}, indices)
}

func TestOrderIndices_TiesKeepRowOrder(t *testing.T) {
	req := Request{
		Labels:            []int{1, 1, 1},
		Probabilities:     [][]float64{{0.7, 0.3}, {0.7, 0.3}, {0.7, 0.3}},
		SortedIndexMethod: MethodProbGivenLabel,
	}

	indices := []int{2, 0, 1}
	orderIndices(req, indices)
	assert.Equal(t, []int{0, 1, 2}, indices)
}

func TestNormalizedMargin(t *testing.T) {
	assert.InDelta(t, -0.8, normalizedMargin([]float64{0.1, 0.9}, []int{0}), 1e-9)
	assert.InDelta(t, 0.6, normalizedMargin([]float64{0.8, 0.7, 0.1}, []int{0, 1}), 1e-9)
	assert.InDelta(t, 1.0, normalizedMargin([]float64{1.0}, []int{0}), 1e-9)
}

func TestClassThresholds(t *testing.T) {
	thresholds := classThresholds(binaryFixture())
	assert.InDelta(t, 0.74, thresholds[0], 1e-9)
	assert.InDelta(t, 0.67, thresholds[1], 1e-9)

	unused := Request{Labels: []int{0, 0}, Probabilities: [][]float64{{0.6, 0.4}, {0.8, 0.2}}}
	assert.True(t, math.IsInf(classThresholds(unused)[1], 1))
}

func TestNative_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"empty matrix", Request{}},
		{"no columns", Request{Labels: []int{0}, Probabilities: [][]float64{{}}}},
		{"ragged rows", Request{Labels: []int{0, 0}, Probabilities: [][]float64{{0.5, 0.5}, {1.0}}}},
		{"NaN", Request{Labels: []int{0}, Probabilities: [][]float64{{math.NaN(), 0.5}}}},
		{"above one", Request{Labels: []int{0}, Probabilities: [][]float64{{1.5, 0.5}}}},
		{"negative", Request{Labels: []int{0}, Probabilities: [][]float64{{-0.1, 0.5}}}},
		{"label out of range", Request{Labels: []int{2}, Probabilities: [][]float64{{0.5, 0.5}}}},
		{"label count mismatch", Request{Labels: []int{0, 1}, Probabilities: [][]float64{{0.5, 0.5}}}},
		{"multi-label empty set", Request{MultiLabel: true, MultiLabels: [][]int{{}}, Probabilities: [][]float64{{0.5, 0.5}}}},
		{"multi-label out of range", Request{MultiLabel: true, MultiLabels: [][]int{{0, 3}}, Probabilities: [][]float64{{0.5, 0.5}}}},
		{"unknown method", Request{Labels: []int{0}, Probabilities: [][]float64{{0.5, 0.5}}, SortedIndexMethod: "random"}},
		{"unknown prune method", Request{Labels: []int{0}, Probabilities: [][]float64{{0.5, 0.5}}, PruneMethod: "all"}},
		{"frac noise above one", Request{Labels: []int{0}, Probabilities: [][]float64{{0.5, 0.5}}, FracNoise: 2}},
		{"per class count length", Request{Labels: []int{0}, Probabilities: [][]float64{{0.5, 0.5}}, NumToRemovePerClass: []int{1}}},
		{"negative per class count", Request{Labels: []int{0}, Probabilities: [][]float64{{0.5, 0.5}}, NumToRemovePerClass: []int{1, -1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indices, err := NewNative().FindNoiseIndices(context.Background(), tt.req)
			assert.Error(t, err)
			assert.Nil(t, indices)
		})
	}
}

func TestNative_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewNative().FindNoiseIndices(ctx, binaryFixture())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNative_Deterministic(t *testing.T) {
	first, err := NewNative().FindNoiseIndices(context.Background(), binaryFixture())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := NewNative().FindNoiseIndices(context.Background(), binaryFixture())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNative_LogsIgnoredExtra(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	defer func() { log.Logger = prev }()

	req := binaryFixture()
	req.Extra = map[string]any{"seed": 42, "n_jobs": 4}

	indices, err := NewNative().FindNoiseIndices(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 9}, indices)

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"keys":["n_jobs","seed"]`)
}

func TestNative_NoExtraNoLog(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	_, err := NewNative().FindNoiseIndices(context.Background(), binaryFixture())
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
