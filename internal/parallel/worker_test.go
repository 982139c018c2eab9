package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		parts int
		want  []Span
	}{
		{"empty", 0, 4, nil},
		{"even", 8, 4, []Span{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{"remainder goes first", 7, 3, []Span{{0, 3}, {3, 5}, {5, 7}}},
		{"more parts than rows", 2, 8, []Span{{0, 1}, {1, 2}}},
		{"zero parts", 3, 0, []Span{{0, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.n, tt.parts))
		})
	}
}

func TestProcessIndexed(t *testing.T) {
	wp := NewWorkerPool(4)
	defer wp.Close()

	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	var calls atomic.Int64
	results := ProcessIndexed(wp, items, func(i, v int) int {
		calls.Add(1)
		return i * v
	})

	require.Len(t, results, 100)
	assert.Equal(t, int64(100), calls.Load())
	for i, r := range results {
		assert.Equal(t, i*i, r)
	}

	assert.Nil(t, ProcessIndexed(wp, []int{}, func(i, v int) int { return v }))
}

func TestSpans(t *testing.T) {
	wp := NewWorkerPool(3)
	defer wp.Close()
	assert.Equal(t, 3, wp.Workers())

	lengths := Spans(wp, 10, func(s Span) int { return s.Len() })
	assert.Equal(t, []int{4, 3, 3}, lengths)

	starts := Spans(wp, 10, func(s Span) int { return s.Start })
	assert.Equal(t, []int{0, 4, 7}, starts)
}

func TestNewWorkerPool_Default(t *testing.T) {
	wp := NewWorkerPool(0)
	defer wp.Close()
	assert.Positive(t, wp.Workers())
}
