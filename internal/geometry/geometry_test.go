package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntersectionOverUnion_Identity(t *testing.T) {
	t.Parallel()

	rects := []Rect{
		{X: 0, Y: 0, Width: 1, Height: 1},
		{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4},
		{X: 0.9, Y: 0.9, Width: 0.05, Height: 0.05},
	}
	for _, r := range rects {
		assert.InDelta(t, 1.0, IntersectionOverUnion(r, r), 1e-12, "rect %+v", r)
	}
}

func TestIntersectionOverUnion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Rect
		want float64
	}{
		{
			name: "disjoint",
			a:    Rect{X: 0, Y: 0, Width: 0.2, Height: 0.2},
			b:    Rect{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2},
			want: 0,
		},
		{
			name: "touching edges",
			a:    Rect{X: 0, Y: 0, Width: 0.5, Height: 0.5},
			b:    Rect{X: 0.5, Y: 0, Width: 0.5, Height: 0.5},
			want: 0,
		},
		{
			name: "half overlap",
			a:    Rect{X: 0, Y: 0, Width: 0.4, Height: 0.4},
			b:    Rect{X: 0.2, Y: 0, Width: 0.4, Height: 0.4},
			// intersection 0.08, union 0.16+0.16-0.08
			want: 0.08 / 0.24,
		},
		{
			name: "contained",
			a:    Rect{X: 0, Y: 0, Width: 0.4, Height: 0.4},
			b:    Rect{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2},
			want: 0.04 / 0.16,
		},
		{
			name: "degenerate both",
			a:    Rect{X: 0.3, Y: 0.3},
			b:    Rect{X: 0.3, Y: 0.3},
			want: 0,
		},
		{
			name: "degenerate one",
			a:    Rect{X: 0.3, Y: 0.3, Width: 0, Height: 0.2},
			b:    Rect{X: 0.2, Y: 0.2, Width: 0.4, Height: 0.4},
			want: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IntersectionOverUnion(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
			// symmetric
			assert.InDelta(t, got, IntersectionOverUnion(tt.b, tt.a), 1e-12)
		})
	}
}

func TestCenterAndArea(t *testing.T) {
	r := Rect{X: 0.2, Y: 0.4, Width: 0.2, Height: 0.1}

	c := Center(r)
	assert.InDelta(t, 0.3, c.X, 1e-12)
	assert.InDelta(t, 0.45, c.Y, 1e-12)
	assert.Equal(t, c, r.Center())

	assert.InDelta(t, 0.02, Area(r), 1e-12)
	assert.Zero(t, Area(Rect{Width: -1, Height: 1}))
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 0.5, Distance(Point{X: 0, Y: 0}, Point{X: 0.3, Y: 0.4}), 1e-12)
	assert.Zero(t, Distance(Point{X: 0.7, Y: 0.1}, Point{X: 0.7, Y: 0.1}))
}

func TestRectContainsAndValid(t *testing.T) {
	roi := Rect{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5}
	assert.True(t, roi.Contains(Point{X: 0.5, Y: 0.5}))
	assert.True(t, roi.Contains(Point{X: 0.25, Y: 0.75}))
	assert.False(t, roi.Contains(Point{X: 0.1, Y: 0.5}))

	assert.True(t, roi.Valid())
	assert.False(t, Rect{X: 0.8, Y: 0, Width: 0.5, Height: 0.1}.Valid())
	assert.False(t, Rect{X: math.NaN(), Width: 0.1, Height: 0.1}.Valid())
	assert.False(t, Rect{X: -0.1, Width: 0.1, Height: 0.1}.Valid())
}

func TestRectCanonical(t *testing.T) {
	a := Rect{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}
	b := Rect{X: 0.1 + 1e-9, Y: 0.2, Width: 0.3, Height: 0.4}
	assert.Equal(t, "0.1000,0.2000,0.3000,0.4000", a.Canonical())
	assert.Equal(t, a.Canonical(), b.Canonical())
}
