// Package geometry provides normalized-space rectangle math for detections.
//
// All coordinates live in the unit square [0,1]×[0,1] with the origin at the
// top-left corner of the image.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Point is a position in normalized image space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in normalized image space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of r.
func Center(r Rect) Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Area returns w*h. Negative extents count as zero.
func Area(r Rect) float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// IntersectionOverUnion returns the overlap ratio of a and b in [0,1].
// Disjoint or degenerate rectangles yield 0.
func IntersectionOverUnion(a, b Rect) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.X+a.Width, b.X+b.Width)
	y2 := math.Min(a.Y+a.Height, b.Y+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := Area(a) + Area(b) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Distance returns the Euclidean distance between p and q.
func Distance(p, q Point) float64 {
	return floats.Distance([]float64{p.X, p.Y}, []float64{q.X, q.Y}, 2)
}

// Center returns the midpoint of r.
func (r Rect) Center() Point { return Center(r) }

// Area returns the area of r.
func (r Rect) Area() float64 { return Area(r) }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Valid reports whether r is finite, non-negative and inside the unit square.
func (r Rect) Valid() bool {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return false
		}
	}
	return r.X+r.Width <= 1+1e-9 && r.Y+r.Height <= 1+1e-9
}

// Canonical returns a stable textual form used in cache keys.
// Components are rounded to four decimal places so that float noise below
// that resolution does not split the key space.
func (r Rect) Canonical() string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", r.X, r.Y, r.Width, r.Height)
}
