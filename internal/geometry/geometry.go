// Package geometry provides the planar math used to score pointer gestures
// against a sigil path.
package geometry

import "math"

// Point is a position in the sigil's 2D coordinate space.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Lerp returns the point at parameter t along the segment p→q.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t}
}

// Finite reports whether both coordinates are finite numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Distance returns the Euclidean distance between p and q.
func Distance(p, q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Within reports whether p lies within radius r of q (inclusive).
func Within(p, q Point, r float64) bool {
	return Distance(p, q) <= r
}

// SegmentDistance returns the distance from p to the closest point of the
// segment a→b. The projection parameter is clamped to [0,1]; a degenerate
// segment (a == b) collapses to the distance to a.
func SegmentDistance(p, a, b Point) float64 {
	d := b.Sub(a)
	lenSq := d.X*d.X + d.Y*d.Y
	if lenSq == 0 {
		return Distance(p, a)
	}

	t := ((p.X-a.X)*d.X + (p.Y-a.Y)*d.Y) / lenSq
	t = math.Max(0, math.Min(1, t))

	return Distance(p, a.Lerp(b, t))
}
