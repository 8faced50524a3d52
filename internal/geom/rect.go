// Package geom provides the rectangle primitives shared by the ROI registry
// and the overlap engine. Coordinates are pixel positions on a camera frame
// with the origin at the top-left corner.
package geom

// Rect is an axis-aligned rectangle in frame coordinates. A valid Rect has
// X1 < X2, Y1 < Y2 and non-negative top-left corner.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Valid reports whether the rectangle satisfies the ROI coordinate invariant:
// x1 < x2, y1 < y2, x1 >= 0 and y1 >= 0.
func (r Rect) Valid() bool {
	return r.X1 < r.X2 && r.Y1 < r.Y2 && r.X1 >= 0 && r.Y1 >= 0
}

// Area returns the rectangle area in square pixels, or 0 for degenerate
// rectangles.
func (r Rect) Area() int {
	w := r.X2 - r.X1
	h := r.Y2 - r.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Width returns the rectangle width in pixels (0 if degenerate).
func (r Rect) Width() int {
	if r.X2 <= r.X1 {
		return 0
	}
	return r.X2 - r.X1
}

// Height returns the rectangle height in pixels (0 if degenerate).
func (r Rect) Height() int {
	if r.Y2 <= r.Y1 {
		return 0
	}
	return r.Y2 - r.Y1
}

// Intersect returns the intersection of two rectangles and whether it is
// non-empty.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	in := Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
	if in.X2 <= in.X1 || in.Y2 <= in.Y1 {
		return Rect{}, false
	}
	return in, true
}

// IoU computes the intersection-over-union of two rectangles. The result is
// in [0, 1]: 0 when the rectangles are disjoint or either has zero area, 1
// when they are identical.
//
// This is the authoritative overlap measure for session triggering. The
// asymmetric containment measure used by alignment checks lives in
// ContainmentOverRef and must not be conflated with IoU.
func IoU(a, b Rect) float64 {
	areaA := a.Area()
	areaB := b.Area()
	if areaA == 0 || areaB == 0 {
		return 0
	}
	in, ok := a.Intersect(b)
	if !ok {
		return 0
	}
	inter := float64(in.Area())
	union := float64(areaA) + float64(areaB) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ContainmentOverRef computes the fraction of ref covered by box:
// intersection area divided by the area of ref. It is asymmetric and is used
// by alignment-style checks where "how much of the alignment zone does the
// piece cover" is the question being asked.
func ContainmentOverRef(box, ref Rect) float64 {
	refArea := ref.Area()
	if refArea == 0 || box.Area() == 0 {
		return 0
	}
	in, ok := box.Intersect(ref)
	if !ok {
		return 0
	}
	return float64(in.Area()) / float64(refArea)
}
