package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rect Rect
		want bool
	}{
		{"well formed", Rect{0, 0, 100, 50}, true},
		{"inverted x", Rect{100, 0, 50, 50}, false},
		{"inverted y", Rect{0, 50, 100, 10}, false},
		{"zero width", Rect{10, 0, 10, 50}, false},
		{"negative origin", Rect{-1, 0, 100, 50}, false},
		{"touching origin", Rect{0, 0, 1, 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rect.Valid())
		})
	}
}

func TestIoUIdentity(t *testing.T) {
	t.Parallel()

	// IoU(a, a) == 1 for any valid rectangle.
	rects := []Rect{
		{0, 0, 10, 10},
		{100, 100, 200, 200},
		{64, 0, 1216, 108},
	}
	for _, r := range rects {
		assert.InDelta(t, 1.0, IoU(r, r), 1e-9)
	}
}

func TestIoUDisjoint(t *testing.T) {
	t.Parallel()

	a := Rect{0, 0, 10, 10}
	b := Rect{20, 20, 30, 30}
	assert.Zero(t, IoU(a, b))
	assert.Zero(t, IoU(b, a))

	// Edge-touching rectangles have zero intersection area.
	c := Rect{10, 0, 20, 10}
	assert.Zero(t, IoU(a, c))
}

func TestIoUZeroArea(t *testing.T) {
	t.Parallel()

	a := Rect{0, 0, 10, 10}
	degenerate := Rect{5, 5, 5, 5}
	assert.Zero(t, IoU(a, degenerate))
	assert.Zero(t, IoU(degenerate, a))
}

func TestIoUContainedDetection(t *testing.T) {
	t.Parallel()

	// A detection fully inside a larger ROI still has a small IoU: the
	// measure is symmetric, not a containment check.
	roi := Rect{100, 100, 200, 200}
	det := Rect{150, 150, 180, 180}

	iou := IoU(det, roi)
	assert.InDelta(t, 900.0/10000.0, iou, 1e-9)
	assert.Less(t, iou, 0.3)
}

func TestIoUPartialOverlap(t *testing.T) {
	t.Parallel()

	a := Rect{0, 0, 10, 10}
	b := Rect{5, 0, 15, 10}
	// intersection 50, union 150
	assert.InDelta(t, 50.0/150.0, IoU(a, b), 1e-9)
}

func TestContainmentOverRef(t *testing.T) {
	t.Parallel()

	zone := Rect{0, 0, 100, 100}

	t.Run("full coverage", func(t *testing.T) {
		box := Rect{0, 0, 200, 200}
		assert.InDelta(t, 1.0, ContainmentOverRef(box, zone), 1e-9)
	})

	t.Run("half coverage", func(t *testing.T) {
		box := Rect{0, 0, 50, 100}
		assert.InDelta(t, 0.5, ContainmentOverRef(box, zone), 1e-9)
	})

	t.Run("disjoint", func(t *testing.T) {
		box := Rect{200, 200, 300, 300}
		assert.Zero(t, ContainmentOverRef(box, zone))
	})

	t.Run("asymmetric against IoU", func(t *testing.T) {
		// The contained-detection scenario: the detection covers all of
		// itself (containment over the detection is 1.0) while IoU stays
		// small. The two measures must not be conflated.
		roi := Rect{100, 100, 200, 200}
		det := Rect{150, 150, 180, 180}
		require.InDelta(t, 1.0, ContainmentOverRef(roi, det), 1e-9)
		assert.InDelta(t, 0.09, ContainmentOverRef(det, roi), 1e-9)
		assert.InDelta(t, 0.09, IoU(det, roi), 1e-9)
	})
}

func TestIntersect(t *testing.T) {
	t.Parallel()

	a := Rect{0, 0, 10, 10}
	b := Rect{5, 5, 15, 15}
	in, ok := a.Intersect(b)
	require.True(t, ok)
	assert.Equal(t, Rect{5, 5, 10, 10}, in)

	_, ok = a.Intersect(Rect{50, 50, 60, 60})
	assert.False(t, ok)
}
