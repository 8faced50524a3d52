// Package defect defines the defect vocabulary and converts detector boxes
// into physical measurements using per-camera calibration.
package defect

import (
	"strings"

	"github.com/timberline/sortline/internal/geom"
)

// Type is a normalized defect class.
type Type string

const (
	SoundKnot   Type = "Sound_Knot"
	UnsoundKnot Type = "Unsound_Knot"
)

// aliases maps raw detector labels to the normalized vocabulary. Detector
// models have shipped with several spellings over time.
var aliases = map[string]Type{
	"sound_knot":   SoundKnot,
	"sound knot":   SoundKnot,
	"soundknot":    SoundKnot,
	"knot_sound":   SoundKnot,
	"unsound_knot": UnsoundKnot,
	"unsound knot": UnsoundKnot,
	"unsoundknot":  UnsoundKnot,
	"knot_unsound": UnsoundKnot,
	"dead_knot":    UnsoundKnot,
}

// Normalize maps a raw detector label to a defect type. ok is false for
// labels outside the vocabulary.
func Normalize(label string) (Type, bool) {
	t, ok := aliases[strings.ToLower(strings.TrimSpace(label))]
	return t, ok
}

// Measurement is one defect observation in physical units.
type Measurement struct {
	Type    Type    `json:"type"`
	SizeMM  float64 `json:"size_mm"`
	Percent float64 `json:"percent"`
}

// Calibration converts pixel extents on one camera into millimeters.
type Calibration struct {
	PixelToMM    float64
	BoardWidthMM float64
}

// Measure converts a detection box into a measurement. Knot size is the
// larger box dimension in millimeters; percent is that size relative to the
// board width, the ratio the grading rules are written against.
func (c Calibration) Measure(t Type, box geom.Rect) Measurement {
	px := box.Width()
	if box.Height() > px {
		px = box.Height()
	}
	sizeMM := float64(px) * c.PixelToMM

	var percent float64
	if c.BoardWidthMM > 0 {
		percent = sizeMM / c.BoardWidthMM * 100
	}
	return Measurement{Type: t, SizeMM: sizeMM, Percent: percent}
}
