// Package geometry holds the normalized rectangle every detector reports in.
//
// Coordinates are fractions of the page in [0,1] with the origin at the
// bottom-left corner and y increasing upward, the same convention PDF uses.
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Epsilon is the slack tolerated past the page edge before a box is
// considered out of range. Upstream rendering rounds to pixels.
const Epsilon = 1e-6

// ErrInvalidBBox is returned by Validate for boxes outside the normalized page.
var ErrInvalidBBox = errors.New("invalid bounding box")

// BBox is an immutable axis-aligned rectangle in normalized page space.
type BBox struct {
	x      float64
	y      float64
	width  float64
	height float64
}

// NewBBox creates a box from its bottom-left corner and size. No checks are
// made; use Validate or Clamp on values from untrusted detectors.
func NewBBox(x, y, width, height float64) BBox {
	return BBox{x: x, y: y, width: width, height: height}
}

// FromRect creates a box from its min and max corners.
func FromRect(xMin, yMin, xMax, yMax float64) BBox {
	return BBox{x: xMin, y: yMin, width: xMax - xMin, height: yMax - yMin}
}

// FromPixels normalizes a pixel-space box (bottom-left origin) against the
// page size. A non-positive page dimension yields the zero box.
func FromPixels(xPx, yPx, widthPx, heightPx, pageWidthPx, pageHeightPx float64) BBox {
	if pageWidthPx <= 0 || pageHeightPx <= 0 {
		return BBox{}
	}
	return BBox{
		x:      xPx / pageWidthPx,
		y:      yPx / pageHeightPx,
		width:  widthPx / pageWidthPx,
		height: heightPx / pageHeightPx,
	}
}

// X returns the left edge.
func (b BBox) X() float64 { return b.x }

// Y returns the bottom edge.
func (b BBox) Y() float64 { return b.y }

// Width returns the horizontal extent.
func (b BBox) Width() float64 { return b.width }

// Height returns the vertical extent.
func (b BBox) Height() float64 { return b.height }

// Right returns the right edge.
func (b BBox) Right() float64 { return b.x + b.width }

// Top returns the top edge.
func (b BBox) Top() float64 { return b.y + b.height }

// Rect returns the box as (xMin, yMin, xMax, yMax).
func (b BBox) Rect() (float64, float64, float64, float64) {
	return b.x, b.y, b.Right(), b.Top()
}

// Center returns the center point.
func (b BBox) Center() (float64, float64) {
	return b.x + b.width/2, b.y + b.height/2
}

// Area returns width*height, or 0 for degenerate boxes.
func (b BBox) Area() float64 {
	if b.width <= 0 || b.height <= 0 {
		return 0
	}
	return b.width * b.height
}

// Intersects reports whether the two boxes share interior area.
// Boxes that only touch along an edge do not intersect.
func (b BBox) Intersects(other BBox) bool {
	if b.Right() <= other.x || other.Right() <= b.x {
		return false
	}
	if b.Top() <= other.y || other.Top() <= b.y {
		return false
	}
	return true
}

// IntersectionArea returns the area of the overlap rectangle.
func (b BBox) IntersectionArea(other BBox) float64 {
	if !b.Intersects(other) {
		return 0
	}
	w := math.Min(b.Right(), other.Right()) - math.Max(b.x, other.x)
	h := math.Min(b.Top(), other.Top()) - math.Max(b.y, other.y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU returns intersection over union. It is 0 when either box has no area
// or the union is empty, and is symmetric in its arguments.
func (b BBox) IoU(other BBox) float64 {
	a1, a2 := b.Area(), other.Area()
	if a1 == 0 || a2 == 0 {
		return 0
	}
	inter := b.IntersectionArea(other)
	union := a1 + a2 - inter
	if union <= 0 {
		return 0
	}
	iou := inter / union
	if iou > 1 {
		return 1
	}
	return iou
}

// OverlapFraction returns the fraction of b covered by the given regions,
// summing pairwise intersections and capping at 1. Overlapping regions are
// counted twice, which is why the result is clamped.
func (b BBox) OverlapFraction(regions []BBox) float64 {
	area := b.Area()
	if area == 0 || len(regions) == 0 {
		return 0
	}
	var total float64
	for _, r := range regions {
		total += b.IntersectionArea(r)
	}
	return math.Min(1, total/area)
}

// IsFinite reports whether every component is a finite number.
func (b BBox) IsFinite() bool {
	for _, v := range [...]float64{b.x, b.y, b.width, b.height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks the box lies on the normalized page, within Epsilon.
func (b BBox) Validate() error {
	if !b.IsFinite() {
		return fmt.Errorf("%w: non-finite component in %s", ErrInvalidBBox, b)
	}
	if b.width < 0 || b.height < 0 {
		return fmt.Errorf("%w: negative size in %s", ErrInvalidBBox, b)
	}
	if b.x < -Epsilon || b.y < -Epsilon {
		return fmt.Errorf("%w: origin below zero in %s", ErrInvalidBBox, b)
	}
	if b.Right() > 1+Epsilon || b.Top() > 1+Epsilon {
		return fmt.Errorf("%w: extends past page edge in %s", ErrInvalidBBox, b)
	}
	return nil
}

// Clamp returns a copy pulled inside the unit page: the origin is clamped to
// [0,1], negative sides become zero and the far edges are cut at 1.
// Non-finite boxes are returned unchanged; callers must reject them first.
func (b BBox) Clamp() BBox {
	if !b.IsFinite() {
		return b
	}
	x := clamp01(b.x)
	y := clamp01(b.y)
	w := math.Max(0, math.Min(b.Right(), 1)-x)
	h := math.Max(0, math.Min(b.Top(), 1)-y)
	if b.width <= 0 {
		w = 0
	}
	if b.height <= 0 {
		h = 0
	}
	return BBox{x: x, y: y, width: w, height: h}
}

// String implements fmt.Stringer.
func (b BBox) String() string {
	return fmt.Sprintf("(%.4f,%.4f %.4fx%.4f)", b.x, b.y, b.width, b.height)
}

type bboxJSON struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MarshalJSON implements json.Marshaler.
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(bboxJSON{X: b.x, Y: b.y, Width: b.width, Height: b.height})
}

// UnmarshalJSON implements json.Unmarshaler. Values are taken as given;
// range problems are left to the consumer.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var raw bboxJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode bbox: %w", err)
	}
	*b = NewBBox(raw.X, raw.Y, raw.Width, raw.Height)
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
