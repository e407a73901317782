package vision

import "math"

// #region face-types
// Rect is a face bounding box in pixel coordinates (top-left origin).
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns the box area in pixels.
func (r Rect) Area() int {
	return r.W * r.H
}

// Face is one detected face: its bounding box and embedding vector.
type Face struct {
	Box       Rect      `json:"box"`
	Embedding []float32 `json:"embedding"`
}
// #endregion face-types

// #region primary-face
// PrimaryFace selects the face to match when a frame contains several:
// largest box area wins, ties broken by smaller top edge, then smaller
// left edge. Deterministic for any input order.
func PrimaryFace(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if facePrecedes(f, best) {
			best = f
		}
	}
	return best, true
}

func facePrecedes(a, b Face) bool {
	if a.Box.Area() != b.Box.Area() {
		return a.Box.Area() > b.Box.Area()
	}
	if a.Box.Y != b.Box.Y {
		return a.Box.Y < b.Box.Y
	}
	return a.Box.X < b.Box.X
}
// #endregion primary-face

// #region normalize
// Normalize scales v to unit L2 length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}
// #endregion normalize
