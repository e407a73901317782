package recognize

// #region outcome
// Outcome is the result of matching one frame against the gallery.
// Distance and Confidence are populated whenever a face was compared,
// even if the match was rejected.
type Outcome struct {
	Matched     bool
	IdentityKey string
	Distance    float64
	Confidence  float64 // 0-100 scale
	FaceCount   int
}
// #endregion outcome

// #region config
// Config holds match acceptance thresholds. Both gates must pass.
type Config struct {
	DistanceThreshold float64 // max cosine distance for a match
	MinConfidence     float64 // min derived confidence, 0-100
}

// DefaultConfig returns the standard acceptance policy.
func DefaultConfig() Config {
	return Config{
		DistanceThreshold: 0.68,
		MinConfidence:     60,
	}
}

// Accept reports whether a match at the given distance passes both the
// distance threshold and the minimum confidence, returning the confidence.
func (c Config) Accept(distance float64) (float64, bool) {
	conf := Confidence(distance)
	return conf, distance <= c.DistanceThreshold && conf >= c.MinConfidence
}
// #endregion config

// #region confidence
// Confidence maps a cosine distance onto the 0-100 scale reported in
// decisions: 100 * (1 - d/2), clamped. Cosine distance over unit vectors
// spans [0,2], so this is monotonically decreasing across the full range.
func Confidence(distance float64) float64 {
	nd := distance / 2
	if nd < 0 {
		nd = 0
	}
	if nd > 1 {
		nd = 1
	}
	return 100 * (1 - nd)
}
// #endregion confidence
