// Package visual derives a deterministic appearance vector from a component's
// node tree and optionally asks a local model to review generated code
// against the design.
package visual

import (
	"math"
	"strconv"
	"strings"

	"github.com/kalambet/designgen/internal/design"
)

// FeatureModel names the embedding model of vectors produced by Features.
const FeatureModel = "designgen-visual-v1"

// Dimensions is the length of a feature vector.
const Dimensions = 16

// histogramTypes are the node types whose share of the tree is encoded.
var histogramTypes = [...]string{"FRAME", "TEXT", "VECTOR", "RECTANGLE", "INSTANCE", "ELLIPSE"}

// Features encodes layout and colour measurements as a Dimensions-long
// vector. Values are squashed into [0,1] so cosine similarity compares shape
// rather than absolute size.
func Features(n design.Normalized) []float32 {
	v := make([]float32, 0, Dimensions)

	v = append(v,
		squash(math.Log1p(n.AspectRatio), 1),
		squash(n.Width, 400),
		squash(n.Height, 400),
		squash(float64(n.NodeCount), 20),
		squash(float64(n.ChildCount), 8),
		squash(float64(n.Depth), 4),
		squash(float64(len(n.Texts)), 4),
	)

	total := float64(n.NodeCount)
	for _, t := range histogramTypes {
		var share float64
		if total > 0 {
			share = float64(n.TypeHistogram[t]) / total
		}
		v = append(v, float32(share))
	}

	r, g, b := dominantColor(n.FillColors)
	v = append(v, r, g, b)
	return v
}

// squash maps x >= 0 to [0,1) with scale giving the half-way point.
func squash(x, scale float64) float32 {
	if x <= 0 || math.IsNaN(x) {
		return 0
	}
	return float32(x / (x + scale))
}

// dominantColor returns the first fill colour as RGB in [0,1]. FillColors is
// sorted, so the pick is stable across runs.
func dominantColor(colors []string) (float32, float32, float32) {
	for _, c := range colors {
		if r, g, b, ok := parseHex(c); ok {
			return r, g, b
		}
	}
	return 0, 0, 0
}

func parseHex(s string) (float32, float32, float32, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 && len(s) != 8 {
		return 0, 0, 0, false
	}
	n, err := strconv.ParseUint(s[:6], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return float32((n>>16)&0xff) / 255, float32((n>>8)&0xff) / 255, float32(n&0xff) / 255, true
}
