package imageproc

import "math"

// TargetSize applies the thumbnail sizing policy. Images already within
// maxDim on both sides are left alone. Otherwise the larger side is scaled
// to maxDim; if that leaves the smaller side under minDim, both sides are
// derived from minDim instead so extreme aspect ratios stay legible.
func TargetSize(width, height, maxDim, minDim int) (int, int, bool) {
	if width <= 0 || height <= 0 {
		return width, height, false
	}
	if width <= maxDim && height <= maxDim {
		return width, height, false
	}

	scale := float64(maxDim) / float64(max(width, height))
	w, h := scaled(width, scale), scaled(height, scale)

	if min(w, h) < minDim {
		scale = float64(minDim) / float64(min(width, height))
		w, h = scaled(width, scale), scaled(height, scale)
	}
	return w, h, true
}

func scaled(n int, scale float64) int {
	return max(1, int(math.Round(float64(n)*scale)))
}
