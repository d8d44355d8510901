package imaging

import "math"

// CalculateGeometry fits the requested box into the original size without
// upscaling and without changing the aspect ratio. A zero target dimension
// is derived from the other one; zero for both keeps the original size.
func CalculateGeometry(origWidth, origHeight, targetWidth, targetHeight int) (int, int) {
	origRatio := 1.0
	if origHeight != 0 {
		origRatio = float64(origWidth) / float64(origHeight)
	}

	targetWidth = min(targetWidth, origWidth)
	targetHeight = min(targetHeight, origHeight)

	switch {
	case targetWidth == 0 && targetHeight == 0:
		targetWidth = origWidth
		targetHeight = origHeight
	case targetWidth == 0:
		targetWidth = roundHalfUp(float64(targetHeight) * origRatio)
	case targetHeight == 0:
		targetHeight = roundHalfUp(float64(targetWidth) / origRatio)
	}

	if targetWidth > origWidth {
		targetWidth = origWidth
	}
	if targetHeight > origHeight {
		targetHeight = origHeight
	}

	targetRatio := float64(targetWidth) / float64(targetHeight)
	if targetRatio > origRatio {
		// max out height, derive a smaller width
		targetWidth = roundHalfUp(float64(targetHeight) * origRatio)
	} else if targetRatio < origRatio {
		// max out width, derive a smaller height
		targetHeight = roundHalfUp(float64(targetWidth) / origRatio)
	}

	return targetWidth, targetHeight
}

// roundHalfUp saturates at math.MaxInt instead of overflowing.
func roundHalfUp(v float64) int {
	r := math.Floor(v + 0.5)
	if r >= math.MaxInt {
		return math.MaxInt
	}
	return int(r)
}
