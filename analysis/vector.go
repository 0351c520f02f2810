package analysis

import "math"

// dot returns the inner product of a and b over their common length.
func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// norm returns the Euclidean length of v.
func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// normalize returns v scaled to unit length. Zero vectors come back as a
// zero copy rather than NaNs.
func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	n := norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either has zero length.
func cosineSimilarity(a, b []float64) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

// meanVector returns the unweighted mean of vecs, which must be non-empty
// and uniform in dimension.
func meanVector(vecs [][]float64) []float64 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		for i := range out {
			if i < len(v) {
				out[i] += v[i]
			}
		}
	}
	for i := range out {
		out[i] /= float64(len(vecs))
	}
	return out
}

// euclideanDistance returns the L2 distance between a and b.
func euclideanDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// cosineDistance is 1 - cosineSimilarity, bounded below at 0.
func cosineDistance(a, b []float64) float64 {
	d := 1 - cosineSimilarity(a, b)
	if d < 0 {
		return 0
	}
	return d
}
