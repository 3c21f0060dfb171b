package analysis

import (
	"math"
)

// MaxSmoothingPasses bounds the work done for very wide windows on dense tracks
const MaxSmoothingPasses = 2000

// GradientCap is the steepest plausible grade (percent) up and down
type GradientCap struct {
	MaxUp   float64
	MaxDown float64
}

// hilliness (m of gain per km) -> gradient cap
var gradientCaps = []struct {
	below float64
	cap   GradientCap
}{
	{20, GradientCap{MaxUp: 15, MaxDown: 12}},
	{30, GradientCap{MaxUp: 20, MaxDown: 15}},
	{40, GradientCap{MaxUp: 25, MaxDown: 20}},
	{50, GradientCap{MaxUp: 32, MaxDown: 27}},
	{60, GradientCap{MaxUp: 35, MaxDown: 31}},
	{math.Inf(1), GradientCap{MaxUp: 40, MaxDown: 36}},
}

// Hilliness returns raw elevation gain per kilometre
func Hilliness(s Series) float64 {
	km := s.TotalDistance() / 1000
	if km <= 0 {
		return 0
	}
	gain, _ := GainLoss(s.Elevation)
	return gain / km
}

// CapFor picks the gradient cap for a track of the given hilliness
func CapFor(hilliness float64) GradientCap {
	for _, c := range gradientCaps {
		if hilliness < c.below {
			return c.cap
		}
	}
	return gradientCaps[len(gradientCaps)-1].cap
}

// CapGradients clamps every step to the cap and re-integrates elevation
// from the first sample. Zero-length steps carry no elevation change.
func CapGradients(s Series, c GradientCap) []float64 {
	out := make([]float64, s.Len())
	if len(out) == 0 {
		return out
	}
	out[0] = s.Elevation[0]
	for i := 1; i < len(out); i++ {
		d := s.Distance[i] - s.Distance[i-1]
		delta := s.Elevation[i] - s.Elevation[i-1]
		if d <= 0 {
			delta = 0
		} else {
			delta = math.Max(-d*c.MaxDown/100, math.Min(d*c.MaxUp/100, delta))
		}
		out[i] = out[i-1] + delta
	}
	return out
}

// SmoothingPasses returns how many binomial passes approximate a moving
// window of windowM meters on samples spaced spacingM apart. A pass of
// [1 2 1]/4 adds half a sample² of variance to the kernel, a box of width w
// has variance w²/12, so p = w²/6. The count never decreases as the window grows.
func SmoothingPasses(windowM, spacingM float64) int {
	if windowM <= 0 || spacingM <= 0 {
		return 0
	}
	w := windowM / spacingM
	p := int(math.Ceil(w * w / 6))
	if p > MaxSmoothingPasses {
		p = MaxSmoothingPasses
	}
	return p
}

// Smooth caps implausible gradients and low-passes the elevation over a
// window of windowM meters. Each pass is symmetric and doubly stochastic, so
// the mean is preserved and the variance never grows with more passes.
func Smooth(s Series, windowM float64) Series {
	n := s.Len()
	out := Series{Distance: append([]float64(nil), s.Distance...)}
	if n < 2 {
		out.Elevation = append([]float64(nil), s.Elevation...)
		return out
	}

	elevation := CapGradients(s, CapFor(Hilliness(s)))
	passes := SmoothingPasses(windowM, s.TotalDistance()/float64(n-1))

	buf := make([]float64, n)
	for i := 0; i < passes; i++ {
		binomialPass(buf, elevation)
		elevation, buf = buf, elevation
	}
	out.Elevation = elevation
	return out
}

// binomialPass applies [1 2 1]/4 with mirrored ends
func binomialPass(dst, src []float64) {
	n := len(src)
	dst[0] = (3*src[0] + src[1]) / 4
	for i := 1; i < n-1; i++ {
		dst[i] = (src[i-1] + 2*src[i] + src[i+1]) / 4
	}
	dst[n-1] = (src[n-2] + 3*src[n-1]) / 4
}
