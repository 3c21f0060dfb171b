// Package synthesis searches a bounding box for routes whose effort and
// gradient profile resemble a reference track. Candidate routes are cut from
// real recorded tracks (the corpus), joining fragments whose ends meet.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/voltplatform/volt-backend/internal/analysis"
	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/spatial"
)

// ErrEmptyReference is returned when the reference has no usable length
var ErrEmptyReference = errors.New("reference track has no distance")

// Config tunes the search
type Config struct {
	MinSimilarity    float64 // candidates scoring below this are dropped
	MaxCandidates    int     // upper bound on evaluated candidates per search
	MaxChains        int     // upper bound on walked fragment chains per search
	MaxChainLength   int     // fragments joined into one route
	JoinToleranceM   float64 // max gap between joined fragment ends
	MinDistanceM     float64 // shortest candidate in meters
	MinDistanceRatio float64 // shortest candidate, relative to the reference
	EffortWeight     float64 // share of the score driven by effort
}

// DefaultConfig returns the production search settings
func DefaultConfig() Config {
	return Config{
		MinSimilarity:    0.5,
		MaxCandidates:    2000,
		MaxChains:        5000,
		MaxChainLength:   4,
		JoinToleranceM:   100,
		MinDistanceM:     1000,
		MinDistanceRatio: 0.25,
		EffortWeight:     0.7,
	}
}

// Request is one search
type Request struct {
	Reference  []models.GpxPoint
	Box        spatial.BoundingBox
	WindowSize int
	MaxResults int
	Corpus     []CorpusTrack
}

// Candidate is a scored route. Metrics are raw, computed from Points alone.
type Candidate struct {
	Points    []models.GpxPoint
	Metrics   models.RaceMetrics
	Score     float64
	Signature string
}

// Stats describes the work done by a search
type Stats struct {
	Fragments int
	Chains    int
	Evaluated int
	Accepted  int
}

// Profile is the effort and gradient shape of a smoothed series
type Profile struct {
	Effort    float64
	Histogram []float64
}

// NewProfile computes the profile of a smoothed series
func NewProfile(s analysis.Series, windowM float64) Profile {
	m := s.Metrics()
	return Profile{Effort: m.ITRAEffortDistance, Histogram: analysis.GradientHistogram(s, windowM)}
}

// Engine runs searches
type Engine struct {
	cfg Config
}

// NewEngine creates a new engine
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Search returns candidates sorted by descending similarity, at most
// req.MaxResults of them. No viable candidate yields an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, req Request) ([]Candidate, Stats, error) {
	var stats Stats
	window := float64(req.WindowSize)

	refSeries := analysis.Smooth(analysis.NewSeries(req.Reference), window)
	if refSeries.TotalDistance() <= 0 {
		return nil, stats, ErrEmptyReference
	}
	ref := NewProfile(refSeries, window)
	minDistance := math.Max(e.cfg.MinDistanceM, refSeries.TotalDistance()*e.cfg.MinDistanceRatio)

	corpus := append([]CorpusTrack(nil), req.Corpus...)
	sort.Slice(corpus, func(i, j int) bool { return corpus[i].ID < corpus[j].ID })

	var frags []fragment
	for _, track := range corpus {
		frags = append(frags, clip(track, req.Box)...)
	}
	stats.Fragments = len(frags)

	idx := spatial.NewCellIndex(spatial.DefaultCellLevel)
	for i, f := range frags {
		idx.Insert(2*i, f.first().Lat, f.first().Lon)
		idx.Insert(2*i+1, f.last().Lat, f.last().Lon)
	}

	s := &search{
		engine:      e,
		ctx:         ctx,
		frags:       frags,
		idx:         idx,
		ref:         ref,
		window:      window,
		minDistance: minDistance,
		best:        make(map[string]int),
		stats:       &stats,
	}

	for i := range frags {
		for _, reversed := range []bool{false, true} {
			if err := s.walk([]link{{frag: i, reversed: reversed}}); err != nil {
				if errors.Is(err, errBudget) {
					return s.finish(req.MaxResults), stats, nil
				}
				return nil, stats, err
			}
		}
	}
	return s.finish(req.MaxResults), stats, nil
}

var errBudget = errors.New("candidate budget exhausted")

type search struct {
	engine      *Engine
	ctx         context.Context
	frags       []fragment
	idx         *spatial.CellIndex
	ref         Profile
	window      float64
	minDistance float64

	candidates []Candidate
	best       map[string]int // geometry key -> index in candidates
	stats      *Stats
}

// walk evaluates a chain and then every extension of it, depth first
func (s *search) walk(chain []link) error {
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("synthesis search cancelled: %w", err)
	}

	if err := s.evaluate(chain); err != nil {
		return err
	}
	if len(chain) >= s.engine.cfg.MaxChainLength {
		return nil
	}

	tail := chain[len(chain)-1].tail(s.frags)
	for _, m := range s.idx.Within(tail.Lat, tail.Lon, s.engine.cfg.JoinToleranceM) {
		next := link{frag: m.Key / 2, reversed: m.Key%2 == 1}
		if inChain(chain, next.frag) {
			continue
		}
		extended := append(append([]link(nil), chain...), next)
		if err := s.walk(extended); err != nil {
			return err
		}
	}
	return nil
}

func inChain(chain []link, frag int) bool {
	for _, l := range chain {
		if l.frag == frag {
			return true
		}
	}
	return false
}

// evaluate cuts the chain, from a few start offsets, where its cumulative
// smoothed effort best matches the reference, and scores each cut.
func (s *search) evaluate(chain []link) error {
	if s.engine.cfg.MaxChains > 0 && s.stats.Chains >= s.engine.cfg.MaxChains {
		return errBudget
	}
	s.stats.Chains++
	points := chainPoints(s.frags, chain)
	series := analysis.Smooth(analysis.NewSeries(points), s.window)
	effort := cumulativeEffort(series)

	firstLen := len(s.frags[chain[0].frag].points)
	offsets := []int{0, firstLen / 3, 2 * firstLen / 3}
	seen := make(map[int]bool, len(offsets))
	sig := chainSignature(s.frags, chain)

	for _, start := range offsets {
		if seen[start] || start >= len(points)-1 {
			continue
		}
		seen[start] = true

		end := cutIndex(effort, start, s.ref.Effort)
		if end-start < 1 {
			continue
		}
		if series.Distance[end]-series.Distance[start] < s.minDistance {
			continue
		}

		if s.stats.Evaluated >= s.engine.cfg.MaxCandidates {
			return errBudget
		}
		s.stats.Evaluated++

		cut := series.Slice(start, end+1)
		score := Similarity(s.ref, NewProfile(cut, s.window), s.engine.cfg.EffortWeight)
		if score < s.engine.cfg.MinSimilarity {
			continue
		}

		routePoints := append([]models.GpxPoint(nil), points[start:end+1]...)
		s.add(Candidate{
			Points:    routePoints,
			Metrics:   analysis.ComputeMetrics(routePoints),
			Score:     score,
			Signature: fmt.Sprintf("%s@%d-%d", sig, start, end),
		})
	}
	return nil
}

// add keeps the best-scoring candidate per geometry
func (s *search) add(c Candidate) {
	key := geometryKey(c)
	if i, ok := s.best[key]; ok {
		if better(c, s.candidates[i]) {
			s.candidates[i] = c
		}
		return
	}
	s.best[key] = len(s.candidates)
	s.candidates = append(s.candidates, c)
	s.stats.Accepted++
}

func (s *search) finish(maxResults int) []Candidate {
	out := append([]Candidate(nil), s.candidates...)
	sort.SliceStable(out, func(i, j int) bool { return better(out[i], out[j]) })
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	if out == nil {
		out = []Candidate{}
	}
	return out
}

// better orders by score, then shorter distance, then signature
func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Metrics.DistanceKm != b.Metrics.DistanceKm {
		return a.Metrics.DistanceKm < b.Metrics.DistanceKm
	}
	return a.Signature < b.Signature
}

// geometryKey identifies routes that start, end and measure the same
func geometryKey(c Candidate) string {
	first, last := c.Points[0], c.Points[len(c.Points)-1]
	return fmt.Sprintf("%.4f,%.4f|%.4f,%.4f|%.2f",
		first.Lat, first.Lon, last.Lat, last.Lon, math.Round(c.Metrics.DistanceKm*100)/100)
}

// cumulativeEffort returns the running ITRA effort at every sample
func cumulativeEffort(s analysis.Series) []float64 {
	out := make([]float64, s.Len())
	var gain float64
	for i := 1; i < len(out); i++ {
		if d := s.Elevation[i] - s.Elevation[i-1]; d > 0 {
			gain += d
		}
		out[i] = analysis.ITRAEffort(s.Distance[i]/1000, gain)
	}
	return out
}

// cutIndex returns the end index after start whose effort gain is closest
// to target. Effort never decreases along a route, so a binary search works.
func cutIndex(effort []float64, start int, target float64) int {
	base := effort[start]
	n := len(effort)
	k := start + 1 + sort.Search(n-start-1, func(i int) bool {
		return effort[start+1+i]-base >= target
	})
	if k >= n {
		return n - 1
	}
	if k > start+1 && math.Abs(effort[k-1]-base-target) <= math.Abs(effort[k]-base-target) {
		return k - 1
	}
	return k
}
