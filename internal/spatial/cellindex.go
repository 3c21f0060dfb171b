package spatial

import (
	"sort"

	"github.com/golang/geo/s2"
)

// DefaultCellLevel gives cells roughly 300 m across
const DefaultCellLevel = 15

// IndexEntry is a keyed point stored in a CellIndex
type IndexEntry struct {
	Key int
	Point
}

// Match is an entry found by a radius query
type Match struct {
	IndexEntry
	Distance float64 // meters
}

// CellIndex buckets points by s2 cell so that neighbours within a small
// radius can be found without scanning every point.
// The query radius must not exceed the cell size of the chosen level.
type CellIndex struct {
	level int
	cells map[s2.CellID][]IndexEntry
}

// NewCellIndex creates an empty index at the given s2 level
func NewCellIndex(level int) *CellIndex {
	return &CellIndex{
		level: level,
		cells: make(map[s2.CellID][]IndexEntry),
	}
}

func (idx *CellIndex) cellFor(lat, lon float64) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(idx.level)
}

// Insert adds a point under the given key
func (idx *CellIndex) Insert(key int, lat, lon float64) {
	cell := idx.cellFor(lat, lon)
	idx.cells[cell] = append(idx.cells[cell], IndexEntry{Key: key, Point: Point{Lat: lat, Lon: lon}})
}

// Len returns the number of indexed points
func (idx *CellIndex) Len() int {
	n := 0
	for _, entries := range idx.cells {
		n += len(entries)
	}
	return n
}

// Within returns all entries within radius meters of (lat, lon), nearest first.
// Ties are broken by key so results are deterministic.
func (idx *CellIndex) Within(lat, lon, radius float64) []Match {
	cell := idx.cellFor(lat, lon)
	candidates := append([]s2.CellID{cell}, cell.AllNeighbors(idx.level)...)

	seen := make(map[s2.CellID]bool, len(candidates))
	var matches []Match
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		for _, e := range idx.cells[c] {
			d := HaversineDistance(lat, lon, e.Lat, e.Lon)
			if d <= radius {
				matches = append(matches, Match{IndexEntry: e, Distance: d})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Key < matches[j].Key
	})
	return matches
}
