package synthesis

import (
	"fmt"

	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/spatial"
)

// CorpusTrack is a recorded track candidate routes may be cut from
type CorpusTrack struct {
	ID     string
	Points []models.GpxPoint
}

// fragment is a run of consecutive in-box points of one corpus track
type fragment struct {
	trackID string
	seq     int
	points  []models.GpxPoint
}

func (f fragment) key() string {
	return fmt.Sprintf("%s#%d", f.trackID, f.seq)
}

func (f fragment) first() models.GpxPoint { return f.points[0] }
func (f fragment) last() models.GpxPoint  { return f.points[len(f.points)-1] }

// clip splits a track into the runs of at least two points that lie inside the box
func clip(track CorpusTrack, box spatial.BoundingBox) []fragment {
	var (
		out []fragment
		run []models.GpxPoint
	)
	flush := func() {
		if len(run) >= 2 {
			out = append(out, fragment{trackID: track.ID, seq: len(out), points: run})
		}
		run = nil
	}

	for _, p := range track.Points {
		if box.Contains(p.Lat, p.Lon) {
			run = append(run, p)
			continue
		}
		flush()
	}
	flush()
	return out
}

// link is one fragment of a chain, possibly walked backwards
type link struct {
	frag     int
	reversed bool
}

// tail returns the point a chain ending in this link finishes on
func (l link) tail(frags []fragment) models.GpxPoint {
	if l.reversed {
		return frags[l.frag].first()
	}
	return frags[l.frag].last()
}

// chainPoints concatenates the oriented fragments of a chain
func chainPoints(frags []fragment, chain []link) []models.GpxPoint {
	var n int
	for _, l := range chain {
		n += len(frags[l.frag].points)
	}

	points := make([]models.GpxPoint, 0, n)
	for _, l := range chain {
		src := frags[l.frag].points
		if !l.reversed {
			points = append(points, src...)
			continue
		}
		for i := len(src) - 1; i >= 0; i-- {
			points = append(points, src[i])
		}
	}
	return points
}

func chainSignature(frags []fragment, chain []link) string {
	sig := ""
	for i, l := range chain {
		if i > 0 {
			sig += ">"
		}
		sig += frags[l.frag].key()
		if l.reversed {
			sig += "r"
		}
	}
	return sig
}
