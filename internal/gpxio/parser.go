// Package gpxio reads uploaded GPX files into clean point sequences and writes them back out.
package gpxio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"
	"github.com/voltplatform/volt-backend/internal/models"
)

var (
	// ErrInvalidFileType is returned for uploads that are not GPX
	ErrInvalidFileType = errors.New("invalid file type: expected a .gpx file")
	// ErrFileTooLarge is returned for uploads over the size limit
	ErrFileTooLarge = errors.New("file too large")
	// ErrMalformed is returned when the content cannot be decoded as GPX
	ErrMalformed = errors.New("malformed GPX")
	// ErrNoPoints is returned when the document has no track, route or waypoint
	ErrNoPoints = errors.New("GPX contains no points")
	// ErrTooFewPoints is returned when fewer than two points survive cleaning
	ErrTooFewPoints = errors.New("GPX must contain at least 2 distinct points")
)

var (
	utf8BOM         = []byte{0xEF, 0xBB, 0xBF}
	extensionsBlock = regexp.MustCompile(`(?s)<extensions>.*?</extensions>|<extensions\s*/>`)
	namespacedTag   = regexp.MustCompile(`(</?)[A-Za-z_][\w.-]*:`)
)

// Parsed is the result of reading a GPX document
type Parsed struct {
	Name   string
	Points []models.GpxPoint
}

// ValidateUpload checks the file name, content type and size of an upload
func ValidateUpload(filename, contentType string, size, maxBytes int64) error {
	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds the limit of %d bytes", ErrFileTooLarge, size, maxBytes)
	}

	if strings.EqualFold(filepath.Ext(filename), ".gpx") {
		return nil
	}
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	switch strings.ToLower(mediaType) {
	case "application/gpx+xml", "application/xml", "text/xml":
		return nil
	}
	return ErrInvalidFileType
}

// Parse decodes a GPX document and returns its cleaned, optimised point sequence
func Parse(data []byte) (*Parsed, error) {
	clean := sanitize(data)
	if !bytes.Contains(clean, []byte("<gpx")) {
		return nil, fmt.Errorf("%w: missing <gpx> root element", ErrMalformed)
	}

	doc, err := gpx.ParseBytes(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	points := extractPoints(doc)
	if len(points) == 0 {
		return nil, ErrNoPoints
	}

	points = Optimize(points)
	if len(points) < 2 {
		return nil, ErrTooFewPoints
	}
	CleanElevations(points)

	return &Parsed{Name: documentName(doc), Points: points}, nil
}

// sanitize strips the BOM, vendor extension blocks and namespace prefixes
// that trip up strict decoding of exports from Garmin and similar devices.
func sanitize(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = extensionsBlock.ReplaceAll(data, nil)
	return namespacedTag.ReplaceAll(data, []byte("$1"))
}

func documentName(doc *gpx.GPX) string {
	if name := strings.TrimSpace(doc.Name); name != "" {
		return name
	}
	for _, track := range doc.Tracks {
		if name := strings.TrimSpace(track.Name); name != "" {
			return name
		}
	}
	return ""
}

// extractPoints collects track points, falling back to route points and then waypoints
func extractPoints(doc *gpx.GPX) []models.GpxPoint {
	var points []models.GpxPoint
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				points = appendPoint(points, p)
			}
		}
	}
	if len(points) > 0 {
		return points
	}

	for _, route := range doc.Routes {
		for _, p := range route.Points {
			points = appendPoint(points, p)
		}
	}
	if len(points) > 0 {
		return points
	}

	for _, p := range doc.Waypoints {
		points = appendPoint(points, p)
	}
	return points
}

func appendPoint(points []models.GpxPoint, p gpx.GPXPoint) []models.GpxPoint {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) ||
		math.Abs(p.Latitude) > 90 || math.Abs(p.Longitude) > 180 {
		return points
	}

	point := models.GpxPoint{Lat: p.Latitude, Lon: p.Longitude}
	if p.Elevation.NotNull() {
		point.Ele = p.Elevation.Value()
	}
	if !p.Timestamp.IsZero() {
		ts := p.Timestamp.UTC()
		point.Time = &ts
	}
	return append(points, point)
}
