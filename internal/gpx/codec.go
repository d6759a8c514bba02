// Package gpx synthesizes and parses GPX 1.1 track documents.
//
// Encoding produces a deterministic elevation/time profile for a drawn
// route; identical inputs always yield identical documents. Decoding is a
// best-effort boundary: it never fails outward, returning an empty result
// with a diagnostic error the caller may log.
package gpx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"fakemyrun/internal/domain"
)

const (
	creator       = "FakeMyRun"
	xmlns         = "http://www.topografix.com/GPX/1/1"
	baseElevation = 100.0

	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

var (
	// ErrTooFewPoints is returned when a route cannot produce a track.
	ErrTooFewPoints = errors.New("route must contain at least 2 points")
	// ErrBadSchedule is returned when the run date or start time cannot be parsed.
	ErrBadSchedule = errors.New("invalid run date or start time")

	// Decode diagnostics; never propagated past the decode boundary.
	errMalformedDocument = errors.New("malformed gpx document")
	errNoTrackPoints     = errors.New("no track points found")
)

type document struct {
	XMLName  xml.Name  `xml:"gpx"`
	Xmlns    string    `xml:"xmlns,attr,omitempty"`
	Version  string    `xml:"version,attr"`
	Creator  string    `xml:"creator,attr"`
	Metadata *metadata `xml:"metadata"`
	Tracks   []track   `xml:"trk"`
}

type metadata struct {
	Name string `xml:"name,omitempty"`
	Desc string `xml:"desc,omitempty"`
}

type track struct {
	Name     string    `xml:"name,omitempty"`
	Desc     string    `xml:"desc,omitempty"`
	Segments []segment `xml:"trkseg"`
}

type segment struct {
	Points []point `xml:"trkpt"`
}

type point struct {
	Lat  float64  `xml:"lat,attr"`
	Lon  float64  `xml:"lon,attr"`
	Ele  *float64 `xml:"ele,omitempty"`
	Time string   `xml:"time,omitempty"`
}

// Elevation returns the synthesized elevation for point i of n. The profile
// starts anchored at the base elevation and climbs linearly to base + gain
// with a small deterministic oscillation, so repeated encodes of the same
// route are identical.
func Elevation(i, n int, gain float64) float64 {
	if i == 0 {
		return baseElevation
	}
	var climb float64
	if n > 1 {
		climb = gain * float64(i) / float64(n-1)
	}
	noise := float64(i%10-5) * 2
	return baseElevation + climb + noise
}

// Encode renders coords and details as a GPX 1.1 document. When the run
// metadata carries a date and a positive duration, every point gets a
// synthesized elevation and an absolute timestamp; otherwise a bare
// document with coordinates only is produced.
func Encode(coords []domain.Coordinate, details domain.RunDetails) (string, error) {
	if len(coords) < 2 {
		return "", ErrTooFewPoints
	}

	doc := document{
		Xmlns:   xmlns,
		Version: "1.1",
		Creator: creator,
		Metadata: &metadata{
			Name: details.Name,
			Desc: details.Description,
		},
		Tracks: []track{{
			Name:     details.Name,
			Desc:     details.Description,
			Segments: []segment{{}},
		}},
	}

	full := details.Date != "" && details.Duration > 0
	var (
		start     time.Time
		increment time.Duration
	)
	if full {
		var err error
		start, err = startTimestamp(details.Date, details.StartTime)
		if err != nil {
			return "", err
		}
		increment = time.Duration(float64(details.Duration)/float64(len(coords)-1)*1000) * time.Millisecond
	}

	points := make([]point, len(coords))
	for i, c := range coords {
		points[i] = point{Lat: c.Lat, Lon: c.Lng}
		if full {
			ele := Elevation(i, len(coords), details.ElevationGain)
			points[i].Ele = &ele
			points[i].Time = start.Add(time.Duration(i) * increment).UTC().Format(time.RFC3339)
		}
	}
	doc.Tracks[0].Segments[0].Points = points

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal gpx: %w", err)
	}
	return xml.Header + string(out), nil
}

func startTimestamp(date, startTime string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse date %q", ErrBadSchedule, date)
	}
	if startTime == "" {
		startTime = "08:00"
	}
	clock, err := time.Parse(timeLayout, startTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse start time %q", ErrBadSchedule, startTime)
	}
	return day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), nil
}

// Decode extracts every track point across all tracks and segments, in
// document order, plus a route name resolved from the document metadata or
// the first named track. It never fails: a malformed document yields an
// empty result. The returned error is diagnostic only and distinguishes
// unparseable XML from a document with no points.
func Decode(data []byte) ([]domain.Coordinate, string, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("%w: %v", errMalformedDocument, err)
	}

	var coords []domain.Coordinate
	name := ""
	if doc.Metadata != nil {
		name = doc.Metadata.Name
	}
	for _, trk := range doc.Tracks {
		if name == "" && trk.Name != "" {
			name = trk.Name
		}
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				coords = append(coords, domain.Coordinate{Lat: p.Lat, Lng: p.Lon})
			}
		}
	}
	if len(coords) == 0 {
		return nil, "", errNoTrackPoints
	}
	return coords, name, nil
}

// Filename derives a download filename from a route name and date. The name
// is reduced to alphanumerics, spaces, hyphens and underscores; spaces
// become underscores.
func Filename(name, date string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	safe := strings.TrimRight(b.String(), " ")
	safe = strings.ReplaceAll(safe, " ", "_")
	if safe == "" {
		safe = "route"
	}
	if date != "" {
		return fmt.Sprintf("%s_%s.gpx", safe, date)
	}
	return safe + ".gpx"
}
