// Package geo provides the planar geometry used by the spatial state store:
// WKT parsing and formatting, degree-space distance, point-in-polygon, and
// segment intersection. Coordinates are treated as a flat lon/lat plane, which
// is adequate at the simulation's regional scale.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point is a lon/lat coordinate pair in degrees.
type Point struct {
	Lon float64
	Lat float64
}

// Polygon is a closed ring of points. The first and last point are equal.
type Polygon struct {
	Ring []Point
}

// Distance returns the euclidean distance between two points in degrees.
func Distance(a, b Point) float64 {
	dx := a.Lon - b.Lon
	dy := a.Lat - b.Lat
	return math.Sqrt(dx*dx + dy*dy)
}

// FormatPoint serializes a point as WKT.
func FormatPoint(p Point) string {
	return fmt.Sprintf("POINT(%g %g)", p.Lon, p.Lat)
}

// ParsePoint parses a WKT POINT.
func ParsePoint(wkt string) (Point, error) {
	s := strings.TrimSpace(wkt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "POINT") {
		return Point{}, fmt.Errorf("not a WKT point: %q", wkt)
	}
	open := strings.Index(s, "(")
	close := strings.LastIndex(s, ")")
	if open < 0 || close < open {
		return Point{}, fmt.Errorf("malformed WKT point: %q", wkt)
	}
	fields := strings.Fields(s[open+1 : close])
	if len(fields) < 2 {
		return Point{}, fmt.Errorf("WKT point needs two coordinates: %q", wkt)
	}
	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Point{}, fmt.Errorf("parsing longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Point{}, fmt.Errorf("parsing latitude: %w", err)
	}
	return Point{Lon: lon, Lat: lat}, nil
}

// ParsePolygon parses a WKT POLYGON or the first polygon of a MULTIPOLYGON.
// Only the outer ring is read; holes are ignored. The ring must be closed.
func ParsePolygon(wkt string) (Polygon, error) {
	s := strings.TrimSpace(wkt)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
	case strings.HasPrefix(upper, "POLYGON"):
	default:
		return Polygon{}, fmt.Errorf("not a WKT polygon: %q", wkt)
	}

	// The outer ring is the first parenthesized coordinate list.
	start := strings.Index(s, "(")
	if start < 0 {
		return Polygon{}, fmt.Errorf("malformed WKT polygon: %q", wkt)
	}
	ringStart := -1
	ringEnd := -1
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '(':
			ringStart = i + 1
		case ')':
			ringEnd = i
		}
		if ringEnd > 0 {
			break
		}
	}
	if ringStart < 0 || ringEnd < ringStart {
		return Polygon{}, fmt.Errorf("malformed WKT polygon: %q", wkt)
	}

	pairs := strings.Split(s[ringStart:ringEnd], ",")
	if len(pairs) < 4 {
		return Polygon{}, fmt.Errorf("polygon ring needs at least 4 points: %q", wkt)
	}
	ring := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) < 2 {
			return Polygon{}, fmt.Errorf("malformed coordinate pair %q", pair)
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Polygon{}, fmt.Errorf("parsing longitude: %w", err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Polygon{}, fmt.Errorf("parsing latitude: %w", err)
		}
		ring = append(ring, Point{Lon: lon, Lat: lat})
	}
	first, last := ring[0], ring[len(ring)-1]
	if first != last {
		return Polygon{}, fmt.Errorf("polygon ring is not closed: %q", wkt)
	}
	return Polygon{Ring: ring}, nil
}

// Contains reports whether the point lies inside the polygon, using ray
// casting. Points exactly on an edge count as inside.
func (p Polygon) Contains(pt Point) bool {
	n := len(p.Ring)
	if n < 4 {
		return false
	}
	inside := false
	for i := 0; i < n-1; i++ {
		a, b := p.Ring[i], p.Ring[i+1]
		if onSegment(pt, a, b) {
			return true
		}
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			xCross := a.Lon + (pt.Lat-a.Lat)/(b.Lat-a.Lat)*(b.Lon-a.Lon)
			if pt.Lon < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// IntersectsSegment reports whether the segment from a to b crosses any edge
// of the polygon, or has either endpoint inside it.
func (p Polygon) IntersectsSegment(a, b Point) bool {
	if p.Contains(a) || p.Contains(b) {
		return true
	}
	for i := 0; i < len(p.Ring)-1; i++ {
		if SegmentsIntersect(a, b, p.Ring[i], p.Ring[i+1]) {
			return true
		}
	}
	return false
}

// SegmentsIntersect reports whether segments p1-p2 and q1-q2 intersect,
// including collinear overlap.
func SegmentsIntersect(p1, p2, q1, q2 Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if d1 == 0 && onSegment(p1, q1, q2) {
		return true
	}
	if d2 == 0 && onSegment(p2, q1, q2) {
		return true
	}
	if d3 == 0 && onSegment(q1, p1, p2) {
		return true
	}
	if d4 == 0 && onSegment(q2, p1, p2) {
		return true
	}
	return false
}

const epsilon = 1e-12

func cross(o, a, b Point) float64 {
	return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
}

// onSegment reports whether pt lies on the segment a-b.
func onSegment(pt, a, b Point) bool {
	if math.Abs(cross(a, b, pt)) > epsilon {
		return false
	}
	return pt.Lon >= math.Min(a.Lon, b.Lon)-epsilon &&
		pt.Lon <= math.Max(a.Lon, b.Lon)+epsilon &&
		pt.Lat >= math.Min(a.Lat, b.Lat)-epsilon &&
		pt.Lat <= math.Max(a.Lat, b.Lat)+epsilon
}
