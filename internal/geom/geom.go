// Package geom computes marker centroids and approximate areas for
// facility geometries. Areas use a spherical Web-Mercator projection
// and are indicative, not survey grade.
package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// Centroid is a derived marker position. Degenerate marks positions
// that fell back to the ring's bbox midpoint because the signed area
// was zero.
type Centroid struct {
	Lat, Lng   float64
	Degenerate bool
}

// CentroidOf returns the marker position for a geometry.
//
// Points are returned verbatim. Polygons use the shoelace centroid of
// the outer ring only; holes do not move the marker. MultiPolygons use
// the centroid of the constituent polygon with the largest unsigned
// area. Returns ok=false for nil, empty or non-finite input; never
// panics.
func CentroidOf(g orb.Geometry) (Centroid, bool) {
	switch v := g.(type) {
	case orb.Point:
		if !finite(v[0]) || !finite(v[1]) {
			return Centroid{}, false
		}
		return Centroid{Lat: v[1], Lng: v[0]}, true
	case orb.Polygon:
		if len(v) == 0 {
			return Centroid{}, false
		}
		return ringCentroid(v[0])
	case orb.MultiPolygon:
		best, ok := largestPolygon(v)
		if !ok {
			return Centroid{}, false
		}
		return ringCentroid(best[0])
	default:
		return Centroid{}, false
	}
}

// shoelace accumulation over one ring. zero signed area falls back to
// the bbox midpoint and is tagged degenerate.
func ringCentroid(ring orb.Ring) (Centroid, bool) {
	pts := closedPoints(ring)
	if len(pts) < 3 {
		return Centroid{}, false
	}
	for _, p := range pts {
		if !finite(p[0]) || !finite(p[1]) {
			return Centroid{}, false
		}
	}

	var area, cx, cy float64
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		x1, y1 := pts[j][0], pts[j][1]
		x2, y2 := pts[i][0], pts[i][1]
		f := x1*y2 - x2*y1
		area += f
		cx += (x1 + x2) * f
		cy += (y1 + y2) * f
	}
	area *= 0.5

	if area == 0 {
		mid := ringBBoxMid(pts)
		return Centroid{Lat: mid[1], Lng: mid[0], Degenerate: true}, true
	}

	cx /= 6 * area
	cy /= 6 * area
	return Centroid{Lat: cy, Lng: cx}, true
}

// drops the duplicated closing point so it is not counted twice.
func closedPoints(ring orb.Ring) []orb.Point {
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		return ring[:n-1]
	}
	return ring
}

func ringBBoxMid(pts []orb.Point) orb.Point {
	minX, minY := pts[0][0], pts[0][1]
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p[0])
		maxX = math.Max(maxX, p[0])
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}
	return orb.Point{(minX + maxX) / 2, (minY + maxY) / 2}
}

// picks by unsigned shoelace area in degree space, the same quantity
// the per-ring centroid accumulates, so pick and placement agree.
func largestPolygon(mp orb.MultiPolygon) (orb.Polygon, bool) {
	var best orb.Polygon
	bestArea := -1.0
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		a, ok := ringAreaDeg(poly[0])
		if !ok {
			continue
		}
		if a > bestArea {
			bestArea = a
			best = poly
		}
	}
	if bestArea < 0 {
		return nil, false
	}
	return best, true
}

func ringAreaDeg(ring orb.Ring) (float64, bool) {
	pts := closedPoints(ring)
	if len(pts) < 3 {
		return 0, false
	}
	var area float64
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		if !finite(pts[i][0]) || !finite(pts[i][1]) {
			return 0, false
		}
		area += pts[j][0]*pts[i][1] - pts[i][0]*pts[j][1]
	}
	return math.Abs(area / 2), true
}

const (
	earthRadiusM = 6378137.0
	// mercator blows up at the poles; leaflet clamps here too
	maxMercatorLat = 85.05113
)

// AreaM2 returns the approximate area of a geometry in square meters.
//
// Each polygon contributes |outer| minus the sum of its hole areas,
// clamped to zero before summing, so one over-drawn hole can never
// drive a multipolygon total negative. Points have zero area.
func AreaM2(g orb.Geometry) (float64, bool) {
	switch v := g.(type) {
	case orb.Point:
		return 0, true
	case orb.Polygon:
		return polygonAreaM2(v)
	case orb.MultiPolygon:
		var total float64
		any := false
		for _, poly := range v {
			a, ok := polygonAreaM2(poly)
			if !ok {
				continue
			}
			total += a
			any = true
		}
		return total, any
	default:
		return 0, false
	}
}

func polygonAreaM2(poly orb.Polygon) (float64, bool) {
	if len(poly) == 0 {
		return 0, false
	}
	outer, ok := ringAreaM2(poly[0])
	if !ok {
		return 0, false
	}
	for _, hole := range poly[1:] {
		h, ok := ringAreaM2(hole)
		if !ok {
			continue
		}
		outer -= h
	}
	if outer < 0 {
		outer = 0
	}
	return outer, true
}

// unsigned shoelace area of one ring after projecting to mercator meters.
func ringAreaM2(ring orb.Ring) (float64, bool) {
	pts := closedPoints(ring)
	if len(pts) < 3 {
		return 0, false
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		if !finite(p[0]) || !finite(p[1]) {
			return 0, false
		}
		x, y := project(p[0], p[1])
		xs[i], ys[i] = x, y
	}

	var area float64
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		area += xs[j]*ys[i] - xs[i]*ys[j]
	}
	return math.Abs(area / 2), true
}

func project(lng, lat float64) (x, y float64) {
	if lat > maxMercatorLat {
		lat = maxMercatorLat
	}
	if lat < -maxMercatorLat {
		lat = -maxMercatorLat
	}
	x = earthRadiusM * lng * math.Pi / 180
	y = earthRadiusM * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
