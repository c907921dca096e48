package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// ErrInvalidCoordinate is returned for non-finite or out-of-range coordinates.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Validate checks that lat is in [-90, 90] and lon is in [-180, 180].
func Validate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return fmt.Errorf("%w: coordinates must be finite numbers", ErrInvalidCoordinate)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %g out of range [-90, 90]", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %g out of range [-180, 180]", ErrInvalidCoordinate, lon)
	}
	return nil
}

// Point converts a lat/lon pair to an orb point (x = lon, y = lat).
func Point(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return orbgeo.DistanceHaversine(Point(lat1, lon1), Point(lat2, lon2))
}

// BoxDistance returns the smallest great-circle distance in meters from
// (lat, lon) to any point inside the lat/lon bound b. It is exact, so it is
// a valid lower bound for every point stored under b.
func BoxDistance(lat, lon float64, b orb.Bound) float64 {
	if lon >= b.Left() && lon <= b.Right() {
		return Haversine(lat, lon, clamp(lat, b.Bottom(), b.Top()), lon)
	}

	// Outside the longitude band the closest point lies on the nearer edge
	// meridian. Along it cos(distance) is proportional to cos(φ - α), so the
	// distance is smallest at φ = α and grows away from it in both
	// directions, possibly over a pole.
	edge := b.Left()
	if lonDiff(lon, b.Right()) < lonDiff(lon, edge) {
		edge = b.Right()
	}
	dLon := lonDiff(lon, edge) * math.Pi / 180
	phi := lat * math.Pi / 180

	alpha := math.Atan2(math.Sin(phi), math.Cos(phi)*math.Cos(dLon)) * 180 / math.Pi
	if alpha >= b.Bottom() && alpha <= b.Top() {
		return Haversine(lat, lon, alpha, edge)
	}
	return min(Haversine(lat, lon, b.Bottom(), edge), Haversine(lat, lon, b.Top(), edge))
}

// lonDiff returns the absolute angular difference between two longitudes in
// degrees, in [0, 180].
func lonDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
