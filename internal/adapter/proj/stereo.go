// Package proj converts between geographic WGS84 coordinates (EPSG:4326) and
// Antarctic Polar Stereographic (EPSG:3031).
package proj

import (
	"errors"
	"fmt"
	"math"

	"go.ngs.io/antgrid/internal/domain"
)

// WGS84 ellipsoid and EPSG:3031 parameters.
const (
	semiMajor       = 6378137.0
	inverseFlat     = 298.257223563
	latTrueScale    = -71.0 // standard parallel, degrees
	centralMeridian = 0.0
)

var (
	errLatRange   = errors.New("latitude outside [-90, 90]")
	errLonRange   = errors.New("longitude outside [-360, 360]")
	errNotFinite  = errors.New("coordinate is not finite")
	errProjection = errors.New("point at the north pole cannot be projected")
)

// Stereographic is the south polar stereographic projection on the WGS84
// ellipsoid. The zero value is not usable; call EPSG3031.
type Stereographic struct {
	a, e   float64
	lon0   float64 // radians
	scale  float64 // a * m(lat_ts) / t(lat_ts)
	iterMx int
}

// EPSG3031 returns the Antarctic Polar Stereographic projection.
func EPSG3031() *Stereographic {
	f := 1 / inverseFlat
	e := math.Sqrt(2*f - f*f)
	s := &Stereographic{a: semiMajor, e: e, lon0: centralMeridian * math.Pi / 180, iterMx: 30}

	// Formulas below work on the north-aspect mirror image, so the standard
	// parallel is negated.
	phiC := -latTrueScale * math.Pi / 180
	s.scale = s.a * s.m(phiC) / s.t(phiC)
	return s
}

func (s *Stereographic) t(phi float64) float64 {
	es := s.e * math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-es)/(1+es), s.e/2)
}

func (s *Stereographic) m(phi float64) float64 {
	sin := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-s.e*s.e*sin*sin)
}

// Forward projects (lat, lon) in degrees to (x, y) in metres.
func (s *Stereographic) Forward(lat, lon float64) (x, y float64, err error) {
	if err := checkGeographic(lat, lon); err != nil {
		return 0, 0, &domain.ProjectionError{Lat: lat, Lon: lon, Err: err}
	}
	if lat == 90 {
		return 0, 0, &domain.ProjectionError{Lat: lat, Lon: lon, Err: errProjection}
	}

	phi := -lat * math.Pi / 180
	lam := -lon*math.Pi/180 - s.lon0

	rho := s.scale * s.t(phi)
	x = -rho * math.Sin(lam)
	y = rho * math.Cos(lam)
	return x, y, nil
}

// Inverse converts (x, y) in metres back to (lat, lon) in degrees, with lon
// in [-180, 180].
func (s *Stereographic) Inverse(x, y float64) (lat, lon float64, err error) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, &domain.ProjectionError{Lat: y, Lon: x, Err: fmt.Errorf("x/y: %w", errNotFinite)}
	}

	rho := math.Hypot(x, y)
	if rho == 0 {
		return -90, 0, nil
	}

	ts := rho / s.scale
	phi := math.Pi/2 - 2*math.Atan(ts)
	for i := 0; i < s.iterMx; i++ {
		es := s.e * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(ts*math.Pow((1-es)/(1+es), s.e/2))
		if math.Abs(next-phi) < 1e-14 {
			phi = next
			break
		}
		phi = next
	}
	lam := s.lon0 + math.Atan2(-x, y)

	lat = -phi * 180 / math.Pi
	lon = normalizeLon(-lam * 180 / math.Pi)
	return lat, lon, nil
}

// ForwardAll projects paired coordinate slices, failing on the first
// invalid point.
func (s *Stereographic) ForwardAll(lats, lons []float64) (xs, ys []float64, err error) {
	if len(lats) != len(lons) {
		return nil, nil, fmt.Errorf("latitude and longitude counts differ: %d vs %d", len(lats), len(lons))
	}
	xs = make([]float64, len(lats))
	ys = make([]float64, len(lats))
	for i := range lats {
		xs[i], ys[i], err = s.Forward(lats[i], lons[i])
		if err != nil {
			return nil, nil, fmt.Errorf("point %d: %w", i, err)
		}
	}
	return xs, ys, nil
}

func checkGeographic(lat, lon float64) error {
	switch {
	case math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0):
		return errNotFinite
	case lat < -90 || lat > 90:
		return errLatRange
	case lon < -360 || lon > 360:
		return errLonRange
	}
	return nil
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
