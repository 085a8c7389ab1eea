package proj

import (
	"errors"
	"math"
	"testing"

	"go.ngs.io/antgrid/internal/domain"
)

func TestForward_KnownPoints(t *testing.T) {
	p := EPSG3031()

	// South pole maps to the origin.
	x, y, err := p.Forward(-90, 0)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if math.Abs(x) > 1e-6 || math.Abs(y) > 1e-6 {
		t.Errorf("expected origin, got (%f, %f)", x, y)
	}

	// Greenwich points up the y axis, 90E along +x.
	_, y, _ = p.Forward(-71, 0)
	if y <= 0 {
		t.Errorf("expected positive y for lon 0, got %f", y)
	}
	x, y, _ = p.Forward(-71, 90)
	if x <= 0 || math.Abs(y) > 1e-6 {
		t.Errorf("expected +x axis for lon 90, got (%f, %f)", x, y)
	}

	// Scale is true at 71S: rho equals the parallel radius a*m(phi).
	x, y, _ = p.Forward(-71, 45)
	rho := math.Hypot(x, y)
	want := p.a * p.m(71*math.Pi/180)
	if math.Abs(rho-want) > 1e-3 {
		t.Errorf("expected rho %.3f at 71S, got %.3f", want, rho)
	}
}

func TestRoundTrip(t *testing.T) {
	p := EPSG3031()

	points := []struct{ lat, lon float64 }{
		{-90, 0},
		{-85.5, 12.25},
		{-77.846, 166.668}, // McMurdo
		{-71, -179.9},
		{-64.2, -56.6},
		{-60, 179.5},
		{-45, 90},
		{-80.0, -120.0},
	}

	for _, pt := range points {
		x, y, err := p.Forward(pt.lat, pt.lon)
		if err != nil {
			t.Fatalf("Forward(%v): %v", pt, err)
		}
		lat, lon, err := p.Inverse(x, y)
		if err != nil {
			t.Fatalf("Inverse(%f, %f): %v", x, y, err)
		}
		if math.Abs(lat-pt.lat) > 1e-6 {
			t.Errorf("lat round trip %f -> %f", pt.lat, lat)
		}
		if pt.lat != -90 && math.Abs(lon-pt.lon) > 1e-6 {
			t.Errorf("lon round trip %f -> %f", pt.lon, lon)
		}
	}
}

func TestForward_Invalid(t *testing.T) {
	p := EPSG3031()

	for _, pt := range []struct{ lat, lon float64 }{
		{-91, 0},
		{95, 0},
		{-70, 400},
		{math.NaN(), 0},
		{90, 0},
	} {
		_, _, err := p.Forward(pt.lat, pt.lon)
		var pe *domain.ProjectionError
		if !errors.As(err, &pe) {
			t.Errorf("Forward(%v, %v): expected ProjectionError, got %v", pt.lat, pt.lon, err)
		}
	}

	if _, _, err := p.ForwardAll([]float64{-70, -100}, []float64{0, 0}); err == nil {
		t.Error("ForwardAll: expected error for invalid point")
	}
	if _, _, err := p.ForwardAll([]float64{-70}, nil); err == nil {
		t.Error("ForwardAll: expected error for mismatched lengths")
	}
}
