package ephemeris

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sivanadi/AstroCalc/internal/model"
)

func chart(t *testing.T, req Request) *Result {
	t.Helper()
	if req.Ayanamsha == "" {
		req.Ayanamsha = AyanamshaLahiri
	}
	if req.HouseSystem == "" {
		req.HouseSystem = HousePlacidus
	}
	res, err := NewBuiltin().Chart(context.Background(), req)
	if err != nil {
		t.Fatalf("Chart: %v", err)
	}
	return res
}

func TestJulianDay(t *testing.T) {
	cases := []struct {
		year, month, day int
		hour             float64
		want             float64
	}{
		{2000, 1, 1, 12.0, 2451545.0},
		{1987, 4, 10, 0.0, 2446895.5},
		{2024, 6, 15, 15.5, 2460477.145833},
	}
	for _, tc := range cases {
		got := julianDay(tc.year, tc.month, tc.day, tc.hour)
		if math.Abs(got-tc.want) > 1e-5 {
			t.Errorf("julianDay(%d,%d,%d,%g) = %f, want %f", tc.year, tc.month, tc.day, tc.hour, got, tc.want)
		}
	}
}

func TestChartJ2000Sanity(t *testing.T) {
	res := chart(t, Request{Year: 2000, Month: 1, Day: 1, Hour: 12.0, Lat: 28.61, Lon: 77.21})

	if res.JulianDayUT != 2451545.0 {
		t.Errorf("julian day = %f", res.JulianDayUT)
	}

	// The Sun's sidereal (Lahiri) longitude at the J2000 epoch is close to
	// 256.5 degrees.
	sun := res.PlanetsDeg["Sun"]
	if math.Abs(sun-256.5) > 1.0 {
		t.Errorf("Sun = %f, want about 256.5", sun)
	}

	// Mean node at J2000 is near 125 tropical, about 101 sidereal.
	rahu := res.PlanetsDeg["Rahu"]
	if math.Abs(rahu-101.2) > 1.0 {
		t.Errorf("Rahu = %f, want about 101.2", rahu)
	}

	for _, name := range Planets {
		deg, ok := res.PlanetsDeg[name]
		if !ok {
			t.Errorf("missing body %s", name)
			continue
		}
		if deg < 0 || deg >= 360 {
			t.Errorf("%s = %f out of range", name, deg)
		}
	}
	if res.AscendantDeg < 0 || res.AscendantDeg >= 360 {
		t.Errorf("ascendant = %f out of range", res.AscendantDeg)
	}
}

func TestKetuOppositeRahu(t *testing.T) {
	res := chart(t, Request{Year: 2024, Month: 6, Day: 15, Hour: 9.25, Lat: 13.08, Lon: 80.27})

	diff := math.Mod(res.PlanetsDeg["Ketu"]-res.PlanetsDeg["Rahu"]+360, 360)
	if math.Abs(diff-180) > 0.02 {
		t.Errorf("Ketu-Rahu separation = %f, want 180", diff)
	}
}

func TestAyanamshaOrdering(t *testing.T) {
	req := Request{Year: 2024, Month: 6, Day: 15, Hour: 12.0, Lat: 0, Lon: 0, HouseSystem: HouseEqual}

	req.Ayanamsha = AyanamshaFaganBradley
	fagan := chart(t, req).PlanetsDeg["Sun"]
	req.Ayanamsha = AyanamshaLahiri
	lahiri := chart(t, req).PlanetsDeg["Sun"]
	req.Ayanamsha = AyanamshaRaman
	raman := chart(t, req).PlanetsDeg["Sun"]

	// A larger offset pushes sidereal longitudes back.
	sep := func(a, b float64) float64 { return math.Mod(a-b+360, 360) }
	if d := sep(raman, lahiri); d < 1.0 || d > 2.0 {
		t.Errorf("raman-lahiri separation = %f, want about 1.36", d)
	}
	if d := sep(lahiri, fagan); d < 0.5 || d > 1.5 {
		t.Errorf("lahiri-fagan separation = %f, want about 0.89", d)
	}
}

func TestCusps(t *testing.T) {
	res := chart(t, Request{Year: 2024, Month: 6, Day: 15, Hour: 12.0, Lat: 51.5, Lon: -0.12, HouseSystem: HouseEqual})
	if len(res.CuspsDeg) != 12 {
		t.Fatalf("got %d cusps", len(res.CuspsDeg))
	}
	if res.CuspsDeg[0] != res.AscendantDeg {
		t.Errorf("equal houses start at the ascendant: cusp=%f asc=%f", res.CuspsDeg[0], res.AscendantDeg)
	}
	if d := math.Mod(res.CuspsDeg[1]-res.CuspsDeg[0]+360, 360); math.Abs(d-30) > 0.01 {
		t.Errorf("cusp spacing = %f", d)
	}

	res = chart(t, Request{Year: 2024, Month: 6, Day: 15, Hour: 12.0, Lat: 51.5, Lon: -0.12, HouseSystem: HouseWholeSign})
	if rem := math.Mod(res.CuspsDeg[0], 30); rem != 0 {
		t.Errorf("whole-sign cusp 1 = %f, want a sign boundary", res.CuspsDeg[0])
	}
}

func TestRequestValidation(t *testing.T) {
	valid := Request{Year: 2024, Month: 6, Day: 15, Hour: 12.0, Lat: 28.61, Lon: 77.21}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"month low", func(r *Request) { r.Month = 0 }, "month"},
		{"month high", func(r *Request) { r.Month = 13 }, "month"},
		{"day low", func(r *Request) { r.Day = 0 }, "day"},
		{"day high", func(r *Request) { r.Day = 32 }, "day"},
		{"hour negative", func(r *Request) { r.Hour = -0.5 }, "hour"},
		{"hour 24", func(r *Request) { r.Hour = 24 }, "hour"},
		{"lat low", func(r *Request) { r.Lat = -90.5 }, "lat"},
		{"lat high", func(r *Request) { r.Lat = 90.5 }, "lat"},
		{"lon low", func(r *Request) { r.Lon = -180.5 }, "lon"},
		{"lon high", func(r *Request) { r.Lon = 180.5 }, "lon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			err := req.Validate()
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Errorf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestParseEnums(t *testing.T) {
	if a, err := ParseAyanamsha(""); err != nil || a != AyanamshaLahiri {
		t.Errorf("empty ayanamsha: %v %v", a, err)
	}
	if _, err := ParseAyanamsha("lahiri "); err == nil {
		t.Error("whitespace variant must be rejected")
	}
	if _, err := ParseAyanamsha("tropical"); err == nil {
		t.Error("unknown ayanamsha must be rejected")
	}

	if h, err := ParseHouseSystem(""); err != nil || h != HousePlacidus {
		t.Errorf("empty house system: %v %v", h, err)
	}
	if _, err := ParseHouseSystem("campanus"); err == nil {
		t.Error("unknown house system must be rejected")
	}
}
