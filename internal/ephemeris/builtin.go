package ephemeris

import (
	"context"
	"math"
)

// Builtin is a self-contained low-precision calculator: Keplerian mean
// elements for the planets, a truncated lunar series, the mean lunar node for
// Rahu and an ascendant derived from local sidereal time. Positions are good
// to a fraction of a degree over roughly 1900-2100, which is adequate for
// sign and house placement. Placidus and Koch cusps are approximated with
// equal houses from the ascendant.
type Builtin struct{}

func NewBuiltin() *Builtin { return &Builtin{} }

// Chart computes the sidereal chart for req. The request must already be
// validated.
func (b *Builtin) Chart(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jd := julianDay(req.Year, req.Month, req.Day, req.Hour)
	t := (jd - j2000) / 36525.0
	ayan := ayanamshaDeg(req.Ayanamsha, t)

	planets := make(map[string]float64, len(Planets))

	earth := heliocentric(elementsEarth, t)
	planets["Sun"] = round2(sidereal(geocentricLongitude(vector{}, earth), ayan))
	planets["Moon"] = round2(sidereal(moonLongitude(t), ayan))
	planets["Mercury"] = round2(sidereal(geocentricLongitude(heliocentric(elementsMercury, t), earth), ayan))
	planets["Venus"] = round2(sidereal(geocentricLongitude(heliocentric(elementsVenus, t), earth), ayan))
	planets["Mars"] = round2(sidereal(geocentricLongitude(heliocentric(elementsMars, t), earth), ayan))
	planets["Jupiter"] = round2(sidereal(geocentricLongitude(heliocentric(elementsJupiter, t), earth), ayan))
	planets["Saturn"] = round2(sidereal(geocentricLongitude(heliocentric(elementsSaturn, t), earth), ayan))

	rahu := sidereal(meanNode(t), ayan)
	planets["Rahu"] = round2(rahu)
	planets["Ketu"] = round2(math.Mod(rahu+180, 360))

	asc := sidereal(ascendant(jd, t, req.Lat, req.Lon), ayan)

	return &Result{
		JulianDayUT:  round6(jd),
		AscendantDeg: round2(asc),
		CuspsDeg:     cusps(req.HouseSystem, asc),
		PlanetsDeg:   planets,
	}, nil
}

const j2000 = 2451545.0

// julianDay converts a Gregorian calendar date plus decimal UT hour to the
// julian day number.
func julianDay(year, month, day int, hour float64) float64 {
	y, m := year, month
	if m <= 2 {
		y--
		m += 12
	}
	a := y / 100
	b := 2 - a + a/4
	return math.Floor(365.25*float64(y+4716)) +
		math.Floor(30.6001*float64(m+1)) +
		float64(day) + float64(b) - 1524.5 + hour/24
}

// ayanamshaDeg returns the sidereal offset in degrees at julian century t.
// Values are the J2000 offsets of each tradition; all precess at the same
// mean rate.
func ayanamshaDeg(a Ayanamsha, t float64) float64 {
	const ratePerCentury = 1.39697
	base := 23.853 // lahiri
	switch a {
	case AyanamshaRaman:
		base = 22.497
	case AyanamshaKrishnamurti:
		base = 23.759
	case AyanamshaFaganBradley:
		base = 24.740
	}
	return base + ratePerCentury*t
}

func sidereal(tropical, ayan float64) float64 {
	return norm360(tropical - ayan)
}

// vector is a heliocentric ecliptic position in AU.
type vector struct{ x, y, z float64 }

// orbital elements at J2000 plus per-julian-century rates, angles in degrees.
// From the JPL approximate elements table, valid 1800-2050.
type elements struct {
	a, aDot     float64 // semi-major axis, AU
	e, eDot     float64 // eccentricity
	i, iDot     float64 // inclination
	l, lDot     float64 // mean longitude
	peri, pDot  float64 // longitude of perihelion
	node, nDot  float64 // longitude of ascending node
}

var (
	elementsMercury = elements{0.38709927, 0.00000037, 0.20563593, 0.00001906, 7.00497902, -0.00594749, 252.25032350, 149472.67411175, 77.45779628, 0.16047689, 48.33076593, -0.12534081}
	elementsVenus   = elements{0.72333566, 0.00000390, 0.00677672, -0.00004107, 3.39467605, -0.00078890, 181.97909950, 58517.81538729, 131.60246718, 0.00268329, 76.67984255, -0.27769418}
	elementsEarth   = elements{1.00000261, 0.00000562, 0.01671123, -0.00004392, -0.00001531, -0.01294668, 100.46457166, 35999.37244981, 102.93768193, 0.32327364, 0, 0}
	elementsMars    = elements{1.52371034, 0.00001847, 0.09339410, 0.00007882, 1.84969142, -0.00813131, -4.55343205, 19140.30268499, -23.94362959, 0.44441088, 49.55953891, -0.29257343}
	elementsJupiter = elements{5.20288700, -0.00011607, 0.04838624, -0.00013253, 1.30439695, -0.00183714, 34.39644051, 3034.74612775, 14.72847983, 0.21252668, 100.47390909, 0.20469106}
	elementsSaturn  = elements{9.53667594, -0.00125060, 0.05386179, -0.00050991, 2.48599187, 0.00193609, 49.95424423, 1222.49362201, 92.59887831, -0.41897216, 113.66242448, -0.28867794}
)

// heliocentric computes the ecliptic position at julian century t from mean
// elements.
func heliocentric(el elements, t float64) vector {
	a := el.a + el.aDot*t
	e := el.e + el.eDot*t
	i := rad(el.i + el.iDot*t)
	l := el.l + el.lDot*t
	peri := el.peri + el.pDot*t
	node := el.node + el.nDot*t

	m := rad(norm180(l - peri))
	ec := solveKepler(m, e)

	// True anomaly and radius.
	nu := 2 * math.Atan2(math.Sqrt(1+e)*math.Sin(ec/2), math.Sqrt(1-e)*math.Cos(ec/2))
	r := a * (1 - e*math.Cos(ec))

	w := rad(peri - node) // argument of perihelion
	om := rad(node)
	u := w + nu // argument of latitude

	return vector{
		x: r * (math.Cos(om)*math.Cos(u) - math.Sin(om)*math.Sin(u)*math.Cos(i)),
		y: r * (math.Sin(om)*math.Cos(u) + math.Cos(om)*math.Sin(u)*math.Cos(i)),
		z: r * math.Sin(u) * math.Sin(i),
	}
}

// solveKepler iterates E - e*sin(E) = M (radians) by Newton's method.
func solveKepler(m, e float64) float64 {
	ec := m + e*math.Sin(m)
	for iter := 0; iter < 30; iter++ {
		d := (m - (ec - e*math.Sin(ec))) / (1 - e*math.Cos(ec))
		ec += d
		if math.Abs(d) < 1e-10 {
			break
		}
	}
	return ec
}

// geocentricLongitude returns the tropical ecliptic longitude of a body seen
// from Earth. Passing the zero vector gives the Sun.
func geocentricLongitude(body, earth vector) float64 {
	return norm360(deg(math.Atan2(body.y-earth.y, body.x-earth.x)))
}

// moonLongitude is a truncated ELP-style series for the Moon's tropical
// longitude, good to a few arc minutes.
func moonLongitude(t float64) float64 {
	lp := 218.3164477 + 481267.88123421*t // mean longitude
	d := rad(297.8501921 + 445267.1114034*t)
	ms := rad(357.5291092 + 35999.0502909*t)
	mm := rad(134.9633964 + 477198.8675055*t)
	f := rad(93.2720950 + 483202.0175233*t)

	lon := lp +
		6.288774*math.Sin(mm) +
		1.274027*math.Sin(2*d-mm) +
		0.658314*math.Sin(2*d) +
		0.213618*math.Sin(2*mm) -
		0.185116*math.Sin(ms) -
		0.114332*math.Sin(2*f) +
		0.058793*math.Sin(2*d-2*mm) +
		0.057066*math.Sin(2*d-ms-mm) +
		0.053322*math.Sin(2*d+mm) +
		0.045758*math.Sin(2*d-ms)
	return norm360(lon)
}

// meanNode is the mean longitude of the Moon's ascending node (Rahu).
func meanNode(t float64) float64 {
	return norm360(125.0445479 - 1934.1362891*t + 0.0020754*t*t)
}

// ascendant computes the tropical ascendant from local sidereal time.
func ascendant(jd, t, lat, lon float64) float64 {
	// Greenwich mean sidereal time in degrees.
	gmst := 280.46061837 + 360.98564736629*(jd-j2000) + 0.000387933*t*t
	lst := rad(norm360(gmst + lon))
	eps := rad(23.4392911 - 0.0130042*t)
	phi := rad(lat)

	asc := math.Atan2(math.Cos(lst), -(math.Sin(lst)*math.Cos(eps) + math.Tan(phi)*math.Sin(eps)))
	return norm360(deg(asc))
}

// cusps derives the twelve house cusps from the sidereal ascendant.
func cusps(hs HouseSystem, asc float64) []float64 {
	out := make([]float64, 12)
	start := asc
	if hs == HouseWholeSign {
		start = math.Floor(asc/30) * 30
	}
	for i := range out {
		out[i] = round2(norm360(start + float64(i)*30))
	}
	return out
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

func norm360(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// norm180 wraps an angle into (-180, 180] for the Kepler solver.
func norm180(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	}
	if d <= -180 {
		d += 360
	}
	return d
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
