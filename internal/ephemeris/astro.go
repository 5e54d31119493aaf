package ephemeris

import (
	"math"
	"time"
)

const (
	deg = math.Pi / 180

	earthRadiusKM = 6378.14
	auKM          = 149597870.7
	j2000         = 2451545.0
)

// julianDay returns the Julian Day of t.
func julianDay(t time.Time) float64 {
	return float64(t.UnixNano())/86400e9 + 2440587.5
}

// centuries returns Julian centuries since J2000.0.
func centuries(jd float64) float64 {
	return (jd - j2000) / 36525
}

// normDeg reduces an angle in degrees to [0, 360).
func normDeg(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// nutation holds the dominant nutation terms and the true obliquity, in degrees.
type nutation struct {
	dPsi    float64
	epsilon float64
}

func nutationAt(T float64) nutation {
	omega := (125.04452 - 1934.136261*T) * deg
	eps0 := 23.0 + 26.0/60 + 21.448/3600 -
		(46.8150*T+0.00059*T*T-0.001813*T*T*T)/3600
	return nutation{
		dPsi:    -17.20 / 3600 * math.Sin(omega),
		epsilon: eps0 + 9.20/3600*math.Cos(omega),
	}
}

// ecliptic is an apparent geocentric position of date.
type ecliptic struct {
	lon, lat float64 // degrees
	distKM   float64
}

// sunPosition implements the low-accuracy solar coordinates of Meeus ch. 25.
func sunPosition(T float64, n nutation) ecliptic {
	L0 := 280.46646 + 36000.76983*T + 0.0003032*T*T
	M := 357.52911 + 35999.05029*T - 0.0001537*T*T
	e := 0.016708634 - 0.000042037*T - 0.0000001267*T*T

	Mr := M * deg
	C := (1.914602-0.004817*T-0.000014*T*T)*math.Sin(Mr) +
		(0.019993-0.000101*T)*math.Sin(2*Mr) +
		0.000289*math.Sin(3*Mr)

	trueLon := L0 + C
	nu := (M + C) * deg
	R := 1.000001018 * (1 - e*e) / (1 + e*math.Cos(nu))

	// Aberration.
	lon := trueLon - 0.00569 + n.dPsi
	return ecliptic{lon: normDeg(lon), distKM: R * auKM}
}

// lunarTerm is one periodic term of the lunar longitude/distance series.
type lunarTerm struct {
	D, M, Mp, F float64
	l, r        float64
}

// Meeus table 47.A, terms with |l| >= 2000e-6 degrees.
var lonDistTerms = []lunarTerm{
	{0, 0, 1, 0, 6288774, -20905355},
	{2, 0, -1, 0, 1274027, -3699111},
	{2, 0, 0, 0, 658314, -2955968},
	{0, 0, 2, 0, 213618, -569925},
	{0, 1, 0, 0, -185116, 48888},
	{0, 0, 0, 2, -114332, -3149},
	{2, 0, -2, 0, 58793, 246158},
	{2, -1, -1, 0, 57066, -152138},
	{2, 0, 1, 0, 53322, -170733},
	{2, -1, 0, 0, 45758, -204586},
	{0, 1, -1, 0, -40923, -129620},
	{1, 0, 0, 0, -34720, 108743},
	{0, 1, 1, 0, -30383, 104755},
	{2, 0, 0, -2, 15327, 10321},
	{0, 0, 1, 2, -12528, 0},
	{0, 0, 1, -2, 10980, 79661},
	{4, 0, -1, 0, 10675, -34782},
	{0, 0, 3, 0, 10034, -23210},
	{4, 0, -2, 0, 8548, -21636},
	{2, 1, -1, 0, -7888, 24208},
	{2, 1, 0, 0, -6766, 30824},
	{1, 0, -1, 0, -5163, -8379},
	{1, 1, 0, 0, 4987, -16675},
	{2, -1, 1, 0, 4036, -12831},
	{2, 0, 2, 0, 3994, -10445},
	{4, 0, 0, 0, 3861, -11650},
	{2, 0, -3, 0, 3665, 14403},
	{0, 1, -2, 0, -2689, -7003},
	{2, 0, -1, 2, -2602, 0},
	{2, -1, -2, 0, 2390, 10056},
	{1, 0, 1, 0, -2348, 6322},
	{2, -2, 0, 0, 2236, -9884},
}

// Meeus table 47.B, terms with |b| >= 1700e-6 degrees.
var latTerms = []lunarTerm{
	{0, 0, 0, 1, 5128122, 0},
	{0, 0, 1, 1, 280602, 0},
	{0, 0, 1, -1, 277693, 0},
	{2, 0, 0, -1, 173237, 0},
	{2, 0, -1, 1, 55413, 0},
	{2, 0, -1, -1, 46271, 0},
	{2, 0, 0, 1, 32573, 0},
	{0, 0, 2, 1, 17198, 0},
	{2, 0, 1, -1, 9266, 0},
	{0, 0, 2, -1, 8822, 0},
	{2, -1, 0, -1, 8216, 0},
	{2, 0, -2, -1, 4324, 0},
	{2, 0, 1, 1, 4200, 0},
	{2, 1, 0, -1, -3359, 0},
	{2, -1, -1, 1, 2463, 0},
	{2, -1, 0, 1, 2211, 0},
	{2, -1, -1, -1, 2065, 0},
	{0, 1, -1, -1, -1870, 0},
	{4, 0, -1, -1, 1828, 0},
	{0, 1, 0, 1, -1794, 0},
}

// moonPosition implements the truncated lunar theory of Meeus ch. 47.
func moonPosition(T float64, n nutation) ecliptic {
	T2, T3, T4 := T*T, T*T*T, T*T*T*T
	Lp := normDeg(218.3164477 + 481267.88123421*T - 0.0015786*T2 + T3/538841 - T4/65194000)
	D := normDeg(297.8501921 + 445267.1114034*T - 0.0018819*T2 + T3/545868 - T4/113065000)
	M := normDeg(357.5291092 + 35999.0502909*T - 0.0001536*T2 + T3/24490000)
	Mp := normDeg(134.9633964 + 477198.8675055*T + 0.0087414*T2 + T3/69699 - T4/14712000)
	F := normDeg(93.2720950 + 483202.0175233*T - 0.0036539*T2 - T3/3526000 + T4/863310000)
	E := 1 - 0.002516*T - 0.0000074*T2

	A1 := normDeg(119.75 + 131.849*T)
	A2 := normDeg(53.09 + 479264.290*T)
	A3 := normDeg(313.45 + 481266.484*T)

	eccentricity := func(m float64) float64 {
		switch math.Abs(m) {
		case 1:
			return E
		case 2:
			return E * E
		}
		return 1
	}

	var sl, sr, sb float64
	for _, t := range lonDistTerms {
		arg := (t.D*D + t.M*M + t.Mp*Mp + t.F*F) * deg
		ec := eccentricity(t.M)
		sl += t.l * ec * math.Sin(arg)
		sr += t.r * ec * math.Cos(arg)
	}
	for _, t := range latTerms {
		arg := (t.D*D + t.M*M + t.Mp*Mp + t.F*F) * deg
		sb += t.l * eccentricity(t.M) * math.Sin(arg)
	}

	sl += 3958*math.Sin(A1*deg) + 1962*math.Sin((Lp-F)*deg) + 318*math.Sin(A2*deg)
	sb += -2235*math.Sin(Lp*deg) + 382*math.Sin(A3*deg) +
		175*math.Sin((A1-F)*deg) + 175*math.Sin((A1+F)*deg) +
		127*math.Sin((Lp-Mp)*deg) - 115*math.Sin((Lp+Mp)*deg)

	return ecliptic{
		lon:    normDeg(Lp + sl/1e6 + n.dPsi),
		lat:    sb / 1e6,
		distKM: 385000.56 + sr/1000,
	}
}

// equatorial converts ecliptic coordinates to right ascension and declination
// in radians.
func equatorial(p ecliptic, epsilonDeg float64) (ra, dec float64) {
	lon, lat, eps := p.lon*deg, p.lat*deg, epsilonDeg*deg
	ra = math.Atan2(math.Sin(lon)*math.Cos(eps)-math.Tan(lat)*math.Sin(eps), math.Cos(lon))
	dec = math.Asin(math.Sin(lat)*math.Cos(eps) + math.Cos(lat)*math.Sin(eps)*math.Sin(lon))
	return ra, dec
}

// apparentSidereal returns Greenwich apparent sidereal time in degrees.
func apparentSidereal(jd float64, n nutation) float64 {
	T := centuries(jd)
	theta := 280.46061837 + 360.98564736629*(jd-j2000) + 0.000387933*T*T - T*T*T/38710000
	return normDeg(theta + n.dPsi*math.Cos(n.epsilon*deg))
}

// observer holds the geocentric terms of an observer position.
type observer struct {
	lat, lon  float64 // radians, east positive
	rhoSinPhi float64
	rhoCosPhi float64
}

func newObserver(latDeg, lonDeg, elevationM float64) observer {
	const flattening = 0.99664719 // b/a
	phi := latDeg * deg
	u := math.Atan(flattening * math.Tan(phi))
	h := elevationM / (earthRadiusKM * 1000)
	return observer{
		lat:       phi,
		lon:       lonDeg * deg,
		rhoSinPhi: flattening*math.Sin(u) + h*math.Sin(phi),
		rhoCosPhi: math.Cos(u) + h*math.Cos(phi),
	}
}

// altitude returns the topocentric altitude in degrees of a body at the given
// geocentric equatorial position, applying parallax per Meeus ch. 40.
func (o observer) altitude(ra, dec, distKM, siderealDeg float64) float64 {
	H := siderealDeg*deg + o.lon - ra
	sinPi := earthRadiusKM / distKM

	dRA := math.Atan2(-o.rhoCosPhi*sinPi*math.Sin(H), math.Cos(dec)-o.rhoCosPhi*sinPi*math.Cos(H))
	decT := math.Atan2((math.Sin(dec)-o.rhoSinPhi*sinPi)*math.Cos(dRA),
		math.Cos(dec)-o.rhoCosPhi*sinPi*math.Cos(H))
	HT := H - dRA

	sinAlt := math.Sin(o.lat)*math.Sin(decT) + math.Cos(o.lat)*math.Cos(decT)*math.Cos(HT)
	return math.Asin(math.Max(-1, math.Min(1, sinAlt))) / deg
}
