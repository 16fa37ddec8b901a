// Package solar computes sun position for glare scoring. The math follows
// the NOAA solar calculator equations, which are accurate to well under a
// degree for the years this service cares about. Refraction is ignored.
package solar

import (
	"math"
	"time"
)

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Position returns the sun azimuth (clockwise from true north, [0,360)) and
// altitude above the horizon (degrees, negative at night) at t for a WGS84
// coordinate. Longitude is positive east.
func Position(t time.Time, lat, lon float64) (azimuthDeg, altitudeDeg float64) {
	ut := t.UTC()
	jd := float64(ut.Unix())/86400.0 + 2440587.5
	T := (jd - 2451545.0) / 36525.0

	meanLong := math.Mod(280.46646+T*(36000.76983+T*0.0003032), 360)
	if meanLong < 0 {
		meanLong += 360
	}
	meanAnom := 357.52911 + T*(35999.05029-0.0001537*T)
	ecc := 0.016708634 - T*(0.000042037+0.0000001267*T)

	center := math.Sin(rad(meanAnom))*(1.914602-T*(0.004817+0.000014*T)) +
		math.Sin(rad(2*meanAnom))*(0.019993-0.000101*T) +
		math.Sin(rad(3*meanAnom))*0.000289
	trueLong := meanLong + center
	omega := 125.04 - 1934.136*T
	appLong := trueLong - 0.00569 - 0.00478*math.Sin(rad(omega))

	oblique := 23 + (26+(21.448-T*(46.815+T*(0.00059-T*0.001813)))/60)/60
	oblique += 0.00256 * math.Cos(rad(omega))

	decl := math.Asin(clamp(math.Sin(rad(oblique))*math.Sin(rad(appLong)), -1, 1))

	y := math.Tan(rad(oblique / 2))
	y *= y
	eqTimeMin := 4 * deg(y*math.Sin(2*rad(meanLong))-
		2*ecc*math.Sin(rad(meanAnom))+
		4*ecc*y*math.Sin(rad(meanAnom))*math.Cos(2*rad(meanLong))-
		0.5*y*y*math.Sin(4*rad(meanLong))-
		1.25*ecc*ecc*math.Sin(2*rad(meanAnom)))

	minutes := float64(ut.Hour())*60 + float64(ut.Minute()) + float64(ut.Second())/60
	trueSolar := math.Mod(minutes+eqTimeMin+4*lon, 1440)
	if trueSolar < 0 {
		trueSolar += 1440
	}
	hourAngle := trueSolar/4 - 180
	if hourAngle < -180 {
		hourAngle += 360
	}

	latR := rad(lat)
	cosZenith := math.Sin(latR)*math.Sin(decl) + math.Cos(latR)*math.Cos(decl)*math.Cos(rad(hourAngle))
	zenith := math.Acos(clamp(cosZenith, -1, 1))
	altitudeDeg = 90 - deg(zenith)

	denom := math.Cos(latR) * math.Sin(zenith)
	var az float64
	if math.Abs(denom) < 1e-9 {
		az = 180 // at the poles or with the sun dead overhead azimuth is ill-defined
	} else {
		az = deg(math.Acos(clamp((math.Sin(latR)*math.Cos(zenith)-math.Sin(decl))/denom, -1, 1)))
		if hourAngle > 0 {
			az = math.Mod(az+180, 360)
		} else {
			az = math.Mod(540-az, 360)
		}
	}
	return az, altitudeDeg
}

// OcclusionWindow labels when a road bearing stares into a low sun:
// roughly eastbound roads at sunrise, westbound at sunset.
func OcclusionWindow(bearingDeg float64) string {
	b := math.Mod(bearingDeg, 360)
	if b < 0 {
		b += 360
	}
	switch {
	case b >= 60 && b <= 120:
		return "sunrise"
	case b >= 240 && b <= 300:
		return "sunset"
	default:
		return "none"
	}
}
