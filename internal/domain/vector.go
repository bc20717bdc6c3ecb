package domain

import "math"

// Magnitude returns the length of the (u, v) wind vector.
func Magnitude(u, v float64) float64 {
	return math.Sqrt(u*u + v*v)
}

// Direction returns the compass bearing of (u, v) in [0, 360), taking u as the
// sine argument and v as the cosine argument. The zero vector has no direction.
func Direction(u, v float64) (float64, bool) {
	if u == 0 && v == 0 {
		return 0, false
	}
	deg := math.Mod(math.Atan2(u, v)*180/math.Pi+360, 360)
	// Mod can return exactly 360 for tiny negative angles after rounding.
	if deg >= 360 {
		deg -= 360
	}
	return deg, true
}

// Components decomposes a speed and bearing into (u, v) with the same axis
// convention as Direction.
func Components(speed, headingDeg float64) (u, v float64) {
	rad := headingDeg * math.Pi / 180
	return speed * math.Sin(rad), speed * math.Cos(rad)
}

// ComputeTrueWind removes the platform velocity from the apparent wind.
//
// Both vectors are decomposed with Components, the platform components are
// subtracted from the wind components and the difference is recomposed. When
// the platform heading is absent the apparent wind is returned unchanged with
// Compensated false. An absent platform speed with a known heading is treated
// as a stationary platform. An apparent wind without speed or direction yields
// absent true wind.
func ComputeTrueWind(apparent, platform Polar) TrueWindSample {
	out := TrueWindSample{Apparent: apparent, Platform: platform}

	if platform.Heading == nil {
		out.Speed = apparent.Speed
		out.Direction = apparent.Heading
		return out
	}
	if apparent.Speed == nil || apparent.Heading == nil {
		return out
	}

	platformSpeed := 0.0
	if platform.Speed != nil {
		platformSpeed = *platform.Speed
	}

	wu, wv := Components(*apparent.Speed, *apparent.Heading)
	pu, pv := Components(platformSpeed, *platform.Heading)
	tu, tv := wu-pu, wv-pv

	out.Speed = floatPtr(Magnitude(tu, tv))
	if dir, ok := Direction(tu, tv); ok {
		out.Direction = &dir
	}
	out.Compensated = true
	return out
}
