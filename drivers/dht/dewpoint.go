package dht

import "math"

// DewPoint returns the dew point in Celsius for the given air temperature
// and relative humidity percentage, using the NOAA saturation vapour
// pressure formulation (see wahiduddin.net/calc/density_algorithms.htm).
// It is a pure function and performs no bus access, so callers can feed it
// values from any source, not just this package's cache.
func DewPoint(celsius, humidity float64) float64 {
	a0 := 373.15 / (273.15 + celsius)
	sum := -7.90298 * (a0 - 1)
	sum += 5.02808 * math.Log10(a0)
	sum += -1.3816e-7 * (math.Pow(10, 11.344*(1-1/a0)) - 1)
	sum += 8.1328e-3 * (math.Pow(10, -3.49149*(a0-1)) - 1)
	sum += math.Log10(1013.246)
	vp := math.Pow(10, sum-3) * humidity
	t := math.Log(vp / 0.61078)
	return 241.88 * t / (17.558 - t)
}

// DewPointFast is a Magnus form approximation of DewPoint. It deviates from
// the reference formulation by at most about 0.65 degrees while avoiding the
// repeated Pow and Log10 calls, roughly five times cheaper. Callers choose
// it explicitly; nothing in this package substitutes it silently.
func DewPointFast(celsius, humidity float64) float64 {
	const a, b = 17.271, 237.7
	t := a*celsius/(b+celsius) + math.Log(humidity/100)
	return b * t / (a - t)
}
