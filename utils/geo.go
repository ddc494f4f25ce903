package utils

import "math"

type DistanceUnit string

const (
	UnitMiles      DistanceUnit = "mi"
	UnitKilometers DistanceUnit = "km"
)

// EarthRadius in the given unit. Unknown units fall back to kilometers.
func (u DistanceUnit) EarthRadius() float64 {
	if u == UnitMiles {
		return 3963.2
	}
	return 6378.1
}

func ParseUnit(raw string) (DistanceUnit, bool) {
	switch DistanceUnit(raw) {
	case UnitMiles:
		return UnitMiles, true
	case UnitKilometers:
		return UnitKilometers, true
	}
	return "", false
}

// Distance between two points on the earth using the Haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64, unit DistanceUnit) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return unit.EarthRadius() * c
}

// BoundingBox returns the lat/lng rectangle enclosing a circle of the given
// radius. It is a coarse SQL prefilter; Distance decides membership.
func BoundingBox(lat, lng, radius float64, unit DistanceUnit) (minLat, maxLat, minLng, maxLng float64) {
	angular := radius / unit.EarthRadius()
	dLat := angular * 180 / math.Pi

	minLat = math.Max(lat-dLat, -90)
	maxLat = math.Min(lat+dLat, 90)

	cosLat := math.Cos(toRadians(lat))
	if cosLat < 1e-9 || maxLat >= 90 || minLat <= -90 || angular >= math.Pi/2 {
		return minLat, maxLat, -180, 180
	}
	dLng := math.Asin(math.Min(math.Sin(angular)/cosLat, 1)) * 180 / math.Pi
	minLng, maxLng = lng-dLng, lng+dLng
	if minLng < -180 || maxLng > 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLng, maxLng
}

func RoundToDecimal(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
