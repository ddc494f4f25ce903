package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	// Los Angeles to San Francisco
	km := Distance(34.0522, -118.2437, 37.7749, -122.4194, UnitKilometers)
	mi := Distance(34.0522, -118.2437, 37.7749, -122.4194, UnitMiles)

	assert.InDelta(t, 560, km, 5)
	assert.InDelta(t, 348, mi, 5)
	assert.Zero(t, Distance(10, 10, 10, 10, UnitMiles))
}

func TestBoundingBox_ContainsCircle(t *testing.T) {
	lat, lng := 34.111745, -118.113491
	minLat, maxLat, minLng, maxLng := BoundingBox(lat, lng, 200, UnitMiles)

	assert.Less(t, minLat, lat)
	assert.Greater(t, maxLat, lat)
	assert.Less(t, minLng, lng)
	assert.Greater(t, maxLng, lng)
	assert.InDelta(t, 200, Distance(lat, lng, maxLat, lng, UnitMiles), 0.5)
}

func TestBoundingBox_NearPoleCoversAllLongitudes(t *testing.T) {
	_, _, minLng, maxLng := BoundingBox(89.5, 0, 100, UnitKilometers)
	assert.Equal(t, -180.0, minLng)
	assert.Equal(t, 180.0, maxLng)
}

func TestParseLatLng(t *testing.T) {
	lat, lng, ok := ParseLatLng("34.111745,-118.113491")
	assert.True(t, ok)
	assert.Equal(t, 34.111745, lat)
	assert.Equal(t, -118.113491, lng)

	for _, raw := range []string{"", "34.1", "a,b", "95,10", "10,200", "1,2,3"} {
		_, _, ok := ParseLatLng(raw)
		assert.False(t, ok, raw)
	}
}

func TestParseUnit(t *testing.T) {
	u, ok := ParseUnit("mi")
	assert.True(t, ok)
	assert.Equal(t, 3963.2, u.EarthRadius())

	_, ok = ParseUnit("furlong")
	assert.False(t, ok)
}

func TestParseID(t *testing.T) {
	_, err := ParseID("id", "not-a-uuid")
	var castErr *CastError
	assert.ErrorAs(t, err, &castErr)
	assert.Equal(t, "id", castErr.Path)

	id, err := ParseID("id", "0b7d6f6e-4c1a-4a53-9d8d-4c6a1c2c1b11")
	assert.NoError(t, err)
	assert.Equal(t, "0b7d6f6e-4c1a-4a53-9d8d-4c6a1c2c1b11", id)
}

func TestRoundToDecimal(t *testing.T) {
	assert.Equal(t, 4.7, RoundToDecimal(4.666666, 1))
	assert.Equal(t, 4.0, RoundToDecimal(4.04, 1))
}
