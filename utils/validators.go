package utils

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func IsValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

func IsValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}

// ParseLatLng parses the "lat,lng" path segment used by the geo endpoints.
func ParseLatLng(raw string) (lat, lng float64, ok bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLng != nil || !IsValidLatitude(lat) || !IsValidLongitude(lng) {
		return 0, 0, false
	}
	return lat, lng, true
}

// ParseID rejects ids that are not uuids before they reach the store.
func ParseID(path, raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", &CastError{Path: path, Value: raw}
	}
	return id.String(), nil
}
