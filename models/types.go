package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// JSONSlice stores a list in a single JSON column.
type JSONSlice[T any] []T

// Value implements driver.Valuer interface for database storage
func (s JSONSlice[T]) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]T(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for database retrieval
func (s *JSONSlice[T]) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONSlice", value)
	}

	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

// GormDataType returns the data type for GORM
func (JSONSlice[T]) GormDataType() string {
	return "json"
}

func (s JSONSlice[T]) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]T(s))
}

// GeoPoint is stored as plain columns and rendered as a GeoJSON point.
type GeoPoint struct {
	Latitude    float64 `gorm:"column:latitude"`
	Longitude   float64 `gorm:"column:longitude"`
	Address     string  `gorm:"column:address;size:255"`
	Description string  `gorm:"column:description;size:255"`
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
	Address     string    `json:"address,omitempty"`
	Description string    `json:"description,omitempty"`
	Day         int       `json:"day,omitempty"`
}

func (p GeoPoint) IsZero() bool {
	return p == GeoPoint{}
}

func (p GeoPoint) toGeoJSON() geoJSONPoint {
	return geoJSONPoint{
		Type:        "Point",
		Coordinates: []float64{p.Longitude, p.Latitude},
		Address:     p.Address,
		Description: p.Description,
	}
}

func (p *GeoPoint) fromGeoJSON(g geoJSONPoint) error {
	if g.Type != "" && g.Type != "Point" {
		return errors.New("location type must be Point")
	}
	if len(g.Coordinates) != 2 {
		return errors.New("location coordinates must be [longitude, latitude]")
	}
	lng, lat := g.Coordinates[0], g.Coordinates[1]
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("location coordinates [%v, %v] are out of range", lng, lat)
	}
	*p = GeoPoint{
		Latitude:    lat,
		Longitude:   lng,
		Address:     g.Address,
		Description: g.Description,
	}
	return nil
}

func (p GeoPoint) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(p.toGeoJSON())
}

func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = GeoPoint{}
		return nil
	}
	var g geoJSONPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	return p.fromGeoJSON(g)
}

// Location is a tour stop, a GeoJSON point with the day it is visited on.
type Location struct {
	GeoPoint
	Day int
}

func (l Location) MarshalJSON() ([]byte, error) {
	g := l.toGeoJSON()
	g.Day = l.Day
	return json.Marshal(g)
}

func (l *Location) UnmarshalJSON(data []byte) error {
	var g geoJSONPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	if err := l.GeoPoint.fromGeoJSON(g); err != nil {
		return err
	}
	l.Day = g.Day
	return nil
}

// ColumnMap maps a writable JSON attribute to the columns it is stored in.
type ColumnMap map[string][]string

// Columns returns the columns touched by the given attributes. Attributes
// missing from the map are reported as rejected.
func (m ColumnMap) Columns(keys []string) (columns []string, rejected []string) {
	seen := make(map[string]bool)
	for _, key := range keys {
		cols, ok := m[key]
		if !ok {
			rejected = append(rejected, key)
			continue
		}
		for _, col := range cols {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}
	return columns, rejected
}
