package utils

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPage  = 1
	DefaultLimit = 100
	DefaultSort  = "-createdAt"
)

// Keys that shape the query instead of filtering it.
var reservedKeys = map[string]bool{
	"page":   true,
	"sort":   true,
	"limit":  true,
	"fields": true,
}

type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindInt
	KindBool
	KindTime
	// KindJSON columns can be sorted and selected but not filtered.
	KindJSON
)

// Field maps a JSON attribute to its column. Only fields listed in a
// FieldSet can be filtered, sorted or selected through the query string.
type Field struct {
	Column string
	Kind   FieldKind
}

// FieldSet is keyed by the JSON name clients use in query strings.
type FieldSet map[string]Field

// Parse converts a raw query-string value to the field's Go type.
func (f Field) Parse(raw string) (interface{}, bool) {
	raw = strings.TrimSpace(raw)
	switch f.Kind {
	case KindNumber:
		v, err := strconv.ParseFloat(raw, 64)
		return v, err == nil
	case KindInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		return v, err == nil
	case KindBool:
		v, err := strconv.ParseBool(raw)
		return v, err == nil
	case KindTime:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if v, err := time.Parse(layout, raw); err == nil {
				return v, true
			}
		}
		return nil, false
	case KindJSON:
		return nil, false
	default:
		return raw, true
	}
}

// Column resolves a JSON name to its column.
func (fs FieldSet) Column(name string) (string, bool) {
	field, ok := fs[name]
	if !ok {
		return "", false
	}
	return field.Column, true
}

// APIFeatures turns an HTTP query string into a filtered, sorted,
// field-limited and paginated gorm query. None of the steps fail: unknown
// keys and malformed values are skipped or replaced by defaults.
type APIFeatures struct {
	Query       *gorm.DB
	QueryString url.Values
	Fields      FieldSet

	Page     int
	Limit    int
	Selected []string
}

func NewAPIFeatures(query *gorm.DB, queryString url.Values, fields FieldSet) *APIFeatures {
	if queryString == nil {
		queryString = url.Values{}
	}
	return &APIFeatures{
		Query:       query,
		QueryString: queryString,
		Fields:      fields,
		Page:        DefaultPage,
		Limit:       DefaultLimit,
	}
}

// Apply runs Filter, Sort, LimitFields and Paginate in that order.
func (f *APIFeatures) Apply() *APIFeatures {
	return f.Filter().Sort().LimitFields().Paginate()
}

func (f *APIFeatures) Filter() *APIFeatures {
	keys := make([]string, 0, len(f.QueryString))
	for key := range f.QueryString {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if reservedKeys[key] {
			continue
		}
		if expr, ok := f.condition(key, f.QueryString[key]); ok {
			f.Query = f.Query.Where(expr)
		}
	}
	return f
}

func (f *APIFeatures) condition(key string, values []string) (clause.Expression, bool) {
	name, op := splitOperator(key)
	field, ok := f.Fields[name]
	if !ok || len(values) == 0 {
		return nil, false
	}
	column := clause.Column{Name: field.Column}

	if op == "" {
		parsed := make([]interface{}, 0, len(values))
		for _, raw := range values {
			if v, ok := field.Parse(raw); ok {
				parsed = append(parsed, v)
			}
		}
		switch len(parsed) {
		case 0:
			return nil, false
		case 1:
			return clause.Eq{Column: column, Value: parsed[0]}, true
		default:
			return clause.IN{Column: column, Values: parsed}, true
		}
	}

	v, ok := field.Parse(values[len(values)-1])
	if !ok {
		return nil, false
	}
	switch op {
	case "gte":
		return clause.Gte{Column: column, Value: v}, true
	case "gt":
		return clause.Gt{Column: column, Value: v}, true
	case "lte":
		return clause.Lte{Column: column, Value: v}, true
	case "lt":
		return clause.Lt{Column: column, Value: v}, true
	}
	return nil, false
}

// splitOperator splits "duration[gte]" into ("duration", "gte").
func splitOperator(key string) (string, string) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return key, ""
	}
	return key[:open], key[open+1 : len(key)-1]
}

func (f *APIFeatures) Sort() *APIFeatures {
	sortBy := strings.TrimSpace(f.QueryString.Get("sort"))
	if sortBy == "" {
		sortBy = DefaultSort
	}

	applied := 0
	for _, part := range strings.Split(sortBy, ",") {
		part = strings.TrimSpace(part)
		desc := strings.HasPrefix(part, "-")
		column, ok := f.Fields.Column(strings.TrimPrefix(part, "-"))
		if !ok {
			continue
		}
		f.Query = f.Query.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
		applied++
	}

	if applied == 0 && sortBy != DefaultSort {
		if column, ok := f.Fields.Column(strings.TrimPrefix(DefaultSort, "-")); ok {
			f.Query = f.Query.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: true})
		}
	}
	return f
}

func (f *APIFeatures) LimitFields() *APIFeatures {
	raw := strings.TrimSpace(f.QueryString.Get("fields"))
	if raw == "" {
		return f
	}

	selected := []string{"id"}
	columns := []string{"id"}
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		column, ok := f.Fields.Column(name)
		if !ok || name == "id" {
			continue
		}
		selected = append(selected, name)
		columns = append(columns, column)
	}

	f.Selected = selected
	f.Query = f.Query.Select(columns)
	return f
}

func (f *APIFeatures) Paginate() *APIFeatures {
	f.Page = positiveInt(f.QueryString.Get("page"), DefaultPage)
	f.Limit = positiveInt(f.QueryString.Get("limit"), DefaultLimit)
	f.Query = f.Query.Offset(f.Skip()).Limit(f.Limit)
	return f
}

func (f *APIFeatures) Skip() int {
	return (f.Page - 1) * f.Limit
}

// Project trims each record down to the selected JSON keys. Without a
// fields parameter the records are returned untouched.
func (f *APIFeatures) Project(records interface{}) (interface{}, error) {
	if f.Selected == nil {
		return records, nil
	}
	return ProjectFields(records, f.Selected)
}

func ProjectFields(records interface{}, keep []string) ([]map[string]interface{}, error) {
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		projected := make(map[string]interface{}, len(keep))
		for _, key := range keep {
			if v, ok := item[key]; ok {
				projected[key] = v
			}
		}
		out = append(out, projected)
	}
	return out, nil
}

func positiveInt(raw string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}
