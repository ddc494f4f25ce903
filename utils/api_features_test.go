package utils

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type trip struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Duration  int       `json:"duration"`
	Price     float64   `json:"price"`
	Rating    float64   `json:"ratingsAverage"`
	Version   int       `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

var tripFields = FieldSet{
	"id":             {Column: "id", Kind: KindString},
	"name":           {Column: "name", Kind: KindString},
	"duration":       {Column: "duration", Kind: KindInt},
	"price":          {Column: "price", Kind: KindNumber},
	"ratingsAverage": {Column: "rating", Kind: KindNumber},
	"createdAt":      {Column: "created_at", Kind: KindTime},
}

func setupTripDB(t *testing.T, n int) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&trip{}))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		require.NoError(t, db.Create(&trip{
			ID:        fmt.Sprintf("trip-%02d", i),
			Name:      fmt.Sprintf("Trip %02d", i),
			Duration:  i,
			Price:     float64(100 * (i%4 + 1)),
			Rating:    float64(i%5) + 0.5,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}).Error)
	}
	return db
}

func runQuery(t *testing.T, db *gorm.DB, query string) ([]trip, *APIFeatures) {
	t.Helper()
	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	features := NewAPIFeatures(db.Model(&trip{}), values, tripFields).Apply()
	var out []trip
	require.NoError(t, features.Query.Find(&out).Error)
	return out, features
}

func TestFilter_ReservedKeysAddNoConstraints(t *testing.T) {
	db := setupTripDB(t, 0)
	values, _ := url.ParseQuery("page=2&sort=price&limit=3&fields=name")

	stmt := NewAPIFeatures(db.Model(&trip{}), values, tripFields).Filter().Query.Statement
	_, hasWhere := stmt.Clauses["WHERE"]
	assert.False(t, hasWhere)
}

func TestFilter_ComparisonOperators(t *testing.T) {
	db := setupTripDB(t, 10)

	out, _ := runQuery(t, db, "duration[gte]=5&duration[lt]=8")
	require.Len(t, out, 3)
	for _, tr := range out {
		assert.GreaterOrEqual(t, tr.Duration, 5)
		assert.Less(t, tr.Duration, 8)
	}

	out, _ = runQuery(t, db, "price=200")
	for _, tr := range out {
		assert.Equal(t, 200.0, tr.Price)
	}
	assert.NotEmpty(t, out)
}

func TestFilter_IgnoresUnknownFieldsAndMalformedValues(t *testing.T) {
	db := setupTripDB(t, 6)

	out, _ := runQuery(t, db, "secret=1&duration[regex]=x&duration[gte]=abc")
	assert.Len(t, out, 6)
}

func TestSort_DefaultsToNewestFirst(t *testing.T) {
	db := setupTripDB(t, 5)

	out, _ := runQuery(t, db, "")
	require.Len(t, out, 5)
	for i := 1; i < len(out); i++ {
		assert.True(t, out[i-1].CreatedAt.After(out[i].CreatedAt))
	}
}

func TestSort_MultipleKeys(t *testing.T) {
	db := setupTripDB(t, 12)

	out, _ := runQuery(t, db, "sort=-ratingsAverage,price&limit=5")
	require.Len(t, out, 5)
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		assert.GreaterOrEqual(t, prev.Rating, cur.Rating)
		if prev.Rating == cur.Rating {
			assert.LessOrEqual(t, prev.Price, cur.Price)
		}
	}
}

func TestPaginate_SkipsPreviousPages(t *testing.T) {
	db := setupTripDB(t, 25)

	first, _ := runQuery(t, db, "sort=duration&limit=10")
	second, features := runQuery(t, db, "sort=duration&page=2&limit=10")

	assert.Equal(t, 10, features.Skip())
	require.Len(t, first, 10)
	require.Len(t, second, 10)
	assert.Equal(t, 11, second[0].Duration)
}

func TestPaginate_MalformedValuesUseDefaults(t *testing.T) {
	db := setupTripDB(t, 0)
	values, _ := url.ParseQuery("page=zero&limit=-4")

	features := NewAPIFeatures(db.Model(&trip{}), values, tripFields).Paginate()
	assert.Equal(t, DefaultPage, features.Page)
	assert.Equal(t, DefaultLimit, features.Limit)
}

func TestLimitFields_KeepsIDAndProjects(t *testing.T) {
	db := setupTripDB(t, 3)

	out, features := runQuery(t, db, "fields=name,price,version")
	assert.Equal(t, []string{"id", "name", "price"}, features.Selected)

	projected, err := features.Project(out)
	require.NoError(t, err)
	items := projected.([]map[string]interface{})
	require.Len(t, items, 3)
	assert.Len(t, items[0], 3)
	assert.Contains(t, items[0], "id")
	assert.NotContains(t, items[0], "duration")
}

func TestSplitOperator(t *testing.T) {
	name, op := splitOperator("price[lte]")
	assert.Equal(t, "price", name)
	assert.Equal(t, "lte", op)

	name, op = splitOperator("price")
	assert.Equal(t, "price", name)
	assert.Empty(t, op)
}
