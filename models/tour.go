package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"natours-api/utils"
)

type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyMedium    Difficulty = "medium"
	DifficultyDifficult Difficulty = "difficult"
)

const DefaultRatingsAverage = 4.5

type Tour struct {
	ID              string               `json:"id" gorm:"primaryKey;size:36"`
	Name            string               `json:"name" gorm:"uniqueIndex;size:40;not null" validate:"required,min=10,max=40"`
	Slug            string               `json:"slug" gorm:"index;size:64"`
	Duration        int                  `json:"duration" gorm:"not null" validate:"required,gt=0"`
	MaxGroupSize    int                  `json:"maxGroupSize" gorm:"not null" validate:"required,gt=0"`
	Difficulty      Difficulty           `json:"difficulty" gorm:"size:16;not null" validate:"required,oneof=easy medium difficult"`
	RatingsAverage  float64              `json:"ratingsAverage" gorm:"index:idx_tours_price_rating,priority:2,sort:desc" validate:"omitempty,min=1,max=5"`
	RatingsQuantity int                  `json:"ratingsQuantity" gorm:"not null;default:0"`
	Price           float64              `json:"price" gorm:"not null;index:idx_tours_price_rating,priority:1" validate:"required,gt=0"`
	PriceDiscount   float64              `json:"priceDiscount,omitempty" validate:"gte=0"`
	Summary         string               `json:"summary" gorm:"size:255;not null" validate:"required"`
	Description     string               `json:"description" gorm:"type:text"`
	ImageCover      string               `json:"imageCover" gorm:"size:255;not null" validate:"required"`
	Images          JSONSlice[string]    `json:"images"`
	CreatedAt       time.Time            `json:"createdAt" gorm:"index"`
	StartDates      JSONSlice[time.Time] `json:"startDates"`
	StartLocation   GeoPoint             `json:"startLocation" gorm:"embedded;embeddedPrefix:start_location_"`
	Locations       JSONSlice[Location]  `json:"locations"`
	Version         int                  `json:"-" gorm:"not null;default:0"`

	Guides  []User   `json:"guides" gorm:"many2many:tour_guides;constraint:OnDelete:CASCADE"`
	Reviews []Review `json:"reviews,omitempty" gorm:"foreignKey:TourID;constraint:OnDelete:CASCADE"`

	// GuideIDs carries the guide references of a write request.
	GuideIDs []string `json:"-" gorm:"-"`
}

var tourMessages = map[string]string{
	"name.min":           "A tour name must have >= 10 characters",
	"name.max":           "A tour name must have <= 40 characters",
	"ratingsAverage.min": "Rating must be >= 1.0",
	"ratingsAverage.max": "Rating must be <= 5.0",
	"difficulty.oneof":   "Difficulty is either: easy, medium, difficult",
	"duration.gt":        "duration must be a positive number of days",
	"maxGroupSize.gt":    "maxGroupSize must be a positive number",
	"price.gt":           "price must be a positive number",
	"priceDiscount.gte":  "priceDiscount must not be negative",
}

// TourFields lists what the query string may filter, sort and select on.
var TourFields = utils.FieldSet{
	"id":              {Column: "id", Kind: utils.KindString},
	"name":            {Column: "name", Kind: utils.KindString},
	"slug":            {Column: "slug", Kind: utils.KindString},
	"duration":        {Column: "duration", Kind: utils.KindInt},
	"maxGroupSize":    {Column: "max_group_size", Kind: utils.KindInt},
	"difficulty":      {Column: "difficulty", Kind: utils.KindString},
	"ratingsAverage":  {Column: "ratings_average", Kind: utils.KindNumber},
	"ratingsQuantity": {Column: "ratings_quantity", Kind: utils.KindInt},
	"price":           {Column: "price", Kind: utils.KindNumber},
	"priceDiscount":   {Column: "price_discount", Kind: utils.KindNumber},
	"summary":         {Column: "summary", Kind: utils.KindString},
	"description":     {Column: "description", Kind: utils.KindString},
	"imageCover":      {Column: "image_cover", Kind: utils.KindString},
	"images":          {Column: "images", Kind: utils.KindJSON},
	"startDates":      {Column: "start_dates", Kind: utils.KindJSON},
	"locations":       {Column: "locations", Kind: utils.KindJSON},
	"createdAt":       {Column: "created_at", Kind: utils.KindTime},
}

// TourUpdateColumns maps the attributes a patch may change to their columns.
var TourUpdateColumns = ColumnMap{
	"name":            {"name", "slug"},
	"duration":        {"duration"},
	"maxGroupSize":    {"max_group_size"},
	"difficulty":      {"difficulty"},
	"ratingsAverage":  {"ratings_average"},
	"ratingsQuantity": {"ratings_quantity"},
	"price":           {"price"},
	"priceDiscount":   {"price_discount"},
	"summary":         {"summary"},
	"description":     {"description"},
	"imageCover":      {"image_cover"},
	"images":          {"images"},
	"startDates":      {"start_dates"},
	"startLocation": {
		"start_location_latitude", "start_location_longitude",
		"start_location_address", "start_location_description",
	},
	"locations": {"locations"},
	"guides":    {},
}

// Prepare normalizes a tour before it is written. It trims text, derives
// the slug and rounds the rating.
func (t *Tour) Prepare() {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Name = strings.TrimSpace(t.Name)
	t.Summary = strings.TrimSpace(t.Summary)
	t.Description = strings.TrimSpace(t.Description)
	t.Slug = slug.Make(t.Name)
	t.RatingsAverage = RoundRating(t.RatingsAverage)
}

// ApplyDefaults fills the values a new tour starts with.
func (t *Tour) ApplyDefaults() {
	if t.RatingsAverage == 0 {
		t.RatingsAverage = DefaultRatingsAverage
	}
}

func (t *Tour) Validate() error {
	var extra []string
	if t.PriceDiscount != 0 && t.PriceDiscount >= t.Price {
		extra = append(extra, fmt.Sprintf("Discount amount (%v) should be lower than price", t.PriceDiscount))
	}
	return validateStruct(t, tourMessages, extra...)
}

func (t Tour) DurationWeeks() float64 {
	return float64(t.Duration) / 7
}

func (t Tour) MarshalJSON() ([]byte, error) {
	type tourAlias Tour
	return json.Marshal(struct {
		tourAlias
		DurationWeeks float64 `json:"durationWeeks"`
	}{
		tourAlias:     tourAlias(t),
		DurationWeeks: t.DurationWeeks(),
	})
}

// RoundRating keeps one decimal, e.g. 4.666 becomes 4.7.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}

// TourStats is one row of the difficulty breakdown.
type TourStats struct {
	Difficulty string  `json:"difficulty"`
	NumTours   int     `json:"numTours"`
	NumRatings int     `json:"numRatings"`
	AvgRating  float64 `json:"avgRating"`
	AvgPrice   float64 `json:"avgPrice"`
	MinPrice   float64 `json:"minPrice"`
	MaxPrice   float64 `json:"maxPrice"`
}

// MonthlyPlan counts the tour starts in one month of a year.
type MonthlyPlan struct {
	Month         int      `json:"month"`
	NumTourStarts int      `json:"numTourStarts"`
	Tours         []string `json:"tours"`
}

// TourDistance is a tour name with its distance from a point.
type TourDistance struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}
