package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"natours-api/utils"
)

// Review is unique per (tour, author).
type Review struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Review    string    `json:"review" gorm:"type:text;not null" validate:"required"`
	Rating    float64   `json:"rating" gorm:"not null" validate:"required,min=1,max=5"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	TourID    string    `json:"tour" gorm:"size:36;not null;uniqueIndex:idx_reviews_tour_author,priority:1" validate:"required"`
	AuthorID  string    `json:"-" gorm:"size:36;not null;uniqueIndex:idx_reviews_tour_author,priority:2" validate:"required"`

	Author *User `json:"-" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}

var reviewMessages = map[string]string{
	"review.required":   "Review is a required property",
	"rating.required":   "Rating is a required property",
	"rating.min":        "Rating must be between 1 and 5",
	"rating.max":        "Rating must be between 1 and 5",
	"tour.required":     "Review must refer to a tour",
	"AuthorID.required": "Review must refer to a user (author)",
}

var ReviewFields = utils.FieldSet{
	"id":        {Column: "id", Kind: utils.KindString},
	"review":    {Column: "review", Kind: utils.KindString},
	"rating":    {Column: "rating", Kind: utils.KindNumber},
	"tour":      {Column: "tour_id", Kind: utils.KindString},
	"createdAt": {Column: "created_at", Kind: utils.KindTime},
}

var ReviewUpdateColumns = ColumnMap{
	"review": {"review"},
	"rating": {"rating"},
	"tour":   {"tour_id"},
}

// ReviewAuthor is the public part of the user who wrote a review.
type ReviewAuthor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo"`
}

func (r *Review) Prepare() {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.Review = strings.TrimSpace(r.Review)
}

func (r *Review) Validate() error {
	return validateStruct(r, reviewMessages)
}

func (r Review) MarshalJSON() ([]byte, error) {
	type reviewAlias Review
	var author interface{} = r.AuthorID
	if r.Author != nil {
		author = ReviewAuthor{ID: r.Author.ID, Name: r.Author.Name, Photo: r.Author.Photo}
	}
	return json.Marshal(struct {
		reviewAlias
		Author interface{} `json:"author"`
	}{
		reviewAlias: reviewAlias(r),
		Author:      author,
	})
}
