package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTour() *Tour {
	return &Tour{
		Name:         "  The Forest Hiker  ",
		Duration:     5,
		MaxGroupSize: 25,
		Difficulty:   DifficultyEasy,
		Price:        397,
		Summary:      " Breathtaking hike through the Canadian Banff National Park ",
		ImageCover:   "tour-1-cover.jpg",
	}
}

func TestTour_PrepareDerivesSlugAndRoundsRating(t *testing.T) {
	tour := validTour()
	tour.RatingsAverage = 4.666666
	tour.Prepare()

	assert.NotEmpty(t, tour.ID)
	assert.Equal(t, "The Forest Hiker", tour.Name)
	assert.Equal(t, "the-forest-hiker", tour.Slug)
	assert.Equal(t, 4.7, tour.RatingsAverage)
	assert.Equal(t, "Breathtaking hike through the Canadian Banff National Park", tour.Summary)
}

func TestTour_ApplyDefaults(t *testing.T) {
	tour := validTour()
	tour.ApplyDefaults()
	assert.Equal(t, DefaultRatingsAverage, tour.RatingsAverage)
}

func TestTour_Validate(t *testing.T) {
	tour := validTour()
	tour.Prepare()
	require.NoError(t, tour.Validate())

	short := validTour()
	short.Name = "Short"
	short.Prepare()
	err := short.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Messages, "A tour name must have >= 10 characters")

	discounted := validTour()
	discounted.PriceDiscount = 500
	err = discounted.Validate()
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Messages, "Discount amount (500) should be lower than price")

	badDifficulty := validTour()
	badDifficulty.Difficulty = "extreme"
	badDifficulty.RatingsAverage = 7
	err = badDifficulty.Validate()
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Messages, "Difficulty is either: easy, medium, difficult")
	assert.Contains(t, verr.Messages, "Rating must be <= 5.0")
}

func TestTour_MarshalJSON(t *testing.T) {
	tour := validTour()
	tour.Duration = 14
	tour.Version = 3
	tour.StartLocation = GeoPoint{Latitude: 51.417611, Longitude: -116.214531, Address: "Banff, CAN"}
	tour.Locations = JSONSlice[Location]{{GeoPoint: GeoPoint{Latitude: 51.1, Longitude: -115.5}, Day: 2}}

	raw, err := json.Marshal(tour)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 2.0, out["durationWeeks"])
	assert.NotContains(t, out, "Version")
	assert.NotContains(t, out, "version")
	assert.Equal(t, []interface{}{}, out["images"])

	start := out["startLocation"].(map[string]interface{})
	assert.Equal(t, "Point", start["type"])
	assert.Equal(t, []interface{}{-116.214531, 51.417611}, start["coordinates"])

	stops := out["locations"].([]interface{})
	require.Len(t, stops, 1)
	assert.Equal(t, 2.0, stops[0].(map[string]interface{})["day"])
}

func TestGeoPoint_UnmarshalJSON(t *testing.T) {
	var p GeoPoint
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Point","coordinates":[-80.185942,25.774772],"address":"Miami"}`), &p))
	assert.Equal(t, 25.774772, p.Latitude)
	assert.Equal(t, -80.185942, p.Longitude)
	assert.Equal(t, "Miami", p.Address)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"Point","coordinates":[1]}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"Polygon","coordinates":[1,2]}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"coordinates":[200,10]}`), &p))
}

func TestJSONSlice_Scan(t *testing.T) {
	var images JSONSlice[string]
	require.NoError(t, images.Scan([]byte(`["a.jpg","b.jpg"]`)))
	assert.Equal(t, JSONSlice[string]{"a.jpg", "b.jpg"}, images)

	var dates JSONSlice[time.Time]
	require.NoError(t, dates.Scan(`["2021-06-19T09:00:00Z"]`))
	assert.Equal(t, time.June, dates[0].Month())

	assert.Error(t, images.Scan(42))
}

func TestReview_Validate(t *testing.T) {
	review := &Review{Review: "Amazing!", Rating: 6, TourID: "t1", AuthorID: "u1"}
	err := review.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Rating must be between 1 and 5"}, verr.Messages)

	review.Rating = 3
	assert.NoError(t, review.Validate())

	assert.Error(t, (&Review{Rating: 3}).Validate())
}

func TestReview_MarshalJSONRendersAuthor(t *testing.T) {
	review := Review{ID: "r1", Review: "Great", Rating: 5, TourID: "t1", AuthorID: "u1"}

	raw, err := json.Marshal(review)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"author":"u1"`)

	review.Author = &User{ID: "u1", Name: "Lourdes Browning", Photo: "user-2.jpg", Email: "l@example.com"}
	raw, err = json.Marshal(review)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"author":{"id":"u1","name":"Lourdes Browning","photo":"user-2.jpg"}`)
	assert.NotContains(t, string(raw), "l@example.com")
}

func TestUser_SerializationHidesSecrets(t *testing.T) {
	user := NewUser("Jonas", "  Jonas@Example.com ")
	user.Password = "hash"
	token := "reset-secret-token"
	user.PasswordResetToken = &token

	raw, err := json.Marshal(user)
	require.NoError(t, err)
	assert.Equal(t, "jonas@example.com", user.Email)
	assert.NotContains(t, string(raw), "hash")
	assert.NotContains(t, string(raw), "reset-secret-token")
	assert.NotContains(t, string(raw), "active")
}

func TestUser_PasswordResetToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	user := NewUser("Jonas", "jonas@example.com")

	raw, err := user.CreatePasswordResetToken(now)
	require.NoError(t, err)
	assert.Len(t, raw, 48)
	require.NotNil(t, user.PasswordResetToken)
	assert.Equal(t, HashResetToken(raw), *user.PasswordResetToken)
	assert.NotEqual(t, raw, *user.PasswordResetToken)
	assert.Equal(t, now.Add(10*time.Minute), *user.PasswordResetExpires)

	user.ClearPasswordResetToken()
	assert.Nil(t, user.PasswordResetToken)
	assert.Nil(t, user.PasswordResetExpires)
}

func TestUser_ChangedPasswordAfter(t *testing.T) {
	iat := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	user := NewUser("Jonas", "jonas@example.com")
	assert.False(t, user.ChangedPasswordAfter(iat))

	before := iat.Add(-time.Minute)
	user.PasswordChangedAt = &before
	assert.False(t, user.ChangedPasswordAfter(iat))

	after := iat.Add(time.Minute)
	user.PasswordChangedAt = &after
	assert.True(t, user.ChangedPasswordAfter(iat))
}

func TestUser_ChangedPasswordAfterWithinSameSecond(t *testing.T) {
	iat := time.Date(2024, 3, 1, 12, 0, 0, 900*int(time.Millisecond), time.UTC)
	changed := time.Date(2024, 3, 1, 12, 0, 1, 400*int(time.Millisecond), time.UTC)
	user := NewUser("Jonas", "jonas@example.com")
	user.PasswordChangedAt = &changed
	assert.True(t, user.ChangedPasswordAfter(iat))

	sameMilli := changed
	assert.False(t, user.ChangedPasswordAfter(sameMilli))
	assert.False(t, user.ChangedPasswordAfter(changed.Add(time.Millisecond)))
}

func TestSignupInput_Validate(t *testing.T) {
	in := &SignupInput{Name: "Jonas", Email: "jonas@example.com", Password: "pass1234", PasswordConfirm: "pass4321"}
	err := in.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"confirm password doesn't match"}, verr.Messages)

	in.Password = "short"
	in.PasswordConfirm = "short"
	require.ErrorAs(t, in.Validate(), &verr)
	assert.Equal(t, []string{"Password needs to be at least 8 characters"}, verr.Messages)
}

func TestColumnMap_Columns(t *testing.T) {
	cols, rejected := TourUpdateColumns.Columns([]string{"name", "price", "id", "name"})
	assert.Equal(t, []string{"name", "slug", "price"}, cols)
	assert.Equal(t, []string{"id"}, rejected)
}
