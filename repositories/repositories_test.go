package repositories

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"natours-api/database"
	"natours-api/models"
	"natours-api/utils"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	db, err := database.OpenMemory(log)
	require.NoError(t, err)
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string, role models.Role) *models.User {
	t.Helper()
	u := models.NewUser(name, fmt.Sprintf("%s@example.com", name))
	u.Role = role
	u.Password = "hash"
	require.NoError(t, db.Create(u).Error)
	return u
}

func createTour(t *testing.T, repo *TourRepository, name string, price float64, lat, lng float64) *models.Tour {
	t.Helper()
	tour := &models.Tour{
		Name:          name,
		Duration:      7,
		MaxGroupSize:  10,
		Difficulty:    models.DifficultyMedium,
		Price:         price,
		Summary:       "summary",
		ImageCover:    "cover.jpg",
		StartLocation: models.GeoPoint{Latitude: lat, Longitude: lng},
	}
	tour.ApplyDefaults()
	tour.Prepare()
	require.NoError(t, repo.Create(context.Background(), tour))
	return tour
}

func TestRepository_FindAndDeleteMissing(t *testing.T) {
	db := setupDB(t)
	repo := NewTourRepository(db)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "00000000-0000-0000-0000-000000000000"), gorm.ErrRecordNotFound)
}

func TestRepository_ListWithParentFilter(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	tours := NewTourRepository(db)
	reviews := NewReviewRepository(db)

	first := createTour(t, tours, "The Forest Hiker", 397, 51.4, -116.2)
	second := createTour(t, tours, "The Sea Explorer", 497, 25.7, -80.1)
	for i, name := range []string{"ann", "bob", "cid"} {
		author := createUser(t, db, name, models.RoleUser)
		tourID := first.ID
		if i == 2 {
			tourID = second.ID
		}
		r := &models.Review{Review: "nice", Rating: 4, TourID: tourID, AuthorID: author.ID}
		r.Prepare()
		require.NoError(t, reviews.Create(ctx, r))
	}

	list, _, err := reviews.List(ctx, url.Values{}, map[string]interface{}{"tour_id": first.ID})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	require.NotNil(t, list[0].Author)

	all, features, err := reviews.List(ctx, url.Values{"limit": {"1"}}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 1, features.Limit)
}

func TestReviewRepository_RecalculatesRatings(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	tours := NewTourRepository(db)
	reviews := NewReviewRepository(db)
	tour := createTour(t, tours, "The Park Camper", 1497, 37.7, -122.4)

	var created []*models.Review
	for i, rating := range []float64{5, 4, 4} {
		author := createUser(t, db, fmt.Sprintf("author%d", i), models.RoleUser)
		r := &models.Review{Review: "review", Rating: rating, TourID: tour.ID, AuthorID: author.ID}
		r.Prepare()
		require.NoError(t, reviews.Create(ctx, r))
		created = append(created, r)
	}

	got, err := tours.FindByID(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.3, got.RatingsAverage)
	assert.Equal(t, 3, got.RatingsQuantity)

	for _, r := range created {
		require.NoError(t, reviews.Delete(ctx, r.ID))
	}

	got, err = tours.FindByID(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.RatingsAverage)
	assert.Equal(t, 0, got.RatingsQuantity)
}

func TestReviewRepository_UpdateMovingTourRecomputesBoth(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	tours := NewTourRepository(db)
	reviews := NewReviewRepository(db)
	from := createTour(t, tours, "The City Wanderer", 1197, 40.7, -74.0)
	to := createTour(t, tours, "The Wine Taster", 1997, 45.4, 9.1)
	author := createUser(t, db, "mover", models.RoleUser)

	r := &models.Review{Review: "moved", Rating: 2, TourID: from.ID, AuthorID: author.ID}
	r.Prepare()
	require.NoError(t, reviews.Create(ctx, r))

	r.TourID = to.ID
	require.NoError(t, reviews.Update(ctx, r, []string{"tour_id"}))

	gotFrom, _ := tours.FindByID(ctx, from.ID)
	gotTo, _ := tours.FindByID(ctx, to.ID)
	assert.Equal(t, 0, gotFrom.RatingsQuantity)
	assert.Equal(t, 1, gotTo.RatingsQuantity)
	assert.Equal(t, 2.0, gotTo.RatingsAverage)
}

func TestTourRepository_GuidesAndVersion(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	tours := NewTourRepository(db)
	guide := createUser(t, db, "guide", models.RoleGuide)

	tour := createTour(t, tours, "The Northern Lights", 1497, 63.4, -18.9)
	tour.GuideIDs = []string{guide.ID}
	tour.Price = 1297
	require.NoError(t, tours.Update(ctx, tour, []string{"price"}))

	got, err := tours.FindByID(ctx, tour.ID, "Guides")
	require.NoError(t, err)
	assert.Equal(t, 1297.0, got.Price)
	assert.Equal(t, 1, got.Version)
	require.Len(t, got.Guides, 1)
	assert.Equal(t, guide.ID, got.Guides[0].ID)

	got.GuideIDs = []string{"missing-guide"}
	err = tours.Update(ctx, got, []string{})
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.StatusCode)

	require.NoError(t, tours.Delete(ctx, tour.ID))
	var links int64
	db.Table("tour_guides").Count(&links)
	assert.Zero(t, links)
}

func TestTourRepository_GeoQueries(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	tours := NewTourRepository(db)

	createTour(t, tours, "The Sea Explorer", 497, 25.774772, -80.185942)
	createTour(t, tours, "The Star Gazer", 997, 36.116203, -115.172813)
	createTour(t, tours, "The Forest Hiker", 397, 51.417611, -116.214531)

	// Los Angeles
	within, err := tours.Within(ctx, 34.111745, -118.113491, 400, utils.UnitMiles)
	require.NoError(t, err)
	require.Len(t, within, 1)
	assert.Equal(t, "The Star Gazer", within[0].Name)

	distances, err := tours.Distances(ctx, 34.111745, -118.113491, utils.UnitKilometers)
	require.NoError(t, err)
	require.Len(t, distances, 3)
	assert.Equal(t, "The Star Gazer", distances[0].Name)
	assert.Equal(t, "The Sea Explorer", distances[2].Name)
	assert.Less(t, distances[0].Distance, distances[1].Distance)
}

func TestTourRepository_StatsAndMonthlyPlan(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	tours := NewTourRepository(db)

	a := createTour(t, tours, "The Forest Hiker", 400, 1, 1)
	b := createTour(t, tours, "The Sea Explorer", 600, 2, 2)
	c := createTour(t, tours, "The Snow Adventurer", 900, 3, 3)

	require.NoError(t, db.Model(c).Updates(map[string]interface{}{"difficulty": "difficult"}).Error)
	require.NoError(t, db.Model(b).Updates(map[string]interface{}{"ratings_average": 3.9}).Error)

	stats, err := tours.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "MEDIUM", stats[0].Difficulty)
	assert.Equal(t, 1, stats[0].NumTours)
	assert.Equal(t, 400.0, stats[0].AvgPrice)
	assert.Equal(t, "DIFFICULT", stats[1].Difficulty)

	date := func(m time.Month) time.Time { return time.Date(2021, m, 10, 9, 0, 0, 0, time.UTC) }
	a.StartDates = models.JSONSlice[time.Time]{date(time.March), date(time.July)}
	b.StartDates = models.JSONSlice[time.Time]{date(time.July), time.Date(2022, time.July, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, tours.Update(ctx, a, []string{"start_dates"}))
	require.NoError(t, tours.Update(ctx, b, []string{"start_dates"}))

	plan, err := tours.MonthlyPlan(ctx, 2021)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, 7, plan[0].Month)
	assert.Equal(t, 2, plan[0].NumTourStarts)
	assert.ElementsMatch(t, []string{"The Forest Hiker", "The Sea Explorer"}, plan[0].Tours)
	assert.Equal(t, 3, plan[1].Month)
}

func TestUserRepository_ActiveScopeAndResetTokens(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	u := createUser(t, db, "jonas", models.RoleUser)
	raw, err := u.CreatePasswordResetToken(now)
	require.NoError(t, err)
	require.NoError(t, users.SaveResetToken(ctx, u))

	found, err := users.FindByResetToken(ctx, models.HashResetToken(raw), now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = users.FindByResetToken(ctx, models.HashResetToken(raw), now.Add(11*time.Minute))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	cleared, err := users.ClearExpiredResetTokens(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	require.NoError(t, users.Deactivate(ctx, u.ID))
	_, err = users.FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = users.FindByEmail(ctx, u.Email)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	list, _, err := users.List(ctx, url.Values{}, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}
