package repositories

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"natours-api/models"
	"natours-api/utils"
)

// Tours rated at least this well are part of the difficulty stats.
const statsMinRating = 4.5

type TourRepository struct {
	*Repository[models.Tour]
	db *gorm.DB
}

func NewTourRepository(db *gorm.DB) *TourRepository {
	repo := NewRepository[models.Tour](db, models.TourFields).
		WithListPreloads("Guides").
		WithPreloadScope("Guides", models.ActiveUsers).
		WithPreloadScope("Reviews.Author", models.ActiveUsers)
	return &TourRepository{Repository: repo, db: db}
}

// Create inserts the tour and links its guides in one transaction.
func (r *TourRepository) Create(ctx context.Context, tour *models.Tour) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.Repository.WithTx(tx).Create(ctx, tour); err != nil {
			return err
		}
		return r.replaceGuides(tx, tour)
	})
}

// Update writes the given columns, bumps the version and relinks the guides
// when the patch carried them.
func (r *TourRepository) Update(ctx context.Context, tour *models.Tour, columns []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tour.Version++
		columns = append(append([]string{}, columns...), "version")
		if err := r.Repository.WithTx(tx).Update(ctx, tour, columns); err != nil {
			return err
		}
		return r.replaceGuides(tx, tour)
	})
}

// Delete removes the tour together with its reviews and guide links.
func (r *TourRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tour := &models.Tour{ID: id}
		if err := tx.Model(tour).Association("Guides").Clear(); err != nil {
			return errors.WithStack(err)
		}
		if err := tx.Where("tour_id = ?", id).Delete(&models.Review{}).Error; err != nil {
			return errors.WithStack(err)
		}
		return r.Repository.WithTx(tx).Delete(ctx, id)
	})
}

func (r *TourRepository) replaceGuides(tx *gorm.DB, tour *models.Tour) error {
	if tour.GuideIDs == nil {
		return nil
	}

	guides := make([]models.User, 0, len(tour.GuideIDs))
	if len(tour.GuideIDs) > 0 {
		if err := tx.Scopes(models.ActiveUsers).Where("id IN ?", tour.GuideIDs).Find(&guides).Error; err != nil {
			return errors.WithStack(err)
		}
		if len(guides) != len(uniqueStrings(tour.GuideIDs)) {
			return utils.BadRequest("Some of the guides could not be found")
		}
	}

	if err := tx.Model(tour).Association("Guides").Replace(guides); err != nil {
		return errors.WithStack(err)
	}
	tour.Guides = guides
	return nil
}

// Within returns the tours whose start location lies inside the circle.
func (r *TourRepository) Within(ctx context.Context, lat, lng, radius float64, unit utils.DistanceUnit) ([]models.Tour, error) {
	minLat, maxLat, minLng, maxLng := utils.BoundingBox(lat, lng, radius, unit)

	var candidates []models.Tour
	err := r.db.WithContext(ctx).
		Preload("Guides", models.ActiveUsers).
		Where("start_location_latitude BETWEEN ? AND ?", minLat, maxLat).
		Where("start_location_longitude BETWEEN ? AND ?", minLng, maxLng).
		Find(&candidates).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}

	tours := make([]models.Tour, 0, len(candidates))
	for _, t := range candidates {
		if t.StartLocation.IsZero() {
			continue
		}
		if utils.Distance(lat, lng, t.StartLocation.Latitude, t.StartLocation.Longitude, unit) <= radius {
			tours = append(tours, t)
		}
	}
	return tours, nil
}

// Distances lists every located tour with its distance from the point,
// nearest first.
func (r *TourRepository) Distances(ctx context.Context, lat, lng float64, unit utils.DistanceUnit) ([]models.TourDistance, error) {
	var tours []models.Tour
	err := r.db.WithContext(ctx).
		Select("id", "name", "start_location_latitude", "start_location_longitude").
		Find(&tours).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}

	out := make([]models.TourDistance, 0, len(tours))
	for _, t := range tours {
		if t.StartLocation.IsZero() {
			continue
		}
		d := utils.Distance(lat, lng, t.StartLocation.Latitude, t.StartLocation.Longitude, unit)
		out = append(out, models.TourDistance{ID: t.ID, Name: t.Name, Distance: utils.RoundToDecimal(d, 2)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// Stats groups well rated tours by difficulty, cheapest group first.
func (r *TourRepository) Stats(ctx context.Context) ([]models.TourStats, error) {
	stats := make([]models.TourStats, 0)
	err := r.db.WithContext(ctx).
		Model(&models.Tour{}).
		Select(`UPPER(difficulty) AS difficulty,
			COUNT(*) AS num_tours,
			COALESCE(SUM(ratings_quantity), 0) AS num_ratings,
			AVG(ratings_average) AS avg_rating,
			AVG(price) AS avg_price,
			MIN(price) AS min_price,
			MAX(price) AS max_price`).
		Where("ratings_average >= ?", statsMinRating).
		Group("difficulty").
		Order("avg_price").
		Scan(&stats).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for i := range stats {
		stats[i].AvgRating = models.RoundRating(stats[i].AvgRating)
		stats[i].AvgPrice = utils.RoundToDecimal(stats[i].AvgPrice, 2)
	}
	return stats, nil
}

// MonthlyPlan counts the tour starts of each month of year, busiest month
// first.
func (r *TourRepository) MonthlyPlan(ctx context.Context, year int) ([]models.MonthlyPlan, error) {
	var tours []models.Tour
	if err := r.db.WithContext(ctx).Select("id", "name", "start_dates").Find(&tours).Error; err != nil {
		return nil, errors.WithStack(err)
	}

	byMonth := make(map[int]*models.MonthlyPlan)
	for _, t := range tours {
		for _, start := range t.StartDates {
			start = start.UTC()
			if start.Year() != year {
				continue
			}
			month := int(start.Month())
			plan, ok := byMonth[month]
			if !ok {
				plan = &models.MonthlyPlan{Month: month, Tours: []string{}}
				byMonth[month] = plan
			}
			plan.NumTourStarts++
			plan.Tours = append(plan.Tours, t.Name)
		}
	}

	plans := make([]models.MonthlyPlan, 0, len(byMonth))
	for _, plan := range byMonth {
		plans = append(plans, *plan)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].NumTourStarts != plans[j].NumTourStarts {
			return plans[i].NumTourStarts > plans[j].NumTourStarts
		}
		return plans[i].Month < plans[j].Month
	})
	return plans, nil
}

func uniqueStrings(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
