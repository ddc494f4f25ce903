package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"natours-api/models"
)

// ReviewRepository keeps the rating aggregate of a tour in step with its
// reviews: every write recomputes it inside the same transaction.
type ReviewRepository struct {
	*Repository[models.Review]
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	repo := NewRepository[models.Review](db, models.ReviewFields).
		WithListPreloads("Author").
		WithPreloadScope("Author", models.ActiveUsers)
	return &ReviewRepository{Repository: repo, db: db}
}

func (r *ReviewRepository) FindByID(ctx context.Context, id string, preloads ...string) (*models.Review, error) {
	return r.Repository.FindByID(ctx, id, append([]string{"Author"}, preloads...)...)
}

func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.Repository.WithTx(tx).Create(ctx, review); err != nil {
			return err
		}
		return RecalculateTourRatings(tx, review.TourID)
	})
}

// Update recomputes the ratings of the review's tour, and of the tour it
// belonged to before when the patch moved it.
func (r *ReviewRepository) Update(ctx context.Context, review *models.Review, columns []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous, err := tourOfReview(tx, review.ID)
		if err != nil {
			return err
		}
		if err := r.Repository.WithTx(tx).Update(ctx, review, columns); err != nil {
			return err
		}
		if previous != review.TourID {
			if err := RecalculateTourRatings(tx, previous); err != nil {
				return err
			}
		}
		return RecalculateTourRatings(tx, review.TourID)
	})
}

func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tourID, err := tourOfReview(tx, id)
		if err != nil {
			return err
		}
		if err := r.Repository.WithTx(tx).Delete(ctx, id); err != nil {
			return err
		}
		return RecalculateTourRatings(tx, tourID)
	})
}

func tourOfReview(tx *gorm.DB, id string) (string, error) {
	var review models.Review
	if err := tx.Select("id", "tour_id").Where("id = ?", id).First(&review).Error; err != nil {
		return "", errors.WithStack(err)
	}
	return review.TourID, nil
}

type ratingAggregate struct {
	Quantity int64   `gorm:"column:quantity"`
	Average  float64 `gorm:"column:average"`
}

// RecalculateTourRatings stores the average and count of a tour's reviews on
// the tour. A tour without reviews goes back to 0 and 0.
func RecalculateTourRatings(tx *gorm.DB, tourID string) error {
	var agg ratingAggregate
	err := tx.Model(&models.Review{}).
		Select("COUNT(*) AS quantity, COALESCE(AVG(rating), 0) AS average").
		Where("tour_id = ?", tourID).
		Scan(&agg).Error
	if err != nil {
		return errors.WithStack(err)
	}

	err = tx.Model(&models.Tour{}).
		Where("id = ?", tourID).
		Updates(map[string]interface{}{
			"ratings_average":  models.RoundRating(agg.Average),
			"ratings_quantity": agg.Quantity,
		}).Error
	return errors.WithStack(err)
}
