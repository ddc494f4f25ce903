package controllers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"natours-api/middleware"
	"natours-api/models"
	"natours-api/repositories"
	"natours-api/services"
	"natours-api/utils"
)

// TourFinder resolves tours by id.
type TourFinder interface {
	FindByID(ctx context.Context, id string, preloads ...string) (*models.Tour, error)
}

type ReviewController struct {
	tours   TourFinder
	cache   *services.CacheService
	handler *ResourceHandler[models.Review, *models.Review]
}

func NewReviewController(reviews *repositories.ReviewRepository, tours TourFinder, cache *services.CacheService) *ReviewController {
	rc := &ReviewController{tours: tours, cache: cache}
	rc.handler = NewResourceHandler[models.Review, *models.Review](reviews, ResourceOptions[models.Review]{
		Singular:     "review",
		Plural:       "reviews",
		Writable:     models.ReviewUpdateColumns,
		ParentParam:  "tourId",
		ParentColumn: "tour_id",
		Bind:         rc.bind,
		AfterWrite:   rc.invalidate,
	})
	return rc
}

// bind makes the caller the author of a new review. The tour comes from the
// body, or from the nested route when the body has none, and must exist.
func (rc *ReviewController) bind(c *gin.Context, review *models.Review, patch Patch, creating bool) error {
	if creating {
		if user := middleware.CurrentUser(c); user != nil {
			review.AuthorID = user.ID
		}
		if raw := c.Param("tourId"); raw != "" {
			tourID, err := utils.ParseID("tourId", raw)
			if err != nil {
				return err
			}
			review.TourID = tourID
		}
	}

	tourID := review.TourID
	if raw, ok := patch["tour"]; ok {
		if err := json.Unmarshal(raw, &tourID); err != nil {
			return &utils.CastError{Path: "tour", Value: string(raw)}
		}
		if _, err := utils.ParseID("tour", tourID); err != nil {
			return err
		}
	}
	if tourID == "" {
		// Left to validation.
		return nil
	}

	if _, err := rc.tours.FindByID(c.Request.Context(), tourID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound("No tour found with that ID")
		}
		return err
	}
	return nil
}

// Ratings live on the tour, so cached tour reads go stale on review writes.
func (rc *ReviewController) invalidate(c *gin.Context) {
	_ = rc.cache.InvalidateTours(c.Request.Context())
}

func (rc *ReviewController) GetAllReviews(c *gin.Context) {
	rc.handler.GetAll(c)
}

func (rc *ReviewController) GetReview(c *gin.Context) {
	rc.handler.GetOne(c)
}

func (rc *ReviewController) CreateReview(c *gin.Context) {
	rc.handler.CreateOne(c)
}

func (rc *ReviewController) UpdateReview(c *gin.Context) {
	rc.handler.UpdateOne(c)
}

func (rc *ReviewController) DeleteReview(c *gin.Context) {
	rc.handler.DeleteOne(c)
}
