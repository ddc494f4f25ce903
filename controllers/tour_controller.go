package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"natours-api/models"
	"natours-api/repositories"
	"natours-api/services"
	"natours-api/utils"
)

const statsCacheKey = services.TourCachePrefix + ":stats"

type TourController struct {
	tours   *repositories.TourRepository
	images  *services.ImageService
	cache   *services.CacheService
	handler *ResourceHandler[models.Tour, *models.Tour]
}

func NewTourController(tours *repositories.TourRepository, images *services.ImageService, cache *services.CacheService) *TourController {
	tc := &TourController{tours: tours, images: images, cache: cache}
	tc.handler = NewResourceHandler[models.Tour, *models.Tour](tours, ResourceOptions[models.Tour]{
		Singular:    "tour",
		Plural:      "tours",
		Writable:    models.TourUpdateColumns,
		OnePreloads: []string{"Guides", "Reviews", "Reviews.Author"},
		Bind:        bindTour,
		AfterWrite:  tc.invalidate,
	})
	return tc
}

// bindTour turns the guides attribute into guide references.
func bindTour(_ *gin.Context, tour *models.Tour, patch Patch, creating bool) error {
	if creating {
		tour.ApplyDefaults()
	}

	var guides []string
	present, err := patch.Take("guides", &guides)
	if err != nil {
		return err
	}
	if present {
		if guides == nil {
			guides = []string{}
		}
		for _, id := range guides {
			if _, err := utils.ParseID("guides", id); err != nil {
				return err
			}
		}
		tour.GuideIDs = guides
	}
	return nil
}

// invalidate drops cached tour reads. Failures are logged by the cache.
func (tc *TourController) invalidate(c *gin.Context) {
	_ = tc.cache.InvalidateTours(c.Request.Context())
}

// AliasTopTours rewrites the query to the five best rated, cheapest tours.
func AliasTopTours(c *gin.Context) {
	query := c.Request.URL.Query()
	query.Set("limit", "5")
	query.Set("sort", "-ratingsAverage,price")
	c.Request.URL.RawQuery = query.Encode()
	c.Next()
}

func (tc *TourController) GetAllTours(c *gin.Context) {
	key := services.QueryKey(services.TourCachePrefix, c.Request.URL.Query())
	if tc.serveCached(c, key) {
		return
	}

	items, count, err := tc.handler.List(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	resp := utils.ListResponse("tours", items, count)
	tc.cache.Set(c.Request.Context(), key, resp)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, resp)
}

func (tc *TourController) GetTour(c *gin.Context) {
	tc.handler.GetOne(c)
}

func (tc *TourController) CreateTour(c *gin.Context) {
	tc.handler.CreateOne(c)
}

// UpdateTour accepts a JSON patch, or a multipart form whose imageCover and
// images files are resized and stored before the patch is applied. Stored
// files are removed again when the update fails.
func (tc *TourController) UpdateTour(c *gin.Context) {
	if !strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data") {
		tc.handler.UpdateOne(c)
		return
	}

	id, err := utils.ParseID("id", c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		_ = c.Error(err)
		return
	}
	covers := form.File["imageCover"]
	if len(covers) > 1 {
		_ = c.Error(utils.BadRequest("Only one imageCover can be uploaded"))
		return
	}
	if _, err := tc.tours.FindByID(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	patch := formPatch(form.Value)
	var stored []string

	if len(covers) == 1 {
		name, err := tc.images.SaveTourCover(id, covers[0])
		if err != nil {
			_ = c.Error(err)
			return
		}
		stored = append(stored, name)
		patch["imageCover"], _ = json.Marshal(name)
	}

	if files := form.File["images"]; len(files) > 0 {
		names, err := tc.images.SaveTourImages(id, files)
		if err != nil {
			tc.images.DiscardTourImages(stored...)
			_ = c.Error(err)
			return
		}
		stored = append(stored, names...)
		patch["images"], _ = json.Marshal(names)
	}

	failures := len(c.Errors)
	tc.handler.UpdateWith(c, patch)
	if len(c.Errors) > failures {
		tc.images.DiscardTourImages(stored...)
	}
}

func (tc *TourController) DeleteTour(c *gin.Context) {
	tc.handler.DeleteOne(c)
}

func (tc *TourController) GetTourStats(c *gin.Context) {
	if tc.serveCached(c, statsCacheKey) {
		return
	}

	stats, err := tc.tours.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	resp := utils.SuccessResponse{Status: utils.StatusSuccess, Data: gin.H{"stats": stats}}
	tc.cache.Set(c.Request.Context(), statsCacheKey, resp)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, resp)
}

func (tc *TourController) GetMonthlyPlan(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1 {
		_ = c.Error(utils.BadRequest("Please provide a valid year"))
		return
	}

	plan, err := tc.tours.MonthlyPlan(c.Request.Context(), year)
	if err != nil {
		_ = c.Error(err)
		return
	}
	utils.SendList(c, "plan", plan, len(plan))
}

// GetToursWithin handles /tours-within/:distance/center/:latlng/unit/:unit.
func (tc *TourController) GetToursWithin(c *gin.Context) {
	lat, lng, unit, err := geoParams(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	distance, err := strconv.ParseFloat(c.Param("distance"), 64)
	if err != nil || distance <= 0 {
		_ = c.Error(utils.BadRequest("Please provide a positive distance"))
		return
	}

	tours, err := tc.tours.Within(c.Request.Context(), lat, lng, distance, unit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	utils.SendList(c, "tours", tours, len(tours))
}

// GetDistances handles /distances/:latlng/unit/:unit.
func (tc *TourController) GetDistances(c *gin.Context) {
	lat, lng, unit, err := geoParams(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	distances, err := tc.tours.Distances(c.Request.Context(), lat, lng, unit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	utils.SendList(c, "distances", distances, len(distances))
}

func (tc *TourController) serveCached(c *gin.Context, key string) bool {
	var cached json.RawMessage
	if !tc.cache.Get(c.Request.Context(), key, &cached) {
		return false
	}
	c.Header("X-Cache", "HIT")
	c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
	return true
}

func geoParams(c *gin.Context) (lat, lng float64, unit utils.DistanceUnit, err error) {
	lat, lng, ok := utils.ParseLatLng(c.Param("latlng"))
	if !ok {
		return 0, 0, "", utils.BadRequest("Please provide latitude and longitude in format lat,lng")
	}
	unit, ok = utils.ParseUnit(c.Param("unit"))
	if !ok {
		return 0, 0, "", utils.BadRequest(fmt.Sprintf("Unit must be %s or %s", utils.UnitMiles, utils.UnitKilometers))
	}
	return lat, lng, unit, nil
}

// formPatch reads multipart text fields as JSON values, falling back to
// strings for values that are not valid JSON.
func formPatch(values map[string][]string) Patch {
	patch := Patch{}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		raw := strings.TrimSpace(vals[0])
		if json.Valid([]byte(raw)) {
			patch[key] = json.RawMessage(raw)
			continue
		}
		patch[key], _ = json.Marshal(raw)
	}
	return patch
}
