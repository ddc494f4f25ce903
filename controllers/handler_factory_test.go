package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"natours-api/config"
	"natours-api/middleware"
	"natours-api/models"
	"natours-api/repositories"
	"natours-api/utils"
)

const reviewID = "5c8a1d5b-0190-4b6e-8d4c-2f5b1a7c9e01"

func init() {
	gin.SetMode(gin.TestMode)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func newReviewEngine(t *testing.T, db *gorm.DB, writes *int) *gin.Engine {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	handler := NewResourceHandler[models.Review, *models.Review](
		repositories.NewRepository[models.Review](db, models.ReviewFields),
		ResourceOptions[models.Review]{
			Singular: "review",
			Plural:   "reviews",
			Writable: models.ReviewUpdateColumns,
			AfterWrite: func(*gin.Context) {
				*writes++
			},
		},
	)

	r := gin.New()
	r.Use(middleware.ErrorHandler(&config.Config{Environment: config.EnvProduction}, log))
	r.GET("/reviews", handler.GetAll)
	r.GET("/reviews/:id", handler.GetOne)
	r.POST("/reviews", handler.CreateOne)
	r.DELETE("/reviews/:id", handler.DeleteOne)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var resp utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestPatchHelpers(t *testing.T) {
	patch := Patch{
		"rating": json.RawMessage(`4`),
		"review": json.RawMessage(`"Great"`),
		"guides": json.RawMessage(`["a","b"]`),
		"secret": json.RawMessage(`true`),
	}
	assert.Equal(t, []string{"guides", "rating", "review", "secret"}, patch.Keys())

	writable := patch.Writable(models.ReviewUpdateColumns)
	assert.Equal(t, []string{"rating", "review"}, writable.Keys())

	var guides []string
	found, err := patch.Take("guides", &guides)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a", "b"}, guides)
	assert.NotContains(t, patch, "guides")

	found, err = patch.Take("missing", &guides)
	assert.NoError(t, err)
	assert.False(t, found)

	var rating string
	_, err = patch.Take("rating", &rating)
	var castErr *utils.CastError
	require.ErrorAs(t, err, &castErr)
	assert.Equal(t, "rating", castErr.Path)

	review := &models.Review{Review: "Old", Rating: 2, TourID: "tour-1"}
	require.NoError(t, writable.MergeInto(review))
	assert.Equal(t, "Great", review.Review)
	assert.Equal(t, 4.0, review.Rating)
	assert.Equal(t, "tour-1", review.TourID)
}

func TestDecodePatch(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPatch, "/", nil)
	patch, err := DecodePatch(c)
	require.NoError(t, err)
	assert.Empty(t, patch)

	c.Request = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"rating": 5}`))
	patch, err = DecodePatch(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"rating"}, patch.Keys())

	c.Request = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`[1, 2]`))
	_, err = DecodePatch(c)
	assert.Error(t, err)
}

func TestResourceHandlerDatabaseFailure(t *testing.T) {
	db, mock := newMockDB(t)
	writes := 0
	r := newReviewEngine(t, db, &writes)

	mock.ExpectQuery("SELECT \\* FROM `reviews`").WillReturnError(errors.New("connection reset by peer"))

	w := serve(r, http.MethodGet, "/reviews", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := errorBody(t, w)
	assert.Equal(t, utils.StatusError, resp.Status)
	assert.Equal(t, "Something went wrong", resp.Message)
	assert.Empty(t, resp.Stack)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceHandlerGetOne(t *testing.T) {
	db, mock := newMockDB(t)
	writes := 0
	r := newReviewEngine(t, db, &writes)

	rows := sqlmock.NewRows([]string{"id", "review", "rating", "tour_id", "author_id"}).
		AddRow(reviewID, "Amazing", 5, "tour-1", "user-1")
	mock.ExpectQuery("SELECT \\* FROM `reviews` WHERE id = \\?").WillReturnRows(rows)

	w := serve(r, http.MethodGet, "/reviews/"+reviewID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Review struct {
				ID     string  `json:"id"`
				Rating float64 `json:"rating"`
				Tour   string  `json:"tour"`
				Author string  `json:"author"`
			} `json:"review"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, utils.StatusSuccess, resp.Status)
	assert.Equal(t, reviewID, resp.Data.Review.ID)
	assert.Equal(t, "tour-1", resp.Data.Review.Tour)
	assert.Equal(t, "user-1", resp.Data.Review.Author)

	mock.ExpectQuery("SELECT \\* FROM `reviews`").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	w = serve(r, http.MethodGet, "/reviews/"+reviewID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No document found with that ID", errorBody(t, w).Message)

	w = serve(r, http.MethodGet, "/reviews/42", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid id : 42", errorBody(t, w).Message)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceHandlerCreateValidates(t *testing.T) {
	db, mock := newMockDB(t)
	writes := 0
	r := newReviewEngine(t, db, &writes)

	w := serve(r, http.MethodPost, "/reviews", `{"review": "Nice", "rating": 0, "tour": "tour-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.HasPrefix(errorBody(t, w).Message, "Invalid input data. "))

	w = serve(r, http.MethodPost, "/reviews", `{"review": "Nice", "rating": "five"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodPost, "/reviews", `{"review": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON body", errorBody(t, w).Message)

	assert.Zero(t, writes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceHandlerDelete(t *testing.T) {
	db, mock := newMockDB(t)
	writes := 0
	r := newReviewEngine(t, db, &writes)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `reviews` WHERE id = \\?").WithArgs(reviewID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := serve(r, http.MethodDelete, "/reviews/"+reviewID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, writes)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `reviews`").WithArgs(reviewID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	w = serve(r, http.MethodDelete, "/reviews/"+reviewID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, writes)

	assert.NoError(t, mock.ExpectationsWereMet())
}
