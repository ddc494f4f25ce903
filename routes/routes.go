package routes

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"natours-api/config"
	"natours-api/controllers"
	"natours-api/middleware"
	"natours-api/models"
	"natours-api/repositories"
	"natours-api/services"
	"natours-api/utils"
)

// Dependencies are the collaborators the router wires into controllers.
type Dependencies struct {
	Config    *config.Config
	Log       *logrus.Logger
	DB        *gorm.DB
	Auth      *services.AuthService
	Mailer    controllers.Mailer
	Images    *services.ImageService
	Cache     *services.CacheService
	RateStore middleware.RateLimitStore
	Registry  *prometheus.Registry
}

// NewRouter builds the engine with the global middleware chain and every
// route of the API.
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		deps.Log.WithError(err).Warn("invalid TRUSTED_PROXIES, trusting no proxy")
		_ = r.SetTrustedProxies(nil)
	}
	metrics := middleware.NewMetrics(deps.Registry)
	r.Use(
		middleware.RequestLogger(deps.Log),
		middleware.ErrorHandler(cfg, deps.Log),
		middleware.Recovery(deps.Log),
		middleware.SecurityHeaders(),
		SetupCORS(cfg),
		metrics.Handler(),
	)

	r.GET("/metrics", metrics.Exporter())
	r.Static("/img", filepath.Join(cfg.PublicDir, "img"))

	r.NoRoute(func(c *gin.Context) {
		_ = c.Error(utils.NotFound(fmt.Sprintf("Can't find %s on this server", c.Request.URL.String())))
	})

	SetupRoutes(r, deps)
	return r
}

func SetupCORS(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	return cors.New(corsConfig)
}

func SetupRoutes(r *gin.Engine, deps Dependencies) {
	cfg := deps.Config

	// Repositories
	tourRepo := repositories.NewTourRepository(deps.DB)
	userRepo := repositories.NewUserRepository(deps.DB)
	reviewRepo := repositories.NewReviewRepository(deps.DB)

	// Controllers
	authController := controllers.NewAuthController(cfg, userRepo, deps.Auth, deps.Mailer, deps.Log)
	tourController := controllers.NewTourController(tourRepo, deps.Images, deps.Cache)
	userController := controllers.NewUserController(userRepo, deps.Images, deps.Cache)
	reviewController := controllers.NewReviewController(reviewRepo, tourRepo, deps.Cache)
	healthController := controllers.NewHealthController(deps.DB)

	authMiddleware := middleware.NewAuthMiddleware(deps.Auth, userRepo)
	protect := authMiddleware.Protect()
	rateLimiter := middleware.NewRateLimiter(deps.RateStore, cfg.RateLimitMax, cfg.RateLimitWindow, deps.Log)

	api := r.Group("/api", rateLimiter.Handler(), middleware.ValidateJSON(), middleware.BodyLimit())
	v1 := api.Group("/v1")

	v1.GET("/health", healthController.Check)

	// Tour routes
	tours := v1.Group("/tours")
	{
		tours.GET("", tourController.GetAllTours)
		tours.POST("", protect, middleware.RestrictTo(models.RoleAdmin, models.RoleLeadGuide), tourController.CreateTour)

		tours.GET("/top-5-cheap-tours", controllers.AliasTopTours, tourController.GetAllTours)
		tours.GET("/top-5-cheap", controllers.AliasTopTours, tourController.GetAllTours)
		tours.GET("/tour-stats", tourController.GetTourStats)
		tours.GET("/monthly-plan/:year", protect,
			middleware.RestrictTo(models.RoleAdmin, models.RoleLeadGuide, models.RoleGuide),
			tourController.GetMonthlyPlan)
		tours.GET("/tours-within/:distance/center/:latlng/unit/:unit", tourController.GetToursWithin)
		tours.GET("/distances/:latlng/unit/:unit", tourController.GetDistances)

		tours.GET("/:id", tourController.GetTour)
		tours.PATCH("/:id", protect, middleware.RestrictTo(models.RoleAdmin, models.RoleLeadGuide), tourController.UpdateTour)
		tours.DELETE("/:id", protect, middleware.RestrictTo(models.RoleAdmin, models.RoleLeadGuide), tourController.DeleteTour)

		// Nested reviews share the :id segment with the tour routes.
		tours.GET("/:id/reviews", protect, aliasParam("id", "tourId"), reviewController.GetAllReviews)
		tours.POST("/:id/reviews", protect, middleware.RestrictTo(models.RoleUser), aliasParam("id", "tourId"), reviewController.CreateReview)
	}

	// User routes
	users := v1.Group("/users")
	{
		users.POST("/signup", authController.Signup)
		users.POST("/login", authController.Login)
		users.GET("/logout", authController.Logout)
		users.POST("/forgotPassword", authController.ForgotPassword)
		users.PATCH("/resetPassword/:token", authController.ResetPassword)
		users.POST("/resetPassword/:token", authController.ResetPassword)

		me := users.Group("", protect)
		me.GET("/me", userController.GetMe)
		me.PATCH("/updateMyPassword", authController.UpdateMyPassword)
		me.PATCH("/updateMyData", userController.UpdateMyData)
		me.DELETE("/deleteMyAccount", userController.DeleteMyAccount)

		admin := users.Group("", protect, middleware.RestrictTo(models.RoleAdmin))
		admin.GET("", userController.GetAllUsers)
		admin.GET("/:id", userController.GetUser)
		admin.PATCH("/:id", userController.UpdateUser)
		admin.DELETE("/:id", userController.DeleteUser)
	}

	// Review routes
	reviews := v1.Group("/reviews", protect)
	{
		reviews.GET("", reviewController.GetAllReviews)
		reviews.POST("", middleware.RestrictTo(models.RoleUser), reviewController.CreateReview)
		reviews.GET("/:id", reviewController.GetReview)
		reviews.PATCH("/:id", middleware.RestrictTo(models.RoleUser, models.RoleAdmin), reviewController.UpdateReview)
		reviews.DELETE("/:id", middleware.RestrictTo(models.RoleUser, models.RoleAdmin), reviewController.DeleteReview)
	}
}

// aliasParam exposes route parameter from under a second name.
func aliasParam(from, to string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Params = append(c.Params, gin.Param{Key: to, Value: c.Param(from)})
		c.Next()
	}
}
