package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"natours-api/config"
	"natours-api/models"
)

func Initialize(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if !cfg.IsProduction() {
		level = logger.Info
	}

	db, err := Open(dialector, log, level)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Dialector picks the gorm driver for DB_DRIVER.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects through dialector. Driver errors are translated so that
// unique violations surface as gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector, log *logrus.Logger, level logger.LogLevel) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
}

func Migrate(db *gorm.DB, log *logrus.Logger) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Tour{},
		&models.Review{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	addCustomIndexes(db, log)
	addDatabaseConstraints(db, log)
	return nil
}

func addCustomIndexes(db *gorm.DB, log *logrus.Logger) {
	indexes := map[string]string{
		"idx_tours_start_location": "CREATE INDEX idx_tours_start_location ON tours (start_location_latitude, start_location_longitude)",
		"idx_reviews_tour_created": "CREATE INDEX idx_reviews_tour_created ON reviews (tour_id, created_at)",
	}
	tables := map[string]interface{}{
		"idx_tours_start_location": &models.Tour{},
		"idx_reviews_tour_created": &models.Review{},
	}

	for name, stmt := range indexes {
		if db.Migrator().HasIndex(tables[name], name) {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			log.WithError(err).WithField("index", name).Warn("could not create index")
		}
	}
}

func addDatabaseConstraints(db *gorm.DB, log *logrus.Logger) {
	// sqlite cannot add constraints to an existing table
	if db.Dialector.Name() == "sqlite" {
		return
	}

	constraints := []struct {
		model interface{}
		name  string
		stmt  string
	}{
		{&models.Review{}, "ck_reviews_rating_range", "ALTER TABLE reviews ADD CONSTRAINT ck_reviews_rating_range CHECK (rating >= 1 AND rating <= 5)"},
		{&models.Tour{}, "ck_tours_price_discount", "ALTER TABLE tours ADD CONSTRAINT ck_tours_price_discount CHECK (price_discount < price)"},
	}

	for _, c := range constraints {
		if db.Migrator().HasConstraint(c.model, c.name) {
			continue
		}
		if err := db.Exec(c.stmt).Error; err != nil {
			log.WithError(err).WithField("constraint", c.name).Warn("could not add constraint")
		}
	}
}

// SeedData populates an empty database with an admin, a guide and a few tours
// for development.
func SeedData(db *gorm.DB, log *logrus.Logger) error {
	var userCount int64
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return err
	}
	if userCount > 0 {
		log.Info("database already has data, skipping seed")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("test1234"), 12)
	if err != nil {
		return err
	}

	admin := models.NewUser("Jonas Schmedtmann", "admin@natours.io")
	admin.Role = models.RoleAdmin
	admin.Password = string(hash)

	guide := models.NewUser("Lisa Brown", "lisa@natours.io")
	guide.Role = models.RoleLeadGuide
	guide.Password = string(hash)

	for _, u := range []*models.User{admin, guide} {
		if err := db.Create(u).Error; err != nil {
			log.WithError(err).WithField("email", u.Email).Warn("could not create seed user")
		}
	}

	year := time.Now().Year()
	tours := []*models.Tour{
		{
			Name:          "The Forest Hiker",
			Duration:      5,
			MaxGroupSize:  25,
			Difficulty:    models.DifficultyEasy,
			Price:         397,
			Summary:       "Breathtaking hike through the Canadian Banff National Park",
			ImageCover:    "tour-1-cover.jpg",
			Images:        models.JSONSlice[string]{"tour-1-1.jpg", "tour-1-2.jpg", "tour-1-3.jpg"},
			StartDates:    models.JSONSlice[time.Time]{time.Date(year, 4, 25, 10, 0, 0, 0, time.UTC), time.Date(year, 7, 20, 10, 0, 0, 0, time.UTC)},
			StartLocation: models.GeoPoint{Latitude: 51.417611, Longitude: -116.214531, Address: "224 Banff Ave, Banff, AB, Canada", Description: "Banff, CAN"},
			Locations: models.JSONSlice[models.Location]{
				{GeoPoint: models.GeoPoint{Latitude: 51.417611, Longitude: -116.214531, Description: "Banff National Park"}, Day: 1},
				{GeoPoint: models.GeoPoint{Latitude: 52.875223, Longitude: -118.076152, Description: "Jasper National Park"}, Day: 3},
			},
			Guides: []models.User{*guide},
		},
		{
			Name:          "The Sea Explorer",
			Duration:      7,
			MaxGroupSize:  15,
			Difficulty:    models.DifficultyMedium,
			Price:         497,
			PriceDiscount: 50,
			Summary:       "Exploring the jaw-dropping US east coast by foot and by boat",
			ImageCover:    "tour-2-cover.jpg",
			StartDates:    models.JSONSlice[time.Time]{time.Date(year, 6, 19, 10, 0, 0, 0, time.UTC)},
			StartLocation: models.GeoPoint{Latitude: 25.774772, Longitude: -80.185942, Address: "301 Biscayne Blvd, Miami, FL 33132, USA", Description: "Miami, USA"},
		},
		{
			Name:          "The Snow Adventurer",
			Duration:      4,
			MaxGroupSize:  10,
			Difficulty:    models.DifficultyDifficult,
			Price:         997,
			Summary:       "Exciting adventure in the snow with snowboarding and skiing",
			ImageCover:    "tour-3-cover.jpg",
			StartDates:    models.JSONSlice[time.Time]{time.Date(year, 1, 5, 10, 0, 0, 0, time.UTC)},
			StartLocation: models.GeoPoint{Latitude: 39.182677, Longitude: -106.855385, Address: "419 S Mill St, Aspen, CO 81611, USA", Description: "Aspen, USA"},
		},
	}

	for _, tour := range tours {
		tour.ApplyDefaults()
		tour.Prepare()
		if err := db.Create(tour).Error; err != nil {
			log.WithError(err).WithField("tour", tour.Name).Warn("could not create seed tour")
		}
	}

	log.WithField("tours", len(tours)).Info("database seeded with development data")
	return nil
}

// OpenMemory opens a private in-memory sqlite database with the schema
// migrated. Used by tests and for quick local runs.
func OpenMemory(log *logrus.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(sqlite.Open(dsn), log, logger.Silent)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection keeps the memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}
