package database

import (
	"fmt"
	"log"
	"time"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

func SetupDatabase() {
	var err error
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,   // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  true,  // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}), &gorm.Config{})
		if err == nil {
			DB.AutoMigrate(
				&models.User{},
				&models.UserSettings{},
				&models.SubscriptionPlan{},
				&models.UserSubscription{},
				&models.PaymentOrder{},
				&models.ProcessedRequest{},
				&models.Donation{},
				&models.Workout{},
				&models.CustomExercise{},
			)

			if err := seedDefaultPlans(DB); err != nil {
				log.Printf("Failed to seed default subscription plans: %v", err)
			}
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// GetDB returns the shared GORM handle (nil until SetupDatabase ran).
func GetDB() *gorm.DB {
	return DB
}

// seedDefaultPlans ensures the plan catalog contains at least the free plan.
// Paid plans are reference data maintained by administrators / migrations,
// but the engine cannot run without a default plan to fall back to.
func seedDefaultPlans(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.SubscriptionPlan{}).Where("is_default = ?", true).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	maxWorkouts := 3
	maxCustomExercises := 5
	free := models.SubscriptionPlan{
		Name:               "Free",
		Price:              0,
		Currency:           "EUR",
		MaxWorkouts:        &maxWorkouts,
		MaxCustomExercises: &maxCustomExercises,
		IsDefault:          true,
	}
	return db.Create(&free).Error
}
