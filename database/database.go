package database

import (
	"fmt"
	"log"
	"os"

	"factura/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func allModels() []interface{} {
	return []interface{}{
		&models.Tenant{},
		&models.TaxConfig{},
		&models.Invoice{},
		&models.InvoiceSequence{},
		&models.Payment{},
		&models.PaymentReminder{},
		&models.BillingHistory{},
	}
}

func ConnectDatabase() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=factura password='' dbname=factura port=5432 sslmode=disable TimeZone=America/Bogota"
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	DB = db

	log.Println("Running database migrations...")
	if err := DB.AutoMigrate(allModels()...); err != nil {
		log.Fatalf("Failed to auto migrate database: %v", err)
	}

	log.Println("Database migration completed!")
}

// ClearDBAndMigrate drops all tables and re-runs migrations.
// This is primarily for development/testing purposes.
func ClearDBAndMigrate() error {
	log.Println("Clearing database...")
	if err := DB.Migrator().DropTable(allModels()...); err != nil {
		log.Printf("Failed to drop tables: %v", err)
		return fmt.Errorf("failed to drop tables: %w", err)
	}

	log.Println("Database cleared. Running migrations again...")
	if err := DB.AutoMigrate(allModels()...); err != nil {
		log.Printf("Failed to re-migrate database: %v", err)
		return fmt.Errorf("failed to re-migrate database: %w", err)
	}
	log.Println("Database re-migrated successfully!")
	return nil
}
