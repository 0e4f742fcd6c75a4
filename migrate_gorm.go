// migrate_gorm.go - Run this file to test GORM migrations
// Usage: go run migrate_gorm.go

//go:build ignore

package main

import (
	"log"

	"github.com/ohmiler/milerdev-sub000/config"
	"github.com/ohmiler/milerdev-sub000/database"
)

func main() {
	log.Println("=== GORM Migration Test ===")

	// Load environment variables
	if err := config.LoadENV(); err != nil {
		log.Fatal("Failed to load environment variables:", err)
	}

	// Initialize GORM connection
	store, err := database.StartGORM()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer store.Close()

	// Run migrations
	if err := store.Init(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Health check
	if err := store.HealthCheck(); err != nil {
		log.Fatal("Database health check failed:", err)
	}

	log.Println("✅ All migrations completed successfully!")
	log.Println("✅ Database connection healthy!")
	log.Println("\nYou can now check your PostgreSQL database to see the new tables:")
	log.Println("  - users")
	log.Println("  - courses")
	log.Println("  - bundles")
	log.Println("  - bundle_courses")
	log.Println("  - coupons")
	log.Println("  - payments")
	log.Println("  - payment_gateway_events")
	log.Println("  - payment_audit_logs")
	log.Println("  - enrollments")
	log.Println("  - user_notifications")
	log.Println("  - cron_job_logs")
}
