package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/utils/auth"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("🌱 Starting database seeding...")

	// Run seeds in order (respecting foreign key constraints)
	if err := s.SeedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedCourses(); err != nil {
		return fmt.Errorf("failed to seed courses: %w", err)
	}

	if err := s.SeedBundles(); err != nil {
		return fmt.Errorf("failed to seed bundles: %w", err)
	}

	if err := s.SeedCoupons(); err != nil {
		return fmt.Errorf("failed to seed coupons: %w", err)
	}

	log.Println("✅ Database seeding completed successfully!")
	return nil
}

// SeedAdminUser creates the default admin user
func (s *Seeder) SeedAdminUser() error {
	// Check if admin already exists
	var count int64
	if err := s.db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Admin user already exists, skipping...")
		return nil
	}

	// Get admin credentials from environment variables
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		log.Println("⚠️  ADMIN_EMAIL and ADMIN_PASSWORD environment variables not set, skipping admin user creation")
		return nil
	}

	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return err
	}

	admin := model.User{
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Name:         "Administrator",
		Role:         model.RoleAdmin,
	}

	if err := s.db.Create(&admin).Error; err != nil {
		return err
	}

	log.Printf("✅ Created admin user %s\n", adminEmail)
	return nil
}

// SeedCourses creates the starter course catalog
func (s *Seeder) SeedCourses() error {
	// Check if courses already exist
	var count int64
	if err := s.db.Model(&model.Course{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Courses already exist, skipping...")
		return nil
	}

	// Prices are minor units (satang)
	courses := []model.Course{
		{
			Title:       "Go Fundamentals",
			Slug:        "go-fundamentals",
			Description: "From zero to production-ready Go: syntax, tooling, testing and modules",
			Price:       50000, // ฿500
			Currency:    "THB",
			Published:   true,
		},
		{
			Title:       "Building REST APIs with Fiber",
			Slug:        "rest-apis-fiber",
			Description: "Design and ship HTTP APIs with routing, middleware, auth and persistence",
			Price:       70000, // ฿700
			Currency:    "THB",
			Published:   true,
		},
		{
			Title:       "PostgreSQL for Backend Developers",
			Slug:        "postgresql-backend",
			Description: "Schema design, transactions, indexing and query tuning for application developers",
			Price:       60000, // ฿600
			Currency:    "THB",
			Published:   true,
		},
		{
			Title:       "Docker และ Deployment",
			Slug:        "docker-deployment",
			Description: "Containerize, ship and run backend services in production",
			Price:       45000, // ฿450
			Currency:    "THB",
			Published:   true,
		},
		{
			Title:       "Advanced Concurrency Patterns",
			Slug:        "advanced-concurrency",
			Description: "Goroutines, channels, pipelines and the patterns that hold up under load",
			Price:       80000, // ฿800
			Currency:    "THB",
			Published:   false, // still in production
		},
	}

	if err := s.db.Create(&courses).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d courses\n", len(courses))
	return nil
}

// SeedBundles creates the starter bundles from seeded courses
func (s *Seeder) SeedBundles() error {
	var count int64
	if err := s.db.Model(&model.Bundle{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Bundles already exist, skipping...")
		return nil
	}

	var courses []model.Course
	if err := s.db.Where("published = ?", true).Order("id").Find(&courses).Error; err != nil {
		return err
	}

	if len(courses) < 3 {
		return fmt.Errorf("not enough courses found, seed courses first")
	}

	// Backend path: Go + Fiber + PostgreSQL, priced below the course sum
	bundle := model.Bundle{
		Title:       "Backend Developer Path",
		Slug:        "backend-developer-path",
		Description: "The complete backend track: language, API framework and database",
		Price:       120000, // ฿1200 vs ฿1800 separately
		Currency:    "THB",
		Published:   true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&bundle).Error; err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			link := model.BundleCourse{
				BundleID: bundle.ID,
				CourseID: courses[i].ID,
				Position: i,
			}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Println("✅ Created 1 bundle")
	return nil
}

// SeedCoupons creates the starter coupons
func (s *Seeder) SeedCoupons() error {
	var count int64
	if err := s.db.Model(&model.Coupon{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Coupons already exist, skipping...")
		return nil
	}

	hundred := 100
	until := time.Now().AddDate(0, 3, 0)

	coupons := []model.Coupon{
		{
			Code:           "WELCOME10",
			DiscountKind:   model.CouponDiscountPercent,
			DiscountValue:  10,
			MaxRedemptions: &hundred,
			ValidUntil:     &until,
		},
		{
			Code:          "LAUNCH100",
			DiscountKind:  model.CouponDiscountFixed,
			DiscountValue: 10000, // ฿100 off
			ValidUntil:    &until,
		},
	}

	if err := s.db.Create(&coupons).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d coupons\n", len(coupons))
	return nil
}

// RunSeeds is the entry point used by cmd/seed
func RunSeeds(db *gorm.DB) error {
	seeder := NewSeeder(db)
	return seeder.SeedAll()
}
