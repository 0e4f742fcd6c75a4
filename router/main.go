package router

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ohmiler/milerdev-sub000/config"
	"github.com/ohmiler/milerdev-sub000/database"
	"github.com/ohmiler/milerdev-sub000/handlers"
	auth_handlers "github.com/ohmiler/milerdev-sub000/handlers/auth"
	bundle_handlers "github.com/ohmiler/milerdev-sub000/handlers/bundle"
	checkout_handlers "github.com/ohmiler/milerdev-sub000/handlers/checkout"
	coupon_handlers "github.com/ohmiler/milerdev-sub000/handlers/coupon"
	course_handlers "github.com/ohmiler/milerdev-sub000/handlers/course"
	enrollment_handlers "github.com/ohmiler/milerdev-sub000/handlers/enrollment"
	notification_handlers "github.com/ohmiler/milerdev-sub000/handlers/notification"
	payment_handlers "github.com/ohmiler/milerdev-sub000/handlers/payment"
	reconciliation_handlers "github.com/ohmiler/milerdev-sub000/handlers/reconciliation"
	"github.com/ohmiler/milerdev-sub000/services"
	"github.com/ohmiler/milerdev-sub000/services/gateway"
	"github.com/ohmiler/milerdev-sub000/services/slipverify"
	"github.com/ohmiler/milerdev-sub000/services/storage"
	"github.com/ohmiler/milerdev-sub000/utils/auth"
	"github.com/ohmiler/milerdev-sub000/utils/cache"
	"github.com/ohmiler/milerdev-sub000/utils/middleware"
	"gorm.io/gorm"
)

// Services bundles the wired service graph so the cron manager and the
// routes share the same instances.
type Services struct {
	Catalog        *services.CatalogService
	Coupons        *services.CouponService
	Pricing        *services.PricingService
	Enrollments    *services.EnrollmentService
	Notifications  *services.NotificationService
	Payments       *services.PaymentService
	Reconciliation *services.ReconciliationService
}

// BuildServices wires the service layer from configuration
func BuildServices(db *gorm.DB, getEnv *config.EnviornmentVariable) (*Services, error) {
	// Redis-backed catalog cache; checkout still works without it
	redisURL := getEnv.REDIS_URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Catalog caching will be disabled.", err)
		redisCache = nil
	}

	slipStore, err := storage.NewSlipStore(storage.Config{
		AccessKey: getEnv.DO_SPACES_KEY,
		SecretKey: getEnv.DO_SPACES_SECRET,
		Bucket:    getEnv.DO_SPACES_BUCKET,
		Region:    getEnv.DO_SPACES_REGION,
		Endpoint:  getEnv.DO_SPACES_ENDPOINT,
	})
	if err != nil {
		return nil, err
	}

	verifier := slipverify.NewClient(slipverify.Config{
		BaseURL: getEnv.SLIP_VERIFIER_URL,
		APIKey:  getEnv.SLIP_VERIFIER_KEY,
	})

	checkoutGateway := gateway.NewAdapter(gateway.Config{
		ServerKey:     getEnv.MIDTRANS_SERVER_KEY,
		UseProduction: getEnv.MIDTRANS_PRODUCTION,
	})

	notifications := services.NewNotificationService(db)
	catalog := services.NewCatalogService(db, redisCache)
	coupons := services.NewCouponService(db)
	pricing := services.NewPricingService(catalog, coupons)
	enrollments := services.NewEnrollmentService(db, catalog, notifications)
	payments := services.NewPaymentService(db, pricing, coupons, enrollments, notifications, verifier, slipStore, checkoutGateway)
	reconciliation := services.NewReconciliationService(db, payments)

	return &Services{
		Catalog:        catalog,
		Coupons:        coupons,
		Pricing:        pricing,
		Enrollments:    enrollments,
		Notifications:  notifications,
		Payments:       payments,
		Reconciliation: reconciliation,
	}, nil
}

func SetupRoutes(app *fiber.App, store database.Storage, svcs *Services, getEnv *config.EnviornmentVariable) {
	// Get JWT secret from environment
	jwtSecret := getEnv.JWT_SECRET
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := getEnv.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "milerdev-courses-api"
	}

	// Initialize JWT manager with config
	jwtConfig := auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager)
	courseHandler := course_handlers.NewCourseHandler(db, svcs.Catalog)
	bundleHandler := bundle_handlers.NewBundleHandler(db, svcs.Catalog)
	couponHandler := coupon_handlers.NewCouponHandler(db)
	checkoutHandler := checkout_handlers.NewCheckoutHandler(svcs.Payments, svcs.Pricing)
	webhookHandler := payment_handlers.NewWebhookHandler(svcs.Payments)
	enrollmentHandler := enrollment_handlers.NewEnrollmentHandler(svcs.Enrollments)
	notificationHandler := notification_handlers.NewNotificationHandler(svcs.Notifications)
	staleWindow := time.Duration(getEnv.STALE_PAYMENT_HOURS) * time.Hour
	reconciliationHandler := reconciliation_handlers.NewReconciliationHandler(svcs.Reconciliation, staleWindow)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", healthHandler.Check)

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Get("/me", authMiddleware.Required(), authHandler.Me)

	// Catalog routes
	courses := api.Group("/courses")
	courses.Get("/", courseHandler.ListCourses)  // Public: List published courses
	courses.Get("/:id", courseHandler.GetCourse) // Public: Get course by ID

	bundles := api.Group("/bundles")
	bundles.Get("/", bundleHandler.ListBundles)  // Public: List published bundles
	bundles.Get("/:id", bundleHandler.GetBundle) // Public: Get bundle by ID

	// Checkout & payment routes (protected)
	api.Post("/checkout/quote", checkoutHandler.Quote)
	api.Post("/checkout", authMiddleware.Required(), checkoutHandler.Create)

	payments := api.Group("/payments")
	payments.Post("/webhook/gateway", webhookHandler.HandleGatewayNotification) // Public: gateway callbacks (signature-checked)
	payments.Get("/my", authMiddleware.Required(), checkoutHandler.ListMine)
	payments.Get("/:id", authMiddleware.Required(), checkoutHandler.Get)
	payments.Post("/:id/slip", authMiddleware.Required(), checkoutHandler.UploadSlip)

	// Enrollment routes (protected)
	api.Get("/enrollments/my", authMiddleware.Required(), enrollmentHandler.ListMine)

	// Notification routes (protected)
	notifications := api.Group("/notifications", authMiddleware.Required())
	notifications.Get("/", notificationHandler.List)
	notifications.Post("/:id/read", notificationHandler.MarkRead)

	// Admin routes
	admin := api.Group("/admin", authMiddleware.RequireAdmin())

	// Admin catalog management
	admin.Post("/courses", courseHandler.CreateCourse)
	admin.Put("/courses/:id", courseHandler.UpdateCourse)
	admin.Delete("/courses/:id", courseHandler.DeleteCourse)

	admin.Post("/bundles", bundleHandler.CreateBundle)
	admin.Put("/bundles/:id", bundleHandler.UpdateBundle)
	admin.Delete("/bundles/:id", bundleHandler.DeleteBundle)

	admin.Get("/coupons", couponHandler.ListCoupons)
	admin.Get("/coupons/:id", couponHandler.GetCoupon)
	admin.Post("/coupons", couponHandler.CreateCoupon)
	admin.Put("/coupons/:id", couponHandler.UpdateCoupon)
	admin.Delete("/coupons/:id", couponHandler.DeleteCoupon)

	// Admin reconciliation
	reconciliation := admin.Group("/reconciliation")
	reconciliation.Get("/", reconciliationHandler.List)
	reconciliation.Get("/summary", reconciliationHandler.Summary)
	reconciliation.Get("/export", reconciliationHandler.Export)
	reconciliation.Post("/bulk-fail", reconciliationHandler.BulkFail)
	reconciliation.Post("/expire-stale", reconciliationHandler.ExpireStale)
	reconciliation.Post("/:id/approve", reconciliationHandler.Approve)
	reconciliation.Post("/:id/reject", reconciliationHandler.Reject)
	reconciliation.Post("/:id/refund", reconciliationHandler.Refund)
}
