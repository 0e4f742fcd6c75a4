package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ohmiler/milerdev-sub000/model"
)

func TestDiscountAmount(t *testing.T) {
	tests := []struct {
		name  string
		kind  model.CouponDiscountKind
		value int64
		price int64
		want  int64
	}{
		{"percent exact", model.CouponDiscountPercent, 10, 50000, 5000},
		{"percent rounds half up", model.CouponDiscountPercent, 15, 333, 50},      // 49.95 -> 50
		{"percent rounds down below half", model.CouponDiscountPercent, 10, 4, 0}, // 0.4 -> 0
		{"percent full", model.CouponDiscountPercent, 100, 70000, 70000},
		{"fixed", model.CouponDiscountFixed, 10000, 50000, 10000},
		{"fixed larger than price", model.CouponDiscountFixed, 60000, 50000, 60000}, // clamped by caller
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupon := &model.Coupon{DiscountKind: tt.kind, DiscountValue: tt.value}
			if got := discountAmount(coupon, tt.price); got != tt.want {
				t.Errorf("discountAmount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveCourseWithPercentCoupon(t *testing.T) {
	db, mock := newTestDB(t)
	pricing := NewPricingService(NewCatalogService(db, nil), NewCouponService(db))

	courseRows := sqlmock.NewRows([]string{"id", "title", "slug", "price", "currency", "published"}).
		AddRow(1, "Go Fundamentals", "go-fundamentals", 50000, "THB", true)
	mock.ExpectQuery(`SELECT \* FROM "courses"`).WillReturnRows(courseRows)

	couponRows := sqlmock.NewRows([]string{"id", "code", "discount_kind", "discount_value", "redeemed_count"}).
		AddRow(7, "WELCOME10", "percent", 10, 0)
	mock.ExpectQuery(`SELECT \* FROM "coupons"`).WillReturnRows(couponRows)

	quote, err := pricing.Resolve(context.Background(), ItemRef{Kind: ItemKindCourse, ID: 1}, "welcome10")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if quote.OriginalPrice != 50000 {
		t.Errorf("OriginalPrice = %d, want 50000", quote.OriginalPrice)
	}
	if quote.DiscountAmount != 5000 {
		t.Errorf("DiscountAmount = %d, want 5000", quote.DiscountAmount)
	}
	if quote.FinalPrice != 45000 {
		t.Errorf("FinalPrice = %d, want 45000", quote.FinalPrice)
	}
	if quote.CouponID == nil || *quote.CouponID != 7 {
		t.Errorf("CouponID = %v, want 7", quote.CouponID)
	}
}

func TestResolveClampsNegativeToZero(t *testing.T) {
	db, mock := newTestDB(t)
	pricing := NewPricingService(NewCatalogService(db, nil), NewCouponService(db))

	courseRows := sqlmock.NewRows([]string{"id", "title", "slug", "price", "currency", "published"}).
		AddRow(1, "Go Fundamentals", "go-fundamentals", 50000, "THB", true)
	mock.ExpectQuery(`SELECT \* FROM "courses"`).WillReturnRows(courseRows)

	couponRows := sqlmock.NewRows([]string{"id", "code", "discount_kind", "discount_value", "redeemed_count"}).
		AddRow(8, "BIGOFF", "fixed", 60000, 0)
	mock.ExpectQuery(`SELECT \* FROM "coupons"`).WillReturnRows(couponRows)

	quote, err := pricing.Resolve(context.Background(), ItemRef{Kind: ItemKindCourse, ID: 1}, "BIGOFF")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if quote.FinalPrice != 0 {
		t.Errorf("FinalPrice = %d, want 0", quote.FinalPrice)
	}
	if quote.DiscountAmount != 50000 {
		t.Errorf("DiscountAmount = %d, want 50000 (clamped to price)", quote.DiscountAmount)
	}
}

func TestResolveBundleReportsSavings(t *testing.T) {
	db, mock := newTestDB(t)
	pricing := NewPricingService(NewCatalogService(db, nil), NewCouponService(db))

	bundleRows := sqlmock.NewRows([]string{"id", "title", "slug", "price", "currency", "published"}).
		AddRow(3, "Backend Developer Path", "backend-developer-path", 90000, "THB", true)
	mock.ExpectQuery(`SELECT \* FROM "bundles"`).WillReturnRows(bundleRows)

	linkRows := sqlmock.NewRows([]string{"bundle_id", "course_id", "position"}).
		AddRow(3, 1, 0).
		AddRow(3, 2, 1)
	mock.ExpectQuery(`SELECT \* FROM "bundle_courses"`).WillReturnRows(linkRows)

	sumRows := sqlmock.NewRows([]string{"coalesce"}).AddRow(120000)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(price\), 0\) FROM "courses"`).WillReturnRows(sumRows)

	quote, err := pricing.Resolve(context.Background(), ItemRef{Kind: ItemKindBundle, ID: 3}, "")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if quote.OriginalPrice != 120000 {
		t.Errorf("OriginalPrice = %d, want 120000 (sum of course prices)", quote.OriginalPrice)
	}
	if quote.DiscountAmount != 30000 {
		t.Errorf("DiscountAmount = %d, want 30000", quote.DiscountAmount)
	}
	if quote.FinalPrice != 90000 {
		t.Errorf("FinalPrice = %d, want the bundle's own price 90000", quote.FinalPrice)
	}
}

func TestResolveUnknownCourse(t *testing.T) {
	db, mock := newTestDB(t)
	pricing := NewPricingService(NewCatalogService(db, nil), NewCouponService(db))

	mock.ExpectQuery(`SELECT \* FROM "courses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := pricing.Resolve(context.Background(), ItemRef{Kind: ItemKindCourse, ID: 99}, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve() error = %v, want ErrNotFound", err)
	}
}
