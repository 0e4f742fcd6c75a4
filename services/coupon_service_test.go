package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ohmiler/milerdev-sub000/model"
)

func TestCouponValidate(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)
	three := 3
	courseID := uint(1)

	course := &ResolvedItem{Kind: ItemKindCourse, ID: 1}
	otherCourse := &ResolvedItem{Kind: ItemKindCourse, ID: 2}
	bundle := &ResolvedItem{Kind: ItemKindBundle, ID: 1}

	tests := []struct {
		name    string
		coupon  model.Coupon
		item    *ResolvedItem
		wantErr error
	}{
		{"valid unrestricted", model.Coupon{}, course, nil},
		{"valid within window", model.Coupon{ValidFrom: &past, ValidUntil: &future}, course, nil},
		{"not yet valid", model.Coupon{ValidFrom: &future}, course, ErrCouponInvalid},
		{"expired", model.Coupon{ValidUntil: &past}, course, ErrCouponInvalid},
		{"exhausted", model.Coupon{MaxRedemptions: &three, RedeemedCount: 3}, course, ErrCouponInvalid},
		{"slots remaining", model.Coupon{MaxRedemptions: &three, RedeemedCount: 2}, course, nil},
		{"restricted matching course", model.Coupon{CourseID: &courseID}, course, nil},
		{"restricted other course", model.Coupon{CourseID: &courseID}, otherCourse, ErrCouponNotApplicable},
		{"restricted against bundle", model.Coupon{CourseID: &courseID}, bundle, ErrCouponNotApplicable},
	}

	svc := &CouponService{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Validate(&tt.coupon, tt.item, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCouponLookupNormalizesCode(t *testing.T) {
	db, mock := newTestDB(t)
	svc := NewCouponService(db)

	rows := sqlmock.NewRows([]string{"id", "code", "discount_kind", "discount_value"}).
		AddRow(7, "WELCOME10", "percent", 10)
	mock.ExpectQuery(`SELECT \* FROM "coupons"`).
		WithArgs("WELCOME10", 1).
		WillReturnRows(rows)

	coupon, err := svc.Lookup(context.Background(), "  welcome10 ")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if coupon.Code != "WELCOME10" {
		t.Errorf("Code = %q, want WELCOME10", coupon.Code)
	}
}

func TestCouponLookupUnknownCode(t *testing.T) {
	db, mock := newTestDB(t)
	svc := NewCouponService(db)

	mock.ExpectQuery(`SELECT \* FROM "coupons"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Lookup(context.Background(), "NOPE")
	if !errors.Is(err, ErrCouponInvalid) {
		t.Errorf("Lookup() error = %v, want ErrCouponInvalid", err)
	}
}

func TestCouponLookupEmptyCode(t *testing.T) {
	svc := &CouponService{}
	if _, err := svc.Lookup(context.Background(), "   "); !errors.Is(err, ErrCouponInvalid) {
		t.Errorf("Lookup() error = %v, want ErrCouponInvalid", err)
	}
}

func TestCouponRedeem(t *testing.T) {
	db, mock := newTestDB(t)
	svc := NewCouponService(db)

	mock.ExpectExec(`UPDATE "coupons" SET "redeemed_count"=redeemed_count \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.Redeem(context.Background(), db, 7); err != nil {
		t.Fatalf("Redeem() error: %v", err)
	}
}

func TestCouponRedeemExhausted(t *testing.T) {
	db, mock := newTestDB(t)
	svc := NewCouponService(db)

	// The guarded update matches zero rows when the cap is reached
	mock.ExpectExec(`UPDATE "coupons" SET "redeemed_count"=redeemed_count \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.Redeem(context.Background(), db, 7)
	if !errors.Is(err, ErrCouponInvalid) {
		t.Errorf("Redeem() error = %v, want ErrCouponInvalid", err)
	}
}
