package services

import (
	"context"
	"time"

	"github.com/ohmiler/milerdev-sub000/model"
)

// Quote is the result of resolving the payable price for one item, with an
// optional coupon applied. FinalPrice is what the payment row will carry;
// it is never recomputed after the payment is created.
type Quote struct {
	Item           *ResolvedItem `json:"item"`
	OriginalPrice  int64         `json:"original_price"`
	DiscountAmount int64         `json:"discount_amount"`
	FinalPrice     int64         `json:"final_price"`
	Currency       string        `json:"currency"`
	CouponID       *uint         `json:"coupon_id,omitempty"`
}

// PricingService computes the final payable amount for a purchase. It is
// strictly read-only: coupon redemption is committed later, together with
// the payment row, so an abandoned checkout never burns a redemption slot.
type PricingService struct {
	catalog *CatalogService
	coupons *CouponService
}

// NewPricingService creates a new pricing service
func NewPricingService(catalog *CatalogService, coupons *CouponService) *PricingService {
	return &PricingService{catalog: catalog, coupons: coupons}
}

// Resolve computes the quote for the given item and optional coupon code.
func (s *PricingService) Resolve(ctx context.Context, ref ItemRef, couponCode string) (*Quote, error) {
	item, err := s.catalog.ResolveItem(ctx, ref)
	if err != nil {
		return nil, err
	}

	quote := &Quote{
		Item:          item,
		OriginalPrice: item.Price,
		FinalPrice:    item.Price,
		Currency:      item.Currency,
	}

	if couponCode != "" {
		coupon, err := s.coupons.Lookup(ctx, couponCode)
		if err != nil {
			return nil, err
		}
		if err := s.coupons.Validate(coupon, item, time.Now()); err != nil {
			return nil, err
		}

		discount := discountAmount(coupon, item.Price)
		quote.DiscountAmount = discount
		quote.FinalPrice = item.Price - discount
		if quote.FinalPrice < 0 {
			quote.DiscountAmount = item.Price
			quote.FinalPrice = 0
		}
		quote.CouponID = &coupon.ID

		return quote, nil
	}

	// Without a coupon, a bundle still reports the savings over buying
	// the contained courses one by one, so the checkout page can show
	// "you save X". The payable amount stays the bundle's own price.
	if item.Kind == ItemKindBundle {
		sum, err := s.catalog.SumCoursePrices(ctx, item.CourseIDs)
		if err != nil {
			return nil, err
		}
		if sum > item.Price {
			quote.OriginalPrice = sum
			quote.DiscountAmount = sum - item.Price
		}
	}

	return quote, nil
}

// discountAmount computes the coupon discount in minor units. Percent
// discounts round half-up at the currency's minor unit.
func discountAmount(coupon *model.Coupon, price int64) int64 {
	switch coupon.DiscountKind {
	case model.CouponDiscountPercent:
		return (price*coupon.DiscountValue + 50) / 100
	case model.CouponDiscountFixed:
		return coupon.DiscountValue
	default:
		return 0
	}
}
