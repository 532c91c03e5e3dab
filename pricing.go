package tap

import (
	"math"
	"strings"
)

// Pricing tables. Shipping is a flat domestic fee waived above a subtotal
// threshold, with a flat international fee otherwise; tax applies only in
// the merchant's home jurisdiction.
const (
	domesticShippingFee      = 9.99
	freeShippingThreshold    = 50.00
	internationalShippingFee = 19.99
	domesticTaxRate          = 0.08

	// The single-call delegated checkout quotes standard shipping and
	// the combined state+local rate instead of the finalize tables.
	delegatedShippingFee = 15.00
	delegatedTaxRate     = 0.0875
)

const homeCountry = "US"

// Coupon codes accepted at finalize.
const (
	couponSave10   = "SAVE10"   // 10% of subtotal off
	couponFreeShip = "FREESHIP" // waives shipping
)

// Subtotal sums the extended line prices of a cart.
func Subtotal(items []CartItem) float64 {
	var subtotal float64
	for _, item := range items {
		subtotal += float64(item.Quantity) * item.UnitPrice
	}
	return round2(subtotal)
}

// PriceCart computes the finalize-time quote for a cart heading to country,
// applying the coupon when one is given. Total is clamped non-negative.
func PriceCart(items []CartItem, country, couponCode, currency string) Quote {
	subtotal := Subtotal(items)

	var shipping float64
	domestic := strings.EqualFold(country, homeCountry)
	if domestic {
		if subtotal < freeShippingThreshold {
			shipping = domesticShippingFee
		}
	} else {
		shipping = internationalShippingFee
	}

	var tax float64
	if domestic {
		tax = round2(subtotal * domesticTaxRate)
	}

	var discount float64
	switch strings.ToUpper(couponCode) {
	case couponSave10:
		discount = round2(subtotal * 0.10)
	case couponFreeShip:
		shipping = 0
	}

	total := round2(subtotal + shipping + tax - discount)
	if total < 0 {
		total = 0
	}
	return Quote{
		Subtotal: subtotal,
		Shipping: round2(shipping),
		Tax:      tax,
		Discount: discount,
		Total:    total,
		Currency: currency,
	}
}

// PriceDelegatedCart computes the quote used by the single-call x402
// checkout path. No coupons apply.
func PriceDelegatedCart(items []CartItem, currency string) Quote {
	subtotal := Subtotal(items)
	tax := round2(subtotal * delegatedTaxRate)
	return Quote{
		Subtotal: subtotal,
		Shipping: delegatedShippingFee,
		Tax:      tax,
		Total:    round2(subtotal + delegatedShippingFee + tax),
		Currency: currency,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
