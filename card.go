package tap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CardDetails are the card-present fields presented at fulfill time. They
// are passed through to the processor and never persisted.
type CardDetails struct {
	Number         string
	ExpiryDate     string
	CVV            string
	CardholderName string
}

// CardPayment is a processor's confirmation of a card charge.
type CardPayment struct {
	TransactionID     string
	ProviderReference string
	CardBrand         string
	LastFour          string
}

// CardProcessor charges a card for the quoted amount. Implementations talk
// to a real processor; MockProcessor stands in for one so the settlement
// state machine can be exercised without an integration.
type CardProcessor interface {
	ProcessCard(ctx context.Context, card CardDetails, amount float64) (*CardPayment, error)
}

// MockProcessor validates the card fields and fabricates a successful
// charge. Validation failures are the same client errors a real processor
// would return.
type MockProcessor struct {
	// Now is the clock used for expiry checks; time.Now when nil.
	Now func() time.Time
}

// ProcessCard implements CardProcessor.
func (p MockProcessor) ProcessCard(_ context.Context, card CardDetails, _ float64) (*CardPayment, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	number := digitsOnly(card.Number)
	if len(number) < 13 || len(number) > 19 || !luhnValid(number) {
		return nil, NewInvalidRequestError("Invalid card number", withCode(InvalidCard))
	}
	if !validExpiry(card.ExpiryDate, now()) {
		return nil, NewInvalidRequestError("Invalid or expired card", withCode(InvalidCard))
	}
	if len(card.CVV) < 3 || len(card.CVV) > 4 {
		return nil, NewInvalidRequestError("Invalid CVV", withCode(InvalidCard))
	}
	return &CardPayment{
		TransactionID:     "txn_" + hexID(12),
		ProviderReference: "ref_" + hexID(8),
		CardBrand:         detectCardBrand(number),
		LastFour:          number[len(number)-4:],
	}, nil
}

func withCode(code ErrorCode) errorOption {
	return func(er *Error) {
		er.Code = code
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// luhnValid runs the Luhn checksum over a digits-only card number.
func luhnValid(number string) bool {
	if number == "" {
		return false
	}
	var sum int
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

// validExpiry accepts MM/YY or MM/YYYY and rejects cards expired before now.
func validExpiry(expiry string, now time.Time) bool {
	monthPart, yearPart, ok := strings.Cut(expiry, "/")
	if !ok {
		return false
	}
	month, err := strconv.Atoi(monthPart)
	if err != nil || month < 1 || month > 12 {
		return false
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return false
	}
	if year < 100 {
		year += 2000
	}
	if year < now.Year() {
		return false
	}
	if year == now.Year() && month < int(now.Month()) {
		return false
	}
	return true
}

func detectCardBrand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "Visa"
	case strings.HasPrefix(number, "2"), hasAnyPrefix(number, "51", "52", "53", "54", "55"):
		return "Mastercard"
	case hasAnyPrefix(number, "34", "37"):
		return "American Express"
	case strings.HasPrefix(number, "6"):
		return "Discover"
	default:
		return "Unknown"
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// hexID returns n hex characters of a fresh UUID, the shape used for
// transaction and reference ids.
func hexID(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(id) {
		n = len(id)
	}
	return id[:n]
}

func upperHexID(n int) string {
	return strings.ToUpper(hexID(n))
}

// orderNumber generates a unique human-readable order number.
func orderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102150405"), upperHexID(6))
}

// trackingNumber generates a mock shipment tracking number.
func trackingNumber() string {
	return "TRK" + upperHexID(10)
}
