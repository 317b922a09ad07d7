package utils

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

var maxClaimAmount = decimal.NewFromInt(1000000)

// ValidateCoordinates validates a latitude/longitude pair in decimal
// degrees.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude out of range: %f", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude out of range: %f", lon)
	}
	return nil
}

// ValidateAmount validates a claim amount
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %s", amount)
	}
	if amount.GreaterThan(maxClaimAmount) {
		return fmt.Errorf("amount exceeds maximum limit: %s", amount)
	}
	return nil
}

// SanitizeString removes control characters from user-supplied text
// (descriptions, remarks, dealer names).
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
