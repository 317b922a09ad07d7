// Package expense computes reimbursement amounts from finalized trip
// distance and grade policy. Every function here is pure: nothing is
// persisted and no collaborator is called.
package expense

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fieldtrack/trip-reimbursement/internal/models"
)

// ErrNoKmPerLitre is returned when a fuel entitlement is requested for a
// grade whose policy carries no fuel efficiency figure.
var ErrNoKmPerLitre = errors.New("grade policy has no km-per-litre figure")

// Result is the outcome of an expense calculation
type Result struct {
	Amount decimal.Decimal `json:"amount"`
	// UsedDefaultRate is set when the rate lookup fell back to the
	// default entry. The calculation never blocks on an unmatched grade;
	// callers wanting strict validation check this flag.
	UsedDefaultRate bool `json:"used_default_rate"`
}

// Calculate applies the base reimbursement formula:
//
//	amount = distance_km * per_km_rate [+ daily_allowance]
//
// rounded to 2 decimal places.
func Calculate(distanceKm float64, rate models.RateEntry, includeDailyAllowance bool, usedDefaultRate bool) Result {
	amount := decimal.NewFromFloat(distanceKm).Mul(rate.PerKmRate)
	if includeDailyAllowance {
		amount = amount.Add(rate.DailyAllowance)
	}
	return Result{
		Amount:          amount.Round(2),
		UsedDefaultRate: usedDefaultRate,
	}
}

// Allowance is a policy allowance lookup result. ActualReceipted marks a
// zero policy value, which means "pay the actual receipted amount" and
// must not be read as "pay nothing".
type Allowance struct {
	Amount          decimal.Decimal `json:"amount"`
	ActualReceipted bool            `json:"actual_receipted"`
}

// AllowanceFor resolves the daily allowance for a grade policy, day type
// and day count. The day count multiplies the per-day value; a claim
// covering a single day passes days = 1.
func AllowanceFor(policy models.GradePolicy, dayType models.DayType, days int) (Allowance, error) {
	perDay, ok := policy.Allowances[dayType]
	if !ok {
		return Allowance{}, fmt.Errorf("grade %s has no allowance for day type %s", policy.GradeKey, dayType)
	}
	if days < 1 {
		days = 1
	}
	if perDay.IsZero() {
		return Allowance{ActualReceipted: true}, nil
	}
	return Allowance{
		Amount: perDay.Mul(decimal.NewFromInt(int64(days))).Round(2),
	}, nil
}

// FuelEntitlement converts distance into deemed fuel consumption using
// the grade's vehicle efficiency (e.g. 7 km/l for a car, 25 km/l for a
// two-wheeler).
func FuelEntitlement(distanceKm float64, policy models.GradePolicy) (liters float64, err error) {
	if policy.KmPerLitre <= 0 {
		return 0, fmt.Errorf("grade %s: %w", policy.GradeKey, ErrNoKmPerLitre)
	}
	return distanceKm / policy.KmPerLitre, nil
}

// EstimatedFuelCost prices a fuel entitlement at the configured assumed
// price per litre, rounded to 2 places.
func EstimatedFuelCost(liters float64, pricePerLitre decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(liters).Mul(pricePerLitre).Round(2)
}

// ReceiptRequired reports whether a claim of the given type must carry a
// supporting receipt under the grade's policy. Fuel claims are exempt
// regardless of the policy flag.
func ReceiptRequired(policy models.GradePolicy, claimType string) bool {
	if claimType == models.ClaimTypeFuel {
		return false
	}
	return policy.ReceiptRequired
}
