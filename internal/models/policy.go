package models

import "github.com/shopspring/decimal"

// DayType classifies where a travel day was spent, for allowance lookup
type DayType string

const (
	DayTypeFood    DayType = "FOOD" // food-only allowance, no stay
	DayTypeTown    DayType = "TOWN"
	DayTypeCapital DayType = "CAPITAL"
	DayTypeMetro   DayType = "METRO"
)

// Vehicle type constants
const (
	VehicleCar        = "CAR"
	VehicleTwoWheeler = "TWO_WHEELER"
)

// RateEntry is the per-grade reimbursement rate configuration, supplied
// by the rate-table collaborator and treated as read-only here.
type RateEntry struct {
	GradeKey       string          `json:"grade_key"`
	PerKmRate      decimal.Decimal `json:"per_km_rate"`
	DailyAllowance decimal.Decimal `json:"daily_allowance"`
}

// GradePolicy is the richer per-grade policy record: vehicle/fuel
// configuration, per-day-type allowances and ceilings. A zero allowance
// value means "pay the actual receipted amount", not "pay nothing".
type GradePolicy struct {
	GradeKey        string                      `json:"grade_key"`
	VehicleType     string                      `json:"vehicle_type"`
	KmPerLitre      float64                     `json:"km_per_litre"`
	Allowances      map[DayType]decimal.Decimal `json:"allowances"`
	HotelCeiling    decimal.Decimal             `json:"hotel_ceiling"`
	TravelCeiling   decimal.Decimal             `json:"travel_ceiling"`
	ReceiptRequired bool                        `json:"receipt_required"`
}

// Employee is the directory record this core consumes: grade for rate
// lookup plus the configured approval chain.
type Employee struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	GradeKey string       `json:"grade_key"`
	Active   bool         `json:"active"`
	Chain    []ChainLevel `json:"chain,omitempty"`
}
