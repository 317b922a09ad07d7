package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trip session status constants
const (
	TripStatusActive    = "ACTIVE"
	TripStatusCompleted = "COMPLETED"
)

// TripSession represents one employee's field trip from start to completion.
// At most one ACTIVE session may exist per employee; once COMPLETED the
// session and its samples are read-only.
type TripSession struct {
	ID           string           `json:"id"`
	EmployeeID   string           `json:"employee_id"`
	Status       string           `json:"status"` // ACTIVE, COMPLETED
	StartTime    time.Time        `json:"start_time"`
	StartPoint   GeoPoint         `json:"start_point"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	EndPoint     *GeoPoint        `json:"end_point,omitempty"`
	DistanceKm   float64          `json:"distance_km"`
	TotalExpense *decimal.Decimal `json:"total_expense,omitempty"` // set once at completion
	Samples      []LocationSample `json:"samples,omitempty"`
	Visits       []DealerVisit    `json:"visits,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// DealerVisit is a geolocated check-in recorded during an active trip.
// It never contributes to distance.
type DealerVisit struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Point      GeoPoint  `json:"point"`
	Timestamp  time.Time `json:"timestamp"`
	DealerName string    `json:"dealer_name,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
