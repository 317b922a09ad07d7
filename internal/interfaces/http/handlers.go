package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/approval"
	"github.com/fieldtrack/trip-reimbursement/internal/directory"
	"github.com/fieldtrack/trip-reimbursement/internal/expense"
	"github.com/fieldtrack/trip-reimbursement/internal/models"
	"github.com/fieldtrack/trip-reimbursement/internal/report"
	"github.com/fieldtrack/trip-reimbursement/internal/trip"
	"github.com/fieldtrack/trip-reimbursement/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	trips      *trip.Service
	claims     *approval.Engine
	statements *report.StatementExporter
	rates      directory.RateSource
	fuelPrice  decimal.Decimal
	logger     *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	trips *trip.Service,
	claims *approval.Engine,
	statements *report.StatementExporter,
	rates directory.RateSource,
	fuelPrice decimal.Decimal,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		trips:      trips,
		claims:     claims,
		statements: statements,
		rates:      rates,
		fuelPrice:  fuelPrice,
		logger:     logger,
	}
}

// Response is the standard JSON envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}

// respondErr maps domain errors onto HTTP status codes. Conflicts (race
// losers, already-active sessions) are 409; authorization failures 403;
// validation failures 400; unknown identifiers 404.
func (h *Handlers) respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trip.ErrAlreadyActive),
		errors.Is(err, approval.ErrClaimConflict):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, trip.ErrSessionNotActive):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, trip.ErrSessionNotFound),
		errors.Is(err, approval.ErrClaimNotFound),
		errors.Is(err, directory.ErrEmployeeNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, approval.ErrUnauthorized):
		fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, approval.ErrRemarksRequired),
		errors.Is(err, approval.ErrInvalidChain):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Unhandled request error", zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// StartTripRequest is the POST /api/trips payload. Coordinate fields
// carry no "required" binding: zero is a valid latitude and longitude,
// and range checking belongs to ValidateCoordinates.
type StartTripRequest struct {
	EmployeeID string  `json:"employee_id" binding:"required"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// StartTrip handles POST /api/trips
func (h *Handlers) StartTrip(c *gin.Context) {
	var req StartTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.trips.StartTrip(req.EmployeeID, models.GeoPoint{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: session})
}

// AddSampleRequest is the POST /api/trips/:id/samples payload
type AddSampleRequest struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
	AccuracyM float64    `json:"accuracy_m"`
	SpeedMPS  *float64   `json:"speed_mps"`
	Quality   string     `json:"quality"`
}

// AddSample handles POST /api/trips/:id/samples
func (h *Handlers) AddSample(c *gin.Context) {
	var req AddSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	sample := models.LocationSample{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timestamp: ts,
		AccuracyM: req.AccuracyM,
		SpeedMPS:  req.SpeedMPS,
		Quality:   models.SampleQuality(req.Quality),
	}

	result, err := h.trips.AddSample(c.Param("id"), sample)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// AddVisitRequest is the POST /api/trips/:id/visits payload
type AddVisitRequest struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Timestamp  *time.Time `json:"timestamp"`
	DealerName string     `json:"dealer_name"`
	Notes      string     `json:"notes"`
}

// AddVisit handles POST /api/trips/:id/visits
func (h *Handlers) AddVisit(c *gin.Context) {
	var req AddVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	visit, err := h.trips.AddDealerVisit(c.Param("id"),
		models.GeoPoint{Latitude: req.Latitude, Longitude: req.Longitude},
		ts,
		utils.SanitizeString(req.DealerName),
		utils.SanitizeString(req.Notes))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: visit})
}

// EndTripRequest is the POST /api/trips/:id/end payload
type EndTripRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EndTrip handles POST /api/trips/:id/end
func (h *Handlers) EndTrip(c *gin.Context) {
	var req EndTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.trips.EndTrip(c.Param("id"), models.GeoPoint{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: session})
}

// ActiveTrip handles GET /api/trips/active?employee_id=
func (h *Handlers) ActiveTrip(c *gin.Context) {
	employeeID := c.Query("employee_id")
	if employeeID == "" {
		fail(c, http.StatusBadRequest, "employee_id is required")
		return
	}

	session, err := h.trips.ActiveSession(employeeID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if session == nil {
		fail(c, http.StatusNotFound, "no active trip")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: session})
}

// TripDetail handles GET /api/trips/:id
func (h *Handlers) TripDetail(c *gin.Context) {
	session, err := h.trips.SessionDetail(c.Param("id"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: session})
}

func parseRange(c *gin.Context) (from, to time.Time, err error) {
	from, err = time.Parse(time.RFC3339, c.DefaultQuery("from", "1970-01-01T00:00:00Z"))
	if err != nil {
		return from, to, fmt.Errorf("invalid from: %w", err)
	}
	to, err = time.Parse(time.RFC3339, c.DefaultQuery("to", "9999-12-31T23:59:59Z"))
	if err != nil {
		return from, to, fmt.Errorf("invalid to: %w", err)
	}
	return from, to, nil
}

// ListCompletedTrips handles GET /api/trips?employee_id=&from=&to=
func (h *Handlers) ListCompletedTrips(c *gin.Context) {
	employeeID := c.Query("employee_id")
	if employeeID == "" {
		fail(c, http.StatusBadRequest, "employee_id is required")
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.trips.CompletedInRange(employeeID, from, to)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sessions})
}

// SubmitClaimRequest is the POST /api/claims payload. Amount is a
// decimal string so money never passes through a float on its way in.
type SubmitClaimRequest struct {
	EmployeeID  string `json:"employee_id" binding:"required"`
	ClaimType   string `json:"claim_type" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// SubmitClaim handles POST /api/claims
func (h *Handlers) SubmitClaim(c *gin.Context) {
	var req SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid amount")
		return
	}
	if err := utils.ValidateAmount(amount); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	claim, err := h.claims.Submit(req.EmployeeID, req.ClaimType, amount,
		utils.SanitizeString(req.Description))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: claim})
}

// ApprovalActionRequest is the approve/reject payload
type ApprovalActionRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
	Remarks string `json:"remarks"`
}

// ApproveClaim handles POST /api/claims/:id/approve
func (h *Handlers) ApproveClaim(c *gin.Context) {
	var req ApprovalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	claim, err := h.claims.Approve(c.Param("id"), req.ActorID, utils.SanitizeString(req.Remarks))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claim})
}

// RejectClaim handles POST /api/claims/:id/reject
func (h *Handlers) RejectClaim(c *gin.Context) {
	var req ApprovalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	claim, err := h.claims.Reject(c.Param("id"), req.ActorID, utils.SanitizeString(req.Remarks))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claim})
}

// ClaimDetailResponse bundles a claim with its approval history
type ClaimDetailResponse struct {
	Claim   *models.Claim           `json:"claim"`
	History []models.ApprovalAction `json:"history"`
}

// ClaimDetail handles GET /api/claims/:id
func (h *Handlers) ClaimDetail(c *gin.Context) {
	claim, history, err := h.claims.ClaimDetail(c.Param("id"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ClaimDetailResponse{
		Claim:   claim,
		History: history,
	}})
}

// PendingClaims handles GET /api/claims/pending?approver_id=
func (h *Handlers) PendingClaims(c *gin.Context) {
	approverID := c.Query("approver_id")
	if approverID == "" {
		fail(c, http.StatusBadRequest, "approver_id is required")
		return
	}

	claims, err := h.claims.PendingForApprover(approverID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claims})
}

// StalledClaims handles GET /api/claims/stalled
func (h *Handlers) StalledClaims(c *gin.Context) {
	claims, err := h.claims.StalledClaims()
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claims})
}

// ExpenseQuote is the GET /api/expense/quote response. Fuel figures are
// present only when the grade policy carries a km-per-litre value;
// allowance only when a day_type was requested and the policy covers it.
type ExpenseQuote struct {
	Amount          decimal.Decimal    `json:"amount"`
	UsedDefaultRate bool               `json:"used_default_rate"`
	Allowance       *expense.Allowance `json:"allowance,omitempty"`
	FuelLiters      *float64           `json:"fuel_liters,omitempty"`
	FuelCost        *decimal.Decimal   `json:"fuel_cost,omitempty"`
	ReceiptRequired *bool              `json:"receipt_required,omitempty"`
}

// QuoteExpense handles GET /api/expense/quote?grade_key=&distance_km=
// with optional day_type, days and claim_type. It prices a hypothetical
// trip without touching any session, for pre-trip estimates and claim
// entry screens.
func (h *Handlers) QuoteExpense(c *gin.Context) {
	gradeKey := c.Query("grade_key")
	if gradeKey == "" {
		fail(c, http.StatusBadRequest, "grade_key is required")
		return
	}
	distanceKm, err := strconv.ParseFloat(c.DefaultQuery("distance_km", "0"), 64)
	if err != nil || distanceKm < 0 {
		fail(c, http.StatusBadRequest, "invalid distance_km")
		return
	}

	rate, usedDefault, err := h.rates.RateFor(gradeKey)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	result := expense.Calculate(distanceKm, rate, true, usedDefault)
	quote := ExpenseQuote{
		Amount:          result.Amount,
		UsedDefaultRate: result.UsedDefaultRate,
	}

	policy, err := h.rates.PolicyFor(gradeKey)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if policy != nil {
		if dayType := c.Query("day_type"); dayType != "" {
			days, _ := strconv.Atoi(c.DefaultQuery("days", "1"))
			allowance, err := expense.AllowanceFor(*policy, models.DayType(dayType), days)
			if err != nil {
				fail(c, http.StatusBadRequest, err.Error())
				return
			}
			quote.Allowance = &allowance
		}
		if liters, err := expense.FuelEntitlement(distanceKm, *policy); err == nil {
			cost := expense.EstimatedFuelCost(liters, h.fuelPrice)
			quote.FuelLiters = &liters
			quote.FuelCost = &cost
		}
		if claimType := c.Query("claim_type"); claimType != "" {
			required := expense.ReceiptRequired(*policy, claimType)
			quote.ReceiptRequired = &required
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: quote})
}

// TripStatement handles GET /api/reports/trips?employee_id=&from=&to=
func (h *Handlers) TripStatement(c *gin.Context) {
	employeeID := c.Query("employee_id")
	if employeeID == "" {
		fail(c, http.StatusBadRequest, "employee_id is required")
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.statements.Export(employeeID, from, to)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	filename := fmt.Sprintf("trips-%s.xlsx", employeeID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
