package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/approval"
	"github.com/fieldtrack/trip-reimbursement/internal/directory"
	"github.com/fieldtrack/trip-reimbursement/internal/models"
	"github.com/fieldtrack/trip-reimbursement/internal/notify"
	"github.com/fieldtrack/trip-reimbursement/internal/report"
	"github.com/fieldtrack/trip-reimbursement/internal/repository"
	"github.com/fieldtrack/trip-reimbursement/internal/trip"
	"github.com/fieldtrack/trip-reimbursement/pkg/database"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Run("../../../migrations"))

	for _, stmt := range []string{
		"INSERT INTO employees (id, name, grade_key, active) VALUES ('emp-1', 'emp-1', 'G1', 1)",
		"INSERT INTO employees (id, name, grade_key, active) VALUES ('mgr-1', 'mgr-1', 'G3', 1)",
		"INSERT INTO approval_levels (employee_id, level, approver_id) VALUES ('emp-1', 1, 'mgr-1')",
		"INSERT INTO rate_entries (grade_key, per_km_rate, daily_allowance) VALUES ('G1', '12', '500')",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	tripRepo := repository.NewTripRepository(db.DB, logger)
	claimRepo := repository.NewClaimRepository(db.DB, logger)
	historyRepo := repository.NewHistoryRepository(db.DB, logger)
	dirRepo := repository.NewDirectoryRepository(db.DB, logger)
	dir := directory.NewService(dirRepo, models.RateEntry{
		GradeKey:  "DEFAULT",
		PerKmRate: decimal.NewFromInt(8),
	}, logger)

	trips := trip.NewService(db, tripRepo, dir, dir, 10, logger)
	claims := approval.NewEngine(db, claimRepo, historyRepo, dir, notify.NopNotifier{}, logger)
	statements := report.NewStatementExporter(tripRepo, logger)

	server := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0},
		trips, claims, statements, dir, decimal.NewFromInt(100), logger)
	return server.Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// Zero is a legal coordinate value, so starting a trip on the equator
// or the prime meridian must bind cleanly.
func TestStartTripAcceptsZeroLongitude(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/trips",
		`{"employee_id": "emp-1", "latitude": 51.4779, "longitude": 0.0}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestAddSampleAcceptsZeroLongitude(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/trips",
		`{"employee_id": "emp-1", "latitude": 51.4779, "longitude": 0.001}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	rec = doJSON(t, router, http.MethodPost, "/api/trips/"+created.Data.ID+"/samples",
		`{"latitude": 51.4779, "longitude": 0.0, "accuracy_m": 5}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestStartTripRejectsOutOfRangeCoordinates(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/trips",
		`{"employee_id": "emp-1", "latitude": 91.0, "longitude": 10.0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/trips",
		`{"employee_id": "emp-1", "latitude": 10.0, "longitude": -181.0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitClaimParsesDecimalAmount(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/claims",
		`{"employee_id": "emp-1", "claim_type": "TRIP_EXPENSE", "amount": "1100.50", "description": "site visits"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data models.Claim `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Data.Amount.Equal(decimal.RequireFromString("1100.50")))
}

func TestSubmitClaimRejectsMalformedAmount(t *testing.T) {
	router := setupRouter(t)

	for _, amount := range []string{`"12,00"`, `"abc"`, `""`} {
		rec := doJSON(t, router, http.MethodPost, "/api/claims",
			`{"employee_id": "emp-1", "claim_type": "TRIP_EXPENSE", "amount": `+amount+`}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, amount)
	}

	// A numeric JSON amount no longer binds; money crosses the wire as
	// a string.
	rec := doJSON(t, router, http.MethodPost, "/api/claims",
		`{"employee_id": "emp-1", "claim_type": "TRIP_EXPENSE", "amount": 1100.50}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitClaimRejectsNonPositiveAmount(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/claims",
		`{"employee_id": "emp-1", "claim_type": "TRIP_EXPENSE", "amount": "-10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/claims",
		`{"employee_id": "emp-1", "claim_type": "TRIP_EXPENSE", "amount": "0"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
