// Package report renders completed-trip expense statements to Excel for
// the reporting/accounting collaborators.
package report

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/repository"
)

const statementSheet = "Trip Statement"

// StatementExporter builds .xlsx expense statements from completed trips
type StatementExporter struct {
	trips  *repository.TripRepository
	logger *zap.Logger
}

// NewStatementExporter creates a statement exporter
func NewStatementExporter(trips *repository.TripRepository, logger *zap.Logger) *StatementExporter {
	return &StatementExporter{
		trips:  trips,
		logger: logger,
	}
}

// Export renders the employee's completed trips in [from, to] as an
// Excel workbook and returns the serialized file.
func (e *StatementExporter) Export(employeeID string, from, to time.Time) ([]byte, error) {
	sessions, err := e.trips.ListCompletedInRange(employeeID, from, to)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(statementSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		e.logger.Warn("Failed to drop default sheet", zap.Error(err))
	}

	headers := []string{"Trip ID", "Start", "End", "Distance (km)", "Dealer Visits", "Expense"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(statementSheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	totalKm := 0.0
	totalExpense := decimal.Zero
	for i, session := range sessions {
		row := i + 2
		visits, err := e.trips.CountVisits(session.ID)
		if err != nil {
			return nil, err
		}

		endTime := ""
		if session.EndTime != nil {
			endTime = session.EndTime.Format(time.RFC3339)
		}
		expenseStr := ""
		if session.TotalExpense != nil {
			expenseStr = session.TotalExpense.StringFixed(2)
			totalExpense = totalExpense.Add(*session.TotalExpense)
		}

		values := []interface{}{
			session.ID,
			session.StartTime.Format(time.RFC3339),
			endTime,
			session.DistanceKm,
			visits,
			expenseStr,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(statementSheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
		totalKm += session.DistanceKm
	}

	totalRow := len(sessions) + 2
	totals := map[int]interface{}{
		1: "TOTAL",
		4: totalKm,
		6: totalExpense.StringFixed(2),
	}
	for col, v := range totals {
		cell, _ := excelize.CoordinatesToCellName(col, totalRow)
		if err := f.SetCellValue(statementSheet, cell, v); err != nil {
			return nil, fmt.Errorf("failed to write totals: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	e.logger.Info("Trip statement exported",
		zap.String("employee_id", employeeID),
		zap.Int("trips", len(sessions)))
	return buf.Bytes(), nil
}
