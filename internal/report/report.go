// Package report renders the turns of a service day as an xlsx workbook with a
// "turns" sheet listing every turn and a "summary" sheet of status counts.
package report

import (
	"fmt"
	"time"

	"qms/turn-service/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	TurnsSheet   = "turns"
	SummarySheet = "summary"
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var turnsHeader = []string{
	"ticket_code", "status", "customer_name", "national_id", "module", "created_at",
	"called_at", "completed_at", "cancelled_at", "completed_by", "wait_seconds", "service_seconds",
}

// Filename is the download name for serviceDate's workbook.
func Filename(serviceDate string) string {
	return fmt.Sprintf("turns_%s.xlsx", serviceDate)
}

// DailyWorkbook builds the workbook. staffNames resolves completed_by ids to
// display names; unknown ids are written as-is.
func DailyWorkbook(stats models.QueueStats, turns []models.TurnDetail, staffNames map[string]string) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), TurnsSheet); err != nil {
		return nil, err
	}
	header := turnsHeader
	if err := xl.SetSheetRow(TurnsSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, turn := range turns {
		record := turnRecord(turn, staffNames)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := xl.SetSheetRow(TurnsSheet, cell, &record); err != nil {
			return nil, err
		}
	}

	if _, err := xl.NewSheet(SummarySheet); err != nil {
		return nil, err
	}
	next := ""
	if stats.NextTicket != nil {
		next = *stats.NextTicket
	}
	summary := [][]interface{}{
		{"service_date", stats.ServiceDate},
		{"waiting", stats.Waiting},
		{"being_served", stats.BeingServed},
		{"completed", stats.Completed},
		{"cancelled", stats.Cancelled},
		{"total", stats.TotalToday},
		{"next_ticket", next},
	}
	for i, row := range summary {
		row := row
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := xl.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func turnRecord(turn models.TurnDetail, staffNames map[string]string) []interface{} {
	module := ""
	if turn.Module != nil {
		module = turn.Module.Name
	}
	completedBy := ""
	if turn.CompletedBy != nil {
		completedBy = *turn.CompletedBy
		if name, ok := staffNames[completedBy]; ok {
			completedBy = name
		}
	}
	var wait, service interface{} = "", ""
	if turn.CalledAt != nil {
		wait = int(turn.CalledAt.Sub(turn.CreatedAt).Seconds())
		if turn.CompletedAt != nil {
			service = int(turn.CompletedAt.Sub(*turn.CalledAt).Seconds())
		}
	}
	return []interface{}{
		turn.TicketCode,
		turn.Status,
		turn.CustomerName,
		turn.NationalID,
		module,
		formatTime(&turn.CreatedAt),
		formatTime(turn.CalledAt),
		formatTime(turn.CompletedAt),
		formatTime(turn.CancelledAt),
		completedBy,
		wait,
		service,
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
