package reports

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"github.com/shulebox/circulation/internal/circulation"
)

// StatisticsWorkbook renders the circulation aggregate as a one-sheet xlsx
// for the school office.
func StatisticsWorkbook(stats *circulation.Statistics) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	rows := [][]interface{}{
		{"section", "metric", "value"},
		{"books", "total", stats.Books.Total},
		{"books", "available", stats.Books.Available},
		{"books", "checked_out", stats.Books.CheckedOut},
		{"books", "reserved", stats.Books.Reserved},
		{"books", "maintenance", stats.Books.Maintenance},
		{"books", "lost", stats.Books.Lost},
		{"books", "damaged", stats.Books.Damaged},
		{"books", "withdrawn", stats.Books.Withdrawn},
		{"members", "total", stats.Members.Total},
		{"members", "active", stats.Members.Active},
		{"members", "suspended", stats.Members.Suspended},
		{"members", "expired", stats.Members.Expired},
		{"members", "blocked", stats.Members.Blocked},
		{"loans", "open", stats.Loans.Open},
		{"loans", "overdue", stats.Loans.Overdue},
		{"loans", "returned", stats.Loans.Returned},
		{"loans", "total", stats.Loans.Total},
		{"finances", "outstanding_fines", stats.Finances.OutstandingFines},
		{"finances", "total_collected", stats.Finances.TotalCollected},
		{"", "generated_at", stats.GeneratedAt.Format("2006-01-02 15:04:05")},
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return nil, err
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
