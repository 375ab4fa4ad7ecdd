package reports_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/reports"
)

func Test_StatisticsWorkbook(t *testing.T) {
	stats := &circulation.Statistics{GeneratedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	stats.Books.Total = 12
	stats.Books.Available = 9
	stats.Loans.Open = 3
	stats.Finances.OutstandingFines = 25.5

	buf, err := reports.StatisticsWorkbook(stats)
	require.NoError(t, err)
	require.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	assert.Equal(t, []string{"section", "metric", "value"}, rows[0])

	got := map[string]string{}
	for _, row := range rows[1:] {
		if len(row) == 3 {
			got[row[0]+"/"+row[1]] = row[2]
		}
	}
	assert.Equal(t, "12", got["books/total"])
	assert.Equal(t, "9", got["books/available"])
	assert.Equal(t, "3", got["loans/open"])
	assert.Equal(t, "25.5", got["finances/outstanding_fines"])
}
