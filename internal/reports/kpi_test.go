package reports

import (
	"strings"
	"testing"
	"time"
)

func TestFormatReport(t *testing.T) {
	from := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	report := Report{
		From:     from,
		To:       from.Add(24 * time.Hour),
		NewLeads: 7,
		Sold:     2,
		Lost:     1,
		StatusCounts: []StatusCount{
			{Status: "Call #1 Needed", Count: 4},
			{Status: "", Count: 1},
		},
		Sellers: []SellerStats{
			{Name: "Bek", NewLeads: 5, Sold: 2},
		},
		ExhaustedTasks:  1,
		UnlinkedSellers: 2,
	}

	text := FormatReport("Daily KPI report", report)

	for _, want := range []string{
		"Daily KPI report (2026-03-01 - 2026-03-02)",
		"New leads: 7",
		"Sold: 2, Lost: 1",
		"Call #1 Needed: 4",
		"(blank): 1",
		"Bek: 5 new, 2 sold",
		"1 reminder(s) exhausted delivery retries",
		"2 seller name(s) without a linked account",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q:\n%s", want, text)
		}
	}
}

func TestFormatReportOmitsEmptySections(t *testing.T) {
	report := Report{
		From: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	text := FormatReport("Weekly KPI report", report)

	for _, absent := range []string{"Pipeline:", "Sellers:", "Attention:"} {
		if strings.Contains(text, absent) {
			t.Fatalf("report should omit %q when empty:\n%s", absent, text)
		}
	}
}

func TestReportPayloadRoundTrip(t *testing.T) {
	task, err := NewDailyReportTask(ReportPayload{PeriodEnd: "2026-03-02T09:00:00Z"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TaskDailyReport {
		t.Fatalf("task type = %s", task.Type())
	}
	payload, err := ParseReportPayload(task)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	end, err := time.Parse(time.RFC3339, payload.PeriodEnd)
	if err != nil || !end.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("period end = %v, err = %v", end, err)
	}
}
