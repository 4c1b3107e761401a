// Package reports produces periodic KPI summaries for the admin chats,
// scheduled through asynq.
package reports

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskDailyReport = "reports.kpi.daily"

const TaskWeeklyReport = "reports.kpi.weekly"

// ReportPayload optionally pins the period end; the handler defaults to
// time-of-processing when empty. RFC 3339.
type ReportPayload struct {
	PeriodEnd string `json:"periodEnd,omitempty"`
}

func NewDailyReportTask(payload ReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailyReport, data), nil
}

func NewWeeklyReportTask(payload ReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWeeklyReport, data), nil
}

func ParseReportPayload(task *asynq.Task) (ReportPayload, error) {
	var payload ReportPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReportPayload{}, err
	}
	return payload, nil
}
