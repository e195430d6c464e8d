package followup

import (
	"time"

	"github.com/bharatemr/practice/internal/platform/export"
)

// ScheduleSheet is the spreadsheet layout of a schedule export.
var ScheduleSheet = export.Sheet[FollowUp]{
	Name: "Follow-ups",
	Columns: []export.Column[FollowUp]{
		{Header: "Date", Width: 12, Value: func(f FollowUp) any { return f.ScheduledDate.String() }},
		{Header: "Patient", Width: 24, Value: func(f FollowUp) any { return f.PatientName }},
		{Header: "Mobile", Width: 14, Value: func(f FollowUp) any { return f.PatientMobile }},
		{Header: "Notes", Width: 40, Value: func(f FollowUp) any { return f.Notes }},
		{Header: "Status", Width: 12, Value: func(f FollowUp) any { return string(f.Status) }},
		{Header: "Visit ID", Width: 38, Value: func(f FollowUp) any { return f.VisitID }},
		{Header: "Booked", Width: 12, Value: func(f FollowUp) any {
			if f.CreatedAt.IsZero() {
				return nil
			}
			return f.CreatedAt.Format(time.DateOnly)
		}},
	},
}
