package visit

import (
	"strings"
	"time"

	"github.com/bharatemr/practice/internal/platform/export"
)

// LogSheet is the spreadsheet layout of a visit log export.
var LogSheet = export.Sheet[Visit]{
	Name: "Visits",
	Columns: []export.Column[Visit]{
		{Header: "Visit ID", Width: 38, Value: func(v Visit) any { return v.ID }},
		{Header: "Date", Width: 12, Value: func(v Visit) any {
			if v.CreatedAt.IsZero() {
				return nil
			}
			return v.CreatedAt.Format(time.DateOnly)
		}},
		{Header: "Patient", Width: 24, Value: func(v Visit) any { return v.PatientName }},
		{Header: "Chief Complaint", Width: 30, Value: func(v Visit) any { return v.ChiefComplaint }},
		{Header: "Medicines", Width: 40, Value: func(v Visit) any {
			names := make([]string, 0, len(v.Medicines))
			for _, m := range v.Medicines {
				names = append(names, m.MedicineName)
			}
			return strings.Join(names, ", ")
		}},
		{Header: "Follow-up", Width: 12, Value: func(v Visit) any {
			if v.FollowUp == nil || !v.FollowUp.Active() {
				return nil
			}
			return v.FollowUp.ScheduledDate.String()
		}},
		{Header: "Status", Width: 12, Value: func(v Visit) any { return string(v.Status) }},
	},
}
