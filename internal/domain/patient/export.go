package patient

import (
	"time"

	"github.com/bharatemr/practice/internal/platform/export"
)

// RegistrySheet is the spreadsheet layout of a registry export.
var RegistrySheet = export.Sheet[Patient]{
	Name: "Patients",
	Columns: []export.Column[Patient]{
		{Header: "Patient ID", Width: 14, Value: func(p Patient) any { return p.PatientID }},
		{Header: "Full Name", Width: 24, Value: func(p Patient) any { return p.FullName }},
		{Header: "Mobile", Width: 16, Value: func(p Patient) any { return p.Mobile }},
		{Header: "Email", Width: 26, Value: func(p Patient) any { return p.Email }},
		{Header: "Age", Width: 6, Value: func(p Patient) any { return p.Age }},
		{Header: "Gender", Width: 10, Value: func(p Patient) any { return p.Gender }},
		{Header: "Blood Group", Width: 12, Value: func(p Patient) any { return p.BloodGroup }},
		{Header: "City", Width: 16, Value: func(p Patient) any { return p.City }},
		{Header: "State", Width: 16, Value: func(p Patient) any { return p.State }},
		{Header: "Registered", Width: 20, Value: func(p Patient) any {
			if p.CreatedAt.IsZero() {
				return nil
			}
			return p.CreatedAt.Format(time.DateOnly)
		}},
	},
}
