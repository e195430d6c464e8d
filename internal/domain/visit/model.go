package visit

import (
	"github.com/bharatemr/practice/internal/domain/consultation"
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/internal/platform/validation"
)

// Visit is one row of the visit log: a recorded encounter plus the display
// name of its patient.
type Visit struct {
	consultation.Encounter
	PatientName string `json:"patientName"`
	DoctorName  string `json:"doctorName,omitempty"`
}

// Statuses accepted by the status filter.
var Statuses = []string{
	string(consultation.StatusScheduled),
	string(consultation.StatusInProgress),
	string(consultation.StatusCompleted),
	string(consultation.StatusCancelled),
}

const (
	FilterStatus    = "status"
	FilterPatientID = "patientId"
	FilterFrom      = "from"
	FilterTo        = "to"
)

// LogSchema is the query codec of the visit log. Search matches patient
// name, chief complaint or visit id.
var LogSchema = query.MustSchema(query.Config{
	Filters: []query.Filter{
		{Name: FilterStatus, Kind: query.String, Options: Statuses},
		{Name: FilterPatientID, Kind: query.String},
		{Name: FilterFrom, Kind: query.Date},
		{Name: FilterTo, Kind: query.Date},
	},
	SortKeys:         []string{"createdAt", "patientName"},
	DefaultSort:      "createdAt",
	DefaultDirection: query.Desc,
	DefaultPageSize:  10,
})

// FilterRules checks the date range before it is applied.
var FilterRules = validation.RuleSet{
	FilterFrom: {validation.DateNotFuture("Start date cannot be in the future")},
	FilterTo:   {validation.DateNotBefore(FilterFrom, "End date must not be before start date")},
}
