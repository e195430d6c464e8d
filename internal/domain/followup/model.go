// Package followup is the doctor's appointment schedule: the follow-ups
// booked at the end of consultations and their outcome.
package followup

import (
	"time"

	"github.com/bharatemr/practice/internal/domain/consultation"
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/internal/platform/validation"
)

// Status is the outcome of a follow-up.
type Status string

const (
	Scheduled Status = "SCHEDULED"
	Completed Status = "COMPLETED"
	Cancelled Status = "CANCELLED"
	Missed    Status = "MISSED"
)

// Statuses accepted by the status filter.
var Statuses = []string{string(Scheduled), string(Completed), string(Cancelled), string(Missed)}

func (s Status) Valid() bool {
	switch s {
	case Scheduled, Completed, Cancelled, Missed:
		return true
	}
	return false
}

// CanTransition reports whether a follow-up in from may be moved to to.
// Only scheduled follow-ups change, and only to an outcome.
func CanTransition(from, to Status) bool {
	return from == Scheduled && to.Valid() && to != Scheduled
}

// FollowUp is one booked appointment. It belongs to the visit that
// scheduled it.
type FollowUp struct {
	ID            string            `json:"id"`
	VisitID       string            `json:"visitId"`
	PatientID     string            `json:"patientId"`
	PatientName   string            `json:"patientName"`
	PatientMobile string            `json:"patientMobile,omitempty"`
	DoctorID      string            `json:"doctorId"`
	DoctorName    string            `json:"doctorName,omitempty"`
	ScheduledDate consultation.Date `json:"scheduledDate"`
	Notes         string            `json:"notes"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Overdue reports whether a still scheduled follow-up's day has passed.
func (f FollowUp) Overdue(now time.Time) bool {
	if f.Status != Scheduled || f.ScheduledDate.IsZero() {
		return false
	}
	y, m, d := now.Date()
	return f.ScheduledDate.Time().Before(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

const (
	FilterStatus = "status"
	FilterFrom   = "from"
	FilterTo     = "to"
)

// ScheduleSchema is the query codec of the schedule. Search matches the
// patient name or the notes; from and to bound the scheduled date.
var ScheduleSchema = query.MustSchema(query.Config{
	Filters: []query.Filter{
		{Name: FilterStatus, Kind: query.String, Options: Statuses},
		{Name: FilterFrom, Kind: query.Date},
		{Name: FilterTo, Kind: query.Date},
	},
	SortKeys:         []string{"scheduledDate", "patientName", "createdAt"},
	DefaultSort:      "scheduledDate",
	DefaultDirection: query.Asc,
	DefaultPageSize:  10,
})

// FilterRules checks the date range. The schedule looks forward, so future
// dates are allowed.
var FilterRules = validation.RuleSet{
	FilterStatus: {validation.OneOf("Unknown follow-up status", Statuses...)},
	FilterTo:     {validation.DateNotBefore(FilterFrom, "End date must not be before start date")},
}
