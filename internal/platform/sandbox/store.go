package sandbox

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bharatemr/practice/internal/domain/followup"
	"github.com/bharatemr/practice/internal/domain/patient"
	"github.com/bharatemr/practice/internal/domain/visit"
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/pkg/pagination"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// ListQuery is one decoded list request. DoctorID and PatientID narrow a
// visit or follow-up listing to one owner; empty means unscoped.
type ListQuery struct {
	State     query.State
	Page      pagination.Params
	DoctorID  string
	PatientID string
	// Now anchors age filters.
	Now time.Time
}

// Store is the persistence contract of the sandbox backend. List methods
// return one page of rows and the total number of matches.
//
// Follow-ups are written through their visit: CreateVisit and UpdateVisit
// book, move or cancel the visit's follow-up. Only the status is set
// directly.
type Store interface {
	ListPatients(ctx context.Context, q ListQuery) ([]patient.Patient, int, error)
	GetPatient(ctx context.Context, id string) (*patient.Patient, error)
	CreatePatient(ctx context.Context, p *patient.Patient) error

	ListVisits(ctx context.Context, q ListQuery) ([]visit.Visit, int, error)
	GetVisit(ctx context.Context, id string) (*visit.Visit, error)
	CreateVisit(ctx context.Context, v *visit.Visit) error
	UpdateVisit(ctx context.Context, v *visit.Visit) error

	ListFollowUps(ctx context.Context, q ListQuery) ([]followup.FollowUp, int, error)
	GetFollowUp(ctx context.Context, id string) (*followup.FollowUp, error)
	// SetFollowUpStatus moves a follow-up from one status to another and
	// returns ErrConflict when it is no longer in from.
	SetFollowUpStatus(ctx context.Context, id string, from, to followup.Status) error

	Reset(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemoryStore is a thread-safe, in-memory Store.
type MemoryStore struct {
	mu        sync.RWMutex
	patients  []patient.Patient
	visits    []visit.Visit
	followUps []followup.FollowUp
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) ListPatients(_ context.Context, q ListQuery) ([]patient.Patient, int, error) {
	s.mu.RLock()
	var matched []patient.Patient
	for _, p := range s.patients {
		if matchPatient(p, q) {
			matched = append(matched, p)
		}
	}
	s.mu.RUnlock()

	sortRows(matched, q.State.SortDirection, func(a, b patient.Patient) int {
		switch q.State.SortKey {
		case "fullName":
			return strings.Compare(strings.ToLower(a.FullName), strings.ToLower(b.FullName))
		case "age":
			// Younger patients have later birth dates.
			return strings.Compare(b.DateOfBirth, a.DateOfBirth)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	})
	return window(matched, q.Page), len(matched), nil
}

func matchPatient(p patient.Patient, q ListQuery) bool {
	st := q.State
	if s := strings.ToLower(strings.TrimSpace(st.Search)); s != "" {
		if !strings.Contains(strings.ToLower(p.FullName), s) &&
			!strings.Contains(p.Mobile, s) &&
			!strings.Contains(strings.ToLower(p.PatientID), s) {
			return false
		}
	}
	if v, ok := st.Filter(patient.FilterGender); ok && p.Gender != v {
		return false
	}
	if v, ok := st.Filter(patient.FilterBloodGroup); ok && p.BloodGroup != v {
		return false
	}
	if v, ok := st.Filter(patient.FilterCity); ok && !strings.EqualFold(p.City, v) {
		return false
	}
	age := patient.AgeAt(p.DateOfBirth, q.Now)
	if n, ok := numberFilter(st, patient.FilterMinAge); ok && float64(age) < n {
		return false
	}
	if n, ok := numberFilter(st, patient.FilterMaxAge); ok && float64(age) > n {
		return false
	}
	return inDateRange(p.CreatedAt, st, patient.FilterRegisteredFrom, patient.FilterRegisteredTo)
}

func (s *MemoryStore) GetPatient(_ context.Context, id string) (*patient.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patients {
		if p.ID == id {
			out := p
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreatePatient(_ context.Context, p *patient.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.patients {
		if existing.ID == p.ID || existing.Mobile == p.Mobile {
			return ErrConflict
		}
	}
	s.patients = append(s.patients, *p)
	return nil
}

func (s *MemoryStore) ListVisits(_ context.Context, q ListQuery) ([]visit.Visit, int, error) {
	s.mu.RLock()
	var matched []visit.Visit
	for _, v := range s.visits {
		if matchVisit(v, q) {
			matched = append(matched, v)
		}
	}
	s.mu.RUnlock()

	sortRows(matched, q.State.SortDirection, func(a, b visit.Visit) int {
		if q.State.SortKey == "patientName" {
			return strings.Compare(strings.ToLower(a.PatientName), strings.ToLower(b.PatientName))
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return window(matched, q.Page), len(matched), nil
}

func matchVisit(v visit.Visit, q ListQuery) bool {
	if q.DoctorID != "" && v.DoctorID != q.DoctorID {
		return false
	}
	if q.PatientID != "" && v.PatientID != q.PatientID {
		return false
	}
	st := q.State
	if s := strings.ToLower(strings.TrimSpace(st.Search)); s != "" {
		if !strings.Contains(strings.ToLower(v.PatientName), s) &&
			!strings.Contains(strings.ToLower(v.ChiefComplaint), s) &&
			!strings.Contains(strings.ToLower(v.ID), s) {
			return false
		}
	}
	if f, ok := st.Filter(visit.FilterStatus); ok && string(v.Status) != f {
		return false
	}
	if f, ok := st.Filter(visit.FilterPatientID); ok && v.PatientID != f {
		return false
	}
	return inDateRange(v.CreatedAt, st, visit.FilterFrom, visit.FilterTo)
}

func (s *MemoryStore) GetVisit(_ context.Context, id string) (*visit.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.visits {
		if v.ID == id {
			out := v
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateVisit(_ context.Context, v *visit.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.visits {
		if existing.ID == v.ID {
			return ErrConflict
		}
	}
	s.visits = append(s.visits, *v)
	s.syncFollowUp(v, v.CreatedAt)
	return nil
}

func (s *MemoryStore) UpdateVisit(_ context.Context, v *visit.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.visits {
		if s.visits[i].ID == v.ID {
			s.visits[i] = *v
			s.syncFollowUp(v, time.Now().UTC())
			return nil
		}
	}
	return ErrNotFound
}

// syncFollowUp must be called with mu held.
func (s *MemoryStore) syncFollowUp(v *visit.Visit, booked time.Time) {
	i := -1
	for j := range s.followUps {
		if s.followUps[j].VisitID == v.ID {
			i = j
			break
		}
	}
	switch followUpChange(v, i >= 0) {
	case cancelFollowUp:
		if s.followUps[i].Status == followup.Scheduled {
			s.followUps[i].Status = followup.Cancelled
		}
	case bookFollowUp:
		var mobile string
		for _, p := range s.patients {
			if p.ID == v.PatientID {
				mobile = p.Mobile
			}
		}
		s.followUps = append(s.followUps, followup.FollowUp{
			ID:            uuid.NewString(),
			VisitID:       v.ID,
			PatientID:     v.PatientID,
			PatientName:   v.PatientName,
			PatientMobile: mobile,
			DoctorID:      v.DoctorID,
			DoctorName:    v.DoctorName,
			ScheduledDate: v.FollowUp.ScheduledDate,
			Notes:         v.FollowUp.Notes,
			Status:        followup.Scheduled,
			CreatedAt:     booked,
		})
	case moveFollowUp:
		f := &s.followUps[i]
		if f.ScheduledDate.String() != v.FollowUp.ScheduledDate.String() {
			f.ScheduledDate = v.FollowUp.ScheduledDate
			f.Status = followup.Scheduled
		}
		f.Notes = v.FollowUp.Notes
	}
}

func (s *MemoryStore) ListFollowUps(_ context.Context, q ListQuery) ([]followup.FollowUp, int, error) {
	s.mu.RLock()
	var matched []followup.FollowUp
	for _, f := range s.followUps {
		if matchFollowUp(f, q) {
			matched = append(matched, f)
		}
	}
	s.mu.RUnlock()

	sortRows(matched, q.State.SortDirection, func(a, b followup.FollowUp) int {
		switch q.State.SortKey {
		case "patientName":
			return strings.Compare(strings.ToLower(a.PatientName), strings.ToLower(b.PatientName))
		case "createdAt":
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return a.ScheduledDate.Time().Compare(b.ScheduledDate.Time())
		}
	})
	return window(matched, q.Page), len(matched), nil
}

func matchFollowUp(f followup.FollowUp, q ListQuery) bool {
	if q.DoctorID != "" && f.DoctorID != q.DoctorID {
		return false
	}
	if q.PatientID != "" && f.PatientID != q.PatientID {
		return false
	}
	st := q.State
	if s := strings.ToLower(strings.TrimSpace(st.Search)); s != "" {
		if !strings.Contains(strings.ToLower(f.PatientName), s) &&
			!strings.Contains(strings.ToLower(f.Notes), s) {
			return false
		}
	}
	if v, ok := st.Filter(followup.FilterStatus); ok && string(f.Status) != v {
		return false
	}
	return inDateRange(f.ScheduledDate.Time(), st, followup.FilterFrom, followup.FilterTo)
}

func (s *MemoryStore) GetFollowUp(_ context.Context, id string) (*followup.FollowUp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.followUps {
		if f.ID == id {
			out := f
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SetFollowUpStatus(_ context.Context, id string, from, to followup.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.followUps {
		if s.followUps[i].ID != id {
			continue
		}
		if s.followUps[i].Status != from {
			return ErrConflict
		}
		s.followUps[i].Status = to
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	s.patients = nil
	s.visits = nil
	s.followUps = nil
	s.mu.Unlock()
	return nil
}

// ---------------------------------------------------------------------------
// Helpers shared by the stores
// ---------------------------------------------------------------------------

type followUpAction int

const (
	keepFollowUp followUpAction = iota
	bookFollowUp
	moveFollowUp
	cancelFollowUp
)

// followUpChange decides what saving v does to its follow-up. A new date
// books one; a changed date reschedules it, whatever its outcome was; a
// cleared date cancels it if it is still scheduled.
func followUpChange(v *visit.Visit, exists bool) followUpAction {
	active := v.FollowUp != nil && v.FollowUp.Active()
	switch {
	case active && exists:
		return moveFollowUp
	case active:
		return bookFollowUp
	case exists:
		return cancelFollowUp
	}
	return keepFollowUp
}

func sortRows[T any](rows []T, dir query.Direction, cmp func(a, b T) int) {
	sort.SliceStable(rows, func(i, j int) bool {
		if dir == query.Desc {
			return cmp(rows[i], rows[j]) > 0
		}
		return cmp(rows[i], rows[j]) < 0
	})
}

func window[T any](rows []T, p pagination.Params) []T {
	start, end := p.Window(len(rows))
	return rows[start:end]
}

func numberFilter(st query.State, name string) (float64, bool) {
	v, ok := st.Filter(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	return n, err == nil
}

// dateFilter returns the start of the filter's day in UTC.
func dateFilter(st query.State, name string) (time.Time, bool) {
	v, ok := st.Filter(name)
	if !ok {
		return time.Time{}, false
	}
	d, err := time.Parse(query.DateLayout, v)
	return d, err == nil
}

// inDateRange checks t against an inclusive [from, to] day range.
func inDateRange(t time.Time, st query.State, fromKey, toKey string) bool {
	if from, ok := dateFilter(st, fromKey); ok && t.Before(from) {
		return false
	}
	if to, ok := dateFilter(st, toKey); ok && !t.Before(to.AddDate(0, 0, 1)) {
		return false
	}
	return true
}
