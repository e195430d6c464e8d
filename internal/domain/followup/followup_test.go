package followup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/domain/consultation"
	"github.com/bharatemr/practice/internal/platform/browser"
	"github.com/bharatemr/practice/internal/platform/datasource"
	"github.com/bharatemr/practice/internal/platform/export"
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/internal/platform/session"
	"github.com/bharatemr/practice/pkg/pagination"
)

var (
	doctor  = session.NewStatic(session.User{ID: "D-1", Role: session.RoleDoctor, Name: "Dr. Iyer"})
	patient = session.NewStatic(session.User{ID: "P-1", Role: session.RolePatient, Name: "Meera"})
	admin   = session.NewStatic(session.User{ID: "A-1", Role: session.RoleAdmin})
)

type staticToken string

func (s staticToken) Raw() string { return string(s) }

func newService(t *testing.T, e *echo.Echo, identity session.Provider) *Service {
	t.Helper()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	c := datasource.New(datasource.Config{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second}, staticToken("tok"), zerolog.Nop())
	return NewService(c, identity, zerolog.Nop())
}

func await(t *testing.T, b *browser.Browser[FollowUp]) browser.Snapshot[FollowUp] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := b.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if snap.Status != browser.Loaded {
		t.Fatalf("expected loaded, got %v (%v)", snap.Status, snap.Err)
	}
	return snap
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{Scheduled, Completed, true},
		{Scheduled, Cancelled, true},
		{Scheduled, Missed, true},
		{Scheduled, Scheduled, false},
		{Scheduled, "DONE", false},
		{Completed, Cancelled, false},
		{Cancelled, Scheduled, false},
		{Missed, Completed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s): expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestFollowUp_Overdue(t *testing.T) {
	now := time.Date(2026, time.October, 18, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		f    FollowUp
		want bool
	}{
		{"yesterday", FollowUp{Status: Scheduled, ScheduledDate: consultation.NewDate(2026, time.October, 17)}, true},
		{"today", FollowUp{Status: Scheduled, ScheduledDate: consultation.NewDate(2026, time.October, 18)}, false},
		{"completed", FollowUp{Status: Completed, ScheduledDate: consultation.NewDate(2026, time.October, 1)}, false},
		{"no date", FollowUp{Status: Scheduled}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Overdue(now); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestScheduleSchema(t *testing.T) {
	st := ScheduleSchema.Parse("status=MISSED&from=2026-11-01&to=later")
	if v, _ := st.Filter(FilterStatus); v != "MISSED" {
		t.Errorf("expected status filter, got %q", v)
	}
	if _, ok := st.Filter(FilterTo); ok {
		t.Error("expected malformed date to be dropped")
	}
	if st.SortKey != "scheduledDate" || st.SortDirection != query.Asc {
		t.Errorf("expected soonest first by default, got %s", st)
	}

	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	if errs := FilterRules.ValidateAt(map[string]string{FilterFrom: "2027-01-01", FilterTo: "2027-02-01"}, now); errs != nil {
		t.Errorf("expected a future range to be accepted, got %v", errs)
	}
	errs := FilterRules.ValidateAt(map[string]string{FilterFrom: "2027-03-01", FilterTo: "2027-02-01", FilterStatus: "DONE"}, now)
	if errs.Field(FilterTo) == "" || errs.Field(FilterStatus) == "" {
		t.Errorf("expected inverted range and unknown status to be rejected, got %v", errs)
	}
}

func TestScheduleKind(t *testing.T) {
	tests := []struct {
		name     string
		identity session.Provider
		want     datasource.ResourceKind
		wantErr  bool
	}{
		{"doctor", doctor, datasource.DoctorFollowUps, false},
		{"patient", patient, datasource.PatientFollowUps, false},
		{"admin", admin, "", true},
		{"signed out", &session.Static{}, "", true},
		{"nil", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScheduleKind(tt.identity)
			if tt.wantErr {
				if !errors.Is(err, consultation.ErrNotPermitted) {
					t.Errorf("expected ErrNotPermitted, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}

func TestService_ScheduleUsesRoleCollection(t *testing.T) {
	e := echo.New()
	hits := make(chan string, 4)
	handler := func(c echo.Context) error {
		hits <- c.Path() + "?" + c.QueryParam(query.KeySort)
		return c.JSON(http.StatusOK, pagination.NewPage([]FollowUp{{ID: "F-1", PatientName: "Meera"}}, 1, pagination.Params{Page: 1, PageSize: 10}))
	}
	e.GET("/api/doctors/follow-ups", handler)
	e.GET("/api/patients/follow-ups", handler)

	for _, tt := range []struct {
		identity session.Provider
		want     string
	}{
		{doctor, "/api/doctors/follow-ups?scheduledDate"},
		{patient, "/api/patients/follow-ups?scheduledDate"},
	} {
		b, err := newService(t, e, tt.identity).Schedule()
		if err != nil {
			t.Fatal(err)
		}
		if err := b.Start(); err != nil {
			t.Fatal(err)
		}
		await(t, b)
		b.Close()
		if got := <-hits; got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}

	if _, err := newService(t, e, admin).Schedule(); !errors.Is(err, consultation.ErrNotPermitted) {
		t.Errorf("expected ErrNotPermitted for admin, got %v", err)
	}
}

// scheduleServer holds one follow-up whose status can be changed once.
func scheduleServer(fetches *int32) *echo.Echo {
	e := echo.New()
	var mu sync.Mutex
	status := Scheduled
	e.GET("/api/doctors/follow-ups", func(c echo.Context) error {
		atomic.AddInt32(fetches, 1)
		mu.Lock()
		defer mu.Unlock()
		row := FollowUp{ID: "F-1", PatientName: "Meera", Status: status, ScheduledDate: consultation.NewDate(2026, time.November, 2)}
		return c.JSON(http.StatusOK, pagination.NewPage([]FollowUp{row}, 1, pagination.Params{Page: 1, PageSize: 10}))
	})
	e.PUT("/api/doctors/follow-ups/:id/status", func(c echo.Context) error {
		var body struct {
			Status Status `json:"status"`
		}
		if err := c.Bind(&body); err != nil {
			return err
		}
		if c.Param("id") != "F-1" {
			return echo.NewHTTPError(http.StatusNotFound, "follow-up not found")
		}
		mu.Lock()
		defer mu.Unlock()
		if !CanTransition(status, body.Status) {
			return echo.NewHTTPError(http.StatusConflict, "Only scheduled follow-ups can be updated")
		}
		status = body.Status
		return c.NoContent(http.StatusNoContent)
	})
	return e
}

func TestService_SetStatusRefreshesSchedule(t *testing.T) {
	var fetches int32
	svc := newService(t, scheduleServer(&fetches), doctor)

	b, err := svc.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if snap := await(t, b); snap.Page.Rows[0].Status != Scheduled {
		t.Fatalf("expected a scheduled row, got %+v", snap.Page.Rows)
	}

	if err := svc.SetStatus(context.Background(), b, "F-1", Completed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	snap := await(t, b)
	if got := snap.Page.Rows[0].Status; got != Completed {
		t.Errorf("expected refreshed row to be COMPLETED, got %s", got)
	}
	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Errorf("expected one refetch after the update, got %d fetches", n)
	}

	err = svc.SetStatus(context.Background(), b, "F-1", Cancelled)
	if !datasource.IsKind(err, datasource.Invalid) {
		t.Errorf("expected the server to refuse a second outcome, got %v", err)
	}
	if err := svc.SetStatus(context.Background(), nil, "F-9", Missed); !datasource.IsKind(err, datasource.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestService_SetStatusRejectsLocally(t *testing.T) {
	var fetches int32
	e := scheduleServer(&fetches)

	tests := []struct {
		name     string
		identity session.Provider
		status   Status
		perm     bool
	}{
		{"patient", patient, Completed, true},
		{"admin", admin, Completed, true},
		{"back to scheduled", doctor, Scheduled, false},
		{"unknown status", doctor, "DONE", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newService(t, e, tt.identity).SetStatus(context.Background(), nil, "F-1", tt.status)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, consultation.ErrNotPermitted); got != tt.perm {
				t.Errorf("expected ErrNotPermitted %v, got %v", tt.perm, err)
			}
		})
	}
}

func TestService_Export(t *testing.T) {
	e := echo.New()
	e.GET("/api/doctors/follow-ups", func(c echo.Context) error {
		rows := []FollowUp{{
			ID: "F-1", VisitID: "V-1", PatientName: "Meera", PatientMobile: "+919876543210",
			ScheduledDate: consultation.NewDate(2026, time.November, 2), Notes: "review BP", Status: Scheduled,
		}}
		return c.JSON(http.StatusOK, pagination.NewPage(rows, 1, pagination.Params{Page: 1, PageSize: 10}))
	})

	data, err := newService(t, e, doctor).Export(context.Background(), ScheduleSchema.Defaults())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	rows, err := export.ReadRows(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %v", rows)
	}
	want := []string{"2026-11-02", "Meera", "+919876543210", "review BP", "SCHEDULED", "V-1"}
	for i, w := range want {
		if rows[1][i] != w {
			t.Errorf("column %q: expected %q, got %q", rows[0][i], w, rows[1][i])
		}
	}
}
