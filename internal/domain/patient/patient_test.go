package patient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/browser"
	"github.com/bharatemr/practice/internal/platform/datasource"
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/internal/platform/validation"
	"github.com/bharatemr/practice/pkg/pagination"
)

var today = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func validForm() Onboarding {
	return Onboarding{
		FullName:               "Meera Iyer",
		MobileNumber:           "9876543210",
		Email:                  "meera@example.com",
		DateOfBirth:            "1990-04-12",
		Gender:                 "FEMALE",
		BloodGroup:             "O+",
		Address:                "12 MG Road",
		City:                   "Bengaluru",
		State:                  "Karnataka",
		Pincode:                "560001",
		EmergencyContactName:   "Ravi Iyer",
		EmergencyContactNumber: "9123456780",
	}
}

func TestAgeAt(t *testing.T) {
	tests := []struct {
		dob  string
		want int
	}{
		{"1990-04-12", 36},
		{"1990-10-18", 36},
		{"1990-10-19", 35},
		{"2030-01-01", 0},
		{"not-a-date", 0},
	}
	for _, tt := range tests {
		if got := AgeAt(tt.dob, today); got != tt.want {
			t.Errorf("AgeAt(%q): expected %d, got %d", tt.dob, tt.want, got)
		}
	}
}

func TestOnboarding_Validate(t *testing.T) {
	if errs := validForm().Validate(today); errs != nil {
		t.Fatalf("expected valid form, got %v", errs)
	}

	tests := []struct {
		name   string
		modify func(*Onboarding)
		field  string
		msg    string
	}{
		{"short name", func(o *Onboarding) { o.FullName = "Al" }, "fullName", "Full name must be at least 3 characters"},
		{"missing name", func(o *Onboarding) { o.FullName = "  " }, "fullName", "Full name is required"},
		{"bad mobile", func(o *Onboarding) { o.MobileNumber = "98765" }, "mobileNumber", "Invalid mobile number"},
		{"bad email", func(o *Onboarding) { o.Email = "meera@" }, "email", "Invalid email address"},
		{"future dob", func(o *Onboarding) { o.DateOfBirth = "2026-10-19" }, "dateOfBirth", "Date of birth cannot be in the future"},
		{"bad gender", func(o *Onboarding) { o.Gender = "X" }, "gender", "Please select a gender"},
		{"bad pincode", func(o *Onboarding) { o.Pincode = "5600" }, "pincode", "Invalid pincode"},
		{"bad emergency number", func(o *Onboarding) { o.EmergencyContactNumber = "12" }, "emergencyContactNumber", "Invalid mobile number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.modify(&f)
			errs := f.Validate(today)
			if got := errs.Field(tt.field); got != tt.msg {
				t.Errorf("expected %q on %s, got %q (all: %v)", tt.msg, tt.field, got, errs)
			}
		})
	}
}

func TestOnboarding_OptionalFieldsMayBeEmpty(t *testing.T) {
	f := validForm()
	f.Email = ""
	f.BloodGroup = ""
	if errs := f.Validate(today); errs != nil {
		t.Errorf("expected optional fields to pass, got %v", errs)
	}
}

func TestOnboarding_PayloadPrefixesPhones(t *testing.T) {
	f := validForm()
	f.FullName = "  Meera Iyer "
	p := f.Payload()
	if p.MobileNumber != "+919876543210" || p.EmergencyContactNumber != "+919123456780" {
		t.Errorf("expected country-coded numbers, got %q and %q", p.MobileNumber, p.EmergencyContactNumber)
	}
	if p.FullName != "Meera Iyer" {
		t.Errorf("expected trimmed name, got %q", p.FullName)
	}
	if again := p.Payload(); again.MobileNumber != p.MobileNumber {
		t.Errorf("expected prefix to be applied once, got %q", again.MobileNumber)
	}
}

func TestRegistrySchema(t *testing.T) {
	st := RegistrySchema.Parse("gender=FEMALE&bloodGroup=Z%2B&page=3")
	if g, _ := st.Filter(FilterGender); g != "FEMALE" {
		t.Errorf("expected gender filter, got %q", g)
	}
	if bg, ok := st.Filter(FilterBloodGroup); ok {
		t.Errorf("expected unknown blood group to be dropped, got %q", bg)
	}
	if st.Page != 3 || st.SortKey != "createdAt" || st.SortDirection != query.Desc {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestFilterRules(t *testing.T) {
	errs := FilterRules.ValidateAt(map[string]string{
		FilterMinAge:         "130",
		FilterRegisteredFrom: "2026-05-10",
		FilterRegisteredTo:   "2026-05-01",
	}, today)
	if errs.Field(FilterMinAge) == "" {
		t.Error("expected minAge to be rejected")
	}
	if errs.Field(FilterRegisteredTo) != "End date must not be before start date" {
		t.Errorf("unexpected registeredTo message %q", errs.Field(FilterRegisteredTo))
	}
}

type staticToken string

func (s staticToken) Raw() string { return string(s) }

func newService(t *testing.T, e *echo.Echo) *Service {
	t.Helper()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	c := datasource.New(datasource.Config{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second}, staticToken("tok"), zerolog.Nop())
	svc := NewService(c, zerolog.Nop())
	svc.now = func() time.Time { return today }
	return svc
}

func TestService_Onboard(t *testing.T) {
	e := echo.New()
	var got Onboarding
	e.POST("/api/doctors/patients", func(c echo.Context) error {
		if err := c.Bind(&got); err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, map[string]string{"id": "P-100"})
	})
	svc := newService(t, e)

	id, err := svc.Onboard(context.Background(), validForm())
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if id != "P-100" {
		t.Errorf("expected P-100, got %q", id)
	}
	if got.MobileNumber != "+919876543210" {
		t.Errorf("expected prefixed number on the wire, got %q", got.MobileNumber)
	}
}

func TestService_OnboardInvalidSendsNothing(t *testing.T) {
	e := echo.New()
	called := false
	e.POST("/api/doctors/patients", func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusCreated)
	})
	svc := newService(t, e)

	f := validForm()
	f.Pincode = "1"
	_, err := svc.Onboard(context.Background(), f)
	var errs validation.Errors
	if !errors.As(err, &errs) || errs.Field("pincode") != "Invalid pincode" {
		t.Errorf("expected pincode validation error, got %v", err)
	}
	if called {
		t.Error("expected no request for an invalid form")
	}
}

func TestService_Registry(t *testing.T) {
	e := echo.New()
	var gotGender string
	e.GET("/api/doctors/patients", func(c echo.Context) error {
		gotGender = c.QueryParam("gender")
		return c.JSON(http.StatusOK, pagination.NewPage([]Patient{{ID: "P-1", FullName: "Meera Iyer", Gender: "FEMALE"}}, 1, pagination.Params{Page: 1, PageSize: 10}))
	})
	svc := newService(t, e)

	b := svc.Registry()
	defer b.Close()
	if err := b.Restore(url.Values{"gender": {"FEMALE"}}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := b.Await(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != browser.Loaded || len(snap.Page.Rows) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if gotGender != "FEMALE" {
		t.Errorf("expected gender filter sent, got %q", gotGender)
	}
}
