package datasource

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/pkg/pagination"
)

type staticToken string

func (s staticToken) Raw() string { return string(s) }

type row struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func testSchema(t *testing.T) *query.Schema {
	t.Helper()
	return query.MustSchema(query.Config{
		Filters:     []query.Filter{{Name: "gender", Kind: query.String}},
		SortKeys:    []string{"createdAt"},
		DefaultSort: "createdAt",
	})
}

func newTestClient(t *testing.T, e *echo.Echo) *Client {
	t.Helper()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second}, staticToken("tok-123"), zerolog.Nop())
}

func TestQuery_SendsParamsAndDecodes(t *testing.T) {
	e := echo.New()
	var gotQuery, gotAuth, gotReqID string
	e.GET("/api/doctors/patients", func(c echo.Context) error {
		gotQuery = c.QueryString()
		gotAuth = c.Request().Header.Get("Authorization")
		gotReqID = c.Request().Header.Get(RequestIDHeader)
		return c.JSON(http.StatusOK, pagination.NewPage([]row{{ID: "P-1", Name: "Meera"}}, 11, pagination.Params{Page: 2, PageSize: 10}))
	})
	c := newTestClient(t, e)

	s := testSchema(t)
	st := s.ApplyUpdate(s.Defaults(), query.SetFilter("gender", "FEMALE"))
	st = s.ApplyUpdate(st, query.SetPage(2))

	page, err := Query[row](context.Background(), c, DoctorPatients, s, st)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0].Name != "Meera" || page.TotalPages != 2 {
		t.Errorf("unexpected page %+v", page)
	}
	for _, want := range []string{"gender=FEMALE", "page=2", "size=10", "sort=createdAt", "dir=desc"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("expected %q in query %q", want, gotQuery)
		}
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if gotReqID == "" {
		t.Error("expected a request id header")
	}
}

func TestQuery_ErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		handler echo.HandlerFunc
		kind    ErrorKind
		message string
	}{
		{
			name:    "unauthorized",
			handler: func(c echo.Context) error { return echo.NewHTTPError(http.StatusUnauthorized, "invalid token") },
			kind:    Unauthorized,
		},
		{
			name:    "forbidden",
			handler: func(c echo.Context) error { return echo.NewHTTPError(http.StatusForbidden, "required role: DOCTOR") },
			kind:    Forbidden,
			message: "You do not have permission to perform this action",
		},
		{
			name:    "invalid keeps server message",
			handler: func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "page must be positive") },
			kind:    Invalid,
			message: "page must be positive",
		},
		{
			name:    "server",
			handler: func(c echo.Context) error { return c.String(http.StatusBadGateway, "upstream down") },
			kind:    Server,
			message: "Server error. Please try again later",
		},
		{
			name:    "decode",
			handler: func(c echo.Context) error { return c.String(http.StatusOK, "<html>") },
			kind:    Decode,
		},
		{
			name: "shape",
			handler: func(c echo.Context) error {
				return c.JSON(http.StatusOK, map[string]any{"rows": []row{{ID: "x"}}, "totalItems": 0, "totalPages": 0, "page": 1, "pageSize": 10})
			},
			kind: Shape,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/api/doctors/visits", tt.handler)
			c := newTestClient(t, e)

			s := testSchema(t)
			_, err := Query[row](context.Background(), c, DoctorVisits, s, s.Defaults())
			if !IsKind(err, tt.kind) {
				t.Fatalf("expected kind %s, got %v", tt.kind, err)
			}
			if tt.message != "" && UserMessage(err) != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, UserMessage(err))
			}
		})
	}
}

func TestQuery_Transport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base, Timeout: time.Second}, nil, zerolog.Nop())
	s := testSchema(t)
	_, err := Query[row](context.Background(), c, DoctorPatients, s, s.Defaults())
	if !IsKind(err, Transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if UserMessage(err) != "No response from server. Please check your connection." {
		t.Errorf("unexpected message %q", UserMessage(err))
	}
}

func TestQuery_EmptyRowsNormalized(t *testing.T) {
	e := echo.New()
	e.GET("/api/visits", func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"rows":null,"totalItems":0,"totalPages":0,"page":1,"pageSize":10}`))
	})
	c := newTestClient(t, e)
	s := testSchema(t)
	page, err := Query[row](context.Background(), c, Visits, s, s.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if page.Rows == nil {
		t.Error("expected non-nil empty rows")
	}
}

func TestCreateAndUpdate(t *testing.T) {
	e := echo.New()
	var created map[string]any
	var updatedPath, idemKey string
	e.POST("/api/visits", func(c echo.Context) error {
		idemKey = c.Request().Header.Get("Idempotency-Key")
		if err := c.Bind(&created); err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, map[string]string{"id": "V-1"})
	})
	e.PUT("/api/visits/:id", func(c echo.Context) error {
		updatedPath = c.Param("id")
		return c.NoContent(http.StatusNoContent)
	})
	c := newTestClient(t, e)

	id, err := c.Create(context.Background(), Visits, map[string]string{"patientId": "P-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "V-1" || created["patientId"] != "P-1" {
		t.Errorf("unexpected create result id=%q body=%v", id, created)
	}
	if idemKey == "" {
		t.Error("expected an idempotency key on create")
	}

	if err := c.Update(context.Background(), Visits, "V-1", map[string]string{"patientId": "P-1"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updatedPath != "V-1" {
		t.Errorf("expected update of V-1, got %q", updatedPath)
	}
	if err := c.Update(context.Background(), Visits, "", nil); !IsKind(err, Invalid) {
		t.Errorf("expected invalid error for empty id, got %v", err)
	}
}

func TestUpdateField(t *testing.T) {
	e := echo.New()
	var gotID string
	var body map[string]string
	e.PUT("/api/doctors/follow-ups/:id/status", func(c echo.Context) error {
		gotID = c.Param("id")
		if err := c.Bind(&body); err != nil {
			return err
		}
		if body["status"] == "SCHEDULED" {
			return c.JSON(http.StatusConflict, map[string]string{"message": "Only scheduled follow-ups can be updated"})
		}
		return c.NoContent(http.StatusNoContent)
	})
	c := newTestClient(t, e)

	if err := c.UpdateField(context.Background(), DoctorFollowUps, "F-1", "status", map[string]string{"status": "COMPLETED"}); err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	if gotID != "F-1" || body["status"] != "COMPLETED" {
		t.Errorf("expected F-1 set to COMPLETED, got %q %v", gotID, body)
	}

	err := c.UpdateField(context.Background(), DoctorFollowUps, "F-1", "status", map[string]string{"status": "SCHEDULED"})
	if UserMessage(err) != "Only scheduled follow-ups can be updated" {
		t.Errorf("expected the server message, got %v", err)
	}
	if err := c.UpdateField(context.Background(), DoctorFollowUps, "", "status", nil); !IsKind(err, Invalid) {
		t.Errorf("expected invalid error for empty id, got %v", err)
	}
}

func TestCreate_MissingID(t *testing.T) {
	e := echo.New()
	e.POST("/api/visits", func(c echo.Context) error { return c.JSON(http.StatusOK, map[string]string{}) })
	c := newTestClient(t, e)
	if _, err := c.Create(context.Background(), Visits, map[string]string{}); !IsKind(err, Shape) {
		t.Errorf("expected shape error, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	e := echo.New()
	e.GET("/api/visits/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	})
	c := newTestClient(t, e)
	_, err := Get[row](context.Background(), c, Visits, "V-404")
	if !IsKind(err, NotFound) || UserMessage(err) != "visit not found" {
		t.Errorf("expected not found with server message, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	e := echo.New()
	e.GET("/api/visits/:id/prescription/pdf", func(c echo.Context) error {
		c.Response().Header().Set("Content-Disposition", `attachment; filename="rx-`+c.Param("id")+`.pdf"`)
		return c.Blob(http.StatusOK, "application/pdf", []byte("%PDF-1.4"))
	})
	e.GET("/api/visits/:id/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "no prescription")
	})
	c := newTestClient(t, e)

	f, err := c.Download(context.Background(), Visits.Path("V-2", "prescription", "pdf"))
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer f.Body.Close()
	b, _ := io.ReadAll(f.Body)
	if string(b) != "%PDF-1.4" || f.Name != "rx-V-2.pdf" || f.ContentType != "application/pdf" {
		t.Errorf("unexpected file %q name=%q type=%q", b, f.Name, f.ContentType)
	}

	if _, err := c.Download(context.Background(), "visits/V-2/missing"); !IsKind(err, NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestResource_AdaptsQuery(t *testing.T) {
	e := echo.New()
	e.GET("/api/patients/visits", func(c echo.Context) error {
		return c.JSON(http.StatusOK, pagination.NewPage([]row{{ID: "V-1"}}, 1, pagination.FromContext(c)))
	})
	c := newTestClient(t, e)
	s := testSchema(t)

	r := Resource[row]{Client: c, Kind: PatientVisits, Schema: s}
	page, err := r.Fetch(context.Background(), s.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalItems != 1 {
		t.Errorf("expected 1 item, got %d", page.TotalItems)
	}
}
