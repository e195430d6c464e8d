package sandbox

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/domain/consultation"
	"github.com/bharatemr/practice/internal/domain/followup"
	"github.com/bharatemr/practice/internal/domain/patient"
	"github.com/bharatemr/practice/internal/domain/visit"
	"github.com/bharatemr/practice/internal/platform/auth"
	"github.com/bharatemr/practice/internal/platform/blobstore"
	"github.com/bharatemr/practice/internal/platform/download"
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/internal/platform/session"
	"github.com/bharatemr/practice/internal/platform/validation"
	"github.com/bharatemr/practice/pkg/pagination"
)

// Handler serves the practice collections the client reads and writes.
type Handler struct {
	store  Store
	docs   blobstore.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewHandler(store Store, docs blobstore.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		docs:   docs,
		logger: logger.With().Str("component", "sandbox").Logger(),
		now:    time.Now,
	}
}

// RegisterRoutes registers the collections on the authenticated API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := auth.RequireRole(session.RoleDoctor)
	either := auth.RequireRole(session.RoleDoctor, session.RolePatient)

	doctors := api.Group("/doctors", doctor)
	doctors.GET("/patients", h.listPatients)
	doctors.POST("/patients", h.onboardPatient)
	doctors.GET("/patients/:id", h.getPatient)
	doctors.GET("/visits", h.listDoctorVisits)
	doctors.GET("/visits/:id", h.getVisit)
	doctors.GET("/follow-ups", h.listDoctorFollowUps)
	doctors.GET("/follow-ups/:id", h.getFollowUp)
	doctors.PUT("/follow-ups/:id/status", h.setFollowUpStatus)

	patients := api.Group("/patients", auth.RequireRole(session.RolePatient))
	patients.GET("/visits", h.listPatientVisits)
	patients.GET("/visits/:id", h.getVisit)
	patients.GET("/follow-ups", h.listPatientFollowUps)
	patients.GET("/follow-ups/:id", h.getFollowUp)

	visits := api.Group("/visits")
	visits.POST("", h.createVisit, doctor)
	visits.GET("/:id", h.getVisit, either)
	visits.PUT("/:id", h.updateVisit, doctor)
	visits.GET("/:id/prescription/pdf", h.prescription, either)
}

func currentUser(c echo.Context) session.User {
	u, _ := auth.UserFromContext(c.Request().Context())
	return u
}

// listQuery decodes the request with the collection's codec. Paging comes
// from the raw page and size parameters so any size up to the maximum is
// honoured.
func (h *Handler) listQuery(c echo.Context, schema *query.Schema, rules validation.RuleSet) (ListQuery, error) {
	now := h.now().UTC()
	st := schema.Decode(c.QueryParams())
	if errs := rules.ValidateAt(st.Filters, now); errs != nil {
		return ListQuery{}, echo.NewHTTPError(http.StatusBadRequest, errs[0].Message)
	}
	return ListQuery{State: st, Page: pagination.FromContext(c), Now: now}, nil
}

func (h *Handler) storeError(err error, what string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, what+" already exists")
	}
	h.logger.Error().Err(err).Str("record", what).Msg("store error")
	return echo.NewHTTPError(http.StatusInternalServerError, "Server error. Please try again later")
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

func (h *Handler) listPatients(c echo.Context) error {
	q, err := h.listQuery(c, patient.RegistrySchema, patient.FilterRules)
	if err != nil {
		return err
	}
	rows, total, err := h.store.ListPatients(c.Request().Context(), q)
	if err != nil {
		return h.storeError(err, "patient")
	}
	for i := range rows {
		rows[i].Age = patient.AgeAt(rows[i].DateOfBirth, q.Now)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(rows, total, q.Page))
}

func (h *Handler) getPatient(c echo.Context) error {
	p, err := h.store.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.storeError(err, "patient")
	}
	p.Age = patient.AgeAt(p.DateOfBirth, h.now())
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) onboardPatient(c echo.Context) error {
	var form patient.Onboarding
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	// The client sends country-coded numbers; the form rules check the
	// local ten digits.
	form.MobileNumber = strings.TrimPrefix(strings.TrimSpace(form.MobileNumber), patient.CountryCode)
	form.EmergencyContactNumber = strings.TrimPrefix(strings.TrimSpace(form.EmergencyContactNumber), patient.CountryCode)

	now := h.now().UTC()
	if errs := form.Validate(now); errs != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errs[0].Message)
	}

	body := form.Payload()
	id := uuid.NewString()
	p := &patient.Patient{
		ID:                     id,
		PatientID:              PatientCode(id),
		FullName:               body.FullName,
		Mobile:                 body.MobileNumber,
		Email:                  body.Email,
		DateOfBirth:            body.DateOfBirth,
		Gender:                 body.Gender,
		BloodGroup:             body.BloodGroup,
		Address:                body.Address,
		City:                   body.City,
		State:                  body.State,
		Pincode:                body.Pincode,
		EmergencyContactName:   body.EmergencyContactName,
		EmergencyContactNumber: body.EmergencyContactNumber,
		CreatedAt:              now,
	}
	if err := h.store.CreatePatient(c.Request().Context(), p); err != nil {
		return h.storeError(err, "patient")
	}
	h.logger.Info().Str("patient_id", id).Str("by", currentUser(c).ID).Msg("patient onboarded")
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// ---------------------------------------------------------------------------
// Visits
// ---------------------------------------------------------------------------

func (h *Handler) listVisits(c echo.Context, scope func(*ListQuery)) error {
	q, err := h.listQuery(c, visit.LogSchema, visit.FilterRules)
	if err != nil {
		return err
	}
	scope(&q)
	rows, total, err := h.store.ListVisits(c.Request().Context(), q)
	if err != nil {
		return h.storeError(err, "visit")
	}
	return c.JSON(http.StatusOK, pagination.NewPage(rows, total, q.Page))
}

// listDoctorVisits lists the signed-in doctor's visits; admins see all.
func (h *Handler) listDoctorVisits(c echo.Context) error {
	u := currentUser(c)
	return h.listVisits(c, func(q *ListQuery) {
		if u.Role != session.RoleAdmin {
			q.DoctorID = u.ID
		}
	})
}

// listPatientVisits lists the signed-in patient's own history.
func (h *Handler) listPatientVisits(c echo.Context) error {
	u := currentUser(c)
	return h.listVisits(c, func(q *ListQuery) {
		if u.Role != session.RoleAdmin {
			q.PatientID = u.ID
		}
	})
}

// loadVisit fetches the visit named in the path. Patients only see their
// own visits; others are reported as missing.
func (h *Handler) loadVisit(c echo.Context) (*visit.Visit, error) {
	v, err := h.store.GetVisit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, h.storeError(err, "visit")
	}
	if u := currentUser(c); u.Role == session.RolePatient && v.PatientID != u.ID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	return v, nil
}

func (h *Handler) getVisit(c echo.Context) error {
	v, err := h.loadVisit(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// checkPayload rejects a consultation the client could not have produced.
func checkPayload(p *consultation.Payload) error {
	if strings.TrimSpace(p.SubjectID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}
	for _, m := range p.Medicines {
		if !m.Complete() {
			return echo.NewHTTPError(http.StatusBadRequest, "every medicine needs a name")
		}
	}
	for _, t := range p.Tests {
		if !t.Complete() {
			return echo.NewHTTPError(http.StatusBadRequest, "every test needs a name")
		}
	}
	return nil
}

func applyPayload(enc *consultation.Encounter, p *consultation.Payload) {
	enc.History = p.History
	enc.Medicines = p.Medicines
	enc.Tests = p.Tests
	enc.FollowUp = p.FollowUp
	if enc.Medicines == nil {
		enc.Medicines = []consultation.PrescriptionLine{}
	}
	if enc.Tests == nil {
		enc.Tests = []consultation.TestOrder{}
	}
}

func (h *Handler) createVisit(c echo.Context) error {
	var p consultation.Payload
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := checkPayload(&p); err != nil {
		return err
	}
	ctx := c.Request().Context()
	pat, err := h.store.GetPatient(ctx, p.SubjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown patient")
		}
		return h.storeError(err, "patient")
	}

	u := currentUser(c)
	v := &visit.Visit{
		Encounter: consultation.Encounter{
			ID:        uuid.NewString(),
			PatientID: pat.ID,
			DoctorID:  u.ID,
			Status:    consultation.StatusCompleted,
			CreatedAt: h.now().UTC(),
		},
		PatientName: pat.FullName,
		DoctorName:  u.Name,
	}
	applyPayload(&v.Encounter, &p)
	if err := h.store.CreateVisit(ctx, v); err != nil {
		return h.storeError(err, "visit")
	}
	h.logger.Info().Str("visit_id", v.ID).Str("patient_id", pat.ID).Str("doctor_id", u.ID).Msg("visit recorded")
	return c.JSON(http.StatusCreated, map[string]string{"id": v.ID})
}

// updateVisit replaces the clinical content of a visit. The patient, doctor
// and recorded time are kept; the last write wins.
func (h *Handler) updateVisit(c echo.Context) error {
	var p consultation.Payload
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := checkPayload(&p); err != nil {
		return err
	}
	v, err := h.loadVisit(c)
	if err != nil {
		return err
	}
	if p.SubjectID != v.PatientID {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId does not match the visit")
	}
	applyPayload(&v.Encounter, &p)
	if err := h.store.UpdateVisit(c.Request().Context(), v); err != nil {
		return h.storeError(err, "visit")
	}
	h.logger.Info().Str("visit_id", v.ID).Str("by", currentUser(c).ID).Msg("visit updated")
	return c.JSON(http.StatusOK, map[string]string{"id": v.ID})
}

// prescription renders the visit's prescription, caches it in the document
// store and streams it as an attachment.
func (h *Handler) prescription(c echo.Context) error {
	v, err := h.loadVisit(c)
	if err != nil {
		return err
	}
	pdf, err := RenderPrescription(*v)
	if err != nil {
		h.logger.Error().Err(err).Str("visit_id", v.ID).Msg("failed to render prescription")
		return echo.NewHTTPError(http.StatusInternalServerError, "Server error. Please try again later")
	}
	meta, err := h.docs.Upload(c.Request().Context(), blobstore.BlobMetadata{
		ID:          "rx-" + v.ID,
		FileName:    download.PrescriptionFilename(v.ID),
		ContentType: "application/pdf",
		PatientID:   v.PatientID,
		VisitID:     v.ID,
		Category:    blobstore.CategoryPrescription,
	}, bytes.NewReader(pdf))
	if err != nil {
		h.logger.Error().Err(err).Str("visit_id", v.ID).Msg("failed to store prescription")
		return echo.NewHTTPError(http.StatusInternalServerError, "Server error. Please try again later")
	}
	return blobstore.Serve(c, h.docs, meta.ID)
}

// ---------------------------------------------------------------------------
// Follow-ups
// ---------------------------------------------------------------------------

func (h *Handler) listFollowUps(c echo.Context, scope func(*ListQuery)) error {
	q, err := h.listQuery(c, followup.ScheduleSchema, followup.FilterRules)
	if err != nil {
		return err
	}
	scope(&q)
	rows, total, err := h.store.ListFollowUps(c.Request().Context(), q)
	if err != nil {
		return h.storeError(err, "follow-up")
	}
	return c.JSON(http.StatusOK, pagination.NewPage(rows, total, q.Page))
}

// listDoctorFollowUps lists the follow-ups the signed-in doctor booked;
// admins see all.
func (h *Handler) listDoctorFollowUps(c echo.Context) error {
	u := currentUser(c)
	return h.listFollowUps(c, func(q *ListQuery) {
		if u.Role != session.RoleAdmin {
			q.DoctorID = u.ID
		}
	})
}

func (h *Handler) listPatientFollowUps(c echo.Context) error {
	u := currentUser(c)
	return h.listFollowUps(c, func(q *ListQuery) {
		if u.Role != session.RoleAdmin {
			q.PatientID = u.ID
		}
	})
}

// loadFollowUp fetches the follow-up named in the path. Doctors see the
// ones they booked and patients their own; others are reported as missing.
func (h *Handler) loadFollowUp(c echo.Context) (*followup.FollowUp, error) {
	f, err := h.store.GetFollowUp(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, h.storeError(err, "follow-up")
	}
	u := currentUser(c)
	if (u.Role == session.RolePatient && f.PatientID != u.ID) || (u.Role == session.RoleDoctor && f.DoctorID != u.ID) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "follow-up not found")
	}
	return f, nil
}

func (h *Handler) getFollowUp(c echo.Context) error {
	f, err := h.loadFollowUp(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

// setFollowUpStatus records the outcome of a scheduled follow-up. The
// status comes in the JSON body or, as older clients send it, in the query.
func (h *Handler) setFollowUpStatus(c echo.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.Status == "" {
		body.Status = c.QueryParam("status")
	}
	status := followup.Status(strings.ToUpper(strings.TrimSpace(body.Status)))
	if !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown follow-up status")
	}

	f, err := h.loadFollowUp(c)
	if err != nil {
		return err
	}
	if !followup.CanTransition(f.Status, status) {
		return echo.NewHTTPError(http.StatusConflict, "Only scheduled follow-ups can be updated")
	}
	if err := h.store.SetFollowUpStatus(c.Request().Context(), f.ID, f.Status, status); err != nil {
		if errors.Is(err, ErrConflict) {
			return echo.NewHTTPError(http.StatusConflict, "Only scheduled follow-ups can be updated")
		}
		return h.storeError(err, "follow-up")
	}
	h.logger.Info().Str("follow_up_id", f.ID).Str("status", string(status)).Str("by", currentUser(c).ID).Msg("follow-up updated")
	f.Status = status
	return c.JSON(http.StatusOK, f)
}
