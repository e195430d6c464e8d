// Package sandbox is a small practice backend for demos and integration
// tests. It serves the same REST collections the client talks to, backed by
// an in-memory or Postgres store filled with reproducible synthetic data.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/domain/consultation"
	"github.com/bharatemr/practice/internal/domain/patient"
	"github.com/bharatemr/practice/internal/domain/visit"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of generated data.
type SeedConfig struct {
	PatientCount        int   `json:"patientCount"`
	DoctorCount         int   `json:"doctorCount"`
	MaxVisitsPerPatient int   `json:"maxVisitsPerPatient"`
	Seed                int64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		PatientCount:        60,
		DoctorCount:         3,
		MaxVisitsPerPatient: 4,
		Seed:                42,
	}
}

func (c SeedConfig) withDefaults() SeedConfig {
	d := DefaultSeedConfig()
	if c.PatientCount < 0 {
		c.PatientCount = 0
	}
	if c.DoctorCount <= 0 {
		c.DoctorCount = d.DoctorCount
	}
	if c.MaxVisitsPerPatient <= 0 {
		c.MaxVisitsPerPatient = d.MaxVisitsPerPatient
	}
	return c
}

// SeedResult summarizes a seed run.
type SeedResult struct {
	Doctors   int           `json:"doctors"`
	Patients  int           `json:"patients"`
	Visits    int           `json:"visits"`
	FollowUps int           `json:"followUps"`
	Duration  time.Duration `json:"duration"`
}

// Doctor is a seeded practitioner. Tokens minted for Doctor.ID see the
// visits recorded under it.
type Doctor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DoctorID returns the id of the n-th seeded doctor, counting from 1.
func DoctorID(n int) string {
	return fmt.Sprintf("D-%03d", n)
}

// ---------------------------------------------------------------------------
// Pools
// ---------------------------------------------------------------------------

var (
	firstNamesMale = []string{
		"Aarav", "Vivaan", "Aditya", "Arjun", "Rohan", "Karthik", "Siddharth", "Rahul",
		"Vikram", "Anil", "Suresh", "Manoj", "Imran", "Harpreet", "Ravi", "Nikhil",
	}
	firstNamesFemale = []string{
		"Ananya", "Diya", "Meera", "Priya", "Kavya", "Lakshmi", "Sneha", "Pooja",
		"Asha", "Fatima", "Neha", "Divya", "Sunita", "Gurleen", "Nandini", "Radha",
	}
	lastNames = []string{
		"Sharma", "Iyer", "Reddy", "Nair", "Patel", "Gupta", "Singh", "Khan",
		"Menon", "Rao", "Das", "Joshi", "Mehta", "Pillai", "Banerjee", "Kulkarni",
	}
	streets = []string{
		"12 MG Road", "45 Park Street", "7 Residency Road", "221 Anna Salai",
		"3 Linking Road", "88 Church Street", "16 Brigade Road", "9 Civil Lines",
	}
	places = []struct{ City, State, PinPrefix string }{
		{"Mumbai", "Maharashtra", "400"},
		{"Pune", "Maharashtra", "411"},
		{"Bengaluru", "Karnataka", "560"},
		{"Chennai", "Tamil Nadu", "600"},
		{"Hyderabad", "Telangana", "500"},
		{"Kolkata", "West Bengal", "700"},
		{"Kochi", "Kerala", "682"},
		{"Jaipur", "Rajasthan", "302"},
	}
	complaints = []struct{ Complaint, Illness string }{
		{"Fever", "High grade fever for three days with body ache"},
		{"Cough", "Dry cough for a week, worse at night"},
		{"Headache", "Recurring frontal headache since two weeks"},
		{"Abdominal pain", "Epigastric pain after meals"},
		{"Joint pain", "Pain and stiffness in both knees"},
		{"Sore throat", "Painful swallowing since two days"},
		{"Back pain", "Lower back pain after lifting"},
		{"Skin rash", "Itchy rash on forearms"},
	}
	medicines = []struct{ Name, Dosage, Duration string }{
		{"Paracetamol", "650 mg", "5 days"},
		{"Azithromycin", "500 mg", "3 days"},
		{"Pantoprazole", "40 mg", "14 days"},
		{"Cetirizine", "10 mg", "7 days"},
		{"Ibuprofen", "400 mg", "5 days"},
		{"Amoxicillin", "500 mg", "7 days"},
		{"Vitamin D3", "60000 IU", "8 weeks"},
		{"ORS", "1 sachet", "3 days"},
	}
	tests = []string{
		"Complete blood count", "Blood sugar (fasting)", "Lipid profile", "Thyroid profile",
		"Liver function test", "Urine routine", "Chest X-ray", "HbA1c",
	}
	doctorNames = []string{
		"Dr. Kavita Rao", "Dr. Arvind Menon", "Dr. Shalini Gupta", "Dr. Farhan Qureshi",
		"Dr. Deepak Joshi", "Dr. Nisha Pillai",
	}
	instructions = []string{"After food", "Before food", "At bedtime", ""}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic patients and visits.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

// nextID draws a UUID from the seeded source so reruns reproduce ids.
func (g *DataGenerator) nextID() string {
	return uuid.Must(uuid.NewRandomFromReader(g.rng)).String()
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) randomDate(minYear, maxYear int) string {
	y := minYear + g.rng.Intn(maxYear-minYear+1)
	m := 1 + g.rng.Intn(12)
	d := 1 + g.rng.Intn(28) // safe for all months
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// randomMobile returns a ten-digit Indian mobile number.
func (g *DataGenerator) randomMobile() string {
	return fmt.Sprintf("%d%09d", 6+g.rng.Intn(4), g.rng.Intn(1_000_000_000))
}

// randomPast returns a time up to days before now.
func (g *DataGenerator) randomPast(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(g.rng.Int63n(int64(days) * int64(24*time.Hour)))).Truncate(time.Minute)
}

func (g *DataGenerator) GenerateDoctor(n int) Doctor {
	return Doctor{ID: DoctorID(n), Name: doctorNames[(n-1)%len(doctorNames)]}
}

// GeneratePatient produces a registered patient as of now.
func (g *DataGenerator) GeneratePatient(now time.Time) patient.Patient {
	gender := patient.Genders[g.rng.Intn(2)]
	first := g.pick(firstNamesMale)
	if gender == "FEMALE" {
		first = g.pick(firstNamesFemale)
	}
	last := g.pick(lastNames)
	place := places[g.rng.Intn(len(places))]
	id := g.nextID()

	p := patient.Patient{
		ID:                     id,
		PatientID:              PatientCode(id),
		FullName:               first + " " + last,
		Mobile:                 patient.CountryCode + g.randomMobile(),
		DateOfBirth:            g.randomDate(now.Year()-85, now.Year()-1),
		Gender:                 gender,
		BloodGroup:             g.pick(patient.BloodGroups),
		Address:                g.pick(streets),
		City:                   place.City,
		State:                  place.State,
		Pincode:                fmt.Sprintf("%s%03d", place.PinPrefix, g.rng.Intn(1000)),
		EmergencyContactName:   g.pick(firstNamesFemale) + " " + last,
		EmergencyContactNumber: patient.CountryCode + g.randomMobile(),
		CreatedAt:              g.randomPast(now, 365),
	}
	if g.rng.Intn(3) > 0 {
		p.Email = fmt.Sprintf("%s.%s@example.in", strings.ToLower(first), strings.ToLower(last))
	}
	p.Age = patient.AgeAt(p.DateOfBirth, now)
	return p
}

// GenerateVisit produces a completed consultation of p by doc, recorded
// after the patient registered.
func (g *DataGenerator) GenerateVisit(p patient.Patient, doc Doctor, now time.Time) visit.Visit {
	c := complaints[g.rng.Intn(len(complaints))]
	recorded := now
	if span := now.Sub(p.CreatedAt); span > 0 {
		recorded = p.CreatedAt.Add(time.Duration(g.rng.Int63n(int64(span)))).Truncate(time.Minute)
	}

	enc := consultation.Encounter{
		ID:        g.nextID(),
		PatientID: p.ID,
		History: consultation.History{
			ChiefComplaint: c.Complaint,
			PresentIllness: c.Illness,
			ClinicalNotes:  "Vitals stable",
		},
		DoctorID:  doc.ID,
		Status:    consultation.StatusCompleted,
		CreatedAt: recorded,
	}

	for i := 0; i < 1+g.rng.Intn(3); i++ {
		m := medicines[g.rng.Intn(len(medicines))]
		enc.Medicines = append(enc.Medicines, consultation.PrescriptionLine{
			MedicineName: m.Name,
			Dosage:       m.Dosage,
			Frequency:    consultation.Frequencies[g.rng.Intn(len(consultation.Frequencies))],
			Duration:     m.Duration,
			Instructions: g.pick(instructions),
		})
	}
	for i := 0; i < g.rng.Intn(3); i++ {
		enc.Tests = append(enc.Tests, consultation.TestOrder{TestName: g.pick(tests)})
	}
	if enc.Tests == nil {
		enc.Tests = []consultation.TestOrder{}
	}
	if g.rng.Intn(2) == 0 {
		d := enc.CreatedAt.AddDate(0, 0, 7+g.rng.Intn(21))
		enc.FollowUp = &consultation.FollowUp{
			ScheduledDate: consultation.NewDate(d.Year(), d.Month(), d.Day()),
			Notes:         "Review with reports",
		}
	}
	return visit.Visit{Encounter: enc, PatientName: p.FullName, DoctorName: doc.Name}
}

// PatientCode is the human-facing registry number derived from a record id.
func PatientCode(id string) string {
	code := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(code) > 8 {
		code = code[:8]
	}
	return "PT-" + code
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder fills a Store with generated data.
type Seeder struct {
	generator *DataGenerator
	config    SeedConfig
	doctors   []Doctor
	now       func() time.Time
}

func NewSeeder(config SeedConfig) *Seeder {
	config = config.withDefaults()
	return &Seeder{
		generator: NewDataGenerator(config.Seed),
		config:    config,
		now:       time.Now,
	}
}

// Doctors returns the doctors of the last run.
func (s *Seeder) Doctors() []Doctor {
	return append([]Doctor(nil), s.doctors...)
}

// Generate resets store and writes a fresh data set into it.
func (s *Seeder) Generate(ctx context.Context, store Store) (*SeedResult, error) {
	start := time.Now()
	now := s.now().UTC()

	if err := store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset store: %w", err)
	}

	result := &SeedResult{}
	s.doctors = s.doctors[:0]
	for i := 1; i <= s.config.DoctorCount; i++ {
		s.doctors = append(s.doctors, s.generator.GenerateDoctor(i))
	}
	result.Doctors = len(s.doctors)

	for i := 0; i < s.config.PatientCount; i++ {
		p := s.generator.GeneratePatient(now)
		if err := store.CreatePatient(ctx, &p); err != nil {
			return nil, fmt.Errorf("create patient %s: %w", p.ID, err)
		}
		result.Patients++

		// Round-robin the primary doctor; some patients have no visits yet.
		doc := s.doctors[i%len(s.doctors)]
		n := s.generator.rng.Intn(s.config.MaxVisitsPerPatient + 1)
		for j := 0; j < n; j++ {
			v := s.generator.GenerateVisit(p, doc, now)
			if err := store.CreateVisit(ctx, &v); err != nil {
				return nil, fmt.Errorf("create visit %s: %w", v.ID, err)
			}
			result.Visits++
			if v.FollowUp != nil && v.FollowUp.Active() {
				result.FollowUps++
			}
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// ---------------------------------------------------------------------------
// SeedHandler
// ---------------------------------------------------------------------------

// SeedHandler exposes reseeding and reset of the sandbox store.
type SeedHandler struct {
	store  Store
	logger zerolog.Logger
	mu     sync.Mutex
}

func NewSeedHandler(store Store, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{store: store, logger: logger}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
	g.POST("/reset", h.handleReset)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := DefaultSeedConfig()
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid seed config")
	}

	seeder := NewSeeder(cfg)
	result, err := seeder.Generate(c.Request().Context(), h.store)
	if err != nil {
		h.logger.Error().Err(err).Msg("seed failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "seed failed")
	}
	h.logger.Info().Int("patients", result.Patients).Int("visits", result.Visits).Int("follow_ups", result.FollowUps).Msg("sandbox seeded")
	return c.JSON(http.StatusOK, map[string]any{"result": result, "doctors": seeder.Doctors()})
}

func (h *SeedHandler) handleReset(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.store.Reset(c.Request().Context()); err != nil {
		h.logger.Error().Err(err).Msg("reset failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "reset failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}
