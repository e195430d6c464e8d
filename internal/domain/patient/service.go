package patient

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/browser"
	"github.com/bharatemr/practice/internal/platform/datasource"
	"github.com/bharatemr/practice/internal/platform/export"
	"github.com/bharatemr/practice/internal/platform/query"
)

type Service struct {
	client *datasource.Client
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(client *datasource.Client, logger zerolog.Logger) *Service {
	return &Service{
		client: client,
		logger: logger.With().Str("component", "patients").Logger(),
		now:    time.Now,
	}
}

// Registry returns an idle browser over the doctor's patients.
func (s *Service) Registry() *browser.Browser[Patient] {
	res := datasource.Resource[Patient]{Client: s.client, Kind: datasource.DoctorPatients, Schema: RegistrySchema}
	return browser.New[Patient](RegistrySchema, res, s.logger)
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return datasource.Get[Patient](ctx, s.client, datasource.DoctorPatients, id)
}

// Onboard validates the form and registers the patient. Validation failures
// come back as validation.Errors and nothing is sent.
func (s *Service) Onboard(ctx context.Context, form Onboarding) (datasource.RecordID, error) {
	if errs := form.Validate(s.now()); errs != nil {
		return "", errs
	}
	id, err := s.client.Create(ctx, datasource.DoctorPatients, form.Payload())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to onboard patient")
		return "", err
	}
	s.logger.Info().Str("patient_id", string(id)).Msg("patient onboarded")
	return id, nil
}

// Export writes every patient matching st to a spreadsheet.
func (s *Service) Export(ctx context.Context, st query.State) ([]byte, error) {
	res := datasource.Resource[Patient]{Client: s.client, Kind: datasource.DoctorPatients, Schema: RegistrySchema}
	rows, err := export.Collect[Patient](ctx, res, RegistrySchema, st)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("rows", len(rows)).Msg("registry exported")
	return export.Write(RegistrySheet, rows)
}
