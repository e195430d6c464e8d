package visit

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/domain/consultation"
	"github.com/bharatemr/practice/internal/platform/browser"
	"github.com/bharatemr/practice/internal/platform/datasource"
	"github.com/bharatemr/practice/internal/platform/export"
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/internal/platform/session"
)

type Service struct {
	client   *datasource.Client
	identity session.Provider
	logger   zerolog.Logger
}

func NewService(client *datasource.Client, identity session.Provider, logger zerolog.Logger) *Service {
	return &Service{
		client:   client,
		identity: identity,
		logger:   logger.With().Str("component", "visits").Logger(),
	}
}

// HistoryKind picks the collection the signed-in user may browse: doctors see
// the visits they recorded, patients their own.
func HistoryKind(identity session.Provider) (datasource.ResourceKind, error) {
	if identity == nil {
		return "", consultation.ErrNotPermitted
	}
	u, ok := identity.CurrentUser()
	switch {
	case !ok:
		return "", consultation.ErrNotPermitted
	case u.IsDoctor():
		return datasource.DoctorVisits, nil
	case u.IsPatient():
		return datasource.PatientVisits, nil
	}
	return "", consultation.ErrNotPermitted
}

// Log returns an idle browser over the user's visit history.
func (s *Service) Log() (*browser.Browser[Visit], error) {
	kind, err := HistoryKind(s.identity)
	if err != nil {
		return nil, err
	}
	res := datasource.Resource[Visit]{Client: s.client, Kind: kind, Schema: LogSchema}
	return browser.New[Visit](LogSchema, res, s.logger), nil
}

// GetVisit fetches one visit through the user's history collection.
func (s *Service) GetVisit(ctx context.Context, id string) (*Visit, error) {
	kind, err := HistoryKind(s.identity)
	if err != nil {
		return nil, err
	}
	return datasource.Get[Visit](ctx, s.client, kind, id)
}

// Save stores a submitted consultation. Edit-mode payloads replace the
// original encounter; everything else creates a new one.
func (s *Service) Save(ctx context.Context, p *consultation.Payload) (datasource.RecordID, error) {
	if p == nil {
		return "", errors.New("payload is required")
	}
	if p.SubjectID == "" {
		return "", errors.New("payload has no patient id")
	}

	log := s.logger.With().Str("patient_id", p.SubjectID).Logger()
	if p.IsUpdate() {
		if err := s.client.Update(ctx, datasource.Visits, p.OriginalEncounterID, p); err != nil {
			log.Error().Err(err).Str("visit_id", p.OriginalEncounterID).Msg("failed to update consultation")
			return "", err
		}
		log.Info().Str("visit_id", p.OriginalEncounterID).Msg("consultation updated")
		return datasource.RecordID(p.OriginalEncounterID), nil
	}

	id, err := s.client.Create(ctx, datasource.Visits, p)
	if err != nil {
		log.Error().Err(err).Msg("failed to save consultation")
		return "", err
	}
	log.Info().Str("visit_id", string(id)).Msg("consultation saved")
	return id, nil
}

// Edit loads a visit and opens an edit-mode workflow over it.
func (s *Service) Edit(ctx context.Context, id string) (*consultation.Workflow, error) {
	v, err := datasource.Get[consultation.Encounter](ctx, s.client, datasource.Visits, id)
	if err != nil {
		return nil, err
	}
	return consultation.EditWorkflow(s.identity, *v, s.logger)
}

// Export writes every visit of the user's history matching st to a
// spreadsheet.
func (s *Service) Export(ctx context.Context, st query.State) ([]byte, error) {
	kind, err := HistoryKind(s.identity)
	if err != nil {
		return nil, err
	}
	res := datasource.Resource[Visit]{Client: s.client, Kind: kind, Schema: LogSchema}
	rows, err := export.Collect[Visit](ctx, res, LogSchema, st)
	if err != nil {
		return nil, err
	}
	return export.Write(LogSheet, rows)
}
