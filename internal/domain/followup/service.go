package followup

import (
	"context"
	"fmt"

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
		logger:   logger.With().Str("component", "followups").Logger(),
	}
}

// ScheduleKind picks the collection the signed-in user may browse: doctors
// see the follow-ups they booked, patients their own appointments.
func ScheduleKind(identity session.Provider) (datasource.ResourceKind, error) {
	if identity == nil {
		return "", consultation.ErrNotPermitted
	}
	u, ok := identity.CurrentUser()
	switch {
	case !ok:
		return "", consultation.ErrNotPermitted
	case u.IsDoctor():
		return datasource.DoctorFollowUps, nil
	case u.IsPatient():
		return datasource.PatientFollowUps, nil
	}
	return "", consultation.ErrNotPermitted
}

func (s *Service) resource() (datasource.Resource[FollowUp], error) {
	kind, err := ScheduleKind(s.identity)
	if err != nil {
		return datasource.Resource[FollowUp]{}, err
	}
	return datasource.Resource[FollowUp]{Client: s.client, Kind: kind, Schema: ScheduleSchema}, nil
}

// Schedule returns an idle browser over the user's follow-ups.
func (s *Service) Schedule() (*browser.Browser[FollowUp], error) {
	res, err := s.resource()
	if err != nil {
		return nil, err
	}
	return browser.New[FollowUp](ScheduleSchema, res, s.logger), nil
}

// Get fetches one follow-up through the user's schedule collection.
func (s *Service) Get(ctx context.Context, id string) (*FollowUp, error) {
	kind, err := ScheduleKind(s.identity)
	if err != nil {
		return nil, err
	}
	return datasource.Get[FollowUp](ctx, s.client, kind, id)
}

// SetStatus records the outcome of a scheduled follow-up and, when a
// schedule browser is given, reloads its current page.
func (s *Service) SetStatus(ctx context.Context, schedule *browser.Browser[FollowUp], id string, status Status) error {
	if kind, err := ScheduleKind(s.identity); err != nil || kind != datasource.DoctorFollowUps {
		return consultation.ErrNotPermitted
	}
	if !status.Valid() || status == Scheduled {
		return fmt.Errorf("cannot set follow-up status to %q", status)
	}

	log := s.logger.With().Str("follow_up_id", id).Str("status", string(status)).Logger()
	if err := s.client.UpdateField(ctx, datasource.DoctorFollowUps, id, "status", map[string]Status{"status": status}); err != nil {
		log.Error().Err(err).Msg("failed to update follow-up status")
		return err
	}
	log.Info().Msg("follow-up status updated")

	if schedule == nil {
		return nil
	}
	return schedule.Refresh()
}

// Export writes every follow-up of the user's schedule matching st to a
// spreadsheet.
func (s *Service) Export(ctx context.Context, st query.State) ([]byte, error) {
	res, err := s.resource()
	if err != nil {
		return nil, err
	}
	rows, err := export.Collect[FollowUp](ctx, res, ScheduleSchema, st)
	if err != nil {
		return nil, err
	}
	return export.Write(ScheduleSheet, rows)
}
