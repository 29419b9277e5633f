package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/models"
	"github.com/medlink-health/medlink-api/internal/repository"
)

// IdentityClaims is the decoded, already-verified identity assertion handed
// in by the auth middleware: the stable subject id plus zero or more group
// memberships from the external identity provider.
type IdentityClaims struct {
	Subject string
	Groups  []string
}

// IdentityService maps an external caller identity onto the internal
// participant profile usable as a chat foreign key.
type IdentityService interface {
	Resolve(ctx context.Context, claims IdentityClaims) (models.ParticipantProfile, error)
}

type identityService struct {
	repo   repository.ParticipantRepository
	logger zerolog.Logger
}

// NewIdentityService constructs an identity resolver over the participant
// profile tables.
func NewIdentityService(repo repository.ParticipantRepository, logger zerolog.Logger) IdentityService {
	return &identityService{
		repo:   repo,
		logger: logger.With().Str("component", "identity_service").Logger(),
	}
}

// Resolve looks the subject up by indexed external id. When a group claim
// names the participant kind the matching table is queried directly,
// otherwise provider is tried before patient. A verified token without a
// profile resolves to ErrParticipantNotFound; completing the profile is the
// profile CRUD collaborator's job.
func (s *identityService) Resolve(ctx context.Context, claims IdentityClaims) (models.ParticipantProfile, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return models.ParticipantProfile{}, ErrParticipantNotFound
	}

	switch kindFromGroups(claims.Groups) {
	case models.KindProvider:
		return s.resolveProvider(ctx, subject)
	case models.KindPatient:
		return s.resolvePatient(ctx, subject)
	}

	profile, err := s.resolveProvider(ctx, subject)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrParticipantNotFound) {
		return models.ParticipantProfile{}, err
	}

	return s.resolvePatient(ctx, subject)
}

func (s *identityService) resolveProvider(ctx context.Context, subject string) (models.ParticipantProfile, error) {
	provider, err := s.repo.FindProviderBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ParticipantProfile{}, ErrParticipantNotFound
		}
		return models.ParticipantProfile{}, err
	}
	return models.ParticipantProfile{Ref: provider.Ref(), Name: provider.Name, AvatarURL: provider.AvatarURL}, nil
}

func (s *identityService) resolvePatient(ctx context.Context, subject string) (models.ParticipantProfile, error) {
	patient, err := s.repo.FindPatientBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ParticipantProfile{}, ErrParticipantNotFound
		}
		return models.ParticipantProfile{}, err
	}
	return models.ParticipantProfile{Ref: patient.Ref(), Name: patient.Name, AvatarURL: patient.AvatarURL}, nil
}

func kindFromGroups(groups []string) models.ParticipantKind {
	for _, group := range groups {
		switch strings.ToLower(strings.TrimSpace(group)) {
		case "provider", "providers", "doctor", "doctors":
			return models.KindProvider
		case "patient", "patients":
			return models.KindPatient
		}
	}
	return ""
}
