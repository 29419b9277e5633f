package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/medlink-health/medlink-api/internal/models"
)

// ParticipantRepository reads patient and provider profiles owned by the
// profile CRUD collaborator. Lookups by subject run against the unique
// subject index, never a scan.
type ParticipantRepository interface {
	FindProviderBySubject(ctx context.Context, subject string) (models.Provider, error)
	FindPatientBySubject(ctx context.Context, subject string) (models.Patient, error)
	Profile(ctx context.Context, ref models.ParticipantRef) (models.ParticipantProfile, error)
}

type participantRepository struct {
	db *gorm.DB
}

// NewParticipantRepository constructs a participant repository backed by GORM.
func NewParticipantRepository(db *gorm.DB) ParticipantRepository {
	return &participantRepository{db: db}
}

func (r *participantRepository) FindProviderBySubject(ctx context.Context, subject string) (models.Provider, error) {
	var provider models.Provider
	if err := r.db.WithContext(ctx).Where("subject = ?", subject).First(&provider).Error; err != nil {
		return models.Provider{}, err
	}
	return provider, nil
}

func (r *participantRepository) FindPatientBySubject(ctx context.Context, subject string) (models.Patient, error) {
	var patient models.Patient
	if err := r.db.WithContext(ctx).Where("subject = ?", subject).First(&patient).Error; err != nil {
		return models.Patient{}, err
	}
	return patient, nil
}

func (r *participantRepository) Profile(ctx context.Context, ref models.ParticipantRef) (models.ParticipantProfile, error) {
	switch ref.Kind {
	case models.KindProvider:
		var provider models.Provider
		if err := r.db.WithContext(ctx).First(&provider, ref.ID).Error; err != nil {
			return models.ParticipantProfile{}, err
		}
		return models.ParticipantProfile{Ref: ref, Name: provider.Name, AvatarURL: provider.AvatarURL}, nil
	case models.KindPatient:
		var patient models.Patient
		if err := r.db.WithContext(ctx).First(&patient, ref.ID).Error; err != nil {
			return models.ParticipantProfile{}, err
		}
		return models.ParticipantProfile{Ref: ref, Name: patient.Name, AvatarURL: patient.AvatarURL}, nil
	default:
		return models.ParticipantProfile{}, gorm.ErrRecordNotFound
	}
}
