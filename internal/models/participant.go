package models

import (
	"fmt"
	"time"
)

// ParticipantKind identifies which profile table a chat actor belongs to.
type ParticipantKind string

const (
	// KindPatient marks a patient profile.
	KindPatient ParticipantKind = "patient"
	// KindProvider marks a care-provider profile.
	KindProvider ParticipantKind = "provider"
)

// Valid reports whether the kind is one of the known participant kinds.
func (k ParticipantKind) Valid() bool {
	return k == KindPatient || k == KindProvider
}

// ParticipantRef uniquely identifies a chat participant across the two
// profile tables.
type ParticipantRef struct {
	ID   uint            `json:"id"`
	Kind ParticipantKind `json:"kind"`
}

// Key returns the canonical string form used for member-set hashing and
// connection routing, e.g. "patient:42".
func (r ParticipantRef) Key() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// ParticipantProfile is the resolved display view of a participant used to
// enrich outbound messages and notifications.
type ParticipantProfile struct {
	Ref       ParticipantRef
	Name      string
	AvatarURL string
}

// Provider is the minimal care-provider profile owned by the profile CRUD
// collaborator. Rows are looked up here, never created or deleted.
type Provider struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Subject   string    `gorm:"size:64;uniqueIndex;not null" json:"subject"`
	Name      string    `gorm:"size:255" json:"name"`
	AvatarURL string    `gorm:"size:512" json:"avatar_url"`
	Specialty string    `gorm:"size:128" json:"specialty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the participant reference for the provider.
func (p Provider) Ref() ParticipantRef {
	return ParticipantRef{ID: p.ID, Kind: KindProvider}
}

// Patient is the minimal patient profile owned by the profile CRUD
// collaborator.
type Patient struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Subject   string    `gorm:"size:64;uniqueIndex;not null" json:"subject"`
	Name      string    `gorm:"size:255" json:"name"`
	AvatarURL string    `gorm:"size:512" json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the participant reference for the patient.
func (p Patient) Ref() ParticipantRef {
	return ParticipantRef{ID: p.ID, Kind: KindPatient}
}
