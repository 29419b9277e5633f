package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemberSetHashOrderAndDuplicateInvariant(t *testing.T) {
	doctor := ParticipantRef{ID: 7, Kind: KindProvider}
	patient := ParticipantRef{ID: 3, Kind: KindPatient}

	base := MemberSetHash([]ParticipantRef{doctor, patient})
	require.Len(t, base, 64)
	require.Equal(t, base, MemberSetHash([]ParticipantRef{patient, doctor}))
	require.Equal(t, base, MemberSetHash([]ParticipantRef{doctor, patient, doctor}))

	// same id under a different kind is a different set
	require.NotEqual(t, base, MemberSetHash([]ParticipantRef{
		{ID: 7, Kind: KindPatient},
		patient,
	}))
}

func TestParticipantRefKey(t *testing.T) {
	require.Equal(t, "patient:42", ParticipantRef{ID: 42, Kind: KindPatient}.Key())
	require.Equal(t, "provider:7", ParticipantRef{ID: 7, Kind: KindProvider}.Key())
}

func TestChatMessageHasMedia(t *testing.T) {
	require.False(t, ChatMessage{TextType: TextTypeString}.HasMedia())
	require.False(t, ChatMessage{TextType: TextTypeSystem}.HasMedia())
	require.False(t, ChatMessage{}.HasMedia())
	require.True(t, ChatMessage{TextType: "image/png"}.HasMedia())
}

func TestChatParticipantActive(t *testing.T) {
	now := time.Now()
	require.True(t, ChatParticipant{}.Active())
	require.False(t, ChatParticipant{LeftAt: &now}.Active())
}
