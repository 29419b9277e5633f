package cloudinary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceTypeFor(t *testing.T) {
	cases := []struct {
		mime string
		want string
	}{
		{"image/png", "image"},
		{"image/jpeg", "image"},
		{"video/mp4", "video"},
		{"audio/mpeg", "video"},
		{"application/pdf", "raw"},
		{"", "raw"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ResourceTypeFor(tc.mime), tc.mime)
	}
}

func TestBuildPublicID(t *testing.T) {
	require.Equal(t, "chats/ab12/provider-7/x-ray", buildPublicID("chats/ab12/provider:7/x ray.png"))
	require.Equal(t, "scan", buildPublicID("/scan.pdf/"))

	// a name with nothing usable still yields a key
	require.NotEmpty(t, buildPublicID("///..."))
}
