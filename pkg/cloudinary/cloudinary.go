package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/asset"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary. AuthTokenKey
// is optional; without it signed URLs carry a signature but no expiry.
type Config struct {
	CloudName    string
	APIKey       string
	APISecret    string
	Folder       string
	AuthTokenKey string
}

// Service is the blob-store collaborator: key addressed storage with
// time-limited retrieval URL issuance and best-effort purge.
type Service struct {
	client   *cloudinary.Cloudinary
	folder   string
	tokenKey string
	logger   zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client:   cld,
		folder:   strings.Trim(cfg.Folder, "/"),
		tokenKey: cfg.AuthTokenKey,
		logger:   logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Store uploads the blob under a deterministic key derived from the caller
// supplied name. It returns the storage key and the resource class the blob
// was filed under, never a delivery URL.
func (s *Service) Store(ctx context.Context, name string, reader io.Reader) (string, string, error) {
	publicID := buildPublicID(name)

	result, err := s.client.Upload.Upload(ctx, reader, uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		ResourceType: "auto",
		Overwrite:    api.Bool(true),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload asset: %w", err)
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("resource_type", result.ResourceType).Msg("blob stored")

	return result.PublicID, result.ResourceType, nil
}

// SignedURL resolves a storage key to a signed, short-lived delivery URL.
func (s *Service) SignedURL(ctx context.Context, key, resourceType string, ttl time.Duration) (string, error) {
	media, err := s.assetFor(key, resourceType)
	if err != nil {
		return "", err
	}

	media.Config.URL.SignURL = true
	if s.tokenKey != "" && ttl > 0 {
		media.Config.AuthToken.Key = s.tokenKey
		media.Config.AuthToken.Duration = int64(ttl.Seconds())
	}

	url, err := media.String()
	if err != nil {
		return "", fmt.Errorf("failed to build signed url: %w", err)
	}
	return url, nil
}

// Destroy removes the blob and invalidates cached CDN copies.
func (s *Service) Destroy(ctx context.Context, key, resourceType string) error {
	if resourceType == "" {
		resourceType = "image"
	}

	_, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     key,
		ResourceType: resourceType,
		Invalidate:   api.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to destroy asset: %w", err)
	}

	s.logger.Info().Str("public_id", key).Msg("blob destroyed")
	return nil
}

func (s *Service) assetFor(key, resourceType string) (*asset.Asset, error) {
	switch resourceType {
	case "video":
		return s.client.Video(key)
	case "raw":
		return s.client.File(key)
	default:
		return s.client.Image(key)
	}
}

// ResourceTypeFor maps a MIME type onto Cloudinary's resource classes.
func ResourceTypeFor(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "video/"), strings.HasPrefix(mime, "audio/"):
		return "video"
	default:
		return "raw"
	}
}

func buildPublicID(name string) string {
	segments := strings.Split(strings.Trim(name, "/"), "/")
	cleaned := make([]string, 0, len(segments))
	for _, segment := range segments {
		if clean := sanitizeSegment(segment); clean != "" {
			cleaned = append(cleaned, clean)
		}
	}
	if len(cleaned) == 0 {
		return fmt.Sprintf("upload-%d", time.Now().Unix())
	}
	return path.Join(cleaned...)
}

func sanitizeSegment(segment string) string {
	base := strings.TrimSuffix(segment, path.Ext(segment))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)
	return strings.Trim(base, "-")
}
