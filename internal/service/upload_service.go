package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/config"
	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/metrics"
	"github.com/tribuna-digital/tribuna-storage/internal/storage"
)

// categorySlugRe constrains organized-upload categories to flat slugs so a
// caller cannot steer uploads with path separators or dots.
var categorySlugRe = regexp.MustCompile(`^[a-z0-9-]+$`)

// UploadService issues presigned upload URLs and finalizes completed
// uploads by attaching ACL policies.
type UploadService struct {
	backend storage.Backend
	paths   *PathResolver
	acl     *ACLService
	cfg     config.UploadConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger

	// now is swappable for deterministic tests.
	now func() time.Time
}

func NewUploadService(
	backend storage.Backend,
	paths *PathResolver,
	acl *ACLService,
	cfg config.UploadConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *UploadService {
	return &UploadService{
		backend: backend,
		paths:   paths,
		acl:     acl,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("service", "upload").Logger(),
		now:     time.Now,
	}
}

// IssueUploadURL mints a presigned PUT URL for a fresh object under the
// flat uploads/ namespace. The object name is a random UUID; two issued
// URLs never collide regardless of caller or timing.
func (s *UploadService) IssueUploadURL(ctx context.Context) (string, error) {
	objectID := uuid.NewString()
	ref, err := domain.ParseObjectPath(s.paths.PrivateDir() + "uploads/" + objectID)
	if err != nil {
		return "", fmt.Errorf("building upload path: %w", err)
	}
	return s.presign(ctx, ref, "flat")
}

// IssueOrganizedUploadURL mints a presigned PUT URL partitioned by category
// and upload date: <category>/<YYYY>/<MM>/<uuid>. The category must be a
// lowercase slug.
func (s *UploadService) IssueOrganizedUploadURL(ctx context.Context, category string) (string, error) {
	if !categorySlugRe.MatchString(category) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
	}

	t := s.now().UTC()
	objectID := uuid.NewString()
	fullPath := fmt.Sprintf("%s%s/%04d/%02d/%s", s.paths.PrivateDir(), category, t.Year(), int(t.Month()), objectID)
	ref, err := domain.ParseObjectPath(fullPath)
	if err != nil {
		return "", fmt.Errorf("building upload path: %w", err)
	}
	return s.presign(ctx, ref, "organized")
}

func (s *UploadService) presign(ctx context.Context, ref domain.ObjectRef, kind string) (string, error) {
	url, err := s.backend.PresignPut(ctx, ref, s.cfg.URLTTL)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SigningFailures.Inc()
		}
		s.logger.Error().Err(err).Str("object", ref.String()).Msg("failed to presign upload URL")
		if errors.Is(err, domain.ErrSigningFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	if s.metrics != nil {
		s.metrics.UploadURLsIssued.WithLabelValues(kind).Inc()
	}
	s.logger.Info().
		Str("object", ref.String()).
		Dur("ttl", s.cfg.URLTTL).
		Msg("issued upload URL")
	return url, nil
}

// FinalizeRequest carries the caller's description of a completed upload.
type FinalizeRequest struct {
	UploadedFileURL string
	Owner           string
	Visibility      domain.Visibility
}

// FinalizeUpload normalizes the uploaded file's URL to a logical object
// path and attaches the initial ACL policy. Values that do not look like
// paths at all pass through unchanged, so callers may store external URLs
// in the same column without breakage.
//
// Private objects additionally receive an admin_only READ rule so
// moderators can inspect content that is otherwise owner-only.
func (s *UploadService) FinalizeUpload(ctx context.Context, req FinalizeRequest) (string, error) {
	raw := strings.TrimSpace(req.UploadedFileURL)
	normalized := s.paths.NormalizeEntityPath(raw)
	if !strings.HasPrefix(normalized, "/") {
		return normalized, nil
	}

	ref, err := s.paths.EntityObject(normalized)
	if err != nil {
		return "", err
	}
	if _, err := s.paths.ResolveEntityFile(ctx, normalized); err != nil {
		return "", err
	}

	owner := req.Owner
	if owner == "" {
		owner = "system"
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}

	policy := &domain.ACLPolicy{
		Owner:      owner,
		Visibility: visibility,
	}
	if visibility == domain.VisibilityPrivate {
		policy.Rules = append(policy.Rules, domain.ACLRule{
			Group:      domain.GroupSpec{Type: domain.GroupAdminOnly},
			Permission: domain.PermissionRead,
		})
	}

	if err := s.acl.SetPolicy(ctx, ref, policy); err != nil {
		return "", fmt.Errorf("finalizing %s: %w", normalized, err)
	}

	if s.metrics != nil {
		s.metrics.UploadsFinalized.WithLabelValues(string(visibility)).Inc()
	}
	s.logger.Info().
		Str("path", normalized).
		Str("owner", owner).
		Str("visibility", string(visibility)).
		Msg("finalized upload")
	return normalized, nil
}
