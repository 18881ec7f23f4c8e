// Package service provides business logic services for Tribuna Storage.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/storage"
)

// PathResolver converts between the three path representations: raw
// provider-signed URLs, canonical bucket/object pairs, and the stable
// logical paths persisted in application records. It is the only component
// that understands all three, isolating everything else from
// storage-provider specifics.
type PathResolver struct {
	// privateDir is the private root, always slash-terminated.
	privateDir string

	// publicSearchPaths is the ordered list of public roots. First match
	// wins on resolution.
	publicSearchPaths []string

	backend storage.Backend
	logger  zerolog.Logger
}

// NewPathResolver creates a PathResolver over the configured namespace roots.
func NewPathResolver(privateDir string, publicSearchPaths []string, backend storage.Backend, logger zerolog.Logger) *PathResolver {
	if !strings.HasSuffix(privateDir, "/") {
		privateDir += "/"
	}
	return &PathResolver{
		privateDir:        privateDir,
		publicSearchPaths: publicSearchPaths,
		backend:           backend,
		logger:            logger.With().Str("service", "paths").Logger(),
	}
}

// PrivateDir returns the slash-terminated private root.
func (r *PathResolver) PrivateDir() string {
	return r.privateDir
}

// PublicSearchPaths returns the ordered public roots.
func (r *PathResolver) PublicSearchPaths() []string {
	return r.publicSearchPaths
}

// NormalizeEntityPath converts a raw upload URL (or any path) into its
// stable logical form. A fully-qualified storage URL is reduced to its path,
// dropping host, credentials and expiry query parameters. Paths outside the
// private root are returned unchanged: they are already logical, or foreign.
// The function is idempotent; normalizing a normalized path is a no-op.
func (r *PathResolver) NormalizeEntityPath(rawPath string) string {
	path := rawPath
	if strings.HasPrefix(rawPath, "http://") || strings.HasPrefix(rawPath, "https://") {
		u, err := url.Parse(rawPath)
		if err != nil {
			return rawPath
		}
		path = u.Path
	}

	if !strings.HasPrefix(path, r.privateDir) {
		return path
	}

	entityID := path[len(r.privateDir):]
	return domain.ObjectPathPrefix + entityID
}

// EntityObject resolves a "/objects/<id>" logical path to its canonical
// bucket/object pair by prefix substitution with the private root. A path
// outside the private namespace, or one that does not decompose into a
// bucket and object, resolves to nothing: both surface as
// domain.ErrObjectNotFound, matching how the route layer reports them.
func (r *PathResolver) EntityObject(logicalPath string) (domain.ObjectRef, error) {
	if !domain.IsObjectPath(logicalPath) {
		return domain.ObjectRef{}, fmt.Errorf("path %q is not an object path: %w", logicalPath, domain.ErrObjectNotFound)
	}

	entityID := logicalPath[len(domain.ObjectPathPrefix):]
	if entityID == "" {
		return domain.ObjectRef{}, fmt.Errorf("path %q has no entity id: %w", logicalPath, domain.ErrObjectNotFound)
	}

	ref, err := domain.ParseObjectPath(r.privateDir + entityID)
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("resolving %q: %w", logicalPath, domain.ErrObjectNotFound)
	}
	return ref, nil
}

// ResolveEntityFile resolves a private logical path and verifies the object
// actually exists. A resolved reference is not proof of existence.
func (r *PathResolver) ResolveEntityFile(ctx context.Context, logicalPath string) (domain.ObjectRef, error) {
	ref, err := r.EntityObject(logicalPath)
	if err != nil {
		return domain.ObjectRef{}, err
	}

	exists, err := r.backend.Exists(ctx, ref)
	if err != nil {
		if storage.IsNotFound(err) {
			return domain.ObjectRef{}, fmt.Errorf("object %s: %w", ref, domain.ErrObjectNotFound)
		}
		return domain.ObjectRef{}, fmt.Errorf("checking %s: %w", ref, err)
	}
	if !exists {
		r.logger.Debug().Str("path", logicalPath).Str("object", ref.String()).Msg("entity object missing")
		return domain.ObjectRef{}, fmt.Errorf("object %s: %w", ref, domain.ErrObjectNotFound)
	}
	return ref, nil
}

// SearchPublicObject probes the public search roots in order for the given
// suffix and returns the first existing object. The boolean reports whether
// a match was found; exhausting every root is not an error.
func (r *PathResolver) SearchPublicObject(ctx context.Context, filePath string) (domain.ObjectRef, bool, error) {
	for _, searchPath := range r.publicSearchPaths {
		fullPath := searchPath + "/" + filePath

		ref, err := domain.ParseObjectPath(fullPath)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidPath) {
				continue
			}
			return domain.ObjectRef{}, false, err
		}

		exists, err := r.backend.Exists(ctx, ref)
		if err != nil {
			return domain.ObjectRef{}, false, fmt.Errorf("probing %s: %w", ref, err)
		}
		if exists {
			return ref, true, nil
		}
	}
	return domain.ObjectRef{}, false, nil
}
