package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/config"
	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/metrics"
	"github.com/tribuna-digital/tribuna-storage/internal/storage"
)

const defaultContentType = "application/octet-stream"

// StreamOptions tunes how one object is written to a response.
type StreamOptions struct {
	// FileName, when set, is surfaced through Content-Disposition.
	FileName string

	// ForceDownload switches the disposition from inline to attachment.
	ForceDownload bool
}

// DownloadService streams stored objects to HTTP clients with caching
// headers derived from the object's visibility.
type DownloadService struct {
	backend storage.Backend
	cfg     config.DownloadConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewDownloadService(
	backend storage.Backend,
	cfg config.DownloadConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *DownloadService {
	return &DownloadService{
		backend: backend,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("service", "download").Logger(),
	}
}

// StreamObject writes the object's bytes to the response with metadata
// headers set from its stat. The source reader is bound to the request
// context, so a client disconnect cancels the storage read instead of
// draining the object for nobody.
//
// Errors before the first body byte return normally and the caller can
// still send a proper status. A failure after headers have gone out
// returns domain.ErrStreamInterrupted; the response is unsalvageable at
// that point and the caller must abort the connection.
func (s *DownloadService) StreamObject(w http.ResponseWriter, r *http.Request, ref domain.ObjectRef, opts StreamOptions) error {
	ctx := r.Context()
	started := time.Now()

	exists, err := s.backend.Exists(ctx, ref)
	if err != nil && !storage.IsNotFound(err) {
		s.record("error", 0, started)
		return fmt.Errorf("checking %s: %w", ref, err)
	}
	if err != nil || !exists {
		s.record("not_found", 0, started)
		return fmt.Errorf("object %s: %w", ref, domain.ErrObjectNotFound)
	}

	stat, err := s.backend.Stat(ctx, ref)
	if err != nil {
		if storage.IsNotFound(err) {
			s.record("not_found", 0, started)
			return fmt.Errorf("object %s: %w", ref, domain.ErrObjectNotFound)
		}
		s.record("error", 0, started)
		return fmt.Errorf("reading metadata of %s: %w", ref, err)
	}

	s.writeHeaders(w, stat, opts)

	reader, err := s.backend.Open(ctx, ref)
	if err != nil {
		// Headers are already out; the status line cannot change anymore.
		s.interrupted(ref, err)
		s.record("error", 0, started)
		return fmt.Errorf("opening %s: %w: %v", ref, domain.ErrStreamInterrupted, err)
	}
	defer reader.Close()

	written, err := io.Copy(w, reader)
	if err != nil {
		if isClientGone(ctx, err) {
			s.logger.Debug().Str("object", ref.String()).Int64("bytes", written).Msg("client disconnected mid-stream")
			s.record("client_gone", written, started)
			return fmt.Errorf("streaming %s: %w", ref, domain.ErrStreamInterrupted)
		}
		s.interrupted(ref, err)
		s.record("error", written, started)
		return fmt.Errorf("streaming %s: %w: %v", ref, domain.ErrStreamInterrupted, err)
	}

	s.record("success", written, started)
	return nil
}

func (s *DownloadService) writeHeaders(w http.ResponseWriter, stat *storage.ObjectStat, opts StreamOptions) {
	contentType := stat.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	if stat.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stat.Size, 10))
	}
	if stat.ETag != "" {
		w.Header().Set("ETag", stat.ETag)
	}
	w.Header().Set("Cache-Control", s.cacheControl(stat))

	if opts.FileName != "" || opts.ForceDownload {
		disposition := "inline"
		if opts.ForceDownload {
			disposition = "attachment"
		}
		if opts.FileName != "" {
			disposition += fmt.Sprintf("; filename=%q", sanitizeFileName(opts.FileName))
		}
		w.Header().Set("Content-Disposition", disposition)
	}
}

// cacheControl derives the cache class from the object's policy. No policy,
// or an unreadable one, is treated as private so shared caches never hold
// content whose visibility is unknown.
func (s *DownloadService) cacheControl(stat *storage.ObjectStat) string {
	class := "private"

	if raw, ok := stat.Metadata[aclPolicyMetadataKey]; ok && raw != "" {
		var policy domain.ACLPolicy
		if err := json.Unmarshal([]byte(raw), &policy); err == nil && policy.IsPublic() {
			class = "public"
		}
	}

	seconds := int(s.cfg.CacheTTL.Seconds())
	return fmt.Sprintf("%s, max-age=%d", class, seconds)
}

func (s *DownloadService) interrupted(ref domain.ObjectRef, err error) {
	if s.metrics != nil {
		s.metrics.StreamInterruptions.Inc()
	}
	s.logger.Error().Err(err).Str("object", ref.String()).Msg("stream interrupted after headers")
}

func (s *DownloadService) record(outcome string, bytes int64, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDownload(outcome, bytes, time.Since(started).Seconds())
}

// isClientGone reports whether the copy failed because the client went
// away rather than because the storage read broke.
func isClientGone(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// sanitizeFileName strips characters that would break the quoted
// Content-Disposition parameter.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.ReplaceAll(name, "\r", "")
	name = strings.ReplaceAll(name, "\n", "")
	return name
}
