package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/config"
	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/lock"
	"github.com/tribuna-digital/tribuna-storage/internal/metrics"
	"github.com/tribuna-digital/tribuna-storage/internal/repository"
	"github.com/tribuna-digital/tribuna-storage/internal/storage"
)

// issueMissingObject marks a confirmed absence, as opposed to a failed
// probe. Cleanup only trusts confirmed absences.
const issueMissingObject = "referenced object does not exist in storage"

// entityLabels gives the human form used in change descriptions.
var entityLabels = map[domain.EntityType]string{
	domain.EntityDocument: "Document",
	domain.EntityActivity: "Activity",
	domain.EntityAvatar:   "Avatar",
}

// scanEntityTypes fixes the scan order so reports are comparable run to run.
var scanEntityTypes = []domain.EntityType{
	domain.EntityDocument,
	domain.EntityActivity,
	domain.EntityAvatar,
}

// DiagnosticService reconciles persisted file references against object
// storage. Scans and cleanups take a distributed lock so only one instance
// works at a time; the rest report ErrScanInProgress instead of piling on.
type DiagnosticService struct {
	records repository.FileRecordRepository
	paths   *PathResolver
	backend storage.Backend
	locker  lock.Locker
	cfg     config.DiagnosticsConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewDiagnosticService(
	records repository.FileRecordRepository,
	paths *PathResolver,
	backend storage.Backend,
	locker lock.Locker,
	cfg config.DiagnosticsConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *DiagnosticService {
	return &DiagnosticService{
		records: records,
		paths:   paths,
		backend: backend,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("service", "diagnostics").Logger(),
	}
}

// Diagnose scans every record with a stored file and returns the ones with
// problems. Healthy references are omitted. The scan is complete by
// construction: a per-record check failure is captured in that record's
// Issue and the scan moves on.
func (s *DiagnosticService) Diagnose(ctx context.Context) ([]domain.DiagnosticResult, error) {
	acquired, err := s.locker.Acquire(ctx, lock.Keys.DiagnosticScan(), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring scan lock: %w", err)
	}
	if !acquired {
		return nil, ErrScanInProgress
	}
	defer s.release(lock.Keys.DiagnosticScan())

	results, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DiagnosticRuns.Inc()
		s.metrics.DiagnosticIssues.Set(float64(len(results)))
		s.metrics.DiagnosticLastRun.SetToCurrentTime()
	}
	s.logger.Info().Int("issues", len(results)).Msg("diagnostic scan complete")
	return results, nil
}

// scan walks every entity type and classifies each stored reference.
func (s *DiagnosticService) scan(ctx context.Context) ([]domain.DiagnosticResult, error) {
	var results []domain.DiagnosticResult

	for _, entityType := range scanEntityTypes {
		records, err := s.records.ListByEntityType(ctx, entityType)
		if err != nil {
			return nil, fmt.Errorf("listing %s records: %w", entityType, err)
		}
		for _, rec := range records {
			if !rec.HasFile() {
				continue
			}
			result := s.classify(ctx, rec)
			if result.Issue == "" {
				// Healthy references are not reported.
				continue
			}
			results = append(results, result)
		}
	}
	return results, nil
}

// classify checks a single stored reference against object storage.
//
// Three shapes come out of a record's path:
//   - "/objects/..." paths are checked for existence; missing objects are
//     unfixable, only the reference can be cleared
//   - any other path is a legacy reference from before the object store,
//     flagged fixable because migration can rewrite it
//   - a check error is recorded on the result so the scan stays complete.
func (s *DiagnosticService) classify(ctx context.Context, rec *domain.FileRecord) domain.DiagnosticResult {
	path := *rec.FilePath
	result := domain.DiagnosticResult{
		EntityType:   rec.EntityType,
		EntityID:     rec.ID,
		ExpectedPath: path,
	}

	if !domain.IsObjectPath(path) {
		result.Issue = fmt.Sprintf("legacy local storage path %q", path)
		result.Fixable = true
		return result
	}

	ref, err := s.paths.EntityObject(path)
	if err != nil {
		result.Issue = fmt.Sprintf("unresolvable object path %q: %v", path, err)
		return result
	}

	exists, err := s.backend.Exists(ctx, ref)
	if err != nil && !storage.IsNotFound(err) {
		result.Issue = fmt.Sprintf("storage check failed: %v", err)
		return result
	}

	result.Exists = err == nil && exists
	if !result.Exists {
		result.Issue = issueMissingObject
	}
	return result
}

// Cleanup clears dangling references to missing objects. Only "/objects/"
// paths whose object is confirmed absent are touched; legacy paths are left
// for migration. With dryRun set, the report previews every change and no
// record is modified.
func (s *DiagnosticService) Cleanup(ctx context.Context, dryRun bool) (*domain.CleanupReport, error) {
	acquired, err := s.locker.Acquire(ctx, lock.Keys.Cleanup(), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring cleanup lock: %w", err)
	}
	if !acquired {
		return nil, ErrScanInProgress
	}
	defer s.release(lock.Keys.Cleanup())

	results, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	report := &domain.CleanupReport{
		CleanedUp: make(map[domain.EntityType]int),
		DryRun:    dryRun,
	}

	for _, r := range results {
		// Only confirmed absences qualify. Legacy paths wait for migration
		// and indeterminate probes must never cost a reference.
		if r.Issue != issueMissingObject {
			continue
		}

		change := fmt.Sprintf("%s %d: Remove reference to missing file %s",
			entityLabels[r.EntityType], r.EntityID, r.ExpectedPath)

		if !dryRun {
			if err := s.records.ClearFileReference(ctx, r.EntityType, r.EntityID); err != nil {
				s.logger.Error().Err(err).
					Str("entity_type", string(r.EntityType)).
					Int64("entity_id", r.EntityID).
					Msg("failed to clear dangling reference")
				continue
			}
			if s.metrics != nil {
				s.metrics.ReferencesCleaned.Inc()
			}
		}

		report.CleanedUp[r.EntityType]++
		report.Changes = append(report.Changes, change)
	}

	s.logger.Info().
		Bool("dry_run", dryRun).
		Int("cleaned", report.TotalCleaned()).
		Msg("cleanup complete")
	return report, nil
}

// legacyPathMappings rewrites pre-object-store upload paths to their logical
// form. Avatars were served publicly, documents and activities privately.
var legacyPathMappings = []struct {
	oldPrefix string
	newPrefix string
}{
	{"/uploads/avatars/", domain.PublicObjectPathPrefix + "avatars/"},
	{"/uploads/documents/", domain.ObjectPathPrefix + "documents/"},
	{"/uploads/activities/", domain.ObjectPathPrefix + "activities/"},
}

// MigratePaths rewrites legacy file references to their object storage
// logical paths. A reference is only rewritten when the mapped object
// already exists in storage; rewriting ahead of the content would trade a
// fixable legacy path for a dangling one. With dryRun set, the report
// previews every rewrite and no record is modified.
func (s *DiagnosticService) MigratePaths(ctx context.Context, dryRun bool) (*domain.MigrationReport, error) {
	acquired, err := s.locker.Acquire(ctx, lock.Keys.PathMigration(), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring migration lock: %w", err)
	}
	if !acquired {
		return nil, ErrScanInProgress
	}
	defer s.release(lock.Keys.PathMigration())

	records, err := s.records.ListWithFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing records with files: %w", err)
	}

	report := &domain.MigrationReport{
		Migrated: make(map[domain.EntityType]int),
		DryRun:   dryRun,
	}

	for _, rec := range records {
		path := *rec.FilePath
		if domain.IsObjectPath(path) || domain.IsPublicObjectPath(path) {
			continue
		}
		label := entityLabels[rec.EntityType]

		mapped, ok := mapLegacyPath(path)
		if !ok {
			report.Skipped = append(report.Skipped,
				fmt.Sprintf("%s %d: no mapping for legacy path %s", label, rec.ID, path))
			continue
		}

		exists, err := s.mappedTargetExists(ctx, mapped)
		if err != nil {
			report.Skipped = append(report.Skipped,
				fmt.Sprintf("%s %d: storage check failed for %s: %v", label, rec.ID, mapped, err))
			continue
		}
		if !exists {
			report.Skipped = append(report.Skipped,
				fmt.Sprintf("%s %d: mapped object %s not found in storage", label, rec.ID, mapped))
			continue
		}

		change := fmt.Sprintf("%s %d: Rewrite legacy path %s to %s", label, rec.ID, path, mapped)

		if !dryRun {
			if err := s.records.UpdateFilePath(ctx, rec.EntityType, rec.ID, mapped); err != nil {
				s.logger.Error().Err(err).
					Str("entity_type", string(rec.EntityType)).
					Int64("entity_id", rec.ID).
					Msg("failed to rewrite legacy path")
				continue
			}
			if s.metrics != nil {
				s.metrics.PathsMigrated.Inc()
			}
		}

		report.Migrated[rec.EntityType]++
		report.Changes = append(report.Changes, change)
	}

	s.logger.Info().
		Bool("dry_run", dryRun).
		Int("migrated", report.TotalMigrated()).
		Int("skipped", len(report.Skipped)).
		Msg("path migration complete")
	return report, nil
}

// mapLegacyPath applies the first matching prefix mapping.
func mapLegacyPath(path string) (string, bool) {
	for _, m := range legacyPathMappings {
		if strings.HasPrefix(path, m.oldPrefix) {
			return m.newPrefix + path[len(m.oldPrefix):], true
		}
	}
	return "", false
}

// mappedTargetExists checks that the object a mapped logical path points at
// is actually in storage, private and public namespaces alike.
func (s *DiagnosticService) mappedTargetExists(ctx context.Context, logicalPath string) (bool, error) {
	if domain.IsPublicObjectPath(logicalPath) {
		suffix := logicalPath[len(domain.PublicObjectPathPrefix):]
		_, found, err := s.paths.SearchPublicObject(ctx, suffix)
		return found, err
	}

	ref, err := s.paths.EntityObject(logicalPath)
	if err != nil {
		return false, err
	}
	exists, err := s.backend.Exists(ctx, ref)
	if err != nil && !storage.IsNotFound(err) {
		return false, err
	}
	return err == nil && exists, nil
}

// HealthReport aggregates reference health without taking the scan lock;
// it is read-only and safe to run concurrently with a scan.
func (s *DiagnosticService) HealthReport(ctx context.Context) (*domain.HealthReport, error) {
	report := &domain.HealthReport{
		TotalRecords:     make(map[domain.EntityType]int),
		RecordsWithFiles: make(map[domain.EntityType]int),
	}

	for _, entityType := range scanEntityTypes {
		records, err := s.records.ListByEntityType(ctx, entityType)
		if err != nil {
			return nil, fmt.Errorf("listing %s records: %w", entityType, err)
		}
		report.TotalRecords[entityType] = len(records)

		for _, rec := range records {
			if !rec.HasFile() {
				continue
			}
			report.RecordsWithFiles[entityType]++

			result := s.classify(ctx, rec)
			if domain.IsObjectPath(result.ExpectedPath) {
				report.ObjectStorageFiles++
			} else {
				report.LegacyFiles++
			}
			if result.Issue != "" {
				report.Issues = append(report.Issues, result)
				if result.Issue == issueMissingObject {
					report.MissingFiles++
				}
			}
		}
	}
	return report, nil
}

// Start launches the periodic scan loop when enabled. Safe to call once;
// Stop shuts the loop down and waits for it to exit.
func (s *DiagnosticService) Start() {
	if !s.cfg.Enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan != nil {
		return
	}
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	go s.loop(s.stopChan, s.doneChan)
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("periodic diagnostic scan started")
}

// Stop terminates the periodic scan loop.
func (s *DiagnosticService) Stop() {
	s.mu.Lock()
	stopChan, doneChan := s.stopChan, s.doneChan
	s.stopChan, s.doneChan = nil, nil
	s.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	<-doneChan
}

func (s *DiagnosticService) loop(stopChan, doneChan chan struct{}) {
	defer close(doneChan)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LockTTL)
			if _, err := s.Diagnose(ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
				s.logger.Error().Err(err).Msg("periodic diagnostic scan failed")
			}
			cancel()
		}
	}
}

func (s *DiagnosticService) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.locker.Release(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to release lock")
	}
}
