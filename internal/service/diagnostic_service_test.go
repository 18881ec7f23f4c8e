package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tribuna-digital/tribuna-storage/internal/config"
	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/lock"
	"github.com/tribuna-digital/tribuna-storage/internal/storage/memory"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockFileRecordRepository struct {
	mock.Mock
}

func (m *mockFileRecordRepository) ListByEntityType(ctx context.Context, entityType domain.EntityType) ([]*domain.FileRecord, error) {
	args := m.Called(ctx, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FileRecord), args.Error(1)
}

func (m *mockFileRecordRepository) ListWithFiles(ctx context.Context) ([]*domain.FileRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FileRecord), args.Error(1)
}

func (m *mockFileRecordRepository) ClearFileReference(ctx context.Context, entityType domain.EntityType, id int64) error {
	args := m.Called(ctx, entityType, id)
	return args.Error(0)
}

func (m *mockFileRecordRepository) UpdateFilePath(ctx context.Context, entityType domain.EntityType, id int64, path string) error {
	args := m.Called(ctx, entityType, id, path)
	return args.Error(0)
}

// =============================================================================
// Helpers
// =============================================================================

func strPtr(s string) *string { return &s }

func fileRecord(entityType domain.EntityType, id int64, path string) *domain.FileRecord {
	return &domain.FileRecord{
		ID:         id,
		EntityType: entityType,
		FilePath:   strPtr(path),
		FileName:   strPtr("file.bin"),
		FileType:   strPtr("application/octet-stream"),
		UpdatedAt:  time.Now(),
	}
}

func newTestDiagnosticService(backend *memory.Backend, records *mockFileRecordRepository, locker lock.Locker) *DiagnosticService {
	paths := newTestPathResolver(backend)
	cfg := config.DiagnosticsConfig{LockTTL: time.Minute}
	return NewDiagnosticService(records, paths, backend, locker, cfg, nil, zerolog.Nop())
}

func emptyOtherEntityTypes(records *mockFileRecordRepository, except ...domain.EntityType) {
	skip := make(map[domain.EntityType]bool)
	for _, e := range except {
		skip[e] = true
	}
	for _, e := range scanEntityTypes {
		if !skip[e] {
			records.On("ListByEntityType", mock.Anything, e).Return([]*domain.FileRecord{}, nil)
		}
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestDiagnosticService_Diagnose(t *testing.T) {
	backend := memory.New()
	records := new(mockFileRecordRepository)
	svc := newTestDiagnosticService(backend, records, lock.NewNoopLocker())
	ctx := context.Background()

	healthy := domain.ObjectRef{Bucket: "tribuna-private", Name: ".private/uploads/healthy"}
	backend.Put(healthy, []byte("x"), "text/plain")

	records.On("ListByEntityType", mock.Anything, domain.EntityDocument).Return([]*domain.FileRecord{
		fileRecord(domain.EntityDocument, 1, "/objects/uploads/healthy"),
		fileRecord(domain.EntityDocument, 2, "/objects/uploads/missing"),
		fileRecord(domain.EntityDocument, 3, "/var/uploads/old-file.pdf"),
		fileRecord(domain.EntityDocument, 4, "/objects/"),
		{ID: 5, EntityType: domain.EntityDocument}, // no file, skipped
	}, nil)
	emptyOtherEntityTypes(records, domain.EntityDocument)

	results, err := svc.Diagnose(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := make(map[int64]domain.DiagnosticResult)
	for _, r := range results {
		byID[r.EntityID] = r
	}

	missing := byID[2]
	require.False(t, missing.Exists)
	require.False(t, missing.Fixable)
	require.Equal(t, "referenced object does not exist in storage", missing.Issue)

	legacy := byID[3]
	require.True(t, legacy.Fixable)
	require.Contains(t, legacy.Issue, "legacy local storage path")

	broken := byID[4]
	require.False(t, broken.Fixable)
	require.Contains(t, broken.Issue, "unresolvable object path")

	records.AssertExpectations(t)
}

func TestDiagnosticService_Diagnose_LockHeld(t *testing.T) {
	locker := lock.NewMemoryLocker()
	ctx := context.Background()

	held, err := locker.Acquire(ctx, lock.Keys.DiagnosticScan(), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	svc := newTestDiagnosticService(memory.New(), new(mockFileRecordRepository), locker)
	_, err = svc.Diagnose(ctx)
	require.ErrorIs(t, err, ErrScanInProgress)
}

func TestDiagnosticService_Cleanup(t *testing.T) {
	newFixture := func() (*memory.Backend, *mockFileRecordRepository, *DiagnosticService) {
		backend := memory.New()
		records := new(mockFileRecordRepository)
		svc := newTestDiagnosticService(backend, records, lock.NewNoopLocker())

		healthy := domain.ObjectRef{Bucket: "tribuna-private", Name: ".private/uploads/healthy"}
		backend.Put(healthy, []byte("x"), "text/plain")

		records.On("ListByEntityType", mock.Anything, domain.EntityDocument).Return([]*domain.FileRecord{
			fileRecord(domain.EntityDocument, 1, "/objects/uploads/healthy"),
			fileRecord(domain.EntityDocument, 3, "/objects/uploads/missing"),
		}, nil)
		records.On("ListByEntityType", mock.Anything, domain.EntityActivity).Return([]*domain.FileRecord{
			fileRecord(domain.EntityActivity, 7, "/var/uploads/legacy.jpg"),
		}, nil)
		records.On("ListByEntityType", mock.Anything, domain.EntityAvatar).Return([]*domain.FileRecord{}, nil)
		return backend, records, svc
	}

	t.Run("dry run previews without modifying", func(t *testing.T) {
		_, records, svc := newFixture()

		report, err := svc.Cleanup(context.Background(), true)
		require.NoError(t, err)
		require.True(t, report.DryRun)
		require.Equal(t, 1, report.TotalCleaned())
		require.Equal(t, 1, report.CleanedUp[domain.EntityDocument])
		require.Len(t, report.Changes, 1)
		require.Equal(t, "Document 3: Remove reference to missing file /objects/uploads/missing", report.Changes[0])

		// Legacy and healthy references are untouched either way.
		records.AssertNotCalled(t, "ClearFileReference", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("real run clears references", func(t *testing.T) {
		_, records, svc := newFixture()
		records.On("ClearFileReference", mock.Anything, domain.EntityDocument, int64(3)).Return(nil)

		report, err := svc.Cleanup(context.Background(), false)
		require.NoError(t, err)
		require.False(t, report.DryRun)
		require.Equal(t, 1, report.TotalCleaned())
		records.AssertExpectations(t)
	})

	t.Run("clear failure does not count the record", func(t *testing.T) {
		_, records, svc := newFixture()
		records.On("ClearFileReference", mock.Anything, domain.EntityDocument, int64(3)).
			Return(domain.ErrRecordNotFound)

		report, err := svc.Cleanup(context.Background(), false)
		require.NoError(t, err)
		require.Equal(t, 0, report.TotalCleaned())
	})
}

func TestDiagnosticService_MigratePaths(t *testing.T) {
	newFixture := func() (*memory.Backend, *mockFileRecordRepository, *DiagnosticService) {
		backend := memory.New()
		records := new(mockFileRecordRepository)
		svc := newTestDiagnosticService(backend, records, lock.NewNoopLocker())

		// Content copied to object storage ahead of the reference rewrite.
		backend.Put(domain.ObjectRef{Bucket: "tribuna-private", Name: ".private/documents/report.pdf"}, []byte("x"), "application/pdf")
		backend.Put(domain.ObjectRef{Bucket: "tribuna-public", Name: "assets/avatars/ana.png"}, []byte("x"), "image/png")

		records.On("ListWithFiles", mock.Anything).Return([]*domain.FileRecord{
			fileRecord(domain.EntityDocument, 1, "/objects/uploads/healthy"),
			fileRecord(domain.EntityDocument, 3, "/uploads/documents/report.pdf"),
			fileRecord(domain.EntityDocument, 4, "/uploads/documents/gone.pdf"),
			fileRecord(domain.EntityActivity, 7, "/var/uploads/legacy.jpg"),
			fileRecord(domain.EntityAvatar, 9, "/uploads/avatars/ana.png"),
		}, nil)
		return backend, records, svc
	}

	t.Run("dry run previews without modifying", func(t *testing.T) {
		_, records, svc := newFixture()

		report, err := svc.MigratePaths(context.Background(), true)
		require.NoError(t, err)
		require.True(t, report.DryRun)
		require.Equal(t, 2, report.TotalMigrated())
		require.Equal(t, 1, report.Migrated[domain.EntityDocument])
		require.Equal(t, 1, report.Migrated[domain.EntityAvatar])
		require.Equal(t, []string{
			"Document 3: Rewrite legacy path /uploads/documents/report.pdf to /objects/documents/report.pdf",
			"Avatar 9: Rewrite legacy path /uploads/avatars/ana.png to /public-objects/avatars/ana.png",
		}, report.Changes)

		// Unmapped and content-less legacy references are reported, not lost.
		require.Len(t, report.Skipped, 2)
		require.Contains(t, report.Skipped[0], "mapped object /objects/documents/gone.pdf not found in storage")
		require.Contains(t, report.Skipped[1], "no mapping for legacy path /var/uploads/legacy.jpg")

		records.AssertNotCalled(t, "UpdateFilePath", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("real run rewrites references", func(t *testing.T) {
		_, records, svc := newFixture()
		records.On("UpdateFilePath", mock.Anything, domain.EntityDocument, int64(3), "/objects/documents/report.pdf").Return(nil)
		records.On("UpdateFilePath", mock.Anything, domain.EntityAvatar, int64(9), "/public-objects/avatars/ana.png").Return(nil)

		report, err := svc.MigratePaths(context.Background(), false)
		require.NoError(t, err)
		require.False(t, report.DryRun)
		require.Equal(t, 2, report.TotalMigrated())
		records.AssertExpectations(t)
	})

	t.Run("update failure does not count the record", func(t *testing.T) {
		_, records, svc := newFixture()
		records.On("UpdateFilePath", mock.Anything, domain.EntityDocument, int64(3), "/objects/documents/report.pdf").
			Return(domain.ErrRecordNotFound)
		records.On("UpdateFilePath", mock.Anything, domain.EntityAvatar, int64(9), "/public-objects/avatars/ana.png").Return(nil)

		report, err := svc.MigratePaths(context.Background(), false)
		require.NoError(t, err)
		require.Equal(t, 1, report.TotalMigrated())
	})
}

func TestDiagnosticService_MigratePaths_LockHeld(t *testing.T) {
	locker := lock.NewMemoryLocker()
	ctx := context.Background()

	held, err := locker.Acquire(ctx, lock.Keys.PathMigration(), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	svc := newTestDiagnosticService(memory.New(), new(mockFileRecordRepository), locker)
	_, err = svc.MigratePaths(ctx, true)
	require.ErrorIs(t, err, ErrScanInProgress)
}

func TestDiagnosticService_HealthReport(t *testing.T) {
	backend := memory.New()
	records := new(mockFileRecordRepository)
	svc := newTestDiagnosticService(backend, records, lock.NewNoopLocker())

	healthy := domain.ObjectRef{Bucket: "tribuna-private", Name: ".private/uploads/healthy"}
	backend.Put(healthy, []byte("x"), "text/plain")

	records.On("ListByEntityType", mock.Anything, domain.EntityDocument).Return([]*domain.FileRecord{
		fileRecord(domain.EntityDocument, 1, "/objects/uploads/healthy"),
		fileRecord(domain.EntityDocument, 2, "/objects/uploads/missing"),
		{ID: 3, EntityType: domain.EntityDocument},
	}, nil)
	records.On("ListByEntityType", mock.Anything, domain.EntityActivity).Return([]*domain.FileRecord{
		fileRecord(domain.EntityActivity, 7, "/var/uploads/legacy.jpg"),
	}, nil)
	records.On("ListByEntityType", mock.Anything, domain.EntityAvatar).Return([]*domain.FileRecord{}, nil)

	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, report.TotalRecords[domain.EntityDocument])
	require.Equal(t, 1, report.TotalRecords[domain.EntityActivity])
	require.Equal(t, 2, report.RecordsWithFiles[domain.EntityDocument])
	require.Equal(t, 1, report.RecordsWithFiles[domain.EntityActivity])
	require.Equal(t, 2, report.ObjectStorageFiles)
	require.Equal(t, 1, report.LegacyFiles)
	require.Equal(t, 1, report.MissingFiles)
	require.Len(t, report.Issues, 2)
}

func TestDiagnosticService_PeriodicLoop(t *testing.T) {
	backend := memory.New()
	records := new(mockFileRecordRepository)
	for _, e := range scanEntityTypes {
		records.On("ListByEntityType", mock.Anything, e).Return([]*domain.FileRecord{}, nil)
	}

	paths := newTestPathResolver(backend)
	cfg := config.DiagnosticsConfig{Enabled: true, Interval: 10 * time.Millisecond, LockTTL: time.Minute}
	svc := NewDiagnosticService(records, paths, backend, lock.NewNoopLocker(), cfg, nil, zerolog.Nop())

	svc.Start()
	time.Sleep(50 * time.Millisecond)
	svc.Stop()

	// At least one tick must have fired a scan.
	records.AssertCalled(t, "ListByEntityType", mock.Anything, domain.EntityDocument)

	// Stop is idempotent.
	svc.Stop()
}
