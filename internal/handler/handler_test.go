package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tribuna-digital/tribuna-storage/internal/auth"
	"github.com/tribuna-digital/tribuna-storage/internal/config"
	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/lock"
	"github.com/tribuna-digital/tribuna-storage/internal/service"
	"github.com/tribuna-digital/tribuna-storage/internal/storage/memory"
)

const testAdminToken = "test-admin-token"

type testEnv struct {
	backend *memory.Backend
	acl     *service.ACLService
	server  *httptest.Server
}

func newTestEnv(t *testing.T, records *stubRecordRepository) *testEnv {
	t.Helper()

	backend := memory.New()
	logger := zerolog.Nop()

	paths := service.NewPathResolver(
		"/tribuna-private/.private",
		[]string{"/tribuna-public/assets", "/tribuna-public/uploads"},
		backend,
		logger,
	)
	matchers := map[domain.GroupType]domain.GroupMatcher{
		domain.GroupAdminOnly: domain.NewAdminOnlyMatcher([]string{"admin-1"}),
	}
	acl := service.NewACLService(backend, matchers, nil, logger)
	uploads := service.NewUploadService(backend, paths, acl, config.UploadConfig{URLTTL: 15 * time.Minute}, nil, logger)
	downloads := service.NewDownloadService(backend, config.DownloadConfig{CacheTTL: 5 * time.Minute}, nil, logger)

	if records == nil {
		records = &stubRecordRepository{}
	}
	diagnostics := service.NewDiagnosticService(
		records, paths, backend, lock.NewNoopLocker(),
		config.DiagnosticsConfig{LockTTL: time.Minute}, nil, logger,
	)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminToken), bcrypt.MinCost)
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		ObjectHandler:     NewObjectHandler(paths, acl, uploads, downloads, logger),
		DiagnosticHandler: NewDiagnosticHandler(diagnostics, logger),
		AdminTokenHash:    string(hash),
		Logger:            logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{backend: backend, acl: acl, server: srv}
}

// stubRecordRepository serves a fixed record set. The diagnostics routes
// only need reads plus ClearFileReference.
type stubRecordRepository struct {
	records map[domain.EntityType][]*domain.FileRecord
	cleared []int64
}

func (s *stubRecordRepository) ListByEntityType(_ context.Context, entityType domain.EntityType) ([]*domain.FileRecord, error) {
	return s.records[entityType], nil
}

func (s *stubRecordRepository) ListWithFiles(_ context.Context) ([]*domain.FileRecord, error) {
	var all []*domain.FileRecord
	for _, recs := range s.records {
		for _, r := range recs {
			if r.HasFile() {
				all = append(all, r)
			}
		}
	}
	return all, nil
}

func (s *stubRecordRepository) ClearFileReference(_ context.Context, _ domain.EntityType, id int64) error {
	s.cleared = append(s.cleared, id)
	return nil
}

func (s *stubRecordRepository) UpdateFilePath(_ context.Context, _ domain.EntityType, _ int64, _ string) error {
	return nil
}

func (e *testEnv) get(t *testing.T, path string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.get(t, "/health", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_PublicObject(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.Put(
		domain.ObjectRef{Bucket: "tribuna-public", Name: "assets/logo.png"},
		[]byte("png-bytes"), "image/png",
	)

	t.Run("serves existing object", func(t *testing.T) {
		resp := env.get(t, "/public-objects/logo.png", nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	})

	t.Run("404 with moved-or-deleted message", func(t *testing.T) {
		resp := env.get(t, "/public-objects/missing.png", nil)
		body := decodeBody[map[string]string](t, resp)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Contains(t, body["error"], "may have been moved or deleted")
	})
}

func TestRouter_PrivateObject(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	ref := domain.ObjectRef{Bucket: "tribuna-private", Name: ".private/uploads/doc-1"}
	env.backend.Put(ref, []byte("secret"), "application/pdf")
	require.NoError(t, env.acl.SetPolicy(ctx, ref, &domain.ACLPolicy{
		Owner:      "user-42",
		Visibility: domain.VisibilityPrivate,
		Rules: []domain.ACLRule{
			{Group: domain.GroupSpec{Type: domain.GroupAdminOnly}, Permission: domain.PermissionRead},
		},
	}))

	t.Run("anonymous denied", func(t *testing.T) {
		resp := env.get(t, "/objects/uploads/doc-1", nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("stranger denied", func(t *testing.T) {
		resp := env.get(t, "/objects/uploads/doc-1", map[string]string{auth.IdentityHeader: "user-9"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("owner allowed", func(t *testing.T) {
		resp := env.get(t, "/objects/uploads/doc-1", map[string]string{auth.IdentityHeader: "user-42"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("admin allowed by rule", func(t *testing.T) {
		resp := env.get(t, "/objects/uploads/doc-1", map[string]string{auth.IdentityHeader: "admin-1"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("download query forces attachment", func(t *testing.T) {
		resp := env.get(t, "/objects/uploads/doc-1?download=1&filename=budget.pdf",
			map[string]string{auth.IdentityHeader: "user-42"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, `attachment; filename="budget.pdf"`, resp.Header.Get("Content-Disposition"))
	})

	t.Run("missing object", func(t *testing.T) {
		resp := env.get(t, "/objects/uploads/gone", map[string]string{auth.IdentityHeader: "user-42"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRouter_UploadFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	// 1. Request an upload URL.
	resp := env.do(t, http.MethodPost, "/api/uploads", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	issued := decodeBody[map[string]string](t, resp)
	uploadURL := issued["uploadURL"]
	require.NotEmpty(t, uploadURL)

	// 2. Simulate the client PUT against the presigned URL.
	objectPath := strings.SplitN(strings.TrimPrefix(uploadURL, "https://storage.local"), "?", 2)[0]
	ref, err := domain.ParseObjectPath(objectPath)
	require.NoError(t, err)
	env.backend.Put(ref, []byte("uploaded"), "application/pdf")

	// 3. Finalize with the raw URL and read the object back.
	body := `{"uploadedFileURL":` + strconv.Quote(uploadURL) + `,"entityType":"document","visibility":"private"}`
	resp = env.do(t, http.MethodPut, "/api/uploads/finalize", body,
		map[string]string{auth.IdentityHeader: "user-42"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	finalized := decodeBody[map[string]string](t, resp)
	require.True(t, strings.HasPrefix(finalized["objectPath"], "/objects/uploads/"))

	resp = env.get(t, finalized["objectPath"], map[string]string{auth.IdentityHeader: "user-42"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_OrganizedUpload(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("valid category", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/uploads/session-documents", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		issued := decodeBody[map[string]string](t, resp)
		require.Contains(t, issued["uploadURL"], "/session-documents/")
	})

	t.Run("invalid category", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/uploads/Bad%20Category", "", nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRouter_UploadSigningFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.FailSigning = true

	resp := env.do(t, http.MethodPost, "/api/uploads", "", nil)
	body := decodeBody[map[string]string](t, resp)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "failed to prepare upload", body["error"])
}

func TestRouter_FinalizeValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("invalid JSON", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/uploads/finalize", "{broken", nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing uploadedFileURL", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/uploads/finalize", `{"visibility":"public"}`, nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad visibility", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/uploads/finalize",
			`{"uploadedFileURL":"/objects/x/y","visibility":"internal"}`, nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRouter_DiagnosticsAuth(t *testing.T) {
	records := &stubRecordRepository{
		records: map[domain.EntityType][]*domain.FileRecord{},
	}
	env := newTestEnv(t, records)

	t.Run("rejects missing token", func(t *testing.T) {
		resp := env.get(t, "/api/diagnostics", nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		resp := env.get(t, "/api/diagnostics", map[string]string{"Authorization": "Bearer nope"})
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("accepts valid token", func(t *testing.T) {
		resp := env.get(t, "/api/diagnostics", map[string]string{"Authorization": "Bearer " + testAdminToken})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRouter_DiagnosticsCleanup(t *testing.T) {
	path := "/objects/uploads/missing"
	name := "gone.pdf"
	kind := "application/pdf"
	records := &stubRecordRepository{
		records: map[domain.EntityType][]*domain.FileRecord{
			domain.EntityDocument: {
				{ID: 3, EntityType: domain.EntityDocument, FilePath: &path, FileName: &name, FileType: &kind},
			},
		},
	}
	env := newTestEnv(t, records)
	authHeader := map[string]string{"Authorization": "Bearer " + testAdminToken}

	t.Run("dry run", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/diagnostics/cleanup?dry_run=true", "", authHeader)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		report := decodeBody[domain.CleanupReport](t, resp)
		require.True(t, report.DryRun)
		require.Equal(t, 1, report.TotalCleaned())
		require.Empty(t, records.cleared)
	})

	t.Run("real run", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/diagnostics/cleanup", "", authHeader)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		report := decodeBody[domain.CleanupReport](t, resp)
		require.False(t, report.DryRun)
		require.Equal(t, []int64{3}, records.cleared)
		require.Equal(t, 1, report.TotalCleaned())
	})
}
