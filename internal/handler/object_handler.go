package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/auth"
	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/service"
)

// ObjectHandler serves object downloads and the upload API.
type ObjectHandler struct {
	paths     *service.PathResolver
	acl       *service.ACLService
	uploads   *service.UploadService
	downloads *service.DownloadService
	logger    zerolog.Logger
}

func NewObjectHandler(
	paths *service.PathResolver,
	acl *service.ACLService,
	uploads *service.UploadService,
	downloads *service.DownloadService,
	logger zerolog.Logger,
) *ObjectHandler {
	return &ObjectHandler{
		paths:     paths,
		acl:       acl,
		uploads:   uploads,
		downloads: downloads,
		logger:    logger.With().Str("component", "object_handler").Logger(),
	}
}

// ServeObject handles GET /objects/* for private objects. The object is
// resolved first (missing objects are a 404), then the decision engine
// gates the stream; a denial is a 403.
func (h *ObjectHandler) ServeObject(w http.ResponseWriter, r *http.Request) {
	objectPath := domain.ObjectPathPrefix + chi.URLParam(r, "*")

	ref, err := h.paths.ResolveEntityFile(r.Context(), objectPath)
	if err != nil {
		mapServiceError(w, h.logger, err)
		return
	}

	identity := auth.IdentityFromContext(r.Context())
	allowed, err := h.acl.CanAccessObject(r.Context(), ref, identity, domain.PermissionRead)
	if err != nil {
		mapServiceError(w, h.logger, err)
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	download := r.URL.Query().Get("download")
	h.stream(w, r, ref, service.StreamOptions{
		FileName:      r.URL.Query().Get("filename"),
		ForceDownload: download == "1" || download == "true",
	})
}

// ServePublicObject handles GET /public-objects/*. The file path is probed
// against the ordered public roots; no ACL check applies because the
// namespace is public by construction.
func (h *ObjectHandler) ServePublicObject(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")
	if filePath == "" {
		writeError(w, http.StatusNotFound, "object not found, it may have been moved or deleted")
		return
	}

	ref, found, err := h.paths.SearchPublicObject(r.Context(), filePath)
	if err != nil {
		mapServiceError(w, h.logger, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "object not found, it may have been moved or deleted")
		return
	}

	h.stream(w, r, ref, service.StreamOptions{})
}

// stream delegates to the download service and aborts the connection when
// a failure lands after headers went out. A truncated body with a 200
// status must never look complete to the client.
func (h *ObjectHandler) stream(w http.ResponseWriter, r *http.Request, ref domain.ObjectRef, opts service.StreamOptions) {
	err := h.downloads.StreamObject(w, r, ref, opts)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrStreamInterrupted) {
		panic(http.ErrAbortHandler)
	}
	mapServiceError(w, h.logger, err)
}

// uploadURLResponse is the body returned by the upload URL endpoints.
type uploadURLResponse struct {
	UploadURL string `json:"uploadURL"`
}

// CreateUploadURL handles POST /api/uploads.
func (h *ObjectHandler) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.uploads.IssueUploadURL(r.Context())
	if err != nil {
		mapServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadURLResponse{UploadURL: url})
}

// CreateOrganizedUploadURL handles POST /api/uploads/{category}.
func (h *ObjectHandler) CreateOrganizedUploadURL(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	url, err := h.uploads.IssueOrganizedUploadURL(r.Context(), category)
	if err != nil {
		mapServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadURLResponse{UploadURL: url})
}

// finalizeRequest is the body accepted by PUT /api/uploads/finalize.
type finalizeRequest struct {
	UploadedFileURL string `json:"uploadedFileURL"`
	EntityType      string `json:"entityType"`
	Visibility      string `json:"visibility"`
}

// finalizeResponse is the body returned by PUT /api/uploads/finalize.
type finalizeResponse struct {
	ObjectPath string `json:"objectPath"`
}

// FinalizeUpload handles PUT /api/uploads/finalize: it converts the raw
// upload URL into the stable logical path and attaches the initial policy.
func (h *ObjectHandler) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UploadedFileURL) == "" {
		writeError(w, http.StatusBadRequest, "uploadedFileURL is required")
		return
	}

	visibility := domain.Visibility(req.Visibility)
	if req.Visibility != "" && !visibility.Valid() {
		writeError(w, http.StatusBadRequest, "visibility must be 'public' or 'private'")
		return
	}

	objectPath, err := h.uploads.FinalizeUpload(r.Context(), service.FinalizeRequest{
		UploadedFileURL: req.UploadedFileURL,
		Owner:           auth.IdentityFromContext(r.Context()),
		Visibility:      visibility,
	})
	if err != nil {
		mapServiceError(w, h.logger, err)
		return
	}

	h.logger.Info().
		Str("path", objectPath).
		Str("entity_type", req.EntityType).
		Msg("upload finalized")
	writeJSON(w, http.StatusOK, finalizeResponse{ObjectPath: objectPath})
}
