package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ports"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/validation"
)

const (
	importFormField = "csv"
	exportFileName  = "phone-tags.csv"

	// maxJSONBody bounds the small JSON request bodies.
	maxJSONBody = 64 << 10
)

type TagHandler struct {
	service        ports.TagService
	validator      *validation.Validator
	logger         *slog.Logger
	importMaxBytes int64
}

func NewTagHandler(service ports.TagService, v *validation.Validator, logger *slog.Logger, importMaxBytes int64) *TagHandler {
	return &TagHandler{
		service:        service,
		validator:      v,
		logger:         logger,
		importMaxBytes: importMaxBytes,
	}
}

// TagRequest is the payload for adding or removing a tag.
type TagRequest struct {
	Phone string `json:"phone" validate:"required,max=64"`
	Tag   string `json:"tag" validate:"required,max=100"`
}

// ReportRequest is the payload for POST /api/v1/report.
type ReportRequest struct {
	ID string `json:"id" validate:"required"`
}

type phoneTagsResponse struct {
	Phone string                  `json:"phone"`
	Tags  []domain.TagAssociation `json:"tags"`
}

type addTagResponse struct {
	Tag     *domain.TagAssociation `json:"tag"`
	Created bool                   `json:"created"`
}

type removeTagResponse struct {
	Phone   string `json:"phone"`
	Tag     string `json:"tag"`
	Deleted bool   `json:"deleted"`
}

type importResponse struct {
	Imported int `json:"imported"`
}

func (h *TagHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return domain.InvalidInput("invalid request body")
	}
	return h.validator.Validate(dst)
}

// List returns the tags of the phone given in ?phone=.
func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("phone")
	tags, err := h.service.ListTags(r.Context(), raw)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, phoneTagsResponse{Phone: h.service.NormalizePhone(raw), Tags: tags})
}

// Add attaches a tag. 201 when created, 200 when it already existed.
func (h *TagHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := h.decode(w, r, &req); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	tag, created, err := h.service.AddTag(r.Context(), req.Phone, req.Tag)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, addTagResponse{Tag: tag, Created: created})
}

func (h *TagHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := h.decode(w, r, &req); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	deleted, err := h.service.RemoveTag(r.Context(), req.Phone, req.Tag)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	if deleted {
		h.logger.Info("admin removed tag", "admin", AdminFromContext(r.Context()), "tag", req.Tag)
	}
	writeJSON(w, http.StatusOK, removeTagResponse{
		Phone:   h.service.NormalizePhone(req.Phone),
		Tag:     strings.TrimSpace(req.Tag),
		Deleted: deleted,
	})
}

func (h *TagHandler) Get(w http.ResponseWriter, r *http.Request) {
	tag, err := h.service.GetTag(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// Report handles POST /api/v1/tags/{id}/report.
func (h *TagHandler) Report(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, chi.URLParam(r, "id"))
}

// ReportByBody handles POST /api/v1/report with {"id": ...}.
func (h *TagHandler) ReportByBody(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := h.decode(w, r, &req); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.report(w, r, req.ID)
}

func (h *TagHandler) report(w http.ResponseWriter, r *http.Request, id string) {
	tag, err := h.service.ReportTag(r.Context(), id)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

func (h *TagHandler) Search(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Import accepts either a multipart upload in the "csv" field or the raw text as the body.
func (h *TagHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.importMaxBytes)

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.importMaxBytes); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				handleError(w, r, h.logger, err)
				return
			}
			handleError(w, r, h.logger, domain.InvalidInput("invalid multipart form"))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, _, err := r.FormFile(importFormField)
		if err != nil {
			handleError(w, r, h.logger, domain.InvalidInputf("missing %q file field", importFormField))
			return
		}
		defer file.Close()
		src = file
	}

	n, err := h.service.Import(r.Context(), src)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.logger.Info("admin import", "admin", AdminFromContext(r.Context()), "pairs", n)
	writeJSON(w, http.StatusOK, importResponse{Imported: n})
}

// Export streams the whole registry as a file download.
func (h *TagHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": exportFileName}))

	out := &trackingWriter{ResponseWriter: w}
	if err := h.service.Export(r.Context(), out); err != nil {
		if out.wrote {
			// The download already started; the client sees a truncated file.
			h.logger.Error("export aborted mid-stream", "error", err)
			return
		}
		w.Header().Del("Content-Disposition")
		handleError(w, r, h.logger, err)
	}
}

type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(p)
}

// Health pings the store and reports its size.
func (h *TagHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"associations": stats.Associations,
		"phones":       stats.Phones,
	})
}
