// Package handler holds the HTTP handlers. Handlers parse requests, call a
// service and write the response; they hold no business rules.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/fragments/internal/apperror"
	"github.com/sakif/fragments/internal/service"
)

// VisitorHeader carries the anonymous visitor ID used for resonances.
const VisitorHeader = "X-Visitor-ID"

// FragmentHandler serves the gallery endpoints.
type FragmentHandler struct {
	svc    *service.FragmentService
	logger *slog.Logger
}

func NewFragmentHandler(svc *service.FragmentService, logger *slog.Logger) *FragmentHandler {
	return &FragmentHandler{svc: svc, logger: logger}
}

// HandleList serves GET /api/fragments?limit=&offset=&technology=.
func (h *FragmentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		writeError(w, err)
		return
	}
	fragments, err := h.svc.List(r.Context(), limit, offset, r.URL.Query().Get("technology"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fragments)
}

// HandleGet serves GET /api/fragments/{id}.
func (h *FragmentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type createFragmentRequest struct {
	Title    string `json:"title" validate:"required"`
	Author   string `json:"author"`
	Code     string `json:"code" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleCreate serves POST /api/fragments. The response is the stored
// fragment, thumbnail URL included when capture succeeded.
func (h *FragmentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createFragmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	f, err := h.svc.Create(r.Context(), service.CreateInput{
		Title:    req.Title,
		Author:   req.Author,
		Code:     req.Code,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

type deleteFragmentRequest struct {
	Password string `json:"password" validate:"required"`
}

// HandleDelete serves DELETE /api/fragments/{id} with {"password": "..."}.
func (h *FragmentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteFragmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resonanceResponse struct {
	ResonanceCount int `json:"resonanceCount"`
}

// HandleResonate serves POST /api/fragments/{id}/resonances.
func (h *FragmentHandler) HandleResonate(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Resonate(r.Context(), chi.URLParam(r, "id"), r.Header.Get(VisitorHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resonanceResponse{ResonanceCount: n})
}

// HandleUnresonate serves DELETE /api/fragments/{id}/resonances.
func (h *FragmentHandler) HandleUnresonate(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Unresonate(r.Context(), chi.URLParam(r, "id"), r.Header.Get(VisitorHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resonanceResponse{ResonanceCount: n})
}

// HandleListWhispers serves GET /api/fragments/{id}/whispers.
func (h *FragmentHandler) HandleListWhispers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		writeError(w, err)
		return
	}
	whispers, err := h.svc.ListWhispers(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, whispers)
}

type whisperRequest struct {
	Author  string `json:"author"`
	Content string `json:"content" validate:"required"`
}

// HandleWhisper serves POST /api/fragments/{id}/whispers.
func (h *FragmentHandler) HandleWhisper(w http.ResponseWriter, r *http.Request) {
	var req whisperRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	wh, err := h.svc.Whisper(r.Context(), chi.URLParam(r, "id"), req.Author, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

// paging reads limit and offset; absent values are zero and the service
// applies its defaults.
func paging(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, apperror.ValidationFailed("limit", "limit must be a number")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, apperror.ValidationFailed("offset", "offset must be a number")
		}
	}
	return limit, offset, nil
}
