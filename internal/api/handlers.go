package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/validate"
)

// minSearchLen is the shortest term doctor and patient pickers search for.
const minSearchLen = 2

type handlers struct {
	cfg RouterConfig
}

var errInvalidID = errors.New("id must be a positive integer")

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

func (h *handlers) validateField(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	msg := validate.Validate(validate.Field(req.Field), req.Value, validate.Context{
		Now:  h.cfg.Now(),
		Date: req.Date,
	})
	writeJSON(w, http.StatusOK, ValidateResponse{Field: req.Field, Message: msg, Valid: msg == ""})
}

func (h *handlers) lookupPostal(w http.ResponseWriter, r *http.Request) {
	addr, err := h.cfg.Postal.Lookup(r.Context(), chi.URLParam(r, "cep"))
	if err != nil {
		handlePostalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

func (h *handlers) listSpecialties(w http.ResponseWriter, r *http.Request) {
	items, err := h.cfg.Backend.ListSpecialties(r.Context())
	if err != nil {
		handleBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items))
}

func (h *handlers) listStatuses(w http.ResponseWriter, r *http.Request) {
	items, err := h.cfg.Agendas.For(sessionOf(r)).Statuses(r.Context())
	if err != nil {
		handleBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items))
}

func (h *handlers) searchDoctors(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("search"))
	if len([]rune(term)) < minSearchLen {
		writeJSON(w, http.StatusOK, listOf([]appointment.Doctor(nil)))
		return
	}
	items, err := h.cfg.Backend.SearchDoctors(r.Context(), term)
	if err != nil {
		handleBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items))
}

func (h *handlers) searchPatients(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("search"))
	if len([]rune(term)) < minSearchLen {
		writeJSON(w, http.StatusOK, listOf([]appointment.PatientRef(nil)))
		return
	}
	items, err := h.cfg.Backend.SearchPatients(r.Context(), term)
	if err != nil {
		handleBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items))
}
