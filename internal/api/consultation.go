package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/history"
)

var catalogKinds = map[string]gateway.CatalogKind{
	"allergies":       gateway.CatalogAllergies,
	"diseases":        gateway.CatalogDiseases,
	"family-diseases": gateway.CatalogFamilyDiseases,
	"medications":     gateway.CatalogMedications,
	"durations":       gateway.CatalogDurations,
	"dosages":         gateway.CatalogDosages,
}

// catalog returns the whole table, or suggestions when q is given.
func (h *handlers) catalog(w http.ResponseWriter, r *http.Request) {
	kind, ok := catalogKinds[chi.URLParam(r, "kind")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_catalog", "no such catalog")
		return
	}
	if !r.URL.Query().Has("q") {
		table, err := h.cfg.Catalogs.Table(r.Context(), kind)
		if err != nil {
			handleBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listOf(table))
		return
	}
	s, err := h.cfg.Catalogs.Suggest(r.Context(), kind, r.URL.Query().Get("q"))
	if err != nil {
		handleBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) desk(r *http.Request) *history.Desk {
	return h.cfg.Desks.For(sessionOf(r))
}

func (h *handlers) currentConsultation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.desk(r).Current()
	if !ok {
		handleConsultationError(w, history.ErrNotOpen)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handlers) openConsultation(w http.ResponseWriter, r *http.Request) {
	var req OpenConsultationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	appt, err := h.findAppointment(r.Context(), sessionOf(r), req.AppointmentID)
	if errors.Is(err, errAppointmentNotFound) {
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
		return
	}
	if err != nil {
		handleBackendError(w, err)
		return
	}
	c, err := h.desk(r).Open(r.Context(), appt)
	if err != nil {
		handleConsultationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handlers) cancelConsultation(w http.ResponseWriter, r *http.Request) {
	h.desk(r).Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) reloadConsultation(w http.ResponseWriter, r *http.Request) {
	h.respondConsultation(w)(h.desk(r).Reload(r.Context()))
}

func (h *handlers) addNote(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	h.respondConsultation(w)(h.desk(r).AddNote(r.Context(), req.Text))
}

func (h *handlers) addHistoryItem(w http.ResponseWriter, r *http.Request) {
	var req HistoryItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	h.respondConsultation(w)(h.desk(r).AddReference(r.Context(), history.Item(req.Item), req.ID))
}

func (h *handlers) addPrescription(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	h.respondConsultation(w)(h.desk(r).AddPrescription(r.Context(), req.Text))
}

func (h *handlers) addMedication(w http.ResponseWriter, r *http.Request) {
	var req MedicationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	h.respondConsultation(w)(h.desk(r).AddMedication(r.Context(), history.Medication{
		MedicationID: req.MedicationID,
		DurationID:   req.DurationID,
		DosageID:     req.DosageID,
		FreeDosage:   req.FreeDosage,
	}))
}

func (h *handlers) concludeConsultation(w http.ResponseWriter, r *http.Request) {
	out, err := h.desk(r).Conclude(r.Context())
	if err != nil {
		handleConsultationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) respondConsultation(w http.ResponseWriter) func(history.Consultation, error) {
	return func(c history.Consultation, err error) {
		if err != nil {
			handleConsultationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}
