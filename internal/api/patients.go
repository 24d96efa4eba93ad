package api

import (
	"net/http"

	"github.com/hackgods/clinicdesk/internal/patient"
)

func (h *handlers) listPatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := patient.ParseStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}
	listing, err := h.cfg.Patients.List(r.Context(), status, q.Get("q"))
	if err != nil {
		handleBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *handlers) deactivatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", err.Error())
		return
	}
	if err := h.cfg.Patients.Deactivate(r.Context(), id); err != nil {
		handlePatientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": false})
}

func (h *handlers) reactivatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", err.Error())
		return
	}
	if err := h.cfg.Patients.Reactivate(r.Context(), id); err != nil {
		handlePatientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": true})
}
