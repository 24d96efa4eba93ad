package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/form"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/session"
)

var errAppointmentNotFound = errors.New("appointment not found")

// findAppointment looks in the desk's agenda first and falls back to a full
// listing for rows outside the current range.
func (h *handlers) findAppointment(ctx context.Context, sess session.Session, id int64) (appointment.Appointment, error) {
	if appt, ok := h.cfg.Agendas.For(sess).Find(id); ok {
		return appt, nil
	}
	all, err := h.cfg.Backend.ListAppointments(ctx, gateway.AppointmentFilter{})
	if err != nil {
		return appointment.Appointment{}, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return appointment.Appointment{}, errAppointmentNotFound
}

func (h *handlers) openAppointmentForm(w http.ResponseWriter, r *http.Request) {
	var req OpenAppointmentFormRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess := sessionOf(r)

	var (
		initial form.AppointmentValues
		current appointment.StatusID
	)
	if req.Mode != "create" {
		appt, err := h.findAppointment(r.Context(), sess, req.AppointmentID)
		if errors.Is(err, errAppointmentNotFound) {
			writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
			return
		}
		if err != nil {
			handleBackendError(w, err)
			return
		}
		initial = form.ValuesOf(appt)
		current = appt.StatusID
	}

	mode, err := appointment.ParseMode(req.Mode, req.AppointmentID, current)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	}
	f := h.cfg.Forms.OpenAppointment(r.Context(), ownerOf(sess), mode, initial)
	writeJSON(w, http.StatusCreated, f.State())
}

func (h *handlers) appointmentForm(w http.ResponseWriter, r *http.Request) (*form.AppointmentForm, bool) {
	f, err := h.cfg.Forms.Appointment(chi.URLParam(r, "id"), ownerOf(sessionOf(r)))
	if err != nil {
		handleFormError(w, err, nil)
		return nil, false
	}
	return f, true
}

func (h *handlers) getAppointmentForm(w http.ResponseWriter, r *http.Request) {
	f, ok := h.appointmentForm(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.State())
}

func (h *handlers) patchAppointmentForm(w http.ResponseWriter, r *http.Request) {
	f, ok := h.appointmentForm(w, r)
	if !ok {
		return
	}
	var p form.AppointmentPatch
	if err := decodeRaw(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	state, err := f.Apply(r.Context(), p)
	if err != nil {
		handleFormError(w, err, state)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handlers) submitAppointmentForm(w http.ResponseWriter, r *http.Request) {
	f, ok := h.appointmentForm(w, r)
	if !ok {
		return
	}
	state, err := f.Submit(r.Context())
	if err != nil {
		handleFormError(w, err, state)
		return
	}
	h.cfg.Forms.Forget(f.ID(), f.Owner())
	writeJSON(w, http.StatusOK, state)
}

func (h *handlers) closeAppointmentForm(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Forms.CloseAppointment(chi.URLParam(r, "id"), ownerOf(sessionOf(r))); err != nil {
		handleFormError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) openPatientForm(w http.ResponseWriter, r *http.Request) {
	var req OpenPatientFormRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	mode, err := form.ParsePatientMode(req.Mode, req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	}

	var initial form.PatientValues
	if _, ok := mode.(form.EditPatient); ok {
		p, err := h.cfg.Patients.Get(r.Context(), req.PatientID)
		if err != nil {
			handlePatientError(w, err)
			return
		}
		initial = form.PatientValuesOf(p)
	}

	f := h.cfg.Forms.OpenPatient(ownerOf(sessionOf(r)), mode, initial)
	writeJSON(w, http.StatusCreated, f.State())
}

func (h *handlers) patientForm(w http.ResponseWriter, r *http.Request) (*form.PatientForm, bool) {
	f, err := h.cfg.Forms.Patient(chi.URLParam(r, "id"), ownerOf(sessionOf(r)))
	if err != nil {
		handleFormError(w, err, nil)
		return nil, false
	}
	return f, true
}

func (h *handlers) getPatientForm(w http.ResponseWriter, r *http.Request) {
	f, ok := h.patientForm(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.State())
}

func (h *handlers) patchPatientForm(w http.ResponseWriter, r *http.Request) {
	f, ok := h.patientForm(w, r)
	if !ok {
		return
	}
	var p form.PatientPatch
	if err := decodeRaw(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	state, err := f.Apply(r.Context(), p)
	if err != nil {
		handleFormError(w, err, state)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handlers) submitPatientForm(w http.ResponseWriter, r *http.Request) {
	f, ok := h.patientForm(w, r)
	if !ok {
		return
	}
	state, err := f.Submit(r.Context())
	if err != nil {
		handleFormError(w, err, state)
		return
	}
	h.cfg.Forms.Forget(f.ID(), f.Owner())
	writeJSON(w, http.StatusOK, state)
}

func (h *handlers) closePatientForm(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Forms.ClosePatient(chi.URLParam(r, "id"), ownerOf(sessionOf(r))); err != nil {
		handleFormError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
