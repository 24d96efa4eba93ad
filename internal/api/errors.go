package api

import (
	"errors"
	"net/http"

	"github.com/hackgods/clinicdesk/internal/form"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/history"
	"github.com/hackgods/clinicdesk/internal/patient"
	"github.com/hackgods/clinicdesk/internal/postal"
	redisclient "github.com/hackgods/clinicdesk/internal/redis"
	"github.com/hackgods/clinicdesk/internal/session"
)

// handleBackendError maps a failed gateway call. Backend messages are passed
// through so the desk shows what the backend said.
func handleBackendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "session_rejected", err.Error())
	case errors.Is(err, gateway.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", backendDetails(err))
	case errors.Is(err, gateway.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", backendDetails(err))
	default:
		writeError(w, http.StatusBadGateway, "backend_error", backendDetails(err))
	}
}

func backendDetails(err error) string {
	if msg := gateway.Message(err); msg != "" {
		return msg
	}
	return err.Error()
}

func handleSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrExpired):
		writeError(w, http.StatusUnauthorized, "session_expired", err.Error())
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "token signature is not valid")
	default:
		writeError(w, http.StatusUnauthorized, "missing_session", err.Error())
	}
}

// handleFormError maps form operation errors. state is echoed back so the
// dialog keeps its values and messages.
func handleFormError(w http.ResponseWriter, err error, state any) {
	switch {
	case errors.Is(err, form.ErrNotFound):
		writeError(w, http.StatusNotFound, "form_not_found", err.Error())
	case errors.Is(err, form.ErrClosed):
		writeError(w, http.StatusNotFound, "form_closed", err.Error())
	case errors.Is(err, form.ErrBusy):
		writeFormError(w, http.StatusConflict, "form_busy", err.Error(), state)
	case errors.Is(err, form.ErrGateClosed):
		writeFormError(w, http.StatusUnprocessableEntity, "form_incomplete", err.Error(), state)
	case errors.Is(err, form.ErrConflict):
		writeFormError(w, http.StatusConflict, "doctor_unavailable", err.Error(), state)
	case errors.Is(err, form.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeFormError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly", state)
	case errors.Is(err, form.ErrDuplicateCPF):
		writeFormError(w, http.StatusConflict, "duplicate_cpf", err.Error(), state)
	case errors.Is(err, form.ErrAvailabilityUnknown):
		writeFormError(w, http.StatusBadGateway, "availability_unknown", err.Error(), state)
	case errors.Is(err, gateway.ErrUnauthorized):
		writeFormError(w, http.StatusUnauthorized, "session_rejected", err.Error(), state)
	default:
		writeFormError(w, http.StatusBadGateway, "backend_error", backendDetails(err), state)
	}
}

func handlePatientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, patient.ErrNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, patient.ErrOpenAppointments):
		writeError(w, http.StatusConflict, "open_appointments", err.Error())
	default:
		handleBackendError(w, err)
	}
}

func handlePostalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, postal.ErrInvalidCEP):
		writeError(w, http.StatusBadRequest, "invalid_cep", err.Error())
	case errors.Is(err, postal.ErrNotFound):
		writeError(w, http.StatusNotFound, "cep_not_found", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "postal_unavailable", err.Error())
	}
}

func handleConsultationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, history.ErrNotOpenable):
		writeError(w, http.StatusConflict, "not_openable", err.Error())
	case errors.Is(err, history.ErrAlreadyOpen):
		writeError(w, http.StatusConflict, "consultation_open", err.Error())
	case errors.Is(err, history.ErrNotOpen):
		writeError(w, http.StatusNotFound, "no_consultation", err.Error())
	case errors.Is(err, history.ErrEmptyText),
		errors.Is(err, history.ErrBadReference):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, history.ErrNoHistory):
		writeError(w, http.StatusConflict, "no_history", err.Error())
	default:
		handleBackendError(w, err)
	}
}
