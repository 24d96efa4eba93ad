package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/agenda"
	"github.com/hackgods/clinicdesk/internal/appointment"
)

func (h *handlers) viewAgenda(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a := h.cfg.Agendas.For(sessionOf(r))

	err := a.SetRange(r.Context(), agenda.Range{From: q.Get("from"), To: q.Get("to")})
	page, _ := strconv.Atoi(q.Get("page"))
	pg := a.View(q.Get("q"), page)
	if err != nil {
		if pg.RefreshedAt.IsZero() {
			handleBackendError(w, err)
			return
		}
		h.cfg.Log.Warn("agenda refresh failed, serving cached rows", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, pg)
}

func (h *handlers) refreshAgenda(w http.ResponseWriter, r *http.Request) {
	a := h.cfg.Agendas.For(sessionOf(r))
	if err := a.Refresh(r.Context()); err != nil {
		handleBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.View(r.URL.Query().Get("q"), 1))
}

// focusAgenda is called when the dashboard regains focus.
func (h *handlers) focusAgenda(w http.ResponseWriter, r *http.Request) {
	a := h.cfg.Agendas.For(sessionOf(r))
	if err := a.Focus(r.Context()); err != nil {
		h.cfg.Log.Warn("agenda focus refresh failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", err.Error())
		return
	}
	var req StatusChangeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	row, err := h.cfg.Agendas.For(sessionOf(r)).ChangeStatus(r.Context(), id, appointment.StatusID(req.StatusID))
	if err != nil {
		handleBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
