package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hackgods/clinicdesk/internal/appointment"
)

type wireAppointment struct {
	ID               int64  `json:"id_consulta"`
	Date             string `json:"consult_data"`
	Time             string `json:"consult_hora"`
	ProfessionalID   int64  `json:"id_profissional"`
	MedicID          int64  `json:"id_medico"`
	ProfessionalName string `json:"profissional_nome"`
	ProfName         string `json:"prof_nome"`
	ProfCPF          string `json:"prof_cpf"`
	PatientID        int64  `json:"id_paciente"`
	PatientName      string `json:"pac_nome"`
	PatientCPF       string `json:"paciente_cpf"`
	SpecialtyID      int64  `json:"id_tipo_consulta"`
	Specialty        string `json:"tipoconsulta_nome"`
	StatusID         int    `json:"id_consult_status"`
	Status           string `json:"status_consulta"`
}

func (w wireAppointment) domain() appointment.Appointment {
	doctorID := w.ProfessionalID
	if doctorID == 0 {
		doctorID = w.MedicID
	}
	return appointment.Appointment{
		ID:          w.ID,
		Date:        appointment.DatePart(w.Date),
		Time:        appointment.Minute(w.Time),
		DoctorID:    doctorID,
		MedicID:     w.MedicID,
		DoctorName:  firstNonEmpty(w.ProfessionalName, w.ProfName),
		DoctorCPF:   w.ProfCPF,
		PatientID:   w.PatientID,
		PatientName: w.PatientName,
		PatientCPF:  w.PatientCPF,
		SpecialtyID: w.SpecialtyID,
		Specialty:   w.Specialty,
		StatusID:    appointment.StatusID(w.StatusID),
		Status:      w.Status,
	}
}

type wireDraft struct {
	PatientID   int64  `json:"id_paciente"`
	DoctorID    int64  `json:"id_profissional"`
	Date        string `json:"consult_data"`
	Time        string `json:"consult_hora"`
	SpecialtyID int64  `json:"id_tipo_consulta"`
	StatusID    int    `json:"id_consult_status"`
}

func draftPayload(d appointment.Draft) wireDraft {
	return wireDraft{
		PatientID:   d.PatientID,
		DoctorID:    d.DoctorID,
		Date:        d.Date,
		Time:        d.Time,
		SpecialtyID: d.SpecialtyID,
		StatusID:    int(d.StatusID),
	}
}

// AppointmentFilter narrows a listing. Zero values are omitted.
type AppointmentFilter struct {
	DoctorID int64
	From     string // YYYY-MM-DD, inclusive
	To       string // YYYY-MM-DD, inclusive
}

func (f AppointmentFilter) query() url.Values {
	q := url.Values{}
	if f.DoctorID > 0 {
		q.Set("id_profissional", strconv.FormatInt(f.DoctorID, 10))
	}
	if f.From != "" {
		q.Set("data_ini", f.From)
	}
	if f.To != "" {
		q.Set("data_fim", f.To)
	}
	return q
}

func (c *Client) ListAppointments(ctx context.Context, f AppointmentFilter) ([]appointment.Appointment, error) {
	var rows []wireAppointment
	if err := c.get(ctx, "/consultas", f.query(), &rows); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	out := make([]appointment.Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.domain())
	}
	return out, nil
}

func (c *Client) CreateAppointment(ctx context.Context, d appointment.Draft) error {
	if err := c.send(ctx, http.MethodPost, "/consultas", draftPayload(d), nil); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (c *Client) UpdateAppointment(ctx context.Context, id int64, d appointment.Draft) error {
	if err := c.send(ctx, http.MethodPut, fmt.Sprintf("/consultas/%d", id), draftPayload(d), nil); err != nil {
		return fmt.Errorf("update appointment %d: %w", id, err)
	}
	return nil
}

func (c *Client) SetAppointmentStatus(ctx context.Context, id int64, status appointment.StatusID) error {
	body := map[string]int{"id_consult_status": int(status)}
	if err := c.send(ctx, http.MethodPatch, fmt.Sprintf("/consultas/%d/status", id), body, nil); err != nil {
		return fmt.Errorf("set appointment %d status: %w", id, err)
	}
	return nil
}

// StartAppointment tells the backend the doctor opened the consultation.
func (c *Client) StartAppointment(ctx context.Context, id int64) error {
	if err := c.send(ctx, http.MethodPatch, fmt.Sprintf("/consultas/%d/inicio", id), nil, nil); err != nil {
		return fmt.Errorf("start appointment %d: %w", id, err)
	}
	return nil
}

func (c *Client) SendFeedbackEmail(ctx context.Context, id int64) error {
	if err := c.send(ctx, http.MethodPost, fmt.Sprintf("/consultas/%d/enviar-feedback-email", id), nil, nil); err != nil {
		return fmt.Errorf("send feedback email for %d: %w", id, err)
	}
	return nil
}

func (c *Client) ListStatuses(ctx context.Context) ([]appointment.Status, error) {
	var rows []struct {
		ID   int    `json:"id_consult_status"`
		Name string `json:"status_consulta"`
	}
	if err := c.get(ctx, "/statusconsulta", nil, &rows); err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	out := make([]appointment.Status, 0, len(rows))
	for _, r := range rows {
		out = append(out, appointment.Status{ID: appointment.StatusID(r.ID), Name: r.Name})
	}
	return out, nil
}

func (c *Client) ListSpecialties(ctx context.Context) ([]appointment.Specialty, error) {
	var rows []struct {
		ID   int64  `json:"id_tipo_consulta"`
		Name string `json:"tipoconsulta_nome"`
	}
	if err := c.get(ctx, "/tiposconsulta", nil, &rows); err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	out := make([]appointment.Specialty, 0, len(rows))
	for _, r := range rows {
		out = append(out, appointment.Specialty{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

// SearchDoctors lists doctors matching term. An empty term lists all of them.
func (c *Client) SearchDoctors(ctx context.Context, term string) ([]appointment.Doctor, error) {
	var q url.Values
	if term != "" {
		q = url.Values{"search": {term}}
	}
	var rows []struct {
		MedicID        int64  `json:"id_medico"`
		ProfessionalID int64  `json:"id_profissional"`
		Name           string `json:"prof_nome"`
		CPF            string `json:"prof_cpf"`
	}
	if err := c.get(ctx, "/medicos", q, &rows); err != nil {
		return nil, fmt.Errorf("search doctors: %w", err)
	}
	out := make([]appointment.Doctor, 0, len(rows))
	for _, r := range rows {
		out = append(out, appointment.Doctor{ID: r.ProfessionalID, MedicID: r.MedicID, Name: r.Name, CPF: r.CPF})
	}
	return out, nil
}

func (c *Client) SearchPatients(ctx context.Context, term string) ([]appointment.PatientRef, error) {
	var rows []struct {
		ID   int64  `json:"id_paciente"`
		Name string `json:"pac_nome"`
		CPF  string `json:"pac_cpf"`
	}
	if err := c.get(ctx, "/pacientes", url.Values{"search": {term}}, &rows); err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	out := make([]appointment.PatientRef, 0, len(rows))
	for _, r := range rows {
		out = append(out, appointment.PatientRef{ID: r.ID, Name: r.Name, CPF: r.CPF})
	}
	return out, nil
}
