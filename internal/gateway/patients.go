package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hackgods/clinicdesk/internal/appointment"
)

type wirePatient struct {
	ID           int64  `json:"id_paciente,omitempty"`
	CPF          string `json:"pac_cpf"`
	Name         string `json:"pac_nome"`
	Email        string `json:"pac_email"`
	Phone        string `json:"pac_telefone"`
	BirthDate    string `json:"pac_data_nascimento"`
	Gender       string `json:"pac_genero"`
	CEP          string `json:"pac_cep"`
	Address      string `json:"pac_endereco"`
	City         string `json:"pac_cidade"`
	UF           string `json:"pac_estado"`
	RegisteredAt string `json:"pac_data_cadastro,omitempty"`
	Active       *bool  `json:"pac_ativo,omitempty"`
}

func (w wirePatient) domain() appointment.Patient {
	street, number := appointment.SplitAddress(w.Address)
	p := appointment.Patient{
		ID:           w.ID,
		CPF:          w.CPF,
		Name:         w.Name,
		Email:        w.Email,
		Phone:        w.Phone,
		BirthDate:    appointment.DatePart(w.BirthDate),
		Gender:       w.Gender,
		CEP:          w.CEP,
		Street:       street,
		Number:       number,
		City:         w.City,
		UF:           w.UF,
		RegisteredAt: appointment.DatePart(w.RegisteredAt),
		Active:       true,
	}
	if w.Active != nil {
		p.Active = *w.Active
	}
	return p
}

func patientPayload(p appointment.Patient) wirePatient {
	return wirePatient{
		CPF:       p.CPF,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		BirthDate: p.BirthDate,
		Gender:    p.Gender,
		CEP:       p.CEP,
		Address:   p.Address(),
		City:      p.City,
		UF:        p.UF,
	}
}

// ListPatients returns active and inactive patients alike.
func (c *Client) ListPatients(ctx context.Context) ([]appointment.Patient, error) {
	var rows []wirePatient
	if err := c.get(ctx, "/pacientes", url.Values{"ativo": {"all"}}, &rows); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	out := make([]appointment.Patient, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.domain())
	}
	return out, nil
}

func (c *Client) CreatePatient(ctx context.Context, p appointment.Patient) error {
	if err := c.send(ctx, http.MethodPost, "/pacientes", patientPayload(p), nil); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (c *Client) UpdatePatient(ctx context.Context, id int64, p appointment.Patient) error {
	if err := c.send(ctx, http.MethodPut, fmt.Sprintf("/pacientes/%d", id), patientPayload(p), nil); err != nil {
		return fmt.Errorf("update patient %d: %w", id, err)
	}
	return nil
}

// DeactivatePatient fails with ErrConflict while the patient has open appointments.
func (c *Client) DeactivatePatient(ctx context.Context, id int64) error {
	if err := c.send(ctx, http.MethodDelete, fmt.Sprintf("/pacientes/%d", id), nil, nil); err != nil {
		return fmt.Errorf("deactivate patient %d: %w", id, err)
	}
	return nil
}

func (c *Client) ReactivatePatient(ctx context.Context, id int64) error {
	if err := c.send(ctx, http.MethodPut, fmt.Sprintf("/pacientes/%d/reativar", id), nil, nil); err != nil {
		return fmt.Errorf("reactivate patient %d: %w", id, err)
	}
	return nil
}
