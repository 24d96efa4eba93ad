// Package patient is the patient directory: listing with status filter and
// search, plus the deactivate and reactivate actions.
package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/audit"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/search"
	"github.com/hackgods/clinicdesk/internal/session"
	"github.com/hackgods/clinicdesk/internal/validate"
)

var (
	ErrNotFound         = errors.New("patient not found")
	ErrOpenAppointments = errors.New("patient has open appointments")
	ErrUnknownStatus    = errors.New("status must be active, inactive or all")
)

// BlockedError is returned when the backend refuses a deactivation because
// the patient still has open appointments.
type BlockedError struct {
	Name string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("cannot deactivate %s: there are open appointments", e.Name)
}

func (e *BlockedError) Is(target error) bool { return target == ErrOpenAppointments }

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusAll      Status = "all"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "":
		return StatusActive, nil
	case StatusActive, StatusInactive, StatusAll:
		return Status(s), nil
	}
	return "", ErrUnknownStatus
}

func (s Status) admits(p appointment.Patient) bool {
	switch s {
	case StatusActive:
		return p.Active
	case StatusInactive:
		return !p.Active
	}
	return true
}

type Source interface {
	ListPatients(ctx context.Context) ([]appointment.Patient, error)
	DeactivatePatient(ctx context.Context, id int64) error
	ReactivatePatient(ctx context.Context, id int64) error
}

type Listing struct {
	Patients []appointment.Patient `json:"patients"`
	Status   Status                `json:"status"`
	Count    int                   `json:"count"`
}

type Directory struct {
	src   Source
	audit *audit.Recorder
}

func NewDirectory(src Source, rec *audit.Recorder) *Directory {
	return &Directory{src: src, audit: rec}
}

// List fetches every patient and keeps those admitted by status and term.
func (d *Directory) List(ctx context.Context, status Status, term string) (Listing, error) {
	all, err := d.src.ListPatients(ctx)
	if err != nil {
		return Listing{}, err
	}
	m := search.NewMatcher(term)
	out := make([]appointment.Patient, 0, len(all))
	for _, p := range all {
		if status.admits(p) && Matches(m, p) {
			out = append(out, p)
		}
	}
	return Listing{Patients: out, Status: status, Count: len(out)}, nil
}

// Matches tests a patient against the directory search: name, CPF and phone
// raw and formatted, birth date as DD/MM/YYYY, email and address.
func Matches(m search.Matcher, p appointment.Patient) bool {
	return m.Any(
		p.Name,
		p.CPF,
		validate.FormatCPF(p.CPF),
		search.DisplayDate(p.BirthDate),
		p.Email,
		p.Phone,
		validate.FormatPhone(p.Phone),
		p.Address(),
		p.City,
		p.UF,
	)
}

func (d *Directory) Get(ctx context.Context, id int64) (appointment.Patient, error) {
	all, err := d.src.ListPatients(ctx)
	if err != nil {
		return appointment.Patient{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return appointment.Patient{}, ErrNotFound
}

func (d *Directory) Deactivate(ctx context.Context, id int64) error {
	p, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := d.src.DeactivatePatient(ctx, id); err != nil {
		if errors.Is(err, gateway.ErrConflict) {
			return &BlockedError{Name: p.Name}
		}
		return err
	}
	d.record(ctx, audit.EventPatientDeactivated, p)
	return nil
}

func (d *Directory) Reactivate(ctx context.Context, id int64) error {
	p, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := d.src.ReactivatePatient(ctx, id); err != nil {
		return err
	}
	d.record(ctx, audit.EventPatientReactivated, p)
	return nil
}

func (d *Directory) record(ctx context.Context, event string, p appointment.Patient) {
	sess, _ := session.FromContext(ctx)
	d.audit.Record(ctx, event, audit.EntityPatient, p.ID, sess.Actor(), map[string]any{"name": p.Name})
}
