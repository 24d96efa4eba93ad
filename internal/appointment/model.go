package appointment

import (
	"fmt"
	"strings"
)

// StatusID mirrors the backend's consultation status catalog.
type StatusID int

const (
	StatusScheduled   StatusID = 1
	StatusCompleted   StatusID = 2
	StatusPresence    StatusID = 4
	StatusRescheduled StatusID = 5
)

type Appointment struct {
	ID          int64    `json:"id"`
	Date        string   `json:"date"` // YYYY-MM-DD
	Time        string   `json:"time"` // HH:MM
	DoctorID    int64    `json:"doctor_id"`
	MedicID     int64    `json:"medic_id,omitempty"` // used by the medical history
	DoctorName  string   `json:"doctor_name"`
	DoctorCPF   string   `json:"doctor_cpf,omitempty"`
	PatientID   int64    `json:"patient_id"`
	PatientName string   `json:"patient_name"`
	PatientCPF  string   `json:"patient_cpf,omitempty"`
	SpecialtyID int64    `json:"specialty_id"`
	Specialty   string   `json:"specialty"`
	StatusID    StatusID `json:"status_id"`
	Status      string   `json:"status"`
}

// Draft is what the appointment dialog writes. Zero ids mean "not selected".
type Draft struct {
	DoctorID    int64
	PatientID   int64
	Date        string
	Time        string
	SpecialtyID int64
	StatusID    StatusID
}

type Doctor struct {
	ID      int64  `json:"id"` // professional id, the one appointments reference
	MedicID int64  `json:"medic_id"`
	Name    string `json:"name"`
	CPF     string `json:"cpf"`
}

type PatientRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	CPF  string `json:"cpf"`
}

type Status struct {
	ID   StatusID `json:"id"`
	Name string   `json:"name"`
}

type Specialty struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Mode is the dialog mode. Exactly one of Create, Edit or Reschedule.
type Mode interface {
	mode()
	String() string
}

type Create struct{}

// Edit rewrites an appointment keeping its current status.
type Edit struct {
	AppointmentID int64
	CurrentStatus StatusID
}

// Reschedule rewrites an appointment and marks it rescheduled.
type Reschedule struct {
	AppointmentID int64
}

func (Create) mode()     {}
func (Edit) mode()       {}
func (Reschedule) mode() {}

func (Create) String() string     { return "create" }
func (Edit) String() string       { return "edit" }
func (Reschedule) String() string { return "reschedule" }

// StatusOnSave is the status written when the dialog saves in mode m.
func StatusOnSave(m Mode) StatusID {
	switch m := m.(type) {
	case Create:
		return StatusScheduled
	case Edit:
		return m.CurrentStatus
	case Reschedule:
		return StatusRescheduled
	}
	panic(fmt.Sprintf("appointment: unhandled mode %T", m))
}

// TargetID is the id of the appointment being changed, 0 when creating.
func TargetID(m Mode) int64 {
	switch m := m.(type) {
	case Create:
		return 0
	case Edit:
		return m.AppointmentID
	case Reschedule:
		return m.AppointmentID
	}
	panic(fmt.Sprintf("appointment: unhandled mode %T", m))
}

// ParseMode builds a mode from its wire name. Edit needs the current status
// of the appointment, which only the caller knows.
func ParseMode(name string, id int64, current StatusID) (Mode, error) {
	switch name {
	case "create":
		return Create{}, nil
	case "edit":
		if id <= 0 {
			return nil, fmt.Errorf("edit requires an appointment id")
		}
		return Edit{AppointmentID: id, CurrentStatus: current}, nil
	case "reschedule":
		if id <= 0 {
			return nil, fmt.Errorf("reschedule requires an appointment id")
		}
		return Reschedule{AppointmentID: id}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", name)
}

// DatePart keeps the calendar date of an ISO timestamp.
func DatePart(iso string) string {
	if i := strings.IndexByte(iso, 'T'); i >= 0 {
		return iso[:i]
	}
	return iso
}

// Minute truncates HH:MM:SS to HH:MM.
func Minute(hhmmss string) string {
	if len(hhmmss) > 5 {
		return hhmmss[:5]
	}
	return hhmmss
}

// Patient is the full patient record as the directory and patient dialog see it.
type Patient struct {
	ID           int64  `json:"id"`
	CPF          string `json:"cpf"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	BirthDate    string `json:"birth_date"` // YYYY-MM-DD
	Gender       string `json:"gender"`
	CEP          string `json:"cep"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	City         string `json:"city"`
	UF           string `json:"uf"`
	RegisteredAt string `json:"registered_at,omitempty"`
	Active       bool   `json:"active"`
}

// Address joins street and number the way the backend stores them.
func (p Patient) Address() string {
	if p.Number == "" {
		return p.Street
	}
	return p.Street + ", " + p.Number
}

// SplitAddress undoes Address.
func SplitAddress(addr string) (street, number string) {
	street, number, _ = strings.Cut(addr, ",")
	return strings.TrimSpace(street), strings.TrimSpace(number)
}
