// Package form holds the server side state of the appointment and patient
// dialogs: draft values, per field messages, the dialog phase and the submit
// gate. Forms are safe for concurrent use; the availability tracker of an
// appointment form publishes its results from background goroutines.
package form

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/audit"
	"github.com/hackgods/clinicdesk/internal/availability"
	"github.com/hackgods/clinicdesk/internal/gateway"
	redisclient "github.com/hackgods/clinicdesk/internal/redis"
	"github.com/hackgods/clinicdesk/internal/session"
)

type Phase string

const (
	PhaseClosed     Phase = "closed"
	PhaseEditing    Phase = "editing"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
)

var (
	ErrNotFound            = errors.New("form not found")
	ErrClosed              = errors.New("form is closed")
	ErrBusy                = errors.New("form is being submitted")
	ErrGateClosed          = errors.New("form has invalid or missing fields")
	ErrConflict            = errors.New("doctor already booked at this time")
	ErrAvailabilityUnknown = errors.New("could not verify doctor availability")
	ErrSlotBeingBooked     = errors.New("slot is being booked from another desk")
	ErrDuplicateCPF        = errors.New("CPF already registered")
)

const (
	OutcomeSuccess    = "success"
	OutcomeInvalid    = "invalid"
	OutcomeConflict   = "conflict"
	OutcomeUnverified = "unverified"
	OutcomeLocked     = "locked"
	OutcomeDuplicate  = "duplicate"
	OutcomeBackend    = "backend_error"
)

// Recorder receives one outcome per submit attempt.
type Recorder interface {
	ObserveSubmission(kind, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSubmission(string, string) {}

// Deps are shared by every form of a registry.
type Deps struct {
	Appointments AppointmentWriter
	Patients     PatientWriter
	Postal       PostalLookup
	Checker      *availability.Checker
	Locker       redisclient.Locker
	Audit        *audit.Recorder
	// Now returns the current instant in the clinic zone.
	Now      func() time.Time
	Debounce time.Duration
	Log      *zap.Logger
	Recorder Recorder
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locker == nil {
		d.Locker = redisclient.NoopLocker()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	return d
}

// actorOf names the caller in the audit log.
func actorOf(ctx context.Context, owner string) string {
	if s, ok := session.FromContext(ctx); ok {
		return s.Actor()
	}
	return owner
}

// errorMessage is the text shown for a failed backend write.
func errorMessage(err error, fallback string) string {
	if msg := gateway.Message(err); msg != "" {
		return msg
	}
	return fallback
}
