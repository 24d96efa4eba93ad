// Package availability answers whether a doctor already has an appointment at
// a given date and time. The answer is advisory: the backend is expected to
// reject real double bookings on its own.
package availability

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/gateway"
)

const (
	OutcomeConflict = "conflict"
	OutcomeFree     = "free"
	OutcomeError    = "error"
	OutcomeStale    = "stale"
)

// Lister is the slice of the gateway the checker needs.
type Lister interface {
	ListAppointments(ctx context.Context, f gateway.AppointmentFilter) ([]appointment.Appointment, error)
}

// Recorder receives one outcome per finished check.
type Recorder interface {
	ObserveAvailability(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAvailability(string) {}

// Query identifies a slot. ExcludeID is the appointment being edited, 0 when
// creating.
type Query struct {
	DoctorID  int64
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	ExcludeID int64
}

func (q Query) Complete() bool {
	return q.DoctorID > 0 && q.Date != "" && q.Time != ""
}

func (q Query) String() string {
	return fmt.Sprintf("doctor=%d date=%s time=%s exclude=%d", q.DoctorID, q.Date, q.Time, q.ExcludeID)
}

// Conflicts reports whether any appointment other than q.ExcludeID sits at
// q.Time. appts are expected to be the doctor's appointments on q.Date.
func Conflicts(appts []appointment.Appointment, q Query) bool {
	for _, a := range appts {
		if appointment.Minute(a.Time) == q.Time && a.ID != q.ExcludeID {
			return true
		}
	}
	return false
}

type Checker struct {
	lister   Lister
	log      *zap.Logger
	recorder Recorder
}

func NewChecker(lister Lister, log *zap.Logger, recorder Recorder) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Checker{lister: lister, log: log, recorder: recorder}
}

// Check lists the doctor's appointments for the day and looks for q's slot.
func (c *Checker) Check(ctx context.Context, q Query) (bool, error) {
	appts, err := c.lister.ListAppointments(ctx, gateway.AppointmentFilter{
		DoctorID: q.DoctorID,
		From:     q.Date,
		To:       q.Date,
	})
	if err != nil {
		return false, fmt.Errorf("check availability %s: %w", q, err)
	}
	return Conflicts(appts, q), nil
}
