package form

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/audit"
	"github.com/hackgods/clinicdesk/internal/availability"
	redisclient "github.com/hackgods/clinicdesk/internal/redis"
	"github.com/hackgods/clinicdesk/internal/validate"
)

const kindAppointment = "appointment"

// AppointmentWriter is the slice of the gateway an appointment form writes through.
type AppointmentWriter interface {
	CreateAppointment(ctx context.Context, d appointment.Draft) error
	UpdateAppointment(ctx context.Context, id int64, d appointment.Draft) error
}

type AppointmentValues struct {
	DoctorID    int64  `json:"doctor_id"`
	DoctorName  string `json:"doctor_name"`
	PatientID   int64  `json:"patient_id"`
	PatientName string `json:"patient_name"`
	SpecialtyID int64  `json:"specialty_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// ValuesOf seeds an edit or reschedule dialog from an existing appointment.
func ValuesOf(a appointment.Appointment) AppointmentValues {
	return AppointmentValues{
		DoctorID:    a.DoctorID,
		DoctorName:  a.DoctorName,
		PatientID:   a.PatientID,
		PatientName: a.PatientName,
		SpecialtyID: a.SpecialtyID,
		Date:        a.Date,
		Time:        appointment.Minute(a.Time),
	}
}

// AppointmentPatch sets the non-nil fields.
type AppointmentPatch struct {
	DoctorID    *int64  `json:"doctor_id"`
	DoctorName  *string `json:"doctor_name"`
	PatientID   *int64  `json:"patient_id"`
	PatientName *string `json:"patient_name"`
	SpecialtyID *int64  `json:"specialty_id"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
}

type Availability struct {
	Checking bool `json:"checking"`
	Conflict bool `json:"conflict"`
	Known    bool `json:"known"`
}

// AppointmentState is a snapshot of an appointment form.
type AppointmentState struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Phase        Phase             `json:"phase"`
	Values       AppointmentValues `json:"values"`
	Errors       map[string]string `json:"errors"`
	Availability Availability      `json:"availability"`
	CanSubmit    bool              `json:"can_submit"`
	Error        string            `json:"error,omitempty"`
}

var appointmentFields = []validate.Field{
	validate.FieldDoctor,
	validate.FieldPatient,
	validate.FieldSpecialty,
	validate.FieldDate,
	validate.FieldTime,
}

type AppointmentForm struct {
	id      string
	owner   string
	deps    Deps
	tracker *availability.Tracker

	mu        sync.Mutex
	mode      appointment.Mode
	phase     Phase
	values    AppointmentValues
	touched   map[validate.Field]bool
	errors    map[validate.Field]string
	submitErr string
	lastUsed  time.Time
}

func newAppointmentForm(id, owner string, mode appointment.Mode, initial AppointmentValues, deps Deps) *AppointmentForm {
	f := &AppointmentForm{
		id:       id,
		owner:    owner,
		deps:     deps,
		tracker:  availability.NewTracker(deps.Checker, deps.Debounce),
		mode:     mode,
		phase:    PhaseEditing,
		values:   initial,
		touched:  map[validate.Field]bool{},
		errors:   map[validate.Field]string{},
		lastUsed: deps.Now(),
	}
	if t, ok := validate.NormalizeTime(initial.Time); ok {
		f.values.Time = t
	}
	// an existing appointment starts fully validated so its slot is checked
	if _, creating := mode.(appointment.Create); !creating {
		for _, fld := range appointmentFields {
			f.touched[fld] = true
		}
		f.revalidateLocked()
	}
	return f
}

func (f *AppointmentForm) ID() string    { return f.id }
func (f *AppointmentForm) Owner() string { return f.owner }

func (f *AppointmentForm) Mode() appointment.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// Start kicks off the first availability check of a freshly opened form.
func (f *AppointmentForm) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduleCheckLocked(ctx)
}

// Apply merges p into the draft, revalidates and, when doctor, date or time
// changed, supersedes the availability check.
func (f *AppointmentForm) Apply(ctx context.Context, p AppointmentPatch) (AppointmentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.usableLocked(); err != nil {
		return f.stateLocked(), err
	}
	f.lastUsed = f.deps.Now()

	slotChanged := false
	if p.DoctorID != nil {
		slotChanged = slotChanged || *p.DoctorID != f.values.DoctorID
		f.values.DoctorID = *p.DoctorID
		f.touched[validate.FieldDoctor] = true
	}
	if p.DoctorName != nil {
		f.values.DoctorName = *p.DoctorName
	}
	if p.PatientID != nil {
		f.values.PatientID = *p.PatientID
		f.touched[validate.FieldPatient] = true
	}
	if p.PatientName != nil {
		f.values.PatientName = *p.PatientName
	}
	if p.SpecialtyID != nil {
		f.values.SpecialtyID = *p.SpecialtyID
		f.touched[validate.FieldSpecialty] = true
	}
	if p.Date != nil {
		slotChanged = slotChanged || *p.Date != f.values.Date
		f.values.Date = *p.Date
		f.touched[validate.FieldDate] = true
	}
	if p.Time != nil {
		v := *p.Time
		if t, ok := validate.NormalizeTime(v); ok {
			v = t
		}
		slotChanged = slotChanged || v != f.values.Time
		f.values.Time = v
		f.touched[validate.FieldTime] = true
	}

	f.submitErr = ""
	f.revalidateLocked()
	if slotChanged {
		f.scheduleCheckLocked(ctx)
	}
	return f.stateLocked(), nil
}

// State returns a snapshot of the form.
func (f *AppointmentForm) State() AppointmentState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revalidateLocked()
	return f.stateLocked()
}

// Submit re-runs the availability check under the slot lock and, if the slot
// is still free, writes the appointment. On failure the form returns to its
// opening mode with every value kept.
func (f *AppointmentForm) Submit(ctx context.Context) (AppointmentState, error) {
	f.mu.Lock()
	if err := f.usableLocked(); err != nil {
		st := f.stateLocked()
		f.mu.Unlock()
		return st, err
	}
	f.lastUsed = f.deps.Now()
	f.submitErr = ""
	for _, fld := range appointmentFields {
		f.touched[fld] = true
	}
	f.revalidateLocked()
	if !f.fieldsValidLocked() || f.knownConflictLocked() {
		f.deps.Recorder.ObserveSubmission(kindAppointment, OutcomeInvalid)
		st := f.stateLocked()
		f.mu.Unlock()
		return st, ErrGateClosed
	}

	mode := f.mode
	values := f.values
	q := f.queryLocked()
	f.phase = PhaseValidating
	f.mu.Unlock()

	slot := redisclient.Slot{DoctorID: values.DoctorID, Date: values.Date, Time: values.Time}
	err := f.deps.Locker.WithSlotLock(ctx, slot, func(ctx context.Context) error {
		res, err := f.tracker.CheckNow(ctx, q)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAvailabilityUnknown, err)
		}
		if res.Conflict {
			return ErrConflict
		}

		f.mu.Lock()
		f.phase = PhaseSubmitting
		f.mu.Unlock()

		return f.write(ctx, mode, values)
	})

	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		f.deps.Recorder.ObserveSubmission(kindAppointment, OutcomeSuccess)
		f.closeLocked()
		return f.stateLocked(), nil
	}

	f.phase = PhaseEditing
	switch {
	case errors.Is(err, ErrConflict):
		f.deps.Recorder.ObserveSubmission(kindAppointment, OutcomeConflict)
		f.submitErr = ErrConflict.Error()
	case errors.Is(err, ErrAvailabilityUnknown):
		f.deps.Recorder.ObserveSubmission(kindAppointment, OutcomeUnverified)
		f.submitErr = ErrAvailabilityUnknown.Error()
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		f.deps.Recorder.ObserveSubmission(kindAppointment, OutcomeLocked)
		f.submitErr = ErrSlotBeingBooked.Error()
		err = ErrSlotBeingBooked
	default:
		f.deps.Recorder.ObserveSubmission(kindAppointment, OutcomeBackend)
		f.submitErr = errorMessage(err, "could not save the appointment")
		f.deps.Log.Warn("appointment write failed",
			zap.String("form", f.id), zap.Stringer("mode", mode), zap.Error(err))
	}
	return f.stateLocked(), err
}

func (f *AppointmentForm) write(ctx context.Context, mode appointment.Mode, v AppointmentValues) error {
	d := appointment.Draft{
		DoctorID:    v.DoctorID,
		PatientID:   v.PatientID,
		Date:        v.Date,
		Time:        v.Time,
		SpecialtyID: v.SpecialtyID,
		StatusID:    appointment.StatusOnSave(mode),
	}

	var (
		err   error
		event string
	)
	switch mode.(type) {
	case appointment.Create:
		err = f.deps.Appointments.CreateAppointment(ctx, d)
		event = audit.EventAppointmentCreated
	case appointment.Edit:
		err = f.deps.Appointments.UpdateAppointment(ctx, appointment.TargetID(mode), d)
		event = audit.EventAppointmentUpdated
	case appointment.Reschedule:
		err = f.deps.Appointments.UpdateAppointment(ctx, appointment.TargetID(mode), d)
		event = audit.EventAppointmentRescheduled
	default:
		panic(fmt.Sprintf("form: unhandled mode %T", mode))
	}
	if err != nil {
		return err
	}

	f.deps.Audit.Record(ctx, event, audit.EntityAppointment, appointment.TargetID(mode), actorOf(ctx, f.owner), map[string]any{
		"doctor_id":  d.DoctorID,
		"patient_id": d.PatientID,
		"date":       d.Date,
		"time":       d.Time,
		"status":     int(d.StatusID),
	})
	return nil
}

// Close discards the draft and cancels any in-flight check.
func (f *AppointmentForm) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *AppointmentForm) idleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUsed
}

func (f *AppointmentForm) closeLocked() {
	f.phase = PhaseClosed
	f.values = AppointmentValues{}
	f.touched = map[validate.Field]bool{}
	f.errors = map[validate.Field]string{}
	f.tracker.Cancel()
}

func (f *AppointmentForm) usableLocked() error {
	switch f.phase {
	case PhaseClosed:
		return ErrClosed
	case PhaseValidating, PhaseSubmitting:
		return ErrBusy
	}
	return nil
}

func (f *AppointmentForm) validateContextLocked() validate.Context {
	return validate.Context{Now: f.deps.Now(), Date: f.values.Date}
}

func (f *AppointmentForm) raw(fld validate.Field) string {
	switch fld {
	case validate.FieldDoctor:
		return idString(f.values.DoctorID)
	case validate.FieldPatient:
		return idString(f.values.PatientID)
	case validate.FieldSpecialty:
		return idString(f.values.SpecialtyID)
	case validate.FieldDate:
		return f.values.Date
	case validate.FieldTime:
		return f.values.Time
	}
	return ""
}

// revalidateLocked recomputes the messages of touched fields. The time
// message depends on the date and on the clock, so it is never cached.
func (f *AppointmentForm) revalidateLocked() {
	vctx := f.validateContextLocked()
	for _, fld := range appointmentFields {
		if !f.touched[fld] {
			delete(f.errors, fld)
			continue
		}
		if msg := validate.Validate(fld, f.raw(fld), vctx); msg != "" {
			f.errors[fld] = msg
		} else {
			delete(f.errors, fld)
		}
	}
}

// fieldsValidLocked validates every field, touched or not.
func (f *AppointmentForm) fieldsValidLocked() bool {
	vctx := f.validateContextLocked()
	for _, fld := range appointmentFields {
		if validate.Validate(fld, f.raw(fld), vctx) != "" {
			return false
		}
	}
	return true
}

func (f *AppointmentForm) queryLocked() availability.Query {
	return availability.Query{
		DoctorID:  f.values.DoctorID,
		Date:      f.values.Date,
		Time:      f.values.Time,
		ExcludeID: appointment.TargetID(f.mode),
	}
}

// scheduleCheckLocked starts a check when doctor, date and time are present
// and the date and time validators pass, and retires the previous one
// otherwise.
func (f *AppointmentForm) scheduleCheckLocked(ctx context.Context) {
	q := f.queryLocked()
	vctx := f.validateContextLocked()
	if !q.Complete() ||
		validate.Date(q.Date, vctx) != "" ||
		validate.Time(q.Time, vctx) != "" {
		f.tracker.Cancel()
		return
	}
	// the check outlives the request that triggered it
	f.tracker.Request(context.WithoutCancel(ctx), q)
}

func (f *AppointmentForm) knownConflictLocked() bool {
	res, ok := f.tracker.Current(f.queryLocked())
	return ok && res.Known && res.Conflict
}

func (f *AppointmentForm) stateLocked() AppointmentState {
	st := AppointmentState{
		ID:     f.id,
		Mode:   f.mode.String(),
		Phase:  f.phase,
		Values: f.values,
		Errors: make(map[string]string, len(f.errors)+1),
		Error:  f.submitErr,
	}
	for k, v := range f.errors {
		st.Errors[string(k)] = v
	}
	if f.phase == PhaseClosed {
		return st
	}

	q := f.queryLocked()
	if res, ok := f.tracker.Current(q); ok {
		st.Availability = Availability{Conflict: res.Conflict, Known: res.Known}
		if res.Conflict && st.Errors[string(validate.FieldTime)] == "" {
			st.Errors[string(validate.FieldTime)] = ErrConflict.Error()
		}
	} else if q.Complete() && f.tracker.Pending() {
		st.Availability.Checking = true
	}

	st.CanSubmit = f.phase == PhaseEditing &&
		f.fieldsValidLocked() &&
		!st.Availability.Checking &&
		!st.Availability.Conflict
	return st
}

func idString(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
