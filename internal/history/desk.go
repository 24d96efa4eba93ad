// Package history drives the doctor's consultation desk: opening an
// appointment, keeping the patient's medical history up to date while the
// consultation runs, and concluding it.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/audit"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/session"
)

var (
	ErrNotOpenable  = errors.New("only scheduled or presence-confirmed appointments can be opened")
	ErrAlreadyOpen  = errors.New("another consultation is already open")
	ErrNotOpen      = errors.New("no consultation is open")
	ErrNoHistory    = errors.New("the patient has no medical history")
	ErrEmptyText    = errors.New("text is required")
	ErrBadReference = errors.New("a catalog entry must be selected")
)

type Source interface {
	StartAppointment(ctx context.Context, id int64) error
	SetAppointmentStatus(ctx context.Context, id int64, status appointment.StatusID) error
	SendFeedbackEmail(ctx context.Context, id int64) error

	GetHistory(ctx context.Context, patientID int64) (gateway.History, error)
	AddHistoryNote(ctx context.Context, n gateway.HistoryNote) error
	AddAllergy(ctx context.Context, historyID, allergyID int64) error
	AddDisease(ctx context.Context, historyID, diseaseID int64) error
	AddFamilyDisease(ctx context.Context, historyID, familyDiseaseID int64) error
	AddPrescription(ctx context.Context, historyID int64, text string) error
	AddMedication(ctx context.Context, historyID int64, m gateway.MedicationEntry) error
}

// Item names the list a catalog reference is added to.
type Item string

const (
	ItemAllergy       Item = "allergy"
	ItemDisease       Item = "disease"
	ItemFamilyDisease Item = "family_disease"
)

// Medication prescribes a catalog medication with either a catalog dosage
// or a free text one.
type Medication struct {
	MedicationID int64  `json:"medication_id"`
	DurationID   int64  `json:"duration_id"`
	DosageID     int64  `json:"dosage_id,omitempty"`
	FreeDosage   string `json:"free_dosage,omitempty"`
}

func (m Medication) entry() (gateway.MedicationEntry, error) {
	if m.MedicationID <= 0 || m.DurationID <= 0 {
		return gateway.MedicationEntry{}, ErrBadReference
	}
	e := gateway.MedicationEntry{MedicationID: m.MedicationID, DurationID: m.DurationID}
	if free := strings.TrimSpace(m.FreeDosage); free != "" {
		e.FreeDosage = 1
		e.DosageText = free
		return e, nil
	}
	if m.DosageID <= 0 {
		return gateway.MedicationEntry{}, ErrBadReference
	}
	e.DosageID = m.DosageID
	return e, nil
}

// Consultation is the appointment currently open at a desk.
type Consultation struct {
	Appointment appointment.Appointment `json:"appointment"`
	History     gateway.History         `json:"history"`
	OpenedAt    time.Time               `json:"opened_at"`
}

// HistoryID is the id sub-resources are attached to, or 0 before the
// history exists.
func (c Consultation) HistoryID() int64 {
	if len(c.History.Entries) == 0 {
		return 0
	}
	return c.History.Entries[0].ID
}

// Conclusion reports how a consultation ended. The appointment is completed
// even when the feedback email could not be sent.
type Conclusion struct {
	AppointmentID int64  `json:"appointment_id"`
	EmailSent     bool   `json:"email_sent"`
	Warning       string `json:"warning,omitempty"`
}

// Desk holds at most one open consultation.
type Desk struct {
	src   Source
	audit *audit.Recorder
	log   *zap.Logger
	now   func() time.Time

	mu       sync.Mutex
	sess     session.Session
	open     *Consultation
	busy     bool
	lastUsed time.Time
}

// Open starts appt at the backend and loads the patient's history, creating
// it when the patient has none yet.
func (d *Desk) Open(ctx context.Context, appt appointment.Appointment) (Consultation, error) {
	if appt.StatusID != appointment.StatusScheduled && appt.StatusID != appointment.StatusPresence {
		return Consultation{}, ErrNotOpenable
	}

	d.mu.Lock()
	if d.open != nil || d.busy {
		d.mu.Unlock()
		return Consultation{}, ErrAlreadyOpen
	}
	d.busy = true
	sess := d.sess
	d.mu.Unlock()

	c, err := d.start(session.WithSession(ctx, sess), appt)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
	if err != nil {
		return Consultation{}, err
	}
	d.open = &c
	return c, nil
}

func (d *Desk) start(ctx context.Context, appt appointment.Appointment) (Consultation, error) {
	if err := d.src.StartAppointment(ctx, appt.ID); err != nil {
		return Consultation{}, fmt.Errorf("start consultation %d: %w", appt.ID, err)
	}
	d.audit.Record(ctx, audit.EventAppointmentStarted, audit.EntityAppointment, appt.ID, d.actor(), nil)

	h, err := d.loadOrCreate(ctx, appt)
	if err != nil {
		return Consultation{}, err
	}
	return Consultation{Appointment: appt, History: h, OpenedAt: d.now()}, nil
}

func (d *Desk) loadOrCreate(ctx context.Context, appt appointment.Appointment) (gateway.History, error) {
	h, err := d.src.GetHistory(ctx, appt.PatientID)
	if !errors.Is(err, gateway.ErrNotFound) {
		return h, err
	}
	err = d.src.AddHistoryNote(ctx, gateway.HistoryNote{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      d.medicOf(appt),
	})
	if err != nil {
		return gateway.History{}, fmt.Errorf("create history: %w", err)
	}
	d.log.Info("created medical history", zap.Int64("patient_id", appt.PatientID))
	return d.src.GetHistory(ctx, appt.PatientID)
}

func (d *Desk) medicOf(appt appointment.Appointment) int64 {
	if appt.MedicID != 0 {
		return appt.MedicID
	}
	return appt.DoctorID
}

// Current returns the open consultation, if any.
func (d *Desk) Current() (Consultation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == nil {
		return Consultation{}, false
	}
	return *d.open, true
}

// Reload fetches the history of the open consultation again.
func (d *Desk) Reload(ctx context.Context) (Consultation, error) {
	c, sess, err := d.current()
	if err != nil {
		return Consultation{}, err
	}
	h, err := d.src.GetHistory(session.WithSession(ctx, sess), c.Appointment.PatientID)
	if err != nil {
		return Consultation{}, fmt.Errorf("load history: %w", err)
	}
	return d.replace(c.Appointment.ID, h), nil
}

// AddNote appends an observation to the history.
func (d *Desk) AddNote(ctx context.Context, text string) (Consultation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Consultation{}, ErrEmptyText
	}
	return d.write(ctx, "note", func(ctx context.Context, c Consultation) error {
		return d.src.AddHistoryNote(ctx, gateway.HistoryNote{
			AppointmentID: c.Appointment.ID,
			PatientID:     c.Appointment.PatientID,
			DoctorID:      d.medicOf(c.Appointment),
			Description:   text,
		})
	})
}

// AddReference attaches a catalog entry to one of the history lists.
func (d *Desk) AddReference(ctx context.Context, item Item, id int64) (Consultation, error) {
	if id <= 0 {
		return Consultation{}, ErrBadReference
	}
	var add func(ctx context.Context, hid, id int64) error
	switch item {
	case ItemAllergy:
		add = d.src.AddAllergy
	case ItemDisease:
		add = d.src.AddDisease
	case ItemFamilyDisease:
		add = d.src.AddFamilyDisease
	default:
		return Consultation{}, fmt.Errorf("unknown history item %q", item)
	}
	return d.writeTo(ctx, string(item), func(ctx context.Context, hid int64) error {
		return add(ctx, hid, id)
	})
}

func (d *Desk) AddPrescription(ctx context.Context, text string) (Consultation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Consultation{}, ErrEmptyText
	}
	return d.writeTo(ctx, "prescription", func(ctx context.Context, hid int64) error {
		return d.src.AddPrescription(ctx, hid, text)
	})
}

func (d *Desk) AddMedication(ctx context.Context, m Medication) (Consultation, error) {
	e, err := m.entry()
	if err != nil {
		return Consultation{}, err
	}
	return d.writeTo(ctx, "medication", func(ctx context.Context, hid int64) error {
		return d.src.AddMedication(ctx, hid, e)
	})
}

// Conclude marks the appointment completed, asks the backend to send the
// feedback email and closes the desk.
func (d *Desk) Conclude(ctx context.Context) (Conclusion, error) {
	c, sess, err := d.current()
	if err != nil {
		return Conclusion{}, err
	}
	ctx = session.WithSession(ctx, sess)
	id := c.Appointment.ID

	if err := d.src.SetAppointmentStatus(ctx, id, appointment.StatusCompleted); err != nil {
		return Conclusion{}, fmt.Errorf("complete consultation %d: %w", id, err)
	}
	d.audit.Record(ctx, audit.EventAppointmentCompleted, audit.EntityAppointment, id, sess.Actor(), nil)

	out := Conclusion{AppointmentID: id, EmailSent: true}
	if err := d.src.SendFeedbackEmail(ctx, id); err != nil {
		d.log.Warn("feedback email failed", zap.Int64("appointment_id", id), zap.Error(err))
		out.EmailSent = false
		out.Warning = "consultation completed, but the feedback email could not be sent"
	}

	d.Cancel()
	return out, nil
}

// Cancel closes the desk without writing anything.
func (d *Desk) Cancel() {
	d.mu.Lock()
	d.open = nil
	d.mu.Unlock()
}

func (d *Desk) writeTo(ctx context.Context, what string, fn func(ctx context.Context, hid int64) error) (Consultation, error) {
	return d.write(ctx, what, func(ctx context.Context, c Consultation) error {
		hid := c.HistoryID()
		if hid == 0 {
			return ErrNoHistory
		}
		return fn(ctx, hid)
	})
}

// write runs fn against the open consultation and reloads the history so
// the desk shows what the backend stored.
func (d *Desk) write(ctx context.Context, what string, fn func(ctx context.Context, c Consultation) error) (Consultation, error) {
	c, sess, err := d.current()
	if err != nil {
		return Consultation{}, err
	}
	ctx = session.WithSession(ctx, sess)
	if err := fn(ctx, c); err != nil {
		return Consultation{}, fmt.Errorf("add %s: %w", what, err)
	}
	d.audit.Record(ctx, audit.EventHistoryUpdated, audit.EntityHistory, c.HistoryID(), sess.Actor(), map[string]any{
		"item":           what,
		"appointment_id": c.Appointment.ID,
	})

	h, err := d.src.GetHistory(ctx, c.Appointment.PatientID)
	if err != nil {
		d.log.Warn("reload history after write", zap.String("item", what), zap.Error(err))
		return c, nil
	}
	return d.replace(c.Appointment.ID, h), nil
}

func (d *Desk) current() (Consultation, session.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == nil {
		return Consultation{}, d.sess, ErrNotOpen
	}
	return *d.open, d.sess, nil
}

// replace stores h when the same consultation is still open.
func (d *Desk) replace(appointmentID int64, h gateway.History) Consultation {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == nil || d.open.Appointment.ID != appointmentID {
		return Consultation{History: h}
	}
	d.open.History = h
	return *d.open
}

func (d *Desk) actor() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess.Actor()
}

func (d *Desk) touch(sess session.Session) {
	d.mu.Lock()
	d.sess = sess
	d.lastUsed = d.now()
	d.mu.Unlock()
}

// idle reports whether the desk went unused since cutoff.
func (d *Desk) idle(cutoff time.Time) (bool, *Consultation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastUsed.Before(cutoff) && !d.busy, d.open
}

// DefaultIdleTTL is how long an unused desk, open consultation included, is kept.
const DefaultIdleTTL = time.Hour

// Desks keeps one Desk per signed-in doctor.
type Desks struct {
	src     Source
	audit   *audit.Recorder
	log     *zap.Logger
	now     func() time.Time
	idleTTL time.Duration

	mu    sync.Mutex
	desks map[string]*Desk
}

// NewDesks creates an empty set of desks; zero idleTTL selects DefaultIdleTTL.
func NewDesks(src Source, rec *audit.Recorder, log *zap.Logger, idleTTL time.Duration) *Desks {
	if log == nil {
		log = zap.NewNop()
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Desks{src: src, audit: rec, log: log, now: time.Now, idleTTL: idleTTL, desks: map[string]*Desk{}}
}

// For returns the desk of sess, keyed by token like agendas.
func (ds *Desks) For(sess session.Session) *Desk {
	key := sess.Key()
	ds.mu.Lock()
	d, ok := ds.desks[key]
	if !ok {
		d = &Desk{src: ds.src, audit: ds.audit, log: ds.log.With(zap.String("desk", shortKey(key))), now: ds.now}
		ds.desks[key] = d
	}
	ds.mu.Unlock()
	d.touch(sess)
	return d
}

func (ds *Desks) Len() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.desks)
}

// Sweep drops desks idle for longer than the TTL and returns how many went.
// A consultation left open is abandoned; the appointment stays started at the
// backend.
func (ds *Desks) Sweep() int {
	cutoff := ds.now().Add(-ds.idleTTL)

	ds.mu.Lock()
	defer ds.mu.Unlock()
	n := 0
	for key, d := range ds.desks {
		idle, open := d.idle(cutoff)
		if !idle {
			continue
		}
		if open != nil {
			ds.log.Warn("dropping idle desk with an open consultation",
				zap.String("desk", shortKey(key)), zap.Int64("appointment_id", open.Appointment.ID))
		}
		delete(ds.desks, key)
		n++
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (ds *Desks) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ds.Sweep(); n > 0 {
				ds.log.Info("idle desks swept", zap.Int("count", n))
			}
		}
	}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
