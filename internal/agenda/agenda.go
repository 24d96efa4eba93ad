// Package agenda keeps the appointment list of each desk: a cached listing
// refreshed on a fixed interval and on focus, filtered and paged locally.
//
// Refreshes are not coordinated with edits in flight. A refresh landing
// between an edit and its write shows the old row until the next refresh.
package agenda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/audit"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/search"
	"github.com/hackgods/clinicdesk/internal/session"
)

const PageSize = 10

// focusGap throttles focus refreshes that arrive in bursts.
const focusGap = time.Second

type Source interface {
	ListAppointments(ctx context.Context, f gateway.AppointmentFilter) ([]appointment.Appointment, error)
	ListStatuses(ctx context.Context) ([]appointment.Status, error)
	SetAppointmentStatus(ctx context.Context, id int64, status appointment.StatusID) error
}

// Range limits the listing by date; both ends are optional.
type Range struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Page struct {
	Items       []appointment.Appointment `json:"items"`
	Page        int                       `json:"page"`
	Pages       int                       `json:"pages"`
	Total       int                       `json:"total"`
	Range       Range                     `json:"range"`
	RefreshedAt time.Time                 `json:"refreshed_at"`
	Error       string                    `json:"error,omitempty"`
}

// Agenda is the list view of one desk.
type Agenda struct {
	src   Source
	log   *zap.Logger
	audit *audit.Recorder
	now   func() time.Time

	mu          sync.RWMutex
	sess        session.Session
	rng         Range
	rows        []appointment.Appointment
	statuses    []appointment.Status
	refreshedAt time.Time
	lastErr     error
	lastUsed    time.Time
}

// Refresh replaces the cached rows with a fresh listing of the current range.
func (a *Agenda) Refresh(ctx context.Context) error {
	a.mu.RLock()
	rng, sess := a.rng, a.sess
	a.mu.RUnlock()

	rows, err := a.src.ListAppointments(session.WithSession(ctx, sess), gateway.AppointmentFilter{From: rng.From, To: rng.To})

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rng != rng {
		// the range changed while listing; that change triggers its own refresh
		return nil
	}
	a.lastErr = err
	if err != nil {
		return fmt.Errorf("refresh agenda: %w", err)
	}
	a.rows = rows
	a.refreshedAt = a.now()
	return nil
}

// Focus refreshes unless a refresh just happened.
func (a *Agenda) Focus(ctx context.Context) error {
	a.mu.RLock()
	recent := a.now().Sub(a.refreshedAt) < focusGap
	a.mu.RUnlock()
	if recent {
		return nil
	}
	return a.Refresh(ctx)
}

// SetRange changes the date range and refreshes when it differs.
func (a *Agenda) SetRange(ctx context.Context, r Range) error {
	a.mu.Lock()
	if a.rng == r && !a.refreshedAt.IsZero() {
		a.mu.Unlock()
		return nil
	}
	a.rng = r
	a.mu.Unlock()
	return a.Refresh(ctx)
}

// View filters the cached rows by term and returns page p, counted from 1.
// Out of range pages are clamped.
func (a *Agenda) View(term string, p int) Page {
	a.mu.RLock()
	defer a.mu.RUnlock()

	matched := a.filterLocked(term)
	pg := Page{
		Total:       len(matched),
		Pages:       (len(matched) + PageSize - 1) / PageSize,
		Range:       a.rng,
		RefreshedAt: a.refreshedAt,
	}
	if a.lastErr != nil {
		pg.Error = "could not refresh the agenda"
	}
	if pg.Pages == 0 {
		pg.Page = 1
		pg.Items = []appointment.Appointment{}
		return pg
	}
	pg.Page = min(max(p, 1), pg.Pages)
	start := (pg.Page - 1) * PageSize
	end := min(start+PageSize, len(matched))
	pg.Items = matched[start:end]
	return pg
}

func (a *Agenda) filterLocked(term string) []appointment.Appointment {
	m := search.NewMatcher(term)
	out := make([]appointment.Appointment, 0, len(a.rows))
	for _, r := range a.rows {
		if m.Any(r.Date, search.DisplayDate(r.Date), r.Time, r.DoctorName, r.PatientName, r.Specialty, r.Status) {
			out = append(out, r)
		}
	}
	return out
}

// Find looks an appointment up among the cached rows.
func (a *Agenda) Find(id int64) (appointment.Appointment, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, r := range a.rows {
		if r.ID == id {
			return r, true
		}
	}
	return appointment.Appointment{}, false
}

// ChangeStatus writes the status and patches the cached row in place.
func (a *Agenda) ChangeStatus(ctx context.Context, id int64, status appointment.StatusID) (appointment.Appointment, error) {
	a.mu.RLock()
	sess := a.sess
	a.mu.RUnlock()
	ctx = session.WithSession(ctx, sess)

	if err := a.src.SetAppointmentStatus(ctx, id, status); err != nil {
		return appointment.Appointment{}, err
	}
	name := a.statusName(ctx, status)

	a.audit.Record(ctx, audit.EventAppointmentStatus, audit.EntityAppointment, id, sess.Actor(), map[string]any{
		"status": int(status),
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.rows {
		if a.rows[i].ID == id {
			a.rows[i].StatusID = status
			if name != "" {
				a.rows[i].Status = name
			}
			return a.rows[i], nil
		}
	}
	return appointment.Appointment{ID: id, StatusID: status, Status: name}, nil
}

// Statuses is the status catalog, loaded once.
func (a *Agenda) Statuses(ctx context.Context) ([]appointment.Status, error) {
	a.mu.RLock()
	cached, sess := a.statuses, a.sess
	a.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	statuses, err := a.src.ListStatuses(session.WithSession(ctx, sess))
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.statuses = statuses
	a.mu.Unlock()
	return statuses, nil
}

func (a *Agenda) statusName(ctx context.Context, id appointment.StatusID) string {
	statuses, err := a.Statuses(ctx)
	if err != nil {
		a.log.Warn("load status catalog", zap.Error(err))
		return ""
	}
	for _, s := range statuses {
		if s.ID == id {
			return s.Name
		}
	}
	return ""
}

func (a *Agenda) currentSession() session.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sess
}

func (a *Agenda) touch(sess session.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sess = sess
	a.lastUsed = a.now()
}

func (a *Agenda) idleSince() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastUsed
}
