package form

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/appointment"
)

type entry interface {
	Owner() string
	Close()
	idleSince() time.Time
}

type store[F entry] struct {
	mu    sync.Mutex
	forms map[string]F
}

func (s *store[F]) put(id string, f F) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forms == nil {
		s.forms = map[string]F{}
	}
	s.forms[id] = f
}

// get hides forms of other owners behind ErrNotFound.
func (s *store[F]) get(id, owner string) (F, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forms[id]
	if !ok || f.Owner() != owner {
		var zero F
		return zero, ErrNotFound
	}
	return f, nil
}

func (s *store[F]) drop(id, owner string) error {
	s.mu.Lock()
	f, ok := s.forms[id]
	if !ok || f.Owner() != owner {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.forms, id)
	s.mu.Unlock()
	f.Close()
	return nil
}

func (s *store[F]) sweep(cutoff time.Time) int {
	s.mu.Lock()
	var idle []F
	for id, f := range s.forms {
		if f.idleSince().Before(cutoff) {
			idle = append(idle, f)
			delete(s.forms, id)
		}
	}
	s.mu.Unlock()
	for _, f := range idle {
		f.Close()
	}
	return len(idle)
}

func (s *store[F]) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forms)
}

// Registry keeps the open forms of every desk, keyed by a random id.
type Registry struct {
	deps         Deps
	ttl          time.Duration
	appointments store[*AppointmentForm]
	patients     store[*PatientForm]
}

func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	return &Registry{deps: deps.withDefaults(), ttl: ttl}
}

// OpenAppointment opens a dialog in mode. initial is ignored when creating.
func (r *Registry) OpenAppointment(ctx context.Context, owner string, mode appointment.Mode, initial AppointmentValues) *AppointmentForm {
	if _, ok := mode.(appointment.Create); ok {
		initial = AppointmentValues{}
	}
	f := newAppointmentForm(uuid.NewString(), owner, mode, initial, r.deps)
	r.appointments.put(f.id, f)
	f.Start(ctx)
	return f
}

func (r *Registry) Appointment(id, owner string) (*AppointmentForm, error) {
	return r.appointments.get(id, owner)
}

func (r *Registry) CloseAppointment(id, owner string) error {
	return r.appointments.drop(id, owner)
}

func (r *Registry) OpenPatient(owner string, mode PatientMode, initial PatientValues) *PatientForm {
	if _, ok := mode.(NewPatient); ok {
		initial = PatientValues{}
	}
	f := newPatientForm(uuid.NewString(), owner, mode, initial, r.deps)
	r.patients.put(f.id, f)
	return f
}

func (r *Registry) Patient(id, owner string) (*PatientForm, error) {
	return r.patients.get(id, owner)
}

func (r *Registry) ClosePatient(id, owner string) error {
	return r.patients.drop(id, owner)
}

// Forget removes a form that closed itself after a successful submit.
func (r *Registry) Forget(id, owner string) {
	_ = r.appointments.drop(id, owner)
	_ = r.patients.drop(id, owner)
}

// Open is the number of open forms.
func (r *Registry) Open() int {
	return r.appointments.size() + r.patients.size()
}

// Sweep closes forms idle for longer than the registry ttl.
func (r *Registry) Sweep() int {
	cutoff := r.deps.Now().Add(-r.ttl)
	return r.appointments.sweep(cutoff) + r.patients.sweep(cutoff)
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.deps.Log.Info("form sweeper started", zap.Duration("interval", interval), zap.Duration("ttl", r.ttl))
	for {
		select {
		case <-ctx.Done():
			r.deps.Log.Info("form sweeper stopped")
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.deps.Log.Info("closed idle forms", zap.Int("count", n))
			}
		}
	}
}
