package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/agenda"
	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/form"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/history"
	"github.com/hackgods/clinicdesk/internal/metrics"
	"github.com/hackgods/clinicdesk/internal/patient"
	"github.com/hackgods/clinicdesk/internal/session"
)

// Backend is the slice of the gateway the handlers read lookups through.
type Backend interface {
	ListAppointments(ctx context.Context, f gateway.AppointmentFilter) ([]appointment.Appointment, error)
	ListSpecialties(ctx context.Context) ([]appointment.Specialty, error)
	ListStatuses(ctx context.Context) ([]appointment.Status, error)
	SearchDoctors(ctx context.Context, term string) ([]appointment.Doctor, error)
	SearchPatients(ctx context.Context, term string) ([]appointment.PatientRef, error)
}

type RouterConfig struct {
	Backend  Backend
	Forms    *form.Registry
	Agendas  *agenda.Book
	Patients *patient.Directory
	Desks    *history.Desks
	Catalogs *history.Catalogs
	Postal   form.PostalLookup
	Metrics  *metrics.Collector // optional
	Health   *HealthHandler     // optional
	Log      *zap.Logger
	// Now returns the current instant in the clinic zone.
	Now            func() time.Time
	AllowedOrigins []string
	RateLimit      int // per client IP per second, 0 disables
	// Sessions parses bearer tokens; set Key to verify signatures.
	Sessions session.Parser
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	h := &handlers{cfg: cfg}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(cfg.Log))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics, cfg.Metrics.InFlightGauge))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, time.Second))
		}
		r.Use(SessionMiddleware(cfg.Sessions, cfg.Now))

		r.Post("/validate", h.validateField)
		r.Get("/postal/{cep}", h.lookupPostal)
		r.Get("/specialties", h.listSpecialties)
		r.Get("/statuses", h.listStatuses)
		r.Get("/doctors", h.searchDoctors)

		r.Route("/forms/appointments", func(r chi.Router) {
			r.Post("/", h.openAppointmentForm)
			r.Get("/{id}", h.getAppointmentForm)
			r.Patch("/{id}", h.patchAppointmentForm)
			r.Post("/{id}/submit", h.submitAppointmentForm)
			r.Delete("/{id}", h.closeAppointmentForm)
		})
		r.Route("/forms/patients", func(r chi.Router) {
			r.Post("/", h.openPatientForm)
			r.Get("/{id}", h.getPatientForm)
			r.Patch("/{id}", h.patchPatientForm)
			r.Post("/{id}/submit", h.submitPatientForm)
			r.Delete("/{id}", h.closePatientForm)
		})

		r.Route("/agenda", func(r chi.Router) {
			r.Get("/", h.viewAgenda)
			r.Post("/refresh", h.refreshAgenda)
			r.Post("/focus", h.focusAgenda)
			r.Patch("/{id}/status", h.changeStatus)
		})

		r.Route("/patients", func(r chi.Router) {
			r.Get("/", h.listPatients)
			r.Get("/search", h.searchPatients)
			r.Post("/{id}/deactivate", h.deactivatePatient)
			r.Post("/{id}/reactivate", h.reactivatePatient)
		})

		r.Get("/catalogs/{kind}", h.catalog)
		r.Route("/consultation", func(r chi.Router) {
			r.Get("/", h.currentConsultation)
			r.Post("/", h.openConsultation)
			r.Delete("/", h.cancelConsultation)
			r.Post("/reload", h.reloadConsultation)
			r.Post("/notes", h.addNote)
			r.Post("/items", h.addHistoryItem)
			r.Post("/prescriptions", h.addPrescription)
			r.Post("/medications", h.addMedication)
			r.Post("/conclude", h.concludeConsultation)
		})
	})

	return r
}
