// Package audit records every write the BFF forwards to the backend.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentStatus      = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentStarted     = "APPOINTMENT_STARTED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventPatientCreated         = "PATIENT_CREATED"
	EventPatientUpdated         = "PATIENT_UPDATED"
	EventPatientDeactivated     = "PATIENT_DEACTIVATED"
	EventPatientReactivated     = "PATIENT_REACTIVATED"
	EventHistoryUpdated         = "HISTORY_UPDATED"
)

const (
	EntityAppointment = "appointment"
	EntityPatient     = "patient"
	EntityHistory     = "history"
)

type Event struct {
	Type      string
	Entity    string
	EntityID  int64
	Subject   string
	Payload   []byte
	CreatedAt time.Time
}

// Store persists events.
type Store interface {
	InsertEvent(ctx context.Context, ev Event) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgStore struct {
	db execer
}

func NewPgStore(db execer) *PgStore {
	return &PgStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS event_logs (
	id          BIGSERIAL PRIMARY KEY,
	event_type  TEXT        NOT NULL,
	entity      TEXT        NOT NULL,
	entity_id   BIGINT      NOT NULL,
	subject     TEXT        NOT NULL DEFAULT '',
	payload     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create event_logs: %w", err)
	}
	return nil
}

func (s *PgStore) InsertEvent(ctx context.Context, ev Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, entity, entity_id, subject, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, ev.Type, ev.Entity, ev.EntityID, ev.Subject, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Recorder turns domain actions into events. Failures are logged and never
// reach the caller: the backend write already happened.
type Recorder struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewRecorder(store Store, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, eventType, entity string, id int64, subject string, payload map[string]any) {
	if r == nil || r.store == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := Event{
		Type:      eventType,
		Entity:    entity,
		EntityID:  id,
		Subject:   subject,
		Payload:   data,
		CreatedAt: r.now(),
	}
	if err := r.store.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		r.log.Warn("insert event log",
			zap.String("event", eventType),
			zap.String("entity", entity),
			zap.Int64("id", id),
			zap.Error(err))
	}
}
