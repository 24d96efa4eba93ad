package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client(), session.Session{Token: "tkn"}, WithRetry(3, time.Millisecond))
}

func TestListAppointmentsQueryAndMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/consultas" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("id_profissional") != "7" || q.Get("data_ini") != "2024-06-10" || q.Get("data_fim") != "2024-06-10" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tkn" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, `[
			{"id_consulta": 1, "consult_data": "2024-06-10T00:00:00.000Z", "consult_hora": "14:00:00",
			 "id_medico": 7, "prof_nome": "Dra. Ana", "id_paciente": 3, "pac_nome": "Joao Lima",
			 "id_tipo_consulta": 2, "tipoconsulta_nome": "Cardiologia", "id_consult_status": 1, "status_consulta": "Agendada"}
		]`)
	})

	got, err := c.ListAppointments(context.Background(), AppointmentFilter{DoctorID: 7, From: "2024-06-10", To: "2024-06-10"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	a := got[0]
	if a.Date != "2024-06-10" || a.Time != "14:00" || a.DoctorID != 7 || a.DoctorName != "Dra. Ana" {
		t.Fatalf("unexpected mapping %+v", a)
	}
	if a.StatusID != appointment.StatusScheduled {
		t.Fatalf("status = %d", a.StatusID)
	}
}

func TestReadsRetryOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})
	if _, err := c.ListStatuses(context.Background()); err != nil {
		t.Fatalf("list statuses: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestReadsDoNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.GetHistory(context.Background(), 3)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	err := c.CreateAppointment(context.Background(), appointment.Draft{DoctorID: 1})
	if Status(err) != http.StatusInternalServerError {
		t.Fatalf("status = %d (%v)", Status(err), err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestConflictCarriesBackendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/pacientes/4" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"erro": "paciente possui consultas em aberto"}`)
	})
	err := c.DeactivatePatient(context.Background(), 4)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if Message(err) != "paciente possui consultas em aberto" {
		t.Fatalf("message = %q", Message(err))
	}
}

func TestCreateAppointmentPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		want := `{"id_paciente":3,"id_profissional":7,"consult_data":"2024-06-10","consult_hora":"14:30","id_tipo_consulta":2,"id_consult_status":1}`
		if string(body) != want {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id_consulta": 10}`)
	})
	err := c.CreateAppointment(context.Background(), appointment.Draft{
		DoctorID: 7, PatientID: 3, Date: "2024-06-10", Time: "14:30", SpecialtyID: 2, StatusID: appointment.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestPatientMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ativo") != "all" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[{"id_paciente": 4, "pac_cpf": "52998224725", "pac_nome": "Maria Silva",
			"pac_endereco": "Rua Augusta, 500", "pac_data_nascimento": "1990-02-28T00:00:00Z", "pac_ativo": false}]`)
	})
	got, err := c.ListPatients(context.Background())
	if err != nil {
		t.Fatalf("list patients: %v", err)
	}
	p := got[0]
	if p.Street != "Rua Augusta" || p.Number != "500" || p.BirthDate != "1990-02-28" || p.Active {
		t.Fatalf("unexpected mapping %+v", p)
	}
}

func TestCatalog(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alergias" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `[{"id_alergia": 2, "alergia_nome": "Dipirona", "alergia_cid": "Z88.1"}]`)
	})
	got, err := c.Catalog(context.Background(), CatalogAllergies)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 || got[0].CID != "Z88.1" {
		t.Fatalf("unexpected catalog %+v", got)
	}
}

func TestCancelledContextStopsRetries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ListAppointments(ctx, AppointmentFilter{}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestContextSessionOverridesClientSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer desk-2" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, `[]`)
	})
	ctx := session.WithSession(context.Background(), session.Session{Token: "desk-2"})
	if _, err := c.ListSpecialties(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestPingTreatsClientErrorsAsUp(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnauthorized)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("401 should count as up: %v", err)
	}
	status.Store(http.StatusBadGateway)
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("502 should count as down")
	}
}
