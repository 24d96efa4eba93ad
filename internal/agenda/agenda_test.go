package agenda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/session"
)

type fakeSource struct {
	mu       sync.Mutex
	rows     []appointment.Appointment
	err      error
	filters  []gateway.AppointmentFilter
	tokens   []string
	statusOf map[int64]appointment.StatusID
}

func (f *fakeSource) ListAppointments(ctx context.Context, flt gateway.AppointmentFilter) ([]appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, flt)
	if s, ok := session.FromContext(ctx); ok {
		f.tokens = append(f.tokens, s.Token)
	}
	out := make([]appointment.Appointment, len(f.rows))
	copy(out, f.rows)
	return out, f.err
}

func (f *fakeSource) ListStatuses(context.Context) ([]appointment.Status, error) {
	return []appointment.Status{
		{ID: appointment.StatusScheduled, Name: "Agendada"},
		{ID: appointment.StatusCompleted, Name: "Realizada"},
		{ID: appointment.StatusPresence, Name: "Presença confirmada"},
	}, nil
}

func (f *fakeSource) SetAppointmentStatus(_ context.Context, id int64, status appointment.StatusID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusOf == nil {
		f.statusOf = map[int64]appointment.StatusID{}
	}
	f.statusOf[id] = status
	return nil
}

func rows(n int) []appointment.Appointment {
	out := make([]appointment.Appointment, n)
	for i := range out {
		out[i] = appointment.Appointment{
			ID:          int64(i + 1),
			Date:        "2024-06-10",
			Time:        fmt.Sprintf("%02d:00", 8+i%10),
			DoctorName:  "Dra. Ana",
			PatientName: fmt.Sprintf("Paciente %d", i+1),
			Specialty:   "Cardiologia",
			Status:      "Agendada",
			StatusID:    appointment.StatusScheduled,
		}
	}
	out[0].PatientName = "José Conceição"
	out[1].Status = "Presença confirmada"
	return out
}

func TestViewPaginatesByTen(t *testing.T) {
	src := &fakeSource{rows: rows(23)}
	a := NewBook(src, nil, nil, 0).For(session.Session{Token: "t", Subject: "desk"})
	if err := a.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	pg := a.View("", 1)
	if pg.Total != 23 || pg.Pages != 3 || len(pg.Items) != PageSize {
		t.Fatalf("page 1 = total %d pages %d items %d", pg.Total, pg.Pages, len(pg.Items))
	}
	pg = a.View("", 3)
	if len(pg.Items) != 3 || pg.Items[0].ID != 21 {
		t.Fatalf("page 3 = %+v", pg.Items)
	}
	if pg = a.View("", 99); pg.Page != 3 {
		t.Fatalf("page clamped to %d", pg.Page)
	}
}

func TestViewSearch(t *testing.T) {
	src := &fakeSource{rows: rows(12)}
	a := NewBook(src, nil, nil, 0).For(session.Session{Token: "t"})
	_ = a.Refresh(context.Background())

	cases := map[string]int{
		"jose":       1,
		"PRESENÇA":   1,
		"10/06/2024": 12,
		"09:00":      2,
		"cardio":     12,
		"nobody":     0,
	}
	for term, want := range cases {
		if got := a.View(term, 1).Total; got != want {
			t.Errorf("View(%q).Total = %d, want %d", term, got, want)
		}
	}
}

func TestSetRangeRefreshesWithFilter(t *testing.T) {
	src := &fakeSource{}
	a := NewBook(src, nil, nil, 0).For(session.Session{Token: "desk-token"})
	r := Range{From: "2024-06-01", To: "2024-06-30"}
	if err := a.SetRange(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	_ = a.SetRange(context.Background(), r)

	if len(src.filters) != 1 {
		t.Fatalf("listings = %d, an unchanged range must not refresh", len(src.filters))
	}
	if src.filters[0].From != r.From || src.filters[0].To != r.To {
		t.Fatalf("filter = %+v", src.filters[0])
	}
	if src.tokens[0] != "desk-token" {
		t.Fatalf("listing sent token %q", src.tokens[0])
	}
}

func TestFocusIsThrottled(t *testing.T) {
	src := &fakeSource{}
	b := NewBook(src, nil, nil, 0)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	a := b.For(session.Session{Token: "t"})

	_ = a.Focus(context.Background())
	_ = a.Focus(context.Background())
	now = now.Add(2 * time.Second)
	_ = a.Focus(context.Background())
	if len(src.filters) != 2 {
		t.Fatalf("listings = %d, want 2", len(src.filters))
	}
}

func TestRefreshFailureKeepsRows(t *testing.T) {
	src := &fakeSource{rows: rows(3)}
	a := NewBook(src, nil, nil, 0).For(session.Session{Token: "t"})
	_ = a.Refresh(context.Background())

	src.mu.Lock()
	src.err = errors.New("down")
	src.mu.Unlock()
	if err := a.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	pg := a.View("", 1)
	if pg.Total != 3 || pg.Error == "" {
		t.Fatalf("page = %+v, want old rows and an error", pg)
	}
}

func TestChangeStatusUpdatesRowInPlace(t *testing.T) {
	src := &fakeSource{rows: rows(3)}
	a := NewBook(src, nil, nil, 0).For(session.Session{Token: "t"})
	_ = a.Refresh(context.Background())

	got, err := a.ChangeStatus(context.Background(), 2, appointment.StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "Realizada" || src.statusOf[2] != appointment.StatusCompleted {
		t.Fatalf("row = %+v", got)
	}
	row, _ := a.Find(2)
	if row.StatusID != appointment.StatusCompleted {
		t.Fatalf("cached row = %+v", row)
	}
}

func TestRefreshAllDropsExpiredDesks(t *testing.T) {
	src := &fakeSource{}
	b := NewBook(src, nil, nil, 0)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.For(session.Session{Token: "a", Subject: "live"})
	b.For(session.Session{Token: "b", Subject: "dead", ExpiresAt: now.Add(-time.Minute)})

	b.RefreshAll(context.Background())
	if len(src.filters) != 1 || len(b.agendas) != 1 {
		t.Fatalf("listings = %d agendas = %d", len(src.filters), len(b.agendas))
	}
}

func TestRefreshAllDropsIdleAgendas(t *testing.T) {
	src := &fakeSource{}
	b := NewBook(src, nil, nil, 10*time.Minute)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.For(session.Session{Token: "stale"})
	now = now.Add(9 * time.Minute)
	b.For(session.Session{Token: "fresh"})
	now = now.Add(2 * time.Minute)

	b.RefreshAll(context.Background())
	if b.Len() != 1 || len(src.tokens) != 1 || src.tokens[0] != "fresh" {
		t.Fatalf("agendas = %d refreshed tokens = %v", b.Len(), src.tokens)
	}
}

func TestSharedSubjectDoesNotShareAgenda(t *testing.T) {
	src := &fakeSource{rows: rows(3)}
	b := NewBook(src, nil, nil, 0)

	owner := b.For(session.Session{Token: "signed-by-backend", Subject: "dr-ana"})
	if err := owner.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	other := b.For(session.Session{Token: "made-up", Subject: "dr-ana"})
	if other == owner {
		t.Fatal("tokens claiming the same subject got the same agenda")
	}
	if pg := other.View("", 1); pg.Total != 0 {
		t.Fatalf("second token sees %d cached rows", pg.Total)
	}
	if got := owner.currentSession().Token; got != "signed-by-backend" {
		t.Fatalf("owner session replaced by %q", got)
	}
}
