package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/session"
)

type fakeSource struct {
	mu        sync.Mutex
	calls     []string
	histories map[int64]gateway.History
	notes     []gateway.HistoryNote
	meds      []gateway.MedicationEntry
	emailErr  error
	startErr  error
	statuses  map[int64]appointment.StatusID
	tokens    []string
}

func (f *fakeSource) record(ctx context.Context, call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if s, ok := session.FromContext(ctx); ok {
		f.tokens = append(f.tokens, s.Token)
	}
}

func (f *fakeSource) StartAppointment(ctx context.Context, id int64) error {
	f.record(ctx, "start")
	return f.startErr
}

func (f *fakeSource) SetAppointmentStatus(ctx context.Context, id int64, s appointment.StatusID) error {
	f.record(ctx, "status")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[int64]appointment.StatusID{}
	}
	f.statuses[id] = s
	return nil
}

func (f *fakeSource) SendFeedbackEmail(ctx context.Context, id int64) error {
	f.record(ctx, "email")
	return f.emailErr
}

func (f *fakeSource) GetHistory(ctx context.Context, pid int64) (gateway.History, error) {
	f.record(ctx, "get")
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.histories[pid]
	if !ok {
		return gateway.History{}, gateway.ErrNotFound
	}
	return h, nil
}

func (f *fakeSource) AddHistoryNote(ctx context.Context, n gateway.HistoryNote) error {
	f.record(ctx, "note")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
	if f.histories == nil {
		f.histories = map[int64]gateway.History{}
	}
	h := f.histories[n.PatientID]
	if len(h.Entries) == 0 {
		h.Entries = []gateway.HistoryEntry{{ID: 900 + n.PatientID}}
	}
	if n.Description != "" {
		h.Entries[0].Description = n.Description
	}
	f.histories[n.PatientID] = h
	return nil
}

func (f *fakeSource) AddAllergy(ctx context.Context, hid, id int64) error {
	f.record(ctx, "allergy")
	f.mu.Lock()
	defer f.mu.Unlock()
	for pid, h := range f.histories {
		if len(h.Entries) > 0 && h.Entries[0].ID == hid {
			h.Allergies = append(h.Allergies, gateway.HistoryAllergy{HistoryID: hid, Name: "Dipirona"})
			f.histories[pid] = h
		}
	}
	return nil
}

func (f *fakeSource) AddDisease(ctx context.Context, hid, id int64) error {
	f.record(ctx, "disease")
	return nil
}

func (f *fakeSource) AddFamilyDisease(ctx context.Context, hid, id int64) error {
	f.record(ctx, "family_disease")
	return nil
}

func (f *fakeSource) AddPrescription(ctx context.Context, hid int64, text string) error {
	f.record(ctx, "prescription")
	return nil
}

func (f *fakeSource) AddMedication(ctx context.Context, hid int64, m gateway.MedicationEntry) error {
	f.record(ctx, "medication")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meds = append(f.meds, m)
	return nil
}

var scheduled = appointment.Appointment{
	ID: 7, PatientID: 3, DoctorID: 11, MedicID: 2, Date: "2024-06-10", Time: "14:00",
	StatusID: appointment.StatusScheduled,
}

func deskFor(src Source) *Desk {
	return NewDesks(src, nil, nil, 0).For(session.Session{Token: "doc-token", Subject: "dr"})
}

func TestOpenCreatesMissingHistory(t *testing.T) {
	src := &fakeSource{}
	d := deskFor(src)

	c, err := d.Open(context.Background(), scheduled)
	if err != nil {
		t.Fatal(err)
	}
	if c.HistoryID() != 903 {
		t.Fatalf("history id = %d", c.HistoryID())
	}
	want := []string{"start", "get", "note", "get"}
	if len(src.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", src.calls, want)
	}
	for i := range want {
		if src.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", src.calls, want)
		}
	}
	n := src.notes[0]
	if n.AppointmentID != 7 || n.PatientID != 3 || n.DoctorID != 2 || n.Description != "" {
		t.Fatalf("created with %+v", n)
	}
	for _, tok := range src.tokens {
		if tok != "doc-token" {
			t.Fatalf("call sent token %q", tok)
		}
	}
}

func TestOpenRules(t *testing.T) {
	src := &fakeSource{}
	d := deskFor(src)

	done := scheduled
	done.StatusID = appointment.StatusCompleted
	if _, err := d.Open(context.Background(), done); !errors.Is(err, ErrNotOpenable) {
		t.Fatalf("completed appointment: err = %v", err)
	}

	presence := scheduled
	presence.StatusID = appointment.StatusPresence
	if _, err := d.Open(context.Background(), presence); err != nil {
		t.Fatalf("presence appointment: %v", err)
	}
	other := scheduled
	other.ID = 8
	if _, err := d.Open(context.Background(), other); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("second open: err = %v", err)
	}

	d.Cancel()
	if _, ok := d.Current(); ok {
		t.Fatal("cancel left a consultation open")
	}
	if _, err := d.Open(context.Background(), other); err != nil {
		t.Fatalf("open after cancel: %v", err)
	}
}

func TestOpenFailureLeavesDeskFree(t *testing.T) {
	src := &fakeSource{startErr: &gateway.StatusError{Status: 500, Message: "boom"}}
	d := deskFor(src)
	if _, err := d.Open(context.Background(), scheduled); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := d.Current(); ok {
		t.Fatal("failed open left a consultation")
	}
}

func TestWritesReloadHistory(t *testing.T) {
	src := &fakeSource{}
	d := deskFor(src)
	if _, err := d.Open(context.Background(), scheduled); err != nil {
		t.Fatal(err)
	}

	c, err := d.AddReference(context.Background(), ItemAllergy, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.History.Allergies) != 1 {
		t.Fatalf("allergies = %+v", c.History.Allergies)
	}

	c, err = d.AddNote(context.Background(), "  dor de cabeça  ")
	if err != nil {
		t.Fatal(err)
	}
	if c.History.Entries[0].Description != "dor de cabeça" {
		t.Fatalf("entry = %+v", c.History.Entries[0])
	}

	if _, err := d.AddNote(context.Background(), " "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("empty note: err = %v", err)
	}
	if _, err := d.AddReference(context.Background(), ItemDisease, 0); !errors.Is(err, ErrBadReference) {
		t.Fatalf("missing id: err = %v", err)
	}
}

func TestMedicationDosage(t *testing.T) {
	src := &fakeSource{}
	d := deskFor(src)
	_, _ = d.Open(context.Background(), scheduled)

	if _, err := d.AddMedication(context.Background(), Medication{MedicationID: 1, DurationID: 2, DosageID: 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddMedication(context.Background(), Medication{MedicationID: 1, DurationID: 2, FreeDosage: "1 comprimido ao deitar"}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddMedication(context.Background(), Medication{MedicationID: 1, DurationID: 2}); !errors.Is(err, ErrBadReference) {
		t.Fatalf("no dosage: err = %v", err)
	}

	if m := src.meds[0]; m.DosageID != 3 || m.FreeDosage != 0 || m.DosageText != "" {
		t.Fatalf("catalog dosage sent as %+v", m)
	}
	if m := src.meds[1]; m.DosageID != 0 || m.FreeDosage != 1 || m.DosageText != "1 comprimido ao deitar" {
		t.Fatalf("free dosage sent as %+v", m)
	}
}

func TestWritesNeedAnOpenConsultation(t *testing.T) {
	d := deskFor(&fakeSource{})
	if _, err := d.AddPrescription(context.Background(), "x"); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("err = %v", err)
	}
	if _, err := d.Conclude(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("err = %v", err)
	}
}

func TestConcludeSurvivesEmailFailure(t *testing.T) {
	src := &fakeSource{emailErr: errors.New("smtp down")}
	d := deskFor(src)
	_, _ = d.Open(context.Background(), scheduled)

	out, err := d.Conclude(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.EmailSent || out.Warning == "" {
		t.Fatalf("conclusion = %+v", out)
	}
	if src.statuses[7] != appointment.StatusCompleted {
		t.Fatalf("status = %d", src.statuses[7])
	}
	if _, ok := d.Current(); ok {
		t.Fatal("desk still open")
	}
}

func TestSuggest(t *testing.T) {
	table := []gateway.CatalogEntry{
		{ID: 1, Name: "Asma", CID: "J45"},
		{ID: 2, Name: "Asma grave", CID: "J46"},
		{ID: 3, Name: "Diabetes", CID: "E11"},
	}
	for i := 0; i < 10; i++ {
		table = append(table, gateway.CatalogEntry{ID: int64(10 + i), Name: "Alergia", CID: "T78"})
	}

	got := suggest(table, "asma")
	if len(got.Items) != 2 || got.SelectedID != 1 {
		t.Fatalf("suggest(asma) = %+v", got)
	}
	if got := suggest(table, "e11"); len(got.Items) != 1 || got.Items[0].ID != 3 || got.SelectedID != 0 {
		t.Fatalf("suggest(e11) = %+v", got)
	}
	if got := suggest(table, "alergia"); len(got.Items) != SuggestLimit {
		t.Fatalf("suggest(alergia) returned %d items", len(got.Items))
	}
}

type countingCatalog struct{ calls int }

func (c *countingCatalog) Catalog(context.Context, gateway.CatalogKind) ([]gateway.CatalogEntry, error) {
	c.calls++
	return []gateway.CatalogEntry{{ID: 1, Name: "Dipirona"}}, nil
}

func TestCatalogsAreCached(t *testing.T) {
	src := &countingCatalog{}
	c := NewCatalogs(src)
	for i := 0; i < 3; i++ {
		if _, err := c.Suggest(context.Background(), gateway.CatalogAllergies, "dip"); err != nil {
			t.Fatal(err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("catalog fetched %d times", src.calls)
	}
	c.Reset()
	_, _ = c.Table(context.Background(), gateway.CatalogAllergies)
	if src.calls != 2 {
		t.Fatalf("reset did not refetch")
	}
}

func TestDesksAreKeyedByToken(t *testing.T) {
	ds := NewDesks(&fakeSource{}, nil, nil, 0)
	d := ds.For(session.Session{Token: "real", Subject: "dr"})
	if _, err := d.Open(context.Background(), scheduled); err != nil {
		t.Fatal(err)
	}

	forged := ds.For(session.Session{Token: "forged", Subject: "dr"})
	if _, ok := forged.Current(); ok {
		t.Fatal("a token claiming the same subject sees the open consultation")
	}
	if _, ok := ds.For(session.Session{Token: "real", Subject: "dr"}).Current(); !ok {
		t.Fatal("owner lost the open consultation")
	}
}

func TestSweepDropsIdleDesks(t *testing.T) {
	ds := NewDesks(&fakeSource{}, nil, nil, time.Hour)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	ds.now = func() time.Time { return now }

	idle := ds.For(session.Session{Token: "idle"})
	if _, err := idle.Open(context.Background(), scheduled); err != nil {
		t.Fatal(err)
	}
	now = now.Add(50 * time.Minute)
	ds.For(session.Session{Token: "active"})
	now = now.Add(20 * time.Minute)

	if n := ds.Sweep(); n != 1 || ds.Len() != 1 {
		t.Fatalf("swept = %d left = %d", n, ds.Len())
	}
	if _, ok := ds.For(session.Session{Token: "idle"}).Current(); ok {
		t.Fatal("idle desk came back with its consultation")
	}
}
