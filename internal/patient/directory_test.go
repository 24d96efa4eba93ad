package patient

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/gateway"
)

type fakeSource struct {
	patients      []appointment.Patient
	deactivateErr error
	deactivated   []int64
	reactivated   []int64
}

func (f *fakeSource) ListPatients(context.Context) ([]appointment.Patient, error) {
	return f.patients, nil
}

func (f *fakeSource) DeactivatePatient(_ context.Context, id int64) error {
	if f.deactivateErr != nil {
		return f.deactivateErr
	}
	f.deactivated = append(f.deactivated, id)
	return nil
}

func (f *fakeSource) ReactivatePatient(_ context.Context, id int64) error {
	f.reactivated = append(f.reactivated, id)
	return nil
}

var people = []appointment.Patient{
	{ID: 1, Name: "José Conceição", CPF: "52998224725", Phone: "11987654321", BirthDate: "1990-02-28", Street: "Rua Augusta", Number: "500", City: "São Paulo", UF: "SP", Active: true},
	{ID: 2, Name: "Maria Silva", CPF: "39053344705", Phone: "8133334444", BirthDate: "1985-11-03", City: "Recife", UF: "PE", Active: false},
	{ID: 3, Name: "Ana Souza", CPF: "11144477735", Email: "ana@example.com", City: "Curitiba", UF: "PR", Active: true},
}

func TestListStatusFilter(t *testing.T) {
	d := NewDirectory(&fakeSource{patients: people}, nil)
	cases := map[Status]int{StatusActive: 2, StatusInactive: 1, StatusAll: 3}
	for status, want := range cases {
		got, err := d.List(context.Background(), status, "")
		if err != nil {
			t.Fatal(err)
		}
		if got.Count != want {
			t.Errorf("%s: count = %d, want %d", status, got.Count, want)
		}
	}
}

func TestListSearch(t *testing.T) {
	d := NewDirectory(&fakeSource{patients: people}, nil)
	cases := map[string]int64{
		"jose conceicao": 1,
		"529.982.247-25": 1,
		"39053344705":    2,
		"28/02/1990":     1,
		"(81) 3333-4444": 2,
		"rua augusta, 5": 1,
		"curitiba":       3,
		"ANA@EXAMPLE":    3,
	}
	for term, want := range cases {
		got, err := d.List(context.Background(), StatusAll, term)
		if err != nil {
			t.Fatal(err)
		}
		if got.Count != 1 || got.Patients[0].ID != want {
			t.Errorf("search %q = %+v, want patient %d", term, got.Patients, want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(""); err != nil || s != StatusActive {
		t.Fatalf("default = %q %v", s, err)
	}
	if _, err := ParseStatus("deleted"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeactivateBlockedByOpenAppointments(t *testing.T) {
	src := &fakeSource{
		patients:      people,
		deactivateErr: &gateway.StatusError{Status: http.StatusConflict, Message: "possui consultas"},
	}
	err := NewDirectory(src, nil).Deactivate(context.Background(), 1)
	if !errors.Is(err, ErrOpenAppointments) {
		t.Fatalf("err = %v, want ErrOpenAppointments", err)
	}
	if err.Error() != "cannot deactivate José Conceição: there are open appointments" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestDeactivateAndReactivate(t *testing.T) {
	src := &fakeSource{patients: people}
	d := NewDirectory(src, nil)
	if err := d.Deactivate(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := d.Reactivate(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if len(src.deactivated) != 1 || len(src.reactivated) != 1 {
		t.Fatalf("deactivated %v reactivated %v", src.deactivated, src.reactivated)
	}
	if err := d.Deactivate(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
