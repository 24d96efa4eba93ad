package form

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinicdesk/internal/appointment"
	"github.com/hackgods/clinicdesk/internal/audit"
	"github.com/hackgods/clinicdesk/internal/gateway"
	"github.com/hackgods/clinicdesk/internal/postal"
	"github.com/hackgods/clinicdesk/internal/validate"
)

const kindPatient = "patient"

type PatientWriter interface {
	CreatePatient(ctx context.Context, p appointment.Patient) error
	UpdatePatient(ctx context.Context, id int64, p appointment.Patient) error
}

type PostalLookup interface {
	Lookup(ctx context.Context, cep string) (postal.Address, error)
}

// PatientMode is NewPatient or EditPatient.
type PatientMode interface {
	patientMode()
	String() string
}

type NewPatient struct{}

type EditPatient struct {
	PatientID int64
}

func (NewPatient) patientMode()  {}
func (EditPatient) patientMode() {}

func (NewPatient) String() string  { return "create" }
func (EditPatient) String() string { return "edit" }

func ParsePatientMode(name string, id int64) (PatientMode, error) {
	switch name {
	case "create":
		return NewPatient{}, nil
	case "edit":
		if id <= 0 {
			return nil, fmt.Errorf("edit requires a patient id")
		}
		return EditPatient{PatientID: id}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", name)
}

type PatientValues struct {
	CPF       string `json:"cpf"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date"`
	Gender    string `json:"gender"`
	CEP       string `json:"cep"`
	Street    string `json:"street"`
	Number    string `json:"number"`
	City      string `json:"city"`
	UF        string `json:"uf"`
}

func PatientValuesOf(p appointment.Patient) PatientValues {
	return PatientValues{
		CPF:       p.CPF,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		BirthDate: p.BirthDate,
		Gender:    p.Gender,
		CEP:       p.CEP,
		Street:    p.Street,
		Number:    p.Number,
		City:      p.City,
		UF:        p.UF,
	}
}

type PatientPatch struct {
	CPF       *string `json:"cpf"`
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	BirthDate *string `json:"birth_date"`
	Gender    *string `json:"gender"`
	CEP       *string `json:"cep"`
	Street    *string `json:"street"`
	Number    *string `json:"number"`
	City      *string `json:"city"`
	UF        *string `json:"uf"`
}

type PostalStatus string

const (
	PostalIdle     PostalStatus = "idle"
	PostalResolved PostalStatus = "resolved"
	PostalFailed   PostalStatus = "failed"
)

type PatientState struct {
	ID        string            `json:"id"`
	Mode      string            `json:"mode"`
	Phase     Phase             `json:"phase"`
	Values    PatientValues     `json:"values"`
	Errors    map[string]string `json:"errors"`
	Postal    PostalStatus      `json:"postal"`
	CanSubmit bool              `json:"can_submit"`
	Error     string            `json:"error,omitempty"`
}

var patientFields = []validate.Field{
	validate.FieldCPF,
	validate.FieldName,
	validate.FieldEmail,
	validate.FieldPhone,
	validate.FieldBirthDate,
	validate.FieldGender,
	validate.FieldCEP,
	validate.FieldStreet,
	validate.FieldNumber,
	validate.FieldCity,
	validate.FieldUF,
}

type PatientForm struct {
	id    string
	owner string
	deps  Deps

	mu        sync.Mutex
	mode      PatientMode
	phase     Phase
	values    PatientValues
	touched   map[validate.Field]bool
	errors    map[validate.Field]string
	postal    PostalStatus
	postalSeq uint64
	submitErr string
	lastUsed  time.Time
}

func newPatientForm(id, owner string, mode PatientMode, initial PatientValues, deps Deps) *PatientForm {
	f := &PatientForm{
		id:       id,
		owner:    owner,
		deps:     deps,
		mode:     mode,
		phase:    PhaseEditing,
		values:   initial,
		touched:  map[validate.Field]bool{},
		errors:   map[validate.Field]string{},
		postal:   PostalIdle,
		lastUsed: deps.Now(),
	}
	if _, creating := mode.(NewPatient); !creating {
		for _, fld := range patientFields {
			f.touched[fld] = true
		}
		f.revalidateLocked()
	}
	return f
}

func (f *PatientForm) ID() string    { return f.id }
func (f *PatientForm) Owner() string { return f.owner }

// Apply merges p into the draft. A change to a complete CEP triggers the
// postal lookup before returning; a lookup answer for a CEP that has since
// changed is dropped.
func (f *PatientForm) Apply(ctx context.Context, p PatientPatch) (PatientState, error) {
	f.mu.Lock()
	if err := f.usableLocked(); err != nil {
		st := f.stateLocked()
		f.mu.Unlock()
		return st, err
	}
	f.lastUsed = f.deps.Now()

	set := func(dst *string, src *string, fld validate.Field) {
		if src == nil {
			return
		}
		*dst = *src
		f.touched[fld] = true
	}
	if p.CPF != nil {
		delete(f.errors, validate.FieldCPF)
	}
	set(&f.values.CPF, p.CPF, validate.FieldCPF)
	set(&f.values.Name, p.Name, validate.FieldName)
	set(&f.values.Email, p.Email, validate.FieldEmail)
	set(&f.values.Phone, p.Phone, validate.FieldPhone)
	set(&f.values.BirthDate, p.BirthDate, validate.FieldBirthDate)
	set(&f.values.Gender, p.Gender, validate.FieldGender)
	set(&f.values.Number, p.Number, validate.FieldNumber)

	// manual address edits stop trusting the lookup
	if p.Street != nil || p.City != nil || p.UF != nil {
		f.postal = PostalIdle
	}
	set(&f.values.Street, p.Street, validate.FieldStreet)
	set(&f.values.City, p.City, validate.FieldCity)
	set(&f.values.UF, p.UF, validate.FieldUF)

	lookup := ""
	if p.CEP != nil && validate.OnlyDigits(*p.CEP) != validate.OnlyDigits(f.values.CEP) {
		f.postal = PostalIdle
		if validate.CEP(*p.CEP) == "" && f.deps.Postal != nil {
			lookup = validate.OnlyDigits(*p.CEP)
		}
	}
	set(&f.values.CEP, p.CEP, validate.FieldCEP)

	f.submitErr = ""
	f.revalidateLocked()
	if lookup == "" {
		st := f.stateLocked()
		f.mu.Unlock()
		return st, nil
	}
	f.postalSeq++
	seq := f.postalSeq
	f.mu.Unlock()

	addr, err := f.deps.Postal.Lookup(ctx, lookup)

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq != f.postalSeq || f.phase == PhaseClosed {
		return f.stateLocked(), nil
	}
	if err != nil {
		f.deps.Log.Info("postal lookup failed, manual address entry",
			zap.String("form", f.id), zap.String("cep", lookup), zap.Error(err))
		f.values.Street, f.values.City, f.values.UF = "", "", ""
		f.postal = PostalFailed
	} else {
		f.values.Street, f.values.City, f.values.UF = addr.Street, addr.City, addr.State
		f.postal = PostalResolved
	}
	f.revalidateLocked()
	return f.stateLocked(), nil
}

func (f *PatientForm) State() PatientState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revalidateLocked()
	return f.stateLocked()
}

// Submit writes the patient. A backend rejection that names the CPF becomes
// a message on the cpf field.
func (f *PatientForm) Submit(ctx context.Context) (PatientState, error) {
	f.mu.Lock()
	if err := f.usableLocked(); err != nil {
		st := f.stateLocked()
		f.mu.Unlock()
		return st, err
	}
	f.lastUsed = f.deps.Now()
	f.submitErr = ""
	for _, fld := range patientFields {
		f.touched[fld] = true
	}
	f.revalidateLocked()
	if !f.fieldsValidLocked() {
		f.deps.Recorder.ObserveSubmission(kindPatient, OutcomeInvalid)
		st := f.stateLocked()
		f.mu.Unlock()
		return st, ErrGateClosed
	}
	mode := f.mode
	rec := f.recordLocked()
	f.phase = PhaseSubmitting
	f.mu.Unlock()

	err := f.write(ctx, mode, rec)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		f.deps.Recorder.ObserveSubmission(kindPatient, OutcomeSuccess)
		f.closeLocked()
		return f.stateLocked(), nil
	}

	f.phase = PhaseEditing
	if duplicateCPF(err) {
		f.deps.Recorder.ObserveSubmission(kindPatient, OutcomeDuplicate)
		f.errors[validate.FieldCPF] = ErrDuplicateCPF.Error()
		return f.stateLocked(), ErrDuplicateCPF
	}
	f.deps.Recorder.ObserveSubmission(kindPatient, OutcomeBackend)
	f.submitErr = errorMessage(err, "could not save the patient")
	f.deps.Log.Warn("patient write failed",
		zap.String("form", f.id), zap.Stringer("mode", mode), zap.Error(err))
	return f.stateLocked(), err
}

func (f *PatientForm) write(ctx context.Context, mode PatientMode, p appointment.Patient) error {
	var (
		err   error
		event string
		id    int64
	)
	switch m := mode.(type) {
	case NewPatient:
		err = f.deps.Patients.CreatePatient(ctx, p)
		event = audit.EventPatientCreated
	case EditPatient:
		id = m.PatientID
		err = f.deps.Patients.UpdatePatient(ctx, id, p)
		event = audit.EventPatientUpdated
	default:
		panic(fmt.Sprintf("form: unhandled patient mode %T", mode))
	}
	if err != nil {
		return err
	}
	f.deps.Audit.Record(ctx, event, audit.EntityPatient, id, actorOf(ctx, f.owner), map[string]any{
		"cpf":  p.CPF,
		"name": p.Name,
	})
	return nil
}

// duplicateCPF matches the backend's rejection of an already registered CPF.
func duplicateCPF(err error) bool {
	status := gateway.Status(err)
	if status != http.StatusConflict && status != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(gateway.Message(err)), "cpf")
}

func (f *PatientForm) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *PatientForm) idleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUsed
}

func (f *PatientForm) closeLocked() {
	f.phase = PhaseClosed
	f.values = PatientValues{}
	f.touched = map[validate.Field]bool{}
	f.errors = map[validate.Field]string{}
	f.postal = PostalIdle
	f.postalSeq++
}

func (f *PatientForm) usableLocked() error {
	switch f.phase {
	case PhaseClosed:
		return ErrClosed
	case PhaseValidating, PhaseSubmitting:
		return ErrBusy
	}
	return nil
}

// recordLocked converts the draft to the record sent to the backend: masks
// removed, names trimmed, UF upper cased.
func (f *PatientForm) recordLocked() appointment.Patient {
	v := f.values
	p := appointment.Patient{
		CPF:       validate.OnlyDigits(v.CPF),
		Name:      strings.TrimSpace(v.Name),
		Email:     strings.TrimSpace(v.Email),
		Phone:     validate.OnlyDigits(v.Phone),
		BirthDate: strings.TrimSpace(v.BirthDate),
		Gender:    v.Gender,
		CEP:       validate.OnlyDigits(v.CEP),
		Street:    strings.TrimSpace(v.Street),
		Number:    strings.TrimSpace(v.Number),
		City:      strings.TrimSpace(v.City),
		UF:        strings.ToUpper(strings.TrimSpace(v.UF)),
		Active:    true,
	}
	if m, ok := f.mode.(EditPatient); ok {
		p.ID = m.PatientID
	}
	return p
}

func (f *PatientForm) raw(fld validate.Field) string {
	v := f.values
	switch fld {
	case validate.FieldCPF:
		return v.CPF
	case validate.FieldName:
		return v.Name
	case validate.FieldEmail:
		return v.Email
	case validate.FieldPhone:
		return v.Phone
	case validate.FieldBirthDate:
		return v.BirthDate
	case validate.FieldGender:
		return v.Gender
	case validate.FieldCEP:
		return v.CEP
	case validate.FieldStreet:
		return v.Street
	case validate.FieldNumber:
		return v.Number
	case validate.FieldCity:
		return v.City
	case validate.FieldUF:
		return v.UF
	}
	return ""
}

func (f *PatientForm) validateContextLocked() validate.Context {
	return validate.Context{Now: f.deps.Now(), PostalResolved: f.postal == PostalResolved}
}

func (f *PatientForm) revalidateLocked() {
	vctx := f.validateContextLocked()
	for _, fld := range patientFields {
		if !f.touched[fld] {
			delete(f.errors, fld)
			continue
		}
		// a duplicate CPF message stays until the CPF changes
		if fld == validate.FieldCPF && f.errors[fld] == ErrDuplicateCPF.Error() {
			continue
		}
		if msg := validate.Validate(fld, f.raw(fld), vctx); msg != "" {
			f.errors[fld] = msg
		} else {
			delete(f.errors, fld)
		}
	}
}

func (f *PatientForm) fieldsValidLocked() bool {
	vctx := f.validateContextLocked()
	for _, fld := range patientFields {
		if validate.Validate(fld, f.raw(fld), vctx) != "" {
			return false
		}
	}
	return true
}

func (f *PatientForm) stateLocked() PatientState {
	st := PatientState{
		ID:     f.id,
		Mode:   f.mode.String(),
		Phase:  f.phase,
		Values: f.values,
		Errors: make(map[string]string, len(f.errors)),
		Postal: f.postal,
		Error:  f.submitErr,
	}
	for k, v := range f.errors {
		st.Errors[string(k)] = v
	}
	st.CanSubmit = f.phase == PhaseEditing && len(f.errors) == 0 && f.fieldsValidLocked()
	return st
}
