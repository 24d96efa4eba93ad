// Package validate holds the field validators of the appointment and patient
// forms. Every validator maps a raw input to a user facing message; an empty
// message means the value is valid. Validators never fail and never touch the
// network.
package validate

import (
	"strings"
	"time"
)

type Field string

const (
	FieldDoctor    Field = "doctor_id"
	FieldPatient   Field = "patient_id"
	FieldSpecialty Field = "specialty_id"
	FieldDate      Field = "date"
	FieldTime      Field = "time"

	FieldCPF       Field = "cpf"
	FieldName      Field = "name"
	FieldEmail     Field = "email"
	FieldPhone     Field = "phone"
	FieldBirthDate Field = "birth_date"
	FieldGender    Field = "gender"
	FieldCEP       Field = "cep"
	FieldStreet    Field = "street"
	FieldNumber    Field = "number"
	FieldCity      Field = "city"
	FieldUF        Field = "uf"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Context carries what some validators need beyond the raw value.
type Context struct {
	// Now is the current instant already converted to the clinic zone.
	Now time.Time
	// Date is the appointment date the time validator compares against.
	Date string
	// PostalResolved is set once the CEP lookup filled street, city and UF.
	PostalResolved bool
}

// Today is the reference calendar date, YYYY-MM-DD.
func (c Context) Today() string {
	return c.Now.Format(DateLayout)
}

// Clock is the reference time of day, HH:MM.
func (c Context) Clock() string {
	return c.Now.Format(TimeLayout)
}

// Validate dispatches to the validator of field. Unknown fields are always valid.
func Validate(field Field, raw string, ctx Context) string {
	switch field {
	case FieldDoctor:
		return Required(raw, "doctor is required")
	case FieldPatient:
		return Required(raw, "patient is required")
	case FieldSpecialty:
		return Required(raw, "specialty is required")
	case FieldDate:
		return Date(raw, ctx)
	case FieldTime:
		return Time(raw, ctx)
	case FieldCPF:
		return CPF(raw)
	case FieldName:
		return Name(raw)
	case FieldEmail:
		return Email(raw)
	case FieldPhone:
		return Phone(raw)
	case FieldBirthDate:
		return BirthDate(raw, ctx)
	case FieldGender:
		return Required(raw, "gender is required")
	case FieldCEP:
		return CEP(raw)
	case FieldStreet:
		if ctx.PostalResolved {
			return ""
		}
		return Required(raw, "address is required")
	case FieldNumber:
		return Number(raw)
	case FieldCity:
		if ctx.PostalResolved {
			return ""
		}
		return City(raw)
	case FieldUF:
		if ctx.PostalResolved {
			return ""
		}
		return UF(raw)
	}
	return ""
}

func Required(raw, msg string) string {
	if strings.TrimSpace(raw) == "" {
		return msg
	}
	return ""
}

// Date rejects empty input and dates before the reference day.
func Date(raw string, ctx Context) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "date is required"
	}
	if _, err := time.Parse(DateLayout, v); err != nil {
		return "invalid date"
	}
	if v < ctx.Today() {
		return "date cannot be in the past"
	}
	return ""
}

// Time rejects empty input and, when ctx.Date is today, times already past.
func Time(raw string, ctx Context) string {
	if strings.TrimSpace(raw) == "" {
		return "time is required"
	}
	v, ok := NormalizeTime(raw)
	if !ok {
		return "invalid time"
	}
	if strings.TrimSpace(ctx.Date) == ctx.Today() && v < ctx.Clock() {
		return "must be a future time today"
	}
	return ""
}

// NormalizeTime reduces HH:MM or HH:MM:SS to HH:MM.
func NormalizeTime(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(TimeLayout), true
		}
	}
	return "", false
}

// BirthDate requires a date that is not in the future and an age in 0..120.
func BirthDate(raw string, ctx Context) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "birth date is required"
	}
	b, err := time.Parse(DateLayout, v)
	if err != nil {
		return "invalid date"
	}
	if v > ctx.Today() {
		return "future dates are not allowed"
	}
	if age := Age(b, ctx.Now); age < 0 || age > 120 {
		return "invalid age"
	}
	return ""
}

// Age counts completed years between birth and now.
func Age(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

func Number(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "number is required"
	}
	if v == "S/N" || isDigits(v) {
		return ""
	}
	return "digits or 'S/N' only"
}

// OnlyDigits drops every rune that is not an ASCII digit.
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// allSame reports whether s has at least two runes and all of them are equal.
func allSame(s string) bool {
	if len(s) < 2 {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
