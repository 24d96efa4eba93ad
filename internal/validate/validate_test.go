package validate

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func refCtx(t *testing.T) Context {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return Context{Now: time.Date(2024, 6, 10, 13, 20, 0, 0, loc)}
}

func TestCPFCanonical(t *testing.T) {
	if msg := CPF("11111111111"); msg == "" {
		t.Fatal("repeated digits accepted")
	}
	if msg := CPF("52998224725"); msg != "" {
		t.Fatalf("valid cpf rejected: %s", msg)
	}
	if msg := CPF("529.982.247-25"); msg != "" {
		t.Fatalf("formatted cpf rejected: %s", msg)
	}
	if msg := CPF(""); msg != "CPF is required" {
		t.Fatalf("empty cpf = %q", msg)
	}
	if msg := CPF("5299822472"); msg != "invalid CPF" {
		t.Fatalf("short cpf = %q", msg)
	}
}

func TestCPFRepeatedDigitsAlwaysInvalid(t *testing.T) {
	for d := '0'; d <= '9'; d++ {
		cpf := strings.Repeat(string(d), 11)
		if ValidCPF(cpf) {
			t.Fatalf("%s accepted", cpf)
		}
	}
}

func TestCPFChecksumStages(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		base := fmt.Sprintf("%09d", r.Intn(1_000_000_000))
		valid := CompleteCPF(base)
		if allSame(valid) {
			continue
		}
		if !ValidCPF(valid) {
			t.Fatalf("completed cpf %s rejected", valid)
		}
		for pos := 9; pos <= 10; pos++ {
			b := []byte(valid)
			b[pos] = '0' + (b[pos]-'0'+byte(1+r.Intn(9)))%10
			if ValidCPF(string(b)) {
				t.Fatalf("cpf %s with broken digit %d accepted", b, pos)
			}
		}
	}
}

func TestPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "phone is required"},
		{"(11) 98765-4321", ""},
		{"1132345678", ""},
		{"119876543", "use 10 or 11 digits"},
		{"11111111111", "do not use repeated digits"},
		{"11887654321", `mobile numbers must start with "9"`},
		{"1162345678", "landlines start with 2 to 5"},
		{"2098765432", `area code "20" is invalid`},
	}
	for _, c := range cases {
		if got := Phone(c.in); got != c.want {
			t.Errorf("Phone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPhoneRejectsEveryUnknownAreaCode(t *testing.T) {
	for code := 0; code < 100; code++ {
		ddd := fmt.Sprintf("%02d", code)
		if ValidDDD(ddd) {
			continue
		}
		for _, number := range []string{ddd + "987654321", ddd + "32345678"} {
			if Phone(number) == "" {
				t.Fatalf("phone %s with unknown area code accepted", number)
			}
		}
	}
}

func TestTimeAgainstToday(t *testing.T) {
	ctx := refCtx(t)
	ctx.Date = ctx.Today()
	for m := 0; m < 13*60+20; m += 7 {
		hhmm := fmt.Sprintf("%02d:%02d", m/60, m%60)
		if Time(hhmm, ctx) == "" {
			t.Fatalf("past time %s accepted for today", hhmm)
		}
	}
	if msg := Time("13:20", ctx); msg != "" {
		t.Fatalf("current minute rejected: %s", msg)
	}
	if msg := Time("14:00:00", ctx); msg != "" {
		t.Fatalf("future time rejected: %s", msg)
	}

	ctx.Date = "2024-06-11"
	for m := 0; m < 24*60; m += 11 {
		hhmm := fmt.Sprintf("%02d:%02d", m/60, m%60)
		if msg := Time(hhmm, ctx); msg != "" {
			t.Fatalf("time %s rejected for a future date: %s", hhmm, msg)
		}
	}
	if msg := Time("", ctx); msg != "time is required" {
		t.Fatalf("empty time = %q", msg)
	}
	if msg := Time("25:00", ctx); msg != "invalid time" {
		t.Fatalf("bad time = %q", msg)
	}
}

func TestDate(t *testing.T) {
	ctx := refCtx(t)
	cases := map[string]string{
		"":           "date is required",
		"2024-06-09": "date cannot be in the past",
		"2024-06-10": "",
		"2025-01-01": "",
		"10/06/2024": "invalid date",
	}
	for in, want := range cases {
		if got := Date(in, ctx); got != want {
			t.Errorf("Date(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDateUsesReferenceZone(t *testing.T) {
	// 01:30 UTC on the 11th is still the 10th in Sao Paulo.
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	now := time.Date(2024, 6, 11, 1, 30, 0, 0, time.UTC).In(loc)
	ctx := Context{Now: now}
	if msg := Date("2024-06-10", ctx); msg != "" {
		t.Fatalf("local today rejected: %s", msg)
	}
}

func TestName(t *testing.T) {
	cases := map[string]string{
		"":                "name is required",
		"Ana  Souza":      "do not use double spaces",
		"Roberto":         "enter first and last name",
		"Al Bo":           "use 6 to 60 characters",
		"João Conceição":  "",
		"Maria Silva":     "",
		"maria Silva":     "each part must have at least 2 letters and start with an uppercase letter",
		"Maria S":         "each part must have at least 2 letters and start with an uppercase letter",
		"  Maria Silva  ": "",
	}
	for in, want := range cases {
		if got := Name(in); got != want {
			t.Errorf("Name(%q) = %q, want %q", in, got, want)
		}
	}
	long := strings.Repeat("Abcdefghij ", 6) + "Ab"
	if got := Name(long); got != "use 6 to 60 characters" {
		t.Errorf("Name(long) = %q", got)
	}
}

func TestEmail(t *testing.T) {
	cases := map[string]string{
		"":                     "email is required",
		"ana@clinic.com.br":    "",
		"Ana.Souza@Clinic.COM": "",
		"ana@gmail.com.com":    "invalid domain (repeated suffix)",
		"ana@@clinic.com":      "invalid email format",
		"a b@clinic.com":       "invalid email format",
		"ana@clinic":           "invalid email format",
		"ana.@clinic.com":      "invalid email format",
		"ana@br.br":            "",
	}
	for in, want := range cases {
		if got := Email(in); got != want {
			t.Errorf("Email(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAddressFields(t *testing.T) {
	if CEP("01310-100") != "" || CEP("0131010") == "" || CEP("") != "CEP is required" {
		t.Fatal("cep validation mismatch")
	}
	if City("São Paulo") != "" || City("S") == "" || City("Rio 2") == "" || City("") != "city is required" {
		t.Fatal("city validation mismatch")
	}
	if UF("sp") != "" || UF("XX") != "invalid UF" || UF("") != "UF is required" {
		t.Fatal("uf validation mismatch")
	}
	if Number("S/N") != "" || Number("120") != "" || Number("12A") == "" || Number("") == "" {
		t.Fatal("number validation mismatch")
	}
}

func TestPostalResolvedSkipsAddressFields(t *testing.T) {
	ctx := refCtx(t)
	ctx.PostalResolved = true
	for _, f := range []Field{FieldStreet, FieldCity, FieldUF} {
		if msg := Validate(f, "", ctx); msg != "" {
			t.Fatalf("%s validated despite resolved CEP: %s", f, msg)
		}
	}
	ctx.PostalResolved = false
	if Validate(FieldCity, "", ctx) == "" {
		t.Fatal("empty city accepted without CEP lookup")
	}
}

func TestBirthDate(t *testing.T) {
	ctx := refCtx(t)
	cases := map[string]string{
		"":           "birth date is required",
		"2024-06-11": "future dates are not allowed",
		"2024-06-10": "",
		"1990-02-28": "",
		"1900-01-01": "invalid age",
	}
	for in, want := range cases {
		if got := BirthDate(in, ctx); got != want {
			t.Errorf("BirthDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatCPF("52998224725"); got != "529.982.247-25" {
		t.Fatalf("FormatCPF = %q", got)
	}
	if got := FormatCPF("5299"); got != "529.9" {
		t.Fatalf("partial FormatCPF = %q", got)
	}
	if got := FormatPhone("11987654321"); got != "(11) 98765-4321" {
		t.Fatalf("FormatPhone mobile = %q", got)
	}
	if got := FormatPhone("1132345678"); got != "(11) 3234-5678" {
		t.Fatalf("FormatPhone landline = %q", got)
	}
	if got := FormatCEP("01310100"); got != "01310-100" {
		t.Fatalf("FormatCEP = %q", got)
	}
}
