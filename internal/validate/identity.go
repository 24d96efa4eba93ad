package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	namePartRe  = regexp.MustCompile(`^[A-ZÀ-Ö][a-zà-ö]+$`)
	doubleSpace = regexp.MustCompile(`\s{2,}`)
	emailRe     = regexp.MustCompile(`(?i)^[a-z0-9](?:[a-z0-9._%+-]{0,62}[a-z0-9])?@(?:[a-z0-9-]+\.)+[a-z]{2,6}$`)
	tldRe       = regexp.MustCompile(`^[a-z]{2,6}$`)
	cityRe      = regexp.MustCompile(`^[A-Za-zÀ-ÖØ-öø-ÿ ]{2,40}$`)
)

var ufSet = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {}, "ES": {}, "GO": {},
	"MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {}, "PB": {}, "PR": {}, "PE": {}, "PI": {},
	"RJ": {}, "RN": {}, "RS": {}, "RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {},
}

// Area codes (DDD) in use.
var dddSet = map[string]struct{}{
	"11": {}, "12": {}, "13": {}, "14": {}, "15": {}, "16": {}, "17": {}, "18": {}, "19": {},
	"21": {}, "22": {}, "24": {}, "27": {}, "28": {},
	"31": {}, "32": {}, "33": {}, "34": {}, "35": {}, "37": {}, "38": {},
	"41": {}, "42": {}, "43": {}, "44": {}, "45": {}, "46": {}, "47": {}, "48": {}, "49": {},
	"51": {}, "53": {}, "54": {}, "55": {},
	"61": {}, "62": {}, "63": {}, "64": {}, "65": {}, "66": {}, "67": {}, "68": {}, "69": {},
	"71": {}, "73": {}, "74": {}, "75": {}, "77": {}, "79": {},
	"81": {}, "82": {}, "83": {}, "84": {}, "85": {}, "86": {}, "87": {}, "88": {}, "89": {},
	"91": {}, "92": {}, "93": {}, "94": {}, "95": {}, "96": {}, "97": {}, "98": {}, "99": {},
}

// ValidDDD reports whether code is an area code in use.
func ValidDDD(code string) bool {
	_, ok := dddSet[code]
	return ok
}

// DDDs returns every area code in use, in no particular order.
func DDDs() []string {
	out := make([]string, 0, len(dddSet))
	for k := range dddSet {
		out = append(out, k)
	}
	return out
}

// ValidUF reports whether code is one of the 27 federative units.
func ValidUF(code string) bool {
	_, ok := ufSet[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// CPF validates a taxpayer id, formatted or not.
func CPF(raw string) string {
	d := OnlyDigits(raw)
	if d == "" {
		return "CPF is required"
	}
	if !ValidCPF(d) {
		return "invalid CPF"
	}
	return ""
}

// ValidCPF checks length, repeated digits and both check digits.
func ValidCPF(raw string) bool {
	d := OnlyDigits(raw)
	if len(d) != 11 || allSame(d) {
		return false
	}
	first, second := cpfCheckDigits(d[:9])
	return d[9] == first && d[10] == second
}

// CompleteCPF appends both check digits to a 9 digit base.
func CompleteCPF(base string) string {
	first, second := cpfCheckDigits(base)
	return base + string([]byte{first, second})
}

func cpfCheckDigits(base string) (byte, byte) {
	first := cpfDigit(base)
	second := cpfDigit(base + string(first))
	return first, second
}

// cpfDigit weighs the digits from len+1 down to 2.
func cpfDigit(s string) byte {
	sum := 0
	weight := len(s) + 1
	for i := 0; i < len(s); i++ {
		sum += int(s[i]-'0') * (weight - i)
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + 11 - r)
}

// Name requires a full name: at least two capitalized parts, 6 to 60 runes.
func Name(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "name is required"
	}
	if doubleSpace.MatchString(v) {
		return "do not use double spaces"
	}
	parts := strings.Split(v, " ")
	if len(parts) < 2 {
		return "enter first and last name"
	}
	if n := utf8.RuneCountInString(v); n < 6 || n > 60 {
		return "use 6 to 60 characters"
	}
	for _, p := range parts {
		if utf8.RuneCountInString(p) < 2 || !namePartRe.MatchString(p) {
			return "each part must have at least 2 letters and start with an uppercase letter"
		}
	}
	return ""
}

func Email(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "email is required"
	}
	if !emailRe.MatchString(v) {
		return "invalid email format"
	}
	domain := v[strings.LastIndex(v, "@")+1:]
	if repeatedSuffix(domain) {
		return "invalid domain (repeated suffix)"
	}
	return ""
}

// repeatedSuffix catches typos like gmail.com.com: the last label repeats the
// one before it.
func repeatedSuffix(domain string) bool {
	labels := strings.Split(domain, ".")
	n := len(labels)
	if n < 3 {
		return false
	}
	last := labels[n-1]
	return tldRe.MatchString(last) && labels[n-2] == last
}

// Phone validates a landline (10 digits) or mobile (11 digits) number.
func Phone(raw string) string {
	n := OnlyDigits(raw)
	if n == "" {
		return "phone is required"
	}
	if len(n) != 10 && len(n) != 11 {
		return "use 10 or 11 digits"
	}
	if !ValidDDD(n[:2]) {
		return fmt.Sprintf("area code %q is invalid", n[:2])
	}
	subscriber := n[2:]
	if allSame(subscriber) {
		return "do not use repeated digits"
	}
	if len(n) == 11 && subscriber[0] != '9' {
		return `mobile numbers must start with "9"`
	}
	if len(n) == 10 && (subscriber[0] < '2' || subscriber[0] > '5') {
		return "landlines start with 2 to 5"
	}
	return ""
}

func CEP(raw string) string {
	d := OnlyDigits(raw)
	if d == "" {
		return "CEP is required"
	}
	if len(d) != 8 {
		return "CEP must have 8 digits"
	}
	return ""
}

func City(raw string) string {
	if raw == "" {
		return "city is required"
	}
	if !cityRe.MatchString(raw) {
		return "letters only, 2 to 40 characters"
	}
	return ""
}

func UF(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "UF is required"
	}
	if !ValidUF(raw) {
		return "invalid UF"
	}
	return ""
}
