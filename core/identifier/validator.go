package identifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/siherrmann/resolver/model"
)

// ValidateFunc validates and normalizes a raw identifier
type ValidateFunc func(raw string) model.IdentifierValidation

// Validator validates Swedish personnummer, samordningsnummer and
// organisationsnummer. It is pure apart from the reference time used to
// infer the century of ten digit person numbers.
type Validator struct {
	Now func() time.Time
}

// NewValidator creates a Validator using the wall clock
func NewValidator() *Validator {
	return &Validator{Now: time.Now}
}

// Validate accepts any supported identifier kind
func (v *Validator) Validate(raw string) model.IdentifierValidation {
	if res := v.ValidateOrganisationsnummer(raw); res.Valid {
		return res
	}
	return v.ValidatePersonnummer(raw)
}

// ValidatePersonnummer accepts YYMMDD-NNNC, YYMMDD+NNNC, YYYYMMDD-NNNC and
// the forms without separator. Days 61-91 mark coordination numbers.
// The normalized form has twelve digits.
func (v *Validator) ValidatePersonnummer(raw string) model.IdentifierValidation {
	digits, sep, ok := split(raw)
	if !ok {
		return model.IdentifierValidation{}
	}

	var year int
	switch len(digits) {
	case 12:
		year = atoi(digits[:4])
		digits = digits[2:]
	case 10:
		year = v.inferYear(atoi(digits[:2]), sep == '+')
	default:
		return model.IdentifierValidation{}
	}

	month := atoi(digits[2:4])
	day := atoi(digits[4:6])
	kind := model.IdentifierKindPerson
	if day > 60 {
		kind = model.IdentifierKindCoordination
		day -= 60
	}
	if !validDate(year, month, day) || !luhn(digits) {
		return model.IdentifierValidation{}
	}

	return model.IdentifierValidation{
		Valid:      true,
		Normalized: fmt.Sprintf("%04d%s", year, digits[2:]),
		Kind:       kind,
	}
}

// ValidateOrganisationsnummer accepts NNNNNN-NNNC with an optional 16 prefix.
// The third digit is at least 2. The normalized form has ten digits.
func (v *Validator) ValidateOrganisationsnummer(raw string) model.IdentifierValidation {
	digits, sep, ok := split(raw)
	if !ok || sep == '+' {
		return model.IdentifierValidation{}
	}
	if len(digits) == 12 && strings.HasPrefix(digits, "16") {
		digits = digits[2:]
	}
	if len(digits) != 10 || digits[2] < '2' || !luhn(digits) {
		return model.IdentifierValidation{}
	}

	return model.IdentifierValidation{
		Valid:      true,
		Normalized: digits,
		Kind:       model.IdentifierKindOrganisation,
	}
}

// Check returns a copy of id carrying its validation result
func (v *Validator) Check(id *model.Identifier) *model.Identifier {
	return CheckWith(v.Validate, id)
}

// CheckWith is Check for an arbitrary validate function
func CheckWith(validate ValidateFunc, id *model.Identifier) *model.Identifier {
	if id == nil {
		return nil
	}
	return id.Apply(validate(id.Raw))
}

// inferYear picks the latest year ending in yy that is not in the future.
// A plus separator means the person is at least 100 years old.
func (v *Validator) inferYear(yy int, centenarian bool) int {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	ref := now().Year()

	year := ref - ((ref-yy)%100+100)%100
	if centenarian {
		year -= 100
	}
	return year
}

// split removes whitespace and a single separator before the last four digits
func split(raw string) (string, byte, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	var sep byte
	if n := len(s); n > 5 && (s[n-5] == '-' || s[n-5] == '+') {
		sep = s[n-5]
		s = s[:n-5] + s[n-4:]
	}

	if s == "" {
		return "", 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", 0, false
		}
	}
	return s, sep, true
}

// luhn checks the mod 10 checksum with weights 2,1,2,... from the left
func luhn(digits string) bool {
	sum := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[i] - '0')
		if i%2 == len(digits)%2 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	return day <= time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// atoi is only called on strings split has verified to be digits
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
