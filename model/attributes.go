package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/siherrmann/resolver/helper"
)

// Well known attribute keys used by blocking and comparison.
const (
	AttributeBirthYear  = "birth_year"
	AttributePostalCode = "postal_code"
)

// Attributes represents JSONB attributes stored in PostgreSQL
type Attributes map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for database retrieval
func (a *Attributes) Scan(value interface{}) error {
	if value == nil {
		*a = Attributes{}
		return nil
	}

	if s, ok := value.(Attributes); ok {
		*a = s
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, a)
}

// String returns the attribute as a trimmed string.
// Numbers are formatted without a fraction when they are whole.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false
	}

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	default:
		return "", false
	}

	s = strings.TrimSpace(s)
	return s, s != ""
}

// Int returns the attribute as an int. JSON numbers (float64) and numeric
// strings are accepted, fractional values are not.
func (a Attributes) Int(key string) (int, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}

	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	}
	return 0, false
}

// BirthYear returns a plausible four digit birth year
func (a Attributes) BirthYear() (int, bool) {
	year, ok := a.Int(AttributeBirthYear)
	if !ok || year < 1000 || year > 9999 {
		return 0, false
	}
	return year, true
}

// PostalCode returns the digits of the postal code ("114 55" -> "11455")
func (a Attributes) PostalCode() (string, bool) {
	s, ok := a.String(AttributePostalCode)
	if !ok {
		return "", false
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
	return digits, digits != ""
}

// Clone returns a shallow copy
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
