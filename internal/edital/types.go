package edital

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time component.
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return Date{Time: t}, nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as an ISO string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes an ISO date string.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Record is the structured edital persisted by the Recorder. Nullable fields
// are pointers; Institution and Specialty form the natural key.
type Record struct {
	Institution       string   `json:"instituicao"`
	Specialty         string   `json:"especialidade"`
	State             *string  `json:"estado"`
	City              *string  `json:"cidade"`
	Vacancies         *int     `json:"vagas"`
	RegistrationOpen  *Date    `json:"inicioInscricao"`
	RegistrationClose *Date    `json:"fimInscricao"`
	ExamDate          *Date    `json:"dataProva"`
	Fee               *float64 `json:"taxa"`
	Link              string   `json:"link"`
	Projected         bool     `json:"previsto"`
}

// NaturalKey identifies at most one stored record.
type NaturalKey struct {
	Institution string
	Specialty   string
}

// String renders the key for logs.
func (k NaturalKey) String() string {
	return k.Institution + "/" + k.Specialty
}

// Key returns the record's natural key with surrounding whitespace removed.
func (r Record) Key() NaturalKey {
	return NaturalKey{
		Institution: strings.TrimSpace(r.Institution),
		Specialty:   strings.TrimSpace(r.Specialty),
	}
}

// WithDefaultLink returns a copy whose empty link is replaced by locator.
func (r Record) WithDefaultLink(locator string) Record {
	if strings.TrimSpace(r.Link) == "" {
		r.Link = locator
	}
	return r
}

// UpsertOp reports which write the Recorder performed.
type UpsertOp string

// Upsert outcomes.
const (
	OpInserted UpsertOp = "inserted"
	OpUpdated  UpsertOp = "updated"
)

// UpsertResult describes a completed upsert.
type UpsertResult struct {
	ID string   `json:"id"`
	Op UpsertOp `json:"op"`
}

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Key NaturalKey
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
