package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinVINLength = 11
	MaxVINLength = 32
)

// ValidationError reports malformed intake; no claim is created for it.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks intake bounds and returns the parsed loss date.
func (in ClaimInput) Validate() (time.Time, error) {
	n := utf8.RuneCountInString(in.VIN)
	if n < MinVINLength || n > MaxVINLength {
		return time.Time{}, ValidationError{Field: "vin", Message: fmt.Sprintf("length must be between %d and %d characters, got %d", MinVINLength, MaxVINLength, n)}
	}
	if strings.TrimSpace(in.LossDate) == "" {
		return time.Time{}, ValidationError{Field: "lossDate", Message: "required"}
	}
	lossDate, err := ParseLossDate(in.LossDate)
	if err != nil {
		return time.Time{}, ValidationError{Field: "lossDate", Message: err.Error()}
	}
	return lossDate, nil
}

var lossDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseLossDate accepts the ISO-8601 forms seen on intake. Values without a
// zone are read as UTC.
func ParseLossDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range lossDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ISO-8601 date %q", s)
}

// FormatLossDate renders a loss date for collaborator requests.
func FormatLossDate(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
