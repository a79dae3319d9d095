package domain

import "fmt"

// Severity is the ordered urgency classification of an alert.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Severities lists every severity from least to most urgent.
var Severities = []Severity{SeverityInfo, SeverityWarning, SeverityCritical, SeverityEmergency}

// Rank orders severities for application-level sorting: info=1 .. emergency=4.
// Unknown values rank 0. Stored severity columns are labels, so ordering by
// urgency has to go through Rank rather than the raw text.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	case SeverityEmergency:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity converts a stored label back into a Severity.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// SeverityFromMagnitude maps an earthquake magnitude to a severity. Each band
// includes its lower threshold.
func SeverityFromMagnitude(magnitude float64) Severity {
	switch {
	case magnitude >= 6.0:
		return SeverityEmergency
	case magnitude >= 5.0:
		return SeverityCritical
	case magnitude >= 4.0:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
