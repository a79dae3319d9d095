package domain

import (
	"fmt"
	"strings"
)

// FieldError describes one violated field constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// ValidationError carries every field violation found while building an alert,
// not just the first one.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "invalid alert: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the violations.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// FeedMappingError reports a single feed feature that could not be turned into
// an alert. It is contained by the collector and never fails a batch.
type FeedMappingError struct {
	FeatureID string
	Err       error
}

func (e *FeedMappingError) Error() string {
	if e.FeatureID == "" {
		return fmt.Sprintf("map feed feature: %v", e.Err)
	}
	return fmt.Sprintf("map feed feature %s: %v", e.FeatureID, e.Err)
}

func (e *FeedMappingError) Unwrap() error { return e.Err }

// CollectionError reports a failed fetch from an alert source: transport error,
// non-2xx status, timeout or undecodable body. No alerts accompany it.
type CollectionError struct {
	Source string
	Err    error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %v", e.Source, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }
