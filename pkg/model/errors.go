// Package model defines the core domain types for the chat front end.
package model

import (
	"errors"
	"sort"
	"strings"
)

// Outcome kinds shared by the store and the HTTP layer.
var (
	ErrNotFound          = errors.New("not found")
	ErrEndOfWorld        = errors.New("cannot delete the last remaining user")
	ErrInvalidAttributes = errors.New("invalid attributes")
)

// ValidationErrors collects per-field validation messages.
// It matches ErrInvalidAttributes under errors.Is.
type ValidationErrors map[string][]string

// Add records a message for field.
func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

// OrNil returns nil when no messages were recorded.
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+" "+strings.Join(v[f], ", "))
	}
	return "invalid attributes: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrInvalidAttributes
}
