// Package schema abstracts the heterogeneous field layout of underlying
// subscription engines. Different integrations expose different field names
// for "next billing date", "plan" and "status"; a Descriptor declares what a
// given engine supports, and resolvers return the concrete field to read or
// write, or an explicit unsupported error. Callers translate unsupported
// into a user-facing "operation unavailable" failure, never a crash.
package schema

import (
	dErrors "subport/pkg/domain-errors"
)

// FieldKind distinguishes date-only fields from timestamp fields. The
// past-date validation for date pushes depends on it.
type FieldKind int

const (
	FieldDate FieldKind = iota
	FieldDateTime
)

// Stage is an engine-defined lifecycle stage (stage-based engines only).
type Stage struct {
	ID    string
	Label string
}

// Descriptor declares the capabilities of the underlying subscription
// engine for one order. It is a typed, possibly-partial structure: absent
// maps/slices simply mean the engine lacks that capability.
type Descriptor struct {
	// Fields maps engine field names present on the order schema to their
	// kind. Next-date candidates are looked up here.
	Fields map[string]FieldKind
	// HasPlan reports whether the engine exposes a recurrence-plan concept.
	HasPlan bool
	// Actions maps engine transition actions ("pause", "resume", ...) to the
	// subscription-status value the action results in.
	Actions map[string]string
	// Stages lists the engine's lifecycle stages, when stage-based.
	Stages []Stage
	// Statuses enumerates the allowed subscription-status selection values,
	// when status-selection-based.
	Statuses []string
}

// HasField reports whether the engine schema carries the named field.
func (d Descriptor) HasField(name string) bool {
	_, ok := d.Fields[name]
	return ok
}

// nextDateCandidates is the canonical priority list of next-date field
// names across known subscription engines.
var nextDateCandidates = []string{
	"recurring_next_date",
	"next_invoice_date",
	"next_delivery_date",
	"x_next_delivery_date",
}

// ResolveNextDateField returns the first next-date candidate present on the
// engine schema, with its kind. Returns an unsupported error when the
// engine exposes no known next-date field.
func ResolveNextDateField(d Descriptor) (string, FieldKind, error) {
	for _, name := range nextDateCandidates {
		if kind, ok := d.Fields[name]; ok {
			return name, kind, nil
		}
	}
	return "", 0, dErrors.New(dErrors.CodeUnsupported, "no next date field was found on this subscription")
}

// ResolvePlanCapability returns an unsupported error when the engine has no
// plan concept. Interval changes require it.
func ResolvePlanCapability(d Descriptor) error {
	if !d.HasPlan {
		return dErrors.New(dErrors.CodeUnsupported, "this subscription does not support interval change")
	}
	return nil
}
