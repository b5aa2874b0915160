package model

import (
	"fmt"

	"github.com/papercomputeco/graphstack/pkg/graph"
)

// ValidateObject checks an object against its entity. It reports every
// violation at once as a *ValidationError. When full is set, missing
// required attributes are violations too (inserts are validated in full).
func (m *Model) ValidateObject(obj *graph.Object, full bool) error {
	id := obj.ID()

	e, ok := m.byName[obj.Entity()]
	if !ok {
		return &ValidationError{Violations: []Violation{{Identity: id, Reason: fmt.Sprintf("unknown entity %q", obj.Entity())}}}
	}

	var violations []Violation

	for name, value := range obj.Attributes() {
		a, ok := e.attrByName[name]
		if !ok {
			violations = append(violations, Violation{Identity: id, Field: name, Reason: "unknown attribute"})
			continue
		}
		if !a.Type.Holds(value) {
			violations = append(violations, Violation{Identity: id, Field: name, Reason: fmt.Sprintf("%T is not a %s value", value, a.Type)})
		}
	}

	if full {
		for _, a := range e.attributes {
			if !a.Required {
				continue
			}
			if _, ok := obj.Lookup(a.Name); !ok {
				violations = append(violations, Violation{Identity: id, Field: a.Name, Reason: "required attribute missing"})
			}
		}
	}

	for name, targets := range obj.Relationships() {
		r, ok := e.relByName[name]
		if !ok {
			violations = append(violations, Violation{Identity: id, Field: name, Reason: "unknown relationship"})
			continue
		}
		if !r.ToMany && len(targets) > 1 {
			violations = append(violations, Violation{Identity: id, Field: name, Reason: fmt.Sprintf("to-one relationship holds %d targets", len(targets))})
		}
		for _, t := range targets {
			if t.Entity != r.Target {
				violations = append(violations, Violation{Identity: id, Field: name, Reason: fmt.Sprintf("target %s is not a %s", t, r.Target)})
			}
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// ApplyDefaults fills unset attributes that declare a default value.
func (m *Model) ApplyDefaults(obj *graph.Object) error {
	e, err := m.Entity(obj.Entity())
	if err != nil {
		return err
	}
	for _, a := range e.attributes {
		if a.Default == nil {
			continue
		}
		if _, ok := obj.Lookup(a.Name); !ok {
			obj.Set(a.Name, a.Default)
		}
	}
	return nil
}

// Normalize coerces every attribute of obj to its canonical type and fills
// defaults. Stores call it on objects decoded from their wire format.
// Attributes the model no longer declares are dropped.
func (m *Model) Normalize(obj *graph.Object) error {
	e, err := m.Entity(obj.Entity())
	if err != nil {
		return err
	}
	for name, value := range obj.Attributes() {
		a, ok := e.attrByName[name]
		if !ok {
			obj.Set(name, nil)
			continue
		}
		coerced, err := a.Type.Coerce(value)
		if err != nil {
			return fmt.Errorf("normalizing %s.%s: %w", obj.Entity(), name, err)
		}
		obj.Set(name, coerced)
	}
	return m.ApplyDefaults(obj)
}
