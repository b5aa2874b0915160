package model

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/graphstack/pkg/graph"
)

// SchemaError reports a lookup of an entity, attribute or relationship the
// model does not define, or a model definition that is inconsistent.
type SchemaError struct {
	Entity string
	Member string
	Reason string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema error")
	if e.Entity != "" {
		b.WriteString(": entity ")
		b.WriteString(e.Entity)
	}
	if e.Member != "" {
		b.WriteString(" member ")
		b.WriteString(e.Member)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Violation is one failed constraint on one object.
type Violation struct {
	Identity graph.Identity
	Field    string
	Reason   string
}

func (v Violation) String() string {
	if v.Field == "" {
		return fmt.Sprintf("%s: %s", v.Identity, v.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", v.Identity, v.Field, v.Reason)
}

// ValidationError collects every violation found while validating objects
// against the model.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "validation failed: " + e.Violations[0].String()
	}

	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("validation failed (%d violations): %s", len(e.Violations), strings.Join(parts, "; "))
}
