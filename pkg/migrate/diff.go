package migrate

import (
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/papercomputeco/graphstack/pkg/model"
)

// ChangeKind names one kind of compatible model change.
type ChangeKind string

const (
	AddEntity        ChangeKind = "add_entity"
	AddAttribute     ChangeKind = "add_attribute"
	AddRelationship  ChangeKind = "add_relationship"
	RequireAttribute ChangeKind = "require_attribute"
	RelaxAttribute   ChangeKind = "relax_attribute"
	ChangeDefault    ChangeKind = "change_default"
	ChangeDeleteRule ChangeKind = "change_delete_rule"
)

// Change is one compatible difference between two models.
type Change struct {
	Kind   ChangeKind
	Entity string
	Member string

	// Backfill is set when existing objects need the new default written.
	Backfill bool
}

func (c Change) String() string {
	if c.Member == "" {
		return fmt.Sprintf("%s %s", c.Kind, c.Entity)
	}
	return fmt.Sprintf("%s %s.%s", c.Kind, c.Entity, c.Member)
}

// Plan is the list of changes taking one model to another.
type Plan struct {
	Changes []Change
}

// Empty reports whether the two models are equivalent.
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0
}

// BackfillEntities returns the entities whose stored objects must be
// rewritten, in model order.
func (p *Plan) BackfillEntities() []string {
	var out []string
	for _, c := range p.Changes {
		if c.Backfill && !slices.Contains(out, c.Entity) {
			out = append(out, c.Entity)
		}
	}
	return out
}

// Diff computes the plan from one model to another. It fails with a reason
// when the change cannot be applied automatically: a removed entity,
// attribute or relationship, a changed attribute type or relationship shape,
// or a new required attribute without a default.
func Diff(from, to *model.Model) (*Plan, error) {
	plan := &Plan{}

	for _, oldE := range from.Entities() {
		newE, err := to.Entity(oldE.Name())
		if err != nil {
			return nil, fmt.Errorf("entity %s was removed", oldE.Name())
		}
		if err := diffAttributes(plan, oldE, newE); err != nil {
			return nil, err
		}
		if err := diffRelationships(plan, oldE, newE); err != nil {
			return nil, err
		}
	}

	for _, newE := range to.Entities() {
		if _, err := from.Entity(newE.Name()); err == nil {
			continue
		}
		plan.Changes = append(plan.Changes, Change{Kind: AddEntity, Entity: newE.Name()})
	}

	return plan, nil
}

func diffAttributes(plan *Plan, oldE, newE *model.Entity) error {
	entity := oldE.Name()

	for _, oldA := range oldE.Attributes() {
		newA, err := newE.Attribute(oldA.Name)
		if err != nil {
			return fmt.Errorf("attribute %s.%s was removed", entity, oldA.Name)
		}
		if newA.Type != oldA.Type {
			return fmt.Errorf("attribute %s.%s changed type from %s to %s", entity, oldA.Name, oldA.Type, newA.Type)
		}

		switch {
		case newA.Required && !oldA.Required:
			if newA.Default == nil {
				return fmt.Errorf("attribute %s.%s became required without a default", entity, oldA.Name)
			}
			plan.Changes = append(plan.Changes, Change{Kind: RequireAttribute, Entity: entity, Member: oldA.Name, Backfill: true})
		case !newA.Required && oldA.Required:
			plan.Changes = append(plan.Changes, Change{Kind: RelaxAttribute, Entity: entity, Member: oldA.Name})
		}

		if !sameValue(oldA.Default, newA.Default) {
			plan.Changes = append(plan.Changes, Change{Kind: ChangeDefault, Entity: entity, Member: oldA.Name})
		}
	}

	for _, newA := range newE.Attributes() {
		if _, err := oldE.Attribute(newA.Name); err == nil {
			continue
		}
		if newA.Required && newA.Default == nil {
			return fmt.Errorf("new required attribute %s.%s has no default", entity, newA.Name)
		}
		plan.Changes = append(plan.Changes, Change{
			Kind:     AddAttribute,
			Entity:   entity,
			Member:   newA.Name,
			Backfill: newA.Default != nil,
		})
	}
	return nil
}

func diffRelationships(plan *Plan, oldE, newE *model.Entity) error {
	entity := oldE.Name()

	for _, oldR := range oldE.Relationships() {
		newR, err := newE.Relationship(oldR.Name)
		if err != nil {
			return fmt.Errorf("relationship %s.%s was removed", entity, oldR.Name)
		}
		if newR.Target != oldR.Target || newR.ToMany != oldR.ToMany || newR.Inverse != oldR.Inverse {
			return fmt.Errorf("relationship %s.%s changed shape", entity, oldR.Name)
		}
		if newR.DeleteRule != oldR.DeleteRule {
			plan.Changes = append(plan.Changes, Change{Kind: ChangeDeleteRule, Entity: entity, Member: oldR.Name})
		}
	}

	for _, newR := range newE.Relationships() {
		if _, err := oldE.Relationship(newR.Name); err == nil {
			continue
		}
		plan.Changes = append(plan.Changes, Change{Kind: AddRelationship, Entity: entity, Member: newR.Name})
	}
	return nil
}

func sameValue(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}
