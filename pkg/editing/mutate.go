package editing

import (
	"context"
	"fmt"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
)

// Insert adds a new object to the context. Objects without an identity get a
// temporary one; attributes with model defaults are filled in.
//
// Relationships set on obj before Insert are kept as they are; use Link to
// maintain inverses.
func (c *Context) Insert(obj *graph.Object) error {
	if obj == nil {
		return fmt.Errorf("nil object: %w", ErrForeignObject)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return err
	}

	entity, err := c.model.Entity(obj.Entity())
	if err != nil {
		return err
	}

	if obj.HasIdentity() {
		id := obj.ID()
		switch {
		case c.objects[id] == obj:
			return fmt.Errorf("%s: %w", id, ErrDuplicate)
		case id.Temporary:
			return fmt.Errorf("%s: %w", id, ErrForeignTemporaryIdentity)
		default:
			return fmt.Errorf("%s: %w", id, ErrForeignObject)
		}
	}

	for _, ids := range obj.Relationships() {
		for _, target := range ids {
			if _, ok := c.inserted[target]; target.Temporary && !ok {
				return fmt.Errorf("%s: %w", target, ErrForeignTemporaryIdentity)
			}
		}
	}

	var violations []model.Violation
	coerced := make(map[string]any)
	for name, value := range obj.Attributes() {
		attr, err := entity.Attribute(name)
		if err != nil {
			return err
		}
		v, err := attr.Type.Coerce(value)
		if err != nil {
			violations = append(violations, model.Violation{Identity: obj.ID(), Field: name, Reason: err.Error()})
			continue
		}
		coerced[name] = v
	}
	if len(violations) > 0 {
		return &model.ValidationError{Violations: violations}
	}
	for name, v := range coerced {
		obj.Set(name, v)
	}

	obj.SetIdentity(c.registry.MintTemporary(entity.Name()))
	if err := c.model.ApplyDefaults(obj); err != nil {
		return err
	}

	id := obj.ID()
	c.objects[id] = obj
	c.inserted[id] = struct{}{}

	c.logger.Debug("inserted object", "context", c.name, "identity", id.String())
	return nil
}

// Update sets one attribute. The value is coerced to the attribute's type; a
// nil value clears it.
func (c *Context) Update(obj *graph.Object, attribute string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return err
	}
	if err := c.own(obj); err != nil {
		return err
	}

	entity, err := c.model.Entity(obj.Entity())
	if err != nil {
		return err
	}
	attr, err := entity.Attribute(attribute)
	if err != nil {
		return err
	}

	v, err := attr.Type.Coerce(value)
	if err != nil {
		return &model.ValidationError{Violations: []model.Violation{{
			Identity: obj.ID(),
			Field:    attribute,
			Reason:   err.Error(),
		}}}
	}

	obj.Set(attribute, v)
	c.mark(obj.ID(), attribute, false)
	return nil
}

// Link adds target to obj's relationship. A to-one relationship drops its
// previous target first. When the relationship has an inverse, the inverse
// side is updated too.
func (c *Context) Link(ctx context.Context, obj *graph.Object, relationship string, target *graph.Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sync(ctx); err != nil {
		return err
	}
	rel, err := c.checkRelationship(obj, relationship, target)
	if err != nil {
		return err
	}
	return c.link(ctx, obj, rel, target)
}

// Unlink removes target from obj's relationship, on both sides when an
// inverse is declared.
func (c *Context) Unlink(ctx context.Context, obj *graph.Object, relationship string, target *graph.Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sync(ctx); err != nil {
		return err
	}
	rel, err := c.checkRelationship(obj, relationship, target)
	if err != nil {
		return err
	}
	return c.unlink(ctx, obj, rel, target.ID())
}

func (c *Context) checkRelationship(obj *graph.Object, relationship string, target *graph.Object) (*model.Relationship, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if err := c.own(obj); err != nil {
		return nil, err
	}
	if err := c.own(target); err != nil {
		return nil, err
	}

	entity, err := c.model.Entity(obj.Entity())
	if err != nil {
		return nil, err
	}
	rel, err := entity.Relationship(relationship)
	if err != nil {
		return nil, err
	}
	if target.Entity() != rel.Target {
		return nil, &model.ValidationError{Violations: []model.Violation{{
			Identity: obj.ID(),
			Field:    relationship,
			Reason:   fmt.Sprintf("target %s is not a %s", target.ID(), rel.Target),
		}}}
	}
	return rel, nil
}

func (c *Context) link(ctx context.Context, a *graph.Object, rel *model.Relationship, b *graph.Object) error {
	if !rel.ToMany {
		for _, old := range a.Related(rel.Name) {
			if old == b.ID() {
				continue
			}
			if err := c.unlink(ctx, a, rel, old); err != nil {
				return err
			}
		}
	}
	if a.AddRelated(rel.Name, b.ID()) {
		c.mark(a.ID(), rel.Name, true)
	}

	inv := c.model.Inverse(rel)
	if inv == nil {
		return nil
	}

	if !inv.ToMany {
		for _, old := range b.Related(inv.Name) {
			if old == a.ID() {
				continue
			}
			if err := c.unlink(ctx, b, inv, old); err != nil {
				return err
			}
		}
	}
	if b.AddRelated(inv.Name, a.ID()) {
		c.mark(b.ID(), inv.Name, true)
	}
	return nil
}

// unlink removes target from obj's relationship and, when the target can be
// loaded, obj from the inverse side.
func (c *Context) unlink(ctx context.Context, obj *graph.Object, rel *model.Relationship, target graph.Identity) error {
	if obj.RemoveRelated(rel.Name, target) {
		c.mark(obj.ID(), rel.Name, true)
	}

	inv := c.model.Inverse(rel)
	if inv == nil {
		return nil
	}

	other, err := c.lookup(ctx, target)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.RemoveRelated(inv.Name, obj.ID()) {
		c.mark(other.ID(), inv.Name, true)
	}
	return nil
}

// Delete removes obj and applies the delete rules of its relationships:
// nullify drops the inverse references, cascade deletes the targets and deny
// refuses while targets remain. Deleting a local insert drops the insert.
// Deleting an object no ancestor knows is a no-op.
func (c *Context) Delete(ctx context.Context, obj *graph.Object) error {
	if obj == nil || !obj.HasIdentity() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(); err != nil {
		return err
	}
	if err := c.sync(ctx); err != nil {
		return err
	}

	id := obj.ID()
	current, ok := c.objects[id]
	if !ok {
		return c.deleteUntracked(ctx, id)
	}
	if current != obj {
		return fmt.Errorf("%s: %w", id, ErrForeignObject)
	}

	plan, err := c.planDelete(ctx, obj)
	if err != nil {
		return err
	}

	doomed := make(map[graph.Identity]struct{}, len(plan))
	for _, x := range plan {
		doomed[x.ID()] = struct{}{}
	}

	for _, x := range plan {
		if err := c.detach(ctx, x, doomed); err != nil {
			return err
		}
	}
	for _, x := range plan {
		c.remove(x.ID())
	}

	c.logger.Debug("deleted object", "context", c.name, "identity", id.String(), "cascaded", len(plan)-1)
	return nil
}

// deleteUntracked handles a delete for an instance this context never handed
// out: a no-op when nothing by that identity exists, a foreign object
// otherwise.
func (c *Context) deleteUntracked(ctx context.Context, id graph.Identity) error {
	if id.Temporary {
		return fmt.Errorf("%s: %w", id, ErrForeignTemporaryIdentity)
	}
	if _, gone := c.deleted[id]; gone {
		return nil
	}

	_, err := c.lookup(ctx, id)
	if store.IsNotFound(err) {
		c.logger.Debug("delete of unknown object ignored", "context", c.name, "identity", id.String())
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", id, ErrForeignObject)
}

// planDelete collects obj and everything its cascade rules reach, failing if
// a deny rule protects a target outside that set.
func (c *Context) planDelete(ctx context.Context, obj *graph.Object) ([]*graph.Object, error) {
	type denial struct {
		from   graph.Identity
		rel    string
		target graph.Identity
	}

	plan := []*graph.Object{obj}
	inPlan := map[graph.Identity]struct{}{obj.ID(): {}}
	var denials []denial

	for i := 0; i < len(plan); i++ {
		x := plan[i]
		entity, err := c.model.Entity(x.Entity())
		if err != nil {
			return nil, err
		}

		for _, rel := range entity.Relationships() {
			for _, t := range x.Related(rel.Name) {
				switch rel.DeleteRule {
				case model.DeleteDeny:
					denials = append(denials, denial{from: x.ID(), rel: rel.Name, target: t})
				case model.DeleteCascade:
					if _, ok := inPlan[t]; ok {
						continue
					}
					target, err := c.lookup(ctx, t)
					if store.IsNotFound(err) {
						continue
					}
					if err != nil {
						return nil, err
					}
					inPlan[t] = struct{}{}
					plan = append(plan, target)
				}
			}
		}
	}

	for _, d := range denials {
		if _, ok := inPlan[d.target]; ok {
			continue
		}
		if _, err := c.lookup(ctx, d.target); store.IsNotFound(err) {
			continue
		}
		return nil, fmt.Errorf("%s.%s still references %s: %w", d.from, d.rel, d.target, ErrDeleteDenied)
	}

	return plan, nil
}

// detach removes x from the inverse side of every relationship whose target
// survives the delete.
func (c *Context) detach(ctx context.Context, x *graph.Object, doomed map[graph.Identity]struct{}) error {
	entity, err := c.model.Entity(x.Entity())
	if err != nil {
		return err
	}

	for _, rel := range entity.Relationships() {
		inv := c.model.Inverse(rel)
		if inv == nil {
			continue
		}
		for _, t := range x.Related(rel.Name) {
			if _, ok := doomed[t]; ok {
				continue
			}
			other, err := c.lookup(ctx, t)
			if store.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if other.RemoveRelated(inv.Name, x.ID()) {
				c.mark(other.ID(), inv.Name, true)
			}
		}
	}
	return nil
}

// remove drops id from the cache and records the delete unless it was a
// local insert.
func (c *Context) remove(id graph.Identity) {
	delete(c.objects, id)
	delete(c.dirty, id)
	if _, ok := c.inserted[id]; ok {
		delete(c.inserted, id)
		return
	}
	c.deleted[id] = struct{}{}
}
