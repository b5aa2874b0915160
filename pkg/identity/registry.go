// Package identity hands out object identities. Temporary identities are
// minted locally and are only meaningful inside the context that made them;
// permanent identities come from the durable store and are valid everywhere.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/papercomputeco/graphstack/pkg/graph"
)

var (
	// ErrAlreadyPermanent is returned when assigning a permanent identity to
	// an object that already holds one.
	ErrAlreadyPermanent = errors.New("object already has a permanent identity")

	// ErrNotInserted is returned when assigning a permanent identity to an
	// object that is not part of the pending insert set.
	ErrNotInserted = errors.New("object is not a pending insert")
)

// Minter produces store-unique permanent identities.
type Minter interface {
	MintPermanentIdentity(ctx context.Context, entity string) (graph.Identity, error)
}

// ChangeSet is the view of a pending save the registry needs: membership of
// the insert set and reference rewriting.
type ChangeSet interface {
	// IsInserted reports whether obj is one of the change-set's inserts.
	IsInserted(obj *graph.Object) bool

	// Rekey moves the insert known as from to its new identity and rewrites
	// every reference to from inside the change-set.
	Rekey(from, to graph.Identity)
}

// Registry mints temporary identities and swaps them for permanent ones.
// It is shared by every context of a coordinator.
type Registry struct {
	minter Minter
}

// NewRegistry creates a registry that obtains permanent identities from m.
func NewRegistry(m Minter) *Registry {
	return &Registry{minter: m}
}

// MintTemporary returns a fresh temporary identity for entity.
func (r *Registry) MintTemporary(entity string) graph.Identity {
	return graph.NewIdentity(entity, graph.TemporaryPrefix+uuid.NewString())
}

// AssignPermanent gives obj a permanent identity. obj must hold a temporary
// identity and be one of cs's inserts. Every reference to the old identity
// inside cs is rewritten before AssignPermanent returns.
func (r *Registry) AssignPermanent(ctx context.Context, cs ChangeSet, obj *graph.Object) (graph.Identity, error) {
	if !obj.HasIdentity() {
		return graph.Identity{}, graph.ErrNoIdentity
	}

	tmp := obj.ID()
	if !tmp.Temporary {
		return tmp, fmt.Errorf("%s: %w", tmp, ErrAlreadyPermanent)
	}
	if !cs.IsInserted(obj) {
		return tmp, fmt.Errorf("%s: %w", tmp, ErrNotInserted)
	}

	perm, err := r.minter.MintPermanentIdentity(ctx, tmp.Entity)
	if err != nil {
		return tmp, fmt.Errorf("minting identity for %s: %w", tmp.Entity, err)
	}
	if perm.Temporary || perm.Entity != tmp.Entity {
		return tmp, fmt.Errorf("store minted unusable identity %s for %s", perm, tmp.Entity)
	}

	obj.SetIdentity(perm)
	cs.Rekey(tmp, perm)

	return perm, nil
}
