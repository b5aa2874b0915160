// Package migrate brings a durable store's persisted model up to the model
// the application was built with.
//
// Only additive changes migrate automatically: new entities, new
// relationships and new attributes, where new required attributes carry a
// default that existing objects are backfilled with. Anything else needs a
// hand-written migration and is reported as an *IncompatibleError.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/graphstack/pkg/logger"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
)

// IncompatibleError reports a persisted model that cannot be upgraded to the
// target automatically.
type IncompatibleError struct {
	Model  string
	From   int
	To     int
	Reason string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("model %s version %d cannot be migrated to version %d: %s", e.Model, e.From, e.To, e.Reason)
}

// Run compares the store's model with target and migrates when needed. It
// returns the model the store holds afterwards, which is target on success.
func Run(ctx context.Context, st store.Store, target *model.Model, log *slog.Logger) (*model.Model, error) {
	if target == nil {
		return nil, errors.New("migration requires a target model")
	}
	if log == nil {
		log = logger.Nop()
	}

	current, err := st.LoadModel(ctx)
	if errors.Is(err, store.ErrNoModel) {
		if err := st.SaveModel(ctx, target); err != nil {
			return nil, fmt.Errorf("writing initial model: %w", err)
		}
		log.Info("initialized store model", "model", target.Name(), "version", target.Version())
		return target, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading store model: %w", err)
	}

	incompatible := func(reason string) error {
		return &IncompatibleError{Model: current.Name(), From: current.Version(), To: target.Version(), Reason: reason}
	}

	if current.Name() != target.Name() {
		return nil, incompatible(fmt.Sprintf("store holds model %q, expected %q", current.Name(), target.Name()))
	}
	if current.Version() > target.Version() {
		return nil, incompatible("store model is newer")
	}

	plan, err := Diff(current, target)
	if err != nil {
		return nil, incompatible(err.Error())
	}

	if current.Version() == target.Version() {
		if !plan.Empty() {
			return nil, incompatible("definition changed without a version bump")
		}
		log.Debug("store model is current", "model", target.Name(), "version", target.Version())
		return target, nil
	}

	if err := backfill(ctx, st, target, plan); err != nil {
		return nil, err
	}
	if err := st.SaveModel(ctx, target); err != nil {
		return nil, fmt.Errorf("writing migrated model: %w", err)
	}

	log.Info("migrated store model",
		"model", target.Name(),
		"from", current.Version(),
		"to", target.Version(),
		"changes", len(plan.Changes),
	)
	return target, nil
}

// backfill rewrites every object of an entity that gained defaulted
// attributes, in one batch.
func backfill(ctx context.Context, st store.Store, target *model.Model, plan *Plan) error {
	var batch store.Batch
	for _, entity := range plan.BackfillEntities() {
		objs, err := st.Fetch(ctx, entity)
		if err != nil {
			return fmt.Errorf("fetching %s for backfill: %w", entity, err)
		}
		for _, obj := range objs {
			if err := target.Normalize(obj); err != nil {
				return fmt.Errorf("backfilling %s: %w", obj.ID(), err)
			}
			batch.Updates = append(batch.Updates, obj)
		}
	}
	if batch.Empty() {
		return nil
	}
	if err := st.WriteBatch(ctx, batch); err != nil {
		return fmt.Errorf("backfilling defaults: %w", err)
	}
	return nil
}
