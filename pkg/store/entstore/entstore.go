// Package entstore provides a dialect-agnostic SQL durable store built on
// ent's SQL driver, statement builders and schema migrator. The sqlite and
// postgres packages embed it.
package entstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"

	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
)

// Store implements store.Store over an ent SQL driver.
type Store struct {
	Driver *entsql.Driver
}

// Open runs the schema migration on drv and returns the store.
func Open(ctx context.Context, drv *entsql.Driver) (*Store, error) {
	if err := Migrate(ctx, drv); err != nil {
		return nil, err
	}
	return &Store{Driver: drv}, nil
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.Driver.Dialect())
}

// LoadModel reads the persisted model definition.
func (s *Store) LoadModel(ctx context.Context) (*model.Model, error) {
	t := entsql.Table(modelsTable)
	query, args := s.builder().
		Select(t.C(colDefinition)).
		From(t).
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := s.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query model: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read model: %w", err)
		}
		return nil, store.ErrNoModel
	}

	var definition string
	if err := rows.Scan(&definition); err != nil {
		return nil, fmt.Errorf("failed to scan model: %w", err)
	}

	return model.FromJSON([]byte(definition))
}

// SaveModel replaces the persisted model definition in one transaction.
func (s *Store) SaveModel(ctx context.Context, m *model.Model) error {
	if m == nil {
		return errors.New("cannot save nil model")
	}

	definition, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	tx, err := s.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	del, delArgs := s.builder().Delete(modelsTable).Query()
	if err := tx.Exec(ctx, del, delArgs, nil); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clearing model: %w", err)
	}

	ins, insArgs := s.builder().
		Insert(modelsTable).
		Columns(colName, colVersion, colDefinition).
		Values(m.Name(), m.Version(), string(definition)).
		Query()
	if err := tx.Exec(ctx, ins, insArgs, nil); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("writing model: %w", err)
	}

	return tx.Commit()
}

// WriteBatch applies the batch inside a single transaction. Inserts and
// updates are upserts keyed by (entity, object_key).
func (s *Store) WriteBatch(ctx context.Context, batch store.Batch) error {
	if batch.Empty() {
		return nil
	}

	tx, err := s.Driver.Tx(ctx)
	if err != nil {
		return &store.WriteError{Err: fmt.Errorf("starting transaction: %w", err)}
	}

	if err := s.applyBatch(ctx, tx, batch); err != nil {
		_ = tx.Rollback()
		return &store.WriteError{Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &store.WriteError{Err: fmt.Errorf("committing batch: %w", err)}
	}
	return nil
}

func (s *Store) applyBatch(ctx context.Context, tx dialect.Tx, batch store.Batch) error {
	for _, objs := range [][]*graph.Object{batch.Inserts, batch.Updates} {
		for _, obj := range objs {
			if err := s.upsert(ctx, tx, obj); err != nil {
				return err
			}
		}
	}

	for _, id := range batch.Deletes {
		if err := checkIdentity(id); err != nil {
			return err
		}
		query, args := s.builder().
			Delete(objectsTable).
			Where(entsql.And(
				entsql.EQ(colEntity, id.Entity),
				entsql.EQ(colObjectKey, id.Key),
			)).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
	}

	return nil
}

func (s *Store) upsert(ctx context.Context, tx dialect.Tx, obj *graph.Object) error {
	if obj == nil {
		return errors.New("cannot store nil object")
	}
	id := obj.ID()
	if err := checkIdentity(id); err != nil {
		return err
	}

	attrs, err := json.Marshal(obj.Attributes())
	if err != nil {
		return fmt.Errorf("failed to marshal attributes of %s: %w", id, err)
	}
	rels, err := json.Marshal(obj.Relationships())
	if err != nil {
		return fmt.Errorf("failed to marshal relationships of %s: %w", id, err)
	}

	query, args := s.builder().
		Insert(objectsTable).
		Columns(colEntity, colObjectKey, colAttributes, colRelationships, colRevision).
		Values(id.Entity, id.Key, string(attrs), string(rels), 1).
		OnConflict(
			entsql.ConflictColumns(colEntity, colObjectKey),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded(colAttributes)
				u.SetExcluded(colRelationships)
				u.Add(colRevision, 1)
			}),
		).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("writing %s: %w", id, err)
	}
	return nil
}

func checkIdentity(id graph.Identity) error {
	if id.Key == "" {
		return graph.ErrNoIdentity
	}
	if id.Temporary {
		return fmt.Errorf("cannot store temporary identity %s", id)
	}
	return nil
}

// Read retrieves an object by identity.
func (s *Store) Read(ctx context.Context, id graph.Identity) (*graph.Object, error) {
	t := entsql.Table(objectsTable)
	query, args := s.builder().
		Select(t.C(colEntity), t.C(colObjectKey), t.C(colAttributes), t.C(colRelationships)).
		From(t).
		Where(entsql.And(
			entsql.EQ(t.C(colEntity), id.Entity),
			entsql.EQ(t.C(colObjectKey), id.Key),
		)).
		Query()

	objs, err := s.queryObjects(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, store.NotFoundError{Identity: id}
	}
	return objs[0], nil
}

// Fetch returns every stored object of an entity, ordered by key.
func (s *Store) Fetch(ctx context.Context, entity string) ([]*graph.Object, error) {
	t := entsql.Table(objectsTable)
	query, args := s.builder().
		Select(t.C(colEntity), t.C(colObjectKey), t.C(colAttributes), t.C(colRelationships)).
		From(t).
		Where(entsql.EQ(t.C(colEntity), entity)).
		Query()

	objs, err := s.queryObjects(ctx, query, args)
	if err != nil {
		return nil, err
	}
	store.SortByKey(objs)
	return objs, nil
}

func (s *Store) queryObjects(ctx context.Context, query string, args []any) ([]*graph.Object, error) {
	var rows entsql.Rows
	if err := s.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	var objs []*graph.Object
	for rows.Next() {
		var entity, key, attrs, rels string
		if err := rows.Scan(&entity, &key, &attrs, &rels); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		obj, err := decodeObject(graph.NewIdentity(entity, key), attrs, rels)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read objects: %w", err)
	}
	return objs, nil
}

// decodeObject rebuilds an object from its JSON columns. Values come back in
// their JSON shapes; the model normalizes them when the root context loads
// the object.
func decodeObject(id graph.Identity, attrsJSON, relsJSON string) (*graph.Object, error) {
	obj := graph.NewWithIdentity(id)

	var attrs map[string]any
	if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes of %s: %w", id, err)
	}
	for name, value := range attrs {
		obj.Set(name, value)
	}

	var rels map[string][]graph.Identity
	if err := json.Unmarshal([]byte(relsJSON), &rels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relationships of %s: %w", id, err)
	}
	for name, ids := range rels {
		obj.SetRelated(name, ids)
	}

	return obj, nil
}

// MintPermanentIdentity bumps the entity's sequence row and returns the new
// value as the key.
func (s *Store) MintPermanentIdentity(ctx context.Context, entity string) (graph.Identity, error) {
	if entity == "" {
		return graph.Identity{}, errors.New("cannot mint identity for empty entity")
	}

	tx, err := s.Driver.Tx(ctx)
	if err != nil {
		return graph.Identity{}, fmt.Errorf("starting transaction: %w", err)
	}

	next, err := s.bumpSequence(ctx, tx, entity)
	if err != nil {
		_ = tx.Rollback()
		return graph.Identity{}, err
	}

	if err := tx.Commit(); err != nil {
		return graph.Identity{}, fmt.Errorf("committing sequence: %w", err)
	}
	return graph.NewIdentity(entity, strconv.FormatInt(next, 10)), nil
}

func (s *Store) bumpSequence(ctx context.Context, tx dialect.Tx, entity string) (int64, error) {
	update, updateArgs := s.builder().
		Update(sequencesTable).
		Add(colLast, 1).
		Where(entsql.EQ(colEntity, entity)).
		Query()

	var res sql.Result
	if err := tx.Exec(ctx, update, updateArgs, &res); err != nil {
		return 0, fmt.Errorf("bumping sequence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bumping sequence: %w", err)
	}

	if affected == 0 {
		insert, insertArgs := s.builder().
			Insert(sequencesTable).
			Columns(colEntity, colLast).
			Values(entity, 1).
			Query()
		if err := tx.Exec(ctx, insert, insertArgs, nil); err != nil {
			return 0, fmt.Errorf("creating sequence: %w", err)
		}
		return 1, nil
	}

	t := entsql.Table(sequencesTable)
	query, args := s.builder().
		Select(t.C(colLast)).
		From(t).
		Where(entsql.EQ(t.C(colEntity), entity)).
		Query()

	var rows entsql.Rows
	if err := tx.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("reading sequence: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, fmt.Errorf("sequence for %s vanished", entity)
	}
	var last int64
	if err := rows.Scan(&last); err != nil {
		return 0, fmt.Errorf("scanning sequence: %w", err)
	}
	return last, nil
}

// Truncate removes every row from the given tables.
func (s *Store) Truncate(ctx context.Context, tables ...*schema.Table) error {
	for _, t := range tables {
		query, args := s.builder().Delete(t.Name).Query()
		if err := s.Driver.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("truncating %s: %w", t.Name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.Driver.Close()
}
