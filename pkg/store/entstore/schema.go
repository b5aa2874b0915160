package entstore

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	objectsTable   = "graph_objects"
	sequencesTable = "graph_sequences"
	modelsTable    = "graph_models"

	colEntity        = "entity"
	colObjectKey     = "object_key"
	colAttributes    = "attributes"
	colRelationships = "relationships"
	colRevision      = "revision"
	colLast          = "last_key"
	colName          = "name"
	colVersion       = "version"
	colDefinition    = "definition"
)

var (
	// ObjectsColumns holds the columns for the "graph_objects" table.
	// attributes and relationships are JSON documents; revision counts the
	// writes an object has seen.
	ObjectsColumns = []*schema.Column{
		{Name: colEntity, Type: field.TypeString, Size: 191},
		{Name: colObjectKey, Type: field.TypeString, Size: 191},
		{Name: colAttributes, Type: field.TypeJSON},
		{Name: colRelationships, Type: field.TypeJSON},
		{Name: colRevision, Type: field.TypeInt64, Default: 1},
	}

	// ObjectsTable holds the schema information for the "graph_objects" table.
	ObjectsTable = &schema.Table{
		Name:       objectsTable,
		Columns:    ObjectsColumns,
		PrimaryKey: []*schema.Column{ObjectsColumns[0], ObjectsColumns[1]},
	}

	// SequencesColumns holds the columns for the "graph_sequences" table,
	// the last permanent key minted per entity.
	SequencesColumns = []*schema.Column{
		{Name: colEntity, Type: field.TypeString, Size: 191},
		{Name: colLast, Type: field.TypeInt64},
	}

	// SequencesTable holds the schema information for the "graph_sequences" table.
	SequencesTable = &schema.Table{
		Name:       sequencesTable,
		Columns:    SequencesColumns,
		PrimaryKey: []*schema.Column{SequencesColumns[0]},
	}

	// ModelsColumns holds the columns for the "graph_models" table.
	ModelsColumns = []*schema.Column{
		{Name: colName, Type: field.TypeString, Size: 191},
		{Name: colVersion, Type: field.TypeInt},
		{Name: colDefinition, Type: field.TypeJSON},
	}

	// ModelsTable holds the schema information for the "graph_models" table.
	ModelsTable = &schema.Table{
		Name:       modelsTable,
		Columns:    ModelsColumns,
		PrimaryKey: []*schema.Column{ModelsColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ObjectsTable,
		SequencesTable,
		ModelsTable,
	}
)

// Migrate runs ent's auto-migration for the store tables. It only appends:
// new tables, columns and indexes.
func Migrate(ctx context.Context, drv dialect.Driver) error {
	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrate.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
