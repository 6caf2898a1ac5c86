package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

const (
	// DefaultRowLimit caps a table resource read.
	DefaultRowLimit = 100

	MimeTypeJSON = "application/json"

	schemaSuffix = "/schema"
)

// TableResource is a table exposed as an addressable resource.
type TableResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// Catalog maps tables to resource URIs of the form <scheme>:///<table> and back.
type Catalog struct {
	dialect   Dialect
	manager   *Manager
	marshaler Marshaler
	logger    *slog.Logger

	rowLimit int
	// validateNames checks identities against the live catalog and quotes
	// them. When false, table names are interpolated as given.
	validateNames bool
}

func (c *Catalog) prefix() string {
	return c.dialect.URIScheme() + ":///"
}

// TableURI returns the resource URI of table.
func (c *Catalog) TableURI(table string) string {
	return c.prefix() + table
}

// SchemaURI returns the URI that describes table's columns.
func (c *Catalog) SchemaURI(table string) string {
	return c.TableURI(table) + schemaSuffix
}

// ParseURI extracts the table name from a resource URI. describe is true
// for <scheme>:///<table>/schema.
func (c *Catalog) ParseURI(uri string) (table string, describe bool, err error) {
	table, ok := strings.CutPrefix(uri, c.prefix())
	if !ok {
		return "", false, InvalidParams("Invalid table URI: %s (expected %s<table>)", uri, c.prefix())
	}
	if t, ok := strings.CutSuffix(table, schemaSuffix); ok {
		table, describe = t, true
	}
	if table == "" {
		return "", false, InvalidParams("Invalid table URI: %s (empty table name)", uri)
	}
	return table, describe, nil
}

// List enumerates the tables of the default schema, each followed by its
// schema resource. Nothing is cached.
func (c *Catalog) List(ctx context.Context) ([]TableResource, error) {
	var names []string
	err := c.manager.Do(ctx, func(s *Session) error {
		var err error
		names, err = c.tableNames(ctx, s)
		return err
	})
	if err != nil {
		return nil, err
	}

	resources := make([]TableResource, 0, 2*len(names))
	for _, name := range names {
		resources = append(resources,
			TableResource{
				URI:         c.TableURI(name),
				Name:        name,
				Description: describeTable(c.dialect.Product(), name),
				MimeType:    MimeTypeJSON,
			},
			TableResource{
				URI:         c.SchemaURI(name),
				Name:        name + schemaSuffix,
				Description: fmt.Sprintf("Schema for %s table: %s", c.dialect.Product(), name),
				MimeType:    MimeTypeJSON,
			},
		)
	}
	return resources, nil
}

func (c *Catalog) tableNames(ctx context.Context, s *Session) ([]string, error) {
	var raw []sql.NullString
	if err := s.Select(ctx, &raw, c.dialect.ListTablesQuery()); err != nil {
		return nil, InternalError("Failed to list tables", err)
	}
	names := make([]string, 0, len(raw))
	for _, n := range raw {
		if n.Valid {
			names = append(names, n.String)
		}
	}
	return names, nil
}

// Read resolves uri to its table's rows (at most the row limit) or, for a
// schema URI, to the table's column metadata.
func (c *Catalog) Read(ctx context.Context, uri string) ([]map[string]any, error) {
	table, describe, err := c.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if describe {
		return c.Describe(ctx, table)
	}

	var rows []Row
	err = c.manager.Do(ctx, func(s *Session) error {
		ident := table
		if c.validateNames {
			names, err := c.tableNames(ctx, s)
			if err != nil {
				return err
			}
			if !slices.Contains(names, table) {
				return InvalidParams("Unknown table: %s", table)
			}
			ident = c.dialect.QuoteIdentifier(table)
		}

		query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", ident, c.rowLimit)
		var err error
		if rows, err = s.Query(ctx, query); err != nil {
			return InternalError("Failed to read table", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.marshaler.RowsToArray(rows), nil
}

// Describe returns column metadata for table using parameterized catalog queries.
func (c *Catalog) Describe(ctx context.Context, table string) ([]map[string]any, error) {
	columns := []map[string]any{}
	err := c.manager.Do(ctx, func(s *Session) error {
		query, args := c.dialect.ReadSchemaQuery(table)
		rows, err := s.Queryx(ctx, query, args...)
		if err != nil {
			return InternalError("Failed to get schema", err)
		}
		defer rows.Close()

		for rows.Next() {
			col, err := c.dialect.ScanSchemaRow(rows)
			if err != nil {
				c.logger.Warn("skipping column", "table", table, "error", err)
				continue
			}
			columns = append(columns, col)
		}
		if err := rows.Err(); err != nil {
			return InternalError("Error reading schema", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return columns, nil
}
