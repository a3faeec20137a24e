package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/asaidimu/go-specs/core/schema"
	"go.uber.org/zap"
)

// columnOrder returns the schema's field names sorted, the column order used
// by DDL and inserts.
func columnOrder(sc *schema.SchemaDefinition) []string {
	return slices.Sorted(maps.Keys(sc.Fields))
}

// tableName applies the configured prefix to a schema name.
func (p *Provider) tableName(name string) string {
	return p.options.TablePrefix + name
}

// CreateTable creates the table and indexes for sc and registers it, so
// queries against sc.Name can be translated.
func (p *Provider) CreateTable(ctx context.Context, sc *schema.SchemaDefinition) error {
	stmt, err := p.createTableSQL(sc)
	if err != nil {
		return fmt.Errorf("failed to generate SQL for table %s: %w", sc.Name, err)
	}
	p.logger.Debug("Creating table", zap.String("sql", stmt))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
	}

	for _, index := range sc.Indexes {
		sqlIndex, err := p.createIndexSQL(sc.Name, index)
		if err != nil {
			return fmt.Errorf("failed to generate SQL for index %s: %w", index.Name, err)
		}
		if sqlIndex == "" {
			continue
		}
		if _, err := p.db.ExecContext(ctx, sqlIndex); err != nil {
			return fmt.Errorf("failed to create index %s: %w", index.Name, err)
		}
	}

	return p.Register(sc)
}

func (p *Provider) createTableSQL(sc *schema.SchemaDefinition) (string, error) {
	if sc == nil || sc.Name == "" {
		return "", fmt.Errorf("schema must define a table name")
	}
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(quoteIdentifier(p.tableName(sc.Name)) + " (\n")

	var primaryKeys []string
	for _, index := range sc.Indexes {
		if index.Type == schema.IndexTypePrimary && len(index.Fields) > 0 {
			primaryKeys = index.Fields
			break
		}
	}

	var columns []string
	for _, name := range columnOrder(sc) {
		columnDef, err := buildColumnDefinition(name, sc.Fields[name])
		if err != nil {
			return "", fmt.Errorf("error on field '%s': %w", name, err)
		}
		columns = append(columns, "    "+columnDef)
	}
	sb.WriteString(strings.Join(columns, ",\n"))

	if len(primaryKeys) > 0 {
		quotedPKs := make([]string, len(primaryKeys))
		for i, pk := range primaryKeys {
			quotedPKs[i] = quoteIdentifier(pk)
		}
		sb.WriteString(",\n    PRIMARY KEY (" + strings.Join(quotedPKs, ", ") + ")")
	}

	sb.WriteString("\n);")
	return sb.String(), nil
}

func buildColumnDefinition(fieldName string, field *schema.FieldDefinition) (string, error) {
	parts := []string{quoteIdentifier(fieldName), columnType(field.Type)}

	if field.IsRequired() {
		parts = append(parts, "NOT NULL")
	}
	if field.Default != nil {
		defVal, err := formatDefaultValue(field.Default, field.Type)
		if err != nil {
			return "", err
		}
		parts = append(parts, "DEFAULT "+defVal)
	}
	if field.Unique != nil && *field.Unique {
		parts = append(parts, "UNIQUE")
	}
	if field.Type == schema.FieldTypeEnum && len(field.Values) > 0 {
		checkValues := make([]string, 0, len(field.Values))
		for _, v := range field.Values {
			valStr, _ := formatDefaultValue(v, schema.FieldTypeString)
			checkValues = append(checkValues, valStr)
		}
		parts = append(parts, fmt.Sprintf("CHECK(%s IN (%s))", quoteIdentifier(fieldName), strings.Join(checkValues, ", ")))
	}
	return strings.Join(parts, " "), nil
}

// columnType maps a schema.FieldType to its SQLite storage class.
func columnType(fieldType schema.FieldType) string {
	switch fieldType {
	case schema.FieldTypeString, schema.FieldTypeEnum:
		return "TEXT"
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		return "REAL"
	case schema.FieldTypeInteger, schema.FieldTypeBoolean:
		return "INTEGER"
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		return "TEXT"
	default:
		return "BLOB"
	}
}

func formatDefaultValue(value any, fieldType schema.FieldType) (string, error) {
	if value == nil {
		return "NULL", nil
	}
	switch fieldType {
	case schema.FieldTypeString, schema.FieldTypeEnum:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(fmt.Sprintf("%v", value), "'", "''")), nil
	case schema.FieldTypeNumber, schema.FieldTypeInteger, schema.FieldTypeDecimal:
		return fmt.Sprintf("%v", value), nil
	case schema.FieldTypeBoolean:
		if b, ok := value.(bool); ok && b {
			return "1", nil
		}
		return "0", nil
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to marshal default value to JSON: %w", err)
		}
		return fmt.Sprintf("'%s'", strings.ReplaceAll(string(jsonBytes), "'", "''")), nil
	default:
		return "", fmt.Errorf("unsupported type for default value: %s", fieldType)
	}
}

func (p *Provider) createIndexSQL(collection string, index schema.IndexDefinition) (string, error) {
	if index.Type == schema.IndexTypePrimary {
		return "", nil
	}
	if len(index.Fields) == 0 {
		return "", fmt.Errorf("index has no fields")
	}

	table := p.tableName(collection)
	var sb strings.Builder
	sb.WriteString("CREATE ")
	if (index.Unique != nil && *index.Unique) || index.Type == schema.IndexTypeUnique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX IF NOT EXISTS ")
	indexName := index.Name
	if indexName == "" {
		indexName = fmt.Sprintf("idx_%s_%s", table, strings.Join(index.Fields, "_"))
	}
	sb.WriteString(quoteIdentifier(indexName))
	sb.WriteString(fmt.Sprintf(" ON %s (", quoteIdentifier(table)))

	fieldParts := make([]string, 0, len(index.Fields))
	for _, field := range index.Fields {
		if root, rest, nested := strings.Cut(field, "."); nested {
			fieldParts = append(fieldParts, fmt.Sprintf("json_extract(%s, '$.%s')", quoteIdentifier(root), rest))
			continue
		}
		fieldParts = append(fieldParts, quoteIdentifier(field))
	}
	sb.WriteString(strings.Join(fieldParts, ", ") + ");")
	return sb.String(), nil
}

// DropTable drops the table behind a schema name.
func (p *Provider) DropTable(ctx context.Context, name string) error {
	fullTableName := quoteIdentifier(p.tableName(name))
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s;", fullTableName)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", fullTableName, err)
	}
	p.mu.Lock()
	delete(p.schemas, name)
	p.mu.Unlock()
	return nil
}

// TableExists checks if the table behind a schema name exists.
func (p *Provider) TableExists(ctx context.Context, name string) (bool, error) {
	var found string
	err := p.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name = ?;", p.tableName(name)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
