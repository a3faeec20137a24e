package sqlite

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/asaidimu/go-specs/core/query"
	"github.com/asaidimu/go-specs/core/schema"
)

// SqliteQuery is a schema-aware query generator for SQLite. Nested paths into
// object and record fields are translated to json_extract calls.
type SqliteQuery struct {
	schema *schema.SchemaDefinition
	table  string
	// aliases, when set, replaces the schema as the set of visible columns:
	// the select reads from a projecting subquery.
	aliases map[string]bool
	// tiebreak orders every select over the base table by rowid last.
	tiebreak bool
}

var _ query.QueryGenerator = (*SqliteQuery)(nil)

// NewSqliteQuery creates a generator for sc stored in table.
func NewSqliteQuery(sc *schema.SchemaDefinition, table string) (*SqliteQuery, error) {
	if sc == nil {
		return nil, fmt.Errorf("SchemaDefinition cannot be nil")
	}
	if table == "" {
		return nil, fmt.Errorf("schema %q must map to a table name", sc.Name)
	}
	return &SqliteQuery{schema: sc, table: table}, nil
}

// WithAliases returns a generator that resolves fields against the columns of
// a projecting subquery instead of the schema.
func (s *SqliteQuery) WithAliases(fields []query.ProjectionField) *SqliteQuery {
	clone := *s
	clone.aliases = make(map[string]bool, len(fields))
	for _, f := range fields {
		clone.aliases[f.Name] = true
	}
	return &clone
}

// WithTiebreak returns a generator that orders equal keys by rowid.
func (s *SqliteQuery) WithTiebreak(enabled bool) *SqliteQuery {
	clone := *s
	clone.tiebreak = enabled
	return &clone
}

// Table returns the quoted table name.
func (s *SqliteQuery) Table() string {
	return quoteIdentifier(s.table)
}

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// getFieldSQL translates a logical field path into the correct SQL accessor string.
func (s *SqliteQuery) getFieldSQL(fieldPath string) (string, error) {
	if fieldPath == "" {
		return "", fmt.Errorf("field path cannot be empty")
	}
	if s.aliases != nil {
		if !s.aliases[fieldPath] {
			return "", fmt.Errorf("field '%s' is not part of the projection", fieldPath)
		}
		return quoteIdentifier(fieldPath), nil
	}

	parts := strings.Split(fieldPath, ".")
	rootField, ok := s.schema.Fields[parts[0]]
	if !ok {
		return "", fmt.Errorf("field '%s' not found in schema %s", parts[0], s.schema.Name)
	}
	if len(parts) == 1 {
		return quoteIdentifier(parts[0]), nil
	}

	switch rootField.Type {
	case schema.FieldTypeObject, schema.FieldTypeRecord:
		jsonPath := "$." + strings.Join(parts[1:], ".")
		return fmt.Sprintf("json_extract(%s, '%s')", quoteIdentifier(parts[0]), jsonPath), nil
	default:
		return "", fmt.Errorf("field '%s' of type %s does not support nested querying", parts[0], rootField.Type)
	}
}

// prepareValueForQuery converts a Go value into what SQLite stores for the
// field: booleans become integers and complex values JSON text. Values for
// nested paths and projected columns are compared as they are.
func (s *SqliteQuery) prepareValueForQuery(fieldName string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if b, ok := value.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	if s.aliases != nil || strings.Contains(fieldName, ".") {
		return value, nil
	}

	field, exists := s.schema.Fields[fieldName]
	if !exists {
		return nil, fmt.Errorf("field '%s' not found in schema for value preparation", fieldName)
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		if strVal, ok := value.(string); ok {
			switch strings.ToLower(strVal) {
			case "true":
				return 1, nil
			case "false":
				return 0, nil
			}
		}
		if f, ok := query.ToFloat64(value); ok && (f == 0 || f == 1) {
			return int(f), nil
		}
		return nil, fmt.Errorf("expected boolean for field '%s', got %T", fieldName, value)

	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize field '%s' to JSON: %w", fieldName, err)
		}
		return string(jsonBytes), nil

	case schema.FieldTypeEnum:
		if strVal, ok := value.(string); ok {
			return strVal, nil
		}
		return fmt.Sprintf("%v", value), nil

	default:
		return value, nil
	}
}

// GenerateSelectSQL creates a SELECT over from, which is the table or a
// parenthesised subquery whose params are passed along.
func (s *SqliteQuery) GenerateSelectSQL(from string, params []any, dsl *query.QueryDSL) (string, []any, error) {
	sqlQuery, queryParams, err := s.selectSQL(from, params, dsl)
	if err != nil {
		return "", nil, err
	}
	return sqlQuery + ";", queryParams, nil
}

// selectSQL is GenerateSelectSQL without the terminator, ready for nesting.
func (s *SqliteQuery) selectSQL(from string, params []any, dsl *query.QueryDSL) (string, []any, error) {
	if dsl == nil {
		return "", nil, fmt.Errorf("QueryDSL cannot be nil")
	}
	if from == "" {
		from = s.Table()
	}

	var selectFields, orderByClauses []string
	queryParams := append([]any(nil), params...)

	if dsl.Projection != nil && len(dsl.Projection.Include) > 0 {
		for _, field := range dsl.Projection.Include {
			accessor, err := s.getFieldSQL(field.Name)
			if err != nil {
				return "", nil, fmt.Errorf("projection error: %w", err)
			}
			selectFields = append(selectFields, fmt.Sprintf("%s AS %s", accessor, quoteIdentifier(field.Name)))
		}
	} else {
		selectFields = append(selectFields, "*")
	}

	var whereSQL string
	if dsl.Filters != nil {
		var err error
		whereSQL, err = s.buildWhereClause(dsl.Filters, &queryParams)
		if err != nil {
			return "", nil, fmt.Errorf("error building WHERE clause: %w", err)
		}
	}

	for _, sortCfg := range dsl.Sort {
		accessor, err := s.getFieldSQL(sortCfg.Field)
		if err != nil {
			return "", nil, fmt.Errorf("sort error: %w", err)
		}
		orderByClauses = append(orderByClauses, fmt.Sprintf("%s %s", accessor, strings.ToUpper(string(sortCfg.Direction))))
	}
	if s.tiebreak && from == s.Table() {
		orderByClauses = append(orderByClauses, "rowid ASC")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectFields, ", "), from))
	if whereSQL != "" {
		sb.WriteString(" WHERE " + whereSQL)
	}
	if len(orderByClauses) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(orderByClauses, ", "))
	}
	if p := dsl.Pagination; p != nil {
		limit := -1
		if p.Limit != nil {
			limit = *p.Limit
		}
		if limit > -1 || p.Offset != nil {
			sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
		}
		if p.Offset != nil && *p.Offset > 0 {
			sb.WriteString(fmt.Sprintf(" OFFSET %d", *p.Offset))
		}
	}

	return sb.String(), queryParams, nil
}

// buildWhereClause recursively builds the WHERE clause from a filter.
func (s *SqliteQuery) buildWhereClause(filter *query.QueryFilter, params *[]any) (string, error) {
	if filter.Condition != nil {
		return s.buildCondition(filter.Condition, params)
	}
	if filter.Group != nil {
		if filter.Group.Operator == "" {
			return "", fmt.Errorf("logical operator missing in filter group")
		}
		var clauses []string
		for _, cond := range filter.Group.Conditions {
			clause, err := s.buildWhereClause(&cond, params)
			if err != nil {
				return "", err
			}
			if clause != "" {
				clauses = append(clauses, clause)
			}
		}
		if len(clauses) == 0 {
			return "", nil
		}
		switch filter.Group.Operator {
		case query.LogicalOperatorNot:
			return fmt.Sprintf("NOT (%s)", strings.Join(clauses, " AND ")), nil
		case query.LogicalOperatorNor:
			return fmt.Sprintf("NOT (%s)", strings.Join(clauses, " OR ")), nil
		default:
			op := strings.ToUpper(string(filter.Group.Operator))
			return fmt.Sprintf("(%s)", strings.Join(clauses, " "+op+" ")), nil
		}
	}
	return "", fmt.Errorf("invalid filter structure: neither Condition nor Group is set")
}

// buildCondition translates a single condition. Negative operators also
// match rows where the field is missing, as the in-memory evaluator does.
func (s *SqliteQuery) buildCondition(cond *query.FilterCondition, params *[]any) (string, error) {
	accessor, err := s.getFieldSQL(cond.Field)
	if err != nil {
		return "", err
	}

	switch cond.Operator {
	case query.ComparisonOperatorExists:
		return fmt.Sprintf("%s IS NOT NULL", accessor), nil
	case query.ComparisonOperatorNotExists:
		return fmt.Sprintf("%s IS NULL", accessor), nil
	case query.ComparisonOperatorIn, query.ComparisonOperatorNin:
		return s.buildMembership(accessor, cond, params)
	}

	preparedValue, err := s.prepareValueForQuery(cond.Field, cond.Value)
	if err != nil {
		return "", fmt.Errorf("failed to prepare value for condition field '%s': %w", cond.Field, err)
	}

	switch cond.Operator {
	case query.ComparisonOperatorEq:
		if preparedValue == nil {
			return fmt.Sprintf("%s IS NULL", accessor), nil
		}
		*params = append(*params, preparedValue)
		return fmt.Sprintf("%s = ?", accessor), nil
	case query.ComparisonOperatorNeq:
		if preparedValue == nil {
			return fmt.Sprintf("%s IS NOT NULL", accessor), nil
		}
		*params = append(*params, preparedValue)
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", accessor, accessor), nil
	case query.ComparisonOperatorLt:
		*params = append(*params, preparedValue)
		return fmt.Sprintf("%s < ?", accessor), nil
	case query.ComparisonOperatorLte:
		*params = append(*params, preparedValue)
		return fmt.Sprintf("%s <= ?", accessor), nil
	case query.ComparisonOperatorGt:
		*params = append(*params, preparedValue)
		return fmt.Sprintf("%s > ?", accessor), nil
	case query.ComparisonOperatorGte:
		*params = append(*params, preparedValue)
		return fmt.Sprintf("%s >= ?", accessor), nil
	case query.ComparisonOperatorContains:
		*params = append(*params, "%"+fmt.Sprintf("%v", preparedValue)+"%")
		return fmt.Sprintf("%s LIKE ?", accessor), nil
	case query.ComparisonOperatorNotContains:
		*params = append(*params, "%"+fmt.Sprintf("%v", preparedValue)+"%")
		return fmt.Sprintf("(%s IS NULL OR %s NOT LIKE ?)", accessor, accessor), nil
	case query.ComparisonOperatorStartsWith:
		*params = append(*params, fmt.Sprintf("%v", preparedValue)+"%")
		return fmt.Sprintf("%s LIKE ?", accessor), nil
	case query.ComparisonOperatorEndsWith:
		*params = append(*params, "%"+fmt.Sprintf("%v", preparedValue))
		return fmt.Sprintf("%s LIKE ?", accessor), nil
	default:
		return "", fmt.Errorf("unsupported comparison operator for direct SQL: %s", cond.Operator)
	}
}

func (s *SqliteQuery) buildMembership(accessor string, cond *query.FilterCondition, params *[]any) (string, error) {
	vals := valuesOf(cond.Value)
	if len(vals) == 0 {
		if cond.Operator == query.ComparisonOperatorIn {
			return "1=0", nil
		}
		return "1=1", nil
	}

	for _, v := range vals {
		prepared, err := s.prepareValueForQuery(cond.Field, v)
		if err != nil {
			return "", fmt.Errorf("failed to prepare value for condition field '%s': %w", cond.Field, err)
		}
		*params = append(*params, prepared)
	}
	placeholders := strings.Repeat("?,", len(vals)-1) + "?"
	if cond.Operator == query.ComparisonOperatorNin {
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", accessor, accessor, placeholders), nil
	}
	return fmt.Sprintf("%s IN (%s)", accessor, placeholders), nil
}

// valuesOf spreads a slice value into its members; any other value is a
// single member.
func valuesOf(v any) []any {
	if v == nil {
		return nil
	}
	if vals, ok := v.([]any); ok {
		return vals
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	vals := make([]any, rv.Len())
	for i := range vals {
		vals[i] = rv.Index(i).Interface()
	}
	return vals
}

// GenerateInsertSQL creates a multi-row INSERT. Columns are taken in schema
// order so the statement is deterministic.
func (s *SqliteQuery) GenerateInsertSQL(records []map[string]any) (string, []any, error) {
	if len(records) == 0 {
		return "", nil, fmt.Errorf("no records provided for insert")
	}

	fieldSet := make(map[string]bool)
	for _, record := range records {
		for fieldName := range record {
			if _, exists := s.schema.Fields[fieldName]; !exists {
				return "", nil, fmt.Errorf("field '%s' not found in schema", fieldName)
			}
			fieldSet[fieldName] = true
		}
	}

	fields := columnOrder(s.schema)
	n := 0
	for _, f := range fields {
		if fieldSet[f] {
			fields[n] = f
			n++
		}
	}
	fields = fields[:n]
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("no valid fields found in records")
	}

	quotedFields := make([]string, len(fields))
	for i, field := range fields {
		quotedFields[i] = quoteIdentifier(field)
	}

	var valuesClauses []string
	var queryParams []any
	for _, record := range records {
		rowPlaceholders := make([]string, len(fields))
		for i, fieldName := range fields {
			preparedValue, err := s.prepareValueForQuery(fieldName, record[fieldName])
			if err != nil {
				return "", nil, fmt.Errorf("error preparing value for field '%s': %w", fieldName, err)
			}
			rowPlaceholders[i] = "?"
			queryParams = append(queryParams, preparedValue)
		}
		valuesClauses = append(valuesClauses, "("+strings.Join(rowPlaceholders, ", ")+")")
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s;", s.Table(), strings.Join(quotedFields, ", "), strings.Join(valuesClauses, ", "))
	return sql, queryParams, nil
}
