// Package sqlite executes queries against SQLite through database/sql.
// Include markers are rewritten to Preload calls, and each preload loads the
// related rows with one follow-up query per level.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-specs/core/expr"
	"github.com/asaidimu/go-specs/core/queryable"
	"github.com/asaidimu/go-specs/core/schema"
	"github.com/asaidimu/go-specs/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotTranslatable is returned for operations SQL cannot express, such
	// as closures, grouping and flattening.
	ErrNotTranslatable = errors.New("operation cannot be translated to SQL")
	// ErrUnknownTable is returned when a query names a table that was never
	// registered.
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownRelation is returned when an include names a relation its
	// schema does not define.
	ErrUnknownRelation = errors.New("unknown relation")
)

// Options configures a Provider.
type Options struct {
	// TablePrefix is prepended to every schema name to form its table name.
	TablePrefix string
	// StableOrdering appends rowid to every ORDER BY so ties keep insertion
	// order, matching the in-memory provider.
	StableOrdering bool
	// MaxIncludeDepth bounds ThenInclude chains.
	MaxIncludeDepth int
	// EmitEvents publishes execution events to subscribers.
	EmitEvents bool
}

// DefaultOptions returns the options NewProvider uses when given nil.
func DefaultOptions() *Options {
	return &Options{
		StableOrdering:  true,
		MaxIncludeDepth: 8,
		EmitEvents:      true,
	}
}

// Provider translates expression trees into SQL and runs them.
type Provider struct {
	db      *sql.DB
	logger  *zap.Logger
	options *Options

	mu      sync.RWMutex
	schemas map[string]*schema.SchemaDefinition

	bus           *events.TypedEventBus[Event]
	subMu         sync.Mutex
	subscriptions map[string]func()
}

var _ queryable.Provider = (*Provider)(nil)

// NewProvider creates a Provider over db. A nil logger disables logging and
// nil options select DefaultOptions.
func NewProvider(db *sql.DB, logger *zap.Logger, options *Options) (*Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultOptions()
	}
	bus, err := events.NewTypedEventBus[Event](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}
	return &Provider{
		db:            db,
		logger:        logger,
		options:       options,
		schemas:       make(map[string]*schema.SchemaDefinition),
		bus:           bus,
		subscriptions: make(map[string]func()),
	}, nil
}

// Register makes sc queryable by name without creating its table.
func (p *Provider) Register(sc *schema.SchemaDefinition) error {
	if sc == nil || sc.Name == "" {
		return fmt.Errorf("schema must define a table name")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schemas[sc.Name] = sc
	return nil
}

func (p *Provider) schemaFor(name string) (*schema.SchemaDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sc, ok := p.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return sc, nil
}

func (p *Provider) generator(sc *schema.SchemaDefinition) (*SqliteQuery, error) {
	gen, err := NewSqliteQuery(sc, p.tableName(sc.Name))
	if err != nil {
		return nil, err
	}
	return gen.WithTiebreak(p.options.StableOrdering), nil
}

// Execute translates e and runs it. Include markers must already have been
// rewritten to Preload calls.
func (p *Provider) Execute(ctx context.Context, e expr.Expr) ([]any, error) {
	if err := queryable.CheckNoMarkers(e); err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	started := time.Now()
	expression := expr.Format(e)
	p.emit(newEvent(QueryExecuteStart, executionID, expression, started))

	docs, err := p.execute(ctx, e)
	if err != nil {
		p.logger.Error("Query execution failed", zap.String("executionId", executionID), zap.Error(err))
		failed := newEvent(QueryExecuteFailed, executionID, expression, started)
		msg := err.Error()
		failed.Error = &msg
		p.emit(failed)
		return nil, err
	}

	succeeded := newEvent(QueryExecuteSuccess, executionID, expression, started)
	count := len(docs)
	succeeded.Rows = &count
	p.emit(succeeded)

	out := make([]any, len(docs))
	for i, doc := range docs {
		out[i] = doc
	}
	return out, nil
}

func (p *Provider) execute(ctx context.Context, e expr.Expr) ([]schema.Document, error) {
	plan, err := p.translate(e)
	if err != nil {
		return nil, err
	}
	docs, err := p.selectDocuments(ctx, plan.schema, plan.aliases, plan.sql, plan.params)
	if err != nil {
		return nil, err
	}
	for _, include := range plan.includes {
		if err := p.preload(ctx, docs, include); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (p *Provider) selectDocuments(ctx context.Context, sc *schema.SchemaDefinition, aliases bool, sqlQuery string, params []any) ([]schema.Document, error) {
	p.logger.Debug("Executing SQL SELECT", zap.String("sql", sqlQuery), zap.Any("params", params))

	rows, err := p.db.QueryContext(ctx, sqlQuery, params...)
	if err != nil {
		p.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", sqlQuery))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rows.Close()
	return readRows(p.logger, sc, aliases, rows)
}

// readRows scans every row into a Document, converting storage values back
// to the schema's types. Projected columns keep their dotted alias as key.
func readRows(logger *zap.Logger, sc *schema.SchemaDefinition, aliases bool, rows *sql.Rows) ([]schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := []schema.Document{}
	for rows.Next() {
		row := make(schema.Document, len(columns))
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			if val == nil {
				row[col] = nil
				continue
			}

			fieldDef, ok := sc.Fields[col]
			if !ok {
				if !aliases && !strings.Contains(col, ".") {
					logger.Warn("Column not found in schema, using raw value", zap.String("column", col))
				}
				row[col] = val
				continue
			}
			row[col] = convertColumn(fieldDef, val)
		}
		results = append(results, row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}

func convertColumn(fieldDef *schema.FieldDefinition, val any) any {
	switch fieldDef.Type {
	case schema.FieldTypeBoolean:
		if intVal, isInt := val.(int64); isInt {
			return intVal != 0
		}
	case schema.FieldTypeInteger:
		if floatVal, isFloat := val.(float64); isFloat {
			return int64(floatVal)
		}
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		if intVal, isInt := val.(int64); isInt {
			return float64(intVal)
		}
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		if s, ok := val.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	}
	return val
}

// Insert validates records against the named schema and stores them.
// Relation fields are not columns and are dropped before the insert.
func (p *Provider) Insert(ctx context.Context, name string, records ...any) error {
	if len(records) == 0 {
		return nil
	}
	sc, err := p.schemaFor(name)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, 0, len(records))
	for i, record := range records {
		doc, err := utils.ToDocument(record)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		for _, rel := range sc.Relations {
			delete(doc, rel.Name)
		}
		if ok, issues := schema.NewValidator(sc).Validate(doc, false); !ok {
			return fmt.Errorf("record %d does not match schema %s: %s", i, sc.Name, issues[0].Message)
		}
		rows = append(rows, doc)
	}

	gen, err := p.generator(sc)
	if err != nil {
		return err
	}
	stmt, params, err := gen.GenerateInsertSQL(rows)
	if err != nil {
		return fmt.Errorf("failed to generate INSERT SQL: %w", err)
	}
	p.logger.Debug("Executing SQL INSERT", zap.String("sql", stmt), zap.Int("records", len(rows)))
	if _, err := p.db.ExecContext(ctx, stmt, params...); err != nil {
		return fmt.Errorf("failed to execute INSERT query: %w", err)
	}
	return nil
}
