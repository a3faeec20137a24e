package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/asaidimu/go-specs/core/query"
	"github.com/asaidimu/go-specs/core/queryable"
	"github.com/asaidimu/go-specs/core/schema"
	"github.com/asaidimu/go-specs/core/spec"
	"github.com/asaidimu/go-specs/memory"
	"github.com/asaidimu/go-specs/sqlite"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const shopSchemasJSON = `[
	{
		"name": "customers",
		"version": "1.0.0",
		"fields": {
			"id": {"type": "integer", "required": true},
			"name": {"type": "string", "required": true},
			"tier": {"type": "enum", "values": ["standard", "gold"], "default": "standard"}
		},
		"indexes": [{"name": "pk_customers", "fields": ["id"], "type": "primary"}]
	},
	{
		"name": "orders",
		"version": "1.0.0",
		"fields": {
			"id": {"type": "integer", "required": true},
			"customer_id": {"type": "integer", "required": true},
			"total": {"type": "number"},
			"status": {"type": "string"},
			"shipping": {"type": "object"}
		},
		"indexes": [
			{"name": "pk_orders", "fields": ["id"], "type": "primary"},
			{"name": "idx_orders_status", "fields": ["status"], "type": "normal"}
		],
		"relations": [
			{"name": "customer", "target": "customers", "localField": "customer_id", "foreignField": "id"},
			{"name": "lines", "target": "lines", "localField": "id", "foreignField": "order_id", "many": true}
		]
	},
	{
		"name": "lines",
		"version": "1.0.0",
		"fields": {
			"id": {"type": "integer", "required": true},
			"order_id": {"type": "integer", "required": true},
			"sku": {"type": "string", "required": true},
			"quantity": {"type": "integer"}
		},
		"indexes": [{"fields": ["order_id"], "type": "normal"}]
	}
]`

type Customer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Tier string `json:"tier"`
}

type Line struct {
	ID       int    `json:"id"`
	OrderID  int    `json:"order_id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type Shipping struct {
	City    string `json:"city"`
	Express bool   `json:"express"`
}

type Order struct {
	ID         int       `json:"id"`
	CustomerID int       `json:"customer_id"`
	Total      float64   `json:"total"`
	Status     string    `json:"status"`
	Shipping   *Shipping `json:"shipping,omitempty"`
	Customer   *Customer `json:"customer,omitempty"`
	Lines      []Line    `json:"lines,omitempty"`
}

type OrderTotal struct {
	ID    int     `json:"id"`
	Total float64 `json:"total"`
}

// catalogue returns the orders with their customers and lines attached, the
// shape the in-memory backend queries.
func catalogue() []Order {
	ada := &Customer{ID: 1, Name: "Ada", Tier: "gold"}
	grace := &Customer{ID: 2, Name: "Grace", Tier: "standard"}
	linus := &Customer{ID: 3, Name: "Linus", Tier: "standard"}
	return []Order{
		{ID: 100, CustomerID: 1, Total: 240.5, Status: "shipped", Shipping: &Shipping{City: "Nairobi", Express: true}, Customer: ada, Lines: []Line{
			{ID: 1, OrderID: 100, SKU: "kb-01", Quantity: 9},
			{ID: 2, OrderID: 100, SKU: "ms-02", Quantity: 2},
			{ID: 3, OrderID: 100, SKU: "hd-03", Quantity: 7},
		}},
		{ID: 101, CustomerID: 2, Total: 35, Status: "pending", Customer: grace},
		{ID: 102, CustomerID: 1, Total: 99.99, Status: "shipped", Shipping: &Shipping{City: "Mombasa"}, Customer: ada, Lines: []Line{
			{ID: 4, OrderID: 102, SKU: "cb-04", Quantity: 1},
		}},
		{ID: 103, CustomerID: 3, Total: 512, Status: "cancelled", Shipping: &Shipping{City: "Nairobi"}, Customer: linus},
		{ID: 104, CustomerID: 2, Total: 35, Status: "shipped", Customer: grace, Lines: []Line{
			{ID: 5, OrderID: 104, SKU: "kb-01", Quantity: 3},
		}},
	}
}

// withRelations is the base of every named specification: it loads the
// customer and the lines of each order.
func withRelations() spec.Query[Order, Order] {
	return spec.IncludeMany(
		spec.Include(spec.Base[Order](), queryable.Reference[Order, Customer]("customer")),
		queryable.Collection[Order, Line]("lines"),
	)
}

// specifications are the queries the CLI knows by name.
func specifications() map[string]spec.Specification[Order, Order] {
	base := withRelations()
	shipped := spec.Where(base, queryable.Filter[Order](query.Field("status").Eq("shipped")))
	return map[string]spec.Specification[Order, Order]{
		"all":     spec.Of(base),
		"shipped": spec.Of(shipped),
		"top": spec.Of(spec.Take(
			spec.ThenBy(spec.OrderByDescending(base, queryable.Field[Order]("total")), queryable.Field[Order]("id")),
			3,
		)),
		"nairobi": spec.Of(spec.Where(base, queryable.Filter[Order](query.And(
			query.Field("shipping.city").Eq("Nairobi"),
			query.Field("status").Neq("cancelled"),
		)))),
		"page-2": spec.Of(spec.Take(spec.Skip(spec.OrderBy(base, queryable.Field[Order]("id")), 2), 2)),
	}
}

func specNames() []string {
	names := make([]string, 0)
	for name := range specifications() {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// openShop creates and seeds the shop tables in the database at dsn.
func openShop(ctx context.Context, dsn string, logger *zap.Logger) (*sqlite.Provider, func() error, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	p, err := sqlite.NewProvider(db, logger, nil)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := seed(ctx, p); err != nil {
		db.Close()
		return nil, nil, err
	}
	p.Subscribe(sqlite.QueryExecuteSuccess, func(_ context.Context, e sqlite.Event) error {
		logger.Debug("Query executed", zap.String("executionId", e.ExecutionID), zap.Intp("rows", e.Rows), zap.Int64p("durationMs", e.Duration))
		return nil
	})
	return p, db.Close, nil
}

func parseSchemas() ([]*schema.SchemaDefinition, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(shopSchemasJSON), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode shop schemas: %w", err)
	}
	schemas := make([]*schema.SchemaDefinition, 0, len(raw))
	for _, doc := range raw {
		sc, err := schema.Parse(doc)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, sc)
	}
	return schemas, nil
}

func seed(ctx context.Context, p *sqlite.Provider) error {
	schemas, err := parseSchemas()
	if err != nil {
		return err
	}
	for _, sc := range schemas {
		if err := p.DropTable(ctx, sc.Name); err != nil {
			return err
		}
		if err := p.CreateTable(ctx, sc); err != nil {
			return err
		}
	}

	seen := make(map[int]bool)
	for _, o := range catalogue() {
		if c := o.Customer; c != nil && !seen[c.ID] {
			seen[c.ID] = true
			if err := p.Insert(ctx, "customers", c); err != nil {
				return err
			}
		}
		if err := p.Insert(ctx, "orders", o); err != nil {
			return err
		}
		for _, line := range o.Lines {
			if err := p.Insert(ctx, "lines", line); err != nil {
				return err
			}
		}
	}
	return nil
}

// runSpec executes s on the named backend.
func runSpec(ctx context.Context, backend string, s spec.Specification[Order, Order], shop *sqlite.Provider, logger *zap.Logger) ([]Order, error) {
	switch backend {
	case "memory":
		return queryable.ToSlice(ctx, memory.Apply(catalogue(), s, memory.WithLogger(logger)))
	case "sqlite":
		return queryable.ToSlice(ctx, sqlite.Apply(sqlite.Table[Order](shop, "orders"), s))
	default:
		return nil, fmt.Errorf("unknown backend %q (want memory or sqlite)", backend)
	}
}
