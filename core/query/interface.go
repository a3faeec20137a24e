package query

// QueryGenerator translates a flat QueryDSL into a backend's query language.
type QueryGenerator interface {
	// GenerateSelectSQL creates a SELECT statement and its parameters. from is
	// either a table name or a parenthesised subquery produced by an earlier
	// stage; params belong to that subquery and are prepended to the result.
	GenerateSelectSQL(from string, params []any, dsl *QueryDSL) (string, []any, error)

	// GenerateInsertSQL creates an INSERT statement and its parameters for a batch of records.
	GenerateInsertSQL(records []map[string]any) (string, []any, error)
}
