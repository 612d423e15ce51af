package toolexecutor

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLTool executes one SQL statement per invocation against a task database.
// Databases are SQLite files laid out as <root>/databases/<db_id>.sqlite.
type SQLTool struct {
	root string
}

// NewSQLTool creates the SQL tool over a resource root.
func NewSQLTool(root string) *SQLTool {
	return &SQLTool{root: root}
}

// Definition describes the tool for registration and model advertising.
func (t *SQLTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: "execute_sql",
		Description: "Execute one SQL statement against the task database and " +
			"return the result as CSV. Errors are returned as text so you can " +
			"correct the statement and retry.",
		Parameters: []ToolParameter{
			{Name: "sql", Type: "string", Description: "The SQL statement to execute", Required: true},
			{Name: "database", Type: "string", Description: "Database identifier to run against", Required: true},
		},
		Handler: t.Execute,
	}
}

func (t *SQLTool) databasePath(database string) (string, error) {
	if database == "" {
		return "", fmt.Errorf("database cannot be empty")
	}
	if strings.ContainsAny(database, "/\\") || strings.Contains(database, "..") {
		return "", fmt.Errorf("database identifier must be path-safe: %s", database)
	}

	path := filepath.Join(t.root, "databases", database+".sqlite")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("database not found: %s", database)
	}
	return path, nil
}

// Execute runs the statement. Row-returning statements render as CSV; others
// report affected rows. The connection opens per invocation so a cancelled
// context leaves no statement running.
func (t *SQLTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	stmt, _ := args["sql"].(string)
	database, _ := args["database"].(string)

	if strings.TrimSpace(stmt) == "" {
		return "", fmt.Errorf("sql cannot be empty")
	}

	path, err := t.databasePath(database)
	if err != nil {
		return "", err
	}

	db, err := sql.Open("sqlite3", path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return "", fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	log.Debug().Str("database", database).Msg("Executing SQL")

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("SQL Error: %v", err)
	}
	defer rows.Close()

	return renderRows(ctx, rows)
}

// renderRows converts a result set into the CSV block the prompts describe.
func renderRows(ctx context.Context, rows *sql.Rows) (string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("SQL Error: %v", err)
	}
	if len(columns) == 0 {
		return "Query executed successfully.", nil
	}

	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return "", fmt.Errorf("failed to render result: %w", err)
	}

	values := make([]interface{}, len(columns))
	scanTargets := make([]interface{}, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	rowCount := 0
	for rows.Next() {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return "", fmt.Errorf("SQL Error: %v", err)
		}

		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = renderValue(v)
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to render result: %w", err)
		}
		rowCount++
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("SQL Error: %v", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to render result: %w", err)
	}

	if rowCount == 0 {
		return "Query executed successfully, but no rows returned.", nil
	}

	return fmt.Sprintf("Query executed successfully\n\n```csv\n%s```", buf.String()), nil
}

func renderValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
