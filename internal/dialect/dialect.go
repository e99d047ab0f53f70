package dialect

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/gerhard-ee/klondike/pkg/table"
)

// Dialect generates the SQL a connector needs to create, reset and load
// destination tables
type Dialect struct {
	name        string
	quote       func(string) string
	types       map[table.Type]string
	placeholder func(int) string
	// maxParams caps the bind parameters of a single statement, 0 for no cap
	maxParams int
	// maxRows caps the rows of a single VALUES list, 0 for no cap
	maxRows int
	// truncate is the statement prefix emptying a table
	truncate string
	ingest   ingestScripts
}

// New creates a new dialect based on the database type
func New(dbType string) (*Dialect, error) {
	switch dbType {
	case "postgres":
		return postgres(), nil
	case "redshift":
		return redshift(), nil
	case "snowflake":
		return snowflake(), nil
	case "mssql":
		return mssql(), nil
	case "databricks":
		return databricks(), nil
	case "duckdb":
		return duckdb(), nil
	case "bigquery":
		return bigquery(), nil
	default:
		return nil, fmt.Errorf("unsupported database type for dialect: %s", dbType)
	}
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func backtick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func brackets(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func dollar(i int) string { return fmt.Sprintf("$%d", i) }

func question(int) string { return "?" }

func atP(i int) string { return fmt.Sprintf("@p%d", i) }

func postgres() *Dialect {
	return &Dialect{
		name:        "postgres",
		quote:       pq.QuoteIdentifier,
		placeholder: dollar,
		maxParams:   65535,
		types: map[table.Type]string{
			table.Text:    "TEXT",
			table.Int64:   "BIGINT",
			table.Float64: "DOUBLE PRECISION",
			table.Bool:    "BOOLEAN",
		},
		ingest: postgresIngest{},
	}
}

func redshift() *Dialect {
	return &Dialect{
		name:        "redshift",
		quote:       pq.QuoteIdentifier,
		placeholder: dollar,
		maxParams:   32767,
		types: map[table.Type]string{
			table.Text:    "VARCHAR(65535)",
			table.Int64:   "BIGINT",
			table.Float64: "DOUBLE PRECISION",
			table.Bool:    "BOOLEAN",
		},
		ingest: redshiftIngest{},
	}
}

func snowflake() *Dialect {
	return &Dialect{
		name:        "snowflake",
		quote:       doubleQuote,
		placeholder: question,
		types: map[table.Type]string{
			table.Text:    "VARCHAR",
			table.Int64:   "NUMBER(38,0)",
			table.Float64: "FLOAT",
			table.Bool:    "BOOLEAN",
		},
		ingest: snowflakeIngest{},
	}
}

func mssql() *Dialect {
	return &Dialect{
		name:        "mssql",
		quote:       brackets,
		placeholder: atP,
		maxParams:   2000,
		maxRows:     1000,
		types: map[table.Type]string{
			table.Text:    "NVARCHAR(MAX)",
			table.Int64:   "BIGINT",
			table.Float64: "FLOAT",
			table.Bool:    "BIT",
		},
		ingest: mssqlIngest{},
	}
}

func databricks() *Dialect {
	return &Dialect{
		name:        "databricks",
		quote:       backtick,
		placeholder: question,
		maxParams:   256,
		types: map[table.Type]string{
			table.Text:    "STRING",
			table.Int64:   "BIGINT",
			table.Float64: "DOUBLE",
			table.Bool:    "BOOLEAN",
		},
		ingest: databricksIngest{},
	}
}

func duckdb() *Dialect {
	return &Dialect{
		name:        "duckdb",
		quote:       doubleQuote,
		truncate:    "DELETE FROM ",
		placeholder: dollar,
		types: map[table.Type]string{
			table.Text:    "VARCHAR",
			table.Int64:   "BIGINT",
			table.Float64: "DOUBLE",
			table.Bool:    "BOOLEAN",
		},
		ingest: duckdbIngest{},
	}
}

func bigquery() *Dialect {
	return &Dialect{
		name:        "bigquery",
		quote:       backtick,
		placeholder: question,
		types: map[table.Type]string{
			table.Text:    "STRING",
			table.Int64:   "INT64",
			table.Float64: "FLOAT64",
			table.Bool:    "BOOL",
		},
		ingest: bigqueryIngest{},
	}
}

// Name returns the database type this dialect was created for
func (d *Dialect) Name() string {
	return d.name
}

// QuoteIdentifier quotes a single identifier
func (d *Dialect) QuoteIdentifier(name string) string {
	return d.quote(name)
}

// QualifiedName quotes every segment of a qualified table name
func (d *Dialect) QualifiedName(n table.Name) string {
	parts := append(strings.Split(n.Namespace, "."), n.Table)
	for i, part := range parts {
		parts[i] = d.quote(part)
	}
	return strings.Join(parts, ".")
}

// ColumnType maps a logical column type to the warehouse type
func (d *Dialect) ColumnType(t table.Type) string {
	if native, ok := d.types[t]; ok {
		return native
	}
	return d.types[table.Text]
}

// Placeholder returns the bind parameter marker for the 1-based argument i
func (d *Dialect) Placeholder(i int) string {
	return d.placeholder(i)
}

// CreateTable returns a CREATE TABLE statement for the schema
func (d *Dialect) CreateTable(n table.Name, s table.Schema) string {
	cols := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		cols[i] = d.quote(col.Name) + " " + d.ColumnType(col.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QualifiedName(n), strings.Join(cols, ", "))
}

// TruncateTable returns a statement removing every row of the table
func (d *Dialect) TruncateTable(n table.Name) string {
	if d.truncate != "" {
		return d.truncate + d.QualifiedName(n)
	}
	return "TRUNCATE TABLE " + d.QualifiedName(n)
}

// DropTable returns a statement dropping the table if it exists
func (d *Dialect) DropTable(n table.Name) string {
	return "DROP TABLE IF EXISTS " + d.QualifiedName(n)
}

// RowsPerInsert returns how many rows of width columns fit in one INSERT
// without exceeding chunkSize or the dialect's bind parameter cap
func (d *Dialect) RowsPerInsert(chunkSize, columns int) int {
	rows := chunkSize
	if d.maxRows > 0 && rows > d.maxRows {
		rows = d.maxRows
	}
	if d.maxParams > 0 && columns > 0 && rows*columns > d.maxParams {
		rows = d.maxParams / columns
	}
	if rows < 1 {
		rows = 1
	}
	return rows
}

// Insert returns a multi-row INSERT with placeholders for rows rows
func (d *Dialect) Insert(n table.Name, s table.Schema, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QualifiedName(n))
	b.WriteString(" (")
	for i, col := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.quote(col.Name))
	}
	b.WriteString(") VALUES ")

	arg := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range s.Columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(arg))
			arg++
		}
		b.WriteString(")")
	}
	return b.String()
}

// TableExists returns a query yielding one row when the table exists.
// Its arguments are the schema and the table name.
func (d *Dialect) TableExists() string {
	return fmt.Sprintf(
		"SELECT 1 FROM information_schema.tables WHERE table_schema = %s AND table_name = %s",
		d.placeholder(1), d.placeholder(2))
}

// ListTables returns a query yielding the table names of one schema
func (d *Dialect) ListTables() string {
	return fmt.Sprintf(
		"SELECT table_name FROM information_schema.tables WHERE table_schema = %s ORDER BY table_name",
		d.placeholder(1))
}

// SchemaName returns the innermost schema segment of a namespace, the
// value information_schema stores for it
func SchemaName(namespace string) string {
	if idx := strings.LastIndex(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
