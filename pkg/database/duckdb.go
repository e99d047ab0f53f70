package database

import (
	"context"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/gerhard-ee/klondike/internal/config"
)

// DuckDB implements the Connector interface for a local DuckDB file.
// An empty database opens an in-memory instance.
type DuckDB struct {
	*sqlConnector
}

// NewDuckDB creates a new DuckDB instance
func NewDuckDB(ctx context.Context, cfg *config.Config) (*DuckDB, error) {
	dbPath := cfg.Database
	if dbPath == ":memory:" {
		dbPath = ""
	}
	if dbPath != "" && !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(".", dbPath)
	}

	conn, err := openSQL(ctx, "duckdb", "duckdb", dbPath)
	if err != nil {
		return nil, err
	}
	return &DuckDB{sqlConnector: conn}, nil
}
