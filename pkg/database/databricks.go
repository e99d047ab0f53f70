package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/databricks/databricks-sql-go"

	"github.com/gerhard-ee/klondike/internal/config"
)

// Databricks implements the Connector interface for Databricks SQL warehouses
type Databricks struct {
	*sqlConnector
}

// NewDatabricks creates a new Databricks instance
func NewDatabricks(ctx context.Context, cfg *config.Config) (*Databricks, error) {
	conn, err := openSQL(ctx, "databricks", "databricks", databricksDSN(cfg))
	if err != nil {
		return nil, err
	}
	return &Databricks{sqlConnector: conn}, nil
}

func databricksDSN(cfg *config.Config) string {
	host := cfg.Workspace
	if host == "" {
		host = cfg.Host
	}
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	port := cfg.Port
	if port == 0 {
		port = 443
	}

	path := cfg.HTTPPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	dsn := fmt.Sprintf("token:%s@%s:%d%s", url.PathEscape(cfg.Token), host, port, path)

	q := url.Values{}
	if cfg.Catalog != "" {
		q.Set("catalog", cfg.Catalog)
	}
	if cfg.Schema != "" {
		q.Set("schema", cfg.Schema)
	}
	if len(q) > 0 {
		dsn += "?" + q.Encode()
	}
	return dsn
}
