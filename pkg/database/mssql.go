package database

import (
	"context"
	"fmt"
	"net/url"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/gerhard-ee/klondike/internal/config"
)

// MSSQL implements the Connector interface for Microsoft SQL Server
type MSSQL struct {
	*sqlConnector
}

// NewMSSQL creates a new SQL Server instance
func NewMSSQL(ctx context.Context, cfg *config.Config) (*MSSQL, error) {
	conn, err := openSQL(ctx, "mssql", "sqlserver", mssqlDSN(cfg))
	if err != nil {
		return nil, err
	}
	return &MSSQL{sqlConnector: conn}, nil
}

func mssqlDSN(cfg *config.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	dsn := url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
	}
	q := dsn.Query()
	q.Set("database", cfg.Database)
	dsn.RawQuery = q.Encode()
	return dsn.String()
}
