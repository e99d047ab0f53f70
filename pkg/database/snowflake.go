package database

import (
	"context"
	"fmt"

	sf "github.com/snowflakedb/gosnowflake"

	"github.com/gerhard-ee/klondike/internal/config"
)

// Snowflake implements the Connector interface for Snowflake
type Snowflake struct {
	*sqlConnector
}

// NewSnowflake creates a new Snowflake instance
func NewSnowflake(ctx context.Context, cfg *config.Config) (*Snowflake, error) {
	dsn, err := snowflakeDSN(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := openSQL(ctx, "snowflake", "snowflake", dsn)
	if err != nil {
		return nil, err
	}
	return &Snowflake{sqlConnector: conn}, nil
}

func snowflakeDSN(cfg *config.Config) (string, error) {
	account := cfg.Account
	if account == "" {
		account = cfg.Host
	}
	sfConfig := &sf.Config{
		Account:   account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	}

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return "", fmt.Errorf("failed to create DSN: %w", err)
	}
	return dsn, nil
}
