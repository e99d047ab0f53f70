package database

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/gerhard-ee/klondike/internal/config"
)

// Redshift implements the Connector interface for Amazon Redshift over
// the Postgres wire protocol
type Redshift struct {
	*sqlConnector
}

// NewRedshift creates a new Redshift instance
func NewRedshift(ctx context.Context, cfg *config.Config) (*Redshift, error) {
	conn, err := openSQL(ctx, "redshift", "postgres", redshiftDSN(cfg))
	if err != nil {
		return nil, err
	}
	return &Redshift{sqlConnector: conn}, nil
}

func redshiftDSN(cfg *config.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5439
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSNValue(cfg.Host),
		port,
		quoteDSNValue(cfg.User),
		quoteDSNValue(cfg.Password),
		quoteDSNValue(cfg.Database),
		sslMode,
	)
}

// quoteDSNValue quotes a libpq key/value connection string value
func quoteDSNValue(v string) string {
	out := []byte{'\''}
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' || v[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, v[i])
	}
	return string(append(out, '\''))
}
