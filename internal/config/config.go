package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config represents the connection configuration of one warehouse
type Config struct {
	// Common fields
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"sslmode"`

	// BigQuery and Cloud Storage specific
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentials_file"`

	// Snowflake specific
	Account   string `yaml:"account"`
	Warehouse string `yaml:"warehouse"`
	Role      string `yaml:"role"`

	// Databricks specific
	Workspace string `yaml:"workspace"`
	Token     string `yaml:"token"`
	Catalog   string `yaml:"catalog"`
	HTTPPath  string `yaml:"http_path"`
}

const (
	defaultPostgresPort = 5432
	defaultRedshiftPort = 5439
	defaultMSSQLPort    = 1433
)

// FromEnv fills every empty field of cfg from the environment variables of
// its connector type. Values already set are left untouched.
func FromEnv(cfg *Config) {
	switch cfg.Type {
	case "bigquery", "gcs":
		setString(&cfg.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
		setString(&cfg.ProjectID, "GOOGLE_CLOUD_PROJECT")
	case "snowflake":
		setString(&cfg.Account, "SNOWFLAKE_ACCOUNT")
		setString(&cfg.User, "SNOWFLAKE_USER")
		setString(&cfg.Password, "SNOWFLAKE_PASSWORD")
		setString(&cfg.Warehouse, "SNOWFLAKE_WAREHOUSE")
		setString(&cfg.Role, "SNOWFLAKE_ROLE")
		setString(&cfg.Database, "SNOWFLAKE_DATABASE")
		setString(&cfg.Schema, "SNOWFLAKE_SCHEMA")
	case "postgres":
		fromPostgresEnv(cfg, "POSTGRES", defaultPostgresPort)
	case "redshift":
		fromPostgresEnv(cfg, "REDSHIFT", defaultRedshiftPort)
	case "mssql":
		setString(&cfg.Host, "MSSQL_HOST")
		setInt(&cfg.Port, "MSSQL_PORT")
		setString(&cfg.User, "MSSQL_USER")
		setString(&cfg.Password, "MSSQL_PASSWORD")
		setString(&cfg.Database, "MSSQL_DB")
		if cfg.Port == 0 {
			cfg.Port = defaultMSSQLPort
		}
	case "databricks":
		setString(&cfg.Workspace, "DATABRICKS_HOST")
		setString(&cfg.Token, "DATABRICKS_TOKEN")
		setString(&cfg.HTTPPath, "DATABRICKS_HTTP_PATH")
	}
}

func fromPostgresEnv(cfg *Config, prefix string, defaultPort int) {
	setString(&cfg.Host, prefix+"_HOST")
	setInt(&cfg.Port, prefix+"_PORT")
	setString(&cfg.Database, prefix+"_DB")
	setString(&cfg.User, prefix+"_USER")
	setString(&cfg.Password, prefix+"_PASSWORD")
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
}

func setString(field *string, env string) {
	if *field == "" {
		*field = os.Getenv(env)
	}
}

func setInt(field *int, env string) {
	if *field != 0 {
		return
	}
	if v, err := strconv.Atoi(os.Getenv(env)); err == nil {
		*field = v
	}
}

// Validate reports the first required field missing for cfg.Type
func Validate(cfg *Config) error {
	var required map[string]string
	switch cfg.Type {
	case "bigquery", "gcs":
		required = map[string]string{"project": cfg.ProjectID}
	case "snowflake":
		required = map[string]string{
			"account":  cfg.Account,
			"user":     cfg.User,
			"password": cfg.Password,
			"database": cfg.Database,
		}
	case "postgres", "redshift", "mssql":
		required = map[string]string{
			"host":     cfg.Host,
			"user":     cfg.User,
			"database": cfg.Database,
		}
	case "databricks":
		required = map[string]string{
			"workspace": cfg.Workspace,
			"token":     cfg.Token,
			"http-path": cfg.HTTPPath,
		}
	case "duckdb":
		required = map[string]string{"database": cfg.Database}
	case "":
		return fmt.Errorf("database type is required")
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	for _, name := range []string{"account", "workspace", "host", "project", "user", "password", "token", "http-path", "database"} {
		if v, ok := required[name]; ok && v == "" {
			return fmt.Errorf("-%s is required for %s", name, cfg.Type)
		}
	}
	return nil
}
