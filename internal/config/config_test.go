package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("REDSHIFT_HOST", "cluster.example.com")
	t.Setenv("REDSHIFT_DB", "dev")
	t.Setenv("REDSHIFT_USER", "loader")
	t.Setenv("REDSHIFT_PASSWORD", "secret")
	t.Setenv("POSTGRES_HOST", "pg.example.com")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("SNOWFLAKE_ACCOUNT", "xy12345")
	t.Setenv("SNOWFLAKE_USER", "env-user")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "my-project")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/creds.json")
	t.Setenv("DATABRICKS_HOST", "dbc.cloud.databricks.com")
	t.Setenv("DATABRICKS_TOKEN", "dapi")
	t.Setenv("DATABRICKS_HTTP_PATH", "/sql/1.0/warehouses/abc")

	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "redshift default port",
			in:   Config{Type: "redshift"},
			want: Config{Type: "redshift", Host: "cluster.example.com", Port: 5439, Database: "dev", User: "loader", Password: "secret"},
		},
		{
			name: "postgres port from env",
			in:   Config{Type: "postgres"},
			want: Config{Type: "postgres", Host: "pg.example.com", Port: 6543},
		},
		{
			name: "explicit values win",
			in:   Config{Type: "snowflake", User: "flag-user"},
			want: Config{Type: "snowflake", Account: "xy12345", User: "flag-user"},
		},
		{
			name: "bigquery",
			in:   Config{Type: "bigquery"},
			want: Config{Type: "bigquery", ProjectID: "my-project", CredentialsFile: "/tmp/creds.json"},
		},
		{
			name: "databricks",
			in:   Config{Type: "databricks"},
			want: Config{Type: "databricks", Workspace: "dbc.cloud.databricks.com", Token: "dapi", HTTPPath: "/sql/1.0/warehouses/abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			FromEnv(&cfg)
			if diff := cmp.Diff(tt.want, cfg); diff != "" {
				t.Errorf("FromEnv() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"bigquery ok", Config{Type: "bigquery", ProjectID: "p"}, ""},
		{"bigquery missing project", Config{Type: "bigquery"}, "-project is required"},
		{"postgres ok", Config{Type: "postgres", Host: "h", User: "u", Database: "d"}, ""},
		{"postgres missing host", Config{Type: "postgres", User: "u", Database: "d"}, "-host is required"},
		{"snowflake missing account", Config{Type: "snowflake", User: "u", Password: "p", Database: "d"}, "-account is required"},
		{"databricks missing token", Config{Type: "databricks", Workspace: "w", HTTPPath: "/p"}, "-token is required"},
		{"duckdb ok", Config{Type: "duckdb", Database: "local.duckdb"}, ""},
		{"no type", Config{}, "database type is required"},
		{"unknown type", Config{Type: "oracle"}, "unsupported database type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadJob(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "env-project")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	path := filepath.Join(t.TempDir(), "job.yaml")
	content := `
connection:
  type: bigquery
source:
  path: data/orders.csv
  separator: "|"
  batch_size: 5000
  infer_schema_length: 100
  strategy: reread
destination:
  table: sales.orders
  options:
    if_exists: truncate
    max_bad_records: "10"
state:
  type: file
  dir: /tmp/klondike
  job_id: orders
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write job file: %v", err)
	}

	job, err := LoadJob(path)
	if err != nil {
		t.Fatalf("LoadJob failed: %v", err)
	}

	want := &Job{
		Connection: Config{Type: "bigquery", ProjectID: "env-project"},
		Source: Source{
			Path:              "data/orders.csv",
			Separator:         "|",
			BatchSize:         5000,
			InferSchemaLength: 100,
			Strategy:          "reread",
		},
		Destination: Destination{
			Table:   "sales.orders",
			Options: map[string]string{"if_exists": "truncate", "max_bad_records": "10"},
		},
		State: State{Type: "file", Dir: "/tmp/klondike", JobID: "orders"},
	}
	if diff := cmp.Diff(want, job); diff != "" {
		t.Errorf("LoadJob() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseJobErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing source", "destination:\n  table: a.b\n", "source.path"},
		{"missing table", "source:\n  path: x.csv\n", "destination.table"},
		{"unknown key", "source:\n  path: x.csv\n  colour: blue\ndestination:\n  table: a.b\n", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJob([]byte(tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseJob() error = %v, want %q", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadJob(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing job file")
	}
}

func TestParseJobDefaultsState(t *testing.T) {
	job, err := ParseJob([]byte("source:\n  path: x.csv\ndestination:\n  table: a.b\n"))
	if err != nil {
		t.Fatalf("ParseJob failed: %v", err)
	}
	if job.State.Type != "memory" {
		t.Errorf("expected memory state, got %q", job.State.Type)
	}
}
