package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/gerhard-ee/klondike/internal/config"
	"github.com/gerhard-ee/klondike/internal/logger"
	"github.com/gerhard-ee/klondike/pkg/stream"
)

// optionFlags collects repeatable -opt key=value pairs
type optionFlags map[string]string

func (o optionFlags) String() string {
	pairs := make([]string, 0, len(o))
	for k, v := range o {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (o optionFlags) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	o[strings.TrimSpace(key)] = strings.TrimSpace(value)
	return nil
}

type options struct {
	conn config.Config

	// Streaming
	source    string
	table     string
	batchSize int
	inferRows int
	skipRows  int64
	sep       string
	strategy  string
	writeOpts optionFlags

	// State
	stateType string
	stateDir  string
	namespace string
	jobID     string
	resume    bool

	// Extraction
	query    string
	output   string
	format   string
	pageSize int64

	printIngest string
	configFile  string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{writeOpts: optionFlags{}}
	fs := flag.NewFlagSet("klondike", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Connection flags
	fs.StringVar(&o.conn.Type, "type", "", "Destination type (bigquery, gcs, snowflake, postgres, redshift, mssql, databricks, duckdb)")
	fs.StringVar(&o.conn.Host, "host", "", "Database host")
	fs.IntVar(&o.conn.Port, "port", 0, "Database port")
	fs.StringVar(&o.conn.User, "user", "", "Database user")
	fs.StringVar(&o.conn.Password, "password", "", "Database password")
	fs.StringVar(&o.conn.Database, "database", "", "Database name, or file path for DuckDB")
	fs.StringVar(&o.conn.Schema, "schema", "", "Database schema (optional)")
	fs.StringVar(&o.conn.SSLMode, "sslmode", "", "Postgres/Redshift SSL mode (optional)")
	fs.StringVar(&o.conn.ProjectID, "project", "", "Google Cloud project ID (required for BigQuery and GCS)")
	fs.StringVar(&o.conn.Location, "location", "", "BigQuery dataset location (optional)")
	fs.StringVar(&o.conn.CredentialsFile, "credentials", "", "Google service account key file (optional)")
	fs.StringVar(&o.conn.Account, "account", "", "Snowflake account identifier")
	fs.StringVar(&o.conn.Warehouse, "warehouse", "", "Snowflake warehouse name")
	fs.StringVar(&o.conn.Role, "role", "", "Snowflake role name")
	fs.StringVar(&o.conn.Workspace, "workspace", "", "Databricks workspace host")
	fs.StringVar(&o.conn.Token, "token", "", "Databricks access token")
	fs.StringVar(&o.conn.Catalog, "catalog", "", "Databricks catalog name")
	fs.StringVar(&o.conn.HTTPPath, "http-path", "", "Databricks SQL warehouse HTTP path")

	// Streaming flags
	fs.StringVar(&o.source, "source", "", "Delimited source file (path, file:// or gs:// URI)")
	fs.StringVar(&o.table, "table", "", "Destination table as <namespace>.<table>")
	fs.IntVar(&o.batchSize, "batch-size", stream.DefaultBatchSize, "Rows per batch")
	fs.IntVar(&o.inferRows, "infer-rows", 0, "Leading rows sampled for type inference (0 types every column as text)")
	fs.Int64Var(&o.skipRows, "skip-rows", 0, "Leading data rows to skip")
	fs.StringVar(&o.sep, "sep", ",", "Field separator (a single character, or tab)")
	fs.StringVar(&o.strategy, "strategy", string(stream.Partition), "Batch reader strategy (partition or reread)")
	fs.Var(o.writeOpts, "opt", "Destination write option key=value (repeatable)")

	// State management flags
	fs.StringVar(&o.stateType, "state-type", "memory", "State management type (memory, file or kubernetes)")
	fs.StringVar(&o.stateDir, "state-dir", ".klondike", "Directory for file state")
	fs.StringVar(&o.namespace, "namespace", "default", "Kubernetes namespace for state management")
	fs.StringVar(&o.jobID, "job-id", "", "Job identifier for progress state (defaults to the table name)")
	fs.BoolVar(&o.resume, "resume", false, "Resume after the rows recorded in the job state")

	// Extraction flags
	fs.StringVar(&o.query, "query", "", "Extract the result of this query instead of streaming")
	fs.StringVar(&o.output, "output", "", "Extraction output file")
	fs.StringVar(&o.format, "format", "csv", "Extraction output format (csv or parquet)")
	fs.Int64Var(&o.pageSize, "page-size", 0, "Rows per extraction page (0 runs the query once)")

	fs.StringVar(&o.printIngest, "print-ingest", "", "Print the warehouse bulk-ingest script for the source (csv or parquet) and exit")
	fs.StringVar(&o.configFile, "config", "", "YAML job file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if o.configFile != "" {
		set := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		job, err := config.LoadJob(o.configFile)
		if err != nil {
			return nil, err
		}
		o.merge(job, set)
	}
	config.FromEnv(&o.conn)
	return o, nil
}

// merge applies job file values for every flag not given explicitly
func (o *options) merge(job *config.Job, set map[string]bool) {
	str := func(flagName string, dst *string, v string) {
		if !set[flagName] && v != "" {
			*dst = v
		}
	}
	num := func(flagName string, dst *int, v int) {
		if !set[flagName] && v != 0 {
			*dst = v
		}
	}

	c := job.Connection
	str("type", &o.conn.Type, c.Type)
	str("host", &o.conn.Host, c.Host)
	num("port", &o.conn.Port, c.Port)
	str("user", &o.conn.User, c.User)
	str("password", &o.conn.Password, c.Password)
	str("database", &o.conn.Database, c.Database)
	str("schema", &o.conn.Schema, c.Schema)
	str("sslmode", &o.conn.SSLMode, c.SSLMode)
	str("project", &o.conn.ProjectID, c.ProjectID)
	str("location", &o.conn.Location, c.Location)
	str("credentials", &o.conn.CredentialsFile, c.CredentialsFile)
	str("account", &o.conn.Account, c.Account)
	str("warehouse", &o.conn.Warehouse, c.Warehouse)
	str("role", &o.conn.Role, c.Role)
	str("workspace", &o.conn.Workspace, c.Workspace)
	str("token", &o.conn.Token, c.Token)
	str("catalog", &o.conn.Catalog, c.Catalog)
	str("http-path", &o.conn.HTTPPath, c.HTTPPath)

	str("source", &o.source, job.Source.Path)
	str("sep", &o.sep, job.Source.Separator)
	num("batch-size", &o.batchSize, job.Source.BatchSize)
	num("infer-rows", &o.inferRows, job.Source.InferSchemaLength)
	if !set["skip-rows"] && job.Source.SkipRows != 0 {
		o.skipRows = job.Source.SkipRows
	}
	str("strategy", &o.strategy, job.Source.Strategy)

	str("table", &o.table, job.Destination.Table)
	for k, v := range job.Destination.Options {
		if _, ok := o.writeOpts[k]; !ok {
			o.writeOpts[k] = v
		}
	}

	str("state-type", &o.stateType, job.State.Type)
	str("state-dir", &o.stateDir, job.State.Dir)
	str("namespace", &o.namespace, job.State.Namespace)
	str("job-id", &o.jobID, job.State.JobID)
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		logger.Log.Fatalf("Invalid arguments: %v", err)
	}

	// Handle interrupt signals between batches
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		stop()
		logger.Log.Fatal(err)
	}
}
