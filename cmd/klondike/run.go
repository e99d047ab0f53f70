package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gerhard-ee/klondike/internal/config"
	"github.com/gerhard-ee/klondike/internal/dialect"
	"github.com/gerhard-ee/klondike/internal/logger"
	"github.com/gerhard-ee/klondike/internal/state"
	"github.com/gerhard-ee/klondike/pkg/database"
	"github.com/gerhard-ee/klondike/pkg/extractor"
	"github.com/gerhard-ee/klondike/pkg/storage"
	"github.com/gerhard-ee/klondike/pkg/stream"
	"github.com/gerhard-ee/klondike/pkg/table"
)

const lockTTL = time.Hour

func run(ctx context.Context, o *options, stdout io.Writer) error {
	switch {
	case o.printIngest != "":
		return printIngest(o, stdout)
	case o.query != "":
		return extract(ctx, o, stdout)
	default:
		return streamSource(ctx, o, stdout)
	}
}

func printIngest(o *options, stdout io.Writer) error {
	if o.source == "" || o.table == "" {
		return fmt.Errorf("%w: -source and -table are required", stream.ErrInvalidConfiguration)
	}
	d, err := dialect.New(o.conn.Type)
	if err != nil {
		return err
	}
	name, err := table.ParseName(o.table)
	if err != nil {
		return fmt.Errorf("%w: %v", stream.ErrInvalidConfiguration, err)
	}

	var script string
	switch o.printIngest {
	case "csv":
		sep, perr := stream.ParseSeparator(o.sep)
		if perr != nil {
			return perr
		}
		script, err = d.CSVIngestScript(o.source, name, sep)
	case "parquet":
		script, err = d.ParquetIngestScript(o.source, name)
	default:
		return fmt.Errorf("%w: -print-ingest must be csv or parquet, got %q", stream.ErrInvalidConfiguration, o.printIngest)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, script)
	return nil
}

func extract(ctx context.Context, o *options, stdout io.Writer) error {
	if o.output == "" {
		return fmt.Errorf("%w: -output is required with -query", stream.ErrInvalidConfiguration)
	}
	if err := config.Validate(&o.conn); err != nil {
		return fmt.Errorf("%w: %v", stream.ErrInvalidConfiguration, err)
	}

	conn, err := database.NewConnector(ctx, &o.conn)
	if err != nil {
		return err
	}
	defer conn.Close()

	e := extractor.New(conn, o.query, o.output, o.format)
	e.BatchSize = o.pageSize
	if err := e.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Extraction to %s completed successfully\n", o.output)
	return nil
}

// writeOptions returns the options for the first write and for every
// later one. Later writes always append so if_exists applies only once.
func writeOptions(dbType string, raw map[string]string, resume bool) (first, rest database.WriteOptions, err error) {
	appendRaw := make(map[string]string, len(raw)+1)
	for k, v := range raw {
		if !strings.EqualFold(k, "if_exists") {
			appendRaw[k] = v
		}
	}
	if dbType != "gcs" {
		appendRaw["if_exists"] = string(database.Append)
	}

	rest, err = database.ParseOptions(dbType, appendRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", stream.ErrInvalidConfiguration, err)
	}
	if resume {
		return rest, rest, nil
	}
	first, err = database.ParseOptions(dbType, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", stream.ErrInvalidConfiguration, err)
	}
	return first, rest, nil
}

func sourceDescriptor(o *options) (stream.SourceDescriptor, error) {
	sep, err := stream.ParseSeparator(o.sep)
	if err != nil {
		return stream.SourceDescriptor{}, err
	}
	src := stream.NewSource(o.source)
	src.Separator = sep
	src.BatchSize = o.batchSize
	src.InferenceRowBudget = o.inferRows
	src.SkipRows = o.skipRows
	src.Strategy = stream.Strategy(o.strategy)
	return src, src.Validate()
}

func streamSource(ctx context.Context, o *options, stdout io.Writer) error {
	if o.table == "" {
		return fmt.Errorf("%w: -table is required", stream.ErrInvalidConfiguration)
	}
	src, err := sourceDescriptor(o)
	if err != nil {
		return err
	}
	if err := config.Validate(&o.conn); err != nil {
		return fmt.Errorf("%w: %v", stream.ErrInvalidConfiguration, err)
	}
	first, rest, err := writeOptions(o.conn.Type, o.writeOpts, o.resume)
	if err != nil {
		return err
	}

	jobID := o.jobID
	if jobID == "" {
		jobID = o.table
	}
	mgr, err := state.NewManager(o.stateType, o.stateDir, o.namespace)
	if err != nil {
		return err
	}
	locked, err := mgr.LockState(ctx, jobID, lockTTL)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("job %s is locked by another run", jobID)
	}
	defer mgr.UnlockState(context.WithoutCancel(ctx), jobID)

	st, err := startState(ctx, mgr, jobID, src.Path, o.table, o.resume)
	if err != nil {
		return err
	}
	baseRows, baseBatches := st.RowsWritten, st.BatchCount
	src.SkipRows += baseRows
	if baseRows > 0 {
		logger.Log.WithField("rows", baseRows).Infof("Resuming job %s after %d rows", jobID, baseRows)
	}

	opener := stream.SchemeOpener{}
	var writer database.Writer
	if o.conn.Type == "gcs" || strings.HasPrefix(src.Path, "gs://") {
		gcs, err := storage.New(ctx, &o.conn)
		if err != nil {
			return err
		}
		defer gcs.Close()
		opener["gs"] = gcs.Opener()
		if o.conn.Type == "gcs" {
			w := storage.NewBlobWriter(gcs)
			w.Offset = baseBatches
			writer = w
		}
	}
	if writer == nil {
		conn, err := database.NewConnector(ctx, &o.conn)
		if err != nil {
			return err
		}
		defer conn.Close()
		writer = conn
	}

	job := stream.Job{
		Destination:    o.table,
		Writer:         writer,
		Options:        rest,
		InitialOptions: first,
		Progress:       progress(context.WithoutCancel(ctx), mgr, st),
	}

	res, err := stream.NewCoordinator(opener, logger.Log).Stream(ctx, src, job)
	if err != nil {
		st.Status = state.StatusFailed
		st.Error = err.Error()
		if uerr := mgr.UpdateState(context.WithoutCancel(ctx), st); uerr != nil {
			logger.Log.Warnf("Failed to record job failure: %v", uerr)
		}
		return err
	}

	st.Status = state.StatusCompleted
	st.Error = ""
	if err := mgr.UpdateState(ctx, st); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Streamed %d rows to %s in %d batches\n", baseRows+res.RowsWritten, o.table, res.BatchCount)
	return nil
}

// progress records each batch in st and renews the job lock. The stored
// counts at the start of the run are kept as the base.
func progress(ctx context.Context, mgr state.Manager, st *state.State) func(stream.Result) error {
	baseRows, baseBatches := st.RowsWritten, st.BatchCount
	return func(r stream.Result) error {
		if err := mgr.RefreshLock(ctx, st.JobID, lockTTL); err != nil {
			return fmt.Errorf("lost lock on job %s: %w", st.JobID, err)
		}
		st.RowsWritten = baseRows + r.RowsWritten
		st.BatchCount = baseBatches + r.BatchCount
		return mgr.UpdateState(ctx, st)
	}
}

// startState returns the job's state ready for a new run. Without resume
// any previous progress is discarded.
func startState(ctx context.Context, mgr state.Manager, jobID, source, destination string, resume bool) (*state.State, error) {
	st, err := mgr.GetState(ctx, jobID)
	if errors.Is(err, state.ErrNotFound) {
		st = &state.State{
			JobID:       jobID,
			Source:      source,
			Destination: destination,
			Status:      state.StatusRunning,
			LastUpdated: time.Now(),
		}
		return st, mgr.CreateState(ctx, st)
	}
	if err != nil {
		return nil, err
	}

	if !resume {
		st.RowsWritten = 0
		st.BatchCount = 0
	}
	st.Source = source
	st.Destination = destination
	st.Status = state.StatusRunning
	st.Error = ""
	return st, mgr.UpdateState(ctx, st)
}
