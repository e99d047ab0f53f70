package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/gerhard-ee/klondike/internal/logger"
	"github.com/gerhard-ee/klondike/pkg/database"
	"github.com/gerhard-ee/klondike/pkg/table"
)

// State is the lifecycle state of a Coordinator
type State int32

const (
	Idle State = iota
	Reading
	Writing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Reading:
		return "READING"
	case Writing:
		return "WRITING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrAlreadyRun is returned when a Coordinator is asked to stream twice
var ErrAlreadyRun = errors.New("coordinator has already run")

// Job describes one streaming run into a destination table
type Job struct {
	// Destination is the qualified <namespace>.<table> name
	Destination string
	// Writer is borrowed for the duration of the run and never closed
	Writer database.Writer
	// Options are forwarded verbatim to every write
	Options database.WriteOptions
	// InitialOptions, when set, replace Options for the first write only
	InitialOptions database.WriteOptions
	// Progress is called after every committed batch. A returned error
	// aborts the stream.
	Progress func(Result) error
}

func (j Job) validate() error {
	if j.Writer == nil {
		return fmt.Errorf("%w: destination writer is required", ErrInvalidConfiguration)
	}
	if _, err := table.ParseName(j.Destination); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}

// Result is the running summary of a stream
type Result struct {
	RowsWritten int64
	BatchCount  int
}

// Coordinator drives a batch reader to exhaustion and writes every batch
// to the job's destination, one batch at a time. A Coordinator runs once.
type Coordinator struct {
	// Opener opens source paths. Local files are used when nil.
	Opener Opener
	// Logger defaults to the process logger
	Logger logrus.FieldLogger

	state atomic.Int32
}

// NewCoordinator creates a new coordinator
func NewCoordinator(opener Opener, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{Opener: opener, Logger: log}
}

// State returns the current lifecycle state
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) log() logrus.FieldLogger {
	if c.Logger == nil {
		return logger.Log
	}
	return c.Logger
}

// Stream validates src and job, then streams the whole source into the
// destination. Nothing is opened or written when validation fails.
func (c *Coordinator) Stream(ctx context.Context, src SourceDescriptor, job Job) (Result, error) {
	if err := src.Validate(); err != nil {
		return Result{}, err
	}
	if err := job.validate(); err != nil {
		return Result{}, err
	}
	reader, err := NewReader(src, c.Opener)
	if err != nil {
		return Result{}, err
	}
	defer reader.Close()

	c.log().WithFields(logrus.Fields{
		"source":      src.Path,
		"destination": job.Destination,
		"batch_size":  src.BatchSize,
	}).Infof("Streaming data from %s to table %s in batches of %d...", src.Path, job.Destination, src.BatchSize)

	return c.Run(ctx, reader, job)
}

// Run pulls batches from reader until it is exhausted and writes each one
// before pulling the next. Cancellation of ctx is observed between batches;
// a write in flight always runs to completion. On failure the returned
// Result counts only the batches the destination committed.
func (c *Coordinator) Run(ctx context.Context, reader BatchReader, job Job) (Result, error) {
	var res Result
	if err := job.validate(); err != nil {
		return res, err
	}
	if !c.state.CompareAndSwap(int32(Idle), int32(Reading)) {
		return res, ErrAlreadyRun
	}

	log := c.log().WithField("destination", job.Destination)
	for {
		if err := ctx.Err(); err != nil {
			c.setState(Failed)
			return res, fmt.Errorf("stream to %s stopped after %d batches: %w", job.Destination, res.BatchCount, err)
		}

		c.setState(Reading)
		batch, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			c.setState(Failed)
			return res, err
		}
		if batch.Len() == 0 {
			break
		}

		c.setState(Writing)
		index := res.BatchCount + 1
		opts := job.Options
		if index == 1 && job.InitialOptions != nil {
			opts = job.InitialOptions
		}
		log.WithFields(logrus.Fields{"batch": index, "rows": batch.Len()}).
			Infof("Uploading batch to %s...", job.Destination)
		if err := job.Writer.Write(context.WithoutCancel(ctx), batch, job.Destination, opts); err != nil {
			c.setState(Failed)
			return res, &WriteError{
				Destination:   job.Destination,
				BatchIndex:    index,
				RowsAttempted: batch.Len(),
				RowsCommitted: res.RowsWritten,
				Err:           err,
			}
		}

		res.RowsWritten += int64(batch.Len())
		res.BatchCount++
		if job.Progress != nil {
			if err := job.Progress(res); err != nil {
				c.setState(Failed)
				return res, fmt.Errorf("failed to record progress after batch %d: %w", index, err)
			}
		}
	}

	c.setState(Done)
	log.WithFields(logrus.Fields{"rows": res.RowsWritten, "batches": res.BatchCount}).
		Infof("Finished streaming %d rows to %s", res.RowsWritten, job.Destination)
	return res, nil
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// Stream runs a fresh Coordinator reading local files
func Stream(ctx context.Context, src SourceDescriptor, job Job) (Result, error) {
	return NewCoordinator(nil, nil).Stream(ctx, src, job)
}
